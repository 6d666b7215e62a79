package models

import "time"

// Event is the subset of event data the booking flow needs: identity,
// pricing, and the per-booking ticket cap.
type Event struct {
	EventID              string    `json:"event_id"`
	Name                 string    `json:"name"`
	Venue                string    `json:"venue,omitempty"`
	DateTime             time.Time `json:"datetime"`
	Status               string    `json:"status"`
	BasePrice            float64   `json:"base_price"`
	AvailableSeats       int       `json:"available_seats"`
	MaxTicketsPerBooking int       `json:"max_tickets_per_booking"`
}

// Availability is the booking service's answer to "can I buy N seats
// right now". BasePrice and MaxPerBooking ride along so the reserve
// step can price and clamp without a second event fetch.
type Availability struct {
	Available      bool    `json:"available"`
	AvailableSeats int     `json:"available_seats"`
	MaxPerBooking  int     `json:"max_per_booking"`
	BasePrice      float64 `json:"base_price"`
}

// User is the signed-in user snapshot the client keeps alongside its
// tokens.
type User struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
}
