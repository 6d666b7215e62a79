package models

import (
	"fmt"
	"time"
)

// MaxTicketsPerRequest is the hard upper bound on tickets per booking,
// regardless of what the event allows.
const MaxTicketsPerRequest = 10

// Reservation is a provisional, time-boxed hold on seats. It is only
// usable for payment while Valid reports true; the server enforces the
// same window independently.
type Reservation struct {
	ReservationID    string    `json:"reservation_id"`
	EventID          string    `json:"event_id"`
	BookingReference string    `json:"booking_reference"`
	Quantity         int       `json:"quantity"`
	TotalAmount      float64   `json:"total_amount"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// Valid reports whether the reservation can still be paid for at the
// given instant. Expiry timestamps come from the server and are treated
// as authoritative wall-clock values.
func (r *Reservation) Valid(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}

// Remaining returns the time left on the reservation, floored at zero.
func (r *Reservation) Remaining(now time.Time) time.Duration {
	d := r.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// PaymentInfo describes the payment attached to a confirmed booking.
type PaymentInfo struct {
	TransactionID string  `json:"transaction_id"`
	Status        string  `json:"status"`
	Amount        float64 `json:"amount"`
	Method        string  `json:"method,omitempty"`
}

// Booking is the confirmed artifact after a successful payment. It is
// immutable from the client's perspective.
type Booking struct {
	BookingID        string      `json:"booking_id"`
	BookingReference string      `json:"booking_reference"`
	Status           string      `json:"status"`
	TicketURL        string      `json:"ticket_url,omitempty"`
	Payment          PaymentInfo `json:"payment"`
}

// ReserveRequest is the payload for the reserve operation. The
// idempotency key deduplicates repeated submissions of the same intent
// server-side.
type ReserveRequest struct {
	EventID        string `json:"event_id"`
	Quantity       int    `json:"quantity"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Validate checks the reserve request before it goes on the wire.
func (r *ReserveRequest) Validate() error {
	if r.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if r.Quantity < 1 || r.Quantity > MaxTicketsPerRequest {
		return ErrInvalidQuantity
	}
	if r.IdempotencyKey == "" {
		return fmt.Errorf("idempotency_key is required")
	}
	return nil
}

// ConfirmRequest carries the payment for a held reservation.
type ConfirmRequest struct {
	ReservationID string `json:"reservation_id"`
	PaymentToken  string `json:"payment_token"`
	PaymentMethod string `json:"payment_method"`
}

// Validate checks the confirm request before it goes on the wire.
func (c *ConfirmRequest) Validate() error {
	if c.ReservationID == "" {
		return fmt.Errorf("reservation_id is required")
	}
	if c.PaymentMethod == "" {
		return fmt.Errorf("payment_method is required")
	}
	return nil
}

// ClampQuantity restricts a requested ticket count to the valid range
// for an event: at least 1 and at most min(MaxTicketsPerRequest,
// maxPerBooking). A non-positive maxPerBooking means the event imposes
// no cap of its own.
func ClampQuantity(quantity, maxPerBooking int) int {
	max := MaxTicketsPerRequest
	if maxPerBooking > 0 && maxPerBooking < max {
		max = maxPerBooking
	}
	if quantity < 1 {
		return 1
	}
	if quantity > max {
		return max
	}
	return quantity
}
