package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"ticketflow/internal/config"
	"ticketflow/internal/models"
	"ticketflow/internal/stubserver"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	stub := stubserver.New(stubserver.Config{
		JWTSecret:         cfg.Stub.JWTSecret,
		ReservationExpiry: cfg.Stub.ReservationExpiry,
		OfferWindow:       cfg.Stub.OfferWindow,
	})

	if _, err := stub.SeedUser("demo@example.com", "Demo User", "password123"); err != nil {
		log.Fatal("Failed to seed user:", err)
	}
	stub.SeedEvent(models.Event{
		EventID:              "11111111-1111-1111-1111-111111111111",
		Name:                 "Summer Music Festival",
		Venue:                "Riverside Park",
		DateTime:             time.Now().AddDate(0, 1, 0),
		Status:               "published",
		BasePrice:            49.50,
		AvailableSeats:       120,
		MaxTicketsPerBooking: 6,
	})
	stub.SeedEvent(models.Event{
		EventID:              "22222222-2222-2222-2222-222222222222",
		Name:                 "Sold Out Showcase",
		Venue:                "Downtown Arena",
		DateTime:             time.Now().AddDate(0, 2, 0),
		Status:               "published",
		BasePrice:            85.00,
		AvailableSeats:       0,
		MaxTicketsPerBooking: 4,
	})

	addr := ":" + cfg.Stub.Port
	fmt.Printf("Stub booking service listening on %s\n", addr)
	fmt.Println("Seeded login: demo@example.com / password123")
	if err := http.ListenAndServe(addr, stub.Router()); err != nil {
		log.Fatal(err)
	}
}
