package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"ticketflow/internal/models"
)

// CheckAvailability asks whether quantity seats can currently be
// booked for an event.
func (c *Client) CheckAvailability(ctx context.Context, eventID string, quantity int) (*models.Availability, error) {
	params := url.Values{}
	params.Set("event_id", eventID)
	params.Set("quantity", strconv.Itoa(quantity))

	var avail models.Availability
	path := bookingRoute + "/bookings/check-availability?" + params.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &avail); err != nil {
		return nil, fmt.Errorf("availability check failed: %w", err)
	}
	return &avail, nil
}

// Reserve places a time-boxed hold on seats. The idempotency key in
// the request deduplicates retried submissions server-side.
func (c *Client) Reserve(ctx context.Context, req models.ReserveRequest) (*models.Reservation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var res models.Reservation
	if err := c.do(ctx, http.MethodPost, bookingRoute+"/bookings/reserve", req, &res); err != nil {
		return nil, err
	}
	if res.EventID == "" {
		res.EventID = req.EventID
	}
	if res.Quantity == 0 {
		res.Quantity = req.Quantity
	}
	return &res, nil
}

// Confirm pays for a held reservation, promoting it to a booking.
func (c *Client) Confirm(ctx context.Context, req models.ConfirmRequest) (*models.Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var booking models.Booking
	if err := c.do(ctx, http.MethodPost, bookingRoute+"/bookings/confirm", req, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

// ExpireReservation tells the server a reservation is void so the
// seats return to the pool. Callers treat failures as non-fatal; the
// server expires reservations on its own schedule regardless.
func (c *Client) ExpireReservation(ctx context.Context, reservationID string) error {
	path := bookingRoute + "/bookings/" + url.PathEscape(reservationID) + "/expire"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// GetBooking fetches a booking by ID.
func (c *Client) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	var booking models.Booking
	path := bookingRoute + "/bookings/" + url.PathEscape(bookingID)
	if err := c.do(ctx, http.MethodGet, path, nil, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

// CancelBooking cancels a confirmed booking.
func (c *Client) CancelBooking(ctx context.Context, bookingID string) error {
	path := bookingRoute + "/bookings/" + url.PathEscape(bookingID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// JoinWaitlist adds the user to an event's waitlist.
func (c *Client) JoinWaitlist(ctx context.Context, eventID string, quantity int) (*models.JoinWaitlistResponse, error) {
	req := models.JoinWaitlistRequest{EventID: eventID, Quantity: quantity}
	var resp models.JoinWaitlistResponse
	if err := c.do(ctx, http.MethodPost, bookingRoute+"/waitlist/join", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetWaitlistPosition fetches the user's waitlist entry for an event.
// Absence from the waitlist is an expected state, returned as
// models.ErrNotOnWaitlist rather than a transport error.
func (c *Client) GetWaitlistPosition(ctx context.Context, eventID string) (*models.WaitlistEntry, error) {
	params := url.Values{}
	params.Set("event_id", eventID)

	var entry models.WaitlistEntry
	path := bookingRoute + "/waitlist/position?" + params.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &entry); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.NotFound() || IsNotOnWaitlistMessage(apiErr.Message)) {
			return nil, models.ErrNotOnWaitlist
		}
		return nil, err
	}
	return &entry, nil
}

// LeaveWaitlist removes the user from an event's waitlist.
func (c *Client) LeaveWaitlist(ctx context.Context, eventID string) error {
	req := models.LeaveWaitlistRequest{EventID: eventID}
	err := c.do(ctx, http.MethodDelete, bookingRoute+"/waitlist/leave", req, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.NotFound() || IsNotOnWaitlistMessage(apiErr.Message)) {
			return models.ErrNotOnWaitlist
		}
	}
	return err
}
