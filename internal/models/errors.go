package models

import "errors"

// Common errors used throughout the application
var (
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrNotOnWaitlist       = errors.New("not on waitlist")
	ErrNoActiveReservation = errors.New("no active reservation")
	ErrReservationExpired  = errors.New("reservation expired")
	ErrOfferExpired        = errors.New("offer expired")
	ErrOfferResolved       = errors.New("offer already resolved")
	ErrInvalidStep         = errors.New("operation not valid in current step")
	ErrEventNotFound       = errors.New("event not found")
	ErrInvalidQuantity     = errors.New("invalid ticket quantity")
	ErrSeatsUnavailable    = errors.New("not enough seats available")
	ErrReservationNotFound = errors.New("reservation not found")
)
