package models

import "time"

// Waitlist entry statuses as reported by the booking service.
const (
	WaitlistStatusWaiting = "waiting"
	WaitlistStatusOffered = "offered"
	WaitlistStatusExpired = "expired"
)

// WaitlistEntry is a snapshot of the user's standing on an event's
// waitlist. It is re-fetched whole on every poll and never mutated
// locally. OfferedAt and ExpiresAt are set only while the status is
// "offered" and define the offer window.
type WaitlistEntry struct {
	Status            string     `json:"status"`
	Position          int        `json:"position"`
	TotalWaiting      int        `json:"total_waiting"`
	EstimatedWait     string     `json:"estimated_wait,omitempty"`
	QuantityRequested int        `json:"quantity_requested"`
	OfferedAt         *time.Time `json:"offered_at,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

// Offered reports whether the entry carries an active offer window.
func (w *WaitlistEntry) Offered() bool {
	return w.Status == WaitlistStatusOffered && w.OfferedAt != nil && w.ExpiresAt != nil
}

// JoinWaitlistRequest asks for a spot on an event's waitlist.
type JoinWaitlistRequest struct {
	EventID  string `json:"event_id"`
	Quantity int    `json:"quantity"`
}

// JoinWaitlistResponse is returned by a successful join.
type JoinWaitlistResponse struct {
	WaitlistID    string `json:"waitlist_id"`
	Position      int    `json:"position"`
	EstimatedWait string `json:"estimated_wait"`
	Status        string `json:"status"`
}

// LeaveWaitlistRequest removes the user from an event's waitlist.
type LeaveWaitlistRequest struct {
	EventID string `json:"event_id"`
}
