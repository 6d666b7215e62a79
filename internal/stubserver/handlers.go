package stubserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"ticketflow/internal/models"
)

func chiURLParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

func (s *Server) handleCheckAvailability(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("event_id")
	quantity, _ := strconv.Atoi(r.URL.Query().Get("quantity"))
	if eventID == "" || quantity < 1 {
		respondError(w, http.StatusBadRequest, "event_id and quantity are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[eventID]
	if !ok {
		respondError(w, http.StatusNotFound, "Event not found")
		return
	}
	respondJSON(w, http.StatusOK, models.Availability{
		Available:      event.Status == "published" && event.AvailableSeats >= quantity,
		AvailableSeats: event.AvailableSeats,
		MaxPerBooking:  event.MaxTicketsPerBooking,
		BasePrice:      event.BasePrice,
	})
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	var req models.ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.EventID == "" || req.Quantity < 1 || req.IdempotencyKey == "" {
		respondError(w, http.StatusBadRequest, "event_id, quantity and idempotency_key are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Idempotent replay of the same intent returns the existing hold.
	if bookingID, seen := s.idempotency[req.IdempotencyKey]; seen {
		if b, exists := s.bookings[bookingID]; exists {
			respondJSON(w, http.StatusOK, reservationResponse(b))
			return
		}
	}

	event, exists := s.events[req.EventID]
	if !exists || event.Status != "published" {
		respondError(w, http.StatusBadRequest, "Event not found or not available for booking")
		return
	}
	if req.Quantity > event.MaxTicketsPerBooking {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("Maximum %d tickets allowed per booking for this event", event.MaxTicketsPerBooking))
		return
	}
	if event.AvailableSeats < req.Quantity {
		respondError(w, http.StatusConflict, "Not enough seats available")
		return
	}

	now := s.cfg.Now()
	expiresAt := now.Add(s.cfg.ReservationExpiry)

	// An offered waitlist user books inside the offer window they
	// already hold, not a fresh one.
	if entry := s.waitlistEntry(req.EventID, userID); entry != nil &&
		entry.Status == models.WaitlistStatusOffered && now.Before(entry.ExpiresAt) {
		expiresAt = entry.ExpiresAt
	}

	event.AvailableSeats -= req.Quantity

	booking := &stubBooking{
		ID:             uuid.NewString(),
		UserID:         userID,
		EventID:        req.EventID,
		Reference:      bookingReference(now),
		Quantity:       req.Quantity,
		TotalAmount:    event.BasePrice * float64(req.Quantity),
		Status:         bookingPending,
		ExpiresAt:      expiresAt,
		IdempotencyKey: req.IdempotencyKey,
	}
	s.bookings[booking.ID] = booking
	s.idempotency[req.IdempotencyKey] = booking.ID

	respondJSON(w, http.StatusOK, reservationResponse(booking))
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	var req models.ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	booking, exists := s.bookings[req.ReservationID]
	if !exists || booking.UserID != userID {
		respondError(w, http.StatusNotFound, "Reservation not found")
		return
	}
	if booking.Status != bookingPending {
		respondError(w, http.StatusConflict, "Reservation is no longer pending")
		return
	}
	now := s.cfg.Now()
	if !now.Before(booking.ExpiresAt) {
		s.releaseSeatsLocked(booking)
		booking.Status = bookingExpired
		respondError(w, http.StatusConflict, "Reservation expired")
		return
	}

	booking.Status = bookingConfirmed
	booking.Payment = models.PaymentInfo{
		TransactionID: uuid.NewString(),
		Status:        "completed",
		Amount:        booking.TotalAmount,
		Method:        req.PaymentMethod,
	}

	// A waitlisted user who books through their offer leaves the queue.
	if entries, exists := s.waitlists[booking.EventID]; exists {
		if entry, onList := entries[userID]; onList && entry.Status == models.WaitlistStatusOffered {
			delete(entries, userID)
			s.reorderWaitlistLocked(booking.EventID)
		}
	}

	respondJSON(w, http.StatusOK, models.Booking{
		BookingID:        booking.ID,
		BookingReference: booking.Reference,
		Status:           string(booking.Status),
		TicketURL:        "/tickets/" + booking.ID,
		Payment:          booking.Payment,
	})
}

func (s *Server) handleExpire(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	bookingID := chiURLParam(r, "bookingID")

	s.mu.Lock()
	defer s.mu.Unlock()
	booking, exists := s.bookings[bookingID]
	if !exists || booking.UserID != userID {
		respondError(w, http.StatusNotFound, "Reservation not found")
		return
	}
	if booking.Status != bookingPending {
		respondError(w, http.StatusConflict, "Reservation is no longer pending")
		return
	}

	booking.Status = bookingExpired
	s.releaseSeatsLocked(booking)
	s.promoteWaitlistLocked(booking.EventID)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Reservation expired, seats returned"})
}

func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	bookingID := chiURLParam(r, "bookingID")

	s.mu.Lock()
	defer s.mu.Unlock()
	booking, exists := s.bookings[bookingID]
	if !exists || booking.UserID != userID {
		respondError(w, http.StatusNotFound, "Booking not found")
		return
	}
	respondJSON(w, http.StatusOK, models.Booking{
		BookingID:        booking.ID,
		BookingReference: booking.Reference,
		Status:           string(booking.Status),
		Payment:          booking.Payment,
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	bookingID := chiURLParam(r, "bookingID")

	s.mu.Lock()
	defer s.mu.Unlock()
	booking, exists := s.bookings[bookingID]
	if !exists || booking.UserID != userID {
		respondError(w, http.StatusNotFound, "Booking not found")
		return
	}
	if booking.Status == bookingCancelled || booking.Status == bookingExpired {
		respondError(w, http.StatusConflict, "Booking is not active")
		return
	}

	booking.Status = bookingCancelled
	s.releaseSeatsLocked(booking)
	s.promoteWaitlistLocked(booking.EventID)
	respondJSON(w, http.StatusOK, map[string]string{
		"message":       "Booking cancelled",
		"refund_status": "processed",
	})
}

func (s *Server) handleJoinWaitlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	var req models.JoinWaitlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.EventID == "" || req.Quantity < 1 {
		respondError(w, http.StatusBadRequest, "event_id and quantity are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[req.EventID]; !exists {
		respondError(w, http.StatusNotFound, "Event not found")
		return
	}

	entries, exists := s.waitlists[req.EventID]
	if !exists {
		entries = make(map[string]*stubWaitlistEntry)
		s.waitlists[req.EventID] = entries
	}
	if entry, onList := entries[userID]; onList {
		respondJSON(w, http.StatusOK, models.JoinWaitlistResponse{
			WaitlistID:    userID,
			Position:      entry.Position,
			EstimatedWait: estimatedWait(entry.Position),
			Status:        entry.Status,
		})
		return
	}

	entry := &stubWaitlistEntry{
		UserID:   userID,
		Position: len(entries) + 1,
		Quantity: req.Quantity,
		Status:   models.WaitlistStatusWaiting,
	}
	entries[userID] = entry

	respondJSON(w, http.StatusOK, models.JoinWaitlistResponse{
		WaitlistID:    userID,
		Position:      entry.Position,
		EstimatedWait: estimatedWait(entry.Position),
		Status:        entry.Status,
	})
}

func (s *Server) handleWaitlistPosition(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	eventID := r.URL.Query().Get("event_id")
	if eventID == "" {
		respondError(w, http.StatusBadRequest, "event_id is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.waitlistEntry(eventID, userID)
	if entry == nil {
		respondError(w, http.StatusNotFound, "Not in waitlist for this event")
		return
	}

	// A lapsed offer recycles the user back to waiting; the poll that
	// observes this is how the client learns the offer is gone.
	now := s.cfg.Now()
	if entry.Status == models.WaitlistStatusOffered && !now.Before(entry.ExpiresAt) {
		entry.Status = models.WaitlistStatusWaiting
		entry.OfferedAt = time.Time{}
		entry.ExpiresAt = time.Time{}
	}

	resp := models.WaitlistEntry{
		Status:            entry.Status,
		Position:          entry.Position,
		TotalWaiting:      len(s.waitlists[eventID]),
		EstimatedWait:     estimatedWait(entry.Position),
		QuantityRequested: entry.Quantity,
	}
	if entry.Status == models.WaitlistStatusOffered {
		offeredAt := entry.OfferedAt
		expiresAt := entry.ExpiresAt
		resp.OfferedAt = &offeredAt
		resp.ExpiresAt = &expiresAt
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLeaveWaitlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	var req models.LeaveWaitlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries, exists := s.waitlists[req.EventID]
	if !exists {
		respondError(w, http.StatusNotFound, "Not in waitlist for this event")
		return
	}
	if _, onList := entries[userID]; !onList {
		respondError(w, http.StatusNotFound, "Not in waitlist for this event")
		return
	}
	delete(entries, userID)
	s.reorderWaitlistLocked(req.EventID)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Removed from waitlist"})
}

// waitlistEntry looks up a user's entry. Caller holds s.mu.
func (s *Server) waitlistEntry(eventID, userID string) *stubWaitlistEntry {
	entries, exists := s.waitlists[eventID]
	if !exists {
		return nil
	}
	return entries[userID]
}

// releaseSeatsLocked returns a booking's seats to the pool. Caller
// holds s.mu.
func (s *Server) releaseSeatsLocked(b *stubBooking) {
	if event, exists := s.events[b.EventID]; exists {
		event.AvailableSeats += b.Quantity
	}
}

// reorderWaitlistLocked renumbers positions after a removal. Caller
// holds s.mu.
func (s *Server) reorderWaitlistLocked(eventID string) {
	entries := s.waitlists[eventID]
	ordered := make([]*stubWaitlistEntry, 0, len(entries))
	for _, entry := range entries {
		ordered = append(ordered, entry)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })
	for i, entry := range ordered {
		entry.Position = i + 1
	}
}

// promoteWaitlistLocked offers freed seats to waiting users in
// position order. Caller holds s.mu.
func (s *Server) promoteWaitlistLocked(eventID string) {
	event, exists := s.events[eventID]
	if !exists {
		return
	}
	entries := s.waitlists[eventID]
	if len(entries) == 0 {
		return
	}

	ordered := make([]*stubWaitlistEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Status == models.WaitlistStatusWaiting {
			ordered = append(ordered, entry)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })

	now := s.cfg.Now()
	seats := event.AvailableSeats
	for _, entry := range ordered {
		if seats < entry.Quantity {
			break
		}
		entry.Status = models.WaitlistStatusOffered
		entry.OfferedAt = now
		entry.ExpiresAt = now.Add(s.cfg.OfferWindow)
		seats -= entry.Quantity
	}
}

func reservationResponse(b *stubBooking) models.Reservation {
	return models.Reservation{
		ReservationID:    b.ID,
		EventID:          b.EventID,
		BookingReference: b.Reference,
		Quantity:         b.Quantity,
		TotalAmount:      b.TotalAmount,
		ExpiresAt:        b.ExpiresAt,
	}
}

func bookingReference(now time.Time) string {
	return fmt.Sprintf("EVT-%s", now.Format("20060102-150405.000"))
}

func estimatedWait(position int) string {
	switch {
	case position <= 1:
		return "next in line"
	case position <= 5:
		return "under 30 minutes"
	default:
		return fmt.Sprintf("roughly %d hours", (position+4)/5)
	}
}
