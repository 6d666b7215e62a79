// Package session persists the client's credentials and active
// reservation across process restarts. It implements api.TokenSource.
package session

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"ticketflow/internal/database"
	"ticketflow/internal/models"
)

// Store is a sqlite-backed credential and reservation store. Reads
// dominate (every outgoing request reads the access token); writes
// happen on login, token refresh, and reservation changes.
type Store struct {
	db *database.DB

	mu      sync.RWMutex
	access  string
	refresh string
	user    *models.User
}

// Open loads the store from the state database at path.
func Open(path string) (*Store, error) {
	db, err := database.Open(path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	row := s.db.QueryRow("SELECT access_token, refresh_token, user_id, email, name FROM credentials WHERE id = 1")
	var user models.User
	err := row.Scan(&s.access, &s.refresh, &user.UserID, &user.Email, &user.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	s.user = &user
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// AccessToken returns the stored access token, empty when signed out.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

// RefreshToken returns the stored refresh token, empty when signed
// out.
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

// Authenticated reports whether credentials are present.
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access != ""
}

// CurrentUser returns the signed-in user snapshot, nil when signed
// out.
func (s *Store) CurrentUser() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// SaveCredentials stores a fresh login.
func (s *Store) SaveCredentials(user models.User, access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO credentials (id, access_token, refresh_token, user_id, email, name, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			user_id = excluded.user_id,
			email = excluded.email,
			name = excluded.name,
			updated_at = CURRENT_TIMESTAMP`,
		access, refresh, user.UserID, user.Email, user.Name)
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	s.access = access
	s.refresh = refresh
	s.user = &user
	return nil
}

// UpdateTokens replaces the token pair after a refresh, keeping the
// user snapshot.
func (s *Store) UpdateTokens(access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		"UPDATE credentials SET access_token = ?, refresh_token = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1",
		access, refresh)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}
	s.access = access
	s.refresh = refresh
	return nil
}

// Clear wipes credentials, as on logout or a failed refresh.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("DELETE FROM credentials"); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	s.access = ""
	s.refresh = ""
	s.user = nil
	return nil
}

// SaveReservation persists the active hold for an event so a restarted
// process can resume (or expire) it.
func (s *Store) SaveReservation(eventID string, r *models.Reservation, fromOffer bool) error {
	offer := 0
	if fromOffer {
		offer = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO reservations (event_id, reservation_id, booking_reference, quantity, total_amount, expires_at, from_offer, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(event_id) DO UPDATE SET
			reservation_id = excluded.reservation_id,
			booking_reference = excluded.booking_reference,
			quantity = excluded.quantity,
			total_amount = excluded.total_amount,
			expires_at = excluded.expires_at,
			from_offer = excluded.from_offer,
			saved_at = CURRENT_TIMESTAMP`,
		eventID, r.ReservationID, r.BookingReference, r.Quantity, r.TotalAmount,
		r.ExpiresAt.UTC().Format(time.RFC3339Nano), offer)
	if err != nil {
		return fmt.Errorf("failed to save reservation: %w", err)
	}
	return nil
}

// LoadReservation returns the persisted hold for an event, if any. The
// second return reports whether the hold came from a waitlist offer.
func (s *Store) LoadReservation(eventID string) (*models.Reservation, bool, error) {
	row := s.db.QueryRow(`
		SELECT reservation_id, booking_reference, quantity, total_amount, expires_at, from_offer
		FROM reservations WHERE event_id = ?`, eventID)

	var r models.Reservation
	var expiresAt string
	var offer int
	err := row.Scan(&r.ReservationID, &r.BookingReference, &r.Quantity, &r.TotalAmount, &expiresAt, &offer)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load reservation: %w", err)
	}

	r.EventID = eventID
	r.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse reservation expiry: %w", err)
	}
	return &r, offer == 1, nil
}

// ClearReservation drops the persisted hold for an event.
func (s *Store) ClearReservation(eventID string) error {
	if _, err := s.db.Exec("DELETE FROM reservations WHERE event_id = ?", eventID); err != nil {
		return fmt.Errorf("failed to clear reservation: %w", err)
	}
	return nil
}
