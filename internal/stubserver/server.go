// Package stubserver is an in-memory stand-in for the remote user,
// event, and booking services, speaking the same HTTP contract the
// client consumes. It exists for local development and integration
// tests; the real services own seat allocation and queue ordering.
package stubserver

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"ticketflow/internal/models"
)

// Config holds stub behavior knobs.
type Config struct {
	JWTSecret         string
	ReservationExpiry time.Duration
	OfferWindow       time.Duration

	// Now overrides the clock in tests.
	Now func() time.Time
}

type stubUser struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
}

type stubEvent struct {
	models.Event
}

type bookingStatus string

const (
	bookingPending   bookingStatus = "pending"
	bookingConfirmed bookingStatus = "confirmed"
	bookingExpired   bookingStatus = "expired"
	bookingCancelled bookingStatus = "cancelled"
)

type stubBooking struct {
	ID             string
	UserID         string
	EventID        string
	Reference      string
	Quantity       int
	TotalAmount    float64
	Status         bookingStatus
	ExpiresAt      time.Time
	IdempotencyKey string
	Payment        models.PaymentInfo
}

type stubWaitlistEntry struct {
	UserID    string
	Position  int
	Quantity  int
	Status    string
	OfferedAt time.Time
	ExpiresAt time.Time
}

// Server holds all stub state behind one mutex.
type Server struct {
	cfg Config

	mu            sync.Mutex
	users         map[string]*stubUser // by email
	refreshTokens map[string]string    // refresh token -> user ID
	events        map[string]*stubEvent
	bookings      map[string]*stubBooking
	idempotency   map[string]string // idempotency key -> booking ID
	waitlists     map[string]map[string]*stubWaitlistEntry
}

// New creates an empty stub. Seed users and events before serving.
func New(cfg Config) *Server {
	if cfg.ReservationExpiry <= 0 {
		cfg.ReservationExpiry = 5 * time.Minute
	}
	if cfg.OfferWindow <= 0 {
		cfg.OfferWindow = 2 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Server{
		cfg:           cfg,
		users:         make(map[string]*stubUser),
		refreshTokens: make(map[string]string),
		events:        make(map[string]*stubEvent),
		bookings:      make(map[string]*stubBooking),
		idempotency:   make(map[string]string),
		waitlists:     make(map[string]map[string]*stubWaitlistEntry),
	}
}

// Router mounts the gateway routes the frontend client expects.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)
		r.Post("/auth/logout", s.handleLogout)
		r.Get("/healthz", s.handleHealth)
	})

	r.Route("/api/event", func(r chi.Router) {
		r.Get("/events/{eventID}", s.handleGetEvent)
		r.Get("/healthz", s.handleHealth)
	})

	r.Route("/api/booking", func(r chi.Router) {
		r.Get("/healthz", s.handleHealth)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/bookings/check-availability", s.handleCheckAvailability)
			r.Post("/bookings/reserve", s.handleReserve)
			r.Post("/bookings/confirm", s.handleConfirm)
			r.Post("/bookings/{bookingID}/expire", s.handleExpire)
			r.Get("/bookings/{bookingID}", s.handleGetBooking)
			r.Delete("/bookings/{bookingID}", s.handleCancel)
			r.Post("/waitlist/join", s.handleJoinWaitlist)
			r.Get("/waitlist/position", s.handleWaitlistPosition)
			r.Delete("/waitlist/leave", s.handleLeaveWaitlist)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type contextKey string

const userIDKey contextKey = "user_id"

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			respondError(w, http.StatusUnauthorized, "User not authenticated")
			return
		}
		userID, err := s.verifyAccessToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "User not authenticated")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func userIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("stubserver: failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
