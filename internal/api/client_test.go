package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketflow/internal/models"
)

// memoryTokens is an in-memory TokenSource for tests.
type memoryTokens struct {
	mu      sync.Mutex
	access  string
	refresh string
	updates int
}

func (m *memoryTokens) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.access
}

func (m *memoryTokens) RefreshToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refresh
}

func (m *memoryTokens) UpdateTokens(access, refresh string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access = access
	m.refresh = refresh
	m.updates++
	return nil
}

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(models.Availability{Available: true, AvailableSeats: 10})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, &memoryTokens{access: "tok-abc", refresh: "ref-1"})
	avail, err := client.CheckAvailability(context.Background(), "evt-1", 2)
	require.NoError(t, err)
	assert.True(t, avail.Available)
	assert.Equal(t, "Bearer tok-abc", gotAuth)
}

func TestClientRefreshesOnUnauthorized(t *testing.T) {
	var mu sync.Mutex
	var refreshCalls, bookingCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.URL.Path {
		case "/api/user/auth/refresh":
			refreshCalls++
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["refresh_token"] != "ref-old" {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "Invalid refresh token"})
				return
			}
			json.NewEncoder(w).Encode(TokenPair{AccessToken: "tok-new", RefreshToken: "ref-new"})
		case "/api/booking/bookings/check-availability":
			bookingCalls++
			if r.Header.Get("Authorization") != "Bearer tok-new" {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "Token expired"})
				return
			}
			json.NewEncoder(w).Encode(models.Availability{Available: true})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	tokens := &memoryTokens{access: "tok-stale", refresh: "ref-old"}
	client := NewClient(srv.URL, tokens)

	avail, err := client.CheckAvailability(context.Background(), "evt-1", 1)
	require.NoError(t, err)
	assert.True(t, avail.Available)
	assert.Equal(t, 1, refreshCalls, "exactly one refresh")
	assert.Equal(t, 2, bookingCalls, "original request retried once")
	assert.Equal(t, "tok-new", tokens.AccessToken())
	assert.Equal(t, "ref-new", tokens.RefreshToken())
	assert.Equal(t, 1, tokens.updates)
}

func TestClientFailedRefreshSurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/user/auth/refresh" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "Invalid refresh token"})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "Token expired"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, &memoryTokens{access: "tok", refresh: "ref"})
	_, err := client.CheckAvailability(context.Background(), "evt-1", 1)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid refresh token", apiErr.Message)
}

func TestClientDecodesErrorBody(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"error field", http.StatusConflict, `{"error":"Not enough seats available"}`, "Not enough seats available"},
		{"message field", http.StatusBadRequest, `{"message":"quantity out of range"}`, "quantity out of range"},
		{"invalid json", http.StatusInternalServerError, `boom`, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(srv.URL, nil)
			_, err := client.GetBooking(context.Background(), "bkg-1")
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestGetWaitlistPositionNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Not in waitlist for this event"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.GetWaitlistPosition(context.Background(), "evt-1")
	assert.ErrorIs(t, err, models.ErrNotOnWaitlist)
}

func TestGetWaitlistPositionOfferedWindow(t *testing.T) {
	offeredAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expiresAt := offeredAt.Add(2 * time.Minute)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "evt-1", r.URL.Query().Get("event_id"))
		json.NewEncoder(w).Encode(models.WaitlistEntry{
			Status:            models.WaitlistStatusOffered,
			Position:          1,
			TotalWaiting:      4,
			QuantityRequested: 2,
			OfferedAt:         &offeredAt,
			ExpiresAt:         &expiresAt,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	entry, err := client.GetWaitlistPosition(context.Background(), "evt-1")
	require.NoError(t, err)
	require.True(t, entry.Offered())
	assert.Equal(t, 2, entry.QuantityRequested)
	assert.True(t, entry.ExpiresAt.Equal(expiresAt))
}

func TestReserveBackfillsRequestFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.ReserveRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "user-1-booking-evt-1-42", req.IdempotencyKey)
		// The server response omits event_id and quantity.
		json.NewEncoder(w).Encode(map[string]any{
			"reservation_id":    "res-1",
			"booking_reference": "EVT-100",
			"total_amount":      50.0,
			"expires_at":        time.Now().Add(5 * time.Minute),
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	res, err := client.Reserve(context.Background(), models.ReserveRequest{
		EventID:        "evt-1",
		Quantity:       2,
		IdempotencyKey: "user-1-booking-evt-1-42",
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", res.EventID)
	assert.Equal(t, 2, res.Quantity)
	assert.Equal(t, "res-1", res.ReservationID)
}

func TestReserveValidatesLocally(t *testing.T) {
	client := NewClient("http://unused.invalid", nil)
	_, err := client.Reserve(context.Background(), models.ReserveRequest{
		EventID:  "evt-1",
		Quantity: models.MaxTicketsPerRequest + 1,
	})
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)
}
