package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketflow/internal/models"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestStoreCredentialsSurviveReopen(t *testing.T) {
	s, path := openTestStore(t)

	assert.False(t, s.Authenticated())
	assert.Nil(t, s.CurrentUser())

	user := models.User{UserID: "user-1", Email: "demo@example.com", Name: "Demo User"}
	require.NoError(t, s.SaveCredentials(user, "tok-a", "ref-a"))
	assert.True(t, s.Authenticated())
	assert.Equal(t, "tok-a", s.AccessToken())
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	assert.True(t, reopened.Authenticated())
	assert.Equal(t, "tok-a", reopened.AccessToken())
	assert.Equal(t, "ref-a", reopened.RefreshToken())
	require.NotNil(t, reopened.CurrentUser())
	assert.Equal(t, "demo@example.com", reopened.CurrentUser().Email)
}

func TestStoreUpdateTokensKeepsUser(t *testing.T) {
	s, _ := openTestStore(t)

	user := models.User{UserID: "user-1", Email: "demo@example.com", Name: "Demo User"}
	require.NoError(t, s.SaveCredentials(user, "tok-a", "ref-a"))
	require.NoError(t, s.UpdateTokens("tok-b", "ref-b"))

	assert.Equal(t, "tok-b", s.AccessToken())
	assert.Equal(t, "ref-b", s.RefreshToken())
	require.NotNil(t, s.CurrentUser())
	assert.Equal(t, "user-1", s.CurrentUser().UserID)
}

func TestStoreClear(t *testing.T) {
	s, _ := openTestStore(t)

	user := models.User{UserID: "user-1", Email: "demo@example.com"}
	require.NoError(t, s.SaveCredentials(user, "tok-a", "ref-a"))
	require.NoError(t, s.Clear())

	assert.False(t, s.Authenticated())
	assert.Empty(t, s.AccessToken())
	assert.Empty(t, s.RefreshToken())
	assert.Nil(t, s.CurrentUser())
}

func TestStoreReservationRoundTrip(t *testing.T) {
	s, _ := openTestStore(t)

	loaded, _, err := s.LoadReservation("evt-1")
	require.NoError(t, err)
	assert.Nil(t, loaded, "no persisted hold yet")

	expires := time.Date(2025, 6, 1, 12, 5, 0, 123456789, time.UTC)
	res := &models.Reservation{
		ReservationID:    "res-1",
		EventID:          "evt-1",
		BookingReference: "EVT-100",
		Quantity:         2,
		TotalAmount:      50.00,
		ExpiresAt:        expires,
	}
	require.NoError(t, s.SaveReservation("evt-1", res, true))

	loaded, fromOffer, err := s.LoadReservation("evt-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, fromOffer)
	assert.Equal(t, "res-1", loaded.ReservationID)
	assert.Equal(t, "evt-1", loaded.EventID)
	assert.Equal(t, 2, loaded.Quantity)
	assert.Equal(t, 50.00, loaded.TotalAmount)
	assert.True(t, loaded.ExpiresAt.Equal(expires), "expiry preserved to the nanosecond")

	// Re-saving the same event replaces the hold.
	res.ReservationID = "res-2"
	require.NoError(t, s.SaveReservation("evt-1", res, false))
	loaded, fromOffer, err = s.LoadReservation("evt-1")
	require.NoError(t, err)
	assert.Equal(t, "res-2", loaded.ReservationID)
	assert.False(t, fromOffer)

	require.NoError(t, s.ClearReservation("evt-1"))
	loaded, _, err = s.LoadReservation("evt-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestTokenExpiry(t *testing.T) {
	expires := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	got, err := TokenExpiry(signedToken(t, expires))
	require.NoError(t, err)
	assert.True(t, got.Equal(expires))

	_, err = TokenExpiry("not-a-jwt")
	assert.Error(t, err)
}

func TestTokenStale(t *testing.T) {
	s, _ := openTestStore(t)
	now := time.Now()

	assert.True(t, s.TokenStale(now), "no token is stale")

	user := models.User{UserID: "user-1", Email: "demo@example.com"}
	require.NoError(t, s.SaveCredentials(user, signedToken(t, now.Add(time.Minute)), "ref"))
	assert.False(t, s.TokenStale(now))
	assert.True(t, s.TokenStale(now.Add(2*time.Minute)))

	// Opaque tokens are passed through for the server to judge.
	require.NoError(t, s.UpdateTokens("opaque-token", "ref"))
	assert.False(t, s.TokenStale(now))
}
