package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry extracts the expiry claim from a JWT without verifying
// its signature. The server is the verifier; the client only wants to
// know whether a token is already stale before spending a round trip
// on it.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("token has no expiry claim")
	}
	return claims.ExpiresAt.Time, nil
}

// TokenStale reports whether the stored access token is missing or
// already past its expiry claim.
func (s *Store) TokenStale(now time.Time) bool {
	token := s.AccessToken()
	if token == "" {
		return true
	}
	expiry, err := TokenExpiry(token)
	if err != nil {
		// Opaque tokens are possible; let the server decide.
		return false
	}
	return !now.Before(expiry)
}
