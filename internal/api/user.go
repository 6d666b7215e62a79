package api

import (
	"context"
	"net/http"
	"net/url"

	"ticketflow/internal/models"
)

// TokenPair is an access/refresh token pair issued by the user
// service.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// LoginResponse is the user service's answer to a successful login.
type LoginResponse struct {
	TokenPair
	User models.User `json:"user"`
}

// Login authenticates with the user service. It does not store the
// returned tokens; that is the session store's job.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	req := map[string]string{"email": email, "password": password}
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, userRoute+"/auth/login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout revokes the refresh token server-side.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	req := map[string]string{"refresh_token": refreshToken}
	return c.do(ctx, http.MethodPost, userRoute+"/auth/logout", req, nil)
}

// GetEvent fetches a single event from the event service.
func (c *Client) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	path := eventRoute + "/events/" + url.PathEscape(eventID)
	if err := c.do(ctx, http.MethodGet, path, nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
