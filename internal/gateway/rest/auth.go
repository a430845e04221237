package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"lumigram/internal/gateway"
)

// tokenResponse is the auth service's token grant response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	User        struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func (t *tokenResponse) session() *gateway.Session {
	return &gateway.Session{
		UserID:      t.User.ID,
		Email:       t.User.Email,
		AccessToken: t.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(t.ExpiresIn) * time.Second),
	}
}

// CurrentSession returns the session held by this client, or (nil, nil) when
// signed out or expired.
func (c *Client) CurrentSession(ctx context.Context) (*gateway.Session, error) {
	c.mu.RLock()
	s := c.session
	c.mu.RUnlock()
	if s == nil || s.Expired() {
		return nil, nil
	}
	return s, nil
}

// RestoreSession adopts a previously issued access token, e.g. one persisted
// by an earlier run. The token is not verified here (the client does not hold
// the signing secret); identity and expiry are read from its claims and the
// backend remains the authority on every subsequent call.
func (c *Client) RestoreSession(accessToken string) error {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return fmt.Errorf("parse access token: %w", err)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return fmt.Errorf("access token has no subject claim")
	}
	email, _ := claims["email"].(string)

	session := &gateway.Session{
		UserID:      sub,
		Email:       email,
		AccessToken: accessToken,
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		session.ExpiresAt = exp.Time
	}
	if session.Expired() {
		return fmt.Errorf("access token expired at %s", session.ExpiresAt.Format(time.RFC3339))
	}

	c.setSession(session)
	return nil
}

// SignIn exchanges email/password credentials for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*gateway.Session, error) {
	session, err := c.tokenRequest(ctx, c.baseURL+"/auth/v1/token?grant_type=password", email, password)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	c.setSession(session)
	return session, nil
}

// SignUp registers a new account and signs it in.
func (c *Client) SignUp(ctx context.Context, email, password string) (*gateway.Session, error) {
	session, err := c.tokenRequest(ctx, c.baseURL+"/auth/v1/signup", email, password)
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}
	c.setSession(session)
	return session, nil
}

// SignOut revokes the session at the auth service and clears local state.
// Local state is cleared even when the revoke call fails.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.RLock()
	s := c.session
	c.mu.RUnlock()
	if s == nil {
		return nil
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		return err
	}
	err = c.do(req, nil)
	c.setSession(nil)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

func (c *Client) tokenRequest(ctx context.Context, url, email, password string) (*gateway.Session, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var token tokenResponse
	if err := c.do(req, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("auth service returned no access token")
	}
	return token.session(), nil
}
