// Package rest implements the gateway against the hosted backend service:
// generated table REST endpoints under /rest/v1, the auth service under
// /auth/v1, and object storage under /storage/v1.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"lumigram/internal/gateway"
)

// Client is a configured handle to the remote service. One Client implements
// the whole gateway surface (TableStore, BlobStore, Authenticator) because
// the hosted product exposes all three behind a single base URL and API key.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client

	mu      sync.RWMutex
	session *gateway.Session
	subs    []func(*gateway.Session)
}

// New creates a Client for the service at baseURL authenticated by apiKey.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// bearerToken returns the session access token when signed in, otherwise the
// API key. The table and storage endpoints accept either.
func (c *Client) bearerToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session != nil {
		return c.session.AccessToken
	}
	return c.apiKey
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.bearerToken())
	return req, nil
}

// do executes the request and decodes a success body into dest when dest is
// non-nil. Non-2xx responses are mapped onto the gateway error taxonomy.
func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if dest == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiError is the error body shape used across the hosted service's APIs.
type apiError struct {
	Message string `json:"message"`
	Msg     string `json:"msg"`
	Code    string `json:"code"`
}

func decodeError(resp *http.Response) error {
	var body apiError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	json.Unmarshal(raw, &body)

	msg := body.Message
	if msg == "" {
		msg = body.Msg
	}
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", gateway.ErrUnauthorized, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", gateway.ErrNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", gateway.ErrConflict, msg)
	}
	// The table API reports unique violations with their SQLSTATE code.
	if body.Code == "23505" {
		return fmt.Errorf("%w: %s", gateway.ErrConflict, msg)
	}
	return fmt.Errorf("backend error (status %d): %s", resp.StatusCode, msg)
}

func (c *Client) setSession(s *gateway.Session) {
	c.mu.Lock()
	c.session = s
	subs := make([]func(*gateway.Session), len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}

// OnChange registers a callback fired on sign-in and sign-out.
func (c *Client) OnChange(fn func(*gateway.Session)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}
