package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Cruz1122/thingsboard/internal/tracing"
)

const (
	LoginPath   = "/api/auth/login"
	RefreshPath = "/api/auth/token"

	maxResponseBytes = 1 << 20
)

// StatusError is returned for a non-2xx response from the auth endpoints.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("POST %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("POST %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

// Transport performs the login and refresh calls over HTTP with JSON bodies.
type Transport struct {
	client    *http.Client
	propagate bool
}

type TransportOption func(*Transport)

// WithTracePropagation injects W3C trace context into auth requests.
func WithTracePropagation(enabled bool) TransportOption {
	return func(t *Transport) {
		t.propagate = enabled
	}
}

// NewTransport wraps client; a nil client gets NewClient defaults.
func NewTransport(client *http.Client, opts ...TransportOption) *Transport {
	if client == nil {
		client = NewClient(0)
	}
	t := &Transport{client: client}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// PostLogin posts the credentials to the login endpoint and returns the raw
// response body.
func (t *Transport) PostLogin(ctx context.Context, baseURL, username, password string) ([]byte, error) {
	return t.post(ctx, baseURL+LoginPath, loginRequest{Username: username, Password: password})
}

// PostRefresh exchanges a refresh token and returns the raw response body.
func (t *Transport) PostRefresh(ctx context.Context, baseURL, refreshToken string) ([]byte, error) {
	return t.post(ctx, baseURL+RefreshPath, refreshRequest{RefreshToken: refreshToken})
}

// Close drops idle connections.
func (t *Transport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func (t *Transport) post(ctx context.Context, url string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}
	return data, nil
}
