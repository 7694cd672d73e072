package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Cruz1122/thingsboard/internal/httpclient"
)

var testKey = []byte("guard-test-key")

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeClock is a settable Clock that counts how often it is read.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	reads atomic.Int64
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.reads.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// mockTransport counts calls and answers with the configured handlers.
type mockTransport struct {
	loginCalls   int32
	refreshCalls int32
	closed       int32

	login   func(username, password string) ([]byte, error)
	refresh func(refreshToken string) ([]byte, error)

	mu              sync.Mutex
	lastUsername    string
	lastPassword    string
	lastRefresh     string
	lastBaseURL     string
	blockUntilClose chan struct{}
}

func (m *mockTransport) PostLogin(ctx context.Context, baseURL, username, password string) ([]byte, error) {
	atomic.AddInt32(&m.loginCalls, 1)
	m.mu.Lock()
	m.lastBaseURL, m.lastUsername, m.lastPassword = baseURL, username, password
	block := m.blockUntilClose
	m.mu.Unlock()
	if block != nil {
		<-block
	}
	return m.login(username, password)
}

func (m *mockTransport) PostRefresh(ctx context.Context, baseURL, refreshToken string) ([]byte, error) {
	atomic.AddInt32(&m.refreshCalls, 1)
	m.mu.Lock()
	m.lastBaseURL, m.lastRefresh = baseURL, refreshToken
	block := m.blockUntilClose
	m.mu.Unlock()
	if block != nil {
		<-block
	}
	return m.refresh(refreshToken)
}

func (m *mockTransport) Close() error {
	atomic.AddInt32(&m.closed, 1)
	return nil
}

func (m *mockTransport) logins() int32    { return atomic.LoadInt32(&m.loginCalls) }
func (m *mockTransport) refreshes() int32 { return atomic.LoadInt32(&m.refreshCalls) }

// issuer mints token pairs relative to a clock, the way the server would.
type issuer struct {
	t          *testing.T
	clock      Clock
	accessTTL  time.Duration
	refreshTTL time.Duration // zero: no refresh token in responses
	serial     atomic.Int64
}

func (i *issuer) pair() []byte {
	now := i.clock.Now()
	body := map[string]any{"token": i.mint(now, i.accessTTL)}
	if i.refreshTTL > 0 {
		body["refreshToken"] = i.mint(now, i.refreshTTL)
	}
	data, err := json.Marshal(body)
	if err != nil {
		i.t.Fatalf("marshal token response: %v", err)
	}
	return data
}

func (i *issuer) mint(issuedAt time.Time, ttl time.Duration) string {
	return mintToken(i.t, issuedAt, ttl, i.serial.Add(1))
}

// mintToken signs a JWT with the given issued-at time. A zero ttl leaves out
// the exp claim. serial becomes a numeric jti, which keeps tokens minted in
// the same second distinct.
func mintToken(t *testing.T, issuedAt time.Time, ttl time.Duration, serial int64) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": "tenant@thingsboard.org",
		"iat": issuedAt.Unix(),
		"jti": serial,
	}
	if ttl > 0 {
		claims["exp"] = issuedAt.Add(ttl).Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func rejected(op string) error {
	return &httpclient.StatusError{URL: "http://tb.local/api/auth/" + op, StatusCode: http.StatusUnauthorized, Body: `{"message":"Token has expired"}`}
}

func unavailable() error {
	return &httpclient.StatusError{URL: "http://tb.local/api/auth/token", StatusCode: http.StatusServiceUnavailable}
}
