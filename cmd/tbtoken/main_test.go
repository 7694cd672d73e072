package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Cruz1122/thingsboard/internal/auth"
	"github.com/Cruz1122/thingsboard/internal/output"
)

const (
	testUser     = "tenant@thingsboard.org"
	testPassword = "tenant"
)

var signingKey = []byte("test-signing-key")

// fakeAPI mimics the login, refresh and a protected endpoint of the API.
type fakeAPI struct {
	*httptest.Server
	logins    atomic.Int32
	refreshes atomic.Int32
	calls     atomic.Int32
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		api.logins.Add(1)
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, `{"message":"bad request"}`, http.StatusBadRequest)
			return
		}
		if body.Username != testUser || body.Password != testPassword {
			http.Error(w, `{"message":"Invalid username or password"}`, http.StatusUnauthorized)
			return
		}
		writePair(t, w)
	})
	mux.HandleFunc("POST /api/auth/token", func(w http.ResponseWriter, r *http.Request) {
		api.refreshes.Add(1)
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !validToken(body.RefreshToken) {
			http.Error(w, `{"message":"Token has expired"}`, http.StatusUnauthorized)
			return
		}
		writePair(t, w)
	})
	mux.HandleFunc("GET /api/auth/user", func(w http.ResponseWriter, r *http.Request) {
		api.calls.Add(1)
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || !validToken(token) {
			http.Error(w, `{"message":"Authentication failed"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"email":"` + testUser + `"}`))
	})
	api.Server = httptest.NewServer(mux)
	t.Cleanup(api.Close)
	return api
}

func writePair(t *testing.T, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"token":        mintToken(t, time.Now(), 15*time.Minute),
		"refreshToken": mintToken(t, time.Now(), 7*24*time.Hour),
	})
}

func mintToken(t *testing.T, issuedAt time.Time, ttl time.Duration) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   testUser,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
	}).SignedString(signingKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func validToken(token string) bool {
	_, err := jwt.Parse(token, func(*jwt.Token) (interface{}, error) {
		return signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	return err == nil
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func loginArgs(api *fakeAPI, cmd string, extra ...string) []string {
	args := []string{cmd, "--base-url", api.URL, "-u", testUser, "-p", testPassword}
	return append(args, extra...)
}

func TestTokenCommandLogsIn(t *testing.T) {
	api := newFakeAPI(t)

	stdout, stderr, err := runCLI(t, loginArgs(api, "token")...)
	if err != nil {
		t.Fatalf("token command failed: %v\nstderr: %s", err, stderr)
	}
	token := strings.TrimSpace(stdout)
	if !validToken(token) {
		t.Fatalf("printed token %q is not a server-issued JWT", token)
	}
	if got := api.logins.Load(); got != 1 {
		t.Errorf("logins = %d, want 1", got)
	}
	if !strings.Contains(stderr, "login succeeded") {
		t.Errorf("expected login log line on stderr, got %q", stderr)
	}
}

func TestTokenCommandServesSeedToken(t *testing.T) {
	api := newFakeAPI(t)
	seed := mintToken(t, time.Now(), time.Hour)

	stdout, _, err := runCLI(t, "token", "--base-url", api.URL, "--access-token", seed)
	if err != nil {
		t.Fatalf("token command failed: %v", err)
	}
	if strings.TrimSpace(stdout) != seed {
		t.Errorf("token = %q, want the seed token", strings.TrimSpace(stdout))
	}
	if got := api.logins.Load(); got != 0 {
		t.Errorf("logins = %d, want 0 while the seed token is valid", got)
	}
}

func TestTokenCommandExpiredSeedLogsIn(t *testing.T) {
	api := newFakeAPI(t)
	seed := mintToken(t, time.Now().Add(-2*time.Hour), time.Hour)

	stdout, _, err := runCLI(t, loginArgs(api, "token", "--access-token", seed)...)
	if err != nil {
		t.Fatalf("token command failed: %v", err)
	}
	if strings.TrimSpace(stdout) == seed {
		t.Error("expired seed token was served")
	}
	if got := api.logins.Load(); got != 1 {
		t.Errorf("logins = %d, want 1", got)
	}
}

func TestTokenCommandJSONOutput(t *testing.T) {
	api := newFakeAPI(t)

	stdout, _, err := runCLI(t, loginArgs(api, "token", "-o", "json")...)
	if err != nil {
		t.Fatalf("token command failed: %v", err)
	}
	var got output.TokenOutput
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	if !validToken(got.Token) {
		t.Errorf("token %q is not valid", got.Token)
	}
	if got.ExpiresAt.IsZero() {
		t.Error("expected expires_at to be set")
	}
}

func TestTokenCommandRejectedCredentials(t *testing.T) {
	api := newFakeAPI(t)

	_, _, err := runCLI(t, "token", "--base-url", api.URL, "-u", testUser, "-p", "wrong")
	if err == nil {
		t.Fatal("expected error for rejected credentials")
	}
	var authErr *auth.AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationError, got %T: %v", err, err)
	}
	if authErr.Op != auth.OpLogin || authErr.StatusCode != http.StatusUnauthorized || !authErr.Rejected() {
		t.Errorf("unexpected error details: %+v", authErr)
	}
}

func TestValidationFailsWithoutCredentials(t *testing.T) {
	t.Setenv("TBTOKEN_PASSWORD", "")
	t.Setenv("TBTOKEN_ACCESS_TOKEN", "")

	_, _, err := runCLI(t, "token", "--base-url", "http://127.0.0.1:1")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "username is required") {
		t.Errorf("error = %v, want username requirement", err)
	}
}

func TestUnknownOutputFormat(t *testing.T) {
	api := newFakeAPI(t)

	_, _, err := runCLI(t, loginArgs(api, "status", "-o", "xml")...)
	if err == nil || !strings.Contains(err.Error(), "unsupported output format") {
		t.Fatalf("expected format error, got %v", err)
	}
	if api.logins.Load() != 0 {
		t.Error("no login should happen when the command line is invalid")
	}
}

func TestStatusCommandJSON(t *testing.T) {
	api := newFakeAPI(t)

	stdout, _, err := runCLI(t, loginArgs(api, "status", "-o", "json")...)
	if err != nil {
		t.Fatalf("status command failed: %v", err)
	}
	var status auth.Status
	if err := json.Unmarshal([]byte(stdout), &status); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	if !status.HasToken || !status.HasRefreshToken {
		t.Errorf("status = %+v, want both tokens held", status)
	}
	if !strings.HasSuffix(status.TokenPrefix, "...") {
		t.Errorf("token prefix %q should be truncated", status.TokenPrefix)
	}
	if !status.ExpiresAt.Before(status.RefreshExpiresAt) {
		t.Errorf("access token should expire before the refresh token: %+v", status)
	}
}

func TestStatusCommandRefresh(t *testing.T) {
	api := newFakeAPI(t)

	stdout, _, err := runCLI(t, loginArgs(api, "status", "--refresh")...)
	if err != nil {
		t.Fatalf("status --refresh failed: %v", err)
	}
	if api.logins.Load() != 1 || api.refreshes.Load() != 1 {
		t.Errorf("logins=%d refreshes=%d, want 1 each", api.logins.Load(), api.refreshes.Load())
	}
	if !strings.Contains(stdout, "Clock skew:") {
		t.Errorf("text status missing clock skew:\n%s", stdout)
	}
}

func TestInspectCommand(t *testing.T) {
	issued := time.Now().Add(-time.Minute).Truncate(time.Second)
	token := mintToken(t, issued, time.Hour)

	stdout, _, err := runCLI(t, "inspect", token, "-o", "json")
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	var claims output.TokenClaims
	if err := json.Unmarshal([]byte(stdout), &claims); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	if !claims.IssuedAt.Equal(issued) {
		t.Errorf("issued_at = %v, want %v", claims.IssuedAt, issued)
	}
	if claims.Lifetime != "1h0m0s" || claims.Expired {
		t.Errorf("claims = %+v", claims)
	}
}

func TestInspectCommandReadsStdin(t *testing.T) {
	token := mintToken(t, time.Now().Add(-2*time.Hour), time.Hour)

	var stdout, stderr bytes.Buffer
	root := newRootCommand(&stdout, &stderr)
	root.SetIn(strings.NewReader("Bearer " + token + "\n"))
	root.SetArgs([]string{"inspect", "-"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "Expired:           true") {
		t.Errorf("expected expired token report, got:\n%s", stdout.String())
	}
}

func TestInspectCommandRejectsGarbage(t *testing.T) {
	_, _, err := runCLI(t, "inspect", "not-a-jwt")
	var formatErr *auth.TokenFormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("expected TokenFormatError, got %v", err)
	}
}

func TestCallCommandSharesOneLogin(t *testing.T) {
	api := newFakeAPI(t)

	stdout, stderr, err := runCLI(t, loginArgs(api, "call",
		"--path", "/api/auth/user", "-n", "40", "-c", "8", "-o", "json")...)
	if err != nil {
		t.Fatalf("call failed: %v\nstderr: %s", err, stderr)
	}
	if got := api.logins.Load(); got != 1 {
		t.Errorf("logins = %d, want exactly 1 across all workers", got)
	}
	if got := api.calls.Load(); got != 40 {
		t.Errorf("calls = %d, want 40", got)
	}

	var report output.CallReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("invalid JSON report %q: %v", stdout, err)
	}
	if report.API.Successes != 40 || report.API.Failures != 0 {
		t.Errorf("api stats = %+v", report.API)
	}
	if report.Auth.Operations["login"].Total != 1 {
		t.Errorf("auth stats = %+v, want one login", report.Auth)
	}
	if report.Auth.CacheHits < 32 {
		t.Errorf("cache hits = %d, want at least 32", report.Auth.CacheHits)
	}
	if !strings.HasSuffix(report.Target, "/api/auth/user") {
		t.Errorf("target = %q", report.Target)
	}
}

func TestCallCommandReportsFailures(t *testing.T) {
	api := newFakeAPI(t)

	stdout, _, err := runCLI(t, loginArgs(api, "call", "--path", "/api/missing", "-n", "3", "-o", "json")...)
	if err == nil || !strings.Contains(err.Error(), "3 of 3 requests failed") {
		t.Fatalf("expected failure summary error, got %v", err)
	}
	var report output.CallReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("invalid JSON report %q: %v", stdout, err)
	}
	if report.API.StatusCodes["404"] != 3 {
		t.Errorf("status codes = %v, want three 404s", report.API.StatusCodes)
	}
}

func TestCallCommandRequiresPath(t *testing.T) {
	api := newFakeAPI(t)

	_, _, err := runCLI(t, loginArgs(api, "call")...)
	if err == nil || !strings.Contains(err.Error(), "path is required") {
		t.Fatalf("expected path validation error, got %v", err)
	}
}

func TestNewRetryPolicy(t *testing.T) {
	policy := newRetryPolicy(2)
	if policy.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", policy.MaxAttempts)
	}
	for attempt := 1; attempt <= 10; attempt++ {
		delay := policy.DelayFunc(attempt, nil)
		if delay < baseRetryDelay || delay > maxRetryDelay*3/2 {
			t.Errorf("attempt %d delay %v out of range", attempt, delay)
		}
	}
	if policy.ShouldRetry(&auth.AuthenticationError{Op: auth.OpLogin, StatusCode: http.StatusUnauthorized}) {
		t.Error("rejected credentials must not be retried")
	}
}

func TestCallCommandWarnsOnHighConcurrency(t *testing.T) {
	api := newFakeAPI(t)

	_, stderr, err := runCLI(t, loginArgs(api, "call",
		"--path", "/api/auth/user", "-n", "1", "-c", "501", "-o", "json")...)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if !strings.Contains(stderr, "high concurrency configured") || !strings.Contains(stderr, "workers=501") {
		t.Errorf("expected high concurrency warning through the logger, got %q", stderr)
	}
}
