package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/Cruz1122/thingsboard/internal/tracing"
)

// DefaultRequestMargin is how long a token must outlive "now" to be handed
// out. It covers the latency of the request about to use it.
const DefaultRequestMargin = time.Second

const flightKey = "token"

type credentials struct {
	username string
	password string
}

// Guard caches the bearer token of one API connection and renews it on
// demand. A cached token is served without locking; when it is missing or
// about to expire, exactly one caller refreshes it (or logs in again) while
// concurrent callers wait for and share that result.
type Guard struct {
	baseURL   string
	transport Transport
	clock     Clock
	margin    time.Duration
	fallback  bool
	logger    *slog.Logger
	recorder  Recorder
	tracer    trace.Tracer

	mu     sync.Mutex
	flight singleflight.Group
	state  atomic.Pointer[tokenInfo]
	creds  atomic.Pointer[credentials]
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock Clock) Option {
	return func(g *Guard) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithRequestMargin sets the validity margin required of a served token.
// Negative values are treated as zero.
func WithRequestMargin(margin time.Duration) Option {
	return func(g *Guard) {
		if margin < 0 {
			margin = 0
		}
		g.margin = margin
	}
}

// WithLoginFallback controls whether a refresh rejected by the server is
// followed by a fresh login in the same call. Enabled by default.
func WithLoginFallback(enabled bool) Option {
	return func(g *Guard) {
		g.fallback = enabled
	}
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithRecorder reports logins, refreshes and cache hits to r.
func WithRecorder(r Recorder) Option {
	return func(g *Guard) {
		if r != nil {
			g.recorder = r
		}
	}
}

// WithTracer sets the tracer used for login and refresh spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(g *Guard) {
		if tracer != nil {
			g.tracer = tracer
		}
	}
}

// New creates a Guard for the API at baseURL. If accessToken is not empty it
// is served until it expires, so no login happens while it is valid. An
// opaque seed token whose claims cannot be read never expires from the
// guard's point of view.
func New(baseURL string, transport Transport, accessToken string, opts ...Option) (*Guard, error) {
	if transport == nil {
		return nil, errors.New("transport cannot be nil")
	}
	g := &Guard{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		transport: transport,
		clock:     SystemClock,
		margin:    DefaultRequestMargin,
		fallback:  true,
		logger:    slog.Default(),
		recorder:  noopRecorder{},
		tracer:    otel.Tracer("github.com/Cruz1122/thingsboard/internal/auth"),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(slog.String("component", "auth"))

	seed := &tokenInfo{}
	if accessToken != "" {
		seed.mainToken = accessToken
		if c, err := decodeClaims(accessToken); err == nil {
			seed.mainExpiry = c.ExpiresAt
		} else {
			g.logger.Debug("seed token claims unreadable, treating as non-expiring",
				slog.String("error", err.Error()))
		}
	}
	g.state.Store(seed)
	return g, nil
}

// SetCredentials stores the username and password used by future logins.
// It does not contact the server.
func (g *Guard) SetCredentials(username, password string) {
	g.creds.Store(&credentials{username: username, password: password})
}

// EnsureValidToken returns a token that stays valid for at least the request
// margin, logging in or refreshing first when needed. Failures of the login
// or refresh call are returned to every caller that waited for it.
func (g *Guard) EnsureValidToken(ctx context.Context) (string, error) {
	if token, ok := g.cached(); ok {
		g.recorder.RecordCacheHit()
		return token, nil
	}

	v, err, _ := g.flight.Do(flightKey, func() (interface{}, error) {
		g.mu.Lock()
		defer g.mu.Unlock()

		// Another flight may have finished between our check and this one.
		info := g.state.Load()
		deadline := g.deadline(info)
		if info.validAt(deadline) {
			return info.mainToken, nil
		}

		if info.canRefresh(deadline) {
			err := g.refreshLocked(ctx, info.refreshToken)
			if err != nil && !g.shouldFallback(err) {
				return "", err
			}
			if err != nil {
				g.logger.Warn("refresh token rejected, logging in again", slog.String("error", err.Error()))
				if err := g.loginLocked(ctx); err != nil {
					return "", err
				}
			}
		} else if err := g.loginLocked(ctx); err != nil {
			return "", err
		}
		return g.state.Load().mainToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Login authenticates with the stored credentials and replaces the token
// state. On failure the previous state is kept.
func (g *Guard) Login(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loginLocked(ctx)
}

// Refresh exchanges the stored refresh token for a new token pair. It does
// not fall back to Login. On failure the previous state is kept.
func (g *Guard) Refresh(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	refreshToken := g.state.Load().refreshToken
	if refreshToken == "" {
		return &ConfigurationError{Field: "refresh token"}
	}
	return g.refreshLocked(ctx, refreshToken)
}

// MainToken returns the cached access token without validating it.
func (g *Guard) MainToken() string {
	return g.state.Load().mainToken
}

// RefreshToken returns the cached refresh token, or "" if none is held.
func (g *Guard) RefreshToken() string {
	return g.state.Load().refreshToken
}

// ClockSkew returns the last estimate of server time minus local time.
func (g *Guard) ClockSkew() time.Duration {
	return g.state.Load().skew
}

// Status returns a printable snapshot of the token state.
func (g *Guard) Status() Status {
	return g.state.Load().status()
}

// Close releases the transport's resources if it holds any.
func (g *Guard) Close() error {
	if closer, ok := g.transport.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (g *Guard) cached() (string, bool) {
	info := g.state.Load()
	return info.mainToken, info.validAt(g.deadline(info))
}

// deadline is the server-side instant the token must still be valid at.
func (g *Guard) deadline(info *tokenInfo) time.Time {
	return g.clock.Now().Add(info.skew + g.margin)
}

func (g *Guard) shouldFallback(err error) bool {
	if !g.fallback {
		return false
	}
	creds := g.creds.Load()
	if creds == nil || creds.username == "" || creds.password == "" {
		return false
	}
	var authErr *AuthenticationError
	return errors.As(err, &authErr) && authErr.Rejected()
}

func (g *Guard) loginLocked(ctx context.Context) error {
	creds := g.creds.Load()
	if creds == nil || creds.username == "" {
		return &ConfigurationError{Field: "username"}
	}
	if creds.password == "" {
		return &ConfigurationError{Field: "password"}
	}

	ctx, span := tracing.StartAuthSpan(ctx, g.tracer, OpLogin, g.baseURL)
	began := time.Now()
	start := g.clock.Now()
	body, err := g.transport.PostLogin(ctx, g.baseURL, creds.username, creds.password)
	if err != nil {
		err = newAuthenticationError(OpLogin, err)
	} else {
		err = g.apply(start, body)
	}
	g.finish(span, OpLogin, time.Since(began), err)
	return err
}

func (g *Guard) refreshLocked(ctx context.Context, refreshToken string) error {
	ctx, span := tracing.StartAuthSpan(ctx, g.tracer, OpRefresh, g.baseURL)
	began := time.Now()
	start := g.clock.Now()
	body, err := g.transport.PostRefresh(ctx, g.baseURL, refreshToken)
	if err != nil {
		err = newAuthenticationError(OpRefresh, err)
	} else {
		err = g.apply(start, body)
	}
	g.finish(span, OpRefresh, time.Since(began), err)
	return err
}

func (g *Guard) apply(requestStart time.Time, body []byte) error {
	info, err := parseTokenInfo(requestStart, body)
	if err != nil {
		return err
	}
	g.state.Store(info)
	return nil
}

func (g *Guard) finish(span trace.Span, op string, latency time.Duration, err error) {
	g.recorder.RecordAuth(op, latency, err)
	if err != nil {
		g.logger.Warn(op+" failed",
			slog.String("error", err.Error()),
			slog.Duration("latency", latency))
		tracing.EndSpan(span, err)
		return
	}

	info := g.state.Load()
	g.logger.Info(op+" succeeded",
		slog.Time("expires_at", info.mainExpiry),
		slog.Bool("has_refresh_token", info.refreshToken != ""),
		slog.Duration("clock_skew", info.skew),
		slog.Duration("latency", latency))
	g.logger.Debug("token issued", slog.String("token_prefix", tokenPrefix(info.mainToken)))
	tracing.EndSpan(span, nil,
		attribute.Int64("auth.clock_skew_ms", info.skew.Milliseconds()),
		attribute.Bool("auth.has_refresh_token", info.refreshToken != ""))
}
