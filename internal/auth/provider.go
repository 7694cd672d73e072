package auth

import (
	"context"
	"time"
)

// Transport executes the login and refresh calls against the authentication
// service. Both methods return the raw JSON response body on success and an
// error for network failures and non-2xx responses. Errors that carry an
// HTTP status should implement HTTPStatus() int.
type Transport interface {
	PostLogin(ctx context.Context, baseURL, username, password string) ([]byte, error)
	PostRefresh(ctx context.Context, baseURL, refreshToken string) ([]byte, error)
}

// Recorder receives guard activity for metrics.
type Recorder interface {
	// RecordAuth records one login or refresh round-trip.
	RecordAuth(op string, latency time.Duration, err error)

	// RecordCacheHit records a token served from cache. It is called on the
	// lock-free path and must be cheap.
	RecordCacheHit()
}

type noopRecorder struct{}

func (noopRecorder) RecordAuth(string, time.Duration, error) {}
func (noopRecorder) RecordCacheHit()                         {}
