package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/oauth2"

	"github.com/Cruz1122/thingsboard/internal/config"
	"github.com/Cruz1122/thingsboard/internal/tracing"
)

// RequestIDHeader carries a unique ID for every API request built here.
const RequestIDHeader = "X-Request-Id"

type RequestBuilder struct {
	method    string
	target    string
	headers   http.Header
	body      BodySource
	propagate bool
}

// NewRequestBuilder prepares requests for cfg.Call.Path relative to cfg.BaseURL.
func NewRequestBuilder(cfg *config.Config) (*RequestBuilder, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("base URL is required")
	}
	path := strings.TrimSpace(cfg.Call.Path)
	if path == "" {
		return nil, errors.New("request path is required")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	method := strings.TrimSpace(cfg.Call.Method)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	headers := http.Header{}
	for key, value := range cfg.Call.Headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		if strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		headers.Set(canonicalKey, value)
	}
	if cfg.Call.Body != "" && headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", "application/json")
	}

	return &RequestBuilder{
		method:    method,
		target:    base + path,
		headers:   headers,
		body:      NewBodySource(cfg.Call.Body),
		propagate: cfg.Tracing.ShouldPropagate(),
	}, nil
}

// Method returns the HTTP method of built requests.
func (b *RequestBuilder) Method() string { return b.method }

// Target returns the absolute URL of built requests.
func (b *RequestBuilder) Target() string { return b.target }

// Build creates a fresh request with its own request ID. The Authorization
// header is left to the client's transport.
func (b *RequestBuilder) Build(ctx context.Context) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	reader, err := b.body.NewReader()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, b.method, b.target, reader)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}

	req.Header = make(http.Header, len(b.headers)+1)
	for key, values := range b.headers {
		for _, val := range values {
			req.Header.Add(key, val)
		}
	}
	req.Header.Set(RequestIDHeader, ulid.Make().String())

	if length, ok := b.body.ContentLength(); ok {
		req.ContentLength = length
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return b.body.NewReader()
	}

	if b.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}
	return req, nil
}

func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(),
	}
}

// NewAuthenticatedClient returns a client that sets a bearer token from ts
// on every request. ts is consulted per request and is expected to do its
// own caching.
func NewAuthenticatedClient(timeout time.Duration, ts oauth2.TokenSource) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   newTransport(),
		},
	}
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
