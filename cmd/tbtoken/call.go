package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/Cruz1122/thingsboard/internal/config"
	"github.com/Cruz1122/thingsboard/internal/httpclient"
	"github.com/Cruz1122/thingsboard/internal/metrics"
	"github.com/Cruz1122/thingsboard/internal/output"
	"github.com/Cruz1122/thingsboard/internal/runner"
	"github.com/Cruz1122/thingsboard/internal/tracing"
)

const (
	maxLoggedBodyBytes = 1024
	progressInterval   = time.Second
	baseRetryDelay     = 100 * time.Millisecond
	maxRetryDelay      = 5 * time.Second
)

func newCallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Send authenticated requests to an API path",
		Long: `Send one or more requests to --path with a bearer token from the guard.
With --concurrency above one, every worker shares the same token: at most one
login or refresh is in flight at a time.`,
		Args: cobra.NoArgs,
		RunE: runCall,
	}
	config.RegisterCallFlags(cmd)
	return cmd
}

func runCall(cmd *cobra.Command, _ []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.cfg.ValidateCall(); err != nil {
		return err
	}
	if s.cfg.Call.Concurrency > config.HighConcurrency {
		s.logger.Warn("high concurrency configured, every worker shares one token but the API may throttle",
			slog.Int("workers", s.cfg.Call.Concurrency))
	}
	builder, err := httpclient.NewRequestBuilder(s.cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	client := httpclient.NewAuthenticatedClient(s.cfg.Timeout, s.guard.TokenSource(ctx))
	collector := metrics.NewCollector()

	var requester runner.Requester = &apiRequester{
		client:  client,
		builder: builder,
		path:    s.cfg.Call.Path,
		tracer:  s.tracing.Tracer(),
	}
	requester = runner.WithLogging(requester, &slogFailureLogger{logger: s.logger})
	if s.cfg.Call.Retries > 0 {
		requester = runner.WithRetry(requester, newRetryPolicy(s.cfg.Call.Retries))
	}

	r := runner.New(runner.Options{
		Concurrency:   s.cfg.Call.Concurrency,
		TotalRequests: s.cfg.Call.Total,
		RatePerSecond: s.cfg.Call.Rate,
		Requester:     requester,
		Observer:      collector,
	})

	var progress *output.ProgressReporter
	if s.format == output.FormatText && s.cfg.Call.Total > 1 {
		progress = output.NewProgressReporter(collector, s.recorder, progressInterval, cmd.ErrOrStderr())
		progress.Start()
	}

	result := r.Run(ctx)

	if progress != nil {
		progress.Stop()
		fmt.Fprintln(cmd.ErrOrStderr())
	}

	report := output.CallReport{
		Target: builder.Method() + " " + builder.Target(),
		API:    collector.Stats(result.Duration),
		Auth:   s.recorder.Stats(result.Duration),
	}
	if err := output.WriteReport(cmd.OutOrStdout(), report, s.format); err != nil {
		return err
	}

	if result.Errors > 0 {
		return fmt.Errorf("%d of %d requests failed", result.Errors, result.Total)
	}
	return nil
}

// apiRequester implements runner.Requester with an authenticated client.
type apiRequester struct {
	client  *http.Client
	builder *httpclient.RequestBuilder
	path    string
	tracer  trace.Tracer
}

func (r *apiRequester) Do(ctx context.Context) error {
	ctx, span := tracing.StartRequestSpan(ctx, r.tracer, r.builder.Method(), r.path)
	err := r.do(ctx)
	tracing.EndSpan(span, err)
	return err
}

func (r *apiRequester) do(ctx context.Context) error {
	req, err := r.builder.Build(ctx)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBodyBytes))
		_, _ = io.Copy(io.Discard, resp.Body)
		return &runner.HTTPError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// slogFailureLogger reports failed requests through the command logger.
type slogFailureLogger struct {
	logger *slog.Logger
}

func (l *slogFailureLogger) LogFailure(err error) {
	l.logger.Warn("request failed", slog.String("error", err.Error()))
}

// newRetryPolicy retries transient failures with capped exponential backoff
// plus up to 50% jitter.
func newRetryPolicy(retries int) runner.RetryPolicy {
	backoff := runner.ExponentialBackoff(baseRetryDelay, maxRetryDelay)
	return runner.RetryPolicy{
		MaxAttempts: retries + 1,
		ShouldRetry: runner.RetryTransient,
		DelayFunc: func(attempt int, err error) time.Duration {
			delay := backoff(attempt, err)
			if half := int64(delay / 2); half > 0 {
				delay += time.Duration(rand.Int64N(half))
			}
			return delay
		},
	}
}
