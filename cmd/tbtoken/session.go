package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Cruz1122/thingsboard/internal/auth"
	"github.com/Cruz1122/thingsboard/internal/config"
	"github.com/Cruz1122/thingsboard/internal/httpclient"
	"github.com/Cruz1122/thingsboard/internal/logging"
	"github.com/Cruz1122/thingsboard/internal/metrics"
	"github.com/Cruz1122/thingsboard/internal/output"
	"github.com/Cruz1122/thingsboard/internal/tracing"
)

const shutdownTimeout = 5 * time.Second

// session holds everything a command needs to talk to the API with a
// guarded token.
type session struct {
	cfg      *config.Config
	format   output.Format
	logger   *slog.Logger
	tracing  *tracing.Provider
	recorder *metrics.AuthRecorder
	guard    *auth.Guard
}

// newSession loads and validates configuration, then wires logging, tracing
// and the token guard. Callers must Close the session.
func newSession(cmd *cobra.Command) (*session, error) {
	format, err := outputFormat(cmd)
	if err != nil {
		return nil, err
	}

	cfg, err := config.NewLoader().Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.WithCommand(logging.Setup(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	}), cmd.Name())

	provider, err := tracing.Init(cmd.Context(), cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	transport := httpclient.NewTransport(
		httpclient.NewClient(cfg.Timeout),
		httpclient.WithTracePropagation(provider.ShouldPropagate()),
	)
	recorder := metrics.NewAuthRecorder()
	guard, err := auth.New(cfg.BaseURL, transport, cfg.AccessToken,
		auth.WithRequestMargin(cfg.RequestMargin),
		auth.WithLoginFallback(cfg.LoginFallback),
		auth.WithLogger(logger),
		auth.WithRecorder(recorder),
		auth.WithTracer(provider.Tracer()),
	)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}
	guard.SetCredentials(cfg.Username, cfg.Password)

	return &session{
		cfg:      cfg,
		format:   format,
		logger:   logger,
		tracing:  provider,
		recorder: recorder,
		guard:    guard,
	}, nil
}

// Close releases the guard's transport and flushes pending spans.
func (s *session) Close() {
	if err := s.guard.Close(); err != nil {
		s.logger.Debug("closing token guard", slog.String("error", err.Error()))
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.tracing.Shutdown(ctx); err != nil {
		s.logger.Warn("tracing shutdown failed", slog.String("error", err.Error()))
	}
}

func outputFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(value)
}
