package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// HighConcurrency is the worker count above which the call command warns
// that the API may throttle.
const HighConcurrency = 500

// Environment variables consulted when the matching setting is empty.
const (
	EnvPassword    = "TBTOKEN_PASSWORD"
	EnvAccessToken = "TBTOKEN_ACCESS_TOKEN"
)

type Config struct {
	BaseURL       string        `mapstructure:"base_url"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	AccessToken   string        `mapstructure:"access_token"`
	RequestMargin time.Duration `mapstructure:"request_margin"`
	Timeout       time.Duration `mapstructure:"timeout"`
	LoginFallback bool          `mapstructure:"login_fallback"`
	ConfigFile    string        `mapstructure:"-"`
	Log           LogConfig     `mapstructure:"log"`
	Tracing       TracingConfig `mapstructure:"tracing"`
	Call          CallConfig    `mapstructure:"call"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text or json
}

// TracingConfig configures OTLP span export.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // grpc or http
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether an exporter endpoint is configured, either
// directly or through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	if strings.TrimSpace(t.Endpoint) != "" {
		return true
	}
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether trace context headers are injected into
// outgoing requests. Defaults to true when tracing is enabled.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// CallConfig drives the call command: repeated authenticated requests
// against one API path.
type CallConfig struct {
	Path        string            `mapstructure:"path"`
	Method      string            `mapstructure:"method"`
	Headers     map[string]string `mapstructure:"headers"`
	Body        string            `mapstructure:"body"`
	Concurrency int               `mapstructure:"concurrency"`
	Rate        int               `mapstructure:"rate"`
	Total       int               `mapstructure:"total"`
	Retries     int               `mapstructure:"retries"`
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.BaseURL) == "" {
		issues = append(issues, "base_url is required (use --help for usage information)")
	} else if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		issues = append(issues, fmt.Sprintf("base_url %q must be an absolute URL", c.BaseURL))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		issues = append(issues, fmt.Sprintf("base_url scheme must be http or https, got %q", u.Scheme))
	}

	// Without a seed token the first request must log in.
	if c.AccessToken == "" {
		if strings.TrimSpace(c.Username) == "" {
			issues = append(issues, "username is required when no access_token is given")
		}
		if c.Password == "" {
			issues = append(issues, fmt.Sprintf("password is required when no access_token is given (or set %s)", EnvPassword))
		}
	}

	if c.RequestMargin < 0 {
		issues = append(issues, "request_margin must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}

	issues = append(issues, validateLogConfig(c.Log)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// ValidateCall checks the settings used only by the call command.
func (c Config) ValidateCall() error {
	var issues []string
	call := c.Call

	if strings.TrimSpace(call.Path) == "" {
		issues = append(issues, "call: path is required")
	}
	if call.Concurrency < 1 {
		issues = append(issues, "call: concurrency must be >= 1")
	}
	if call.Rate < 0 {
		issues = append(issues, "call: rate must be >= 0")
	}
	if call.Total < 1 {
		issues = append(issues, "call: total must be >= 1")
	}
	if call.Retries < 0 {
		issues = append(issues, "call: retries must be >= 0")
	}
	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateLogConfig(log LogConfig) []string {
	var issues []string
	switch strings.ToLower(log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		issues = append(issues, fmt.Sprintf("log: unsupported level %q", log.Level))
	}
	switch strings.ToLower(log.Format) {
	case "", "text", "json":
	default:
		issues = append(issues, fmt.Sprintf("log: format must be 'text' or 'json', got %q", log.Format))
	}
	return issues
}

func validateTracingConfig(tr TracingConfig) []string {
	var issues []string
	switch strings.ToLower(tr.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", tr.Protocol))
	}
	if tr.SampleRate < 0 || tr.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", tr.SampleRate))
	}
	return issues
}
