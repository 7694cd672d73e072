package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers the connection flags shared by every command as
// persistent flags of root.
func RegisterFlags(root *cobra.Command) {
	configureFlags(root.PersistentFlags())
}

// RegisterCallFlags registers the flags of the call command.
func RegisterCallFlags(cmd *cobra.Command) {
	configureCallFlags(cmd.Flags())
}

// configureFlags sets up the connection, logging and tracing flags.
func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Connection flags
	flags.String("base-url", "", "Base URL of the API (e.g. https://tb.example.com)")
	flags.StringP("username", "u", "", "Login username")
	flags.StringP("password", "p", "", "Login password (prefer the "+EnvPassword+" environment variable)")
	flags.String("access-token", "", "Previously issued access token to start from")
	flags.Duration("request-margin", time.Second, "How long a served token must stay valid")
	flags.Duration("timeout", 30*time.Second, "Per-request timeout")
	flags.Bool("login-fallback", true, "Log in again when the server rejects the refresh token")

	// Logging flags
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "text", "Log format: text or json")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
}

// configureCallFlags sets up the flags of the call command.
func configureCallFlags(flags *pflag.FlagSet) {
	flags.String("path", "", "API path to call, relative to the base URL")
	flags.StringP("method", "X", "GET", "HTTP method to use")
	flags.StringSliceP("header", "H", nil, "Additional request header in key=value form")
	flags.String("body", "", "Inline request body payload")
	flags.IntP("concurrency", "c", 1, "Number of concurrent workers")
	flags.IntP("rate", "r", 0, "Requests per second limit (0 means unlimited)")
	flags.IntP("total", "n", 1, "Total number of requests to send")
	flags.Int("retries", 0, "Number of retries per request")
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file. Flags that were not registered are skipped.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	changed := func(name string) bool {
		return fs.Lookup(name) != nil && fs.Changed(name)
	}

	if changed("base-url") {
		val, err := fs.GetString("base-url")
		if err != nil {
			return err
		}
		cfg.BaseURL = strings.TrimSpace(val)
	}
	if changed("username") {
		val, err := fs.GetString("username")
		if err != nil {
			return err
		}
		cfg.Username = strings.TrimSpace(val)
	}
	if changed("password") {
		val, err := fs.GetString("password")
		if err != nil {
			return err
		}
		cfg.Password = val
	}
	if changed("access-token") {
		val, err := fs.GetString("access-token")
		if err != nil {
			return err
		}
		cfg.AccessToken = strings.TrimSpace(val)
	}
	if changed("request-margin") {
		val, err := fs.GetDuration("request-margin")
		if err != nil {
			return err
		}
		cfg.RequestMargin = val
	}
	if changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
	}
	if changed("login-fallback") {
		val, err := fs.GetBool("login-fallback")
		if err != nil {
			return err
		}
		cfg.LoginFallback = val
	}

	if changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(val))
	}
	if changed("log-format") {
		val, err := fs.GetString("log-format")
		if err != nil {
			return err
		}
		cfg.Log.Format = strings.ToLower(strings.TrimSpace(val))
	}

	if changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}

	return applyCallFlagOverrides(&cfg.Call, fs, changed)
}

func applyCallFlagOverrides(call *CallConfig, fs *pflag.FlagSet, changed func(string) bool) error {
	if changed("path") {
		val, err := fs.GetString("path")
		if err != nil {
			return err
		}
		call.Path = strings.TrimSpace(val)
	}
	if changed("method") {
		val, err := fs.GetString("method")
		if err != nil {
			return err
		}
		call.Method = val
	}
	if changed("body") {
		val, err := fs.GetString("body")
		if err != nil {
			return err
		}
		call.Body = val
	}
	if changed("concurrency") {
		val, err := fs.GetInt("concurrency")
		if err != nil {
			return err
		}
		call.Concurrency = val
	}
	if changed("rate") {
		val, err := fs.GetInt("rate")
		if err != nil {
			return err
		}
		call.Rate = val
	}
	if changed("total") {
		val, err := fs.GetInt("total")
		if err != nil {
			return err
		}
		call.Total = val
	}
	if changed("retries") {
		val, err := fs.GetInt("retries")
		if err != nil {
			return err
		}
		call.Retries = val
	}

	if changed("header") {
		vals, err := fs.GetStringSlice("header")
		if err != nil {
			return err
		}
		if call.Headers == nil {
			call.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			call.Headers[key] = strings.TrimSpace(parts[1])
		}
	}
	return nil
}
