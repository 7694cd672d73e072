package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files, flags and the environment.
type Loader struct{}

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns the configuration used before any file or flag applies.
func Defaults() *Config {
	return &Config{
		RequestMargin: time.Second,
		Timeout:       30 * time.Second,
		LoginFallback: true,
		Log:           LogConfig{Level: "info", Format: "text"},
		Tracing:       TracingConfig{Protocol: "grpc", SampleRate: 1.0},
		Call: CallConfig{
			Method:      "GET",
			Headers:     map[string]string{},
			Concurrency: 1,
			Total:       1,
		},
	}
}

// Load builds a Config from the flags registered by RegisterFlags. The file
// named by --config is read first, changed flags override it, and empty
// secrets fall back to the environment.
func (Loader) Load(fs *pflag.FlagSet) (*Config, error) {
	var configPath string
	if flag := fs.Lookup("config"); flag != nil {
		configPath = strings.TrimSpace(flag.Value.String())
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, fs); err != nil {
		return nil, err
	}
	applyEnvFallbacks(cfg)

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.Call.Method = strings.ToUpper(cfg.Call.Method)
	if cfg.Call.Headers == nil {
		cfg.Call.Headers = map[string]string{}
	}
	return cfg, nil
}

func applyEnvFallbacks(cfg *Config) {
	if cfg.Password == "" {
		if envPassword := os.Getenv(EnvPassword); envPassword != "" {
			cfg.Password = envPassword
		}
	}
	if cfg.AccessToken == "" {
		if envToken := os.Getenv(EnvAccessToken); envToken != "" {
			cfg.AccessToken = strings.TrimSpace(envToken)
		}
	}
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "baseurl", "base_url", "base-url"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
		cfg.BaseURL = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "username"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("username: %w", err)
		}
		cfg.Username = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "password"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("password: %w", err)
		}
		cfg.Password = val
	}

	if raw, ok := lookupSetting(settings, "accesstoken", "access_token", "access-token"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("access_token: %w", err)
		}
		cfg.AccessToken = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "requestmargin", "request_margin", "request-margin"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("request_margin: %w", err)
		}
		cfg.RequestMargin = dur
	}

	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = dur
	}

	if raw, ok := lookupSetting(settings, "loginfallback", "login_fallback", "login-fallback"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("login_fallback: %w", err)
		}
		cfg.LoginFallback = val
	}

	if raw, ok := lookupSetting(settings, "log"); ok {
		entry, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("log: %w", err)
		}
		if err := applyLogSettings(&cfg.Log, entry); err != nil {
			return fmt.Errorf("log: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		entry, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		if err := applyTracingSettings(&cfg.Tracing, entry); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "call"); ok {
		entry, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("call: %w", err)
		}
		if err := applyCallSettings(&cfg.Call, entry); err != nil {
			return fmt.Errorf("call: %w", err)
		}
	}

	return nil
}

func applyLogSettings(log *LogConfig, settings map[string]interface{}) error {
	if raw, ok := lookupSetting(settings, "level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("level: %w", err)
		}
		if val = strings.ToLower(strings.TrimSpace(val)); val != "" {
			log.Level = val
		}
	}
	if raw, ok := lookupSetting(settings, "format"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}
		if val = strings.ToLower(strings.TrimSpace(val)); val != "" {
			log.Format = val
		}
	}
	return nil
}

func applyTracingSettings(tr *TracingConfig, settings map[string]interface{}) error {
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		tr.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		if val = strings.ToLower(strings.TrimSpace(val)); val != "" {
			tr.Protocol = val
		}
	}
	if raw, ok := lookupSetting(settings, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		tr.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		tr.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		tr.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		tr.Propagate = &val
	}
	return nil
}

func applyCallSettings(call *CallConfig, settings map[string]interface{}) error {
	if raw, ok := lookupSetting(settings, "path"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("path: %w", err)
		}
		call.Path = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "method"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("method: %w", err)
		}
		if val != "" {
			call.Method = val
		}
	}
	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if call.Headers == nil {
			call.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			call.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}
	if raw, ok := lookupSetting(settings, "body"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("body: %w", err)
		}
		call.Body = val
	}
	if raw, ok := lookupSetting(settings, "concurrency"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("concurrency: %w", err)
		}
		call.Concurrency = val
	}
	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		call.Rate = val
	}
	if raw, ok := lookupSetting(settings, "total"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("total: %w", err)
		}
		call.Total = val
	}
	if raw, ok := lookupSetting(settings, "retries"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("retries: %w", err)
		}
		call.Retries = val
	}
	return nil
}
