// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/schemata/internal/notify"
)

// Config is the runtime configuration of `schemata serve` and of the
// store-backed CLI commands.
type Config struct {
	Port        int    `env:"SCHEMATA_PORT"        envDefault:"8080"`
	SchemaDB    string `env:"SCHEMATA_SCHEMA_DB"   envDefault:"data/schemas.db"`
	PropertyDB  string `env:"SCHEMATA_PROPERTY_DB" envDefault:"data/properties.db"`
	QueueName   string `env:"SCHEMATA_QUEUE_NAME"  envDefault:"schemata.events"`
	Concurrency int    `env:"SCHEMATA_MAX_CONCURRENCY" envDefault:"8"`

	RetryMinTimeout time.Duration `env:"SCHEMATA_RETRY_MIN_TIMEOUT" envDefault:"1s"`
	RetryRetries    int           `env:"SCHEMATA_RETRY_RETRIES"     envDefault:"10"`
	RetryFactor     float64       `env:"SCHEMATA_RETRY_FACTOR"      envDefault:"1.8"`

	LogLevel  string `env:"SCHEMATA_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"SCHEMATA_LOG_FORMAT" envDefault:"text"`

	// OTelEndpoint is an OTLP/HTTP collector address; empty disables tracing.
	OTelEndpoint string `env:"SCHEMATA_OTEL_ENDPOINT"`

	// AllowedOrigins are websocket origin patterns for /api/events.
	AllowedOrigins []string `env:"SCHEMATA_ALLOWED_ORIGINS" envSeparator:","`

	// ClientURL is the browser client's origin allowed by CORS; empty
	// disables cross-origin requests.
	ClientURL string `env:"SCHEMATA_CLIENT_URL"`
}

// Load parses the process environment and validates the result.
func Load() (Config, error) {
	return validated(Parse())
}

// LoadFrom parses the given variables instead of the process environment
// and validates the result.
func LoadFrom(vars map[string]string) (Config, error) {
	return validated(ParseFrom(vars))
}

// Parse reads the process environment without validating it, so callers
// can apply overrides before calling Validate.
func Parse() (Config, error) {
	return parse(env.Options{})
}

// ParseFrom is Parse over the given variables.
func ParseFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func validated(cfg Config, err error) (Config, error) {
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges. Every violation is reported.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("SCHEMATA_PORT must be in 0..65535, got %d", c.Port))
	}
	if c.SchemaDB == "" || c.PropertyDB == "" {
		errs = append(errs, errors.New("SCHEMATA_SCHEMA_DB and SCHEMATA_PROPERTY_DB must be set"))
	}
	if c.SchemaDB != "" && c.SchemaDB == c.PropertyDB {
		errs = append(errs, errors.New("SCHEMATA_SCHEMA_DB and SCHEMATA_PROPERTY_DB must differ"))
	}
	if c.QueueName == "" {
		errs = append(errs, errors.New("SCHEMATA_QUEUE_NAME must not be empty"))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("SCHEMATA_MAX_CONCURRENCY must be at least 1, got %d", c.Concurrency))
	}
	if c.RetryMinTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SCHEMATA_RETRY_MIN_TIMEOUT must be positive, got %s", c.RetryMinTimeout))
	}
	if c.RetryRetries < 0 {
		errs = append(errs, fmt.Errorf("SCHEMATA_RETRY_RETRIES must not be negative, got %d", c.RetryRetries))
	}
	if c.RetryFactor < 1 {
		errs = append(errs, fmt.Errorf("SCHEMATA_RETRY_FACTOR must be at least 1, got %g", c.RetryFactor))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("SCHEMATA_LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// RetryPolicy returns the notifier retry settings.
func (c Config) RetryPolicy() notify.RetryPolicy {
	return notify.RetryPolicy{
		MinTimeout: c.RetryMinTimeout,
		Retries:    c.RetryRetries,
		Factor:     c.RetryFactor,
	}
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("SCHEMATA_LOG_LEVEL: unknown level %q", s)
}
