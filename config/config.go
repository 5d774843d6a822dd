package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/liftcord/liftcord/backoff"
	"github.com/liftcord/liftcord/observability"
	"github.com/liftcord/liftcord/policy"
)

// Config is the full liftcord configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Backoff   BackoffConfig   `mapstructure:"backoff"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Events    EventsConfig    `mapstructure:"events"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type BackoffConfig struct {
	// Base is the seed delay in seconds.
	Base     float64 `mapstructure:"base"`
	Integral bool    `mapstructure:"integral"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type ReconnectConfig struct {
	Shards int `mapstructure:"shards"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// EventsConfig selects where session events go: NATS when NatsURL is set,
// else Redis pub/sub when RedisAddr is set, else an in-process bus.
type EventsConfig struct {
	NatsURL   string `mapstructure:"nats_url"`
	RedisAddr string `mapstructure:"redis_addr"`
	Topic     string `mapstructure:"topic"`
	Workers   int    `mapstructure:"workers"`
}

// Defaults lists every key with its default value.
func Defaults() map[string]any {
	return map[string]any{
		"log.level":          "info",
		"log.development":    false,
		"backoff.base":       backoff.DefaultBase,
		"backoff.integral":   false,
		"retry.max_attempts": 3,
		"retry.timeout":      "10s",
		"reconnect.shards":   1,
		"metrics.enabled":    true,
		"metrics.addr":       ":9090",
		"events.nats_url":    "",
		"events.redis_addr":  "",
		"events.topic":       "liftcord.reconnect",
		"events.workers":     4,
	}
}

// Load reads the liftcord configuration from file, which must exist. An
// empty file means ./liftcord.yaml, used only when present.
func Load(file string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	if file == "" {
		cfg, err = LoadOptionalConfig[Config](".", "liftcord", Defaults())
	} else {
		name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		cfg, err = LoadConfig[Config](filepath.Dir(file), name, Defaults())
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs error

	if _, err := c.Backoff.New(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("backoff: %w", err))
	}
	if c.Retry.Timeout < 0 {
		errs = multierr.Append(errs, errors.New("retry.timeout must not be negative"))
	}
	if c.Reconnect.Shards < 1 {
		errs = multierr.Append(errs, fmt.Errorf("reconnect.shards must be at least 1, got %d", c.Reconnect.Shards))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = multierr.Append(errs, errors.New("metrics.addr is required when metrics are enabled"))
	}
	if c.Events.Workers < 1 {
		errs = multierr.Append(errs, fmt.Errorf("events.workers must be at least 1, got %d", c.Events.Workers))
	}

	if errs != nil {
		return fmt.Errorf("config: invalid: %w", errs)
	}
	return nil
}

// Options converts the section into backoff options.
func (c BackoffConfig) Options() []backoff.Option {
	return []backoff.Option{backoff.WithBase(c.Base), backoff.WithIntegral(c.Integral)}
}

// New builds an exponential backoff from the section.
func (c BackoffConfig) New(opts ...backoff.Option) (*backoff.Exponential, error) {
	return backoff.NewExponential(append(c.Options(), opts...)...)
}

// Policies builds the policies guarding a single dial: retries, each with a
// fresh backoff from b, around a per-attempt timeout. MaxAttempts of 1
// disables retrying and 0 keeps the retry default.
func (c RetryConfig) Policies(b BackoffConfig, metrics *observability.MetricsCollector, logger *zap.Logger) []policy.Policy {
	var policies []policy.Policy

	if c.MaxAttempts != 1 {
		policies = append(policies, policy.NewRetryPolicy(policy.RetryConfig{
			MaxAttempts: c.MaxAttempts,
			NewBackoff: func() backoff.Backoff {
				e, err := b.New()
				if err != nil {
					return backoff.Default()
				}
				return e
			},
			Metrics: metrics,
			Logger:  logger,
		}))
	}

	if c.Timeout > 0 {
		policies = append(policies, policy.NewTimeoutPolicy(policy.TimeoutConfig{Timeout: c.Timeout}))
	}

	return policies
}
