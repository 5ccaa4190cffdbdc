package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/faultline-hq/faultline-go/internal/client"
)

// Config holds all SDK configuration consumed by the core.
type Config struct {
	DSN              string        `envconfig:"FAULTLINE_DSN" toml:"dsn"`
	Debug            bool          `envconfig:"FAULTLINE_DEBUG" default:"false" toml:"debug"`
	Environment      string        `envconfig:"FAULTLINE_ENVIRONMENT" toml:"environment"`
	Release          string        `envconfig:"FAULTLINE_RELEASE" toml:"release"`
	SampleRate       float64       `envconfig:"FAULTLINE_SAMPLE_RATE" default:"1.0" toml:"sample_rate"`
	TracesSampleRate float64       `envconfig:"FAULTLINE_TRACES_SAMPLE_RATE" default:"0" toml:"traces_sample_rate"`
	MaxSpans         int           `envconfig:"FAULTLINE_MAX_SPANS" default:"1000" toml:"max_spans"`
	MaxBreadcrumbs   int           `envconfig:"FAULTLINE_MAX_BREADCRUMBS" default:"100" toml:"max_breadcrumbs"`
	QueueSize        int           `envconfig:"FAULTLINE_QUEUE_SIZE" default:"30" toml:"queue_size"`
	FlushTimeout     time.Duration `envconfig:"FAULTLINE_FLUSH_TIMEOUT" default:"2s" toml:"-"`

	// FlushTimeoutText is the TOML-facing form of FlushTimeout ("2s", "500ms").
	FlushTimeoutText string `ignored:"true" toml:"flush_timeout"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile overlays a TOML file on the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.FlushTimeoutText != "" {
		timeout, err := time.ParseDuration(cfg.FlushTimeoutText)
		if err != nil {
			return nil, fmt.Errorf("invalid flush_timeout: %w", err)
		}
		cfg.FlushTimeout = timeout
	}
	return cfg, nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		SampleRate:     1.0,
		MaxSpans:       1000,
		MaxBreadcrumbs: 100,
		QueueSize:      30,
		FlushTimeout:   2 * time.Second,
	}
}

// ClientOptions maps the configuration onto client options.
func (c *Config) ClientOptions() client.Options {
	return client.Options{
		DSN:              c.DSN,
		Debug:            c.Debug,
		Environment:      c.Environment,
		Release:          c.Release,
		SampleRate:       c.SampleRate,
		TracesSampleRate: c.TracesSampleRate,
		MaxSpans:         c.MaxSpans,
		MaxBreadcrumbs:   c.MaxBreadcrumbs,
		QueueSize:        c.QueueSize,
		FlushTimeout:     c.FlushTimeout,
	}
}
