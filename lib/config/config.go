// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the WireBound
// helper.
//
// Configuration is loaded from a single file specified by:
//   - WIREBOUND_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the helper's configuration.
type Config struct {
	// Endpoint configures the secure channel the helper listens on.
	Endpoint EndpointConfig `yaml:"endpoint"`

	// State configures where the helper keeps runtime state,
	// including the shared secret file.
	State StateConfig `yaml:"state"`

	// Auth configures handshake verification.
	Auth AuthConfig `yaml:"auth"`

	// Session configures session lifetime and the active-session cap.
	Session SessionConfig `yaml:"session"`

	// RateLimit configures both the pre-auth and post-auth limiters.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// EndpointConfig configures the platform secure channel.
type EndpointConfig struct {
	// SocketPath is the unix socket path (Unix only).
	// Default: /run/wirebound/helper.sock
	SocketPath string `yaml:"socket_path"`

	// PipeName is the named pipe path (Windows only).
	// Default: \\.\pipe\wirebound-helper
	PipeName string `yaml:"pipe_name"`

	// ReceiveTimeout bounds how long a connection may sit idle
	// between frames. Default: 30s
	ReceiveTimeout string `yaml:"receive_timeout"`
}

// StateConfig configures runtime state locations.
type StateConfig struct {
	// Dir holds the helper's state, including the secret file the
	// launcher reads. Default: /var/lib/wirebound
	Dir string `yaml:"dir"`
}

// AuthConfig configures handshake verification.
type AuthConfig struct {
	// MaxSkew is how far a handshake timestamp may deviate from the
	// helper's clock. Default: 5m
	MaxSkew string `yaml:"max_skew"`
}

// SessionConfig configures the session manager.
type SessionConfig struct {
	// MaxSessions caps concurrently active sessions. Default: 16
	MaxSessions int `yaml:"max_sessions"`

	// SweepInterval is how often expired sessions are reaped in the
	// background, independent of validation traffic. Default: 1m
	SweepInterval string `yaml:"sweep_interval"`
}

// RateLimitConfig configures both limiters.
type RateLimitConfig struct {
	PreAuth PreAuthConfig `yaml:"pre_auth"`
	Window  WindowConfig  `yaml:"window"`
}

// PreAuthConfig throttles handshake attempts per source before any
// identity is established.
type PreAuthConfig struct {
	// AttemptsPerSecond refills the per-source token bucket. Default: 1
	AttemptsPerSecond float64 `yaml:"attempts_per_second"`

	// Burst is the bucket capacity. Default: 5
	Burst int `yaml:"burst"`

	// FailureThreshold is the consecutive-failure count that closes
	// the connection. Default: 5
	FailureThreshold int `yaml:"failure_threshold"`
}

// WindowConfig bounds authenticated request volume per session.
type WindowConfig struct {
	// Interval is the fixed window length. Default: 10s
	Interval string `yaml:"interval"`

	// MaxRequests is the per-window request cap. Default: 100
	MaxRequests int `yaml:"max_requests"`
}

// Default returns the default configuration. These defaults are a
// base for the config file to override; running without a file is
// supported because every field has a working value.
func Default() *Config {
	return &Config{
		Endpoint: EndpointConfig{
			SocketPath:     "/run/wirebound/helper.sock",
			PipeName:       `\\.\pipe\wirebound-helper`,
			ReceiveTimeout: "30s",
		},
		State: StateConfig{
			Dir: "/var/lib/wirebound",
		},
		Auth: AuthConfig{
			MaxSkew: "5m",
		},
		Session: SessionConfig{
			MaxSessions:   16,
			SweepInterval: "1m",
		},
		RateLimit: RateLimitConfig{
			PreAuth: PreAuthConfig{
				AttemptsPerSecond: 1,
				Burst:             5,
				FailureThreshold:  5,
			},
			Window: WindowConfig{
				Interval:    "10s",
				MaxRequests: 100,
			},
		},
	}
}

// Load loads configuration from the WIREBOUND_CONFIG environment
// variable. There are no fallbacks: if the variable is not set, Load
// fails, and callers that want the defaults use Default directly.
func Load() (*Config, error) {
	path := os.Getenv("WIREBOUND_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("WIREBOUND_CONFIG environment variable not set; " +
			"set it to the path of your wirebound.yaml config file, or use --config flag")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merging it
// over the defaults. Environment variables do not override config
// values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints and duration syntax so that
// misconfiguration fails at startup, not mid-request.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.Endpoint.ReceiveTimeout); err != nil {
		return fmt.Errorf("endpoint.receive_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Auth.MaxSkew); err != nil {
		return fmt.Errorf("auth.max_skew: %w", err)
	}
	if _, err := time.ParseDuration(c.Session.SweepInterval); err != nil {
		return fmt.Errorf("session.sweep_interval: %w", err)
	}
	if _, err := time.ParseDuration(c.RateLimit.Window.Interval); err != nil {
		return fmt.Errorf("rate_limit.window.interval: %w", err)
	}
	if c.Session.MaxSessions <= 0 {
		return fmt.Errorf("session.max_sessions must be positive, got %d", c.Session.MaxSessions)
	}
	if c.RateLimit.PreAuth.AttemptsPerSecond <= 0 {
		return fmt.Errorf("rate_limit.pre_auth.attempts_per_second must be positive, got %v",
			c.RateLimit.PreAuth.AttemptsPerSecond)
	}
	if c.RateLimit.Window.MaxRequests <= 0 {
		return fmt.Errorf("rate_limit.window.max_requests must be positive, got %d",
			c.RateLimit.Window.MaxRequests)
	}
	return nil
}

// ReceiveTimeout returns the parsed idle timeout. Validate has
// already rejected unparseable values.
func (c *Config) ReceiveTimeout() time.Duration {
	return parseDuration(c.Endpoint.ReceiveTimeout, 30*time.Second)
}

// MaxSkew returns the parsed handshake skew tolerance.
func (c *Config) MaxSkew() time.Duration {
	return parseDuration(c.Auth.MaxSkew, 5*time.Minute)
}

// SweepInterval returns the parsed background sweep interval.
func (c *Config) SweepInterval() time.Duration {
	return parseDuration(c.Session.SweepInterval, time.Minute)
}

// WindowInterval returns the parsed post-auth window length.
func (c *Config) WindowInterval() time.Duration {
	return parseDuration(c.RateLimit.Window.Interval, 10*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return parsed
}
