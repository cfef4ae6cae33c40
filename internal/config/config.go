// Package config loads and validates gateway configuration from the
// environment and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Upstream   UpstreamConfig   `koanf:"upstream"`
	Limiter    LimiterConfig    `koanf:"limiter"`
	Validation ValidationConfig `koanf:"validation"`
	Audit      AuditConfig      `koanf:"audit"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type UpstreamConfig struct {
	BaseURL       string `koanf:"base_url"`
	SenderID      string `koanf:"sender_id"`
	SigningSecret string `koanf:"signing_secret"`
	Timeout       string `koanf:"timeout"`
}

type LimiterConfig struct {
	RatePerMinute int    `koanf:"rate_per_minute"`
	Burst         int    `koanf:"burst"`
	MaxKeys       int    `koanf:"max_keys"`
	Backend       string `koanf:"backend"` // memory, redis
	RedisAddr     string `koanf:"redis_addr"`
}

type ValidationConfig struct {
	MaxChars int `koanf:"max_chars"`
}

type AuditConfig struct {
	// Path is the SQLite database file for the access log.
	// Empty disables audit recording.
	Path string `koanf:"path"`
}

// Load reads configuration from an optional YAML file and SYNAP_-prefixed
// environment variables. Environment values override file values.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	// Double underscore separates key segments so single underscores
	// survive inside names: SYNAP_UPSTREAM__BASE_URL -> upstream.base_url.
	if err := k.Load(env.Provider("SYNAP_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "SYNAP_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	defaults := map[string]interface{}{
		"server.port":             8080,
		"upstream.timeout":        "20s",
		"limiter.rate_per_minute": 60,
		"limiter.burst":           10,
		"limiter.max_keys":        4096,
		"limiter.backend":         "memory",
		"limiter.redis_addr":      "localhost:6379",
		"validation.max_chars":    2000,
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that all required values are present and well-formed.
// A failure here is fatal at startup, never a per-request condition.
func (c *Config) Validate() error {
	var errs []error

	if c.Upstream.BaseURL == "" {
		errs = append(errs, errors.New("upstream.base_url is required"))
	}
	if c.Upstream.SenderID == "" {
		errs = append(errs, errors.New("upstream.sender_id is required"))
	}
	if c.Upstream.SigningSecret == "" {
		errs = append(errs, errors.New("upstream.signing_secret is required"))
	}
	if _, err := time.ParseDuration(c.Upstream.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("upstream.timeout: %w", err))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Limiter.RatePerMinute <= 0 {
		errs = append(errs, errors.New("limiter.rate_per_minute must be positive"))
	}
	if c.Limiter.Burst <= 0 {
		errs = append(errs, errors.New("limiter.burst must be positive"))
	}
	if c.Limiter.MaxKeys <= 0 {
		errs = append(errs, errors.New("limiter.max_keys must be positive"))
	}
	switch c.Limiter.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("limiter.backend %q is not supported", c.Limiter.Backend))
	}
	if c.Validation.MaxChars <= 0 {
		errs = append(errs, errors.New("validation.max_chars must be positive"))
	}

	return errors.Join(errs...)
}

// UpstreamTimeout returns the parsed outbound call timeout.
// Validate must have succeeded first.
func (c *Config) UpstreamTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Upstream.Timeout)
	return d
}
