// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the drillstreamd configuration.
//
// Configuration comes from a single YAML file named by either the
// DRILLSTREAM_CONFIG environment variable or the --config flag. There
// is no search path and no automatic discovery: one file, explicitly
// named, so a deployment's configuration is always auditable.
//
// Durations are written as Go duration strings ("250ms", "5m") and
// validated with time.ParseDuration at load time.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable consulted when --config is not
// passed.
const EnvVar = "DRILLSTREAM_CONFIG"

// Config is the parsed, validated drillstreamd configuration.
type Config struct {
	// ListenAddress is the TCP address the server accepts protocol
	// connections on (e.g., ":9841" or "10.0.0.5:9841").
	ListenAddress string

	// ChunkDBPath is the SQLite database file holding channel data
	// chunks.
	ChunkDBPath string

	// ChunkDBPoolSize is the connection pool size. Zero means the
	// pool default.
	ChunkDBPoolSize int

	// MaxMessageInterval is the minimum spacing between consecutive
	// data messages for one streaming subscription; it bounds the
	// message rate seen by a consumer.
	MaxMessageInterval time.Duration

	// GrowingTimeout is how long a channel may go without new data
	// before the expiry monitor marks it no longer actively growing.
	GrowingTimeout time.Duration

	// MaxResponseCount caps the number of resources returned for one
	// GetResources request. Resources beyond the cap are dropped
	// whole.
	MaxResponseCount int

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// fileConfig is the YAML shape of the config file. Durations stay
// strings here and are parsed during validation.
type fileConfig struct {
	ListenAddress string `yaml:"listen_address"`
	ChunkDB       struct {
		Path     string `yaml:"path"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"chunk_db"`
	Streaming struct {
		MaxMessageInterval string `yaml:"max_message_interval"`
		GrowingTimeout     string `yaml:"growing_timeout"`
	} `yaml:"streaming"`
	Discovery struct {
		MaxResponseCount *int `yaml:"max_response_count"`
	} `yaml:"discovery"`
	LogLevel string `yaml:"log_level"`
}

// Load reads and validates the configuration file at path. Fields
// absent from the file keep built-in defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration bytes.
func Parse(data []byte) (Config, error) {
	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	parsed := Config{
		ListenAddress:      ":9841",
		ChunkDBPoolSize:    file.ChunkDB.PoolSize,
		ChunkDBPath:        file.ChunkDB.Path,
		MaxMessageInterval: time.Second,
		GrowingTimeout:     5 * time.Minute,
		MaxResponseCount:   1000,
		LogLevel:           "info",
	}
	if file.ListenAddress != "" {
		parsed.ListenAddress = file.ListenAddress
	}
	if file.LogLevel != "" {
		parsed.LogLevel = file.LogLevel
	}
	if file.Discovery.MaxResponseCount != nil {
		parsed.MaxResponseCount = *file.Discovery.MaxResponseCount
	}
	if file.Streaming.MaxMessageInterval != "" {
		interval, err := time.ParseDuration(file.Streaming.MaxMessageInterval)
		if err != nil {
			return Config{}, fmt.Errorf("config: streaming.max_message_interval: %w", err)
		}
		parsed.MaxMessageInterval = interval
	}
	if file.Streaming.GrowingTimeout != "" {
		timeout, err := time.ParseDuration(file.Streaming.GrowingTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("config: streaming.growing_timeout: %w", err)
		}
		parsed.GrowingTimeout = timeout
	}

	if err := parsed.validate(); err != nil {
		return Config{}, err
	}
	return parsed, nil
}

func (c Config) validate() error {
	if c.ChunkDBPath == "" {
		return fmt.Errorf("config: chunk_db.path must not be empty")
	}
	if c.MaxMessageInterval <= 0 {
		return fmt.Errorf("config: streaming.max_message_interval must be positive, got %s", c.MaxMessageInterval)
	}
	if c.GrowingTimeout <= 0 {
		return fmt.Errorf("config: streaming.growing_timeout must be positive, got %s", c.GrowingTimeout)
	}
	if c.MaxResponseCount <= 0 {
		return fmt.Errorf("config: discovery.max_response_count must be positive, got %d", c.MaxResponseCount)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}

// SlogLevel maps LogLevel to the slog level used for handler setup.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
