// Package config loads client-behavior configuration for the realtime API
// client: discovery timing, cache sizing, and per-sensor timeouts.
package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds tunable client behavior. Unlike a service's credentials
// config, every field has a sane default and Load never requires a file
// to exist.
type Config struct {
	Discovery DiscoveryConfig
	Cache     CacheConfig
	Timeouts  TimeoutConfig
}

// DiscoveryConfig controls mDNS device discovery.
type DiscoveryConfig struct {
	SearchDuration time.Duration
}

// CacheConfig controls the bounded caches used for cross-stream matching.
type CacheConfig struct {
	GazeCapacity int
	EyesCapacity int
}

// TimeoutConfig controls per-operation timeouts.
type TimeoutConfig struct {
	Connect             time.Duration
	Receive             time.Duration
	TimeEchoMeasurements int
}

// Default returns the configuration used when no .env file is present.
func Default() *Config {
	return &Config{
		Discovery: DiscoveryConfig{SearchDuration: 10 * time.Second},
		Cache:     CacheConfig{GazeCapacity: 200, EyesCapacity: 200},
		Timeouts: TimeoutConfig{
			Connect:              5 * time.Second,
			Receive:              5 * time.Second,
			TimeEchoMeasurements: 100,
		},
	}
}

// Load reads configuration overrides from a .env-style key=value file.
// A missing file is not an error; Load falls back to Default().
func Load(envPath string) (*Config, error) {
	cfg := Default()

	file, err := os.Open(envPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("open env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		decodedValue, err := url.QueryUnescape(value)
		if err != nil {
			decodedValue = value
		}

		if err := cfg.apply(key, decodedValue); err != nil {
			return nil, fmt.Errorf("config key %q: %w", key, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan env file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) apply(key, value string) error {
	switch key {
	case "discovery_search_duration":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		c.Discovery.SearchDuration = d
	case "gaze_cache_capacity":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		c.Cache.GazeCapacity = n
	case "eyes_cache_capacity":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		c.Cache.EyesCapacity = n
	case "connect_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		c.Timeouts.Connect = d
	case "receive_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		c.Timeouts.Receive = d
	case "time_echo_measurements":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		c.Timeouts.TimeEchoMeasurements = n
	}
	return nil
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if c.Cache.GazeCapacity <= 0 {
		return fmt.Errorf("gaze_cache_capacity must be positive")
	}
	if c.Cache.EyesCapacity <= 0 {
		return fmt.Errorf("eyes_cache_capacity must be positive")
	}
	if c.Discovery.SearchDuration <= 0 {
		return fmt.Errorf("discovery_search_duration must be positive")
	}
	if c.Timeouts.TimeEchoMeasurements <= 0 {
		return fmt.Errorf("time_echo_measurements must be positive")
	}
	return nil
}
