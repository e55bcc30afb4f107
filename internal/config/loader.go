// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/streamctl/internal/streamprofile"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults, then validates.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := l.mergeEnvConfig(&cfg); err != nil {
		return cfg, err
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a YAML file over dst with strict parsing.
// Unknown fields are a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string, dst *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) error {
	cfg.ListenAddr = l.envString("LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogLevel = l.envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString("LOG_SERVICE", cfg.LogService)

	cfg.HostAPI.BaseURL = l.envString("HOST_API_BASE_URL", cfg.HostAPI.BaseURL)
	cfg.HostAPI.Timeout = l.envDuration("HOST_API_TIMEOUT", cfg.HostAPI.Timeout)
	cfg.HostAPI.RateLimitRPS = l.envFloat("HOST_API_RATE_LIMIT_RPS", cfg.HostAPI.RateLimitRPS)
	cfg.HostAPI.RateLimitBurst = l.envInt("HOST_API_RATE_LIMIT_BURST", cfg.HostAPI.RateLimitBurst)

	if raw := l.envString("STREAM_BASELINE_QUALITY", ""); raw != "" {
		q, err := streamprofile.Parse(raw)
		if err != nil {
			return fmt.Errorf("%sSTREAM_BASELINE_QUALITY: %w", EnvPrefix, err)
		}
		cfg.Stream.BaselineQuality = q
	}
	cfg.Stream.PollInterval = l.envDuration("STREAM_POLL_INTERVAL", cfg.Stream.PollInterval)
	cfg.Stream.PollBudget = l.envDuration("STREAM_POLL_BUDGET", cfg.Stream.PollBudget)
	cfg.Stream.PollJitter = l.envDuration("STREAM_POLL_JITTER", cfg.Stream.PollJitter)
	cfg.Stream.StableProbes = l.envInt("STREAM_STABLE_PROBES", cfg.Stream.StableProbes)
	cfg.Stream.RetryDelay = l.envDuration("STREAM_RETRY_DELAY", cfg.Stream.RetryDelay)
	cfg.Stream.RevealTimeout = l.envDuration("STREAM_REVEAL_TIMEOUT", cfg.Stream.RevealTimeout)
	cfg.Stream.RevertTimeout = l.envDuration("STREAM_REVERT_TIMEOUT", cfg.Stream.RevertTimeout)

	cfg.Bus.Backend = strings.ToLower(l.envString("BUS_BACKEND", cfg.Bus.Backend))
	cfg.Bus.RedisAddr = l.envString("BUS_REDIS_ADDR", cfg.Bus.RedisAddr)
	cfg.Bus.RedisPassword = l.envString("BUS_REDIS_PASSWORD", cfg.Bus.RedisPassword)
	cfg.Bus.RedisDB = l.envInt("BUS_REDIS_DB", cfg.Bus.RedisDB)
	cfg.Bus.Channel = l.envString("BUS_CHANNEL", cfg.Bus.Channel)

	cfg.Telemetry.Enabled = l.envBool("TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
	cfg.Telemetry.Environment = l.envString("TELEMETRY_ENVIRONMENT", cfg.Telemetry.Environment)

	cfg.API.RateLimitRequests = l.envInt("API_RATE_LIMIT_REQUESTS", cfg.API.RateLimitRequests)
	cfg.API.RateLimitWindow = l.envDuration("API_RATE_LIMIT_WINDOW", cfg.API.RateLimitWindow)
	cfg.API.AllowedOrigins = parseCommaSeparated(l.envString("API_ALLOWED_ORIGINS", ""), cfg.API.AllowedOrigins)
	return nil
}
