// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/streamctl/internal/streamprofile"
)

// AppConfig is the effective daemon configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`
	LogService string `yaml:"log_service"`

	HostAPI   HostAPIConfig   `yaml:"host_api"`
	Stream    StreamConfig    `yaml:"stream"`
	Bus       BusConfig       `yaml:"bus"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	API       APIConfig       `yaml:"api"`
}

// HostAPIConfig points at the device host API that restarts encoders.
type HostAPIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Timeout        time.Duration `yaml:"timeout"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`
}

// StreamConfig holds quality transition timings.
type StreamConfig struct {
	BaselineQuality streamprofile.Quality `yaml:"baseline_quality"`
	PollInterval    time.Duration         `yaml:"poll_interval"`
	PollBudget      time.Duration         `yaml:"poll_budget"`
	PollJitter      time.Duration         `yaml:"poll_jitter"`
	StableProbes    int                   `yaml:"stable_probes"`
	RetryDelay      time.Duration         `yaml:"retry_delay"`
	RevealTimeout   time.Duration         `yaml:"reveal_timeout"`
	RevertTimeout   time.Duration         `yaml:"revert_timeout"`
}

// BusConfig selects the viewer event bus.
type BusConfig struct {
	Backend       string `yaml:"backend"` // memory | redis
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Channel       string `yaml:"channel"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc | http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Environment  string  `yaml:"environment"`
}

// APIConfig controls the inbound HTTP API.
type APIConfig struct {
	RateLimitRequests int           `yaml:"rate_limit_requests"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
}

const (
	BusBackendMemory = "memory"
	BusBackendRedis  = "redis"
)

// Defaults returns the configuration used when nothing is set.
func Defaults() AppConfig {
	return AppConfig{
		ListenAddr: ":8080",
		LogLevel:   "info",
		LogService: "streamctl",
		HostAPI: HostAPIConfig{
			BaseURL:        "http://127.0.0.1:9090",
			Timeout:        5 * time.Second,
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		},
		Stream: StreamConfig{
			BaselineQuality: streamprofile.DefaultBaseline,
			PollInterval:    500 * time.Millisecond,
			PollBudget:      15 * time.Second,
			PollJitter:      100 * time.Millisecond,
			StableProbes:    1,
			RetryDelay:      750 * time.Millisecond,
			RevealTimeout:   5 * time.Second,
			RevertTimeout:   10 * time.Second,
		},
		Bus: BusConfig{
			Backend:   BusBackendMemory,
			RedisAddr: "localhost:6379",
			Channel:   "streamctl:events",
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "development",
		},
		API: APIConfig{
			RateLimitRequests: 120,
			RateLimitWindow:   time.Minute,
		},
	}
}

// Clone returns a deep copy of cfg.
func Clone(in AppConfig) AppConfig {
	out := in
	if in.API.AllowedOrigins != nil {
		out.API.AllowedOrigins = append([]string(nil), in.API.AllowedOrigins...)
	}
	return out
}
