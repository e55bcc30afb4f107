// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/streamctl/internal/validate"
)

// Validate checks an AppConfig and reports every violation at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.ListenAddr("listen_addr", cfg.ListenAddr)
	if _, err := validate.ParseLogLevel(cfg.LogLevel); err != nil {
		v.AddError("log_level", "must be one of trace, debug, info, warn, error", cfg.LogLevel)
	}

	v.URL("host_api.base_url", cfg.HostAPI.BaseURL, []string{"http", "https"})
	v.DurationRange("host_api.timeout", cfg.HostAPI.Timeout, 100*time.Millisecond, time.Minute)
	v.FloatRange("host_api.rate_limit_rps", cfg.HostAPI.RateLimitRPS, 0.1, 10000)
	v.Positive("host_api.rate_limit_burst", cfg.HostAPI.RateLimitBurst)

	s := cfg.Stream
	if !s.BaselineQuality.Valid() {
		v.AddError("stream.baseline_quality", "must be one of low, standard, high", string(s.BaselineQuality))
	}
	v.DurationRange("stream.poll_interval", s.PollInterval, 50*time.Millisecond, 10*time.Second)
	v.DurationRange("stream.poll_budget", s.PollBudget, time.Second, 5*time.Minute)
	if s.PollBudget <= s.PollInterval {
		v.AddError("stream.poll_budget", "must be longer than stream.poll_interval", s.PollBudget)
	}
	v.DurationRange("stream.poll_jitter", s.PollJitter, 0, s.PollInterval)
	v.Range("stream.stable_probes", s.StableProbes, 1, 10)
	v.DurationRange("stream.retry_delay", s.RetryDelay, 0, 30*time.Second)
	v.DurationRange("stream.reveal_timeout", s.RevealTimeout, 500*time.Millisecond, time.Minute)
	v.DurationRange("stream.revert_timeout", s.RevertTimeout, time.Second, 2*time.Minute)

	v.OneOf("bus.backend", cfg.Bus.Backend, []string{BusBackendMemory, BusBackendRedis})
	if cfg.Bus.Backend == BusBackendRedis {
		v.NotEmpty("bus.redis_addr", cfg.Bus.RedisAddr)
		v.NonNegative("bus.redis_db", cfg.Bus.RedisDB)
	}
	v.NotEmpty("bus.channel", cfg.Bus.Channel)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("telemetry.sampling_rate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	v.Positive("api.rate_limit_requests", cfg.API.RateLimitRequests)
	v.DurationRange("api.rate_limit_window", cfg.API.RateLimitWindow, time.Second, time.Hour)

	return v.Err()
}
