// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamctl/internal/streamprofile"
	"github.com/ManuGH/streamctl/internal/validate"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := NewLoader("", "v-test").Load()
	require.NoError(t, err)

	want := Defaults()
	want.Version = "v-test"
	assert.Equal(t, want, cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
listen_addr: ":9000"
stream:
  baseline_quality: standard
  poll_budget: 20s
  retry_delay: 1s
bus:
  backend: redis
  redis_addr: "redis:6379"
`)
	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, streamprofile.QualityStandard, cfg.Stream.BaselineQuality)
	assert.Equal(t, 20*time.Second, cfg.Stream.PollBudget)
	assert.Equal(t, time.Second, cfg.Stream.RetryDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Stream.PollInterval, "unset keys keep defaults")
	assert.Equal(t, BusBackendRedis, cfg.Bus.Backend)
	assert.Equal(t, "redis:6379", cfg.Bus.RedisAddr)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "stream:\n  baseline_quality: standard\n")
	t.Setenv("STREAMCTL_STREAM_BASELINE_QUALITY", "hd")
	t.Setenv("STREAMCTL_STREAM_POLL_INTERVAL", "250ms")
	t.Setenv("STREAMCTL_API_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	l := NewLoader(path, "")
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, streamprofile.QualityHigh, cfg.Stream.BaselineQuality)
	assert.Equal(t, 250*time.Millisecond, cfg.Stream.PollInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.API.AllowedOrigins)
	assert.Contains(t, l.ConsumedEnvKeys, "STREAMCTL_STREAM_POLL_INTERVAL")
}

func TestLoad_InvalidBaselineEnv(t *testing.T) {
	t.Setenv("STREAMCTL_STREAM_BASELINE_QUALITY", "ultra")
	_, err := NewLoader("", "").Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, streamprofile.ErrUnknownQuality)
}

func TestLoad_UnknownFieldIsFatal(t *testing.T) {
	path := writeConfig(t, "stream:\n  poll_budgett: 10s\n")
	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownConfigField), "got %v", err)
}

func TestLoad_RejectsMultipleDocuments(t *testing.T) {
	path := writeConfig(t, "listen_addr: \":9000\"\n---\nlisten_addr: \":9001\"\n")
	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple documents")
}

func TestLoad_RejectsNonYAMLExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config format")
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults().Stream, cfg.Stream)
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, "stream:\n  poll_interval: 2s\n  poll_budget: 1s\n")
	_, err := NewLoader(path, "").Load()
	require.Error(t, err)

	var verr validate.ValidationError
	require.ErrorAs(t, err, &verr)
	var fields []string
	for _, e := range verr.Errors() {
		fields = append(fields, e.Field)
	}
	assert.Contains(t, fields, "stream.poll_budget")
}

func TestValidate_RedisRequiresAddr(t *testing.T) {
	cfg := Defaults()
	cfg.Bus.Backend = BusBackendRedis
	cfg.Bus.RedisAddr = ""
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus.redis_addr")
}

func TestValidate_TelemetryOnlyCheckedWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Telemetry.Exporter = "zipkin"
	assert.NoError(t, Validate(cfg))

	cfg.Telemetry.Enabled = true
	assert.Error(t, Validate(cfg))
}

func TestParseHelpers(t *testing.T) {
	t.Setenv("X_INT", "nope")
	t.Setenv("X_DUR", "3s")
	t.Setenv("X_BOOL", "YES")
	t.Setenv("X_FLOAT", "0.25")
	t.Setenv("X_EMPTY", "")

	assert.Equal(t, 7, ParseInt("X_INT", 7))
	assert.Equal(t, 3*time.Second, ParseDuration("X_DUR", time.Second))
	assert.True(t, ParseBool("X_BOOL", false))
	assert.InDelta(t, 0.25, ParseFloat("X_FLOAT", 1), 1e-9)
	assert.Equal(t, "fallback", ParseString("X_EMPTY", "fallback"))
	assert.Equal(t, "fallback", ParseString("X_UNSET_FOR_TEST", "fallback"))
}
