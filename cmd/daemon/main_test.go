// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamctl/internal/config"
	"github.com/ManuGH/streamctl/internal/version"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "streamctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, version.Version)
}

func TestConfigValidate(t *testing.T) {
	path := writeFile(t, "stream:\n  baseline_quality: standard\n")
	out, err := execute(t, "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	bad := writeFile(t, "stream:\n  poll_budgt: 3s\n")
	_, err = execute(t, "config", "validate", "--config", bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrUnknownConfigField)
}

func TestConfigValidate_UsesEnvPath(t *testing.T) {
	path := writeFile(t, "listen_addr: \":9999\"\n")
	t.Setenv(envConfigPath, path)
	out, err := execute(t, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, path)
}

func TestConfigDump_MasksSecrets(t *testing.T) {
	path := writeFile(t, "bus:\n  redis_password: hunter2\n")
	out, err := execute(t, "config", "dump", "--config", path, "--format", "json")
	require.NoError(t, err)
	assert.NotContains(t, out, "hunter2")

	var dumped map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &dumped))
	assert.Equal(t, "***", dumped["bus"].(map[string]any)["redis_password"])
}

func TestConfigDump_UnknownFormat(t *testing.T) {
	_, err := execute(t, "config", "dump", "--format", "toml")
	assert.Error(t, err)
}

func TestServe_GracefulShutdown(t *testing.T) {
	cfg := config.Defaults()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, cfg, config.NewLoader("", "test"), "", ln, zerolog.Nop())
	}()

	url := "http://" + ln.Addr().String() + "/healthz"
	assert.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
}
