// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/streamctl/internal/api"
	"github.com/ManuGH/streamctl/internal/bus"
	"github.com/ManuGH/streamctl/internal/config"
	"github.com/ManuGH/streamctl/internal/health"
	"github.com/ManuGH/streamctl/internal/hostclient"
	xglog "github.com/ManuGH/streamctl/internal/log"
	"github.com/ManuGH/streamctl/internal/telemetry"
	"github.com/ManuGH/streamctl/internal/version"
	"github.com/ManuGH/streamctl/internal/viewer"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 5 * time.Second
	tracerName        = "github.com/ManuGH/streamctl"
)

func runServe(ctx context.Context, configPath string) error {
	xglog.Configure(xglog.Config{Level: "info", Service: "streamctl", Version: version.Version})
	logger := xglog.WithComponent("daemon")

	loader := config.NewLoader(configPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Error().Err(err).
			Str(xglog.FieldEvent, "config.load_failed").
			Str("config_path", configPath).
			Msg("failed to load configuration")
		return err
	}
	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Service: cfg.LogService, Version: cfg.Version})
	logger = xglog.WithComponent("daemon")
	logger.Info().
		Str(xglog.FieldEvent, "config.loaded").
		Str("config_path", configPath).
		Str("listen_addr", cfg.ListenAddr).
		Str(xglog.FieldBaseURL, config.MaskURL(cfg.HostAPI.BaseURL)).
		Str("bus_backend", cfg.Bus.Backend).
		Msg("configuration loaded")

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}
	return serve(ctx, cfg, loader, configPath, ln, logger)
}

// serve runs the daemon on ln until ctx is cancelled.
func serve(ctx context.Context, cfg config.AppConfig, loader *config.Loader, configPath string, ln net.Listener, logger zerolog.Logger) error {
	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = tp.Shutdown(context.WithoutCancel(ctx)) }()

	host, err := hostclient.New(hostclient.Config{
		BaseURL:   cfg.HostAPI.BaseURL,
		Timeout:   cfg.HostAPI.Timeout,
		RateLimit: cfg.HostAPI.RateLimitRPS,
		Burst:     cfg.HostAPI.RateLimitBurst,
		Logger:    xglog.WithComponent("hostclient"),
	})
	if err != nil {
		_ = ln.Close()
		return err
	}

	events, err := newBus(ctx, cfg.Bus)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer func() { _ = events.Close() }()

	viewers := viewer.NewManager(host, events, telemetry.Tracer(tracerName),
		viewer.ConfigFromStream(cfg.Stream), xglog.WithComponent("viewer"))

	apiServer := api.New(api.Config{
		Version:           cfg.Version,
		TracingService:    tracerName,
		AllowedOrigins:    cfg.API.AllowedOrigins,
		RateLimitRequests: cfg.API.RateLimitRequests,
		RateLimitWindow:   cfg.API.RateLimitWindow,
	}, viewers, events, xglog.WithComponent("api"))
	apiServer.RegisterHealthCheck(health.NewBreakerChecker("host_api", host.BreakerState))

	srv := &http.Server{
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	holder := config.NewConfigHolder(cfg, loader, configPath)
	reloads := make(chan config.AppConfig, 1)
	holder.RegisterListener(reloads)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str(xglog.FieldEvent, "server.listening").
			Str("addr", ln.Addr().String()).
			Msg("HTTP API listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := holder.StartWatcher(gctx); err != nil {
			logger.Warn().Err(err).Str(xglog.FieldEvent, "config.watcher_failed").Msg("config hot reload disabled")
		}
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case next := <-reloads:
				xglog.Configure(xglog.Config{Level: next.LogLevel, Service: next.LogService, Version: next.Version})
				viewers.UpdateConfig(viewer.ConfigFromStream(next.Stream))
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Str(xglog.FieldEvent, "server.shutdown").Msg("shutting down")
		holder.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := viewers.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Str(xglog.FieldEvent, "viewer.shutdown_incomplete").Msg("not all viewers were torn down")
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func newBus(ctx context.Context, cfg config.BusConfig) (bus.Bus, error) {
	switch cfg.Backend {
	case config.BusBackendRedis:
		b, err := bus.NewRedisBus(ctx, bus.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.Channel,
		}, xglog.WithComponent("bus"))
		if err != nil {
			return nil, fmt.Errorf("init redis bus: %w", err)
		}
		return b, nil
	default:
		return bus.NewMemoryBus(), nil
	}
}
