// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package readiness polls the device host until a freshly restarted stream is
// servable, within a bounded wall-clock budget.
package readiness

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/streamctl/internal/hostclient"
	xglog "github.com/ManuGH/streamctl/internal/log"
	"github.com/ManuGH/streamctl/internal/metrics"
	"github.com/ManuGH/streamctl/internal/streamprofile"
)

// Prober reports the stream artifact state of one device.
type Prober interface {
	Probe(ctx context.Context, host, device string) (hostclient.ProbeResult, error)
}

// Callbacks receive the outcome of a poll. Exactly one of them runs, at most once.
type Callbacks struct {
	OnReady   func(generation uint64)
	OnTimeout func(generation uint64, reason error)
}

// Config controls probe cadence and budget.
type Config struct {
	Interval     time.Duration // pause between probes
	Jitter       time.Duration // random extra pause, spreads probes of many viewers
	Budget       time.Duration // wall-clock limit for the whole poll
	StableProbes int           // consecutive ready probes required
}

// DefaultConfig returns the poll settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Interval:     500 * time.Millisecond,
		Jitter:       100 * time.Millisecond,
		Budget:       15 * time.Second,
		StableProbes: 1,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	if c.Budget <= 0 {
		c.Budget = d.Budget
	}
	if c.StableProbes <= 0 {
		c.StableProbes = d.StableProbes
	}
	return c
}

// Poller probes one (host, device) pair.
type Poller struct {
	prober Prober
	host   string
	device string
	cfg    Config
	logger zerolog.Logger
}

// NewPoller creates a poller bound to one viewing surface.
func NewPoller(prober Prober, host, device string, cfg Config, logger zerolog.Logger) *Poller {
	return &Poller{
		prober: prober,
		host:   host,
		device: device,
		cfg:    cfg.normalized(),
		logger: logger,
	}
}

// Start begins polling for target in the background. Callbacks are invoked from
// the poll goroutine, never from Start itself.
func (p *Poller) Start(ctx context.Context, target streamprofile.Quality, generation uint64, cb Callbacks) PollHandle {
	pollCtx, cancel := context.WithTimeout(ctx, p.cfg.Budget)
	h := newHandle(cancel)
	go p.run(pollCtx, h, target, generation, cb)
	return h
}

func (p *Poller) run(ctx context.Context, h *handle, target streamprofile.Quality, generation uint64, cb Callbacks) {
	defer close(h.done)
	defer h.cancel()

	start := time.Now()
	outcome := "cancelled"
	defer func() {
		metrics.ObserveReadiness(outcome, time.Since(start))
	}()

	logger := p.logger.With().
		Str(xglog.FieldHost, p.host).
		Str(xglog.FieldDevice, p.device).
		Str(xglog.FieldTarget, target.String()).
		Uint64(xglog.FieldGeneration, generation).
		Logger()

	// Local RNG: jitter without contending on the global source.
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	timer := time.NewTimer(0) // first probe immediately
	defer timer.Stop()

	var (
		polls   int
		stable  int
		last    hostclient.ProbeResult
		lastErr error
	)

	logger.Debug().Str(xglog.FieldEvent, "readiness.start").Msg("checking readiness")

	for {
		select {
		case <-ctx.Done():
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				logger.Debug().Str(xglog.FieldEvent, "readiness.cancelled").Int("polls", polls).Msg("readiness poll cancelled")
				return
			}
			reason := &TimeoutError{Target: target, Polls: polls, Budget: p.cfg.Budget, Last: last, LastErr: lastErr}
			if h.fire(func() {
				if cb.OnTimeout != nil {
					cb.OnTimeout(generation, reason)
				}
			}) {
				outcome = "timeout"
				logger.Warn().
					Str(xglog.FieldEvent, "readiness.timeout").
					Int("polls", polls).
					Bool("exists", last.Exists).
					Bool("stable", last.Stable).
					Str("reported_quality", last.Quality).
					AnErr("last_error", lastErr).
					Msg("timeout waiting for stream readiness")
			}
			return

		case <-timer.C:
			polls++
			res, err := p.prober.Probe(ctx, p.host, p.device)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				lastErr = err
				logger.Warn().Err(err).Int("poll", polls).Msg("readiness probe failed")
				p.scheduleNext(timer, rng)
				continue
			}
			last, lastErr = res, nil

			if res.ReadyFor(target) {
				stable++
				if stable >= p.cfg.StableProbes {
					if h.fire(func() {
						if cb.OnReady != nil {
							cb.OnReady(generation)
						}
					}) {
						outcome = "ready"
						logger.Info().
							Str(xglog.FieldEvent, "readiness.ready").
							Int("polls", polls).
							Int("segments", res.Segments).
							Dur("elapsed", time.Since(start)).
							Msg("stream ready")
					}
					return
				}
			} else {
				if stable > 0 {
					logger.Debug().Msg("flapping stream state, resetting debounce")
				}
				stable = 0
			}
			p.scheduleNext(timer, rng)
		}
	}
}

func (p *Poller) scheduleNext(timer *time.Timer, rng *rand.Rand) {
	var jitter time.Duration
	if p.cfg.Jitter > 0 {
		jitter = time.Duration(rng.Int63n(int64(p.cfg.Jitter)))
	}
	timer.Reset(p.cfg.Interval + jitter)
}
