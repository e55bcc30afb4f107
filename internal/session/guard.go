// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/streamctl/internal/log"
	"github.com/ManuGH/streamctl/internal/metrics"
	"github.com/ManuGH/streamctl/internal/streamprofile"
)

// Reverter restarts a device stream at its baseline quality.
type Reverter interface {
	Revert(ctx context.Context, host, device string, baseline streamprofile.Quality) error
}

// Stopper halts whatever is still running for the session (pollers, timers).
type Stopper interface {
	Close()
}

type GuardConfig struct {
	RevertTimeout time.Duration
	Logger        zerolog.Logger
}

const defaultRevertTimeout = 10 * time.Second

// Guard is registered once at mount. It never captures the quality at
// registration time; Teardown reads the live ref.
type Guard struct {
	sess     *Session
	reverter Reverter
	stopper  Stopper
	timeout  time.Duration
	logger   zerolog.Logger

	once sync.Once
	done chan struct{}
}

func NewGuard(sess *Session, reverter Reverter, stopper Stopper, cfg GuardConfig) *Guard {
	timeout := cfg.RevertTimeout
	if timeout <= 0 {
		timeout = defaultRevertTimeout
	}
	return &Guard{
		sess:     sess,
		reverter: reverter,
		stopper:  stopper,
		timeout:  timeout,
		logger: cfg.Logger.With().
			Str(xglog.FieldComponent, "session_guard").
			Str(xglog.FieldSessionID, sess.ID).
			Str(xglog.FieldHost, sess.Key.Host).
			Str(xglog.FieldDevice, sess.Key.Device).
			Logger(),
		done: make(chan struct{}),
	}
}

// Teardown stops outstanding work and, when the stream was left above its
// baseline, restores the baseline in the background. Only the first call has
// any effect. Revert failures are logged, never returned.
func (g *Guard) Teardown(ctx context.Context) {
	g.once.Do(func() {
		if g.stopper != nil {
			g.stopper.Close()
		}

		current := g.sess.QualityRef().Load()
		baseline := g.sess.Baseline
		if current == baseline || current == "" || g.reverter == nil {
			metrics.IncRevert("skipped")
			close(g.done)
			return
		}

		revertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		go func() {
			defer close(g.done)
			defer cancel()

			start := time.Now()
			err := g.reverter.Revert(revertCtx, g.sess.Key.Host, g.sess.Key.Device, baseline)
			if err != nil {
				metrics.IncRevert("error")
				g.logger.Warn().Err(err).
					Str(xglog.FieldEvent, "session.revert_failed").
					Str(xglog.FieldQuality, current.String()).
					Str(xglog.FieldBaseline, baseline.String()).
					Msg("failed to restore baseline quality")
				return
			}
			metrics.IncRevert("ok")
			g.logger.Info().
				Str(xglog.FieldEvent, "session.reverted").
				Str(xglog.FieldQuality, current.String()).
				Str(xglog.FieldBaseline, baseline.String()).
				Dur("duration", time.Since(start)).
				Msg("stream restored to baseline quality")
		}()
	})
}

// Done is closed once teardown work, including any revert, has finished.
func (g *Guard) Done() <-chan struct{} {
	return g.done
}
