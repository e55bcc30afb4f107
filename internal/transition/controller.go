// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package transition switches a live device stream between qualities without
// revealing frames from the encoder restart. Three event sources are reconciled:
// the restart command, the readiness poller and the player-ready signal.
//
// Every transition carries a generation. Async completions are tagged with the
// generation they were scheduled under and are dropped once it is stale.
package transition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/streamctl/internal/hostclient"
	xglog "github.com/ManuGH/streamctl/internal/log"
	"github.com/ManuGH/streamctl/internal/metrics"
	"github.com/ManuGH/streamctl/internal/playback"
	"github.com/ManuGH/streamctl/internal/readiness"
	"github.com/ManuGH/streamctl/internal/session"
	"github.com/ManuGH/streamctl/internal/streamprofile"
	"github.com/ManuGH/streamctl/internal/telemetry"
)

const (
	DefaultRetryDelay    = 750 * time.Millisecond
	DefaultRevealTimeout = 5 * time.Second

	tracerName = "github.com/ManuGH/streamctl/internal/transition"
)

type Config struct {
	// RetryDelay is the pause before the single retry after a readiness timeout.
	RetryDelay time.Duration
	// RevealTimeout bounds how long the cover waits for the player after the
	// stream was reported ready.
	RevealTimeout time.Duration
	Logger        zerolog.Logger
	Tracer        trace.Tracer
}

// Controller owns the transition state, the session quality and the playback
// gate of one viewer. All three are only mutated with mu held.
type Controller struct {
	sess      *session.Session
	gate      *playback.Gate
	restarter Restarter
	poller    ReadinessPoller
	notifier  Notifier
	cfg       Config
	logger    zerolog.Logger
	tracer    trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	closed        bool
	generation    uint64
	state         State
	startedAt     time.Time
	requestID     string
	span          trace.Span
	handle        readiness.PollHandle
	restartCancel context.CancelFunc
	retryTimer    *time.Timer
	revealTimer   *time.Timer
	revealPending bool
}

// effects are applied after mu is released. Cancelling a poll handle waits for
// a running callback, and callbacks take mu.
type effects struct {
	cancel  readiness.PollHandle
	outcome *Outcome
}

// New creates a stable controller for sess. notifier may be nil.
func New(sess *session.Session, gate *playback.Gate, restarter Restarter, poller ReadinessPoller, notifier Notifier, cfg Config) *Controller {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.RevealTimeout <= 0 {
		cfg.RevealTimeout = DefaultRevealTimeout
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer(tracerName)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		sess:      sess,
		gate:      gate,
		restarter: restarter,
		poller:    poller,
		notifier:  notifier,
		cfg:       cfg,
		logger: cfg.Logger.With().
			Str(xglog.FieldComponent, "transition").
			Str(xglog.FieldSessionID, sess.ID).
			Str(xglog.FieldHost, sess.Key.Host).
			Str(xglog.FieldDevice, sess.Key.Device).
			Logger(),
		tracer: tracer,
		ctx:    ctx,
		cancel: cancel,
		state:  State{Phase: PhaseStable},
	}
}

// RequestSwitch starts a transition to target and returns once the synchronous
// part is done. The outcome is reported to the Notifier. Requesting the quality
// the controller is already stable at does nothing.
func (c *Controller) RequestSwitch(ctx context.Context, target streamprofile.Quality, opts SwitchOptions) error {
	if !target.Valid() {
		return &Error{Kind: ErrInvalidQuality, Target: target}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.Phase == PhaseStable && target == c.sess.Quality() {
		c.mu.Unlock()
		c.logger.Debug().Str(xglog.FieldTarget, target.String()).Msg("quality already active, switch ignored")
		return nil
	}

	var eff effects
	if c.state.Phase == PhaseSwitching {
		prev := c.state
		eff.cancel = c.detachLocked(true)
		c.endSpanLocked("superseded", nil)
		metrics.IncTransitionSuperseded()
		c.logger.Info().
			Str(xglog.FieldEvent, "transition.superseded").
			Str(xglog.FieldTarget, prev.Target.String()).
			Uint64(xglog.FieldGeneration, prev.Generation).
			Msg("in-flight transition superseded")
	}
	c.clearRevealLocked()

	c.generation++
	from := c.sess.Quality()
	c.sess.SetQuality(target)
	c.state = State{
		Phase:       PhaseSwitching,
		Target:      target,
		InitialLoad: opts.InitialLoad,
		ShowOverlay: opts.ShowOverlay,
		Generation:  c.generation,
	}
	c.startedAt = time.Now()
	c.requestID = xglog.RequestIDFromContext(ctx)
	_, c.span = c.tracer.Start(ctx, "quality.transition",
		trace.WithAttributes(telemetry.TransitionAttributes(target.String(), c.generation, opts.ShowOverlay, opts.InitialLoad)...),
		trace.WithAttributes(telemetry.ViewerAttributes(c.sess.Key.Host, c.sess.Key.Device, c.sess.ID)...),
	)
	if opts.ShowOverlay {
		c.gate.Apply(playback.Engaged(!opts.InitialLoad))
	}

	c.logger.Info().
		Str(xglog.FieldEvent, "transition.start").
		Str(xglog.FieldQuality, from.String()).
		Str(xglog.FieldTarget, target.String()).
		Uint64(xglog.FieldGeneration, c.generation).
		Bool("show_overlay", opts.ShowOverlay).
		Bool("initial_load", opts.InitialLoad).
		Msg("quality transition started")

	c.issueRestartLocked(hostclient.ReasonSwitch)
	c.mu.Unlock()

	c.apply(eff)
	return nil
}

// PlayerReady handles the player's report that it rendered a frame since the
// last source change.
func (c *Controller) PlayerReady() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	switch {
	case c.state.Phase == PhaseSwitching:
		c.clearRevealLocked()
		eff := c.settleLocked(SourcePlayer, nil, playback.Released())
		c.mu.Unlock()
		c.apply(eff)

	case c.revealPending:
		c.clearRevealLocked()
		c.gate.Apply(playback.Released())
		gen := c.generation
		c.mu.Unlock()
		c.logger.Debug().
			Str(xglog.FieldEvent, "transition.revealed").
			Uint64(xglog.FieldGeneration, gen).
			Msg("player ready, cover cleared")

	default:
		c.mu.Unlock()
		metrics.IncStaleCallback(SourcePlayer)
		c.logger.Debug().Msg("player ready outside transition, ignored")
	}
}

// State returns the current transition record.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a consistent view for renderers and the API.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Host:          c.sess.Key.Host,
		Device:        c.sess.Key.Device,
		SessionID:     c.sess.ID,
		Quality:       c.sess.Quality(),
		Baseline:      c.sess.Baseline,
		Phase:         c.state.Phase,
		Target:        c.state.Target,
		RetryCount:    c.state.Attempt,
		Generation:    c.generation,
		ShowOverlay:   c.state.ShowOverlay,
		InitialLoad:   c.state.InitialLoad,
		RevealPending: c.revealPending,
		Gate:          c.gate.State(),
	}
}

// Close stops the poller, timers and any in-flight restart command, and waits
// for restart goroutines to return. Safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	h := c.detachLocked(true)
	c.clearRevealLocked()
	if c.state.Phase == PhaseSwitching {
		c.endSpanLocked("closed", ErrClosed)
		c.logger.Info().
			Str(xglog.FieldEvent, "transition.abandoned").
			Str(xglog.FieldTarget, c.state.Target.String()).
			Uint64(xglog.FieldGeneration, c.state.Generation).
			Msg("controller closed during transition")
	}
	c.state = State{Phase: PhaseStable, Generation: c.generation}
	c.mu.Unlock()

	c.cancel()
	if h != nil {
		h.Cancel()
	}
	c.wg.Wait()
}

func (c *Controller) issueRestartLocked(reason string) {
	if c.restartCancel != nil {
		c.restartCancel()
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.restartCancel = cancel
	if c.requestID != "" {
		ctx = xglog.ContextWithRequestID(ctx, c.requestID)
	}
	if c.span != nil {
		ctx = trace.ContextWithSpan(ctx, c.span)
	}

	gen := c.state.Generation
	req := hostclient.RestartRequest{
		Host:    c.sess.Key.Host,
		Device:  c.sess.Key.Device,
		Quality: c.state.Target,
		Reason:  reason,
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		err := c.restarter.Restart(ctx, req)
		c.onRestartDone(gen, err)
	}()
}

func (c *Controller) onRestartDone(gen uint64, err error) {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		metrics.IncStaleCallback("restart")
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn().
				Err(err).
				Str(xglog.FieldEvent, "transition.late_restart_failed").
				Uint64(xglog.FieldGeneration, gen).
				Msg("restart command for a settled transition failed")
		}
		return
	}

	if err != nil {
		tErr := &Error{Kind: ErrTransport, Target: c.state.Target, Attempts: c.state.Attempt + 1, Err: err}
		eff := c.settleLocked(SourceTransport, tErr, playback.Released())
		c.mu.Unlock()
		c.apply(eff)
		return
	}

	if !c.state.ShowOverlay {
		// Nothing is covered, so there is nothing to wait for.
		eff := c.settleLocked(SourceCommand, nil, playback.Released())
		c.mu.Unlock()
		c.apply(eff)
		return
	}

	c.handle = c.poller.Start(c.ctx, c.state.Target, gen, readiness.Callbacks{
		OnReady:   c.onReady,
		OnTimeout: c.onTimeout,
	})
	c.logger.Debug().
		Str(xglog.FieldEvent, "transition.polling").
		Uint64(xglog.FieldGeneration, gen).
		Int(xglog.FieldAttempt, c.state.Attempt).
		Msg("restart accepted, waiting for readiness")
	c.mu.Unlock()
}

// onReady runs from the poll goroutine. The pause is lifted but the cover stays
// until the player reports a frame or the reveal timeout passes.
func (c *Controller) onReady(gen uint64) {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		metrics.IncStaleCallback(SourcePoller)
		return
	}
	c.handle = nil

	covered := c.gate.State().CoverVisible
	eff := c.settleLocked(SourcePoller, nil, playback.State{CoverVisible: covered})
	if covered {
		c.armRevealLocked(gen)
	}
	c.mu.Unlock()
	c.apply(eff)
}

func (c *Controller) onTimeout(gen uint64, reason error) {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		metrics.IncStaleCallback(SourceTimeout)
		return
	}
	c.handle = nil

	if c.state.Attempt == 0 {
		c.state.Attempt = 1
		metrics.IncTransitionRetry(c.state.Target.String())
		if c.span != nil {
			c.span.AddEvent("retry", trace.WithAttributes(attribute.String("reason", reason.Error())))
		}
		c.logger.Warn().
			Err(reason).
			Str(xglog.FieldEvent, "transition.retry").
			Str(xglog.FieldTarget, c.state.Target.String()).
			Uint64(xglog.FieldGeneration, gen).
			Dur("delay", c.cfg.RetryDelay).
			Msg("stream not ready, retrying restart once")
		c.retryTimer = time.AfterFunc(c.cfg.RetryDelay, func() { c.onRetryDue(gen) })
		c.mu.Unlock()
		return
	}

	tErr := &Error{
		Kind:     ErrTransitionFailed,
		Target:   c.state.Target,
		Attempts: c.state.Attempt + 1,
		Err:      fmt.Errorf("%w: %w", ErrReadinessTimeout, reason),
	}
	eff := c.settleLocked(SourceTimeout, tErr, playback.Released())
	c.mu.Unlock()
	c.apply(eff)
}

func (c *Controller) onRetryDue(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(gen) || c.state.Attempt != 1 {
		return
	}
	c.retryTimer = nil
	c.issueRestartLocked(hostclient.ReasonRetry)
}

func (c *Controller) onRevealTimeout(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.revealPending || c.generation != gen {
		return
	}
	c.clearRevealLocked()
	c.gate.Apply(playback.Released())
	c.logger.Warn().
		Str(xglog.FieldEvent, "transition.reveal_timeout").
		Uint64(xglog.FieldGeneration, gen).
		Dur("timeout", c.cfg.RevealTimeout).
		Msg("player did not report ready, clearing cover")
}

func (c *Controller) currentLocked(gen uint64) bool {
	return !c.closed && c.state.Phase == PhaseSwitching && c.state.Generation == gen
}

// settleLocked ends the current transition and returns the effects to apply
// once mu is released.
func (c *Controller) settleLocked(source string, err error, gate playback.State) effects {
	st := c.state
	elapsed := time.Since(c.startedAt)
	h := c.detachLocked(false)

	c.state = State{Phase: PhaseStable, Generation: st.Generation}
	c.gate.Apply(gate)
	c.endSpanLocked(source, err)
	metrics.ObserveTransition(st.Target.String(), err == nil, source, elapsed)

	ev := c.logger.Info()
	if err != nil {
		ev = c.logger.Warn().Err(err)
	}
	ev.Str(xglog.FieldEvent, "transition.settled").
		Str(xglog.FieldTarget, st.Target.String()).
		Uint64(xglog.FieldGeneration, st.Generation).
		Int("retries", st.Attempt).
		Str("settled_by", source).
		Dur("duration", elapsed).
		Msg("quality transition settled")

	return effects{
		cancel: h,
		outcome: &Outcome{
			Host:       c.sess.Key.Host,
			Device:     c.sess.Key.Device,
			Target:     st.Target,
			Generation: st.Generation,
			Retries:    st.Attempt,
			Source:     source,
			Err:        err,
			Duration:   elapsed,
		},
	}
}

// detachLocked stops the timers of the current transition and hands back its
// poll handle for cancellation outside mu. The restart command is aborted only
// when abortRestart is set; a settled transition keeps its command running.
func (c *Controller) detachLocked(abortRestart bool) readiness.PollHandle {
	h := c.handle
	c.handle = nil
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	if abortRestart && c.restartCancel != nil {
		c.restartCancel()
		c.restartCancel = nil
	}
	return h
}

func (c *Controller) armRevealLocked(gen uint64) {
	c.revealPending = true
	c.revealTimer = time.AfterFunc(c.cfg.RevealTimeout, func() { c.onRevealTimeout(gen) })
}

func (c *Controller) clearRevealLocked() {
	c.revealPending = false
	if c.revealTimer != nil {
		c.revealTimer.Stop()
		c.revealTimer = nil
	}
}

func (c *Controller) endSpanLocked(source string, err error) {
	if c.span == nil {
		return
	}
	c.span.SetAttributes(
		attribute.String(telemetry.TransitionSourceKey, source),
		attribute.Int(telemetry.TransitionAttemptKey, c.state.Attempt),
	)
	switch {
	case err != nil:
		c.span.RecordError(err)
		c.span.SetStatus(codes.Error, err.Error())
	case source != "superseded":
		c.span.SetStatus(codes.Ok, "")
	}
	c.span.End()
	c.span = nil
}

func (c *Controller) apply(e effects) {
	if e.cancel != nil {
		e.cancel.Cancel()
	}
	if e.outcome != nil && c.notifier != nil {
		c.notifier.TransitionSettled(*e.outcome)
	}
}

// Reason returns a short label for a transition error, for metrics and API payloads.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidQuality):
		return "invalid_quality"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrReadinessTimeout):
		return "readiness_timeout"
	case errors.Is(err, ErrTransitionFailed):
		return "transition_failed"
	default:
		return "unknown"
	}
}
