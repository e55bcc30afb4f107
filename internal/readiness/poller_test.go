// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package readiness

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/streamctl/internal/hostclient"
	"github.com/ManuGH/streamctl/internal/streamprofile"
)

type probeStep struct {
	res hostclient.ProbeResult
	err error
}

// scriptedProber replays steps in order and repeats the last one.
type scriptedProber struct {
	mu    sync.Mutex
	steps []probeStep
	calls int
	gate  chan struct{} // when set, each probe blocks until it receives
}

func (p *scriptedProber) Probe(ctx context.Context, _, _ string) (hostclient.ProbeResult, error) {
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return hostclient.ProbeResult{}, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if i >= len(p.steps) {
		i = len(p.steps) - 1
	}
	s := p.steps[i]
	return s.res, s.err
}

func (p *scriptedProber) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

var (
	notReady = probeStep{res: hostclient.ProbeResult{Exists: true, Stable: false}}
	readyHD  = probeStep{res: hostclient.ProbeResult{Exists: true, Stable: true, Quality: "high", Segments: 3}}
	readySD  = probeStep{res: hostclient.ProbeResult{Exists: true, Stable: true, Quality: "low", Segments: 3}}
)

type recorder struct {
	mu       sync.Mutex
	ready    []uint64
	timeouts []uint64
	reasons  []error
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnReady: func(gen uint64) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.ready = append(r.ready, gen)
		},
		OnTimeout: func(gen uint64, reason error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.timeouts = append(r.timeouts, gen)
			r.reasons = append(r.reasons, reason)
		},
	}
}

func (r *recorder) snapshot() (ready, timeouts []uint64, reasons []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.ready...), append([]uint64(nil), r.timeouts...), append([]error(nil), r.reasons...)
}

func fastConfig() Config {
	return Config{Interval: 2 * time.Millisecond, Budget: 2 * time.Second, StableProbes: 1}
}

func waitDone(t *testing.T, h PollHandle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("poll did not finish")
	}
}

func TestPoller_ReadyOnFirstProbe(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	prober := &scriptedProber{steps: []probeStep{readyHD}}
	rec := &recorder{}
	p := NewPoller(prober, "host-1", "cam-1", fastConfig(), zerolog.Nop())

	h := p.Start(context.Background(), streamprofile.QualityHigh, 7, rec.callbacks())
	waitDone(t, h)

	ready, timeouts, _ := rec.snapshot()
	assert.Equal(t, []uint64{7}, ready)
	assert.Empty(t, timeouts)
	assert.Equal(t, 1, prober.Calls())
}

func TestPoller_KeepsPollingUntilReady(t *testing.T) {
	prober := &scriptedProber{steps: []probeStep{notReady, notReady, {err: errors.New("connection reset")}, readyHD}}
	rec := &recorder{}
	p := NewPoller(prober, "host-1", "cam-1", fastConfig(), zerolog.Nop())

	h := p.Start(context.Background(), streamprofile.QualityHigh, 1, rec.callbacks())
	waitDone(t, h)

	ready, timeouts, _ := rec.snapshot()
	assert.Equal(t, []uint64{1}, ready)
	assert.Empty(t, timeouts)
	assert.Equal(t, 4, prober.Calls())
}

func TestPoller_StableProbesDebounce(t *testing.T) {
	// ready, flap, ready, ready: the flap resets the counter.
	prober := &scriptedProber{steps: []probeStep{readyHD, notReady, readyHD, readyHD}}
	rec := &recorder{}
	cfg := fastConfig()
	cfg.StableProbes = 2
	p := NewPoller(prober, "host-1", "cam-1", cfg, zerolog.Nop())

	h := p.Start(context.Background(), streamprofile.QualityHigh, 3, rec.callbacks())
	waitDone(t, h)

	ready, _, _ := rec.snapshot()
	assert.Equal(t, []uint64{3}, ready)
	assert.Equal(t, 4, prober.Calls())
}

func TestPoller_WrongQualityIsNotReady(t *testing.T) {
	prober := &scriptedProber{steps: []probeStep{readySD}}
	rec := &recorder{}
	cfg := fastConfig()
	cfg.Budget = 40 * time.Millisecond
	p := NewPoller(prober, "host-1", "cam-1", cfg, zerolog.Nop())

	h := p.Start(context.Background(), streamprofile.QualityHigh, 2, rec.callbacks())
	waitDone(t, h)

	ready, timeouts, reasons := rec.snapshot()
	assert.Empty(t, ready)
	require.Equal(t, []uint64{2}, timeouts)

	var te *TimeoutError
	require.ErrorAs(t, reasons[0], &te)
	assert.ErrorIs(t, reasons[0], ErrReadyTimeout)
	assert.Equal(t, streamprofile.QualityHigh, te.Target)
	assert.Equal(t, "low", te.Last.Quality)
	assert.Positive(t, te.Polls)
}

func TestPoller_TimeoutCarriesLastProbeError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	probeErr := errors.New("host unreachable")
	prober := &scriptedProber{steps: []probeStep{{err: probeErr}}}
	rec := &recorder{}
	cfg := fastConfig()
	cfg.Budget = 30 * time.Millisecond
	p := NewPoller(prober, "host-1", "cam-1", cfg, zerolog.Nop())

	h := p.Start(context.Background(), streamprofile.QualityStandard, 9, rec.callbacks())
	waitDone(t, h)

	_, timeouts, reasons := rec.snapshot()
	require.Equal(t, []uint64{9}, timeouts)
	var te *TimeoutError
	require.ErrorAs(t, reasons[0], &te)
	assert.Equal(t, probeErr, te.LastErr)
	assert.Contains(t, te.Error(), "host unreachable")
}

func TestPoller_CancelSuppressesCallbacks(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	gate := make(chan struct{})
	prober := &scriptedProber{steps: []probeStep{readyHD}, gate: gate}
	rec := &recorder{}
	p := NewPoller(prober, "host-1", "cam-1", fastConfig(), zerolog.Nop())

	h := p.Start(context.Background(), streamprofile.QualityHigh, 4, rec.callbacks())
	h.Cancel()
	// A probe released after Cancel must not lead to a callback.
	close(gate)
	waitDone(t, h)

	ready, timeouts, _ := rec.snapshot()
	assert.Empty(t, ready)
	assert.Empty(t, timeouts)
}

func TestPoller_CancelIsIdempotent(t *testing.T) {
	prober := &scriptedProber{steps: []probeStep{readyHD}}
	rec := &recorder{}
	p := NewPoller(prober, "host-1", "cam-1", fastConfig(), zerolog.Nop())

	h := p.Start(context.Background(), streamprofile.QualityHigh, 5, rec.callbacks())
	waitDone(t, h)

	assert.NotPanics(t, func() {
		h.Cancel()
		h.Cancel()
	})
	ready, _, _ := rec.snapshot()
	assert.Equal(t, []uint64{5}, ready)
}

func TestPoller_CancelWaitsForRunningCallback(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	prober := &scriptedProber{steps: []probeStep{readyHD}}
	p := NewPoller(prober, "host-1", "cam-1", fastConfig(), zerolog.Nop())
	h := p.Start(context.Background(), streamprofile.QualityHigh, 6, Callbacks{
		OnReady: func(uint64) {
			close(entered)
			<-release
			finished.Store(true)
		},
	})

	<-entered
	cancelled := make(chan struct{})
	go func() {
		h.Cancel()
		close(cancelled)
	}()

	select {
	case <-cancelled:
		t.Fatal("Cancel returned while callback was running")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-cancelled
	assert.True(t, finished.Load())
	waitDone(t, h)
}

func TestPoller_ParentCancellationIsSilent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	prober := &scriptedProber{steps: []probeStep{notReady}}
	rec := &recorder{}
	p := NewPoller(prober, "host-1", "cam-1", fastConfig(), zerolog.Nop())

	h := p.Start(ctx, streamprofile.QualityHigh, 8, rec.callbacks())
	time.Sleep(10 * time.Millisecond)
	cancel()
	waitDone(t, h)

	ready, timeouts, _ := rec.snapshot()
	assert.Empty(t, ready)
	assert.Empty(t, timeouts)
}

func TestConfigNormalized(t *testing.T) {
	got := Config{Jitter: -time.Second}.normalized()
	want := DefaultConfig()
	want.Jitter = 0
	assert.Equal(t, want, got)
}
