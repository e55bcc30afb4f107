// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transition

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/streamctl/internal/hostclient"
	"github.com/ManuGH/streamctl/internal/playback"
	"github.com/ManuGH/streamctl/internal/readiness"
	"github.com/ManuGH/streamctl/internal/session"
	"github.com/ManuGH/streamctl/internal/streamprofile"
)

const waitFor = 2 * time.Second

type fakeRestarter struct {
	mu    sync.Mutex
	reqs     []hostclient.RestartRequest
	errs     []error
	returned []error
	block    chan struct{}
}

func (f *fakeRestarter) Restart(ctx context.Context, req hostclient.RestartRequest) error {
	f.mu.Lock()
	i := len(f.reqs)
	f.reqs = append(f.reqs, req)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	f.mu.Lock()
	f.returned = append(f.returned, err)
	f.mu.Unlock()
	return err
}

// Returned lists what each finished Restart call returned, in completion order.
func (f *fakeRestarter) Returned() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]error(nil), f.returned...)
}

func (f *fakeRestarter) Requests() []hostclient.RestartRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]hostclient.RestartRequest(nil), f.reqs...)
}

// fakeHandle mirrors the real handle contract: one callback at most, none
// after Cancel returned.
type fakeHandle struct {
	mu        sync.Mutex
	cancelled bool
	fired     bool
	cb        readiness.Callbacks
	gen       uint64
	done      chan struct{}
	doneOnce  sync.Once
}

func (h *fakeHandle) Cancel() {
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
	h.doneOnce.Do(func() { close(h.done) })
}

func (h *fakeHandle) Done() <-chan struct{} { return h.done }

func (h *fakeHandle) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

func (h *fakeHandle) fire(fn func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled || h.fired {
		return false
	}
	h.fired = true
	fn()
	h.doneOnce.Do(func() { close(h.done) })
	return true
}

func (h *fakeHandle) Ready() bool {
	return h.fire(func() { h.cb.OnReady(h.gen) })
}

func (h *fakeHandle) Timeout() bool {
	return h.fire(func() { h.cb.OnTimeout(h.gen, readiness.ErrReadyTimeout) })
}

type pollStart struct {
	target streamprofile.Quality
	handle *fakeHandle
}

type fakePoller struct {
	starts chan pollStart
}

func newFakePoller() *fakePoller {
	return &fakePoller{starts: make(chan pollStart, 16)}
}

func (p *fakePoller) Start(_ context.Context, target streamprofile.Quality, gen uint64, cb readiness.Callbacks) readiness.PollHandle {
	h := &fakeHandle{cb: cb, gen: gen, done: make(chan struct{})}
	p.starts <- pollStart{target: target, handle: h}
	return h
}

type harness struct {
	sess      *session.Session
	gate      *playback.Gate
	restarter *fakeRestarter
	poller    *fakePoller
	outcomes  chan Outcome
	ctrl      *Controller
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	if cfg.RevealTimeout == 0 {
		cfg.RevealTimeout = time.Minute
	}
	cfg.Logger = zerolog.Nop()

	h := &harness{
		sess:      session.New(session.Key{Host: "host-1", Device: "cam-1"}, streamprofile.QualityLow),
		gate:      playback.NewGate(),
		restarter: &fakeRestarter{},
		poller:    newFakePoller(),
		outcomes:  make(chan Outcome, 16),
	}
	h.ctrl = New(h.sess, h.gate, h.restarter, h.poller,
		NotifierFunc(func(o Outcome) { h.outcomes <- o }), cfg)
	t.Cleanup(h.ctrl.Close)
	return h
}

func (h *harness) nextStart(t *testing.T) pollStart {
	t.Helper()
	select {
	case s := <-h.poller.starts:
		return s
	case <-time.After(waitFor):
		t.Fatal("poller was not started")
		return pollStart{}
	}
}

func (h *harness) noStart(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case s := <-h.poller.starts:
		t.Fatalf("unexpected poll start for %s", s.target)
	case <-time.After(within):
	}
}

func (h *harness) nextOutcome(t *testing.T) Outcome {
	t.Helper()
	select {
	case o := <-h.outcomes:
		return o
	case <-time.After(waitFor):
		t.Fatal("transition did not settle")
		return Outcome{}
	}
}

func (h *harness) noOutcome(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case o := <-h.outcomes:
		t.Fatalf("unexpected outcome %+v", o)
	case <-time.After(within):
	}
}
