// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package readiness

import (
	"context"
	"sync"
)

// PollHandle controls one running readiness poll.
type PollHandle interface {
	// Cancel stops probing. Once Cancel returns no callback of this poll will run.
	// Safe to call any number of times, also after the poll completed.
	Cancel()
	// Done is closed when the poll loop has exited.
	Done() <-chan struct{}
}

type handle struct {
	mu        sync.Mutex
	cancelled bool
	fired     bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func newHandle(cancel context.CancelFunc) *handle {
	return &handle{cancel: cancel, done: make(chan struct{})}
}

func (h *handle) Cancel() {
	// Taking the lock waits out a callback that is already running.
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
	h.cancel()
}

func (h *handle) Done() <-chan struct{} {
	return h.done
}

// fire runs fn unless the handle was cancelled or already fired. fn runs with the
// handle lock held, so it must not call Cancel on this handle.
func (h *handle) fire(fn func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled || h.fired {
		return false
	}
	h.fired = true
	if fn != nil {
		fn()
	}
	return true
}
