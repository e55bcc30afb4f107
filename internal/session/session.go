// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package session models one mounted viewer of a device stream and the guard
// that restores the stream's baseline quality when the viewer goes away.
package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/streamctl/internal/streamprofile"
)

// Key identifies a viewing surface.
type Key struct {
	Host   string
	Device string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Host, k.Device)
}

// QualityRef is a lock-free view of a session's quality, safe to read from any
// goroutine including teardown paths registered before the quality changed.
type QualityRef struct {
	v atomic.Value // streamprofile.Quality
}

func (r *QualityRef) Load() streamprofile.Quality {
	q, _ := r.v.Load().(streamprofile.Quality)
	return q
}

func (r *QualityRef) store(q streamprofile.Quality) {
	r.v.Store(q)
}

// Session is the per-viewer stream state.
type Session struct {
	Key       Key
	ID        string
	Baseline  streamprofile.Quality
	CreatedAt time.Time

	mu      sync.RWMutex
	current streamprofile.Quality
	ref     QualityRef
}

// New creates a session running at baseline.
func New(key Key, baseline streamprofile.Quality) *Session {
	if !baseline.Valid() {
		baseline = streamprofile.DefaultBaseline
	}
	s := &Session{
		Key:       key,
		ID:        uuid.NewString(),
		Baseline:  baseline,
		CreatedAt: time.Now(),
		current:   baseline,
	}
	s.ref.store(baseline)
	return s
}

// Quality returns the quality the viewer currently asks for.
func (s *Session) Quality() streamprofile.Quality {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// QualityRef returns the live mirror of Quality.
func (s *Session) QualityRef() *QualityRef {
	return &s.ref
}

// SetQuality updates the quality and its mirror together. Callers must invoke
// it before issuing any async work for the new quality.
func (s *Session) SetQuality(q streamprofile.Quality) {
	s.mu.Lock()
	s.current = q
	s.ref.store(q)
	s.mu.Unlock()
}
