// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package playback holds the gate that decides whether a viewer may see and
// advance the live stream while the encoder is being restarted.
package playback

import "sync"

// State is what renderers read: an opaque cover over the video and whether the
// player must hold its position.
type State struct {
	CoverVisible bool `json:"coverVisible"`
	Paused       bool `json:"paused"`
}

// Engaged covers the stream, optionally pausing the player.
func Engaged(pause bool) State {
	return State{CoverVisible: true, Paused: pause}
}

// Released is the idle state: nothing covered, nothing paused.
func Released() State {
	return State{}
}

// Gate stores the current State. Only the transition controller writes it.
type Gate struct {
	mu    sync.RWMutex
	state State
	subs  map[int]chan State
	next  int
}

func NewGate() *Gate {
	return &Gate{subs: make(map[int]chan State)}
}

func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Apply replaces the state and reports whether it changed. Subscribers only
// see changes.
func (g *Gate) Apply(s State) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == s {
		return false
	}
	g.state = s
	for _, ch := range g.subs {
		offerLatest(ch, s)
	}
	return true
}

// Subscribe returns a channel that always holds the most recent undelivered
// state. The current state is delivered first. The channel is closed by the
// returned cancel function.
func (g *Gate) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	g.mu.Lock()
	id := g.next
	g.next++
	g.subs[id] = ch
	ch <- g.state
	g.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.subs, id)
			g.mu.Unlock()
			close(ch)
		})
	}
}

// offerLatest drops a stale buffered value so slow readers never block Apply.
func offerLatest(ch chan State, s State) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}
