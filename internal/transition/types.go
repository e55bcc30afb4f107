// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transition

import (
	"context"
	"time"

	"github.com/ManuGH/streamctl/internal/hostclient"
	"github.com/ManuGH/streamctl/internal/playback"
	"github.com/ManuGH/streamctl/internal/readiness"
	"github.com/ManuGH/streamctl/internal/streamprofile"
)

// Phase of the transition state machine.
type Phase string

const (
	PhaseStable    Phase = "stable"
	PhaseSwitching Phase = "switching"
)

// Sources that can settle a transition.
const (
	SourcePoller    = "poller"
	SourcePlayer    = "player"
	SourceCommand   = "command"
	SourceTransport = "transport"
	SourceTimeout   = "timeout"
)

// State is the transition record. Attempt is 0 for the first try and 1 once the
// single retry has been used.
type State struct {
	Phase       Phase
	Target      streamprofile.Quality
	Attempt     int
	InitialLoad bool
	ShowOverlay bool
	Generation  uint64
}

// SwitchOptions tune how a switch is presented to the viewer.
type SwitchOptions struct {
	// ShowOverlay covers the video until the new stream is confirmed.
	ShowOverlay bool
	// InitialLoad marks the first load after mount: the player has nothing to
	// hold, so it is not paused.
	InitialLoad bool
}

// Restarter issues the encoder restart command.
type Restarter interface {
	Restart(ctx context.Context, req hostclient.RestartRequest) error
}

// ReadinessPoller starts a readiness poll for one transition.
type ReadinessPoller interface {
	Start(ctx context.Context, target streamprofile.Quality, generation uint64, cb readiness.Callbacks) readiness.PollHandle
}

// Outcome reports how a transition settled.
type Outcome struct {
	Host       string                `json:"host"`
	Device     string                `json:"device"`
	Target     streamprofile.Quality `json:"target"`
	Generation uint64                `json:"generation"`
	Retries    int                   `json:"retries"`
	Source     string                `json:"source"`
	Err        error                 `json:"-"`
	Duration   time.Duration         `json:"duration"`
}

func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Notifier receives settled transitions. It is called without the controller
// lock held but possibly from a readiness callback, so it must not block for long.
type Notifier interface {
	TransitionSettled(Outcome)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Outcome)

func (f NotifierFunc) TransitionSettled(o Outcome) {
	f(o)
}

// Snapshot is a consistent read of the controller and its gate.
type Snapshot struct {
	Host          string                `json:"host"`
	Device        string                `json:"device"`
	SessionID     string                `json:"sessionId"`
	Quality       streamprofile.Quality `json:"quality"`
	Baseline      streamprofile.Quality `json:"baseline"`
	Phase         Phase                 `json:"phase"`
	Target        streamprofile.Quality `json:"target,omitempty"`
	RetryCount    int                   `json:"retryCount"`
	Generation    uint64                `json:"generation"`
	ShowOverlay   bool                  `json:"showOverlay"`
	InitialLoad   bool                  `json:"initialLoad"`
	RevealPending bool                  `json:"revealPending"`
	Gate          playback.State        `json:"gate"`
}
