// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bus fans viewer events (gate changes, settled transitions) out to
// WebSocket clients, in process or across console replicas via Redis.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/streamctl/internal/playback"
)

// Event kinds.
const (
	KindGate       = "gate"
	KindTransition = "transition"
	KindViewer     = "viewer"
)

// Viewer lifecycle actions carried by KindViewer events.
const (
	ActionMounted   = "mounted"
	ActionUnmounted = "unmounted"
)

// Event is one viewer notification.
type Event struct {
	Kind       string           `json:"kind"`
	Host       string           `json:"host"`
	Device     string           `json:"device"`
	SessionID  string           `json:"sessionId,omitempty"`
	At         time.Time        `json:"at"`
	Gate       *playback.State  `json:"gate,omitempty"`
	Transition *TransitionEvent `json:"transition,omitempty"`
	Action     string           `json:"action,omitempty"`
}

// TransitionEvent is the wire form of a settled transition.
type TransitionEvent struct {
	Target     string `json:"target"`
	Generation uint64 `json:"generation"`
	Retries    int    `json:"retries"`
	Source     string `json:"source"`
	Success    bool   `json:"success"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"durationMs"`
}

// Bus publishes events to topic subscribers.
type Bus interface {
	Publish(ctx context.Context, topic string, ev Event) error
	Subscribe(ctx context.Context, topic string) (Subscriber, error)
	Close() error
}

// Subscriber receives events for one topic until closed.
type Subscriber interface {
	C() <-chan Event
	Close() error
}

// ViewerTopic is the topic carrying events of one viewing surface.
func ViewerTopic(host, device string) string {
	return fmt.Sprintf("viewer/%s/%s", host, device)
}

const subscriberBuffer = 64
