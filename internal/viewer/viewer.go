// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package viewer

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/streamctl/internal/bus"
	"github.com/ManuGH/streamctl/internal/playback"
	"github.com/ManuGH/streamctl/internal/session"
	"github.com/ManuGH/streamctl/internal/transition"
)

// Viewer is one mounted viewing surface.
type Viewer struct {
	Key        session.Key
	Session    *session.Session
	Gate       *playback.Gate
	Controller *transition.Controller
	Guard      *session.Guard

	manager *Manager
	logger  zerolog.Logger

	fwdOnce  sync.Once
	stopFwd  func()
	fwdDone  chan struct{}
	downOnce sync.Once
	done     chan struct{}
}

// Done is closed after unmount once the forwarder stopped and any revert finished.
func (v *Viewer) Done() <-chan struct{} {
	return v.done
}

// startForwarding publishes every gate change until teardown.
func (v *Viewer) startForwarding() {
	v.fwdOnce.Do(func() {
		ch, stop := v.Gate.Subscribe()
		v.stopFwd = stop
		v.fwdDone = make(chan struct{})
		go func() {
			defer close(v.fwdDone)
			for s := range ch {
				state := s
				v.manager.publish(context.Background(), v.Key, bus.Event{
					Kind:      bus.KindGate,
					SessionID: v.Session.ID,
					Gate:      &state,
				})
			}
		}()
	})
}

func (v *Viewer) transitionSettled(o transition.Outcome) {
	ev := &bus.TransitionEvent{
		Target:     o.Target.String(),
		Generation: o.Generation,
		Retries:    o.Retries,
		Source:     o.Source,
		Success:    o.Succeeded(),
		DurationMS: o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		ev.Reason = transition.Reason(o.Err)
		ev.Error = o.Err.Error()
	}
	v.manager.publish(context.Background(), v.Key, bus.Event{
		Kind:       bus.KindTransition,
		SessionID:  v.Session.ID,
		Transition: ev,
	})
}

// teardown runs the guard, stops the gate forwarder and closes done once both
// the forwarder and the guard have finished.
func (v *Viewer) teardown(ctx context.Context) {
	v.downOnce.Do(func() {
		v.Guard.Teardown(ctx)
		if v.stopFwd != nil {
			v.stopFwd()
		}
		go func() {
			defer close(v.done)
			if v.fwdDone != nil {
				<-v.fwdDone
			}
			<-v.Guard.Done()
		}()
	})
}
