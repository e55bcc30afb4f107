// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package viewer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/streamctl/internal/bus"
	"github.com/ManuGH/streamctl/internal/hostclient"
	xglog "github.com/ManuGH/streamctl/internal/log"
	"github.com/ManuGH/streamctl/internal/metrics"
	"github.com/ManuGH/streamctl/internal/playback"
	"github.com/ManuGH/streamctl/internal/readiness"
	"github.com/ManuGH/streamctl/internal/session"
	"github.com/ManuGH/streamctl/internal/streamprofile"
	"github.com/ManuGH/streamctl/internal/transition"
)

var (
	ErrNotMounted = errors.New("viewer not mounted")
	ErrShutdown   = errors.New("viewer manager shut down")
)

// HostAPI is the subset of the host API client a viewer needs.
type HostAPI interface {
	transition.Restarter
	session.Reverter
	readiness.Prober
}

var _ HostAPI = (*hostclient.Client)(nil)

const publishTimeout = 2 * time.Second

// MountOptions describe the quality the viewer wants on first load.
type MountOptions struct {
	// Quality is the requested initial quality; empty means baseline.
	Quality     streamprofile.Quality
	ShowOverlay bool
}

// Manager owns all mounted viewers.
type Manager struct {
	host   HostAPI
	events bus.Bus
	tracer trace.Tracer
	logger zerolog.Logger

	mu       sync.Mutex
	cfg      Config
	viewers  map[session.Key]*Viewer
	shutdown bool
}

// NewManager creates a Manager. events and tracer may be nil.
func NewManager(host HostAPI, events bus.Bus, tracer trace.Tracer, cfg Config, logger zerolog.Logger) *Manager {
	return &Manager{
		host:    host,
		events:  events,
		tracer:  tracer,
		logger:  logger.With().Str(xglog.FieldComponent, "viewer_manager").Logger(),
		cfg:     cfg,
		viewers: make(map[session.Key]*Viewer),
	}
}

// UpdateConfig replaces the timings used for future mounts.
func (m *Manager) UpdateConfig(cfg Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	m.logger.Info().
		Str(xglog.FieldEvent, "viewer.config_updated").
		Str(xglog.FieldBaseline, cfg.Baseline.String()).
		Msg("viewer timings updated for new mounts")
}

// Mount registers a viewer for key. Mounting an already mounted key returns the
// existing viewer and created=false. When opts.Quality differs from the
// baseline, an initial-load switch is requested.
func (m *Manager) Mount(ctx context.Context, key session.Key, opts MountOptions) (v *Viewer, created bool, err error) {
	if opts.Quality != "" && !opts.Quality.Valid() {
		return nil, false, fmt.Errorf("%w: %q", transition.ErrInvalidQuality, opts.Quality)
	}

	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil, false, ErrShutdown
	}
	if existing, ok := m.viewers[key]; ok {
		m.mu.Unlock()
		return existing, false, nil
	}
	v = m.newViewerLocked(key)
	m.viewers[key] = v
	m.mu.Unlock()

	metrics.ActiveViewers.Inc()
	v.startForwarding()
	m.publish(ctx, key, bus.Event{Kind: bus.KindViewer, Action: bus.ActionMounted, SessionID: v.Session.ID})

	v.logger.Info().
		Str(xglog.FieldEvent, "viewer.mounted").
		Str(xglog.FieldBaseline, v.Session.Baseline.String()).
		Msg("viewer mounted")

	if opts.Quality != "" && opts.Quality != v.Session.Baseline {
		err := v.Controller.RequestSwitch(ctx, opts.Quality, transition.SwitchOptions{
			ShowOverlay: opts.ShowOverlay,
			InitialLoad: true,
		})
		if err != nil {
			return v, true, fmt.Errorf("initial quality switch: %w", err)
		}
	}
	return v, true, nil
}

func (m *Manager) newViewerLocked(key session.Key) *Viewer {
	cfg := m.cfg
	sess := session.New(key, cfg.Baseline)
	logger := m.logger.With().
		Str(xglog.FieldComponent, "viewer").
		Str(xglog.FieldHost, key.Host).
		Str(xglog.FieldDevice, key.Device).
		Str(xglog.FieldSessionID, sess.ID).
		Logger()

	gate := playback.NewGate()
	poller := readiness.NewPoller(m.host, key.Host, key.Device, cfg.Poll, logger)

	v := &Viewer{
		Key:     key,
		Session: sess,
		Gate:    gate,
		manager: m,
		logger:  logger,
		done:    make(chan struct{}),
	}
	v.Controller = transition.New(sess, gate, m.host, poller, transition.NotifierFunc(v.transitionSettled), transition.Config{
		RetryDelay:    cfg.RetryDelay,
		RevealTimeout: cfg.RevealTimeout,
		Logger:        logger,
		Tracer:        m.tracer,
	})
	v.Guard = session.NewGuard(sess, m.host, v.Controller, session.GuardConfig{
		RevertTimeout: cfg.RevertTimeout,
		Logger:        logger,
	})
	return v
}

// Get returns the mounted viewer for key.
func (m *Manager) Get(key session.Key) (*Viewer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.viewers[key]
	return v, ok
}

// Count returns the number of mounted viewers.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.viewers)
}

// Snapshots returns the state of every mounted viewer ordered by key.
func (m *Manager) Snapshots() []transition.Snapshot {
	m.mu.Lock()
	list := make([]*Viewer, 0, len(m.viewers))
	for _, v := range m.viewers {
		list = append(list, v)
	}
	m.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Key.String() < list[j].Key.String() })
	out := make([]transition.Snapshot, 0, len(list))
	for _, v := range list {
		out = append(out, v.Controller.Snapshot())
	}
	return out
}

// Unmount tears the viewer down. The revert, if any, continues in the
// background; use Viewer.Done to wait for it.
func (m *Manager) Unmount(ctx context.Context, key session.Key) (*Viewer, error) {
	m.mu.Lock()
	v, ok := m.viewers[key]
	if ok {
		delete(m.viewers, key)
	}
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotMounted
	}

	v.teardown(ctx)
	metrics.ActiveViewers.Dec()
	m.publish(ctx, key, bus.Event{Kind: bus.KindViewer, Action: bus.ActionUnmounted, SessionID: v.Session.ID})
	v.logger.Info().
		Str(xglog.FieldEvent, "viewer.unmounted").
		Str(xglog.FieldQuality, v.Session.QualityRef().Load().String()).
		Msg("viewer unmounted")
	return v, nil
}

// Shutdown unmounts every viewer, refuses new mounts and waits for pending
// reverts until ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.shutdown = true
	keys := make([]session.Key, 0, len(m.viewers))
	for k := range m.viewers {
		keys = append(keys, k)
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			v, err := m.Unmount(gctx, key)
			if err != nil {
				return nil
			}
			select {
			case <-v.Done():
				return nil
			case <-gctx.Done():
				return fmt.Errorf("waiting for %s teardown: %w", key, gctx.Err())
			}
		})
	}
	err := g.Wait()
	m.logger.Info().
		Str(xglog.FieldEvent, "viewer.shutdown").
		Int("viewers", len(keys)).
		Err(err).
		Msg("viewer manager shut down")
	return err
}

func (m *Manager) publish(ctx context.Context, key session.Key, ev bus.Event) {
	if m.events == nil {
		return
	}
	ev.Host = key.Host
	ev.Device = key.Device
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := m.events.Publish(pctx, bus.ViewerTopic(key.Host, key.Device), ev); err != nil {
		m.logger.Debug().Err(err).
			Str(xglog.FieldEvent, "viewer.publish_failed").
			Str(xglog.FieldHost, key.Host).
			Str(xglog.FieldDevice, key.Device).
			Str("kind", ev.Kind).
			Msg("failed to publish viewer event")
	}
}
