// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/streamctl/internal/log"
	"github.com/ManuGH/streamctl/internal/metrics"
)

// MemoryBus is an in-process pub/sub. Publish blocks on a full subscriber
// until the publish context is done.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]*memSub
	closed bool
}

const dropLogEvery = 100

var dropCount atomic.Uint64

var ErrBusClosed = errors.New("bus closed")

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memSub)}
}

func publishDropReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "context_done"
	}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, ev Event) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	subs := append([]*memSub(nil), b.subs[topic]...)
	b.mu.RUnlock()

	for _, s := range subs {
		if err := s.deliver(ctx, ev); err != nil {
			reason := publishDropReason(err)
			metrics.IncBusDropReason(ev.Kind, reason)
			count := dropCount.Add(1)
			if count%dropLogEvery == 1 {
				log.L().Warn().
					Str("topic", topic).
					Str("reason", reason).
					Uint64("dropped", count).
					Msg("memory bus failed to publish due to context cancellation")
			}
			return fmt.Errorf("publish topic %q: %w", topic, err)
		}
	}
	metrics.IncBusPublished(ev.Kind, "memory")
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topic string) (Subscriber, error) {
	s := &memSub{b: b, topic: topic, ch: make(chan Event, subscriberBuffer), quit: make(chan struct{})}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	b.subs[topic] = append(b.subs[topic], s)
	return s, nil
}

// Close closes every open subscription.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	var all []*memSub
	for _, lst := range b.subs {
		all = append(all, lst...)
	}
	b.subs = make(map[string][]*memSub)
	b.mu.Unlock()

	for _, s := range all {
		s.shutdown()
	}
	return nil
}

type memSub struct {
	b     *MemoryBus
	topic string
	ch    chan Event

	// sendMu serialises delivery with shutdown so ch is never written after close.
	sendMu sync.Mutex
	quit   chan struct{}
	once   sync.Once
}

func (s *memSub) deliver(ctx context.Context, ev Event) error {
	select {
	case <-s.quit:
		return nil
	default:
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	select {
	case <-s.quit:
		return nil
	case s.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *memSub) C() <-chan Event {
	return s.ch
}

func (s *memSub) Close() error {
	s.b.mu.Lock()
	lst := s.b.subs[s.topic]
	out := lst[:0]
	for _, c := range lst {
		if c != s {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		delete(s.b.subs, s.topic)
	} else {
		s.b.subs[s.topic] = out
	}
	s.b.mu.Unlock()

	s.shutdown()
	return nil
}

func (s *memSub) shutdown() {
	s.once.Do(func() {
		close(s.quit)
		s.sendMu.Lock()
		close(s.ch)
		s.sendMu.Unlock()
	})
}

var _ Bus = (*MemoryBus)(nil)
