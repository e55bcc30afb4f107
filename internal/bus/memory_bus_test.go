// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamctl/internal/metrics"
	"github.com/ManuGH/streamctl/internal/playback"
)

func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, counter.Write(metric))
	return metric.GetCounter().GetValue()
}

func gateEvent(s playback.State) Event {
	return Event{Kind: KindGate, Host: "host-1", Device: "cam-1", Gate: &s}
}

func TestMemoryBusDeliversToTopicSubscribers(t *testing.T) {
	b := NewMemoryBus()
	topic := ViewerTopic("host-1", "cam-1")

	sub, err := b.Subscribe(context.Background(), topic)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	other, err := b.Subscribe(context.Background(), ViewerTopic("host-1", "cam-2"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = other.Close() })

	require.NoError(t, b.Publish(context.Background(), topic, gateEvent(playback.Engaged(true))))

	select {
	case ev := <-sub.C():
		assert.Equal(t, KindGate, ev.Kind)
		assert.Equal(t, playback.Engaged(true), *ev.Gate)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	assert.Empty(t, other.C())
}

func TestMemoryBusPublishContextTimeoutIncrementsDropMetrics(t *testing.T) {
	b := NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), "topic")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	for i := 0; i < cap(sub.C()); i++ {
		require.NoError(t, b.Publish(context.Background(), "topic", gateEvent(playback.Released())))
	}

	initial := getCounterValue(t, metrics.BusDroppedTotal.WithLabelValues(KindGate, "timeout"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = b.Publish(ctx, "topic", gateEvent(playback.Engaged(false)))
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	final := getCounterValue(t, metrics.BusDroppedTotal.WithLabelValues(KindGate, "timeout"))
	require.Greater(t, final, initial, "expected bus drop counter to increase")
}

func TestMemoryBusPublishRejectsNilContext(t *testing.T) {
	b := NewMemoryBus()
	err := b.Publish(nil, "topic", Event{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "context is nil")
}

func TestMemoryBusCloseUnblocksPublisher(t *testing.T) {
	b := NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), "topic")
	require.NoError(t, err)
	for i := 0; i < cap(sub.C()); i++ {
		require.NoError(t, b.Publish(context.Background(), "topic", Event{Kind: KindViewer}))
	}

	published := make(chan error, 1)
	go func() { published <- b.Publish(context.Background(), "topic", Event{Kind: KindViewer}) }()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	select {
	case err := <-published:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publisher stayed blocked after subscriber closed")
	}

	require.NoError(t, b.Close())
	_, err = b.Subscribe(context.Background(), "topic")
	assert.ErrorIs(t, err, ErrBusClosed)
	assert.ErrorIs(t, b.Publish(context.Background(), "topic", Event{}), ErrBusClosed)
}
