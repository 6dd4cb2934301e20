package netmon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	updates chan PathUpdate
	err     error
}

func (f *fakeSource) Watch(ctx context.Context) (<-chan PathUpdate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.updates, nil
}

func newTestMonitor(t *testing.T, source Source) (*Monitor, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	m := New(source, zap.NewNop())
	m.retryInterval = 10 * time.Millisecond
	return m, ctx
}

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reachability event")
		return Event{}
	}
}

func TestOnlyEdgesEmitEvents(t *testing.T) {
	source := &fakeSource{updates: make(chan PathUpdate)}
	m, ctx := newTestMonitor(t, source)

	events, cancel := m.Subscribe()
	defer cancel()

	m.Start(ctx)

	source.updates <- PathUpdate{Reachable: true, Transport: TransportUnmetered}
	ev := waitEvent(t, events)
	require.Equal(t, EventRestored, ev.Kind)
	require.Equal(t, TransportUnmetered, ev.Transport)
	require.True(t, m.Reachable())

	// Repeats of the same value must be absorbed.
	source.updates <- PathUpdate{Reachable: true, Transport: TransportUnmetered}
	source.updates <- PathUpdate{Reachable: true, Transport: TransportWired}
	source.updates <- PathUpdate{Reachable: false, Transport: TransportNone}

	ev = waitEvent(t, events)
	require.Equal(t, EventLost, ev.Kind, "the steady reachable updates must not emit")
	require.False(t, m.Reachable())
	require.Empty(t, events)
}

func TestRepeatedLossStaysSilent(t *testing.T) {
	source := &fakeSource{updates: make(chan PathUpdate)}
	m, ctx := newTestMonitor(t, source)

	events, cancel := m.Subscribe()
	defer cancel()
	m.Start(ctx)

	// Initial state is unreachable; an unreachable update is not an edge.
	source.updates <- PathUpdate{Reachable: false, Transport: TransportNone}
	source.updates <- PathUpdate{Reachable: true, Transport: TransportWired}

	ev := waitEvent(t, events)
	require.Equal(t, EventRestored, ev.Kind)
}

func TestTransportIsTracked(t *testing.T) {
	source := &fakeSource{updates: make(chan PathUpdate)}
	m, ctx := newTestMonitor(t, source)
	m.Start(ctx)

	require.Equal(t, TransportNone, m.Transport())

	source.updates <- PathUpdate{Reachable: true, Transport: TransportMetered}
	require.Eventually(t, func() bool {
		return m.Transport() == TransportMetered
	}, time.Second, 5*time.Millisecond)
}

func TestSourceInitFailureAssumesUnreachable(t *testing.T) {
	source := &fakeSource{err: errors.New("no netlink socket")}
	m, ctx := newTestMonitor(t, source)
	m.Start(ctx)

	time.Sleep(30 * time.Millisecond)
	require.False(t, m.Reachable())
}

func TestCancelDuringEdgeDelivery(t *testing.T) {
	source := &fakeSource{updates: make(chan PathUpdate)}
	m, _ := newTestMonitor(t, source)

	// Subscribers cancelling while edges are being fanned out must never
	// see a send on their closed channel.
	done := make(chan struct{})
	go func() {
		defer close(done)
		reachable := true
		for n := 0; n < 200; n++ {
			m.apply(PathUpdate{Reachable: reachable, Transport: TransportWired})
			reachable = !reachable
		}
	}()

	for n := 0; n < 200; n++ {
		events, cancel := m.Subscribe()
		go cancel()
		// Drain whatever arrived before the close.
		for range events {
		}
	}
	<-done
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	source := &fakeSource{updates: make(chan PathUpdate)}
	m, _ := newTestMonitor(t, source)

	events, cancel := m.Subscribe()
	cancel()

	_, open := <-events
	require.False(t, open)

	// A second cancel must be harmless.
	cancel()
}
