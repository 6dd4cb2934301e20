package netmon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Transport is a coarse classification of the active network path.
type Transport int

const (
	TransportNone Transport = iota
	TransportMetered
	TransportUnmetered
	TransportWired
)

func (t Transport) String() string {
	switch t {
	case TransportMetered:
		return "metered"
	case TransportUnmetered:
		return "unmetered"
	case TransportWired:
		return "wired"
	default:
		return "none"
	}
}

// PathUpdate is one observation from the underlying source. Updates may
// repeat the previous state; the monitor only reacts to edges.
type PathUpdate struct {
	Reachable bool
	Transport Transport
}

// EventKind marks a reachability edge.
type EventKind int

const (
	// EventRestored fires on the false-to-true transition.
	EventRestored EventKind = iota
	// EventLost fires on the true-to-false transition.
	EventLost
)

func (k EventKind) String() string {
	if k == EventRestored {
		return "restored"
	}
	return "lost"
}

type Event struct {
	Kind      EventKind
	Transport Transport
	At        time.Time
}

// Source produces path updates. Watch returning an error means observation
// could not start; the monitor then assumes unreachable and retries.
type Source interface {
	Watch(ctx context.Context) (<-chan PathUpdate, error)
}

// Monitor turns raw path updates into reachability edges. It is a pure
// observer: no retries toward the network, no blocking of the source.
// Subscribers receive events on buffered channels; a slow subscriber drops
// events rather than stalling delivery.
type Monitor struct {
	source Source
	logger *zap.Logger

	mu        sync.Mutex
	reachable bool
	transport Transport
	started   bool
	nextID    int
	subs      map[int]chan Event

	retryInterval time.Duration
}

func New(source Source, logger *zap.Logger) *Monitor {
	return &Monitor{
		source:        source,
		logger:        logger,
		transport:     TransportNone,
		subs:          make(map[int]chan Event),
		retryInterval: 5 * time.Second,
	}
}

// Reachable reports the current reachability boolean.
func (m *Monitor) Reachable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reachable
}

func (m *Monitor) Transport() Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transport
}

// Subscribe registers a listener for reachability edges. The returned cancel
// function releases the subscription; the channel is closed afterwards.
func (m *Monitor) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan Event, 8)
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Start launches the observation loop. It returns immediately; updates are
// consumed on a background goroutine until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go m.run(ctx)
}

func (m *Monitor) run(ctx context.Context) {
	for {
		updates, err := m.source.Watch(ctx)
		if err != nil {
			// Observation failed to initialize: assume unreachable until the
			// source recovers.
			m.logger.Warn("path source failed to start, assuming unreachable",
				zap.Error(err))
			m.apply(PathUpdate{Reachable: false, Transport: TransportNone})

			select {
			case <-ctx.Done():
				return
			case <-time.After(m.retryInterval):
				continue
			}
		}

		if !m.consume(ctx, updates) {
			return
		}

		// Source went away; treat the path as down and restart it.
		m.apply(PathUpdate{Reachable: false, Transport: TransportNone})
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.retryInterval):
		}
	}
}

// consume drains updates until the channel closes (true) or ctx ends (false).
func (m *Monitor) consume(ctx context.Context, updates <-chan PathUpdate) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case update, ok := <-updates:
			if !ok {
				return true
			}
			m.apply(update)
		}
	}
}

// apply compares the new reachability boolean against the previous one and
// emits an event only on an edge. Repeated values are silently absorbed.
func (m *Monitor) apply(update PathUpdate) {
	m.mu.Lock()
	prev := m.reachable
	m.reachable = update.Reachable
	m.transport = update.Transport

	if update.Reachable == prev {
		m.mu.Unlock()
		return
	}

	event := Event{Kind: EventLost, Transport: update.Transport, At: time.Now()}
	if update.Reachable {
		event.Kind = EventRestored
	}

	// Delivery happens under the lock: cancel closes subscriber channels
	// under the same lock, so a send can never hit a freshly closed one.
	// The sends are non-blocking, so holding the lock here is cheap.
	dropped := 0
	for _, ch := range m.subs {
		select {
		case ch <- event:
		default:
			dropped++
		}
	}
	m.mu.Unlock()

	m.logger.Info("reachability changed",
		zap.String("event", event.Kind.String()),
		zap.String("transport", event.Transport.String()))
	if dropped > 0 {
		m.logger.Warn("dropping reachability event, subscribers are slow",
			zap.Int("dropped", dropped))
	}
}
