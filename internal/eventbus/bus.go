package eventbus

import (
	"sync"
	"time"
)

// Bus is the telemetry stream of a single publish session.
//
// Contract:
//   - Emit never blocks on subscribers and never drops an event.
//   - Every event is kept in an ordered history for the bus lifetime.
//   - A new subscriber receives the full history, in order, before any live event.
//   - Heartbeats travel on a separate channel and may be dropped.
type Bus struct {
	id string

	mu         sync.Mutex
	history    []StepEvent
	subs       map[uint64]*Subscription
	seq        uint64
	lastActive time.Time
	closed     bool
}

func newBus(id string) *Bus {
	return &Bus{id: id, subs: map[uint64]*Subscription{}, lastActive: time.Now()}
}

// NewBus returns a standalone bus that is not tracked by a Registry.
func NewBus(id string) *Bus { return newBus(id) }

// ID returns the session id.
func (b *Bus) ID() string { return b.id }

// Emit appends e to the history and queues it for every current subscriber.
func (b *Bus) Emit(e StepEvent) {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.history = append(b.history, e)
	b.lastActive = time.Now()
	// Queue while holding mu so Subscribe cannot observe a history/live split.
	for _, s := range b.subs {
		s.push(e)
	}
}

// History returns a copy of every event emitted so far.
func (b *Bus) History() []StepEvent {
	b.mu.Lock()
	out := append([]StepEvent(nil), b.history...)
	b.mu.Unlock()
	return out
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	n := len(b.subs)
	b.mu.Unlock()
	return n
}

// Subscribe registers a new subscriber. Its Events channel first yields the
// replayed history and then live events until Unsubscribe (or bus close).
func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{
		bus:   b,
		wake:  make(chan struct{}, 1),
		out:   make(chan StepEvent),
		beats: make(chan time.Time, 1),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.once.Do(func() { close(s.done) })
		go s.pump()
		return s
	}
	b.seq++
	s.id = b.seq
	s.pending = append(s.pending, b.history...)
	b.subs[s.id] = s
	b.lastActive = time.Now()
	b.mu.Unlock()

	if len(s.pending) > 0 {
		s.signal()
	}
	go s.pump()
	return s
}

// Beat delivers a heartbeat to every subscriber that is not already holding one.
func (b *Bus) Beat(t time.Time) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.beats <- t:
		default:
		}
	}
}

// Close detaches every subscriber and rejects further events.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.lastActive = time.Now()
	b.mu.Unlock()
}

func (b *Bus) idleSince() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastActive, len(b.subs) == 0
}

// Subscription is one reader of a Bus.
type Subscription struct {
	bus *Bus
	id  uint64

	mu      sync.Mutex
	pending []StepEvent

	wake  chan struct{}
	out   chan StepEvent
	beats chan time.Time
	done  chan struct{}
	once  sync.Once
}

// Events yields replayed and live events. It is closed after Unsubscribe.
func (s *Subscription) Events() <-chan StepEvent { return s.out }

// Heartbeats yields keep-alive ticks. It is never closed.
func (s *Subscription) Heartbeats() <-chan time.Time { return s.beats }

// Unsubscribe detaches the subscriber. Safe to call more than once and from defer.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.bus != nil {
			s.bus.remove(s.id)
		}
		close(s.done)
	})
}

func (s *Subscription) push(e StepEvent) {
	s.mu.Lock()
	s.pending = append(s.pending, e)
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump is the only sender on out, so it also owns closing it.
func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, e := range batch {
			select {
			case s.out <- e:
			case <-s.done:
				return
			}
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}
