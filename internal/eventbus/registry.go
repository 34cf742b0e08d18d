package eventbus

import (
	"context"
	"sort"
	"sync"
	"time"

	logx "promocast/pkg/logx"
)

// Config controls session retention and keep-alives.
type Config struct {
	// Heartbeat is the keep-alive interval delivered to subscribers. Default 30s.
	Heartbeat time.Duration
	// SessionTTL drops sessions idle for longer than this with no subscribers.
	// 0 keeps sessions for the process lifetime.
	SessionTTL time.Duration
}

// Registry hands out one Bus per session id, creating it on first use.
//
// It is passed explicitly to the components that emit or subscribe; there is
// no package-level registry.
type Registry struct {
	log logx.Logger

	mu    sync.Mutex
	cfg   Config
	buses map[string]*Bus
}

func NewRegistry(cfg Config, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Registry{log: log, buses: map[string]*Bus{}}
	r.Apply(cfg)
	return r
}

// Apply swaps the retention settings. Running loops pick them up on their next tick.
func (r *Registry) Apply(cfg Config) {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	if cfg.SessionTTL < 0 {
		cfg.SessionTTL = 0
	}
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
}

func (r *Registry) config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Session returns the bus for id, creating it lazily.
func (r *Registry) Session(id string) *Bus {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buses[id]
	if !ok {
		b = newBus(id)
		r.buses[id] = b
		r.log.Debug("telemetry session created", logx.String("session", id))
	}
	return b
}

// Lookup returns an existing bus without creating one.
func (r *Registry) Lookup(id string) (*Bus, bool) {
	r.mu.Lock()
	b, ok := r.buses[id]
	r.mu.Unlock()
	return b, ok
}

// Sessions returns the tracked session ids, sorted.
func (r *Registry) Sessions() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.buses))
	for id := range r.buses {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Beat sends a heartbeat to every subscriber of every session.
func (r *Registry) Beat(now time.Time) {
	r.mu.Lock()
	buses := make([]*Bus, 0, len(r.buses))
	for _, b := range r.buses {
		buses = append(buses, b)
	}
	r.mu.Unlock()
	for _, b := range buses {
		b.Beat(now)
	}
}

// Sweep closes and forgets sessions idle past the TTL. It returns how many were dropped.
func (r *Registry) Sweep(now time.Time) int {
	ttl := r.config().SessionTTL
	if ttl <= 0 {
		return 0
	}
	var stale []*Bus
	r.mu.Lock()
	for id, b := range r.buses {
		last, idle := b.idleSince()
		if idle && now.Sub(last) > ttl {
			stale = append(stale, b)
			delete(r.buses, id)
		}
	}
	r.mu.Unlock()

	for _, b := range stale {
		b.Close()
	}
	if len(stale) > 0 {
		r.log.Debug("telemetry sessions swept", logx.Int("dropped", len(stale)))
	}
	return len(stale)
}

// Run drives heartbeats and the TTL sweep until ctx is done.
// Intended to be hosted by a supervisor.
func (r *Registry) Run(ctx context.Context) error {
	interval := r.config().Heartbeat
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			r.Beat(now)
			r.Sweep(now)
			if cur := r.config().Heartbeat; cur != interval {
				interval = cur
				t.Reset(interval)
			}
		}
	}
}
