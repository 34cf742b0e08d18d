package channel

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a fresh publisher for one invocation, so instrumentation
// state never leaks between concurrent runs.
type Factory func() Publisher

type key struct {
	platform string
	kind     Kind
}

// Registry maps (platform, kind) to a publisher factory. It is populated at
// startup; a missing entry is a normal "not supported" answer.
type Registry struct {
	mu sync.RWMutex
	m  map[key]Factory
}

func NewRegistry() *Registry {
	return &Registry{m: map[key]Factory{}}
}

// Register installs f for (platform, kind), replacing any previous entry.
func (r *Registry) Register(platform string, kind Kind, f Factory) {
	if f == nil {
		return
	}
	r.mu.Lock()
	r.m[key{platform, kind}] = f
	r.mu.Unlock()
}

// RegisterStatic registers a publisher instance that is safe to share.
func (r *Registry) RegisterStatic(platform string, kind Kind, p Publisher) {
	r.Register(platform, kind, func() Publisher { return p })
}

// Lookup returns a new publisher for (platform, kind).
func (r *Registry) Lookup(platform string, kind Kind) (Publisher, bool) {
	r.mu.RLock()
	f, ok := r.m[key{platform, kind}]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	p := f()
	return p, p != nil
}

// Routes lists registered pairs as "platform/kind", sorted. Used by /healthz.
func (r *Registry) Routes() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.m))
	for k := range r.m {
		out = append(out, fmt.Sprintf("%s/%s", k.platform, k.kind))
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Replace swaps the whole route table for next's, so routes missing from
// next disappear. Used on config reload.
func (r *Registry) Replace(next *Registry) {
	next.mu.RLock()
	m := make(map[key]Factory, len(next.m))
	for k, f := range next.m {
		m[k] = f
	}
	next.mu.RUnlock()

	r.mu.Lock()
	r.m = m
	r.mu.Unlock()
}
