package breaker

import (
	"errors"
	"sort"
	"sync"
)

var ErrUnknownBreaker = errors.New("unknown circuit breaker")

// Registry owns one Breaker per provider name. It replaces process-wide
// breaker singletons: the orchestration layer creates it and hands it to
// whoever needs a gate.
type Registry struct {
	defaults Config
	opts     []Option

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

func NewRegistry(defaults Config, opts ...Option) *Registry {
	return &Registry{
		defaults: defaults,
		opts:     opts,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for name, creating it with the default policy.
func (r *Registry) Get(name string) *Breaker {
	return r.GetWithConfig(name, r.defaults)
}

// GetWithConfig returns the breaker for name, creating it with cfg if absent.
// An existing breaker keeps the policy it was created with.
func (r *Registry) GetWithConfig(name string, cfg Config) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok = r.breakers[name]; ok {
		return b
	}
	b = New(name, cfg, r.opts...)
	r.breakers[name] = b
	return b
}

func (r *Registry) Lookup(name string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[name]
	return b, ok
}

// Snapshot returns the stats of every breaker, sorted by name.
func (r *Registry) Snapshot() []Stats {
	r.mu.RLock()
	all := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		all = append(all, b)
	}
	r.mu.RUnlock()

	stats := make([]Stats, 0, len(all))
	for _, b := range all {
		stats = append(stats, b.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

func (r *Registry) Reset(name string) error {
	b, ok := r.Lookup(name)
	if !ok {
		return ErrUnknownBreaker
	}
	b.Reset()
	return nil
}
