package estimator

import (
	"sync"

	"github.com/tutu-network/instruments/internal/domain"
)

// Registry is the process-wide, name-keyed estimator directory. Ported from
// the source's estimator_registry.h/.cc: strategies and the persistence
// layer look estimators up by name rather than holding pointers, so a
// restore can rebind a deserialized distribution to whichever live
// estimator currently carries that name.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Estimator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Estimator)}
}

// Register adds e under its own name. Returns domain.ErrDuplicateEstimator
// if the name is already taken.
func (r *Registry) Register(e *Estimator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[e.name]; exists {
		return domain.ErrDuplicateEstimator
	}
	r.byName[e.name] = e
	return nil
}

// Get looks up an estimator by name. Returns domain.ErrUnknownEstimator if
// no such estimator is registered.
func (r *Registry) Get(name string) (*Estimator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	if !ok {
		return nil, domain.ErrUnknownEstimator
	}
	return e, nil
}

// Unregister removes and destroys the named estimator, notifying its
// subscribers that it is gone. A no-op if the name is not present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	e, ok := r.byName[name]
	if ok {
		delete(r.byName, name)
	}
	r.mu.Unlock()

	if ok {
		e.Destroy()
	}
}

// Names returns a snapshot of every registered estimator name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}

// Len reports the number of registered estimators.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
