package hierarchy

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
)

// Source hands out the current graph of a hierarchy.
type Source interface {
	Graph() *Graph
}

// Listener is told when a hierarchy it watches needs refreshing.
type Listener interface {
	TypeHierarchyChanged(src Source) error
}

type funcListener struct {
	fn func(Source) error
}

func (f *funcListener) TypeHierarchyChanged(src Source) error { return f.fn(src) }

// ListenerFunc adapts fn to a Listener. Each call returns a distinct
// listener, so keep the result to remove it later.
func ListenerFunc(fn func(Source) error) Listener {
	return &funcListener{fn: fn}
}

// Registry is the listener list of one hierarchy. OnFirst runs when the
// first listener is added and OnLast when the last one is removed; they are
// used to subscribe to and unsubscribe from change delivery.
type Registry struct {
	mu        sync.Mutex
	listeners []Listener

	OnFirst func()
	OnLast  func()
	Logger  *slog.Logger
}

// Add registers l unless it is already present.
func (r *Registry) Add(l Listener) {
	r.mu.Lock()
	if slices.Contains(r.listeners, l) {
		r.mu.Unlock()
		return
	}
	first := len(r.listeners) == 0
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()
	if first && r.OnFirst != nil {
		r.OnFirst()
	}
}

// Remove unregisters l.
func (r *Registry) Remove(l Listener) {
	r.mu.Lock()
	i := slices.Index(r.listeners, l)
	if i < 0 {
		r.mu.Unlock()
		return
	}
	r.listeners = slices.Delete(r.listeners, i, i+1)
	last := len(r.listeners) == 0
	r.mu.Unlock()
	if last && r.OnLast != nil {
		r.OnLast()
	}
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// Fire notifies a snapshot of the listeners outside the lock. A failing
// listener is logged and does not stop delivery to the others; the failures
// are returned joined.
func (r *Registry) Fire(src Source) error {
	r.mu.Lock()
	snapshot := slices.Clone(r.listeners)
	r.mu.Unlock()

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var errs []error
	for _, l := range snapshot {
		if err := l.TypeHierarchyChanged(src); err != nil {
			logger.Warn("hierarchy listener failed", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
