// Package pending implements the per-upstream correlation-id registry that
// bridges an upstream's receive loop back to the HTTP request awaiting it.
package pending

import (
	"sync"

	"github.com/carlosrabelo/atomicalsproxy/internal/rpctypes"
)

// Sink is a one-shot completer: the receive loop sends exactly once, or
// closes it without sending to signal cancellation. The Coordinator reads
// at most one value from it.
type Sink chan *rpctypes.Response

// NewSink returns a buffered one-shot sink.
func NewSink() Sink {
	return make(Sink, 1)
}

// Registry maps correlation ids to sinks for one upstream connection. All
// three operations are total and mutually atomic under the registry's own
// lock; nothing outside this package ever touches the map directly.
type Registry struct {
	mu      sync.Mutex
	entries map[uint32]Sink
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[uint32]Sink)}
}

// Insert registers sink under id. If id is already present — astronomically
// rare, requiring a 32-bit wrap with an older call still in flight — the
// existing sink is closed without a value, observable by its waiter as
// cancellation, and replaced.
func (r *Registry) Insert(id uint32, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.entries[id]; ok {
		close(old)
	}
	r.entries[id] = sink
}

// Take removes and returns the sink for id, if present. Used by the receive
// loop when a response frame arrives.
func (r *Registry) Take(id uint32) (Sink, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sink, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	return sink, ok
}

// Remove deletes the entry for id without returning it. Used by the
// Coordinator to clean up after a timeout.
func (r *Registry) Remove(id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len reports the number of entries currently pending. Exposed for tests
// asserting registry cleanup (P2).
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
