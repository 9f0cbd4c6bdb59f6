// Package idalloc hands out correlation ids for in-flight JSON-RPC calls.
package idalloc

import "sync/atomic"

// Allocator hands out monotonically increasing 32-bit correlation ids,
// wrapping silently at overflow. One Allocator is shared by the whole
// coordinator, not one per upstream: the wire format only reserves 32 bits
// for the id regardless of how many upstreams are in the pool.
type Allocator struct {
	counter atomic.Uint32
}

// New returns an Allocator starting at 0.
func New() *Allocator {
	return &Allocator{}
}

// Next returns the next id. Thread-safe under concurrent callers; wraps to
// 0 after 2^32 calls. Collisions after wrap are resolved by the Pending
// Registry, not here.
func (a *Allocator) Next() uint32 {
	return a.counter.Add(1) - 1
}
