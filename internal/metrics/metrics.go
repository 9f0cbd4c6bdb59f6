// Package metrics collects and reports proxy metrics: cache hits/misses,
// dispatch outcomes, and upstream connectivity. The atomic-counter
// Collector plus a separate Prometheus registration step follows the same
// split as a mining-proxy metrics package, retargeted from share
// accept/reject counters to proxy dispatch counters.
package metrics

import "sync/atomic"

// Collector holds proxy metrics as lock-free atomics.
type Collector struct {
	CacheHits   atomic.Uint64
	CacheMisses atomic.Uint64

	Dispatches     atomic.Uint64
	Timeouts       atomic.Uint64
	UpstreamErrors atomic.Uint64
	LocalErrors    atomic.Uint64

	UpstreamsConnected atomic.Int64
	LastTipHeight      atomic.Uint64
}

// NewCollector returns a zeroed Collector.
func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) CacheHit()        { c.CacheHits.Add(1) }
func (c *Collector) CacheMiss()       { c.CacheMisses.Add(1) }
func (c *Collector) Dispatched()      { c.Dispatches.Add(1) }
func (c *Collector) TimedOut()        { c.Timeouts.Add(1) }
func (c *Collector) UpstreamErrored() { c.UpstreamErrors.Add(1) }
func (c *Collector) LocalErrored()    { c.LocalErrors.Add(1) }

// SetUpstreamsConnected records how many pool slots currently hold a live
// connection.
func (c *Collector) SetUpstreamsConnected(n int) {
	c.UpstreamsConnected.Store(int64(n))
}

// SetTipHeight records the last height observed by the tip poller.
func (c *Collector) SetTipHeight(h uint64) {
	c.LastTipHeight.Store(h)
}

// Snapshot is a point-in-time view of Collector, used by the /proxy
// informational endpoint.
type Snapshot struct {
	CacheHits          uint64 `json:"cache_hits"`
	CacheMisses        uint64 `json:"cache_misses"`
	Dispatches         uint64 `json:"dispatches"`
	Timeouts           uint64 `json:"timeouts"`
	UpstreamErrors     uint64 `json:"upstream_errors"`
	LocalErrors        uint64 `json:"local_errors"`
	UpstreamsConnected int64  `json:"upstreams_connected"`
	LastTipHeight      uint64 `json:"last_tip_height"`
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		CacheHits:          c.CacheHits.Load(),
		CacheMisses:        c.CacheMisses.Load(),
		Dispatches:         c.Dispatches.Load(),
		Timeouts:           c.Timeouts.Load(),
		UpstreamErrors:     c.UpstreamErrors.Load(),
		LocalErrors:        c.LocalErrors.Load(),
		UpstreamsConnected: c.UpstreamsConnected.Load(),
		LastTipHeight:      c.LastTipHeight.Load(),
	}
}
