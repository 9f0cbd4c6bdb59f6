// Package coordinator implements the Request Coordinator (C6), the central
// algorithm of the proxy: cache lookup, upstream selection, id allocation,
// registry insert, dispatch, timeout, and cleanup. The dispatch-then-await,
// match-by-id, reply-and-clean-up shape follows the same pattern as an
// upstream response handler that removes a pending entry before writing the
// reply back to its original caller.
package coordinator

import (
	"context"
	"time"

	"github.com/carlosrabelo/atomicalsproxy/internal/cache"
	"github.com/carlosrabelo/atomicalsproxy/internal/idalloc"
	"github.com/carlosrabelo/atomicalsproxy/internal/pending"
	"github.com/carlosrabelo/atomicalsproxy/internal/pool"
	"github.com/carlosrabelo/atomicalsproxy/internal/rpctypes"
	pkgerrors "github.com/carlosrabelo/atomicalsproxy/pkg/errors"
	"github.com/carlosrabelo/atomicalsproxy/pkg/logger"
)

// Metrics receives coordinator events. Satisfied by internal/metrics.Collector.
type Metrics interface {
	CacheHit()
	CacheMiss()
	Dispatched()
	TimedOut()
	UpstreamErrored()
	LocalErrored()
}

type noopMetrics struct{}

func (noopMetrics) CacheHit()        {}
func (noopMetrics) CacheMiss()       {}
func (noopMetrics) Dispatched()      {}
func (noopMetrics) TimedOut()        {}
func (noopMetrics) UpstreamErrored() {}
func (noopMetrics) LocalErrored()    {}

// Picker is the slice of the Connection Pool the Coordinator needs. Defined
// here so tests can supply a fake pool without driving real WebSocket
// connections; *pool.Pool satisfies it directly.
type Picker interface {
	Pick() pool.Dispatcher
	ConnectedCount() int
}

// Coordinator is the HTTP-request-facing function described in §4.6.
type Coordinator struct {
	pool    Picker
	ids     *idalloc.Allocator
	cache   *cache.Cache
	timeout time.Duration
	metrics Metrics
}

// New builds a Coordinator. metrics may be nil to use a no-op recorder.
func New(p Picker, ids *idalloc.Allocator, c *cache.Cache, timeout time.Duration, m Metrics) *Coordinator {
	if m == nil {
		m = noopMetrics{}
	}
	return &Coordinator{pool: p, ids: ids, cache: c, timeout: timeout, metrics: m}
}

// Call runs the full coordinator algorithm for one (method, params) request
// from client ip, with an explicit deadline (ordinary calls use the
// coordinator's configured RESPONSE_TIMEOUT; the health probe calls it with
// its own fixed 5s deadline).
func (c *Coordinator) Call(ctx context.Context, method string, params []interface{}, ip string, timeout time.Duration) rpctypes.Envelope {
	key := cache.Fingerprint(method, params)
	cacheable := method != rpctypes.TipMethod

	if cacheable {
		if v, ok := c.cache.Get(key); ok {
			logger.Info("%s => cache hit %s", ip, method)
			c.metrics.CacheHit()
			return rpctypes.OK(v)
		}
		c.metrics.CacheMiss()
	}

	up := c.pool.Pick()
	id := c.ids.Next()
	sink := pending.NewSink()

	req := rpctypes.Request{ID: id, Method: method, Params: params}
	if err := up.Dispatch(id, req, sink); err != nil {
		dispatchErr := pkgerrors.Wrap(-1, "dispatch failed", err)
		logger.Error("%s => %s for %s", ip, dispatchErr, method)
		c.metrics.LocalErrored()
		return rpctypes.LocalError(dispatchErr.Error())
	}
	c.metrics.Dispatched()
	logger.Info("%s => %d, %s(%v)", ip, id, method, params)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case resp := <-sink:
		if resp == nil {
			// Sink was closed without a value: the id wrapped around onto
			// an older in-flight call, which is replaced rather than
			// completed (§4.2).
			c.metrics.LocalErrored()
			return rpctypes.LocalError("No response")
		}
		logger.Info("%s <= %d", ip, id)
		switch {
		case resp.Error != nil:
			c.metrics.UpstreamErrored()
			return rpctypes.UpstreamError(resp.Error.Code, resp.Error.Message)
		case resp.Result != nil:
			if cacheable {
				c.cache.Insert(key, resp.Result)
			}
			return rpctypes.OK(resp.Result)
		default:
			c.metrics.LocalErrored()
			return rpctypes.LocalError("No response")
		}
	case <-deadline.C:
		up.RemovePending(id)
		c.metrics.TimedOut()
		logger.Error("%s => %d, %s timed out", ip, id, method)
		return rpctypes.LocalError("Response timeout")
	case <-ctx.Done():
		up.RemovePending(id)
		return rpctypes.LocalError("Response timeout")
	}
}

// ResponseTimeout returns the configured ordinary-call deadline, used by
// the HTTP surface for GET/POST /proxy/:method.
func (c *Coordinator) ResponseTimeout() time.Duration {
	return c.timeout
}

// ConnectedUpstreams reports how many pool slots currently have a live
// connection, used by the /proxy informational endpoint.
func (c *Coordinator) ConnectedUpstreams() int {
	return c.pool.ConnectedCount()
}

// CacheStats exposes the cache's hit/miss/size snapshot.
func (c *Coordinator) CacheStats() cache.Stats {
	return c.cache.Stats()
}

// InvalidateCache clears the cache; used by the tip poller on height change.
func (c *Coordinator) InvalidateCache() {
	c.cache.InvalidateAll()
}
