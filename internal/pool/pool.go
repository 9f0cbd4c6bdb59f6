// Package pool implements the Connection Pool (C4): a fixed-size vector of
// Upstream Clients over the same endpoint list, with uniform-random
// dispatch. Upstreams are interchangeable, so no affinity or queue-length
// awareness is needed (see spec §4.4's rationale).
package pool

import (
	"context"
	"math/rand"

	"github.com/carlosrabelo/atomicalsproxy/internal/pending"
	"github.com/carlosrabelo/atomicalsproxy/internal/rpctypes"
	"github.com/carlosrabelo/atomicalsproxy/internal/upstream"
)

// Dispatcher is the slice of an Upstream Client the Coordinator needs: the
// ability to dispatch a request and to clean up a pending entry on timeout.
// Defined here, not in upstream, so the Coordinator can depend on a narrow
// interface instead of the full Client type.
type Dispatcher interface {
	Dispatch(id uint32, req rpctypes.Request, sink pending.Sink) error
	RemovePending(id uint32)
}

// Pool is a fixed-size set of Upstream Clients. Its length never changes
// after New; individual clients reconnect in place (I4).
type Pool struct {
	clients []*upstream.Client
}

// New builds a pool of n upstream clients, each independently connecting
// through the same ordered endpoint list.
func New(endpoints []string, n int, dial upstream.DialFunc, outboundCap int) *Pool {
	clients := make([]*upstream.Client, n)
	for i := range clients {
		clients[i] = upstream.New(clientName(i), endpoints, dial, outboundCap)
	}
	return &Pool{clients: clients}
}

func clientName(i int) string {
	const letters = "0123456789abcdefghijklmnopqrstuvwxyz"
	if i < len(letters) {
		return "u" + string(letters[i])
	}
	return "u?"
}

// Run starts every client's connect/serve/reconnect loop and blocks until
// ctx is cancelled.
func (p *Pool) Run(ctx context.Context) {
	done := make(chan struct{}, len(p.clients))
	for _, c := range p.clients {
		c := c
		go func() {
			c.Run(ctx)
			done <- struct{}{}
		}()
	}
	for range p.clients {
		<-done
	}
}

// Pick selects an upstream client uniformly at random.
func (p *Pool) Pick() Dispatcher {
	return p.clients[rand.Intn(len(p.clients))]
}

// Len reports the pool size.
func (p *Pool) Len() int {
	return len(p.clients)
}

// ConnectedCount reports how many clients currently have an open
// connection, used by the /proxy informational endpoint and the
// connectivity metric.
func (p *Pool) ConnectedCount() int {
	n := 0
	for _, c := range p.clients {
		if c.IsConnected() {
			n++
		}
	}
	return n
}
