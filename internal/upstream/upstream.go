// Package upstream implements the Upstream Client (C3): one long-lived
// WebSocket connection to one ElectrumX-style endpoint, with a sender, a
// receiver, and a reconnector that rotates through an ordered endpoint
// list. The dial/read/write/reconnect shape below follows the same
// gorilla/websocket usage as a JSON-RPC-over-WebSocket client with
// reconnect support; the pending-request bookkeeping follows the
// insert/remove-on-match pattern of a correlation-id pending map guarded by
// its own lock, generalized here into the pending package.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carlosrabelo/atomicalsproxy/internal/pending"
	"github.com/carlosrabelo/atomicalsproxy/internal/rpctypes"
	"github.com/carlosrabelo/atomicalsproxy/pkg/logger"
)

// ReconnectBackoff is the fixed delay between a failed or broken connection
// attempt and the next one (§5: "Reconnect backoff is fixed 3 s").
const ReconnectBackoff = 3 * time.Second

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// DialFunc dials a raw network connection for the websocket handshake; it
// is the seam socksdialer plugs into.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

var errNotConnected = errors.New("upstream: not connected")
var errQueueFull = errors.New("upstream: outbound queue full")

// Client owns one WebSocket connection at a time plus the Pending Registry
// for calls dispatched on it. It has no terminal state: Run loops for the
// life of the process.
type Client struct {
	name      string
	endpoints []string
	dial      DialFunc
	outboundN int

	Registry *pending.Registry

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	idx       int

	outbound chan rpctypes.Request
}

// New returns a Client for the given ordered endpoint list. dial may be nil
// to use the default net.Dialer; pass a SOCKS dialer's DialContext to proxy
// the connection.
func New(name string, endpoints []string, dial DialFunc, outboundCap int) *Client {
	if outboundCap <= 0 {
		outboundCap = 256
	}
	return &Client{
		name:      name,
		endpoints: endpoints,
		dial:      dial,
		outboundN: outboundCap,
		Registry:  pending.New(),
		outbound:  make(chan rpctypes.Request, outboundCap),
	}
}

// IsConnected reports whether the current connection is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Dispatch registers sink under id and enqueues req for sending. It returns
// an error without touching the registry's final state only when there is
// no open connection or the outbound queue is full (a bounded alternative
// to the reference design's unbounded queue, permitted to fail fast rather
// than block the calling HTTP handler).
func (c *Client) Dispatch(id uint32, req rpctypes.Request, sink pending.Sink) error {
	if !c.IsConnected() {
		return errNotConnected
	}
	c.Registry.Insert(id, sink)
	select {
	case c.outbound <- req:
		return nil
	default:
		c.Registry.Remove(id)
		return errQueueFull
	}
}

// RemovePending deletes id from this client's Pending Registry without
// delivering a value, used by the Coordinator to clean up after a timeout.
func (c *Client) RemovePending(id uint32) {
	c.Registry.Remove(id)
}

// Run drives the connect/serve/reconnect state machine until ctx is
// cancelled. It never returns except on cancellation.
func (c *Client) Run(ctx context.Context) {
	for ctx.Err() == nil {
		conn, err := c.connect(ctx)
		if err != nil {
			logger.Error("upstream[%s]: connect %s failed: %v", c.name, c.endpoints[c.idx], err)
			c.advance()
			if !sleepCtx(ctx, ReconnectBackoff) {
				return
			}
			continue
		}

		c.setConn(conn)
		logger.Info("upstream[%s]: connected to %s", c.name, c.endpoints[c.idx])

		c.serve(ctx, conn)

		c.setConn(nil)
		c.advance()
		if !sleepCtx(ctx, ReconnectBackoff) {
			return
		}
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	addr := c.endpoints[c.idx]
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if c.dial != nil {
		dialer.NetDialContext = c.dial
	}
	conn, _, err := dialer.DialContext(ctx, addr, nil)
	return conn, err
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.connected = conn != nil
	c.mu.Unlock()
}

// advance moves to the next endpoint, wrapping to the first after the last.
func (c *Client) advance() {
	c.mu.Lock()
	c.idx = (c.idx + 1) % len(c.endpoints)
	c.mu.Unlock()
}

// serve runs the sender and receiver concurrently over conn until either
// side observes a close frame or I/O error, then aborts the other.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		c.sendLoop(sctx, conn)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		c.recvLoop(sctx, conn)
	}()
	wg.Wait()
	conn.Close()
}

func (c *Client) sendLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.outbound:
			b, err := json.Marshal(req)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) recvLoop(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var resp rpctypes.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			logger.Error("upstream[%s]: dropping unparsable frame: %v", c.name, err)
			continue
		}

		sink, ok := c.Registry.Take(resp.ID)
		if !ok {
			continue
		}
		r := resp
		sink <- &r
	}
}

// sleepCtx sleeps for d or until ctx is cancelled, whichever comes first.
// Returns false if ctx was the one that fired.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
