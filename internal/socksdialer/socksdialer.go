// Package socksdialer adapts golang.org/x/net/proxy's SOCKS5 dialer into
// the upstream package's DialFunc seam, so an Upstream Client's WebSocket
// handshake can be routed through a SOCKS5 proxy. Carried over from the
// teacher's bespoke SOCKS dialer wrapper, generalized from a raw net.Conn
// dialer into a context-aware DialFunc.
package socksdialer

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// Config describes an optional SOCKS5 proxy to dial upstream connections
// through.
type Config struct {
	Enabled  bool
	Addr     string // host:port of the SOCKS5 proxy
	Username string
	Password string
}

// New returns a DialFunc that either dials directly (Config.Enabled false)
// or through the configured SOCKS5 proxy.
func New(cfg Config) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	if !cfg.Enabled {
		d := &net.Dialer{Timeout: 10 * time.Second}
		return d.DialContext, nil
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("socksdialer: proxy addr is required when enabled")
	}

	target := &url.URL{Scheme: "socks5", Host: cfg.Addr}
	if cfg.Username != "" {
		target.User = url.UserPassword(cfg.Username, cfg.Password)
	}

	dialer, err := proxy.FromURL(target, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socksdialer: building socks5 dialer: %w", err)
	}

	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if ctxDialer, ok := dialer.(proxy.ContextDialer); ok {
			return ctxDialer.DialContext(ctx, network, addr)
		}
		done := make(chan struct{})
		var conn net.Conn
		var dialErr error
		go func() {
			conn, dialErr = dialer.Dial(network, addr)
			close(done)
		}()
		select {
		case <-done:
			return conn, dialErr
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, nil
}
