// Package ratelimit implements a per-IP HTTP request rate limiter. The
// per-IP map with double-checked-locking creation and a background cleanup
// goroutine follow the same shape as a per-IP connection-admission limiter;
// what changed is the limiting primitive itself, from a hand-rolled
// sliding-window-plus-ban counter to a golang.org/x/time/rate token bucket,
// since the thing being bounded is now HTTP request rate, not TCP
// connection admission.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration corresponding to the
// IP_LIMIT_PER_MILLS / IP_LIMIT_BURST_SIZE environment variables.
type Config struct {
	Enabled bool
	// Period is the refill period per token (IP_LIMIT_PER_MILLS).
	Period time.Duration
	// Burst is the token bucket's burst size (IP_LIMIT_BURST_SIZE).
	Burst int
	// Idle is how long an IP's bucket survives with no requests before
	// the cleanup routine evicts it.
	Idle time.Duration
}

type visitor struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a per-IP token-bucket request limiter.
type Limiter struct {
	cfg Config

	mu       sync.RWMutex
	visitors map[string]*visitor
}

// NewLimiter returns a Limiter for cfg. A zero-value Burst or non-positive
// Period disables limiting regardless of cfg.Enabled.
func NewLimiter(cfg Config) *Limiter {
	if cfg.Idle <= 0 {
		cfg.Idle = 5 * time.Minute
	}
	return &Limiter{cfg: cfg, visitors: make(map[string]*visitor)}
}

// Allow reports whether a request from ip may proceed, consuming one token
// if so.
func (l *Limiter) Allow(ip string) bool {
	if !l.cfg.Enabled || l.cfg.Period <= 0 || l.cfg.Burst <= 0 {
		return true
	}

	v := l.visitorFor(ip)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

func (l *Limiter) visitorFor(ip string) *visitor {
	l.mu.RLock()
	v, ok := l.visitors[ip]
	l.mu.RUnlock()
	if ok {
		return v
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok = l.visitors[ip]; ok {
		return v
	}
	v = &visitor{
		limiter:  rate.NewLimiter(rate.Every(l.cfg.Period), l.cfg.Burst),
		lastSeen: time.Now(),
	}
	l.visitors[ip] = v
	return v
}

// Cleanup removes buckets that have been idle past cfg.Idle. Intended to be
// called periodically from a ticker loop owned by the caller.
func (l *Limiter) Cleanup() {
	cutoff := time.Now().Add(-l.cfg.Idle)

	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, v := range l.visitors {
		v.mu.Lock()
		stale := v.lastSeen.Before(cutoff)
		v.mu.Unlock()
		if stale {
			delete(l.visitors, ip)
		}
	}
}

// ExtractIP extracts the caller's address from an HTTP request, preferring
// a reverse proxy's forwarding header and falling back to RemoteAddr.
func ExtractIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if comma := strings.IndexByte(fwd, ','); comma >= 0 {
			return fwd[:comma]
		}
		return fwd
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
