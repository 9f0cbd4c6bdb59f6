// atomicalsproxy is a stateless HTTP-to-WebSocket JSON-RPC proxy fronting
// one or more ElectrumX-style Atomicals upstreams.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	rcache "github.com/carlosrabelo/atomicalsproxy/internal/cache"
	"github.com/carlosrabelo/atomicalsproxy/internal/config"
	"github.com/carlosrabelo/atomicalsproxy/internal/coordinator"
	"github.com/carlosrabelo/atomicalsproxy/internal/httpapi"
	"github.com/carlosrabelo/atomicalsproxy/internal/idalloc"
	"github.com/carlosrabelo/atomicalsproxy/internal/metrics"
	"github.com/carlosrabelo/atomicalsproxy/internal/pool"
	"github.com/carlosrabelo/atomicalsproxy/internal/ratelimit"
	"github.com/carlosrabelo/atomicalsproxy/internal/socksdialer"
	"github.com/carlosrabelo/atomicalsproxy/internal/tip"
	"github.com/carlosrabelo/atomicalsproxy/pkg/logger"
)

func main() {
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Println("atomicalsproxy v0.1.0")
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config: %v", err)
		os.Exit(1)
	}

	dial, err := socksdialer.New(cfg.SOCKS)
	if err != nil {
		logger.Error("failed to build dialer: %v", err)
		os.Exit(1)
	}

	p := pool.New(cfg.Endpoints, cfg.PoolSize, dial, 0)
	ids := idalloc.New()
	cache := rcache.New(cfg.CacheTTL, cfg.CacheIdleTTL, cfg.MaxCacheEntries)
	mx := metrics.NewPrometheus("atomicalsproxy")
	coord := coordinator.New(p, ids, cache, cfg.ResponseTimeout, mx)

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		Enabled: true,
		Period:  cfg.RateLimitPeriod,
		Burst:   cfg.RateLimitBurst,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go p.Run(ctx)
	go tip.New(coord).Run(ctx)
	go reportConnectivity(ctx, p, mx)
	go cleanupLimiter(ctx, limiter)

	server := httpapi.New(coord, limiter, mx.Collector, cfg.ConcurrencyLimit)
	httpSrv := &http.Server{
		Addr:    cfg.ProxyHost,
		Handler: server.Handler(),
	}
	go func() {
		logger.Info("listening on %s", cfg.ProxyHost)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error: %v", err)
			cancel()
		}
	}()

	<-sigCh
	logger.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	logger.Info("shutdown complete")
}

// reportConnectivity periodically syncs the pool's live-connection count
// into metrics, since it changes on each client's own reconnect schedule
// rather than in response to any single event worth hooking directly.
func reportConnectivity(ctx context.Context, p *pool.Pool, mx *metrics.Prometheus) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mx.SetUpstreamsConnected(p.ConnectedCount())
		}
	}
}

func cleanupLimiter(ctx context.Context, l *ratelimit.Limiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}
