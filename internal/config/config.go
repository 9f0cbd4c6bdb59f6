// Package config loads the proxy's environment-variable configuration
// (spec §6), optionally from a .env file. The default-then-validate shape
// follows the teacher's cmd/karoo loadConfig, adapted from a JSON config
// file to environment variables, since this proxy's external interface is
// defined purely in terms of env vars.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/carlosrabelo/atomicalsproxy/internal/socksdialer"
	pkgerrors "github.com/carlosrabelo/atomicalsproxy/pkg/errors"
)

// Config holds every environment-derived setting the proxy needs to boot.
type Config struct {
	ProxyHost string

	Endpoints []string
	PoolSize  int

	ResponseTimeout time.Duration

	MaxCacheEntries int
	CacheTTL        time.Duration
	CacheIdleTTL    time.Duration

	RateLimitPeriod time.Duration
	RateLimitBurst  int

	ConcurrencyLimit int

	SOCKS socksdialer.Config
}

// Load reads configuration from the environment, first attempting to load a
// .env file (silently ignored if absent), then applying defaults and
// validating required fields.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ProxyHost:        getEnv("PROXY_HOST", "0.0.0.0:8080"),
		PoolSize:         getEnvInt("ELECTRUMX_WS_INSTANCE", 4),
		ResponseTimeout:  time.Duration(getEnvInt("RESPONSE_TIMEOUT", 10)) * time.Second,
		MaxCacheEntries:  getEnvInt("MAX_CACHE_ENTRIES", 10000),
		CacheTTL:         time.Duration(getEnvInt("CACHE_TIME_TO_LIVE", 60)) * time.Second,
		CacheIdleTTL:     time.Duration(getEnvInt("CACHE_TIME_TO_IDLE", 300)) * time.Second,
		RateLimitPeriod:  time.Duration(getEnvInt("IP_LIMIT_PER_MILLS", 100)) * time.Millisecond,
		RateLimitBurst:   getEnvInt("IP_LIMIT_BURST_SIZE", 20),
		ConcurrencyLimit: getEnvInt("CONCURRENCY_LIMIT", 256),
	}

	raw := strings.TrimSpace(os.Getenv("ELECTRUMX_WSS"))
	if raw == "" {
		return nil, pkgerrors.New(1, "ELECTRUMX_WSS is required (comma-separated list of upstream ws(s):// URLs)")
	}
	for _, part := range strings.Split(raw, ",") {
		if u := strings.TrimSpace(part); u != "" {
			cfg.Endpoints = append(cfg.Endpoints, u)
		}
	}
	if len(cfg.Endpoints) == 0 {
		return nil, pkgerrors.New(1, "ELECTRUMX_WSS must contain at least one endpoint")
	}

	if cfg.PoolSize <= 0 {
		return nil, pkgerrors.New(1, "ELECTRUMX_WS_INSTANCE must be positive")
	}

	cfg.SOCKS = socksdialer.Config{
		Enabled:  getEnvBool("SOCKS5_PROXY_ENABLED", false),
		Addr:     getEnv("SOCKS5_PROXY_ADDR", ""),
		Username: getEnv("SOCKS5_PROXY_USER", ""),
		Password: getEnv("SOCKS5_PROXY_PASS", ""),
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
