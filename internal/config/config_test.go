package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	keys := []string{
		"PROXY_HOST", "ELECTRUMX_WSS", "ELECTRUMX_WS_INSTANCE", "RESPONSE_TIMEOUT",
		"MAX_CACHE_ENTRIES", "CACHE_TIME_TO_LIVE", "CACHE_TIME_TO_IDLE",
		"IP_LIMIT_PER_MILLS", "IP_LIMIT_BURST_SIZE", "CONCURRENCY_LIMIT",
		"SOCKS5_PROXY_ENABLED", "SOCKS5_PROXY_ADDR", "SOCKS5_PROXY_USER", "SOCKS5_PROXY_PASS",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
	t.Cleanup(func() {
		for _, k := range keys {
			os.Unsetenv(k)
		}
	})
}

func TestLoadRequiresElectrumxWss(t *testing.T) {
	clearEnv(t)
	if _, err := Load(); err == nil {
		t.Fatal("expected error when ELECTRUMX_WSS is unset")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("ELECTRUMX_WSS", "wss://a.example,wss://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ProxyHost != "0.0.0.0:8080" {
		t.Fatalf("unexpected default ProxyHost: %q", cfg.ProxyHost)
	}
	if cfg.PoolSize != 4 {
		t.Fatalf("unexpected default PoolSize: %d", cfg.PoolSize)
	}
	if len(cfg.Endpoints) != 2 || cfg.Endpoints[0] != "wss://a.example" || cfg.Endpoints[1] != "wss://b.example" {
		t.Fatalf("unexpected endpoints: %v", cfg.Endpoints)
	}
}

func TestLoadRejectsNonPositivePoolSize(t *testing.T) {
	clearEnv(t)
	os.Setenv("ELECTRUMX_WSS", "wss://a.example")
	os.Setenv("ELECTRUMX_WS_INSTANCE", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for ELECTRUMX_WS_INSTANCE=0")
	}
}

func TestLoadTrimsAndSkipsBlankEndpoints(t *testing.T) {
	clearEnv(t)
	os.Setenv("ELECTRUMX_WSS", " wss://a.example ,, wss://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Endpoints) != 2 {
		t.Fatalf("expected blank entries to be dropped, got %v", cfg.Endpoints)
	}
}

func TestLoadInvalidIntFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	os.Setenv("ELECTRUMX_WSS", "wss://a.example")
	os.Setenv("MAX_CACHE_ENTRIES", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxCacheEntries != 10000 {
		t.Fatalf("expected fallback to default on unparsable int, got %d", cfg.MaxCacheEntries)
	}
}
