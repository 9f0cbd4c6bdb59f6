package socksdialer

import "testing"

func TestNewDisabledReturnsDirectDialer(t *testing.T) {
	dial, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dial == nil {
		t.Fatal("expected a non-nil dial func")
	}
}

func TestNewEnabledRequiresAddr(t *testing.T) {
	_, err := New(Config{Enabled: true})
	if err == nil {
		t.Fatal("expected error when enabled without an addr")
	}
}

func TestNewEnabledBuildsDialer(t *testing.T) {
	dial, err := New(Config{Enabled: true, Addr: "127.0.0.1:1080", Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("unexpected error building socks5 dialer: %v", err)
	}
	if dial == nil {
		t.Fatal("expected a non-nil dial func")
	}
}
