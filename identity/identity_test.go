package identity

import (
	"net/http"
	"testing"
)

func TestIdentifyAPIKeyTakesPrecedence(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	r.Header.Set("X-API-Key", "secret123")
	r.RemoteAddr = "203.0.113.9:443"

	got := Identify(r, Subject{ID: "user-1"}, ProxyTrust{})
	want := "apikey:" + HashAPIKey("secret123")
	if got != want {
		t.Fatalf("Identify() = %q, want %q", got, want)
	}
}

func TestIdentifySameKeyFromDifferentIPsMatches(t *testing.T) {
	r1, _ := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	r1.Header.Set("X-API-Key", "secret123")
	r1.RemoteAddr = "198.51.100.1:1"

	r2, _ := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	r2.Header.Set("X-API-Key", "secret123")
	r2.RemoteAddr = "198.51.100.2:2"

	p1 := Identify(r1, Subject{}, ProxyTrust{})
	p2 := Identify(r2, Subject{}, ProxyTrust{})
	if p1 != p2 {
		t.Fatalf("expected same principal for same key, got %q and %q", p1, p2)
	}
}

func TestIdentifyFallsBackToUser(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	r.RemoteAddr = "203.0.113.9:443"

	got := Identify(r, Subject{ID: "alice"}, ProxyTrust{})
	if got != "user:alice" {
		t.Fatalf("Identify() = %q, want user:alice", got)
	}
}

func TestIdentifyFallsBackToIP(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	r.RemoteAddr = "203.0.113.9:443"

	got := Identify(r, Subject{}, ProxyTrust{})
	if got != "ip:203.0.113.9" {
		t.Fatalf("Identify() = %q, want ip:203.0.113.9", got)
	}
}

func TestIdentifyIgnoresForwardedHeaderWhenProxyNotTrusted(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	r.RemoteAddr = "203.0.113.9:443"
	r.Header.Set("X-Forwarded-For", "1.2.3.4")

	got := Identify(r, Subject{}, ProxyTrust{})
	if got != "ip:203.0.113.9" {
		t.Fatalf("Identify() = %q, want ip:203.0.113.9 (spoofed header must be ignored)", got)
	}
}

func TestIdentifyHonorsForwardedHeaderWhenTrusted(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	r.RemoteAddr = "10.0.0.1:443"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")

	got := Identify(r, Subject{}, ProxyTrust{Hops: 1})
	if got != "ip:1.2.3.4" {
		t.Fatalf("Identify() = %q, want ip:1.2.3.4", got)
	}
}

func TestIdentifyTrustAnyUsesLeftmostForwardedEntry(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	r.RemoteAddr = "10.0.0.9:443"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1, 10.0.0.9")

	got := Identify(r, Subject{}, ProxyTrust{TrustAny: true})
	if got != "ip:1.2.3.4" {
		t.Fatalf("Identify() = %q, want ip:1.2.3.4", got)
	}
}

func TestIdentifyHopsBeyondChainLengthClampsToLeftmost(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	r.RemoteAddr = "10.0.0.1:443"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")

	got := Identify(r, Subject{}, ProxyTrust{Hops: 5})
	if got != "ip:1.2.3.4" {
		t.Fatalf("Identify() = %q, want ip:1.2.3.4", got)
	}
}

func TestNormalizeAddrStripsIPv4MappedPrefix(t *testing.T) {
	got := normalizeAddr("::ffff:192.0.2.1")
	if got != "192.0.2.1" {
		t.Fatalf("normalizeAddr() = %q, want 192.0.2.1", got)
	}
}

func TestParseProxyTrust(t *testing.T) {
	cases := []struct {
		in      string
		want    ProxyTrust
		wantErr bool
	}{
		{"", ProxyTrust{}, false},
		{"false", ProxyTrust{}, false},
		{"true", ProxyTrust{TrustAny: true}, false},
		{"2", ProxyTrust{Hops: 2}, false},
		{"-1", ProxyTrust{}, true},
		{"banana", ProxyTrust{}, true},
	}
	for _, tc := range cases {
		got, err := ParseProxyTrust(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseProxyTrust(%q): expected error, got none", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseProxyTrust(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseProxyTrust(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}
