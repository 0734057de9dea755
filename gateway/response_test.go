package gateway

import (
	"net/http/httptest"
	"testing"
)

func TestWriteDenialSetsStandardHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDenial(rec, 100, decision{remaining: 0, resetEpochS: 123, retryAfterS: 7})

	if rec.Code != 429 {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "7" {
		t.Fatalf("expected Retry-After 7, got %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Limit") != "100" {
		t.Fatalf("expected limit header 100, got %q", rec.Header().Get("X-RateLimit-Limit"))
	}
	if rec.Header().Get("X-Ban-Remaining") != "" {
		t.Fatal("expected no ban header for an ordinary denial")
	}
}

func TestWriteDenialMarksBan(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDenial(rec, 100, decision{banned: true, banRemainingS: 600, retryAfterS: 600})

	if rec.Header().Get("X-Ban-Remaining") != "600" {
		t.Fatalf("expected ban remaining 600, got %q", rec.Header().Get("X-Ban-Remaining"))
	}
	if rec.Header().Get("X-Threat-Level") != "BANNED" {
		t.Fatalf("expected threat level BANNED, got %q", rec.Header().Get("X-Threat-Level"))
	}
}
