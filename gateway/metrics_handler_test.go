package gateway

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atlas/shield/bucket"
)

func TestMetricsHandlerExposesPrefixedNames(t *testing.T) {
	gw := newTestGateway(t, &fakeEngine{results: []bucket.Result{{Allowed: true}}})
	gw.module.Observe("ip:198.51.100.1", true, time.Now())

	rec := httptest.NewRecorder()
	gw.MetricsHandler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{"atlas_requests_allowed_total", "atlas_protection_rate", "atlas_threat_level"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected metrics body to contain %s, got:\n%s", name, body)
		}
	}
}

func TestMetricsHandlerSelfLimits(t *testing.T) {
	gw := newTestGateway(t, &fakeEngine{})
	handler := gw.MetricsHandler()

	var last int
	for i := 0; i < MetricsRateLimit+5; i++ {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest("GET", "/metrics", nil))
		last = rec.Code
	}
	if last != 429 {
		t.Fatalf("expected the scrape endpoint to self-limit, last status was %d", last)
	}
}
