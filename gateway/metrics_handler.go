package gateway

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/atlas/shield/guard"
)

// metricsSelfLimiter is a small fixed-window counter protecting the
// metrics endpoint itself from enumeration-driven scraping, independent
// of the shared store and the main decision core.
type metricsSelfLimiter struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
}

func newMetricsSelfLimiter() *metricsSelfLimiter {
	return &metricsSelfLimiter{windowStart: time.Now()}
}

func (l *metricsSelfLimiter) allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.windowStart) > MetricsRateWindow {
		l.windowStart = now
		l.count = 0
	}
	if l.count >= MetricsRateLimit {
		return false
	}
	l.count++
	return true
}

// MetricsHandler exposes the counters, gauges, and derived quantities
// in a plain-text exposition format, metric names prefixed atlas_.
func (g *Gateway) MetricsHandler() http.HandlerFunc {
	limiter := newMetricsSelfLimiter()

	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.allow() {
			http.Error(w, "too many scrapes", http.StatusTooManyRequests)
			return
		}

		snap := g.module.Snapshot()
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		writeCounter(w, "atlas_requests_allowed_total", "Requests admitted.", float64(snap.RequestsAllowed))
		writeCounter(w, "atlas_requests_blocked_total", "Requests denied.", float64(snap.RequestsBlocked))
		writeCounter(w, "atlas_blocked_standard_total", "Requests denied by ordinary rate limiting.", float64(snap.BlockedStandard))
		writeCounter(w, "atlas_blocked_malicious_total", "Requests denied that triggered a ban.", float64(snap.BlockedMalicious))
		writeCounter(w, "atlas_threats_neutralized_total", "Principals banned for sustained abuse.", float64(snap.ThreatsNeutralized))
		writeCounter(w, "atlas_redis_errors_total", "Store errors encountered.", float64(snap.RedisErrors))
		writeCounter(w, "atlas_fail_open_events_total", "Requests admitted due to store failure.", float64(snap.FailOpenEvents))

		writeGauge(w, "atlas_active_clients", "Approximate distinct principals observed.", float64(snap.ActiveClients))
		writeGauge(w, "atlas_banned_clients", "Principals currently banned.", float64(snap.BannedClients))
		writeGauge(w, "atlas_protection_rate", "Share of decided requests denied, 0-100.", snap.ProtectionRate)
		writeGauge(w, "atlas_system_health_score", "Share of decisions that reached a conclusive store verdict, 0-100.", snap.SystemHealthScore)

		fmt.Fprintf(w, "# HELP atlas_threat_level Ordinal threat summary (0=LOW,1=MEDIUM,2=HIGH,3=CRITICAL).\n")
		fmt.Fprintf(w, "# TYPE atlas_threat_level gauge\n")
		fmt.Fprintf(w, "atlas_threat_level %d\n", threatLevelOrdinal(snap.ThreatLevel))

		fmt.Fprintf(w, "# HELP atlas_response_time_ms Middleware latency percentiles, milliseconds.\n")
		fmt.Fprintf(w, "# TYPE atlas_response_time_ms gauge\n")
		fmt.Fprintf(w, "atlas_response_time_ms{quantile=\"0.5\"} %v\n", snap.LatencyP50Ms)
		fmt.Fprintf(w, "atlas_response_time_ms{quantile=\"0.95\"} %v\n", snap.LatencyP95Ms)
		fmt.Fprintf(w, "atlas_response_time_ms{quantile=\"0.99\"} %v\n", snap.LatencyP99Ms)
	}
}

func writeCounter(w http.ResponseWriter, name, help string, value float64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %v\n", name, help, name, name, value)
}

func writeGauge(w http.ResponseWriter, name, help string, value float64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %v\n", name, help, name, name, value)
}

func threatLevelOrdinal(level guard.ThreatLevel) int {
	switch level {
	case guard.ThreatMedium:
		return 1
	case guard.ThreatHigh:
		return 2
	case guard.ThreatCritical:
		return 3
	default:
		return 0
	}
}
