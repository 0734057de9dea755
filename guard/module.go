// Package guard implements the ban gate, violation tracker, and
// observability state described as C2, C4, and part of C5: the single
// process-wide Observability/Abuse module injected by reference into
// request handlers, per the dependency-injection guidance in the
// design notes.
package guard

import (
	"time"
)

// Config configures a Module's abuse-mitigation thresholds.
type Config struct {
	ViolationWindow time.Duration
	BanThreshold    int
	BanDuration     time.Duration
	LatencyHistory  int
}

// AlertSink receives a best-effort notification whenever a principal is
// banned or the system fails open. Implementations must not block; the
// worker-backed alert fan-out in cmd/shieldd uses Broadcast semantics.
type AlertSink interface {
	Alert(kind, principal string)
}

// noopAlertSink is used when no alert backend is configured.
type noopAlertSink struct{}

func (noopAlertSink) Alert(string, string) {}

// Module owns every piece of in-process abuse/observability state:
// the ban index, violation tracker, active-client set, counters, and
// latency sketch. Exactly one Module should exist per process; it is
// constructed once and shared by reference, never looked up ambiently.
type Module struct {
	bans       *banIndex
	violations *violationTracker
	clients    *clientSet
	metrics    *metrics
	latency    *latencySketch
	alerts     AlertSink
}

// New constructs a Module. Pass nil for alerts to disable alert
// fan-out.
func New(cfg Config, alerts AlertSink) *Module {
	if alerts == nil {
		alerts = noopAlertSink{}
	}
	return &Module{
		bans:       newBanIndex(),
		violations: newViolationTracker(cfg.ViolationWindow, cfg.BanDuration, cfg.BanThreshold),
		clients:    newClientSet(),
		metrics:    &metrics{},
		latency:    newLatencySketch(cfg.LatencyHistory),
		alerts:     alerts,
	}
}

// IsBanned checks principal against the ban gate (C2). A caller must
// short-circuit on banned=true and never consult the bucket engine.
func (m *Module) IsBanned(principal string, now time.Time) (banned bool, remaining time.Duration) {
	return m.bans.isBanned(principal, now)
}

// Observe records the outcome of one decision: touches the active
// client set, updates counters, and — on denial — escalates the
// violation tracker, installing a ban and firing an alert the instant
// the threshold is crossed.
func (m *Module) Observe(principal string, allowed bool, now time.Time) (justBanned bool) {
	m.clients.touch(principal)

	if allowed {
		m.metrics.recordAllowed()
		return false
	}

	banFor, justBanned := m.violations.track(principal, now)
	malicious := justBanned
	m.metrics.recordBlocked(malicious)

	if justBanned {
		m.bans.ban(principal, banFor, now)
		m.metrics.recordThreatNeutralized()
		m.alerts.Alert("malicious_client_detected", principal)
	}
	return justBanned
}

// RecordFailOpen marks a decision that could not be reached because
// the store was unavailable; the request must still be admitted.
func (m *Module) RecordFailOpen(principal string) {
	m.metrics.recordFailOpen()
	m.metrics.recordAllowed()
	m.alerts.Alert("rate_limit_fail_open", principal)
}

// RecordStoreError increments the store-error counter without changing
// the admit/deny outcome; callers decide fail-open separately.
func (m *Module) RecordStoreError() {
	m.metrics.recordRedisError()
}

// RecordLatency appends a middleware latency observation to the
// percentile sketch.
func (m *Module) RecordLatency(d time.Duration) {
	m.latency.record(d)
}

// Snapshot returns a point-in-time read of every counter, gauge, and
// derived quantity.
func (m *Module) Snapshot() Snapshot {
	return m.metrics.snapshot(m.clients.cardinality(), m.bans.count(), m.latency)
}

// Sweep purges expired bans and aged violation records. Intended to be
// called every 120s by exactly one replica; see sweeper.go.
func (m *Module) Sweep(now time.Time) (bansPurged, violationsPurged int) {
	return m.bans.sweep(now), m.violations.sweep(now)
}
