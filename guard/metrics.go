package guard

import "sync/atomic"

// ThreatLevel is an ordinal summary of ban count and protection rate
// for human display. It is derived, never stored directly.
type ThreatLevel string

const (
	ThreatLow      ThreatLevel = "LOW"
	ThreatMedium   ThreatLevel = "MEDIUM"
	ThreatHigh     ThreatLevel = "HIGH"
	ThreatCritical ThreatLevel = "CRITICAL"
)

// metrics holds the monotonic counters and derives the gauges described
// in the observability design. No metrics client library appears
// anywhere in the retrieval pack and the exposition format/formulas
// here are pinned by the specification itself, so this is a deliberate
// stdlib component, not a default.
type metrics struct {
	requestsAllowed  atomic.Int64
	requestsBlocked  atomic.Int64
	blockedStandard  atomic.Int64
	blockedMalicious atomic.Int64
	threatsNeutralized atomic.Int64
	redisErrors      atomic.Int64
	failOpenEvents   atomic.Int64
}

func (m *metrics) recordAllowed() {
	m.requestsAllowed.Add(1)
}

func (m *metrics) recordBlocked(malicious bool) {
	m.requestsBlocked.Add(1)
	if malicious {
		m.blockedMalicious.Add(1)
	} else {
		m.blockedStandard.Add(1)
	}
}

func (m *metrics) recordThreatNeutralized() {
	m.threatsNeutralized.Add(1)
}

func (m *metrics) recordRedisError() {
	m.redisErrors.Add(1)
}

func (m *metrics) recordFailOpen() {
	m.failOpenEvents.Add(1)
}

// Snapshot is a point-in-time read of counters and their derived
// quantities, suitable for the metrics and health endpoints.
type Snapshot struct {
	RequestsAllowed    int64
	RequestsBlocked    int64
	BlockedStandard    int64
	BlockedMalicious   int64
	ThreatsNeutralized int64
	RedisErrors        int64
	FailOpenEvents     int64
	ActiveClients      int
	BannedClients      int
	ProtectionRate     float64
	SystemHealthScore  float64
	ThreatLevel        ThreatLevel
	LatencyP50Ms       float64
	LatencyP95Ms       float64
	LatencyP99Ms       float64
}

func (m *metrics) snapshot(activeClients, bannedClients int, latency *latencySketch) Snapshot {
	allowed := m.requestsAllowed.Load()
	blocked := m.requestsBlocked.Load()
	redisErrs := m.redisErrors.Load()
	failOpen := m.failOpenEvents.Load()

	total := allowed + blocked

	var protectionRate float64
	if total > 0 {
		protectionRate = float64(blocked) / float64(total) * 100
	}

	healthScore := 100.0
	if total > 0 {
		healthScore = 100 - 100*float64(redisErrs+failOpen)/float64(total)
		if healthScore < 0 {
			healthScore = 0
		}
	}

	return Snapshot{
		RequestsAllowed:    allowed,
		RequestsBlocked:    blocked,
		BlockedStandard:    m.blockedStandard.Load(),
		BlockedMalicious:   m.blockedMalicious.Load(),
		ThreatsNeutralized: m.threatsNeutralized.Load(),
		RedisErrors:        redisErrs,
		FailOpenEvents:     failOpen,
		ActiveClients:      activeClients,
		BannedClients:      bannedClients,
		ProtectionRate:     protectionRate,
		SystemHealthScore:  healthScore,
		ThreatLevel:        classifyThreat(bannedClients, protectionRate),
		LatencyP50Ms:       latency.percentile(50),
		LatencyP95Ms:       latency.percentile(95),
		LatencyP99Ms:       latency.percentile(99),
	}
}

func classifyThreat(banned int, protectionRatePct float64) ThreatLevel {
	switch {
	case banned >= 5 || protectionRatePct >= 50:
		return ThreatCritical
	case banned >= 2 || protectionRatePct >= 30:
		return ThreatHigh
	case banned >= 1 || protectionRatePct >= 10:
		return ThreatMedium
	default:
		return ThreatLow
	}
}
