package gateway

import "time"

const (
	// DefaultCapacity is the default token bucket capacity.
	DefaultCapacity int64 = 100
	// DefaultRefillRate is the default refill rate in tokens/second.
	DefaultRefillRate float64 = 1
	// DefaultCost is the default per-request token cost.
	DefaultCost int64 = 1
	// DefaultKeyPrefix namespaces bucket keys in the shared store.
	DefaultKeyPrefix = "shield:"
	// DefaultStoreTimeout bounds store round trips before fail-open.
	DefaultStoreTimeout = 2 * time.Second
	// DefaultViolationWindow is the sliding window for denial counting.
	DefaultViolationWindow = 60 * time.Second
	// DefaultBanThreshold is the denial count within the window that
	// triggers a ban.
	DefaultBanThreshold = 10
	// DefaultBanDuration is how long a ban lasts once triggered.
	DefaultBanDuration = 600 * time.Second
	// DefaultLatencyHistorySize bounds the percentile sketch.
	DefaultLatencyHistorySize = 1000
	// MetricsRateLimit and MetricsRateWindow bound scrapes of the
	// metrics endpoint itself, to prevent enumeration-driven DoS.
	MetricsRateLimit  = 50
	MetricsRateWindow = 10 * time.Second
)

// Environment selects logging/debug posture.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)
