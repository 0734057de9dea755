package gateway

import (
	"fmt"
	"time"

	"github.com/atlas/shield/identity"
)

// Config holds every recognized configuration option from the external
// interfaces design. Validation happens once, here, never per request.
type Config struct {
	Capacity   int64
	RefillRate float64
	Cost       int64

	KeyPrefix string

	StoreURL     string
	StoreTimeout time.Duration

	TrustProxy string // raw config value: "false", "true", or a positive integer string

	BanThreshold    int
	ViolationWindow time.Duration
	BanDuration     time.Duration

	LatencyHistorySize int

	Environment Environment

	// resolved after validation
	proxyTrust identity.ProxyTrust
}

// DefaultConfig returns a Config populated with every documented
// default.
func DefaultConfig() Config {
	return Config{
		Capacity:           DefaultCapacity,
		RefillRate:         DefaultRefillRate,
		Cost:               DefaultCost,
		KeyPrefix:          DefaultKeyPrefix,
		StoreTimeout:       DefaultStoreTimeout,
		TrustProxy:         "false",
		BanThreshold:       DefaultBanThreshold,
		ViolationWindow:    DefaultViolationWindow,
		BanDuration:        DefaultBanDuration,
		LatencyHistorySize: DefaultLatencyHistorySize,
		Environment:        EnvProduction,
	}
}

// Validate checks every option and resolves derived fields (proxy
// trust). It is a configuration error, per the error handling design,
// for any of these to be wrong — callers should treat a non-nil
// return as fatal at startup, not recoverable at request time.
func (c *Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("gateway: capacity must be positive, got %d", c.Capacity)
	}
	if c.RefillRate <= 0 {
		return fmt.Errorf("gateway: refill_rate must be positive, got %v", c.RefillRate)
	}
	if c.Cost <= 0 {
		return fmt.Errorf("gateway: cost must be positive, got %d", c.Cost)
	}
	if c.Capacity < c.Cost {
		return fmt.Errorf("gateway: capacity (%d) must be >= cost (%d)", c.Capacity, c.Cost)
	}
	if c.StoreURL == "" {
		return fmt.Errorf("gateway: store_url is required")
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
	if c.BanThreshold <= 0 {
		c.BanThreshold = DefaultBanThreshold
	}
	if c.ViolationWindow <= 0 {
		c.ViolationWindow = DefaultViolationWindow
	}
	if c.BanDuration <= 0 {
		c.BanDuration = DefaultBanDuration
	}
	if c.LatencyHistorySize <= 0 {
		c.LatencyHistorySize = DefaultLatencyHistorySize
	}
	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		c.Environment = EnvProduction
	}

	trust, err := identity.ParseProxyTrust(c.TrustProxy)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	c.proxyTrust = trust

	return nil
}

// ProxyTrust returns the resolved proxy-trust policy. Only valid after
// Validate has returned nil.
func (c *Config) ProxyTrust() identity.ProxyTrust {
	return c.proxyTrust
}
