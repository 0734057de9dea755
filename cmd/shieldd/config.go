package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/atlas/shield/gateway"
)

// fileConfig mirrors the recognized YAML keys for an optional config
// file. Every field also has an environment-variable equivalent;
// environment variables win when both are set, so operators can
// override a checked-in file at deploy time without editing it.
type fileConfig struct {
	ListenAddr  string  `yaml:"listen_addr"`
	StoreURL    string  `yaml:"store_url"`
	KeyPrefix   string  `yaml:"key_prefix"`
	Capacity    int64   `yaml:"capacity"`
	RefillRate  float64 `yaml:"refill_rate"`
	Cost        int64   `yaml:"cost"`
	TrustProxy  string  `yaml:"trust_proxy"`
	Environment string  `yaml:"environment"`

	BanThreshold       int    `yaml:"ban_threshold"`
	ViolationWindowSec int    `yaml:"violation_window_seconds"`
	BanDurationSec     int    `yaml:"ban_duration_seconds"`
	LatencyHistory     int    `yaml:"latency_history_size"`
	StoreTimeoutMs     int    `yaml:"store_timeout_ms"`
	AuditTopic         string `yaml:"audit_alert_topic"`
	AuditBackend       string `yaml:"audit_backend"`
	ReplicaKeyPrefix   string `yaml:"replica_key_prefix"`
}

// loadFileConfig reads path if it exists; a missing path is not an
// error, since the file is optional and every setting has an
// environment-variable fallback.
func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fc, nil
		}
		return fc, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return fc, nil
}

// appConfig is every setting main needs beyond gateway.Config itself:
// listen address, store connection, and the pieces of guard.Config
// that gateway.Config doesn't carry.
type appConfig struct {
	ListenAddr string
	// StoreURLs is one store_url, or several separated by commas to
	// shard bucket traffic across them (see store.NewSharded).
	StoreURLs        string
	AuditTopic       string
	// AuditBackend selects the audit bus's pub/sub backend: "memory"
	// (default) or "redis".
	AuditBackend     string
	ReplicaKeyPrefix string
	Gateway          gateway.Config
}

func resolveConfig() (appConfig, error) {
	fc, err := loadFileConfig(os.Getenv("SHIELD_CONFIG_FILE"))
	if err != nil {
		return appConfig{}, err
	}

	cfg := gateway.DefaultConfig()

	cfg.StoreURL = firstNonEmpty(os.Getenv("SHIELD_STORE_URL"), fc.StoreURL, "redis://localhost:6379/0")
	cfg.KeyPrefix = firstNonEmpty(os.Getenv("SHIELD_KEY_PREFIX"), fc.KeyPrefix, cfg.KeyPrefix)
	cfg.TrustProxy = firstNonEmpty(os.Getenv("SHIELD_TRUST_PROXY"), fc.TrustProxy, cfg.TrustProxy)
	cfg.Environment = gateway.Environment(firstNonEmpty(os.Getenv("SHIELD_ENVIRONMENT"), fc.Environment, string(cfg.Environment)))

	if v, ok := envInt64("SHIELD_CAPACITY"); ok {
		cfg.Capacity = v
	} else if fc.Capacity > 0 {
		cfg.Capacity = fc.Capacity
	}
	if v, ok := envFloat("SHIELD_REFILL_RATE"); ok {
		cfg.RefillRate = v
	} else if fc.RefillRate > 0 {
		cfg.RefillRate = fc.RefillRate
	}
	if v, ok := envInt64("SHIELD_COST"); ok {
		cfg.Cost = v
	} else if fc.Cost > 0 {
		cfg.Cost = fc.Cost
	}
	if v, ok := envInt("SHIELD_BAN_THRESHOLD"); ok {
		cfg.BanThreshold = v
	} else if fc.BanThreshold > 0 {
		cfg.BanThreshold = fc.BanThreshold
	}
	if v, ok := envInt("SHIELD_VIOLATION_WINDOW_SECONDS"); ok {
		cfg.ViolationWindow = time.Duration(v) * time.Second
	} else if fc.ViolationWindowSec > 0 {
		cfg.ViolationWindow = time.Duration(fc.ViolationWindowSec) * time.Second
	}
	if v, ok := envInt("SHIELD_BAN_DURATION_SECONDS"); ok {
		cfg.BanDuration = time.Duration(v) * time.Second
	} else if fc.BanDurationSec > 0 {
		cfg.BanDuration = time.Duration(fc.BanDurationSec) * time.Second
	}
	if v, ok := envInt("SHIELD_LATENCY_HISTORY_SIZE"); ok {
		cfg.LatencyHistorySize = v
	} else if fc.LatencyHistory > 0 {
		cfg.LatencyHistorySize = fc.LatencyHistory
	}
	if v, ok := envInt("SHIELD_STORE_TIMEOUT_MS"); ok {
		cfg.StoreTimeout = time.Duration(v) * time.Millisecond
	} else if fc.StoreTimeoutMs > 0 {
		cfg.StoreTimeout = time.Duration(fc.StoreTimeoutMs) * time.Millisecond
	}

	app := appConfig{
		ListenAddr:       firstNonEmpty(os.Getenv("SHIELD_LISTEN_ADDR"), fc.ListenAddr, ":8080"),
		StoreURLs:        cfg.StoreURL,
		AuditTopic:       firstNonEmpty(os.Getenv("SHIELD_ALERT_TOPIC"), fc.AuditTopic, "shield.alerts"),
		AuditBackend:     firstNonEmpty(os.Getenv("SHIELD_AUDIT_BACKEND"), fc.AuditBackend, "memory"),
		ReplicaKeyPrefix: firstNonEmpty(os.Getenv("SHIELD_REPLICA_KEY_PREFIX"), fc.ReplicaKeyPrefix, ""),
		Gateway:          cfg,
	}
	return app, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func envInt64(key string) (int64, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envFloat(key string) (float64, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
