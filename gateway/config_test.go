package gateway

import "testing"

func TestValidateRejectsNonPositiveCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StoreURL = "redis://localhost:6379/0"
	cfg.Capacity = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero capacity")
	}
}

func TestValidateRejectsCostAboveCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StoreURL = "redis://localhost:6379/0"
	cfg.Capacity = 5
	cfg.Cost = 10
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when cost exceeds capacity")
	}
}

func TestValidateRequiresStoreURL(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing store_url")
	}
}

func TestValidateRejectsMalformedTrustProxy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StoreURL = "redis://localhost:6379/0"
	cfg.TrustProxy = "maybe"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for malformed trust_proxy value")
	}
}

func TestValidateFillsDefaults(t *testing.T) {
	cfg := Config{StoreURL: "redis://localhost:6379/0", Capacity: 10, RefillRate: 1, Cost: 1}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.KeyPrefix != DefaultKeyPrefix {
		t.Fatalf("expected default key prefix, got %q", cfg.KeyPrefix)
	}
	if cfg.BanThreshold != DefaultBanThreshold {
		t.Fatalf("expected default ban threshold, got %d", cfg.BanThreshold)
	}
}
