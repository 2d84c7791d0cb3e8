package scheduler

import "testing"

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsNonPositiveCycleDelay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CycleDelay = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero cycle delay")
	}
}

func TestValidateRejectsNonPositiveConcurrency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrentAccounts = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero max concurrent accounts")
	}
}
