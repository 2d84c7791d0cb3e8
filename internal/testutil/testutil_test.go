package testutil

import (
	"testing"
)

// TestNewTestLogger tests creating a test logger
func TestNewTestLogger(t *testing.T) {
	logger := NewTestLogger(t)
	if logger == nil {
		t.Fatal("NewTestLogger() returned nil")
	}
}

// TestNewTestSnapshot tests creating a test balance snapshot
func TestNewTestSnapshot(t *testing.T) {
	snap := NewTestSnapshot(100, "5000000000000000000000")
	if snap == nil {
		t.Fatal("NewTestSnapshot() returned nil")
	}
	if snap.EffectiveBlock != 100 {
		t.Errorf("EffectiveBlock = %d, want 100", snap.EffectiveBlock)
	}
	if snap.Native == nil {
		t.Fatal("expected non-nil Native amount")
	}
}

// TestNewTestEntry tests creating a test ledger entry
func TestNewTestEntry(t *testing.T) {
	entry := NewTestEntry(200, "1000")
	if entry.Block != 200 {
		t.Errorf("Block = %d, want 200", entry.Block)
	}
	if entry.BalanceAfter == nil {
		t.Fatal("expected non-nil BalanceAfter")
	}
}

// TestAssertNoError tests the AssertNoError helper
func TestAssertNoError(t *testing.T) {
	// Should not panic with nil error
	AssertNoError(t, nil)
}

// TestAssertEqual tests the AssertEqual helper
func TestAssertEqual(t *testing.T) {
	// Should not fail with equal values
	AssertEqual(t, 1, 1)
	AssertEqual(t, "test", "test")
}

// TestAssertNotEqual tests the AssertNotEqual helper
func TestAssertNotEqual(t *testing.T) {
	// Should not fail with different values
	AssertNotEqual(t, 1, 2)
	AssertNotEqual(t, "test", "other")
}

// TestAssertTrue tests the AssertTrue helper
func TestAssertTrue(t *testing.T) {
	// Should not fail with true condition
	AssertTrue(t, true)
	a, b := 1, 1
	AssertTrue(t, a == b)
}

// TestAssertFalse tests the AssertFalse helper
func TestAssertFalse(t *testing.T) {
	// Should not fail with false condition
	AssertFalse(t, false)
	AssertFalse(t, 1 == 2)
}

// TestAssertNil tests the AssertNil helper
func TestAssertNil(t *testing.T) {
	// Should not fail with nil value
	var nilValue *int
	AssertNil(t, nil)
	AssertNil(t, nilValue)
}

// TestAssertNotNil tests the AssertNotNil helper
func TestAssertNotNil(t *testing.T) {
	// Should not fail with non-nil value
	value := 1
	AssertNotNil(t, &value)
	AssertNotNil(t, "test")
}
