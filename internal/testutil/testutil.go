package testutil

import (
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nearacct/acctsync/pkg/model"
)

// NewTestLogger creates a test logger that doesn't output to console
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("Failed to create test logger: %v", err)
	}
	return logger
}

// NewTestSnapshot builds a balance snapshot with only a native balance set,
// at the given effective block.
func NewTestSnapshot(block uint64, native string) *model.BalanceSnapshot {
	amt := model.MustParseAmount(native)
	return &model.BalanceSnapshot{
		Native:         &amt,
		EffectiveBlock: block,
	}
}

// NewTestEntry builds a ledger entry for the given block with the given
// native balance after the change.
func NewTestEntry(block uint64, native string) model.LedgerEntry {
	return model.LedgerEntry{
		Block:        block,
		Timestamp:    time.Now().Unix(),
		BalanceAfter: NewTestSnapshot(block, native),
	}
}

// AssertNoError is a helper to assert that there is no error
func AssertNoError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err != nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%s: %v", msgAndArgs[0], err)
		} else {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
}

// AssertError is a helper to assert that there is an error
func AssertError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err == nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%s: expected error but got nil", msgAndArgs[0])
		} else {
			t.Fatal("Expected error but got nil")
		}
	}
}

// AssertEqual is a helper to assert equality
func AssertEqual(t *testing.T, expected, actual interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if expected != actual {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%s: expected %v, got %v", msgAndArgs[0], expected, actual)
		} else {
			t.Fatalf("Expected %v, got %v", expected, actual)
		}
	}
}

// AssertNotEqual is a helper to assert inequality
func AssertNotEqual(t *testing.T, expected, actual interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if expected == actual {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%s: expected not equal to %v, but got %v", msgAndArgs[0], expected, actual)
		} else {
			t.Fatalf("Expected not equal to %v, but got %v", expected, actual)
		}
	}
}

// AssertTrue is a helper to assert that a condition is true
func AssertTrue(t *testing.T, condition bool, msgAndArgs ...interface{}) {
	t.Helper()
	if !condition {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%s: expected true but got false", msgAndArgs[0])
		} else {
			t.Fatal("Expected true but got false")
		}
	}
}

// AssertFalse is a helper to assert that a condition is false
func AssertFalse(t *testing.T, condition bool, msgAndArgs ...interface{}) {
	t.Helper()
	if condition {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%s: expected false but got true", msgAndArgs[0])
		} else {
			t.Fatal("Expected false but got true")
		}
	}
}

// AssertNil is a helper to assert that a value is nil
func AssertNil(t *testing.T, value interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if value != nil && !isNil(value) {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%s: expected nil but got %v", msgAndArgs[0], value)
		} else {
			t.Fatalf("Expected nil but got %v", value)
		}
	}
}

// isNil checks if a value is nil using reflection
// This is needed because interface{} != nil doesn't work for nil pointers
func isNil(value interface{}) bool {
	if value == nil {
		return true
	}

	// Use reflection to check if the underlying value is nil
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}

// AssertNotNil is a helper to assert that a value is not nil
func AssertNotNil(t *testing.T, value interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if value == nil || isNil(value) {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%s: expected not nil but got nil", msgAndArgs[0])
		} else {
			t.Fatal("Expected not nil but got nil")
		}
	}
}
