package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	c := New(&Config{MaxSize: 10, DefaultTTL: time.Minute})
	defer c.Stop()

	c.Set("arizcredits.near@161048664", "500000000000000000000", time.Minute)

	val, ok := c.Get("arizcredits.near@161048664")
	require.True(t, ok)
	assert.Equal(t, "500000000000000000000", val)
}

func TestGetMissing(t *testing.T) {
	c := New(DefaultConfig())
	defer c.Stop()

	_, ok := c.Get("not-there")
	assert.False(t, ok)

	hits, misses, _, _ := c.Stats()
	assert.Equal(t, int64(0), hits)
	assert.Equal(t, int64(1), misses)
}

func TestEntryExpires(t *testing.T) {
	c := New(DefaultConfig())
	defer c.Stop()

	c.Set("k", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestOverflowEvictsOldest(t *testing.T) {
	c := New(&Config{MaxSize: 2, DefaultTTL: time.Minute})
	defer c.Stop()

	c.SetDefault("a", 1)
	c.SetDefault("b", 2)
	c.SetDefault("c", 3)

	assert.Equal(t, 2, c.Size())
	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should have been evicted")

	_, _, evictions, _ := c.Stats()
	assert.Equal(t, int64(1), evictions)
}

func TestClearEmptiesCache(t *testing.T) {
	c := New(DefaultConfig())
	defer c.Stop()

	c.SetDefault("a", 1)
	c.SetDefault("b", 2)
	c.Clear()

	assert.Equal(t, 0, c.Size())
}

func TestDeleteRemovesSingleKey(t *testing.T) {
	c := New(DefaultConfig())
	defer c.Stop()

	c.SetDefault("a", 1)
	c.SetDefault("b", 2)
	c.Delete("a")

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
}

func TestEntryCounterTripsAtBound(t *testing.T) {
	ec := NewEntryCounter(3)

	assert.False(t, ec.Increment())
	assert.False(t, ec.Increment())
	assert.True(t, ec.Increment())
	assert.False(t, ec.Increment(), "counter should have reset after tripping")
}

func TestNewEntryCounterDefaultsNonPositive(t *testing.T) {
	ec := NewEntryCounter(0)
	for i := 0; i < 9; i++ {
		assert.False(t, ec.Increment())
	}
	assert.True(t, ec.Increment())
}
