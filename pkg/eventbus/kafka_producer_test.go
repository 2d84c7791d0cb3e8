package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/nearacct/acctsync/internal/config"
	"github.com/nearacct/acctsync/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// NewKafkaProducer Tests
// ============================================================================

func TestNewKafkaProducer_Valid(t *testing.T) {
	cfg := config.EventBusKafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "test-events",
	}

	kp, err := NewKafkaProducer(cfg, "node-1")
	require.NoError(t, err)
	require.NotNil(t, kp)
	assert.False(t, kp.IsConnected())
}

func TestNewKafkaProducer_NoBrokers(t *testing.T) {
	cfg := config.EventBusKafkaConfig{
		Brokers: nil,
		Topic:   "test-events",
	}

	kp, err := NewKafkaProducer(cfg, "node-1")
	assert.Nil(t, kp)
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestNewKafkaProducer_EmptyBrokers(t *testing.T) {
	cfg := config.EventBusKafkaConfig{
		Brokers: []string{},
		Topic:   "test-events",
	}

	kp, err := NewKafkaProducer(cfg, "node-1")
	assert.Nil(t, kp)
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestNewKafkaProducer_NoTopic(t *testing.T) {
	cfg := config.EventBusKafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "",
	}

	kp, err := NewKafkaProducer(cfg, "node-1")
	assert.Nil(t, kp)
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

// ============================================================================
// KafkaProducer Property Tests
// ============================================================================

func TestKafkaProducer_IsConnected_Initially(t *testing.T) {
	cfg := config.EventBusKafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "test",
	}
	kp, err := NewKafkaProducer(cfg, "node-1")
	require.NoError(t, err)

	assert.False(t, kp.IsConnected())
}

func TestKafkaProducer_Disconnect_NotConnected(t *testing.T) {
	cfg := config.EventBusKafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "test",
	}
	kp, err := NewKafkaProducer(cfg, "node-1")
	require.NoError(t, err)

	err = kp.Disconnect(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestKafkaProducer_Stats(t *testing.T) {
	cfg := config.EventBusKafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "test",
	}
	kp, err := NewKafkaProducer(cfg, "node-1")
	require.NoError(t, err)

	stats := kp.Stats()
	assert.Equal(t, uint64(0), stats.MessagesWritten)
	assert.Equal(t, uint64(0), stats.BytesWritten)
	assert.Equal(t, uint64(0), stats.Errors)
	assert.False(t, stats.Connected)
	assert.True(t, stats.Uptime > 0)
}

func TestKafkaProducer_GetHealthStatus_NotConnected(t *testing.T) {
	cfg := config.EventBusKafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "test",
	}
	kp, err := NewKafkaProducer(cfg, "node-1")
	require.NoError(t, err)

	health := kp.GetHealthStatus()
	assert.Equal(t, "unhealthy", health.Status)
	assert.Contains(t, health.Message, "Not connected")
	assert.NotNil(t, health.Details)
	assert.Equal(t, false, health.Details["connected"])
	assert.Equal(t, cfg.Brokers, health.Details["brokers"])
	assert.Equal(t, cfg.Topic, health.Details["topic"])
}

func TestKafkaProducer_WriteEvent_NotConnected(t *testing.T) {
	cfg := config.EventBusKafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "test",
	}
	kp, err := NewKafkaProducer(cfg, "node-1")
	require.NoError(t, err)

	entryEvent := &events.EntryDiscoveredEvent{
		AccountID: "arizcredits.near",
		CreatedAt: time.Now(),
	}

	err = kp.WriteEvent(context.Background(), entryEvent)
	assert.ErrorIs(t, err, ErrNotConnected)
}

// ============================================================================
// getPartitionKey Tests
// ============================================================================

func TestGetPartitionKey_EntryDiscoveredEvent(t *testing.T) {
	cfg := config.EventBusKafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "test",
	}
	kp, err := NewKafkaProducer(cfg, "node-1")
	require.NoError(t, err)

	event := &events.EntryDiscoveredEvent{AccountID: "webassemblymusic-treasury.sputnik-dao.near"}
	key := kp.getPartitionKey(event)
	assert.Equal(t, "webassemblymusic-treasury.sputnik-dao.near", key)
}

func TestGetPartitionKey_GapDetectedEvent(t *testing.T) {
	cfg := config.EventBusKafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "test",
	}
	kp, err := NewKafkaProducer(cfg, "node-1")
	require.NoError(t, err)

	event := &events.GapDetectedEvent{AccountID: "arizcredits.near"}
	key := kp.getPartitionKey(event)
	assert.Equal(t, "arizcredits.near", key)
}

func TestGetPartitionKey_RateLimitedEvent_FallsBackToEventType(t *testing.T) {
	cfg := config.EventBusKafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "test",
	}
	kp, err := NewKafkaProducer(cfg, "node-1")
	require.NoError(t, err)

	event := &events.RateLimitedEvent{Method: "query"}
	key := kp.getPartitionKey(event)
	assert.Equal(t, string(events.EventTypeRateLimited), key)
}
