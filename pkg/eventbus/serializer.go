package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nearacct/acctsync/pkg/events"
	"github.com/nearacct/acctsync/pkg/model"
)

// JSONSerializer implements EventSerializer using JSON encoding.
type JSONSerializer struct{}

// NewJSONSerializer creates a new JSON serializer.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

// Ensure JSONSerializer implements EventSerializer.
var _ EventSerializer = (*JSONSerializer)(nil)

// eventEnvelope wraps an event with type information for deserialization.
type eventEnvelope struct {
	Type      events.EventType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id,omitempty"`
	Data      json.RawMessage  `json:"data"`
}

type entryDiscoveredData struct {
	AccountID string            `json:"account_id"`
	Entry     model.LedgerEntry `json:"entry"`
	CreatedAt time.Time         `json:"created_at"`
}

type gapDetectedData struct {
	AccountID string                     `json:"account_id"`
	PrevBlock uint64                     `json:"prev_block"`
	NextBlock uint64                     `json:"next_block"`
	Errors    []model.ConnectivityError  `json:"errors"`
	CreatedAt time.Time                  `json:"created_at"`
}

type gapFilledData struct {
	AccountID       string    `json:"account_id"`
	PrevBlock       uint64    `json:"prev_block"`
	NextBlock       uint64    `json:"next_block"`
	EntriesInserted int       `json:"entries_inserted"`
	CreatedAt       time.Time `json:"created_at"`
}

type cycleCompletedData struct {
	AccountID         string        `json:"account_id"`
	EntriesDiscovered int           `json:"entries_discovered"`
	HistoryComplete   bool          `json:"history_complete"`
	Duration          time.Duration `json:"duration"`
	CreatedAt         time.Time     `json:"created_at"`
}

type ledgerCorruptData struct {
	AccountID string    `json:"account_id"`
	Err       string    `json:"err"`
	CreatedAt time.Time `json:"created_at"`
}

type rateLimitedData struct {
	Method    string    `json:"method"`
	CreatedAt time.Time `json:"created_at"`
}

type accountRegisteredData struct {
	AccountID string    `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Serialize converts an event to JSON bytes.
func (s *JSONSerializer) Serialize(event events.Event) ([]byte, error) {
	if event == nil {
		return nil, ErrSerializationFailed
	}

	var data json.RawMessage
	var err error

	switch e := event.(type) {
	case *events.EntryDiscoveredEvent:
		data, err = json.Marshal(entryDiscoveredData{
			AccountID: e.AccountID,
			Entry:     e.Entry,
			CreatedAt: e.CreatedAt,
		})
	case *events.GapDetectedEvent:
		data, err = json.Marshal(gapDetectedData{
			AccountID: e.AccountID,
			PrevBlock: e.PrevBlock,
			NextBlock: e.NextBlock,
			Errors:    e.Errors,
			CreatedAt: e.CreatedAt,
		})
	case *events.GapFilledEvent:
		data, err = json.Marshal(gapFilledData{
			AccountID:       e.AccountID,
			PrevBlock:       e.PrevBlock,
			NextBlock:       e.NextBlock,
			EntriesInserted: e.EntriesInserted,
			CreatedAt:       e.CreatedAt,
		})
	case *events.CycleCompletedEvent:
		data, err = json.Marshal(cycleCompletedData{
			AccountID:         e.AccountID,
			EntriesDiscovered: e.EntriesDiscovered,
			HistoryComplete:   e.HistoryComplete,
			Duration:          e.Duration,
			CreatedAt:         e.CreatedAt,
		})
	case *events.LedgerCorruptEvent:
		data, err = json.Marshal(ledgerCorruptData{
			AccountID: e.AccountID,
			Err:       e.Err,
			CreatedAt: e.CreatedAt,
		})
	case *events.RateLimitedEvent:
		data, err = json.Marshal(rateLimitedData{
			Method:    e.Method,
			CreatedAt: e.CreatedAt,
		})
	case *events.AccountRegisteredEvent:
		data, err = json.Marshal(accountRegisteredData{
			AccountID: e.AccountID,
			ExpiresAt: e.ExpiresAt,
			CreatedAt: e.CreatedAt,
		})
	default:
		return nil, fmt.Errorf("%w: unknown event type %T", ErrInvalidEventType, event)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}

	envelope := eventEnvelope{
		Type:      event.Type(),
		Timestamp: event.Timestamp(),
		Data:      data,
	}

	result, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}

	return result, nil
}

// Deserialize converts JSON bytes back to an event.
func (s *JSONSerializer) Deserialize(data []byte) (events.Event, error) {
	if len(data) == 0 {
		return nil, ErrDeserializationFailed
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserializationFailed, err)
	}

	switch envelope.Type {
	case events.EventTypeEntryDiscovered:
		var ed entryDiscoveredData
		if err := json.Unmarshal(envelope.Data, &ed); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeserializationFailed, err)
		}
		return &events.EntryDiscoveredEvent{AccountID: ed.AccountID, Entry: ed.Entry, CreatedAt: ed.CreatedAt}, nil

	case events.EventTypeGapDetected:
		var ed gapDetectedData
		if err := json.Unmarshal(envelope.Data, &ed); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeserializationFailed, err)
		}
		return &events.GapDetectedEvent{AccountID: ed.AccountID, PrevBlock: ed.PrevBlock, NextBlock: ed.NextBlock, Errors: ed.Errors, CreatedAt: ed.CreatedAt}, nil

	case events.EventTypeGapFilled:
		var ed gapFilledData
		if err := json.Unmarshal(envelope.Data, &ed); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeserializationFailed, err)
		}
		return &events.GapFilledEvent{AccountID: ed.AccountID, PrevBlock: ed.PrevBlock, NextBlock: ed.NextBlock, EntriesInserted: ed.EntriesInserted, CreatedAt: ed.CreatedAt}, nil

	case events.EventTypeCycleCompleted:
		var ed cycleCompletedData
		if err := json.Unmarshal(envelope.Data, &ed); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeserializationFailed, err)
		}
		return &events.CycleCompletedEvent{
			AccountID:         ed.AccountID,
			EntriesDiscovered: ed.EntriesDiscovered,
			HistoryComplete:   ed.HistoryComplete,
			Duration:          ed.Duration,
			CreatedAt:         ed.CreatedAt,
		}, nil

	case events.EventTypeLedgerCorrupt:
		var ed ledgerCorruptData
		if err := json.Unmarshal(envelope.Data, &ed); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeserializationFailed, err)
		}
		return &events.LedgerCorruptEvent{AccountID: ed.AccountID, Err: ed.Err, CreatedAt: ed.CreatedAt}, nil

	case events.EventTypeRateLimited:
		var ed rateLimitedData
		if err := json.Unmarshal(envelope.Data, &ed); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeserializationFailed, err)
		}
		return &events.RateLimitedEvent{Method: ed.Method, CreatedAt: ed.CreatedAt}, nil

	case events.EventTypeAccountRegistered:
		var ed accountRegisteredData
		if err := json.Unmarshal(envelope.Data, &ed); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeserializationFailed, err)
		}
		return &events.AccountRegisteredEvent{AccountID: ed.AccountID, ExpiresAt: ed.ExpiresAt, CreatedAt: ed.CreatedAt}, nil

	default:
		return nil, fmt.Errorf("%w: unknown event type %s", ErrInvalidEventType, envelope.Type)
	}
}

// ContentType returns the MIME type for JSON.
func (s *JSONSerializer) ContentType() string {
	return "application/json"
}
