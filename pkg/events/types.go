package events

import (
	"time"

	"github.com/nearacct/acctsync/pkg/model"
)

// EventType represents the type of account sync event.
type EventType string

const (
	// EventTypeEntryDiscovered fires when the Sync Scheduler inserts a
	// new LedgerEntry for an account.
	EventTypeEntryDiscovered EventType = "entryDiscovered"

	// EventTypeGapDetected fires when DetectGaps finds a connectivity
	// failure between two adjacent entries.
	EventTypeGapDetected EventType = "gapDetected"

	// EventTypeGapFilled fires when a Filler pass closes a previously
	// reported gap.
	EventTypeGapFilled EventType = "gapFilled"

	// EventTypeCycleCompleted fires when the scheduler finishes one
	// full pass over an account (forward + backward + re-enrichment).
	EventTypeCycleCompleted EventType = "cycleCompleted"

	// EventTypeLedgerCorrupt fires when Store.Load rejects a malformed
	// ledger file — a fatal, operator-facing condition.
	EventTypeLedgerCorrupt EventType = "ledgerCorrupt"

	// EventTypeRateLimited fires when the RPC Gateway trips its stop
	// signal after detecting a rate-limit response.
	EventTypeRateLimited EventType = "rateLimited"

	// EventTypeAccountRegistered fires when an account is added to the
	// roster.
	EventTypeAccountRegistered EventType = "accountRegistered"
)

// Event is the base interface for all account sync events.
type Event interface {
	// Type returns the event type.
	Type() EventType

	// Timestamp returns when the event was created.
	Timestamp() time.Time
}

// EntryDiscoveredEvent fires when a new LedgerEntry is inserted.
type EntryDiscoveredEvent struct {
	AccountID string
	Entry     model.LedgerEntry
	CreatedAt time.Time
}

func (e *EntryDiscoveredEvent) Type() EventType      { return EventTypeEntryDiscovered }
func (e *EntryDiscoveredEvent) Timestamp() time.Time { return e.CreatedAt }

// NewEntryDiscoveredEvent wraps a newly inserted ledger entry.
func NewEntryDiscoveredEvent(accountID string, entry model.LedgerEntry) *EntryDiscoveredEvent {
	return &EntryDiscoveredEvent{AccountID: accountID, Entry: entry, CreatedAt: time.Now()}
}

// GapDetectedEvent fires when a connectivity check fails between two
// adjacent ledger entries.
type GapDetectedEvent struct {
	AccountID string
	PrevBlock uint64
	NextBlock uint64
	Errors    []model.ConnectivityError
	CreatedAt time.Time
}

func (e *GapDetectedEvent) Type() EventType      { return EventTypeGapDetected }
func (e *GapDetectedEvent) Timestamp() time.Time { return e.CreatedAt }

// NewGapDetectedEvent reports an internal gap found by DetectGaps.
func NewGapDetectedEvent(accountID string, prevBlock, nextBlock uint64, errs []model.ConnectivityError) *GapDetectedEvent {
	return &GapDetectedEvent{AccountID: accountID, PrevBlock: prevBlock, NextBlock: nextBlock, Errors: errs, CreatedAt: time.Now()}
}

// GapFilledEvent fires when a Filler pass closes a gap.
type GapFilledEvent struct {
	AccountID      string
	PrevBlock      uint64
	NextBlock      uint64
	EntriesInserted int
	CreatedAt      time.Time
}

func (e *GapFilledEvent) Type() EventType      { return EventTypeGapFilled }
func (e *GapFilledEvent) Timestamp() time.Time { return e.CreatedAt }

// NewGapFilledEvent reports a gap the Filler closed.
func NewGapFilledEvent(accountID string, prevBlock, nextBlock uint64, entriesInserted int) *GapFilledEvent {
	return &GapFilledEvent{AccountID: accountID, PrevBlock: prevBlock, NextBlock: nextBlock, EntriesInserted: entriesInserted, CreatedAt: time.Now()}
}

// CycleCompletedEvent fires when one scheduler cycle finishes for an account.
type CycleCompletedEvent struct {
	AccountID        string
	EntriesDiscovered int
	HistoryComplete  bool
	Duration         time.Duration
	CreatedAt        time.Time
}

func (e *CycleCompletedEvent) Type() EventType      { return EventTypeCycleCompleted }
func (e *CycleCompletedEvent) Timestamp() time.Time { return e.CreatedAt }

// NewCycleCompletedEvent reports the outcome of one account's cycle.
func NewCycleCompletedEvent(accountID string, entriesDiscovered int, historyComplete bool, duration time.Duration) *CycleCompletedEvent {
	return &CycleCompletedEvent{
		AccountID:         accountID,
		EntriesDiscovered: entriesDiscovered,
		HistoryComplete:   historyComplete,
		Duration:          duration,
		CreatedAt:         time.Now(),
	}
}

// LedgerCorruptEvent fires when a ledger file fails to parse.
type LedgerCorruptEvent struct {
	AccountID string
	Err       string
	CreatedAt time.Time
}

func (e *LedgerCorruptEvent) Type() EventType      { return EventTypeLedgerCorrupt }
func (e *LedgerCorruptEvent) Timestamp() time.Time { return e.CreatedAt }

// NewLedgerCorruptEvent reports a malformed ledger file.
func NewLedgerCorruptEvent(accountID string, err error) *LedgerCorruptEvent {
	return &LedgerCorruptEvent{AccountID: accountID, Err: err.Error(), CreatedAt: time.Now()}
}

// RateLimitedEvent fires when the RPC Gateway trips its stop signal.
type RateLimitedEvent struct {
	Method    string
	CreatedAt time.Time
}

func (e *RateLimitedEvent) Type() EventType      { return EventTypeRateLimited }
func (e *RateLimitedEvent) Timestamp() time.Time { return e.CreatedAt }

// NewRateLimitedEvent reports a rate-limit trip against method.
func NewRateLimitedEvent(method string) *RateLimitedEvent {
	return &RateLimitedEvent{Method: method, CreatedAt: time.Now()}
}

// AccountRegisteredEvent fires when an account joins the roster.
type AccountRegisteredEvent struct {
	AccountID string
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (e *AccountRegisteredEvent) Type() EventType      { return EventTypeAccountRegistered }
func (e *AccountRegisteredEvent) Timestamp() time.Time { return e.CreatedAt }

// NewAccountRegisteredEvent reports a new roster registration.
func NewAccountRegisteredEvent(accountID string, expiresAt time.Time) *AccountRegisteredEvent {
	return &AccountRegisteredEvent{AccountID: accountID, ExpiresAt: expiresAt, CreatedAt: time.Now()}
}
