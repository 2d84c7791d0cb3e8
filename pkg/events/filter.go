package events

import (
	"fmt"
	"math/big"
)

// Filter defines subscription filter conditions.
type Filter struct {
	// AccountIDs filters events by account — any account that matches
	// will pass. Empty means no filtering on account.
	AccountIDs []string

	// MinBlock filters events from this block height (inclusive).
	// 0 means no minimum.
	MinBlock uint64

	// MaxBlock filters events up to this block height (inclusive).
	// 0 means no maximum.
	MaxBlock uint64

	// MinAmount filters EntryDiscoveredEvent by the entry's total
	// native balance (inclusive). Nil means no minimum.
	MinAmount *big.Int

	// MaxAmount filters EntryDiscoveredEvent by the entry's total
	// native balance (inclusive). Nil means no maximum.
	MaxAmount *big.Int

	// EventTypes restricts matching to these event types. Empty means
	// no filtering on event type.
	EventTypes []EventType
}

// NewFilter creates a new empty filter.
func NewFilter() *Filter {
	return &Filter{
		AccountIDs: make([]string, 0),
		EventTypes: make([]EventType, 0),
	}
}

// Validate checks if the filter configuration is valid.
func (f *Filter) Validate() error {
	if f.MinAmount != nil && f.MaxAmount != nil {
		if f.MinAmount.Cmp(f.MaxAmount) > 0 {
			return fmt.Errorf("minAmount (%s) cannot be greater than maxAmount (%s)",
				f.MinAmount.String(), f.MaxAmount.String())
		}
	}

	if f.MinBlock > 0 && f.MaxBlock > 0 {
		if f.MinBlock > f.MaxBlock {
			return fmt.Errorf("minBlock (%d) cannot be greater than maxBlock (%d)",
				f.MinBlock, f.MaxBlock)
		}
	}

	if f.MinAmount != nil && f.MinAmount.Sign() < 0 {
		return fmt.Errorf("minAmount cannot be negative")
	}
	if f.MaxAmount != nil && f.MaxAmount.Sign() < 0 {
		return fmt.Errorf("maxAmount cannot be negative")
	}

	return nil
}

func (f *Filter) matchAccount(accountID string) bool {
	if len(f.AccountIDs) == 0 {
		return true
	}
	for _, a := range f.AccountIDs {
		if a == accountID {
			return true
		}
	}
	return false
}

func (f *Filter) matchBlock(block uint64) bool {
	if f.MinBlock > 0 && block < f.MinBlock {
		return false
	}
	if f.MaxBlock > 0 && block > f.MaxBlock {
		return false
	}
	return true
}

func (f *Filter) matchEventType(t EventType) bool {
	if len(f.EventTypes) == 0 {
		return true
	}
	for _, et := range f.EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

// Match checks if an event matches this filter.
func (f *Filter) Match(event Event) bool {
	if !f.matchEventType(event.Type()) {
		return false
	}

	switch e := event.(type) {
	case *EntryDiscoveredEvent:
		if !f.matchAccount(e.AccountID) || !f.matchBlock(e.Entry.Block) {
			return false
		}
		if e.Entry.BalanceAfter == nil || e.Entry.BalanceAfter.Native == nil {
			return f.MinAmount == nil && f.MaxAmount == nil
		}
		return f.matchAmount(e.Entry.BalanceAfter.Native.Big())
	case *GapDetectedEvent:
		return f.matchAccount(e.AccountID) && f.matchBlock(e.PrevBlock)
	case *GapFilledEvent:
		return f.matchAccount(e.AccountID) && f.matchBlock(e.PrevBlock)
	case *CycleCompletedEvent:
		return f.matchAccount(e.AccountID)
	case *LedgerCorruptEvent:
		return f.matchAccount(e.AccountID)
	case *RateLimitedEvent:
		return true
	case *AccountRegisteredEvent:
		return f.matchAccount(e.AccountID)
	default:
		return false
	}
}

func (f *Filter) matchAmount(value *big.Int) bool {
	if f.MinAmount == nil && f.MaxAmount == nil {
		return true
	}
	if f.MinAmount != nil && value.Cmp(f.MinAmount) < 0 {
		return false
	}
	if f.MaxAmount != nil && value.Cmp(f.MaxAmount) > 0 {
		return false
	}
	return true
}

// IsEmpty returns true if the filter has no conditions set.
func (f *Filter) IsEmpty() bool {
	return len(f.AccountIDs) == 0 &&
		f.MinBlock == 0 &&
		f.MaxBlock == 0 &&
		f.MinAmount == nil &&
		f.MaxAmount == nil &&
		len(f.EventTypes) == 0
}

// Clone creates a deep copy of the filter.
func (f *Filter) Clone() *Filter {
	clone := &Filter{
		AccountIDs: make([]string, len(f.AccountIDs)),
		EventTypes: make([]EventType, len(f.EventTypes)),
		MinBlock:   f.MinBlock,
		MaxBlock:   f.MaxBlock,
	}

	copy(clone.AccountIDs, f.AccountIDs)
	copy(clone.EventTypes, f.EventTypes)

	if f.MinAmount != nil {
		clone.MinAmount = new(big.Int).Set(f.MinAmount)
	}
	if f.MaxAmount != nil {
		clone.MaxAmount = new(big.Int).Set(f.MaxAmount)
	}

	return clone
}
