// Package ledger owns the per-account append-only AccountHistory: it
// loads and atomically saves the JSON ledger file, enforces ordering
// and connectivity invariants on insert, and re-enriches sparse
// entries opportunistically.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/nearacct/acctsync/pkg/events"
	"github.com/nearacct/acctsync/pkg/model"
	"go.uber.org/zap"
)

// EventPublisher is satisfied by pkg/eventbus's EventBus. Kept as a
// single-method local interface, the same pattern used across this
// module's producers, so the ledger package doesn't need to import the
// distributed bus package.
type EventPublisher interface {
	Publish(event events.Event) bool
}

// Store owns every AccountHistory under a data directory, one JSON
// file per account.
type Store struct {
	dataDir  string
	logger   *zap.Logger
	eventBus EventPublisher
}

// New constructs a Store rooted at dataDir, creating it if necessary.
func New(dataDir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("ledger: create data dir: %w", err)
	}
	return &Store{dataDir: dataDir, logger: logger}, nil
}

// SetEventBus attaches an event publisher so a malformed ledger file
// surfaces as events.EventTypeLedgerCorrupt for operator alerting.
// Optional; a nil bus (the default) skips publication.
func (s *Store) SetEventBus(bus EventPublisher) {
	s.eventBus = bus
}

func (s *Store) path(accountID string) string {
	return filepath.Join(s.dataDir, accountID+".json")
}

// Load reads an account's history, returning a fresh empty history
// (never an error) when no file exists yet.
func (s *Store) Load(accountID string) (*model.AccountHistory, error) {
	data, err := os.ReadFile(s.path(accountID))
	if os.IsNotExist(err) {
		return model.NewAccountHistory(accountID, time.Now()), nil
	}
	if err != nil {
		return nil, model.NewLedgerError("Load", accountID, err)
	}

	var history model.AccountHistory
	if err := json.Unmarshal(data, &history); err != nil {
		// Malformed ledger file: refuse to overwrite, surface to operator.
		wrapped := fmt.Errorf("%w: %v", model.ErrLedgerCorrupt, err)
		if s.eventBus != nil {
			s.eventBus.Publish(events.NewLedgerCorruptEvent(accountID, wrapped))
		}
		return nil, model.NewLedgerError("Load", accountID, wrapped)
	}
	return &history, nil
}

// Save atomically rewrites an account's ledger file via temp-file+rename.
func (s *Store) Save(history *model.AccountHistory) error {
	history.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return model.NewLedgerError("Save", history.AccountID, err)
	}

	tmp, err := os.CreateTemp(s.dataDir, ".tmp-"+history.AccountID+"-*")
	if err != nil {
		return model.NewLedgerError("Save", history.AccountID, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return model.NewLedgerError("Save", history.AccountID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return model.NewLedgerError("Save", history.AccountID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return model.NewLedgerError("Save", history.AccountID, err)
	}

	if err := os.Rename(tmpPath, s.path(history.AccountID)); err != nil {
		os.Remove(tmpPath)
		return model.NewLedgerError("Save", history.AccountID, err)
	}
	return nil
}

// Insert adds entry to history, idempotent on Block, maintaining total
// order and recomputing metadata and the inserted entry's neighbor
// verification results.
func (s *Store) Insert(history *model.AccountHistory, entry model.LedgerEntry) {
	if idx := history.IndexOfBlock(entry.Block); idx >= 0 {
		history.Transactions[idx] = entry
	} else {
		history.Transactions = append(history.Transactions, entry)
		sort.Slice(history.Transactions, func(i, j int) bool {
			return history.Transactions[i].Block < history.Transactions[j].Block
		})
	}

	s.recomputeMetadata(history)
	s.reverifyNeighbors(history, entry.Block)
}

func (s *Store) recomputeMetadata(history *model.AccountHistory) {
	n := len(history.Transactions)
	history.Metadata.TotalTransactions = n
	if n == 0 {
		return
	}
	history.Metadata.FirstBlock = history.Transactions[0].Block
	history.Metadata.LastBlock = history.Transactions[n-1].Block

	first := history.Transactions[0]
	history.Metadata.HistoryComplete = first.BalanceBefore != nil && first.BalanceBefore.IsZero()
}

// MarkHistoryComplete sets the completeness flag once the earliest
// entry's balanceBefore is confirmed zero at account-creation origin.
func (s *Store) MarkHistoryComplete(history *model.AccountHistory) {
	if len(history.Transactions) == 0 {
		return
	}
	first := history.Transactions[0]
	if first.BalanceBefore != nil && first.BalanceBefore.IsZero() {
		history.Metadata.HistoryComplete = true
	}
}

// Verify compares the dense intersection of prev.BalanceAfter and
// entry.BalanceBefore per asset class. Synthetic entries are never
// compared (and never produce a mismatch).
func Verify(prev, entry *model.LedgerEntry) model.VerificationResult {
	if entry.IsSynthetic() || prev.IsSynthetic() {
		return model.VerificationResult{Verified: true}
	}

	var errs []model.ConnectivityError

	if prev.BalanceAfter != nil && entry.BalanceBefore != nil {
		if prev.BalanceAfter.Native != nil && entry.BalanceBefore.Native != nil {
			if prev.BalanceAfter.Native.Cmp(*entry.BalanceBefore.Native) != 0 {
				errs = append(errs, model.ConnectivityError{
					Kind:     model.ErrKindNativeMismatch,
					Expected: prev.BalanceAfter.Native.String(),
					Actual:   entry.BalanceBefore.Native.String(),
				})
			}
		}
		errs = append(errs, verifyMap(model.ErrKindTokenMismatch, prev.BalanceAfter.FungibleTokens, entry.BalanceBefore.FungibleTokens, "token")...)
		errs = append(errs, verifyMap(model.ErrKindIntentsMismatch, prev.BalanceAfter.IntentsTokens, entry.BalanceBefore.IntentsTokens, "token")...)
		errs = append(errs, verifyMap(model.ErrKindStakingMismatch, prev.BalanceAfter.StakingPools, entry.BalanceBefore.StakingPools, "pool")...)
	}

	return model.VerificationResult{Verified: len(errs) == 0, Errors: errs}
}

func verifyMap(kind model.ConnectivityErrorKind, prev, next map[string]model.Amount, label string) []model.ConnectivityError {
	var errs []model.ConnectivityError
	for k, pv := range prev {
		nv, ok := next[k]
		if !ok {
			continue // sparse: no assertion unless both sides queried it
		}
		if pv.Cmp(nv) != 0 {
			ce := model.ConnectivityError{Kind: kind, Expected: pv.String(), Actual: nv.String()}
			if label == "token" {
				ce.Token = k
			} else {
				ce.Pool = k
			}
			errs = append(errs, ce)
		}
	}
	return errs
}

func (s *Store) reverifyNeighbors(history *model.AccountHistory, block uint64) {
	idx := history.IndexOfBlock(block)
	if idx < 0 {
		return
	}

	entry := &history.Transactions[idx]
	if idx > 0 {
		prev := &history.Transactions[idx-1]
		result := Verify(prev, entry)
		entry.VerificationWithPrev = &result
		prevResult := Verify(prev, entry)
		prev.VerificationWithNext = &prevResult
	}
	if idx < len(history.Transactions)-1 {
		next := &history.Transactions[idx+1]
		result := Verify(entry, next)
		entry.VerificationWithNext = &result
		nextResult := Verify(entry, next)
		next.VerificationWithPrev = &nextResult
	}
}

// ReEnrich finds up to batchSize recent entries whose transfers
// reference asset classes not densely present in their snapshots and
// invokes fill for each, so the Scheduler's re-enrichment pass can
// densify sparse history opportunistically.
func (s *Store) ReEnrich(ctx context.Context, history *model.AccountHistory, batchSize int, fill func(ctx context.Context, entry *model.LedgerEntry) error) (int, error) {
	filled := 0
	for i := len(history.Transactions) - 1; i >= 0 && filled < batchSize; i-- {
		entry := &history.Transactions[i]
		if !needsEnrichment(entry) {
			continue
		}
		if err := fill(ctx, entry); err != nil {
			return filled, err
		}
		filled++
	}
	return filled, nil
}

func needsEnrichment(entry *model.LedgerEntry) bool {
	if len(entry.Transfers) == 0 && (entry.Changes.HasNonStakingChange() || len(entry.Changes.StakingChanged) > 0) {
		return true
	}
	for tokenID := range entry.Changes.TokensChanged {
		if entry.BalanceAfter == nil || entry.BalanceAfter.FungibleTokens == nil {
			return true
		}
		if _, ok := entry.BalanceAfter.FungibleTokens[tokenID]; !ok {
			return true
		}
	}
	return false
}
