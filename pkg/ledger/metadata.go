package ledger

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/nearacct/acctsync/pkg/model"
	"go.uber.org/zap"
)

// MetadataConfig configures the PebbleDB-backed metadata store.
type MetadataConfig struct {
	Path         string
	CacheMB      int
	MaxOpenFiles int
	ReadOnly     bool
}

// DefaultMetadataConfig returns conservative defaults for a small,
// low-write-volume metadata store.
func DefaultMetadataConfig(path string) *MetadataConfig {
	return &MetadataConfig{Path: path, CacheMB: 16, MaxOpenFiles: 256}
}

// MetadataStore persists scheduler state that must survive a restart:
// per-account active keysets and sync cursors, and the account roster.
type MetadataStore struct {
	db     *pebble.DB
	logger *zap.Logger
	closed atomic.Bool
}

// NewMetadataStore opens (or creates) the PebbleDB metadata store.
func NewMetadataStore(cfg *MetadataConfig, logger *zap.Logger) (*MetadataStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ledger: metadata config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := &pebble.Options{
		Cache:        pebble.NewCache(int64(cfg.CacheMB) << 20),
		MaxOpenFiles: cfg.MaxOpenFiles,
		ReadOnly:     cfg.ReadOnly,
	}

	db, err := pebble.Open(cfg.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("ledger: open metadata store: %w", err)
	}

	return &MetadataStore{db: db, logger: logger}, nil
}

// DB returns the underlying PebbleDB handle, for callers (such as
// pkg/notifications) that persist their own namespaced keys alongside
// the scheduler's metadata in the same store.
func (m *MetadataStore) DB() *pebble.DB {
	return m.db
}

// Close releases the underlying database handle. Safe to call once.
func (m *MetadataStore) Close() error {
	if m.closed.CompareAndSwap(false, true) {
		return m.db.Close()
	}
	return nil
}

// SaveKeyset persists an account's active keyset.
func (m *MetadataStore) SaveKeyset(accountID string, keyset model.Keyset) error {
	data, err := json.Marshal(keyset)
	if err != nil {
		return fmt.Errorf("ledger: marshal keyset for %s: %w", accountID, err)
	}
	return m.db.Set(keysetKey(accountID), data, pebble.Sync)
}

// LoadKeyset retrieves an account's persisted active keyset, returning
// the zero value (no error) if none was ever saved.
func (m *MetadataStore) LoadKeyset(accountID string) (model.Keyset, error) {
	value, closer, err := m.db.Get(keysetKey(accountID))
	if err == pebble.ErrNotFound {
		return model.Keyset{}, nil
	}
	if err != nil {
		return model.Keyset{}, fmt.Errorf("ledger: load keyset for %s: %w", accountID, err)
	}
	defer closer.Close()

	var keyset model.Keyset
	if err := json.Unmarshal(value, &keyset); err != nil {
		return model.Keyset{}, fmt.Errorf("ledger: decode keyset for %s: %w", accountID, err)
	}
	return keyset, nil
}

// Cursor is the scheduler's per-account progress marker.
type Cursor struct {
	LastForwardBlock uint64 `json:"lastForwardBlock"`
	FirstBackwardBlock uint64 `json:"firstBackwardBlock"`
}

// SaveCursor persists an account's sync cursor.
func (m *MetadataStore) SaveCursor(accountID string, cursor Cursor) error {
	data, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("ledger: marshal cursor for %s: %w", accountID, err)
	}
	return m.db.Set(cursorKey(accountID), data, pebble.Sync)
}

// LoadCursor retrieves an account's persisted cursor, returning the
// zero value (no error) if none exists.
func (m *MetadataStore) LoadCursor(accountID string) (Cursor, error) {
	value, closer, err := m.db.Get(cursorKey(accountID))
	if err == pebble.ErrNotFound {
		return Cursor{}, nil
	}
	if err != nil {
		return Cursor{}, fmt.Errorf("ledger: load cursor for %s: %w", accountID, err)
	}
	defer closer.Close()

	var cursor Cursor
	if err := json.Unmarshal(value, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("ledger: decode cursor for %s: %w", accountID, err)
	}
	return cursor, nil
}

// RosterEntry is one registered account, persisted independently of
// the HTTP registration façade (out of scope; this is just storage).
type RosterEntry struct {
	AccountID string    `json:"accountId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SaveRosterEntry persists or updates a registration.
func (m *MetadataStore) SaveRosterEntry(entry RosterEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("ledger: marshal roster entry for %s: %w", entry.AccountID, err)
	}
	return m.db.Set(rosterKey(entry.AccountID), data, pebble.Sync)
}

// DeleteRosterEntry removes a registration.
func (m *MetadataStore) DeleteRosterEntry(accountID string) error {
	return m.db.Delete(rosterKey(accountID), pebble.Sync)
}

// ListRosterEntries returns every persisted registration.
func (m *MetadataStore) ListRosterEntries() ([]RosterEntry, error) {
	prefix := rosterPrefix()
	upperBound := append(append([]byte{}, prefix...), 0xff)
	iter, err := m.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound})
	if err != nil {
		return nil, fmt.Errorf("ledger: iterate roster: %w", err)
	}
	defer iter.Close()

	var out []RosterEntry
	for iter.First(); iter.Valid(); iter.Next() {
		var entry RosterEntry
		if err := json.Unmarshal(iter.Value(), &entry); err != nil {
			return nil, fmt.Errorf("ledger: decode roster entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}
