// Package registry maintains the roster of registered accounts the
// Sync Scheduler iterates each cycle. Registration itself (the HTTP
// façade) is out of scope; this package only tracks who is currently
// eligible and persists that roster across restarts.
package registry

import (
	"sync"
	"time"

	"github.com/nearacct/acctsync/pkg/events"
	"github.com/nearacct/acctsync/pkg/ledger"
	"go.uber.org/zap"
)

// EventPublisher is satisfied by pkg/eventbus's EventBus. Kept as a
// single-method local interface, the same pattern as rpcgateway.Gateway
// and scheduler.Pipeline, so the registry doesn't need to import the
// distributed bus package.
type EventPublisher interface {
	Publish(event events.Event) bool
}

// Registry tracks registered accounts and their expiry.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]time.Time // accountID -> expiresAt
	store    *ledger.MetadataStore
	logger   *zap.Logger
	eventBus EventPublisher
}

// SetEventBus attaches an event publisher so new registrations surface
// as events.EventTypeAccountRegistered. Optional; a nil bus (the
// default) skips publication.
func (r *Registry) SetEventBus(bus EventPublisher) {
	r.eventBus = bus
}

// New constructs a Registry, loading any persisted roster from store.
func New(store *ledger.MetadataStore, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		entries: make(map[string]time.Time),
		store:   store,
		logger:  logger,
	}

	if store != nil {
		persisted, err := store.ListRosterEntries()
		if err != nil {
			return nil, err
		}
		for _, e := range persisted {
			r.entries[e.AccountID] = e.ExpiresAt
		}
	}
	return r, nil
}

// Register adds or refreshes an account's registration, expiring at
// the given time. A zero expiry means "never expires".
func (r *Registry) Register(accountID string, expiresAt time.Time) error {
	r.mu.Lock()
	r.entries[accountID] = expiresAt
	r.mu.Unlock()

	if r.eventBus != nil {
		r.eventBus.Publish(events.NewAccountRegisteredEvent(accountID, expiresAt))
	}

	if r.store == nil {
		return nil
	}
	return r.store.SaveRosterEntry(ledger.RosterEntry{AccountID: accountID, ExpiresAt: expiresAt})
}

// Unregister removes an account from the roster.
func (r *Registry) Unregister(accountID string) error {
	r.mu.Lock()
	delete(r.entries, accountID)
	r.mu.Unlock()

	if r.store == nil {
		return nil
	}
	return r.store.DeleteRosterEntry(accountID)
}

// EligibleAccounts returns every registered account whose registration
// has not expired, in the Scheduler's iteration order (insertion order
// is not preserved; callers that need stability should sort).
func (r *Registry) EligibleAccounts(now time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.entries))
	for accountID, expiresAt := range r.entries {
		if expiresAt.IsZero() || expiresAt.After(now) {
			out = append(out, accountID)
		}
	}
	return out
}

// IsRegistered reports whether accountID currently has a
// non-expired registration.
func (r *Registry) IsRegistered(accountID string, now time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	expiresAt, ok := r.entries[accountID]
	if !ok {
		return false
	}
	return expiresAt.IsZero() || expiresAt.After(now)
}
