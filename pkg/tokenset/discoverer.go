// Package tokenset discovers the FT contracts, NEP-245 token ids, and
// staking pools an account has ever touched, seeding the Balance
// Oracle's per-account active keyset.
package tokenset

import (
	"context"
	"sync"

	"github.com/nearacct/acctsync/pkg/model"
	"go.uber.org/zap"
)

// Discoverer maintains per-account active keysets, expanding them from
// ledger history, receipt scans, and optional external hints.
type Discoverer struct {
	mu           sync.Mutex
	activeSets   map[string]model.Keyset
	activityHint ActivityHintClient
	intentsHint  IntentsHintClient
	logger       *zap.Logger
}

// New constructs a Discoverer. Either hint client may be nil; their
// absence must never block progress.
func New(activityHint ActivityHintClient, intentsHint IntentsHintClient, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{
		activeSets:   make(map[string]model.Keyset),
		activityHint: activityHint,
		intentsHint:  intentsHint,
		logger:       logger,
	}
}

// SeedFromHistory unions every asset key ever referenced in an
// account's existing history into its active set. This is the
// highest-priority source per spec §4.3.
func (d *Discoverer) SeedFromHistory(accountID string, history *model.AccountHistory) model.Keyset {
	keyset := model.Keyset{}
	if history != nil {
		for _, entry := range history.Transactions {
			keyset = keyset.Widen(keysFromSnapshot(entry.BalanceAfter))
			keyset = keyset.Widen(keysFromSnapshot(entry.BalanceBefore))
			for k := range entry.Changes.TokensChanged {
				keyset.FungibleTokens = appendUnique(keyset.FungibleTokens, k)
			}
			for k := range entry.Changes.IntentsChanged {
				keyset.IntentsTokens = appendUnique(keyset.IntentsTokens, k)
			}
			for k := range entry.Changes.StakingChanged {
				keyset.StakingPools = appendUnique(keyset.StakingPools, k)
			}
		}
	}
	d.mu.Lock()
	d.activeSets[accountID] = d.activeSets[accountID].Widen(keyset)
	result := d.activeSets[accountID]
	d.mu.Unlock()
	return result
}

func keysFromSnapshot(s *model.BalanceSnapshot) model.Keyset {
	if s == nil {
		return model.Keyset{}
	}
	ks := model.Keyset{}
	for k := range s.FungibleTokens {
		ks.FungibleTokens = append(ks.FungibleTokens, k)
	}
	for k := range s.IntentsTokens {
		ks.IntentsTokens = append(ks.IntentsTokens, k)
	}
	for k := range s.StakingPools {
		ks.StakingPools = append(ks.StakingPools, k)
	}
	return ks
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// ActiveSet returns the current keyset the Oracle should query for account.
func (d *Discoverer) ActiveSet(accountID string) model.Keyset {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activeSets[accountID]
}

// Widen merges extra into account's active set, used when the Change
// Locator or Attributor discovers a token referenced in a receipt that
// the current set does not explain.
func (d *Discoverer) Widen(accountID string, extra model.Keyset) model.Keyset {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activeSets[accountID] = d.activeSets[accountID].Widen(extra)
	return d.activeSets[accountID]
}

// ExpandFromReceiptTokens widens account's active set with token/pool
// identifiers extracted from receipt logs at a change block (source 2
// in spec §4.3's priority order).
func (d *Discoverer) ExpandFromReceiptTokens(accountID string, fts, intents, pools []string) model.Keyset {
	return d.Widen(accountID, model.Keyset{
		FungibleTokens: fts,
		IntentsTokens:  intents,
		StakingPools:   pools,
	})
}

// RefreshHints queries the optional external indexers for additional
// token/pool hints. Any failure or absence of a configured client is
// swallowed — hints must never block progress.
func (d *Discoverer) RefreshHints(ctx context.Context, accountID string) {
	if d.activityHint != nil {
		hints, err := d.activityHint.RecentFTActivity(ctx, accountID)
		if err != nil {
			d.logger.Debug("activity hint client failed, continuing without it",
				zap.String("account", accountID), zap.Error(err))
		} else if len(hints) > 0 {
			d.Widen(accountID, model.Keyset{FungibleTokens: hints})
		}
	}
	if d.intentsHint != nil {
		hints, err := d.intentsHint.RecentIntentsSwaps(ctx, accountID)
		if err != nil {
			d.logger.Debug("intents hint client failed, continuing without it",
				zap.String("account", accountID), zap.Error(err))
		} else if len(hints) > 0 {
			d.Widen(accountID, model.Keyset{IntentsTokens: hints})
		}
	}
}
