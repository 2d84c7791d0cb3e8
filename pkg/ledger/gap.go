package ledger

import (
	"context"

	"github.com/nearacct/acctsync/pkg/model"
	"go.uber.org/zap"
)

// GapRange is a block range between two non-synthetic entries whose
// connectivity does not hold.
type GapRange struct {
	PrevBlock uint64
	NextBlock uint64
	// Widen lists the asset keys that mismatched, so the Locator pass
	// that fills this gap queries with a widened keyset from the start.
	Widen model.Keyset
}

// Size returns the number of blocks strictly between the gap's endpoints.
func (g GapRange) Size() uint64 {
	if g.NextBlock <= g.PrevBlock+1 {
		return 0
	}
	return g.NextBlock - g.PrevBlock - 1
}

// GapReport collects every connectivity problem found in one pass over
// an account's history.
type GapReport struct {
	InternalGaps  []GapRange
	GapToCreation bool
	GapToPresent  bool
}

// DetectGaps walks the sorted, non-synthetic entries of history and
// reports internal gaps, whether the earliest entry still fails to
// reach the zero/account-creation origin, and (only when
// currentTip is non-nil) whether the latest entry fails to reach the
// present balance.
func DetectGaps(history *model.AccountHistory, currentTip *model.BalanceSnapshot) GapReport {
	var report GapReport

	dense := make([]*model.LedgerEntry, 0, len(history.Transactions))
	for i := range history.Transactions {
		e := &history.Transactions[i]
		if !e.IsSynthetic() {
			dense = append(dense, e)
		}
	}

	for i := 1; i < len(dense); i++ {
		prev, next := dense[i-1], dense[i]
		result := Verify(prev, next)
		if !result.Verified {
			gr := GapRange{PrevBlock: prev.Block, NextBlock: next.Block}
			gr.Widen = widenFromErrors(result.Errors)
			report.InternalGaps = append(report.InternalGaps, gr)
		}
	}

	if len(dense) > 0 {
		first := dense[0]
		report.GapToCreation = first.BalanceBefore == nil || !first.BalanceBefore.IsZero()
	}

	if currentTip != nil && len(dense) > 0 {
		last := dense[len(dense)-1]
		eq := model.Equal(last.BalanceAfter, currentTip)
		report.GapToPresent = !eq.Equal
	}

	return report
}

func widenFromErrors(errs []model.ConnectivityError) model.Keyset {
	var ks model.Keyset
	for _, e := range errs {
		switch e.Kind {
		case model.ErrKindTokenMismatch:
			if e.Token != "" {
				ks.FungibleTokens = append(ks.FungibleTokens, e.Token)
			}
		case model.ErrKindIntentsMismatch:
			if e.Token != "" {
				ks.IntentsTokens = append(ks.IntentsTokens, e.Token)
			}
		case model.ErrKindStakingMismatch:
			if e.Pool != "" {
				ks.StakingPools = append(ks.StakingPools, e.Pool)
			}
		}
	}
	return ks
}

// LocatorFunc adapts locator.Locator.FindLatestChange (which returns a
// *locator.Result carrying HasChanges and Block) to a plain function
// type, so Filler has no import-time dependency on the locator package
// (avoiding an import cycle with the scheduler that wires both together).
type LocatorFunc func(ctx context.Context, account string, start, end uint64, keyset model.Keyset) (hasChange bool, block uint64, err error)

// InsertFunc produces and inserts the LedgerEntry for a located change
// block; supplied by the caller since building an entry requires the
// Attributor, which Filler also has no direct dependency on.
type InsertFunc func(ctx context.Context, account string, block uint64, keyset model.Keyset) error

// Filler repeatedly narrows an internal gap via the Change Locator
// until the range is empty or verification succeeds across it.
type Filler struct {
	locate LocatorFunc
	insert InsertFunc
	logger *zap.Logger
}

// NewFiller constructs a Filler around the supplied locate/insert hooks.
func NewFiller(locate LocatorFunc, insert InsertFunc, logger *zap.Logger) *Filler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filler{locate: locate, insert: insert, logger: logger}
}

// Fill drives Change Locator passes over gap, narrowing the range
// after each inserted entry, until the range is empty or exhausted.
func (f *Filler) Fill(ctx context.Context, account string, gap GapRange) error {
	start, end := gap.PrevBlock+1, gap.NextBlock-1
	keyset := gap.Widen

	for start <= end {
		hasChange, block, err := f.locate(ctx, account, start, end, keyset)
		if err != nil {
			return err
		}
		if !hasChange {
			return nil
		}

		if err := f.insert(ctx, account, block, keyset); err != nil {
			return err
		}

		f.logger.Debug("gap filler inserted entry",
			zap.String("account", account), zap.Uint64("block", block))

		if block == start {
			return nil
		}
		end = block - 1
	}
	return nil
}
