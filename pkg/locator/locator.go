// Package locator implements the Change Locator: a range-bisection
// search over BalanceSnapshot equality that finds the latest block in
// [start,end] at which any tracked balance differs from the block
// before it.
package locator

import (
	"context"
	"errors"
	"strings"

	"github.com/nearacct/acctsync/pkg/balance"
	"github.com/nearacct/acctsync/pkg/model"
	"go.uber.org/zap"
)

// ErrInvalidRange is returned when start > end.
var ErrInvalidRange = errors.New("locator: start must be <= end")

const maxWidenIterations = 6

// Locator searches for balance-change blocks using the Balance Oracle.
type Locator struct {
	oracle *balance.Oracle
	logger *zap.Logger
}

// New constructs a Locator around an Oracle.
func New(oracle *balance.Oracle, logger *zap.Logger) *Locator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locator{oracle: oracle, logger: logger}
}

// Result is the outcome of a FindLatestChange call.
type Result struct {
	HasChanges     bool
	Block          uint64
	StartBalance   *model.BalanceSnapshot
	EndBalance     *model.BalanceSnapshot
	NativeChanged  bool
	TokensChanged  map[string]model.FieldDiff
	IntentsChanged map[string]model.FieldDiff
	StakingChanged map[string]model.FieldDiff
	// Keyset is the (possibly widened) keyset actually used to reach
	// this verdict; callers that re-query nearby blocks should reuse it.
	Keyset model.Keyset
}

// FindLatestChange returns the latest block in [start, end] at which
// the snapshot differs from the snapshot at the prior block, under
// account's active keyset (widened automatically when an equality
// check reveals an unbalanced key).
func (l *Locator) FindLatestChange(ctx context.Context, account string, start, end uint64, keyset model.Keyset) (*Result, error) {
	if start > end {
		return nil, ErrInvalidRange
	}

	left, right, eq, keyset, err := l.compareWiden(ctx, account, start-1, end, keyset)
	if err != nil {
		return nil, err
	}
	if eq.Equal {
		return &Result{HasChanges: false, StartBalance: left, EndBalance: right, Keyset: keyset}, nil
	}

	block, err := l.bisect(ctx, account, start, end, right, keyset)
	if err != nil {
		return nil, err
	}

	before, err := l.oracle.Snapshot(ctx, account, block-1, keyset)
	if err != nil {
		return nil, err
	}
	after, err := l.oracle.Snapshot(ctx, account, block, keyset)
	if err != nil {
		return nil, err
	}

	res := &Result{
		HasChanges:   true,
		Block:        block,
		StartBalance: before,
		EndBalance:   after,
		Keyset:       keyset,
	}
	l.fillDiffs(res, before, after)
	return res, nil
}

// bisect performs the binary partition: the right endpoint's snapshot
// is fixed across loop iterations, since the search always asks
// "does the left half still differ from the unchanged right edge".
func (l *Locator) bisect(ctx context.Context, account string, start, end uint64, right *model.BalanceSnapshot, keyset model.Keyset) (uint64, error) {
	for start < end {
		mid := start + (end-start)/2
		midSnap, _, eq, widened, err := l.compareSnapshots(ctx, account, mid, right, keyset)
		if err != nil {
			return 0, err
		}
		keyset = widened
		if !eq.Equal {
			// M != R: the latest change lives in (mid, end].
			start = mid + 1
		} else {
			// M == R: the latest change lives in [start, mid].
			end = mid
		}
		_ = midSnap
	}
	return start, nil
}

// compareWiden fetches snapshots at leftBlock and rightBlock and
// widens the keyset until both sides have been queried for every key
// either side produced, so the equality verdict reflects true values
// rather than an artifact of a narrower keyset.
func (l *Locator) compareWiden(ctx context.Context, account string, leftBlock, rightBlock uint64, keyset model.Keyset) (*model.BalanceSnapshot, *model.BalanceSnapshot, model.EqualityResult, model.Keyset, error) {
	var left, right *model.BalanceSnapshot
	var eq model.EqualityResult

	for i := 0; i < maxWidenIterations; i++ {
		var err error
		left, err = l.oracle.Snapshot(ctx, account, leftBlock, keyset)
		if err != nil {
			return nil, nil, eq, keyset, err
		}
		right, err = l.oracle.Snapshot(ctx, account, rightBlock, keyset)
		if err != nil {
			return nil, nil, eq, keyset, err
		}
		eq = model.Equal(left, right)
		if len(eq.MissingOnLeft) == 0 && len(eq.MissingOnRight) == 0 {
			return left, right, eq, keyset, nil
		}
		keyset = widenFromMissing(keyset, eq)
		l.logger.Debug("locator widened keyset to resolve sparse mismatch",
			zap.String("account", account), zap.Int("iteration", i))
	}
	return left, right, eq, keyset, nil
}

// compareSnapshots is compareWiden specialized for bisection, where
// the right side's snapshot is already known and only the midpoint
// needs fetching (still re-fetches right if the keyset widens).
func (l *Locator) compareSnapshots(ctx context.Context, account string, midBlock uint64, right *model.BalanceSnapshot, keyset model.Keyset) (*model.BalanceSnapshot, *model.BalanceSnapshot, model.EqualityResult, model.Keyset, error) {
	var mid *model.BalanceSnapshot
	var eq model.EqualityResult

	for i := 0; i < maxWidenIterations; i++ {
		var err error
		mid, err = l.oracle.Snapshot(ctx, account, midBlock, keyset)
		if err != nil {
			return nil, nil, eq, keyset, err
		}
		right, err = l.oracle.Snapshot(ctx, account, right.EffectiveBlock, keyset)
		if err != nil {
			return nil, nil, eq, keyset, err
		}
		eq = model.Equal(mid, right)
		if len(eq.MissingOnLeft) == 0 && len(eq.MissingOnRight) == 0 {
			return mid, right, eq, keyset, nil
		}
		keyset = widenFromMissing(keyset, eq)
	}
	return mid, right, eq, keyset, nil
}

func widenFromMissing(keyset model.Keyset, eq model.EqualityResult) model.Keyset {
	extra := model.Keyset{}
	for _, k := range append(append([]string{}, eq.MissingOnLeft...), eq.MissingOnRight...) {
		parts := strings.SplitN(k, ":", 2)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case "fungibleTokens":
			extra.FungibleTokens = append(extra.FungibleTokens, parts[1])
		case "intentsTokens":
			extra.IntentsTokens = append(extra.IntentsTokens, parts[1])
		case "stakingPools":
			extra.StakingPools = append(extra.StakingPools, parts[1])
		}
	}
	return keyset.Widen(extra)
}

// fillDiffs populates the compact per-asset diffs for a located change.
func (l *Locator) fillDiffs(res *Result, before, after *model.BalanceSnapshot) {
	if before.Native != nil && after.Native != nil && before.Native.Cmp(*after.Native) != 0 {
		res.NativeChanged = true
	}
	res.TokensChanged = diffMaps(before.FungibleTokens, after.FungibleTokens)
	res.IntentsChanged = diffMaps(before.IntentsTokens, after.IntentsTokens)
	res.StakingChanged = diffMaps(before.StakingPools, after.StakingPools)
}

func diffMaps(before, after map[string]model.Amount) map[string]model.FieldDiff {
	if len(before) == 0 && len(after) == 0 {
		return nil
	}
	out := make(map[string]model.FieldDiff)
	seen := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		seen[k] = struct{}{}
	}
	for k := range after {
		seen[k] = struct{}{}
	}
	for k := range seen {
		b, hasB := before[k]
		a, hasA := after[k]
		if !hasB {
			b = model.ZeroAmount()
		}
		if !hasA {
			a = model.ZeroAmount()
		}
		if b.Cmp(a) == 0 {
			continue
		}
		diff := a.Sub(b)
		out[k] = model.FieldDiff{
			Start: b.String(),
			End:   a.String(),
			Diff:  model.SignedDiffString(diff),
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
