package model

// BalanceSnapshot is the state of one account at one block, restricted
// to whatever asset classes were actually queried. A nil Native means
// "native balance not part of this snapshot", not zero. The three maps
// use the same sparse convention: an absent key means "not queried",
// never "zero". A present key with value zero means "queried and found
// to be zero".
type BalanceSnapshot struct {
	Native         *Amount          `json:"native,omitempty"`
	FungibleTokens map[string]Amount `json:"fungibleTokens,omitempty"`
	IntentsTokens  map[string]Amount `json:"intentsTokens,omitempty"`
	StakingPools   map[string]Amount `json:"stakingPools,omitempty"`

	// EffectiveBlock records the block actually queried after any
	// missing-block fallback performed by the RPC Gateway, so that
	// callers comparing two snapshots never cross-use different
	// effective blocks.
	EffectiveBlock uint64 `json:"effectiveBlock"`
}

// ZeroSnapshot returns a fully-dense, all-zero snapshot for the given
// keyset at the given effective block. Used at account-creation origin
// and for synthesizing the "account does not exist" normalization.
func ZeroSnapshot(block uint64, fts, intents, pools []string) *BalanceSnapshot {
	zero := ZeroAmount()
	snap := &BalanceSnapshot{
		Native:         &zero,
		EffectiveBlock: block,
	}
	if len(fts) > 0 {
		snap.FungibleTokens = make(map[string]Amount, len(fts))
		for _, id := range fts {
			snap.FungibleTokens[id] = ZeroAmount()
		}
	}
	if len(intents) > 0 {
		snap.IntentsTokens = make(map[string]Amount, len(intents))
		for _, id := range intents {
			snap.IntentsTokens[id] = ZeroAmount()
		}
	}
	if len(pools) > 0 {
		snap.StakingPools = make(map[string]Amount, len(pools))
		for _, id := range pools {
			snap.StakingPools[id] = ZeroAmount()
		}
	}
	return snap
}

// IsZero reports whether every dense field in the snapshot is zero.
// Used by Ledger Store to detect the account-creation origin.
func (s *BalanceSnapshot) IsZero() bool {
	if s == nil {
		return false
	}
	if s.Native != nil && !s.Native.IsZero() {
		return false
	}
	for _, v := range s.FungibleTokens {
		if !v.IsZero() {
			return false
		}
	}
	for _, v := range s.IntentsTokens {
		if !v.IsZero() {
			return false
		}
	}
	for _, v := range s.StakingPools {
		if !v.IsZero() {
			return false
		}
	}
	return true
}

// Keyset describes which FT contracts, intents token ids, and staking
// pools a query should cover. An empty Keyset still implies Native is
// always queried by the Balance Oracle.
type Keyset struct {
	FungibleTokens []string
	IntentsTokens  []string
	StakingPools   []string
}

// Widen returns the union of k and other, de-duplicated, preserving
// the order keys were first seen. Used by the Change Locator and Gap
// Filler when an equality check reveals a key present on one side only.
func (k Keyset) Widen(other Keyset) Keyset {
	return Keyset{
		FungibleTokens: unionStrings(k.FungibleTokens, other.FungibleTokens),
		IntentsTokens:  unionStrings(k.IntentsTokens, other.IntentsTokens),
		StakingPools:   unionStrings(k.StakingPools, other.StakingPools),
	}
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// EqualityResult is the outcome of comparing two snapshots under the
// Change Locator's widening equality rule.
type EqualityResult struct {
	Equal bool
	// MissingOnLeft / MissingOnRight list dense keys present on only
	// one side; a non-empty result here means the keyset must widen
	// and the pair re-queried before a verdict can be trusted.
	MissingOnLeft  []string
	MissingOnRight []string
}

// mapKeys is a small helper shared by the equality comparisons.
func mapKeys(m map[string]Amount) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

// compareMap compares two sparse maps under the union-of-keys rule,
// returning the keys whose presence is unbalanced and the keys whose
// common values differ.
func compareMap(left, right map[string]Amount) (missingLeft, missingRight, diff []string) {
	lk := mapKeys(left)
	rk := mapKeys(right)
	for k := range lk {
		if _, ok := rk[k]; !ok {
			missingRight = append(missingRight, k)
		}
	}
	for k := range rk {
		if _, ok := lk[k]; !ok {
			missingLeft = append(missingLeft, k)
		}
	}
	for k, lv := range left {
		if rv, ok := right[k]; ok && lv.Cmp(rv) != 0 {
			diff = append(diff, k)
		}
	}
	return
}

// Equal implements the Change Locator's widening equality test across
// native, FT, intents, and staking fields in one pass.
func Equal(left, right *BalanceSnapshot) EqualityResult {
	res := EqualityResult{Equal: true}

	if (left.Native == nil) != (right.Native == nil) {
		res.Equal = false
		if left.Native == nil {
			res.MissingOnLeft = append(res.MissingOnLeft, "native")
		} else {
			res.MissingOnRight = append(res.MissingOnRight, "native")
		}
	} else if left.Native != nil && left.Native.Cmp(*right.Native) != 0 {
		res.Equal = false
	}

	for _, pair := range []struct {
		name        string
		left, right map[string]Amount
	}{
		{"fungibleTokens", left.FungibleTokens, right.FungibleTokens},
		{"intentsTokens", left.IntentsTokens, right.IntentsTokens},
		{"stakingPools", left.StakingPools, right.StakingPools},
	} {
		missL, missR, diff := compareMap(pair.left, pair.right)
		if len(missL) > 0 || len(missR) > 0 || len(diff) > 0 {
			res.Equal = false
		}
		for _, k := range missL {
			res.MissingOnLeft = append(res.MissingOnLeft, pair.name+":"+k)
		}
		for _, k := range missR {
			res.MissingOnRight = append(res.MissingOnRight, pair.name+":"+k)
		}
	}

	return res
}
