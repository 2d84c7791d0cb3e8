package model

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "empty is zero", in: "", want: "0"},
		{name: "large decimal", in: "161048664000000000000000000", want: "161048664000000000000000000"},
		{name: "negative rejected", in: "-1", wantErr: true},
		{name: "garbage rejected", in: "not-a-number", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAmount(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
		})
	}
}

func TestAmountArithmetic(t *testing.T) {
	a := MustParseAmount("1000")
	b := MustParseAmount("400")

	assert.Equal(t, "1400", a.Add(b).String())
	assert.Equal(t, big.NewInt(600), a.Sub(b))
	assert.Equal(t, 1, a.Cmp(b))
	assert.True(t, ZeroAmount().IsZero())
	assert.False(t, a.IsZero())
}

func TestSignedDiffString(t *testing.T) {
	assert.Equal(t, "+500", SignedDiffString(big.NewInt(500)))
	assert.Equal(t, "-500", SignedDiffString(big.NewInt(-500)))
	assert.Equal(t, "+0", SignedDiffString(big.NewInt(0)))
}

func TestAmountJSONRoundTrip(t *testing.T) {
	a := MustParseAmount("161048664")
	data, err := a.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"161048664"`, string(data))

	var decoded Amount
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.Equal(t, 0, a.Cmp(decoded))
}

func TestKeysetWiden(t *testing.T) {
	a := Keyset{
		FungibleTokens: []string{"arizcredits.near"},
		StakingPools:   []string{"astro-stakers.poolv1.near"},
	}
	b := Keyset{
		FungibleTokens: []string{"arizcredits.near", "usdt.tether-token.near"},
		IntentsTokens:  []string{"nep245:wrap.near"},
	}

	widened := a.Widen(b)
	assert.Equal(t, []string{"arizcredits.near", "usdt.tether-token.near"}, widened.FungibleTokens)
	assert.Equal(t, []string{"nep245:wrap.near"}, widened.IntentsTokens)
	assert.Equal(t, []string{"astro-stakers.poolv1.near"}, widened.StakingPools)
}

func TestEqualDetectsNativeMismatch(t *testing.T) {
	left := &BalanceSnapshot{Native: amtPtr("100")}
	right := &BalanceSnapshot{Native: amtPtr("200")}

	result := Equal(left, right)
	assert.False(t, result.Equal)
}

func TestEqualDetectsMissingKeyRequiresWiden(t *testing.T) {
	native := MustParseAmount("100")
	left := &BalanceSnapshot{
		Native:         &native,
		FungibleTokens: map[string]Amount{"arizcredits.near": MustParseAmount("50")},
	}
	right := &BalanceSnapshot{
		Native: &native,
	}

	result := Equal(left, right)
	assert.False(t, result.Equal)
	assert.Contains(t, result.MissingOnRight, "fungibleTokens:arizcredits.near")
}

func TestEqualIdenticalSnapshots(t *testing.T) {
	native := MustParseAmount("100")
	snap := &BalanceSnapshot{
		Native:         &native,
		FungibleTokens: map[string]Amount{"arizcredits.near": MustParseAmount("50")},
	}
	result := Equal(snap, snap)
	assert.True(t, result.Equal)
	assert.Empty(t, result.MissingOnLeft)
	assert.Empty(t, result.MissingOnRight)
}

func TestZeroSnapshotIsDenseAndZero(t *testing.T) {
	snap := ZeroSnapshot(161048664, []string{"arizcredits.near"}, nil, []string{"astro-stakers.poolv1.near"})
	require.True(t, snap.IsZero())
	assert.Equal(t, uint64(161048664), snap.EffectiveBlock)
	assert.Contains(t, snap.FungibleTokens, "arizcredits.near")
	assert.Contains(t, snap.StakingPools, "astro-stakers.poolv1.near")
}

func TestChangesIsStakingOnly(t *testing.T) {
	stakingOnly := Changes{StakingChanged: map[string]FieldDiff{"astro-stakers.poolv1.near": {}}}
	assert.True(t, stakingOnly.IsStakingOnly())
	assert.False(t, stakingOnly.HasNonStakingChange())

	nativeAndStaking := Changes{
		NativeChanged:  true,
		StakingChanged: map[string]FieldDiff{"astro-stakers.poolv1.near": {}},
	}
	assert.False(t, nativeAndStaking.IsStakingOnly())
	assert.True(t, nativeAndStaking.HasNonStakingChange())
}

func TestLedgerEntryIsSynthetic(t *testing.T) {
	synthetic := &LedgerEntry{
		Changes: Changes{StakingChanged: map[string]FieldDiff{"astro-stakers.poolv1.near": {}}},
	}
	assert.True(t, synthetic.IsSynthetic())

	synthetic.TransactionHashes = []string{"abc"}
	assert.False(t, synthetic.IsSynthetic())
}

func TestAccountHistoryIndexOfBlock(t *testing.T) {
	history := &AccountHistory{
		Transactions: []LedgerEntry{{Block: 100}, {Block: 200}, {Block: 300}},
	}
	assert.Equal(t, 1, history.IndexOfBlock(200))
	assert.Equal(t, -1, history.IndexOfBlock(999))
}

func amtPtr(s string) *Amount {
	a := MustParseAmount(s)
	return &a
}
