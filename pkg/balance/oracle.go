// Package balance implements the Balance Oracle: it returns a
// (possibly sparse) BalanceSnapshot for an account at a block,
// memoized by a bounded cache keyed on (account, block, keyset).
package balance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nearacct/acctsync/pkg/cache"
	"github.com/nearacct/acctsync/pkg/model"
	"github.com/nearacct/acctsync/pkg/rpcgateway"
	"go.uber.org/zap"
)

// IntentsContract is the NEAR account hosting the NEP-245 multi-token
// intents standard.
const IntentsContract = "intents.near"

// Oracle answers BalanceSnapshot queries for (account, block, keyset).
type Oracle struct {
	gateway *rpcgateway.Gateway
	cache   *cache.Cache
	logger  *zap.Logger
}

// New constructs an Oracle around a Gateway, with its own bounded cache.
func New(gateway *rpcgateway.Gateway, cacheCfg *cache.Config, logger *zap.Logger) *Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oracle{
		gateway: gateway,
		cache:   cache.New(cacheCfg),
		logger:  logger,
	}
}

// ClearCache empties the memoization cache. The Scheduler calls this
// every K discovered entries (default 10) to bound memory.
func (o *Oracle) ClearCache() {
	o.cache.Clear()
}

func cacheKey(account string, block uint64, ks model.Keyset) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|", account, block)
	for _, list := range [][]string{ks.FungibleTokens, ks.IntentsTokens, ks.StakingPools} {
		sorted := append([]string(nil), list...)
		sort.Strings(sorted)
		fmt.Fprintf(h, "%s;", strings.Join(sorted, ","))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Snapshot returns the BalanceSnapshot for account at block, querying
// native plus exactly the asset classes named in keyset. Account
// absence is normalized into an all-zero snapshot rather than an error.
func (o *Oracle) Snapshot(ctx context.Context, account string, block uint64, keyset model.Keyset) (*model.BalanceSnapshot, error) {
	key := cacheKey(account, block, keyset)
	if v, ok := o.cache.Get(key); ok {
		return v.(*model.BalanceSnapshot), nil
	}

	snap, err := o.fetch(ctx, account, block, keyset)
	if err != nil {
		return nil, err
	}

	o.cache.SetDefault(key, snap)
	return snap, nil
}

func (o *Oracle) fetch(ctx context.Context, account string, block uint64, keyset model.Keyset) (*model.BalanceSnapshot, error) {
	nativeOutcome, err := o.gateway.ViewAccount(ctx, account, block)
	if err != nil {
		return nil, fmt.Errorf("balance: native query for %s@%d: %w", account, block, err)
	}

	effective := nativeOutcome.EffectiveBlock

	if nativeOutcome.Missing {
		return model.ZeroSnapshot(effective, keyset.FungibleTokens, keyset.IntentsTokens, keyset.StakingPools), nil
	}

	native, err := sumAmounts(nativeOutcome.Amount, nativeOutcome.Locked)
	if err != nil {
		return nil, fmt.Errorf("balance: parse native for %s@%d: %w", account, block, err)
	}

	snap := &model.BalanceSnapshot{
		Native:         &native,
		EffectiveBlock: effective,
	}

	if len(keyset.FungibleTokens) > 0 {
		snap.FungibleTokens = make(map[string]model.Amount, len(keyset.FungibleTokens))
		for _, contract := range keyset.FungibleTokens {
			amt, err := o.ftBalance(ctx, contract, account, effective)
			if err != nil {
				return nil, err
			}
			snap.FungibleTokens[contract] = amt
		}
	}

	if len(keyset.IntentsTokens) > 0 {
		intentsBalances, err := o.intentsBalances(ctx, account, keyset.IntentsTokens, effective)
		if err != nil {
			return nil, err
		}
		snap.IntentsTokens = intentsBalances
	}

	if len(keyset.StakingPools) > 0 {
		snap.StakingPools = make(map[string]model.Amount, len(keyset.StakingPools))
		for _, pool := range keyset.StakingPools {
			amt, err := o.stakingBalance(ctx, pool, account, effective)
			if err != nil {
				return nil, err
			}
			snap.StakingPools[pool] = amt
		}
	}

	return snap, nil
}

func sumAmounts(amount, locked string) (model.Amount, error) {
	a, err := model.ParseAmount(amount)
	if err != nil {
		return model.Amount{}, err
	}
	l, err := model.ParseAmount(locked)
	if err != nil {
		return model.Amount{}, err
	}
	return a.Add(l), nil
}

// ftBalance calls ft_balance_of on contract; contract absence or
// method-not-found is normalized to zero.
func (o *Oracle) ftBalance(ctx context.Context, contract, account string, block uint64) (model.Amount, error) {
	args, _ := json.Marshal(map[string]string{"account_id": account})
	res, err := o.gateway.CallView(ctx, contract, "ft_balance_of", args, block)
	if err != nil {
		return model.Amount{}, fmt.Errorf("balance: ft_balance_of(%s, %s)@%d: %w", contract, account, block, err)
	}
	if res.Missing || len(res.Result) == 0 {
		return model.ZeroAmount(), nil
	}
	var s string
	if err := json.Unmarshal(res.Result, &s); err != nil {
		return model.Amount{}, fmt.Errorf("balance: decode ft_balance_of(%s): %w", contract, err)
	}
	return model.ParseAmount(s)
}

// intentsBalances calls mt_batch_balance_of once for all requested
// token ids against the shared intents.near contract.
func (o *Oracle) intentsBalances(ctx context.Context, account string, tokenIDs []string, block uint64) (map[string]model.Amount, error) {
	args, _ := json.Marshal(map[string]interface{}{
		"account_id": account,
		"token_ids":  tokenIDs,
	})
	res, err := o.gateway.CallView(ctx, IntentsContract, "mt_batch_balance_of", args, block)
	if err != nil {
		return nil, fmt.Errorf("balance: mt_batch_balance_of(%s)@%d: %w", account, block, err)
	}

	out := make(map[string]model.Amount, len(tokenIDs))
	if res.Missing || len(res.Result) == 0 {
		for _, id := range tokenIDs {
			out[id] = model.ZeroAmount()
		}
		return out, nil
	}

	var raw []string
	if err := json.Unmarshal(res.Result, &raw); err != nil {
		return nil, fmt.Errorf("balance: decode mt_batch_balance_of: %w", err)
	}
	if len(raw) != len(tokenIDs) {
		return nil, fmt.Errorf("balance: mt_batch_balance_of returned %d balances for %d token ids", len(raw), len(tokenIDs))
	}
	for i, id := range tokenIDs {
		amt, err := model.ParseAmount(raw[i])
		if err != nil {
			return nil, err
		}
		out[id] = amt
	}
	return out, nil
}

// stakingBalance calls get_account_total_balance on a validator pool
// contract; absence is normalized to zero.
func (o *Oracle) stakingBalance(ctx context.Context, pool, account string, block uint64) (model.Amount, error) {
	args, _ := json.Marshal(map[string]string{"account_id": account})
	res, err := o.gateway.CallView(ctx, pool, "get_account_total_balance", args, block)
	if err != nil {
		return model.Amount{}, fmt.Errorf("balance: get_account_total_balance(%s, %s)@%d: %w", pool, account, block, err)
	}
	if res.Missing || len(res.Result) == 0 {
		return model.ZeroAmount(), nil
	}
	var s string
	if err := json.Unmarshal(res.Result, &s); err != nil {
		return model.Amount{}, fmt.Errorf("balance: decode get_account_total_balance(%s): %w", pool, err)
	}
	return model.ParseAmount(s)
}

// BlockHeightString formats a block height as a base-10 string.
func BlockHeightString(h uint64) string {
	return strconv.FormatUint(h, 10)
}
