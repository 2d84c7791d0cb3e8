package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/nearacct/acctsync/internal/constants"
	"github.com/nearacct/acctsync/pkg/attributor"
	"github.com/nearacct/acctsync/pkg/balance"
	"github.com/nearacct/acctsync/pkg/events"
	"github.com/nearacct/acctsync/pkg/ledger"
	"github.com/nearacct/acctsync/pkg/locator"
	"github.com/nearacct/acctsync/pkg/model"
	"github.com/nearacct/acctsync/pkg/rpcgateway"
	"github.com/nearacct/acctsync/pkg/tokenset"
	"go.uber.org/zap"
)

// EventPublisher is satisfied by pkg/eventbus's EventBus. Kept as a
// single-method local interface, the same pattern as rpcgateway.Gateway,
// so the pipeline doesn't need to import the distributed bus package.
type EventPublisher interface {
	Publish(event events.Event) bool
}

// Pipeline drives one account's full cycle: forward pass (new tip to
// last known block), backward pass (last known block to genesis, only
// when history is incomplete), gap re-verification, and opportunistic
// re-enrichment — per spec §4.8.
type Pipeline struct {
	gateway    *rpcgateway.Gateway
	oracle     *balance.Oracle
	locate     *locator.Locator
	attribute  *attributor.Attributor
	discoverer *tokenset.Discoverer
	store      *ledger.Store
	meta       *ledger.MetadataStore
	cfg        *Config
	logger     *zap.Logger
	eventBus   EventPublisher

	entriesSinceClear int
}

// SetEventBus attaches an event publisher so entry discovery, gap
// detection/fill, and cycle completion surface on the shared event
// bus. Optional; a nil bus (the default) skips publication.
func (p *Pipeline) SetEventBus(bus EventPublisher) {
	p.eventBus = bus
}

func (p *Pipeline) publish(event events.Event) {
	if p.eventBus != nil {
		p.eventBus.Publish(event)
	}
}

// NewPipeline wires the Change Locator, Attributor, Balance Oracle,
// Token Set Discoverer and ledger Store together for one account.
func NewPipeline(
	gateway *rpcgateway.Gateway,
	oracle *balance.Oracle,
	locate *locator.Locator,
	attribute *attributor.Attributor,
	discoverer *tokenset.Discoverer,
	store *ledger.Store,
	meta *ledger.MetadataStore,
	cfg *Config,
	logger *zap.Logger,
) *Pipeline {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		gateway:    gateway,
		oracle:     oracle,
		locate:     locate,
		attribute:  attribute,
		discoverer: discoverer,
		store:      store,
		meta:       meta,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run executes one full cycle pass for accountID.
func (p *Pipeline) Run(ctx context.Context, accountID string) error {
	cycleStart := time.Now()
	entriesBefore := 0

	history, err := p.store.Load(accountID)
	if err != nil {
		return NewAccountError(accountID, "load", err)
	}
	entriesBefore = len(history.Transactions)

	// On cancellation (shutdown or the per-account timeout) the entries
	// inserted so far are saved before Run returns.
	defer func() {
		if ctx.Err() != nil {
			if err := p.store.Save(history); err != nil {
				p.logger.Warn("saving ledger after cancellation failed",
					zap.String("account", accountID), zap.Error(err))
			}
		}
	}()

	keyset := p.discoverer.SeedFromHistory(accountID, history)
	if persisted, err := p.meta.LoadKeyset(accountID); err == nil {
		keyset = p.discoverer.Widen(accountID, persisted)
	}
	p.discoverer.RefreshHints(ctx, accountID)
	keyset = p.discoverer.ActiveSet(accountID)

	cursor, err := p.meta.LoadCursor(accountID)
	if err != nil {
		return NewAccountError(accountID, "load_cursor", err)
	}

	tip, err := p.gateway.CurrentBlockHeight(ctx)
	if err != nil {
		return NewAccountError(accountID, "current_tip", err)
	}

	if err := p.forwardPass(ctx, accountID, history, &cursor, tip, keyset); err != nil {
		return NewAccountError(accountID, "forward_pass", err)
	}

	if !history.Metadata.HistoryComplete {
		if err := p.backwardPass(ctx, accountID, history, &cursor, keyset); err != nil {
			return NewAccountError(accountID, "backward_pass", err)
		}
	}

	if err := p.reverify(ctx, accountID, history, keyset); err != nil {
		return NewAccountError(accountID, "reverify", err)
	}

	if _, err := p.store.ReEnrich(ctx, history, p.cfg.ReEnrichBatchSize, func(ctx context.Context, entry *model.LedgerEntry) error {
		return p.enrichEntry(ctx, accountID, entry, keyset)
	}); err != nil {
		return NewAccountError(accountID, "re_enrich", err)
	}

	if err := p.store.Save(history); err != nil {
		return NewAccountError(accountID, "save", err)
	}
	if err := p.meta.SaveCursor(accountID, cursor); err != nil {
		return NewAccountError(accountID, "save_cursor", err)
	}
	if err := p.meta.SaveKeyset(accountID, keyset); err != nil {
		return err
	}

	p.publish(events.NewCycleCompletedEvent(
		accountID,
		len(history.Transactions)-entriesBefore,
		history.Metadata.HistoryComplete,
		time.Since(cycleStart),
	))
	return nil
}

// forwardPass locates the latest change between the last known block
// and the current tip, inserting entries as it walks backward to that
// last known block (per the Change Locator's bisection contract, each
// call finds the single latest change in a range).
func (p *Pipeline) forwardPass(ctx context.Context, accountID string, history *model.AccountHistory, cursor *ledger.Cursor, tip uint64, keyset model.Keyset) error {
	start := cursor.LastForwardBlock
	if start == 0 && history.Metadata.LastBlock > 0 {
		start = history.Metadata.LastBlock
	}
	end := tip

	for start < end {
		if p.gateway.StopSignalSet() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		hasChange, block, err := p.locateChange(ctx, accountID, start+1, end, keyset)
		if err != nil {
			return err
		}
		if !hasChange {
			break
		}

		if err := p.insertChangeEntry(ctx, accountID, history, block, keyset); err != nil {
			return err
		}

		end = block - 1
		if end <= start {
			break
		}
	}

	cursor.LastForwardBlock = tip
	return nil
}

// backwardPass walks from the earliest known entry toward genesis
// until the earliest entry's balanceBefore reaches zero.
func (p *Pipeline) backwardPass(ctx context.Context, accountID string, history *model.AccountHistory, cursor *ledger.Cursor, keyset model.Keyset) error {
	if len(history.Transactions) == 0 {
		return nil
	}

	start := uint64(0)
	end := history.Transactions[0].Block
	if end == 0 {
		p.store.MarkHistoryComplete(history)
		return nil
	}
	end--

	for start <= end {
		if p.gateway.StopSignalSet() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		hasChange, block, err := p.locateChange(ctx, accountID, start, end, keyset)
		if err != nil {
			return err
		}
		if !hasChange {
			p.store.MarkHistoryComplete(history)
			cursor.FirstBackwardBlock = start
			return nil
		}

		if err := p.insertChangeEntry(ctx, accountID, history, block, keyset); err != nil {
			return err
		}

		cursor.FirstBackwardBlock = block
		if block == start {
			p.store.MarkHistoryComplete(history)
			return nil
		}
		end = block - 1
	}

	p.store.MarkHistoryComplete(history)
	return nil
}

func (p *Pipeline) locateChange(ctx context.Context, accountID string, start, end uint64, keyset model.Keyset) (bool, uint64, error) {
	result, err := p.locate.FindLatestChange(ctx, accountID, start, end, keyset)
	if err != nil {
		return false, 0, err
	}
	return result.HasChanges, result.Block, nil
}

// insertChangeEntry builds a LedgerEntry for a located change block
// (attributing its transfers and capturing before/after snapshots) and
// inserts it into history, clearing the Balance Oracle's cache every
// CacheClearEvery discoveries. A change that cannot be attributed to
// any transaction is suppressed rather than inserted — see
// attributeChange.
func (p *Pipeline) insertChangeEntry(ctx context.Context, accountID string, history *model.AccountHistory, block uint64, keyset model.Keyset) error {
	result, err := p.locate.FindLatestChange(ctx, accountID, block, block, keyset)
	if err != nil {
		return fmt.Errorf("resolve change at block %d: %w", block, err)
	}
	if !result.HasChanges {
		return nil
	}

	changes := model.Changes{
		NativeChanged:  result.NativeChanged,
		TokensChanged:  result.TokensChanged,
		IntentsChanged: result.IntentsChanged,
		StakingChanged: result.StakingChanged,
	}

	attribution, ok := p.attributeChange(ctx, accountID, block, result.Keyset, changes)
	if !ok {
		// Suppressed per spec: no entry is invented for an unattributed
		// non-staking change. The search range has already shrunk past
		// this block, so the caller's loop advances on its own.
		return nil
	}

	if fts, intents, pools := tokensFromTransfers(attribution.Transfers); len(fts)+len(intents)+len(pools) > 0 {
		p.discoverer.ExpandFromReceiptTokens(accountID, fts, intents, pools)
	}

	entry := model.LedgerEntry{
		Block:             block,
		TransactionBlock:  attribution.TransactionBlock,
		Timestamp:         attribution.BlockTimestamp,
		TransactionHashes: attribution.TransactionHashes,
		Transfers:         attribution.Transfers,
		BalanceBefore:     result.StartBalance,
		BalanceAfter:      result.EndBalance,
		Changes:           changes,
	}

	p.store.Insert(history, entry)
	p.publish(events.NewEntryDiscoveredEvent(accountID, entry))

	p.entriesSinceClear++
	if p.entriesSinceClear >= p.cfg.CacheClearEvery {
		p.oracle.ClearCache()
		p.entriesSinceClear = 0
	}
	return nil
}

// attributeChange resolves the TransferRecords explaining a located
// change. A staking-only change (the synthetic-entry case per spec) is
// accepted even with zero transaction hashes. Any other change that
// attributes to no transaction hash is re-queued against a keyset
// widened via the Token Set Discoverer, up to
// constants.MaxAttributionWidenRetries times; if every widening still
// finds nothing, the change is suppressed and a diagnostic is logged.
func (p *Pipeline) attributeChange(ctx context.Context, accountID string, block uint64, keyset model.Keyset, changes model.Changes) (*attributor.Result, bool) {
	stakingOnly := changes.IsStakingOnly()

	var lastErr error
	for attempt := 0; attempt <= constants.MaxAttributionWidenRetries; attempt++ {
		attribution, err := p.attribute.Attribute(ctx, accountID, block, keyset)
		switch {
		case err != nil && stakingOnly:
			// Staking reward accrual ticks have no transaction to look
			// up; an Attribute failure here doesn't block the synthetic
			// entry.
			return &attributor.Result{TransactionBlock: block}, true
		case err != nil:
			lastErr = err
		case len(attribution.TransactionHashes) > 0 || stakingOnly:
			return attribution, true
		default:
			lastErr = nil
		}

		if attempt < constants.MaxAttributionWidenRetries {
			keyset = p.discoverer.Widen(accountID, keyset)
			p.logger.Debug("attribution found no transaction, widening keyset and retrying",
				zap.String("account", accountID), zap.Uint64("block", block), zap.Int("attempt", attempt+1))
		}
	}

	p.logger.Warn("unattributable balance change, suppressing entry and advancing",
		zap.String("account", accountID), zap.Uint64("block", block), zap.Error(lastErr))
	return nil, false
}

func (p *Pipeline) enrichEntry(ctx context.Context, accountID string, entry *model.LedgerEntry, keyset model.Keyset) error {
	attribution, err := p.attribute.Attribute(ctx, accountID, entry.Block, keyset)
	if err != nil {
		return err
	}
	if len(attribution.Transfers) > 0 {
		entry.Transfers = attribution.Transfers
	}
	if len(attribution.TransactionHashes) > 0 {
		entry.TransactionHashes = attribution.TransactionHashes
	}

	snapshot, err := p.oracle.Snapshot(ctx, accountID, entry.Block, keyset)
	if err != nil {
		return err
	}
	entry.BalanceAfter = snapshot
	return nil
}

// reverify detects internal gaps and drives the Change Locator's
// Filler over each one, reusing the widened keyset the gap reported.
func (p *Pipeline) reverify(ctx context.Context, accountID string, history *model.AccountHistory, keyset model.Keyset) error {
	report := ledger.DetectGaps(history, nil)
	if len(report.InternalGaps) == 0 {
		return nil
	}

	filler := ledger.NewFiller(
		func(ctx context.Context, account string, start, end uint64, ks model.Keyset) (bool, uint64, error) {
			return p.locateChange(ctx, account, start, end, ks)
		},
		func(ctx context.Context, account string, block uint64, ks model.Keyset) error {
			return p.insertChangeEntry(ctx, account, history, block, ks)
		},
		p.logger,
	)

	for _, gap := range report.InternalGaps {
		before := len(history.Transactions)
		p.publish(events.NewGapDetectedEvent(accountID, gap.PrevBlock, gap.NextBlock, nil))

		gap.Widen = gap.Widen.Widen(keyset)
		if err := filler.Fill(ctx, accountID, gap); err != nil {
			return err
		}

		p.publish(events.NewGapFilledEvent(accountID, gap.PrevBlock, gap.NextBlock, len(history.Transactions)-before))
	}
	return nil
}

func tokensFromTransfers(transfers []model.TransferRecord) (fts, intents, pools []string) {
	for _, t := range transfers {
		switch t.Type {
		case model.TransferFT:
			fts = append(fts, t.TokenID)
		case model.TransferMT:
			intents = append(intents, t.TokenID)
		case model.TransferStakingReward, model.TransferStakingDeposit, model.TransferStakingWithdraw:
			pools = append(pools, t.Counterparty)
		}
	}
	return fts, intents, pools
}
