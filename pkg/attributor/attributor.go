// Package attributor implements the Transaction Attributor: given an
// account and a block where the Change Locator found a balance diff,
// it walks receipts back to the originating signer transaction(s) and
// produces the TransferRecords that explain the diff.
package attributor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nearacct/acctsync/pkg/model"
	"github.com/nearacct/acctsync/pkg/nearrpc"
	"github.com/nearacct/acctsync/pkg/rpcgateway"
	"go.uber.org/zap"
)

// DefaultLookbackBlocks bounds how far before the change block the
// Attributor scans chunks for candidate signer transactions, to cover
// cross-contract flows whose receipts execute several blocks later.
const DefaultLookbackBlocks = 20

// Result is what the Attributor hands back to the Sync Scheduler for
// one change block.
type Result struct {
	TransactionHashes []string
	Transfers         []model.TransferRecord
	BlockTimestamp    int64
	TransactionBlock  uint64
}

// Attributor walks receipts back to signer transactions via the RPC Gateway.
type Attributor struct {
	gateway  *rpcgateway.Gateway
	lookback uint64
	logger   *zap.Logger
}

// New constructs an Attributor around a Gateway.
func New(gateway *rpcgateway.Gateway, lookbackBlocks uint64, logger *zap.Logger) *Attributor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lookbackBlocks == 0 {
		lookbackBlocks = DefaultLookbackBlocks
	}
	return &Attributor{gateway: gateway, lookback: lookbackBlocks, logger: logger}
}

type candidateTx struct {
	hash     string
	signerID string
	block    uint64
}

// Attribute locates the transaction(s) responsible for a balance
// change observed at changeBlock for account, and builds the
// TransferRecords that explain it. tokenKeyset names the FT contracts,
// intents tokens, and staking pools currently tracked, used to
// classify receipts.
func (a *Attributor) Attribute(ctx context.Context, account string, changeBlock uint64, keyset model.Keyset) (*Result, error) {
	blockHeader, err := a.gateway.Block(ctx, changeBlock)
	if err != nil {
		return nil, fmt.Errorf("attributor: fetch block %d: %w", changeBlock, err)
	}

	candidates, err := a.scanCandidates(ctx, account, changeBlock)
	if err != nil {
		return nil, err
	}

	result := &Result{
		BlockTimestamp:   int64(blockHeader.Header.Timestamp),
		TransactionBlock: changeBlock,
	}

	seenHash := make(map[string]struct{})
	ftSet := toSet(keyset.FungibleTokens)
	poolSet := toSet(keyset.StakingPools)

	for _, cand := range candidates {
		status, err := a.gateway.TxStatusWithReceipts(ctx, cand.hash, cand.signerID)
		if err != nil {
			a.logger.Debug("tx_status lookup failed, skipping candidate",
				zap.String("account", account), zap.String("tx", cand.hash), zap.Error(err))
			continue
		}

		touches, transfers := a.classify(account, status, ftSet, poolSet)
		if !touches {
			continue
		}

		if _, ok := seenHash[cand.hash]; !ok {
			seenHash[cand.hash] = struct{}{}
			result.TransactionHashes = append(result.TransactionHashes, cand.hash)
			if cand.block < result.TransactionBlock {
				result.TransactionBlock = cand.block
			}
		}
		result.Transfers = append(result.Transfers, transfers...)
	}

	return result, nil
}

// scanCandidates walks chunks from changeBlock back to
// changeBlock-lookback (clamped at zero) collecting transactions where
// account is either the signer or the direct receiver — the common
// case for both direct actions and the originating leg of cross
// contract flows.
func (a *Attributor) scanCandidates(ctx context.Context, account string, changeBlock uint64) ([]candidateTx, error) {
	var out []candidateTx

	lowest := uint64(0)
	if changeBlock > a.lookback {
		lowest = changeBlock - a.lookback
	}

	for height := changeBlock; height >= lowest; height-- {
		block, err := a.gateway.Block(ctx, height)
		if err != nil {
			return nil, fmt.Errorf("attributor: fetch block %d: %w", height, err)
		}

		for _, chunk := range block.Chunks {
			chunkRes, err := a.gateway.Chunk(ctx, chunk.ChunkHash)
			if err != nil {
				a.logger.Debug("chunk lookup failed during attribution scan",
					zap.Uint64("block", height), zap.Error(err))
				continue
			}
			for _, tx := range chunkRes.Transactions {
				if tx.SignerID == account || tx.ReceiverID == account {
					out = append(out, candidateTx{hash: tx.Hash, signerID: tx.SignerID, block: height})
				}
			}
		}

		if height == 0 {
			break
		}
	}

	return out, nil
}

// classify inspects a fully-resolved transaction's actions and receipt
// logs, reporting whether it touches account and the TransferRecords
// it produces.
func (a *Attributor) classify(account string, status *nearrpc.TxStatusResult, ftSet, poolSet map[string]struct{}) (bool, []model.TransferRecord) {
	var transfers []model.TransferRecord
	touches := false

	tx := status.Transaction
	if tx.SignerID == account || tx.ReceiverID == account {
		for _, action := range tx.Actions {
			if action.Transfer != nil {
				touches = true
				amt, err := model.ParseAmount(action.Transfer.Deposit)
				if err == nil && !amt.IsZero() {
					transfers = append(transfers, nativeTransfer(account, tx.SignerID, tx.ReceiverID, amt, ""))
				}
			}
			if action.FunctionCall != nil && action.FunctionCall.Deposit != "0" && action.FunctionCall.Deposit != "" {
				amt, err := model.ParseAmount(action.FunctionCall.Deposit)
				if err == nil && !amt.IsZero() {
					touches = true
					transfers = append(transfers, nativeTransfer(account, tx.SignerID, tx.ReceiverID, amt, action.FunctionCall.MethodName))
				}
			}
			if action.FunctionCall != nil && isStakingMethod(action.FunctionCall.MethodName) {
				if _, ok := poolSet[tx.ReceiverID]; ok {
					touches = true
					transfers = append(transfers, stakingTransfer(account, tx.ReceiverID, action.FunctionCall))
				}
			}
		}
	}

	for _, receipt := range status.Receipts {
		if receipt.PredecessorID != account && receipt.ReceiverID != account {
			continue
		}
		if receipt.Receipt.Action == nil {
			continue
		}
		for _, action := range receipt.Receipt.Action.Actions {
			if action.FunctionCall == nil {
				continue
			}
			fc := action.FunctionCall

			if isFTMethod(fc.MethodName) {
				if _, ok := ftSet[receipt.ReceiverID]; ok {
					touches = true
					if t, ok := ftTransferFromArgs(account, receipt.ReceiverID, receipt.PredecessorID, fc); ok {
						transfers = append(transfers, t)
					}
				}
			}

			if isStakingMethod(fc.MethodName) {
				if _, ok := poolSet[receipt.ReceiverID]; ok {
					touches = true
					transfers = append(transfers, stakingTransfer(account, receipt.ReceiverID, fc))
				}
			}
		}
	}

	for _, outcome := range status.ReceiptsOutcome {
		if outcome.Outcome.ExecutorID != intentsContract {
			continue
		}
		for _, log := range outcome.Outcome.Logs {
			if t, ok := mtTransferFromLog(account, log); ok {
				touches = true
				transfers = append(transfers, t)
			}
		}
	}

	return touches, transfers
}

const intentsContract = "intents.near"

func nativeTransfer(account, signerID, receiverID string, amount model.Amount, memo string) model.TransferRecord {
	dir := model.DirectionOut
	counterparty := receiverID
	if receiverID == account {
		dir = model.DirectionIn
		counterparty = signerID
	}
	return model.TransferRecord{
		Type:         model.TransferNative,
		Direction:    dir,
		Counterparty: counterparty,
		Amount:       amount,
		Memo:         memo,
	}
}

func isFTMethod(method string) bool {
	return method == "ft_transfer" || method == "ft_transfer_call"
}

func isStakingMethod(method string) bool {
	switch method {
	case "deposit_and_stake", "unstake", "unstake_all", "withdraw_all", "withdraw":
		return true
	default:
		return false
	}
}

type ftTransferArgs struct {
	ReceiverID string `json:"receiver_id"`
	Amount     string `json:"amount"`
	Memo       string `json:"memo"`
}

func ftTransferFromArgs(account, contract, predecessor string, fc *nearrpc.FunctionCallAction) (model.TransferRecord, bool) {
	raw, err := base64.StdEncoding.DecodeString(fc.Args)
	if err != nil {
		return model.TransferRecord{}, false
	}
	var args ftTransferArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return model.TransferRecord{}, false
	}
	amt, err := model.ParseAmount(args.Amount)
	if err != nil || amt.IsZero() {
		return model.TransferRecord{}, false
	}

	dir := model.DirectionOut
	counterparty := args.ReceiverID
	if args.ReceiverID == account {
		dir = model.DirectionIn
		counterparty = predecessor
	}
	return model.TransferRecord{
		Type:         model.TransferFT,
		Direction:    dir,
		Counterparty: counterparty,
		TokenID:      contract,
		Amount:       amt,
		Memo:         args.Memo,
	}, true
}

func stakingTransfer(account, pool string, fc *nearrpc.FunctionCallAction) model.TransferRecord {
	typ := model.TransferStakingDeposit
	dir := model.DirectionOut
	switch fc.MethodName {
	case "unstake", "unstake_all":
		typ = model.TransferStakingWithdraw
		dir = model.DirectionIn
	case "withdraw_all", "withdraw":
		typ = model.TransferStakingWithdraw
		dir = model.DirectionIn
	}
	amt, _ := model.ParseAmount(fc.Deposit)
	return model.TransferRecord{
		Type:         typ,
		Direction:    dir,
		Counterparty: pool,
		Amount:       amt,
		Memo:         fc.MethodName,
	}
}

// mtTransferEvent matches the NEP-297 EVENT_JSON envelope NEP-245
// contracts emit for mt_burn/mt_mint/mt_transfer.
type mtTransferEvent struct {
	Standard string `json:"standard"`
	Event    string `json:"event"`
	Data     []struct {
		OldOwnerID string   `json:"old_owner_id"`
		NewOwnerID string   `json:"new_owner_id"`
		TokenIDs   []string `json:"token_ids"`
		Amounts    []string `json:"amounts"`
		Memo       string   `json:"memo"`
	} `json:"data"`
}

func mtTransferFromLog(account, log string) (model.TransferRecord, bool) {
	const prefix = "EVENT_JSON:"
	if !strings.HasPrefix(log, prefix) {
		return model.TransferRecord{}, false
	}
	var evt mtTransferEvent
	if err := json.Unmarshal([]byte(strings.TrimPrefix(log, prefix)), &evt); err != nil {
		return model.TransferRecord{}, false
	}
	if evt.Standard != "nep245" {
		return model.TransferRecord{}, false
	}
	for _, d := range evt.Data {
		if d.OldOwnerID != account && d.NewOwnerID != account {
			continue
		}
		if len(d.TokenIDs) == 0 || len(d.Amounts) == 0 {
			continue
		}
		amt, err := model.ParseAmount(d.Amounts[0])
		if err != nil || amt.IsZero() {
			continue
		}
		dir := model.DirectionOut
		counterparty := d.NewOwnerID
		if d.NewOwnerID == account {
			dir = model.DirectionIn
			counterparty = d.OldOwnerID
		}
		if counterparty == "" {
			counterparty = intentsContract
		}
		return model.TransferRecord{
			Type:         model.TransferMT,
			Direction:    dir,
			Counterparty: counterparty,
			TokenID:      d.TokenIDs[0],
			Amount:       amt,
			Memo:         d.Memo,
		}, true
	}
	return model.TransferRecord{}, false
}

func toSet(list []string) map[string]struct{} {
	out := make(map[string]struct{}, len(list))
	for _, v := range list {
		out[v] = struct{}{}
	}
	return out
}
