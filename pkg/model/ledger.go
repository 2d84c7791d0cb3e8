package model

import "time"

// TransferType enumerates the kinds of asset movement the Attributor
// can produce.
type TransferType string

const (
	TransferNative         TransferType = "native"
	TransferFT             TransferType = "ft"
	TransferMT              TransferType = "mt"
	TransferStakingReward  TransferType = "staking_reward"
	TransferStakingDeposit TransferType = "staking_deposit"
	TransferStakingWithdraw TransferType = "staking_withdraw"
)

// Direction is the side of a TransferRecord relative to the account
// whose ledger it belongs to.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// TransferRecord is one movement attributed to a LedgerEntry.
type TransferRecord struct {
	Type         TransferType `json:"type"`
	Direction    Direction    `json:"direction"`
	Counterparty string       `json:"counterparty"`
	TokenID      string       `json:"tokenId,omitempty"`
	Amount       Amount       `json:"amount"`
	Memo         string       `json:"memo,omitempty"`
}

// FieldDiff is a compact {start,end,diff} triple for one changed asset key.
type FieldDiff struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Diff  string `json:"diff"`
}

// Changes is the compact diff summary attached to a LedgerEntry.
type Changes struct {
	NativeChanged   bool                  `json:"nativeChanged"`
	NativeDiff      string                `json:"nativeDiff,omitempty"`
	TokensChanged   map[string]FieldDiff  `json:"tokensChanged,omitempty"`
	IntentsChanged  map[string]FieldDiff  `json:"intentsChanged,omitempty"`
	StakingChanged  map[string]FieldDiff  `json:"stakingChanged,omitempty"`
}

// HasNonStakingChange reports whether a change exists in native, FT,
// or intents — the condition under which attribution is mandatory.
func (c Changes) HasNonStakingChange() bool {
	return c.NativeChanged || len(c.TokensChanged) > 0 || len(c.IntentsChanged) > 0
}

// IsStakingOnly reports whether the only changes present are staking
// accruals, the condition for a synthetic entry.
func (c Changes) IsStakingOnly() bool {
	return !c.NativeChanged && len(c.TokensChanged) == 0 && len(c.IntentsChanged) == 0 && len(c.StakingChanged) > 0
}

// VerificationResult records the outcome of a connectivity check
// against an adjacent entry.
type VerificationResult struct {
	Verified bool                `json:"verified"`
	Errors   []ConnectivityError `json:"errors,omitempty"`
}

// ConnectivityErrorKind enumerates the typed connectivity violations.
type ConnectivityErrorKind string

const (
	ErrKindNativeMismatch  ConnectivityErrorKind = "native_balance_mismatch"
	ErrKindTokenMismatch   ConnectivityErrorKind = "token_balance_mismatch"
	ErrKindIntentsMismatch ConnectivityErrorKind = "intents_balance_mismatch"
	ErrKindStakingMismatch ConnectivityErrorKind = "staking_balance_mismatch"
)

// ConnectivityError describes one mismatched asset key between two
// adjacent entries.
type ConnectivityError struct {
	Kind     ConnectivityErrorKind `json:"kind"`
	Expected string                `json:"expected"`
	Actual   string                `json:"actual"`
	Token    string                `json:"token,omitempty"`
	Pool     string                `json:"pool,omitempty"`
}

// LedgerEntry is one observed balance change for an account.
type LedgerEntry struct {
	Block             uint64            `json:"block"`
	TransactionBlock  uint64            `json:"transactionBlock"`
	Timestamp         int64             `json:"timestamp"`
	TransactionHashes []string          `json:"transactionHashes"`
	Transfers         []TransferRecord  `json:"transfers"`
	BalanceBefore     *BalanceSnapshot  `json:"balanceBefore"`
	BalanceAfter      *BalanceSnapshot  `json:"balanceAfter"`
	Changes           Changes           `json:"changes"`

	VerificationWithNext *VerificationResult `json:"verificationWithNext,omitempty"`
	VerificationWithPrev *VerificationResult `json:"verificationWithPrev,omitempty"`
}

// IsSynthetic reports whether this entry is a staking-reward accrual
// tick with no attributed transaction — excluded from connectivity
// checks per the synthetic-entry invariant.
func (e *LedgerEntry) IsSynthetic() bool {
	return len(e.TransactionHashes) == 0 && e.Changes.IsStakingOnly()
}

// AccountMetadata is the rolling summary recomputed on every insert.
type AccountMetadata struct {
	FirstBlock       uint64 `json:"firstBlock"`
	LastBlock        uint64 `json:"lastBlock"`
	TotalTransactions int   `json:"totalTransactions"`
	HistoryComplete  bool   `json:"historyComplete"`
}

// AccountHistory is the append-only ledger for one account.
type AccountHistory struct {
	AccountID    string          `json:"accountId"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	Transactions []LedgerEntry   `json:"transactions"`
	Metadata     AccountMetadata `json:"metadata"`
}

// NewAccountHistory returns an empty history ready for its first insert.
func NewAccountHistory(accountID string, now time.Time) *AccountHistory {
	return &AccountHistory{
		AccountID: accountID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IndexOfBlock returns the index of the entry at the given block, or -1.
func (h *AccountHistory) IndexOfBlock(block uint64) int {
	for i := range h.Transactions {
		if h.Transactions[i].Block == block {
			return i
		}
	}
	return -1
}
