package scheduler

import (
	"errors"
	"fmt"
)

// Sentinel errors for the scheduler package.
var (
	ErrAccountAlreadyRunning = errors.New("account sync already running")
	ErrSchedulerShuttingDown = errors.New("scheduler is shutting down")
	ErrAccountTimeout        = errors.New("account sync exceeded its per-account timeout")
)

// AccountError wraps an error with the account and cycle phase it
// occurred in.
type AccountError struct {
	AccountID string
	Phase     string
	Err       error
}

// NewAccountError builds an AccountError.
func NewAccountError(accountID, phase string, err error) *AccountError {
	return &AccountError{AccountID: accountID, Phase: phase, Err: err}
}

func (e *AccountError) Error() string {
	return fmt.Sprintf("account %s: %s: %v", e.AccountID, e.Phase, e.Err)
}

func (e *AccountError) Unwrap() error {
	return e.Err
}
