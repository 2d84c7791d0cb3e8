package rpcgateway

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimit is returned once the process-wide stop signal has
	// tripped; subsequent calls fail fast until the signal clears.
	ErrRateLimit = errors.New("rpcgateway: rate limited, stop signal set")

	// ErrCancelled is returned when the stop signal was already set
	// before a call started.
	ErrCancelled = errors.New("rpcgateway: cancelled by stop signal")
)

// GatewayError wraps an underlying transport error with the
// operation and account it occurred under.
type GatewayError struct {
	Op      string
	Account string
	Block   uint64
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Account != "" {
		return fmt.Sprintf("rpcgateway: %s [account=%s, block=%d]: %v", e.Op, e.Account, e.Block, e.Err)
	}
	return fmt.Sprintf("rpcgateway: %s [block=%d]: %v", e.Op, e.Block, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
