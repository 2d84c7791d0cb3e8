package nearrpc

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAccountDoesNotExist is returned (not propagated as an RPC
	// failure) when the node reports UNKNOWN_ACCOUNT — the gateway
	// normalizes this into a zero snapshot.
	ErrAccountDoesNotExist = errors.New("nearrpc: account does not exist")

	// ErrBlockUnavailable covers both GC'd and never-produced blocks.
	ErrBlockUnavailable = errors.New("nearrpc: block unavailable")

	// ErrRateLimited signals a 429 / "Too Many Requests" response.
	ErrRateLimited = errors.New("nearrpc: rate limited")
)

// RPCError wraps a transport or JSON-RPC failure with the method that
// produced it.
type RPCError struct {
	Method string
	Err    error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("nearrpc: %s: %v", e.Method, e.Err)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

// classify inspects a raw JSON-RPC error and maps it to one of the
// sentinel errors the RPC Gateway depends on, or wraps it unchanged
// when nothing matches.
func classify(method string, rerr *rpcError) error {
	msg := rerr.Message
	if msg == "" && rerr.Name != "" {
		msg = rerr.Name
	}
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "unknown_account"), strings.Contains(lower, "does not exist"):
		return ErrAccountDoesNotExist
	case strings.Contains(lower, "unavailable"), strings.Contains(lower, "doesn't exist"), strings.Contains(lower, "unknown block"), strings.Contains(lower, "garbage collected"):
		return ErrBlockUnavailable
	case strings.Contains(lower, "429"), strings.Contains(lower, "rate limit"), strings.Contains(lower, "too many requests"):
		return ErrRateLimited
	default:
		return &RPCError{Method: method, Err: errors.New(msg)}
	}
}
