package nearrpc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyMapsKnownMessages(t *testing.T) {
	cases := []struct {
		name string
		msg  string
		want error
	}{
		{"unknown account", "account arizcredits.near does not exist while viewing", ErrAccountDoesNotExist},
		{"unknown_account code", "UNKNOWN_ACCOUNT", ErrAccountDoesNotExist},
		{"garbage collected", "DB Not Found Error: BLOCK HEIGHT: 100 \n Cause: garbage collected", ErrBlockUnavailable},
		{"unknown block", "Unknown block", ErrBlockUnavailable},
		{"block unavailable", "block is unavailable", ErrBlockUnavailable},
		{"rate limit phrase", "Too Many Requests", ErrRateLimited},
		{"429 in message", "status 429", ErrRateLimited},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify("query", &rpcError{Message: tc.msg})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestClassifyWrapsUnknownMessages(t *testing.T) {
	err := classify("query", &rpcError{Message: "some unrelated contract panic"})

	var rpcErr *RPCError
	ok := errors.As(err, &rpcErr)
	assert.True(t, ok)
	assert.Equal(t, "query", rpcErr.Method)
}

func TestClassifyFallsBackToName(t *testing.T) {
	err := classify("query", &rpcError{Name: "TIMEOUT_ERROR", Message: ""})

	var rpcErr *RPCError
	ok := errors.As(err, &rpcErr)
	assert.True(t, ok)
	assert.Contains(t, rpcErr.Err.Error(), "TIMEOUT_ERROR")
}
