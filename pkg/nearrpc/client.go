// Package nearrpc is a minimal JSON-RPC-over-HTTPS transport for the
// NEAR archival node. It intentionally knows nothing about pacing,
// retries, or rate-limit backoff — those are the RPC Gateway's job;
// this package only talks the wire protocol.
package nearrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config configures the transport client.
type Config struct {
	Endpoint string
	Timeout  time.Duration
	Logger   *zap.Logger
}

// Client is a bare JSON-RPC transport: one HTTP endpoint, one method
// to invoke any named RPC, and typed helpers for the handful of calls
// the rest of the system needs.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *zap.Logger
	idSeq    atomic.Uint64
}

// NewClient dials nothing (NEAR RPC is plain HTTP) but validates
// configuration the way the rest of the codebase's NewClient
// constructors do.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nearrpc: config cannot be nil")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("nearrpc: endpoint cannot be empty")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		endpoint: cfg.Endpoint,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}

	logger.Info("nearrpc client configured", zap.String("endpoint", cfg.Endpoint))
	return c, nil
}

// Close releases idle connections held by the underlying transport.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// Call invokes method with params and decodes the result into out.
// The caller is responsible for classifying the returned error via
// errors.Is against the nearrpc sentinel errors.
func (c *Client) Call(ctx context.Context, method string, params interface{}, out interface{}) error {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return &RPCError{Method: method, Err: fmt.Errorf("encode params: %w", err)}
	}

	id := strconv.FormatUint(c.idSeq.Add(1), 10)
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  rawParams,
	})
	if err != nil {
		return &RPCError{Method: method, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return &RPCError{Method: method, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &RPCError{Method: method, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RPCError{Method: method, Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode >= 500 {
		return &RPCError{Method: method, Err: fmt.Errorf("server error: status %d", resp.StatusCode)}
	}

	var envelope response
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return &RPCError{Method: method, Err: fmt.Errorf("decode envelope: %w", err)}
	}

	c.logger.Debug("nearrpc call completed",
		zap.String("method", method),
		zap.Duration("elapsed", time.Since(start)))

	if envelope.Error != nil {
		return classify(method, envelope.Error)
	}

	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return &RPCError{Method: method, Err: fmt.Errorf("decode result: %w", err)}
	}
	return nil
}

// Status returns the node's current sync status (used for chain tip).
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var out StatusResult
	if err := c.Call(ctx, "status", []interface{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Block fetches a block header and chunk list.
func (c *Client) Block(ctx context.Context, ref BlockReference) (*BlockResult, error) {
	var out BlockResult
	if err := c.Call(ctx, "block", ref, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Chunk fetches one shard's transactions by chunk hash.
func (c *Client) Chunk(ctx context.Context, chunkHash string) (*ChunkResult, error) {
	var out ChunkResult
	if err := c.Call(ctx, "chunk", map[string]string{"chunk_id": chunkHash}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ViewAccount runs `query` with request_type=view_account.
func (c *Client) ViewAccount(ctx context.Context, accountID string, ref BlockReference) (*ViewAccountResult, error) {
	params := map[string]interface{}{
		"request_type": "view_account",
		"account_id":   accountID,
	}
	mergeRef(params, ref)

	var out ViewAccountResult
	if err := c.Call(ctx, "query", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CallView runs `query` with request_type=call_function against a
// contract's view method.
func (c *Client) CallView(ctx context.Context, contractID, method string, args []byte, ref BlockReference) (*CallFunctionResult, error) {
	params := map[string]interface{}{
		"request_type": "call_function",
		"account_id":   contractID,
		"method_name":  method,
		"args_base64":  base64Encode(args),
	}
	mergeRef(params, ref)

	var out CallFunctionResult
	if err := c.Call(ctx, "query", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TxStatusWithReceipts runs EXPERIMENTAL_tx_status with full receipt outcomes.
func (c *Client) TxStatusWithReceipts(ctx context.Context, txHash, signerID string) (*TxStatusResult, error) {
	var out TxStatusResult
	params := []interface{}{txHash, signerID}
	if err := c.Call(ctx, "EXPERIMENTAL_tx_status", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func mergeRef(params map[string]interface{}, ref BlockReference) {
	if ref.BlockID != nil {
		params["block_id"] = ref.BlockID
	} else if ref.Finality != "" {
		params["finality"] = ref.Finality
	} else {
		params["finality"] = "final"
	}
}
