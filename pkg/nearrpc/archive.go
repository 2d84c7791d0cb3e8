package nearrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// ArchiveClient fetches full block payloads (receipts + execution
// outcomes) from the optional public block-data archive, used when
// the node's own `block` RPC does not embed outcomes.
type ArchiveClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewArchiveClient constructs a client against baseURL, e.g.
// "https://archive.example/v0".
func NewArchiveClient(baseURL string, timeout time.Duration, logger *zap.Logger) *ArchiveClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ArchiveClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Block fetches the full archived payload for one block height.
func (a *ArchiveClient) Block(ctx context.Context, height uint64) (*ArchiveBlockResult, error) {
	url := fmt.Sprintf("%s/block/%s", a.baseURL, strconv.FormatUint(height, 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &RPCError{Method: "archive.block", Err: err}
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, &RPCError{Method: "archive.block", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrBlockUnavailable
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RPCError{Method: "archive.block", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RPCError{Method: "archive.block", Err: err}
	}

	var out ArchiveBlockResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &RPCError{Method: "archive.block", Err: fmt.Errorf("decode: %w", err)}
	}

	a.logger.Debug("fetched archived block", zap.Uint64("height", height))
	return &out, nil
}
