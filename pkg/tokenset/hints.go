package tokenset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ActivityHintClient is an opaque transactions-by-account indexer used
// only as a hint source; absence or failure must never block progress.
type ActivityHintClient interface {
	RecentFTActivity(ctx context.Context, accountID string) ([]string, error)
}

// IntentsHintClient is an opaque intents-explorer indexer providing
// NEP-245 swaps referencing the account as recipient.
type IntentsHintClient interface {
	RecentIntentsSwaps(ctx context.Context, accountID string) ([]string, error)
}

// HTTPActivityHintClient polls a paginated transactions-by-account
// endpoint and extracts the FT contract ids referenced.
type HTTPActivityHintClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewHTTPActivityHintClient constructs a client against baseURL.
func NewHTTPActivityHintClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPActivityHintClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPActivityHintClient{baseURL: baseURL, http: &http.Client{Timeout: timeout}, logger: logger}
}

type activityResponse struct {
	Transactions []struct {
		ReceiverID string `json:"receiver_id"`
	} `json:"transactions"`
}

// RecentFTActivity fetches the most recent page of transactions for
// accountID and returns the distinct receiver contract ids seen,
// treated as candidate FT contracts.
func (c *HTTPActivityHintClient) RecentFTActivity(ctx context.Context, accountID string) ([]string, error) {
	url := fmt.Sprintf("%s/account/%s/transactions?limit=25", c.baseURL, accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tokenset: activity hint status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed activityResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []string
	for _, tx := range parsed.Transactions {
		if tx.ReceiverID == "" {
			continue
		}
		if _, ok := seen[tx.ReceiverID]; !ok {
			seen[tx.ReceiverID] = struct{}{}
			out = append(out, tx.ReceiverID)
		}
	}
	return out, nil
}

// HTTPIntentsHintClient polls a bearer-token-authenticated
// intents-explorer endpoint, rate-limited at ~1 request / 5s per spec §6.
type HTTPIntentsHintClient struct {
	baseURL     string
	bearerToken string
	http        *http.Client
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewHTTPIntentsHintClient constructs a client against baseURL.
func NewHTTPIntentsHintClient(baseURL, bearerToken string, timeout time.Duration, logger *zap.Logger) *HTTPIntentsHintClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPIntentsHintClient{
		baseURL:     baseURL,
		bearerToken: bearerToken,
		http:        &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Every(5*time.Second), 1),
		logger:      logger,
	}
}

type intentsResponse struct {
	Swaps []struct {
		TokenID string `json:"token_id"`
	} `json:"swaps"`
}

// RecentIntentsSwaps fetches the most recent page of intents swaps
// referencing accountID as recipient.
func (c *HTTPIntentsHintClient) RecentIntentsSwaps(ctx context.Context, accountID string) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/intents/swaps?recipient=%s&limit=25", c.baseURL, accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tokenset: intents hint status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed intentsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []string
	for _, s := range parsed.Swaps {
		if s.TokenID == "" {
			continue
		}
		if _, ok := seen[s.TokenID]; !ok {
			seen[s.TokenID] = struct{}{}
			out = append(out, s.TokenID)
		}
	}
	return out, nil
}
