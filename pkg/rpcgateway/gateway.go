package rpcgateway

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/nearacct/acctsync/pkg/events"
	"github.com/nearacct/acctsync/pkg/nearrpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// EventPublisher is satisfied by pkg/eventbus's EventBus. Kept as a
// single-method local interface so the Gateway doesn't need to import
// the distributed event bus package just to emit rate-limit alerts.
type EventPublisher interface {
	Publish(event events.Event) bool
}

// Gateway serializes every archival RPC call behind a pacing limiter
// and a process-wide rate-limit stop signal. It is not goroutine-safe
// by design — the Sync Scheduler guarantees at most one account
// pipeline drives it at a time.
type Gateway struct {
	client   *nearrpc.Client
	archive  *nearrpc.ArchiveClient
	limiter  *rate.Limiter
	cfg      *Config
	logger   *zap.Logger
	metrics  Metrics
	eventBus EventPublisher

	stopSignal atomic.Bool
}

// New constructs a Gateway around an already-configured transport client.
func New(client *nearrpc.Client, archive *nearrpc.ArchiveClient, cfg *Config, logger *zap.Logger) *Gateway {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	delay := cfg.PacingDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	return &Gateway{
		client:  client,
		archive: archive,
		limiter: rate.NewLimiter(rate.Every(delay), 1),
		cfg:     cfg,
		logger:  logger,
	}
}

// SetEventBus attaches an event publisher so rate-limit trips surface
// as events.EventTypeRateLimited for operator alerting. Optional; a nil
// bus (the default) simply skips publication.
func (g *Gateway) SetEventBus(bus EventPublisher) {
	g.eventBus = bus
}

// StopSignalSet reports whether a rate-limit response has tripped the
// process-wide cooperative stop signal.
func (g *Gateway) StopSignalSet() bool {
	return g.stopSignal.Load()
}

// ClearStopSignal resets the stop signal; called by the Scheduler at
// the boundary between cycles.
func (g *Gateway) ClearStopSignal() {
	g.stopSignal.Store(false)
}

// Metrics returns a snapshot of accumulated egress counters.
func (g *Gateway) Metrics() Metrics {
	return Metrics{
		TotalCalls:       atomic.LoadInt64(&g.metrics.TotalCalls),
		RateLimitedCalls: atomic.LoadInt64(&g.metrics.RateLimitedCalls),
		MissingBlockHits: atomic.LoadInt64(&g.metrics.MissingBlockHits),
		Errors:           atomic.LoadInt64(&g.metrics.Errors),
	}
}

// pace blocks until the pacing limiter allows the next call, or
// returns early if the stop signal is set or ctx is done.
func (g *Gateway) pace(ctx context.Context) error {
	if g.stopSignal.Load() {
		return ErrCancelled
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	if g.stopSignal.Load() {
		return ErrCancelled
	}
	return nil
}

func (g *Gateway) callTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.cfg.RequestTimeout)
}

// classifyAndTrip inspects err, trips the stop signal on rate-limit
// detection, and returns the (possibly annotated) error.
func (g *Gateway) classifyAndTrip(err error) error {
	if err == nil {
		return nil
	}
	atomic.AddInt64(&g.metrics.Errors, 1)
	if errors.Is(err, nearrpc.ErrRateLimited) {
		atomic.AddInt64(&g.metrics.RateLimitedCalls, 1)
		g.stopSignal.Store(true)
		g.logger.Warn("rpc gateway observed rate limit, tripping stop signal")

		method := "unknown"
		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			method = gwErr.Op
		}
		if g.eventBus != nil {
			g.eventBus.Publish(events.NewRateLimitedEvent(method))
		}
		return ErrRateLimit
	}
	return err
}

// CurrentBlockHeight returns the chain tip's block height.
func (g *Gateway) CurrentBlockHeight(ctx context.Context) (uint64, error) {
	if err := g.pace(ctx); err != nil {
		return 0, err
	}
	cctx, cancel := g.callTimeout(ctx)
	defer cancel()

	atomic.AddInt64(&g.metrics.TotalCalls, 1)
	status, err := g.client.Status(cctx)
	if err != nil {
		return 0, g.classifyAndTrip(&GatewayError{Op: "CurrentBlockHeight", Err: err})
	}
	return status.SyncInfo.LatestBlockHeight, nil
}

// ViewAccountOutcome is the normalized result of a view_account query:
// either the account's amount+locked, or Missing=true meaning the
// account did not exist at the effective block.
type ViewAccountOutcome struct {
	Amount         string
	Locked         string
	EffectiveBlock uint64
	Missing        bool
}

// ViewAccount fetches an account's amount+locked at block, retrying
// at block-1 on a missing-block error and normalizing account absence
// into a Missing result instead of an error.
func (g *Gateway) ViewAccount(ctx context.Context, accountID string, block uint64) (*ViewAccountOutcome, error) {
	return g.viewAccountRecursive(ctx, accountID, block, 0)
}

func (g *Gateway) viewAccountRecursive(ctx context.Context, accountID string, block uint64, depth int) (*ViewAccountOutcome, error) {
	if depth > g.cfg.MaxMissingBlockRetries {
		return nil, &GatewayError{Op: "ViewAccount", Account: accountID, Block: block, Err: errors.New("missing-block retry budget exhausted")}
	}
	if err := g.pace(ctx); err != nil {
		return nil, err
	}
	cctx, cancel := g.callTimeout(ctx)
	defer cancel()

	atomic.AddInt64(&g.metrics.TotalCalls, 1)
	res, err := g.client.ViewAccount(cctx, accountID, nearrpc.AtHeight(block))
	if err != nil {
		if errors.Is(err, nearrpc.ErrAccountDoesNotExist) {
			return &ViewAccountOutcome{EffectiveBlock: block, Missing: true}, nil
		}
		if errors.Is(err, nearrpc.ErrBlockUnavailable) && block > 0 {
			atomic.AddInt64(&g.metrics.MissingBlockHits, 1)
			g.logger.Debug("missing block on view_account, retrying at block-1",
				zap.String("account", accountID), zap.Uint64("block", block))
			return g.viewAccountRecursive(ctx, accountID, block-1, depth+1)
		}
		return nil, g.classifyAndTrip(&GatewayError{Op: "ViewAccount", Account: accountID, Block: block, Err: err})
	}
	return &ViewAccountOutcome{
		Amount:         res.Amount,
		Locked:         res.Locked,
		EffectiveBlock: block,
	}, nil
}

// CallViewOutcome normalizes a contract view call result.
type CallViewOutcome struct {
	Result         []byte
	EffectiveBlock uint64
	Missing        bool // contract not deployed / method not found
}

// CallView invokes a read-only contract method at block, normalizing
// "contract not deployed" / "method not found" into a Missing result
// (a newly-created token contract is indistinguishable from a missing
// one at the query point, which is semantically correct per spec).
func (g *Gateway) CallView(ctx context.Context, contractID, method string, args []byte, block uint64) (*CallViewOutcome, error) {
	return g.callViewRecursive(ctx, contractID, method, args, block, 0)
}

func (g *Gateway) callViewRecursive(ctx context.Context, contractID, method string, args []byte, block uint64, depth int) (*CallViewOutcome, error) {
	if depth > g.cfg.MaxMissingBlockRetries {
		return nil, &GatewayError{Op: "CallView", Account: contractID, Block: block, Err: errors.New("missing-block retry budget exhausted")}
	}
	if err := g.pace(ctx); err != nil {
		return nil, err
	}
	cctx, cancel := g.callTimeout(ctx)
	defer cancel()

	atomic.AddInt64(&g.metrics.TotalCalls, 1)
	res, err := g.client.CallView(cctx, contractID, method, args, nearrpc.AtHeight(block))
	if err != nil {
		if errors.Is(err, nearrpc.ErrAccountDoesNotExist) {
			return &CallViewOutcome{EffectiveBlock: block, Missing: true}, nil
		}
		if errors.Is(err, nearrpc.ErrBlockUnavailable) && block > 0 {
			atomic.AddInt64(&g.metrics.MissingBlockHits, 1)
			return g.callViewRecursive(ctx, contractID, method, args, block-1, depth+1)
		}
		return nil, g.classifyAndTrip(&GatewayError{Op: "CallView", Account: contractID, Block: block, Err: err})
	}
	return &CallViewOutcome{Result: res.Result, EffectiveBlock: block}, nil
}

// TxStatusWithReceipts fetches a transaction plus all caused receipts/outcomes.
func (g *Gateway) TxStatusWithReceipts(ctx context.Context, hash, signer string) (*nearrpc.TxStatusResult, error) {
	if err := g.pace(ctx); err != nil {
		return nil, err
	}
	cctx, cancel := g.callTimeout(ctx)
	defer cancel()

	atomic.AddInt64(&g.metrics.TotalCalls, 1)
	res, err := g.client.TxStatusWithReceipts(cctx, hash, signer)
	if err != nil {
		return nil, g.classifyAndTrip(&GatewayError{Op: "TxStatusWithReceipts", Err: err})
	}
	return res, nil
}

// Block fetches a block's header and chunk hashes.
func (g *Gateway) Block(ctx context.Context, height uint64) (*nearrpc.BlockResult, error) {
	if err := g.pace(ctx); err != nil {
		return nil, err
	}
	cctx, cancel := g.callTimeout(ctx)
	defer cancel()

	atomic.AddInt64(&g.metrics.TotalCalls, 1)
	res, err := g.client.Block(cctx, nearrpc.AtHeight(height))
	if err != nil {
		return nil, g.classifyAndTrip(&GatewayError{Op: "Block", Block: height, Err: err})
	}
	return res, nil
}

// Chunk fetches the transactions within a chunk.
func (g *Gateway) Chunk(ctx context.Context, chunkHash string) (*nearrpc.ChunkResult, error) {
	if err := g.pace(ctx); err != nil {
		return nil, err
	}
	cctx, cancel := g.callTimeout(ctx)
	defer cancel()

	atomic.AddInt64(&g.metrics.TotalCalls, 1)
	res, err := g.client.Chunk(cctx, chunkHash)
	if err != nil {
		return nil, g.classifyAndTrip(&GatewayError{Op: "Chunk", Err: err})
	}
	return res, nil
}

// RawBlockData fetches the full receipts+outcomes payload for a block
// from the optional archive service, when configured. Returns
// (nil, nil) when no archive client is configured.
func (g *Gateway) RawBlockData(ctx context.Context, height uint64) (*nearrpc.ArchiveBlockResult, error) {
	if g.archive == nil {
		return nil, nil
	}
	if err := g.pace(ctx); err != nil {
		return nil, err
	}
	cctx, cancel := g.callTimeout(ctx)
	defer cancel()

	atomic.AddInt64(&g.metrics.TotalCalls, 1)
	res, err := g.archive.Block(cctx, height)
	if err != nil {
		if errors.Is(err, nearrpc.ErrBlockUnavailable) {
			return nil, nil
		}
		return nil, g.classifyAndTrip(&GatewayError{Op: "RawBlockData", Block: height, Err: err})
	}
	return res, nil
}
