// Package scheduler drives the Sync Scheduler: a cycling loop over the
// registered account roster, running each account's forward pass,
// backward pass, gap re-verification, and re-enrichment through a
// single shared Pipeline. Accounts within a cycle are processed
// sequentially (spec's "Concurrency floor": the Gateway is not
// goroutine-safe for call ordering and the reference design satisfies
// the one-pipeline-active-per-account contract by never running two
// accounts' passes at once, rather than by wrapping the Gateway in a
// fair mutex).
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/nearacct/acctsync/pkg/registry"
	"go.uber.org/zap"
)

// Manager owns the cycle loop over the account roster.
type Manager struct {
	cfg      *Config
	registry *registry.Registry
	pipeline *Pipeline
	logger   *zap.Logger

	ctx        context.Context
	cancelFunc context.CancelFunc
	runningWg  sync.WaitGroup

	mu        sync.Mutex
	isRunning bool
}

// NewManager constructs a Manager around a Registry and Pipeline.
func NewManager(cfg *Config, reg *registry.Registry, pipeline *Pipeline, logger *zap.Logger) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		registry: reg,
		pipeline: pipeline,
		logger:   logger.Named("scheduler"),
	}, nil
}

// Start launches the cycle loop in the background.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return nil
	}
	m.ctx, m.cancelFunc = context.WithCancel(ctx)
	m.isRunning = true
	m.mu.Unlock()

	m.logger.Info("starting sync scheduler",
		zap.Duration("cycleDelay", m.cfg.CycleDelay),
		zap.Int("maxConcurrentAccounts", m.cfg.MaxConcurrentAccounts))

	m.runningWg.Add(1)
	go m.cycleLoop()
	return nil
}

// Stop signals the cycle loop to exit and waits for in-flight account
// syncs to either finish or hit ctx's deadline.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return nil
	}
	m.isRunning = false
	m.mu.Unlock()

	m.logger.Info("stopping sync scheduler")
	if m.cancelFunc != nil {
		m.cancelFunc()
	}

	done := make(chan struct{})
	go func() {
		m.runningWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("sync scheduler stopped gracefully")
	case <-ctx.Done():
		m.logger.Warn("sync scheduler stop timed out")
	}
	return nil
}

func (m *Manager) cycleLoop() {
	defer m.runningWg.Done()

	for {
		m.runCycle(m.ctx)

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(m.cfg.CycleDelay):
		}
	}
}

// runCycle runs one pass over every eligible account. Accounts are
// processed one at a time, never concurrently: the Manager's Pipeline
// and the Gateway it drives are shared across the whole roster and are
// not goroutine-safe, so running two accounts' passes at once would
// race on the Gateway's pacing/stop-signal state and the Pipeline's own
// per-cycle counters. This also makes per-account single-flight
// trivial — an account can't be "in flight" twice when only one
// account is ever in flight at all.
func (m *Manager) runCycle(ctx context.Context) {
	accounts := m.registry.EligibleAccounts(time.Now())
	if len(accounts) == 0 {
		return
	}

	for _, accountID := range accounts {
		if ctx.Err() != nil {
			return
		}
		m.runAccount(ctx, accountID)
	}
}

func (m *Manager) runAccount(ctx context.Context, accountID string) {
	accountCtx, cancel := context.WithTimeout(ctx, m.cfg.AccountTimeout)
	defer cancel()

	if err := m.pipeline.Run(accountCtx, accountID); err != nil {
		if accountCtx.Err() != nil {
			m.logger.Warn("account sync timed out", zap.String("account", accountID), zap.Error(ErrAccountTimeout))
			return
		}
		m.logger.Error("account sync failed", zap.String("account", accountID), zap.Error(err))
	}
}
