package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/systmms/credbroker/internal/logging"
)

// ReverseFlowPoller periodically runs pull passes while the vault
// registration permits bidirectional flow. It owns a single cancellable
// background task; Start while active is a no-op and Stop waits for the
// task to exit.
type ReverseFlowPoller struct {
	vault          VaultConnection
	dispatch       *DispatchEngine
	directory      PluginDirectory
	logger         *logging.Logger
	metrics        *Metrics
	registrationID string
	interval       time.Duration

	// engineRunning reports the owning engine's lifecycle state so the
	// loop can exit early and PollOnce can decide whether plugin
	// credentials may be stale.
	engineRunning func() bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	active atomic.Bool
}

// NewReverseFlowPoller creates a poller. engineRunning must be non-nil.
func NewReverseFlowPoller(vault VaultConnection, dispatch *DispatchEngine, directory PluginDirectory, logger *logging.Logger, metrics *Metrics, registrationID string, interval time.Duration, engineRunning func() bool) *ReverseFlowPoller {
	return &ReverseFlowPoller{
		vault:          vault,
		dispatch:       dispatch,
		directory:      directory,
		logger:         logger,
		metrics:        metrics,
		registrationID: registrationID,
		interval:       interval,
		engineRunning:  engineRunning,
	}
}

// IsAvailable reports whether reverse flow is currently permitted by the
// vault registration. Lookup failures of any kind read as unavailable.
func (p *ReverseFlowPoller) IsAvailable(ctx context.Context) bool {
	if p.registrationID == "" {
		p.logger.Debug("No registration ID configured; reverse flow unavailable")
		return false
	}
	bidirectional, err := p.vault.CheckRegistrationBidirectional(ctx, p.registrationID)
	if err != nil {
		p.logger.Warn("Registration lookup failed; treating reverse flow as unavailable: %v", err)
		return false
	}
	return bidirectional
}

// Active reports whether the poll task is running.
func (p *ReverseFlowPoller) Active() bool {
	return p.active.Load()
}

// Start spawns the periodic poll task. No-op if one is already active.
func (p *ReverseFlowPoller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}

	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.active.Store(true)
	p.metrics.SetReverseFlowActive(true)

	go p.run(pollCtx, p.done)
}

// Stop cancels the poll task and waits for it to exit. Idempotent.
func (p *ReverseFlowPoller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *ReverseFlowPoller) run(ctx context.Context, done chan struct{}) {
	defer func() {
		p.active.Store(false)
		p.metrics.SetReverseFlowActive(false)
		close(done)
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil || !p.engineRunning() {
				return
			}
			p.dispatch.RunPullPass(ctx)
		}
	}
}

// PollOnce schedules one asynchronous pull pass if reverse flow is
// available, refreshing plugin credentials first when the engine is not
// running (they may be stale from a previous run). Returns whether a pass
// was scheduled; never blocks on the pass itself.
func (p *ReverseFlowPoller) PollOnce(ctx context.Context) bool {
	if !p.IsAvailable(ctx) {
		return false
	}
	if !p.engineRunning() {
		p.directory.RefreshCredentials(ctx)
	}
	go p.dispatch.RunPullPass(ctx)
	return true
}
