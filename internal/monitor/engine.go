package monitor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/systmms/credbroker/internal/config"
	cberrors "github.com/systmms/credbroker/internal/errors"
	"github.com/systmms/credbroker/internal/logging"
)

// Engine owns the Stopped/Running lifecycle: the vault event subscription,
// the mapping snapshot and the reverse-flow poller. All lifecycle
// transitions are serialized by a single mutex; dispatch passes run under
// their own pass-exclusivity lock inside DispatchEngine.
type Engine struct {
	def       *config.Definition
	vault     VaultConnection
	directory PluginDirectory
	compare   ComparisonCache
	store     StateStore
	logger    *logging.Logger
	metrics   *Metrics

	history  *EventHistoryBuffer
	dispatch *DispatchEngine
	poller   *ReverseFlowPoller

	// running is atomic so the poller loop can read it without taking
	// the lifecycle mutex while Stop holds it.
	running atomic.Bool

	mu     sync.Mutex
	sub    Subscription
	table  *MappingTable
	cancel context.CancelFunc
}

// NewEngine wires the monitoring core from its collaborators.
func NewEngine(def *config.Definition, vault VaultConnection, directory PluginDirectory, compare ComparisonCache, store StateStore, logger *logging.Logger) *Engine {
	metrics := NewMetrics()
	history := NewEventHistoryBuffer(def.Monitor.Capacity())
	dispatch := NewDispatchEngine(vault, directory, compare, history, logger, metrics)

	e := &Engine{
		def:       def,
		vault:     vault,
		directory: directory,
		compare:   compare,
		store:     store,
		logger:    logger,
		metrics:   metrics,
		history:   history,
		dispatch:  dispatch,
	}
	e.poller = NewReverseFlowPoller(vault, dispatch, directory, logger, metrics,
		def.Connection.RegistrationID, def.Monitor.PollInterval(), e.IsRunning)
	return e
}

// IsRunning reports whether the engine is in the Running state.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// Start transitions Stopped to Running: it validates the connection
// posture, refreshes plugin credentials, subscribes to change events for
// every mapped fetch key, runs one full initial pass and starts the poller
// when reverse flow is permitted.
//
// An incomplete connection configuration is a logged no-op, not an error.
// Starting while already running, an insecure connection posture and an
// empty mapping set all fail without side effects.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running.Load() {
		return cberrors.ErrAlreadyRunning
	}

	conn := e.def.Connection
	if !conn.Complete() {
		e.logger.Info("Connection configuration incomplete; monitoring not started")
		return nil
	}
	if conn.InsecureSkipVerify {
		return cberrors.ErrInsecureConnection
	}

	// Plugin-held vault credentials may be stale from a previous run.
	e.directory.RefreshCredentials(ctx)
	e.compare.Clear()

	table := NewMappingTable(e.def.Mappings)
	if table.Len() == 0 {
		return cberrors.ErrNoAccountMappings
	}

	// The run context outlives the caller's: the subscription and poller
	// stop on Stop, not when the Start caller returns.
	runCtx, cancel := context.WithCancel(context.Background())

	sub, err := e.vault.Subscribe(runCtx, table.FetchKeys(), func(asset, account string) {
		e.dispatch.OnChangeNotification(runCtx, asset, account)
	})
	if err != nil {
		cancel()
		return cberrors.UserError{
			Message:    "Failed to subscribe to vault change events",
			Details:    err.Error(),
			Suggestion: "Check the vault address and your network connectivity",
			Err:        err,
		}
	}

	e.table = table
	e.sub = sub
	e.cancel = cancel
	e.dispatch.SetTable(table)

	// Initial full pass so state is consistent even if credentials
	// changed while monitoring was stopped.
	e.dispatch.RunFullPass(runCtx)

	if e.poller.IsAvailable(runCtx) {
		e.poller.Start(runCtx)
	}

	e.running.Store(true)
	if err := e.store.SaveEnabled(true); err != nil {
		e.logger.Warn("Failed to persist monitoring state: %v", err)
	}
	e.logger.Info("Monitoring started with %d account mappings", table.Len())
	return nil
}

// Stop transitions to Stopped. Idempotent; every teardown step is
// best-effort and the engine always ends up Stopped.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	wasRunning := e.running.Load()
	e.running.Store(false)

	e.poller.Stop()

	if e.sub != nil {
		e.sub.Stop()
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.vault.ClearSessionCache()

	e.dispatch.SetTable(nil)
	e.compare.Clear()
	e.table = nil
	e.sub = nil
	e.cancel = nil

	if wasRunning {
		if err := e.store.SaveEnabled(false); err != nil {
			e.logger.Warn("Failed to persist monitoring state: %v", err)
		}
		e.logger.Info("Monitoring stopped")
	}
}

// Status derives the externally visible state from the live handles.
func (e *Engine) Status() State {
	e.mu.Lock()
	listener := e.sub != nil
	e.mu.Unlock()

	return State{
		ListenerActive:    listener,
		ReverseFlowActive: e.poller.Active(),
	}
}

// RecentEvents returns the newest count audit events, most-recent-first.
func (e *Engine) RecentEvents(count int) []Event {
	return e.history.Recent(count)
}

// TriggerReversePollOnce schedules one asynchronous pull pass if reverse
// flow is available, reporting whether a pass was scheduled. When the
// engine is stopped, a mapping snapshot is built on demand so the pass has
// accounts to pull for.
func (e *Engine) TriggerReversePollOnce(ctx context.Context) bool {
	e.mu.Lock()
	if !e.running.Load() && e.table == nil {
		table := NewMappingTable(e.def.Mappings)
		if table.Len() > 0 {
			e.table = table
			e.dispatch.SetTable(table)
		}
	}
	e.mu.Unlock()

	return e.poller.PollOnce(ctx)
}

// RestoreLastKnownState starts monitoring if it was enabled before the
// last shutdown. Called once at process start; failures are logged, never
// fatal to startup.
func (e *Engine) RestoreLastKnownState(ctx context.Context) {
	enabled, err := e.store.LoadEnabled()
	if err != nil {
		e.logger.Warn("Failed to read persisted monitoring state: %v", err)
		return
	}
	if !enabled {
		return
	}
	if err := e.Start(ctx); err != nil {
		e.logger.Warn("Failed to restore monitoring: %v", err)
	}
}
