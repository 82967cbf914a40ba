package monitor

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/systmms/credbroker/internal/logging"
	"github.com/systmms/credbroker/internal/plugins"
	"github.com/systmms/credbroker/pkg/credential"
)

// PluginDirectory resolves plugin bindings by name.
type PluginDirectory interface {
	Resolve(name string) (*plugins.Binding, bool)
	Bindings() []*plugins.Binding
	RefreshCredentials(ctx context.Context)
}

// DispatchEngine converts a change trigger into per-mapping outcomes.
// Exactly one dispatch pass runs at a time: the pass lock serializes push
// notifications, full passes and pull passes, which keeps each pass's
// fetch cache private and the comparison cache race-free.
type DispatchEngine struct {
	vault     VaultConnection
	directory PluginDirectory
	compare   ComparisonCache
	history   *EventHistoryBuffer
	logger    *logging.Logger
	metrics   *Metrics

	// passMu is the pass-exclusivity lock. The mapping table is only
	// replaced while holding it, so an in-flight pass always sees a
	// consistent snapshot.
	passMu sync.Mutex
	table  *MappingTable
}

// NewDispatchEngine creates a dispatch engine over the given collaborators.
func NewDispatchEngine(vault VaultConnection, directory PluginDirectory, compare ComparisonCache, history *EventHistoryBuffer, logger *logging.Logger, metrics *Metrics) *DispatchEngine {
	return &DispatchEngine{
		vault:     vault,
		directory: directory,
		compare:   compare,
		history:   history,
		logger:    logger,
		metrics:   metrics,
	}
}

// SetTable installs the mapping snapshot for subsequent passes. Passing nil
// disables dispatch. Blocks until any in-flight pass completes.
func (d *DispatchEngine) SetTable(table *MappingTable) {
	d.passMu.Lock()
	d.table = table
	d.passMu.Unlock()
}

// OnChangeNotification handles one vault change event for an (asset,
// account) pair. Unmapped accounts are ignored silently. When mappings for
// the pair disagree on the fetch key, the anomaly is logged and the pass
// proceeds with the first key.
func (d *DispatchEngine) OnChangeNotification(ctx context.Context, asset, account string) {
	d.passMu.Lock()
	defer d.passMu.Unlock()

	if d.table == nil {
		return
	}
	matches := d.table.Match(asset, account)
	if len(matches) == 0 {
		return
	}

	key := matches[0].FetchKey
	sharing := matches[:0:0]
	for _, m := range matches {
		if m.FetchKey != key {
			d.logger.Warn("Mismatched fetch keys for %s/%s: using '%s', ignoring '%s'", asset, account, key, m.FetchKey)
			d.metrics.RecordFetchKeyMismatch()
			continue
		}
		sharing = append(sharing, m)
	}

	d.metrics.RecordPass("notification")
	defer d.observePass("notification", time.Now())
	cache := NewFetchCache()
	defer cache.Destroy()
	d.runKey(ctx, cache, key, sharing)
}

// RunFullPass sweeps the entire mapping table, grouped by fetch key. Used
// for the initial pass at Start.
func (d *DispatchEngine) RunFullPass(ctx context.Context) {
	d.passMu.Lock()
	defer d.passMu.Unlock()

	if d.table == nil {
		return
	}

	d.metrics.RecordPass("full")
	defer d.observePass("full", time.Now())
	cache := NewFetchCache()
	defer cache.Destroy()
	for _, key := range d.table.FetchKeys() {
		d.runKey(ctx, cache, key, d.table.ByFetchKey(key))
	}
}

// runKey processes the mappings sharing one fetch key. Every per-mapping
// failure is recorded and contained; nothing here aborts the pass. Callers
// must hold passMu.
func (d *DispatchEngine) runKey(ctx context.Context, cache *FetchCache, key string, mappings []AccountMapping) {
	for _, m := range mappings {
		binding, ok := d.directory.Resolve(m.Plugin)
		if !ok || !binding.Loaded || binding.Disabled {
			d.record(m.Plugin, m.Kind, OutcomeFailure, FailurePluginUnavailable,
				"plugin '%s' unavailable for %s/%s (%s)", m.Plugin, m.Asset, m.Account, m.Kind)
			continue
		}

		value, cached := cache.Get(key, m.Kind)
		if !cached {
			// A fetch that already failed this pass is not retried; the
			// mapping still gets its own failure outcome.
			if cache.Failed(key, m.Kind) {
				d.record(m.Plugin, m.Kind, OutcomeFailure, FailureCredentialFetch,
					"credential fetch failed for %s/%s (%s) via plugin '%s'", m.Asset, m.Account, m.Kind, m.Plugin)
				continue
			}
			fetched, err := d.vault.FetchCredential(ctx, key, m.Kind)
			if err != nil || len(fetched) == 0 {
				d.metrics.RecordFetch("failure")
				cache.MarkFailed(key, m.Kind)
				d.record(m.Plugin, m.Kind, OutcomeFailure, FailureCredentialFetch,
					"credential fetch failed for %s/%s (%s) via plugin '%s'", m.Asset, m.Account, m.Kind, m.Plugin)
				continue
			}
			d.metrics.RecordFetch("success")
			cache.Put(key, m.Kind, fetched)
			value = fetched
		}

		// Reverse-flow bindings receive the vault value into comparison
		// storage instead of a push. API keys have no reverse flow and
		// are always pushed forward.
		if binding.ReverseActive() && m.Kind != credential.KindAPIKey {
			d.compare.Put(value, m.Asset, m.Account, string(m.Kind))
			d.record(m.Plugin, m.Kind, OutcomeSuccess, FailureNone,
				"stored %s for %s/%s for comparison with plugin '%s'", m.Kind, m.Asset, m.Account, m.Plugin)
			continue
		}

		account := credential.Account{Asset: m.Asset, Name: m.Account}
		if err := d.safePush(ctx, binding.Plugin, account, value, m.Kind); err != nil {
			d.record(m.Plugin, m.Kind, OutcomeFailure, FailurePluginOperation,
				"push to plugin '%s' failed for %s/%s (%s): %v", m.Plugin, m.Asset, m.Account, m.Kind, err)
			continue
		}
		d.record(m.Plugin, m.Kind, OutcomeSuccess, FailureNone,
			"pushed %s for %s/%s to plugin '%s'", m.Kind, m.Asset, m.Account, m.Plugin)
	}
}

// RunPullPass pulls plugin-originated credentials for every reverse-active
// binding and compares them against the vault-side comparison entries.
func (d *DispatchEngine) RunPullPass(ctx context.Context) {
	d.passMu.Lock()
	defer d.passMu.Unlock()

	if d.table == nil {
		return
	}

	d.metrics.RecordPass("poll")
	defer d.observePass("poll", time.Now())
	for _, binding := range d.directory.Bindings() {
		if !binding.ReverseActive() {
			continue
		}
		puller, ok := binding.Plugin.(plugins.Puller)
		if !ok {
			continue
		}
		for _, m := range d.table.ByPlugin(binding.Name) {
			if m.Kind == credential.KindAPIKey {
				continue
			}
			account := credential.Account{Asset: m.Asset, Name: m.Account}
			value, err := d.safePull(ctx, puller, account, m.Kind)
			if err != nil {
				d.record(m.Plugin, m.Kind, OutcomeFailure, FailurePluginOperation,
					"pull from plugin '%s' failed for %s/%s (%s): %v", m.Plugin, m.Asset, m.Account, m.Kind, err)
				continue
			}

			previous, known := d.compare.Get(m.Asset, m.Account, string(m.Kind))
			changed := !known || !bytes.Equal(previous, value)
			d.compare.Put(value, m.Asset, m.Account, string(m.Kind))
			if changed {
				d.record(m.Plugin, m.Kind, OutcomeSuccess, FailureNone,
					"pulled changed %s for %s/%s from plugin '%s'", m.Kind, m.Asset, m.Account, m.Plugin)
			} else {
				d.record(m.Plugin, m.Kind, OutcomeSuccess, FailureNone,
					"pulled %s for %s/%s from plugin '%s', unchanged", m.Kind, m.Asset, m.Account, m.Plugin)
			}
		}
	}
}

// safePush calls Push, converting a plugin panic into an error so a
// misbehaving adapter can never crash the engine.
func (d *DispatchEngine) safePush(ctx context.Context, p plugins.Plugin, account credential.Account, value []byte, kind credential.Kind) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin panicked: %v", r)
		}
	}()
	return p.Push(ctx, account, value, kind)
}

// safePull calls Pull with the same panic containment as safePush.
func (d *DispatchEngine) safePull(ctx context.Context, p plugins.Puller, account credential.Account, kind credential.Kind) (value []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("plugin panicked: %v", r)
		}
	}()
	return p.Pull(ctx, account, kind)
}

func (d *DispatchEngine) observePass(trigger string, started time.Time) {
	d.metrics.ObservePassDuration(trigger, time.Since(started))
}

// record appends an outcome to the history and mirrors it to the log and
// metrics.
func (d *DispatchEngine) record(plugin string, kind credential.Kind, outcome Outcome, failure FailureKind, format string, args ...interface{}) {
	description := fmt.Sprintf(format, args...)
	d.metrics.RecordOutcome(plugin, string(kind), outcome)
	d.history.Append(Event{
		Description: description,
		Outcome:     outcome,
		Failure:     failure,
		Timestamp:   time.Now(),
	})
	if outcome == OutcomeFailure {
		d.logger.Warn("%s", description)
	} else {
		d.logger.Debug("%s", description)
	}
}
