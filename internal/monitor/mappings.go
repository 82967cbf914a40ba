package monitor

import (
	"sort"

	"github.com/systmms/credbroker/internal/config"
	"github.com/systmms/credbroker/pkg/credential"
)

// AccountMapping routes one (asset, account) pair to a plugin. Immutable
// once loaded.
type AccountMapping struct {
	Asset    string
	Account  string
	Plugin   string
	FetchKey string
	Kind     credential.Kind
}

// MappingTable is the consistent snapshot of account mappings used by a
// running engine. The engine replaces the whole table at Start and never
// mutates it, so readers need no locking.
type MappingTable struct {
	mappings []AccountMapping
}

// NewMappingTable builds a table from configuration. Mappings with an
// unknown credential kind default to password.
func NewMappingTable(cfgs []config.MappingConfig) *MappingTable {
	mappings := make([]AccountMapping, 0, len(cfgs))
	for _, c := range cfgs {
		kind, err := credential.ParseKind(c.Kind)
		if err != nil {
			kind = credential.KindPassword
		}
		mappings = append(mappings, AccountMapping{
			Asset:    c.Asset,
			Account:  c.Account,
			Plugin:   c.Plugin,
			FetchKey: c.FetchKey,
			Kind:     kind,
		})
	}
	return &MappingTable{mappings: mappings}
}

// Len returns the number of mappings.
func (t *MappingTable) Len() int {
	return len(t.mappings)
}

// All returns the mappings in configuration order.
func (t *MappingTable) All() []AccountMapping {
	return t.mappings
}

// Match returns every mapping for an (asset, account) pair, in
// configuration order.
func (t *MappingTable) Match(asset, account string) []AccountMapping {
	var out []AccountMapping
	for _, m := range t.mappings {
		if m.Asset == asset && m.Account == account {
			out = append(out, m)
		}
	}
	return out
}

// ByPlugin returns every mapping routed to the named plugin.
func (t *MappingTable) ByPlugin(plugin string) []AccountMapping {
	var out []AccountMapping
	for _, m := range t.mappings {
		if m.Plugin == plugin {
			out = append(out, m)
		}
	}
	return out
}

// FetchKeys returns the distinct fetch keys, sorted for a stable
// subscription and pass order.
func (t *MappingTable) FetchKeys() []string {
	seen := make(map[string]struct{}, len(t.mappings))
	var keys []string
	for _, m := range t.mappings {
		if _, ok := seen[m.FetchKey]; ok {
			continue
		}
		seen[m.FetchKey] = struct{}{}
		keys = append(keys, m.FetchKey)
	}
	sort.Strings(keys)
	return keys
}

// ByFetchKey returns every mapping sharing a fetch key, in configuration
// order.
func (t *MappingTable) ByFetchKey(fetchKey string) []AccountMapping {
	var out []AccountMapping
	for _, m := range t.mappings {
		if m.FetchKey == fetchKey {
			out = append(out, m)
		}
	}
	return out
}
