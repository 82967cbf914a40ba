package plugins

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/systmms/credbroker/internal/config"
	"github.com/systmms/credbroker/internal/logging"
	"github.com/systmms/credbroker/pkg/credential"
)

// Factory creates a plugin instance from configuration.
type Factory func(name string, config map[string]interface{}) (Plugin, error)

// Directory manages plugin creation and binding resolution.
type Directory struct {
	factories map[string]Factory
	bindings  map[string]*Binding
	logger    *logging.Logger
	mu        sync.RWMutex
}

// NewDirectory creates a plugin directory with the built-in adapters
// registered.
func NewDirectory(logger *logging.Logger) *Directory {
	d := &Directory{
		factories: make(map[string]Factory),
		bindings:  make(map[string]*Binding),
		logger:    logger,
	}

	d.RegisterFactory("aws.secretsmanager", NewAWSSecretsManagerPluginFactory)
	d.RegisterFactory("aws.ssm", NewAWSSSMPluginFactory)
	d.RegisterFactory("azure.keyvault", NewAzureKeyVaultPluginFactory)
	d.RegisterFactory("gcp.secretmanager", NewGCPSecretManagerPluginFactory)
	d.RegisterFactory("hashicorp.vault", NewHashiVaultPluginFactory)
	d.RegisterFactory("akeyless", NewAkeylessPluginFactory)
	d.RegisterFactory("keyring", NewKeyringPluginFactory)
	d.RegisterFactory("sql", NewSQLPluginFactory)

	return d
}

// RegisterFactory registers a plugin factory for a given type.
func (d *Directory) RegisterFactory(pluginType string, factory Factory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.factories[pluginType] = factory
}

// SupportedTypes returns the sorted list of registered plugin types.
func (d *Directory) SupportedTypes() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	types := make([]string, 0, len(d.factories))
	for t := range d.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// LoadFromConfig constructs a binding for every configured plugin. A plugin
// that fails to construct is recorded as an unloaded binding rather than
// aborting the load; dispatch passes report it per mapping.
func (d *Directory) LoadFromConfig(def *config.Definition) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.bindings = make(map[string]*Binding)
	for name, cfg := range def.Plugins {
		d.bindings[name] = d.buildBinding(name, cfg)
	}
}

func (d *Directory) buildBinding(name string, cfg config.PluginConfig) *Binding {
	binding := &Binding{
		Name:               name,
		Disabled:           cfg.Disabled,
		ReverseFlowEnabled: cfg.ReverseFlow,
	}

	kind, err := credential.ParseKind(cfg.Kind)
	if err != nil {
		kind = credential.KindPassword
	}
	binding.Kind = kind

	factory, exists := d.factories[cfg.Type]
	if !exists {
		d.logger.Error("Unknown plugin type '%s' for plugin '%s'", cfg.Type, name)
		return binding
	}

	plugin, err := factory(name, cfg.Config)
	if err != nil {
		d.logger.Error("Failed to load plugin '%s': %v", name, err)
		return binding
	}

	binding.Plugin = plugin
	binding.Loaded = true
	_, binding.SupportsReverseFlow = plugin.(Puller)
	return binding
}

// Resolve returns the binding for a plugin name.
func (d *Directory) Resolve(name string) (*Binding, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	binding, ok := d.bindings[name]
	return binding, ok
}

// Bindings returns all bindings, sorted by name for stable iteration.
func (d *Directory) Bindings() []*Binding {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.bindings))
	for name := range d.bindings {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*Binding, 0, len(names))
	for _, name := range names {
		out = append(out, d.bindings[name])
	}
	return out
}

// RefreshCredentials asks every loaded plugin that caches authentication
// material to refresh it. Failures are logged and do not abort; a plugin
// with stale credentials will surface the problem as a per-mapping outcome
// during the next pass.
func (d *Directory) RefreshCredentials(ctx context.Context) {
	for _, binding := range d.Bindings() {
		if !binding.Loaded {
			continue
		}
		refresher, ok := binding.Plugin.(CredentialRefresher)
		if !ok {
			continue
		}
		if err := refresher.RefreshCredentials(ctx); err != nil {
			d.logger.Warn("Credential refresh failed for plugin '%s': %v", binding.Name, err)
		}
	}
}

// SetBinding installs a binding directly. Used by tests and by callers that
// construct plugins outside the factory path.
func (d *Directory) SetBinding(binding *Binding) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bindings[binding.Name] = binding
}

// configString extracts a string value from an inline plugin config map.
func configString(cfg map[string]interface{}, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}

// configBool extracts a bool value from an inline plugin config map.
func configBool(cfg map[string]interface{}, key string) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return false
}

// requireConfig returns an error naming the plugin when a required key is
// missing.
func requireConfig(cfg map[string]interface{}, key, pluginType string) (string, error) {
	v := configString(cfg, key)
	if v == "" {
		return "", fmt.Errorf("missing required '%s' field for %s plugin", key, pluginType)
	}
	return v, nil
}
