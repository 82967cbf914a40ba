package config

import (
	"encoding/json"
	"os"
	"time"

	cberrors "github.com/systmms/credbroker/internal/errors"
	"github.com/systmms/credbroker/internal/logging"
	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration
type Config struct {
	Path           string
	Logger         *logging.Logger
	NonInteractive bool
	Definition     *Definition
}

// Definition represents the credbroker.yaml structure
type Definition struct {
	Version    int                     `yaml:"version"`
	Connection ConnectionConfig        `yaml:"connection"`
	Plugins    map[string]PluginConfig `yaml:"plugins,omitempty"`
	Mappings   []MappingConfig         `yaml:"mappings,omitempty"`
	Monitor    MonitorConfig           `yaml:"monitor,omitempty"`
}

// ConnectionConfig describes how the broker reaches the PAM vault.
// Monitoring refuses to start unless all four identity fields are present
// and certificate validation is enabled.
type ConnectionConfig struct {
	Address            string `yaml:"address"`
	ClientID           string `yaml:"client_id"`
	CACert             string `yaml:"ca_cert,omitempty"`
	ClientCert         string `yaml:"client_cert,omitempty"`
	ClientKey          string `yaml:"client_key,omitempty"`
	APIVersion         string `yaml:"api_version"`
	RegistrationID     string `yaml:"registration_id,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify,omitempty"`
	TimeoutMs          int    `yaml:"timeout_ms,omitempty"`
}

// Complete reports whether the connection settings carry everything needed
// to establish a listener: address, client identity, a security posture
// (client certificate or CA bundle) and a protocol version.
func (c ConnectionConfig) Complete() bool {
	if c.Address == "" || c.ClientID == "" || c.APIVersion == "" {
		return false
	}
	return c.CACert != "" || c.ClientCert != "" || c.InsecureSkipVerify
}

// Timeout returns the configured request timeout or the 30s default.
func (c ConnectionConfig) Timeout() time.Duration {
	if c.TimeoutMs > 0 {
		return time.Duration(c.TimeoutMs) * time.Millisecond
	}
	return 30 * time.Second
}

// PluginConfig holds plugin-specific configuration
type PluginConfig struct {
	Type        string                 `yaml:"type"`
	Disabled    bool                   `yaml:"disabled,omitempty"`
	ReverseFlow bool                   `yaml:"reverse_flow,omitempty"`
	Kind        string                 `yaml:"kind,omitempty"`
	TimeoutMs   int                    `yaml:"timeout_ms,omitempty"`
	Config      map[string]interface{} `yaml:",inline"`
}

// MappingConfig routes one (asset, account) pair to a plugin.
// FetchKey is the opaque handle used to retrieve the credential from the
// vault; the raw secret never appears in configuration.
type MappingConfig struct {
	Asset    string `yaml:"asset"`
	Account  string `yaml:"account"`
	Plugin   string `yaml:"plugin"`
	FetchKey string `yaml:"fetch_key"`
	Kind     string `yaml:"kind"`
}

// MonitorConfig holds tuning knobs for the monitoring engine
type MonitorConfig struct {
	PollIntervalMs  int    `yaml:"poll_interval_ms,omitempty"`
	HistoryCapacity int    `yaml:"history_capacity,omitempty"`
	StateDir        string `yaml:"state_dir,omitempty"`
}

// PollInterval returns the reverse-flow poll interval or the 30s default.
func (m MonitorConfig) PollInterval() time.Duration {
	if m.PollIntervalMs > 0 {
		return time.Duration(m.PollIntervalMs) * time.Millisecond
	}
	return 30 * time.Second
}

// Capacity returns the event history capacity or the 10000 default.
func (m MonitorConfig) Capacity() int {
	if m.HistoryCapacity > 0 {
		return m.HistoryCapacity
	}
	return 10000
}

// Load reads and parses the credbroker.yaml file
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return cberrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Create a credbroker.yaml or pass --config",
			}
		}
		return cberrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cberrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters",
		}
	}

	// Schema validation runs on the JSON form of the document.
	jsonData, err := json.Marshal(raw)
	if err == nil {
		if verr := validateSchema(jsonData); verr != nil {
			return verr
		}
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return cberrors.ConfigError{
			Message:    "invalid configuration structure",
			Suggestion: "Compare your file against the documented credbroker.yaml layout",
		}
	}

	if def.Version != 0 {
		return cberrors.ConfigError{
			Field:      "version",
			Value:      def.Version,
			Message:    "unsupported configuration version",
			Suggestion: "Set 'version: 0' at the top of your credbroker.yaml file",
		}
	}

	c.Definition = &def
	return nil
}

// GetPlugin returns the configuration for a plugin
func (c *Config) GetPlugin(name string) (PluginConfig, error) {
	if c.Definition == nil {
		return PluginConfig{}, cberrors.UserError{
			Message:    "Configuration not loaded",
			Suggestion: "This is an internal error. Please report it",
		}
	}

	plugin, ok := c.Definition.Plugins[name]
	if !ok {
		return PluginConfig{}, cberrors.ConfigError{
			Field:      "plugin",
			Value:      name,
			Message:    "plugin not found",
			Suggestion: "Check your credbroker.yaml for configured plugins",
		}
	}
	return plugin, nil
}
