package plugins

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/credbroker/internal/config"
	"github.com/systmms/credbroker/internal/logging"
	"github.com/systmms/credbroker/pkg/credential"
)

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, false)
}

// stubPlugin is a minimal push-only plugin for registry tests.
type stubPlugin struct {
	name string
}

func (p *stubPlugin) Name() string { return p.name }

func (p *stubPlugin) Push(ctx context.Context, account credential.Account, value []byte, kind credential.Kind) error {
	return nil
}

// stubPullerPlugin additionally supports reverse flow.
type stubPullerPlugin struct {
	stubPlugin
	refreshed  int
	refreshErr error
}

func (p *stubPullerPlugin) Pull(ctx context.Context, account credential.Account, kind credential.Kind) ([]byte, error) {
	return []byte("pw"), nil
}

func (p *stubPullerPlugin) RefreshCredentials(ctx context.Context) error {
	p.refreshed++
	return p.refreshErr
}

func TestDirectorySupportedTypes(t *testing.T) {
	t.Parallel()

	d := NewDirectory(testLogger())
	types := d.SupportedTypes()

	assert.Contains(t, types, "aws.secretsmanager")
	assert.Contains(t, types, "aws.ssm")
	assert.Contains(t, types, "azure.keyvault")
	assert.Contains(t, types, "gcp.secretmanager")
	assert.Contains(t, types, "hashicorp.vault")
	assert.Contains(t, types, "akeyless")
	assert.Contains(t, types, "keyring")
	assert.Contains(t, types, "sql")
}

func TestLoadFromConfigUnknownTypeLeavesUnloadedBinding(t *testing.T) {
	t.Parallel()

	d := NewDirectory(testLogger())
	d.LoadFromConfig(&config.Definition{
		Plugins: map[string]config.PluginConfig{
			"mystery": {Type: "does.not.exist"},
		},
	})

	binding, ok := d.Resolve("mystery")
	require.True(t, ok)
	assert.False(t, binding.Loaded)
}

func TestLoadFromConfigFactoryFailureLeavesUnloadedBinding(t *testing.T) {
	t.Parallel()

	d := NewDirectory(testLogger())
	d.LoadFromConfig(&config.Definition{
		Plugins: map[string]config.PluginConfig{
			// Missing required vault_url.
			"kv": {Type: "azure.keyvault"},
		},
	})

	binding, ok := d.Resolve("kv")
	require.True(t, ok)
	assert.False(t, binding.Loaded)
}

func TestLoadFromConfigDetectsReverseFlowSupport(t *testing.T) {
	t.Parallel()

	d := NewDirectory(testLogger())
	d.RegisterFactory("stub.push", func(name string, cfg map[string]interface{}) (Plugin, error) {
		return &stubPlugin{name: "stub.push"}, nil
	})
	d.RegisterFactory("stub.pull", func(name string, cfg map[string]interface{}) (Plugin, error) {
		return &stubPullerPlugin{stubPlugin: stubPlugin{name: "stub.pull"}}, nil
	})

	d.LoadFromConfig(&config.Definition{
		Plugins: map[string]config.PluginConfig{
			"push-only": {Type: "stub.push", ReverseFlow: true},
			"puller":    {Type: "stub.pull", ReverseFlow: true, Kind: "sshkey"},
		},
	})

	pushOnly, ok := d.Resolve("push-only")
	require.True(t, ok)
	assert.True(t, pushOnly.Loaded)
	assert.False(t, pushOnly.SupportsReverseFlow)
	assert.False(t, pushOnly.ReverseActive(), "declared reverse flow without Pull support stays inactive")

	puller, ok := d.Resolve("puller")
	require.True(t, ok)
	assert.True(t, puller.SupportsReverseFlow)
	assert.True(t, puller.ReverseActive())
	assert.Equal(t, credential.KindSSHKey, puller.Kind)
}

func TestBindingsSortedByName(t *testing.T) {
	t.Parallel()

	d := NewDirectory(testLogger())
	d.SetBinding(&Binding{Name: "zeta"})
	d.SetBinding(&Binding{Name: "alpha"})
	d.SetBinding(&Binding{Name: "mid"})

	bindings := d.Bindings()
	require.Len(t, bindings, 3)
	assert.Equal(t, "alpha", bindings[0].Name)
	assert.Equal(t, "mid", bindings[1].Name)
	assert.Equal(t, "zeta", bindings[2].Name)
}

func TestRefreshCredentialsToleratesFailure(t *testing.T) {
	t.Parallel()

	failing := &stubPullerPlugin{stubPlugin: stubPlugin{name: "a"}, refreshErr: errors.New("expired")}
	healthy := &stubPullerPlugin{stubPlugin: stubPlugin{name: "b"}}

	d := NewDirectory(testLogger())
	d.SetBinding(&Binding{Name: "a", Plugin: failing, Loaded: true})
	d.SetBinding(&Binding{Name: "b", Plugin: healthy, Loaded: true})
	d.SetBinding(&Binding{Name: "c", Loaded: false})

	d.RefreshCredentials(context.Background())

	assert.Equal(t, 1, failing.refreshed)
	assert.Equal(t, 1, healthy.refreshed, "refresh continues past failures")
}

func TestReverseActive(t *testing.T) {
	t.Parallel()

	b := &Binding{Loaded: true, SupportsReverseFlow: true, ReverseFlowEnabled: true}
	assert.True(t, b.ReverseActive())

	b.Disabled = true
	assert.False(t, b.ReverseActive())

	b.Disabled = false
	b.ReverseFlowEnabled = false
	assert.False(t, b.ReverseActive())
}

func TestConfigHelpers(t *testing.T) {
	t.Parallel()

	cfg := map[string]interface{}{
		"str":  "value",
		"flag": true,
		"num":  3,
	}

	assert.Equal(t, "value", configString(cfg, "str"))
	assert.Empty(t, configString(cfg, "num"), "non-string values read as empty")
	assert.True(t, configBool(cfg, "flag"))
	assert.False(t, configBool(cfg, "missing"))

	_, err := requireConfig(cfg, "missing", "test")
	assert.Error(t, err)

	v, err := requireConfig(cfg, "str", "test")
	require.NoError(t, err)
	assert.Equal(t, "value", v)
}
