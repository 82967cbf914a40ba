package plugins

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/systmms/credbroker/pkg/credential"
)

// KeyringClient abstracts the OS keyring for testing.
type KeyringClient interface {
	Set(service, user, password string) error
	Get(service, user string) (string, error)
}

// osKeyring delegates to the platform secret service via go-keyring.
type osKeyring struct{}

func (osKeyring) Set(service, user, password string) error {
	return keyring.Set(service, user, password)
}

func (osKeyring) Get(service, user string) (string, error) {
	return keyring.Get(service, user)
}

// KeyringPlugin propagates credentials into the local OS keyring
// (Secret Service on Linux, Keychain on macOS, Credential Manager on
// Windows). Useful for workstation-local DevOps targets.
type KeyringPlugin struct {
	name    string
	service string
	client  KeyringClient
}

// NewKeyringPluginFactory creates the keyring factory.
func NewKeyringPluginFactory(name string, cfg map[string]interface{}) (Plugin, error) {
	service := configString(cfg, "service")
	if service == "" {
		service = "credbroker"
	}
	return NewKeyringPlugin(name, service, osKeyring{}), nil
}

// NewKeyringPlugin creates a keyring plugin with the given client.
// Exposed so tests can inject a fake client.
func NewKeyringPlugin(name, service string, client KeyringClient) *KeyringPlugin {
	return &KeyringPlugin{
		name:    name,
		service: service,
		client:  client,
	}
}

// Name returns the plugin type identifier.
func (p *KeyringPlugin) Name() string {
	return "keyring"
}

func (p *KeyringPlugin) user(account credential.Account, kind credential.Kind) string {
	return fmt.Sprintf("%s/%s/%s", account.Asset, account.Name, kind)
}

// Push stores the credential under the configured keyring service.
func (p *KeyringPlugin) Push(ctx context.Context, account credential.Account, value []byte, kind credential.Kind) error {
	if err := p.client.Set(p.service, p.user(account, kind), string(value)); err != nil {
		return fmt.Errorf("failed to store keyring entry: %w", err)
	}
	return nil
}

// Pull retrieves the store-side credential for reverse flow.
func (p *KeyringPlugin) Pull(ctx context.Context, account credential.Account, kind credential.Kind) ([]byte, error) {
	value, err := p.client.Get(p.service, p.user(account, kind))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, fmt.Errorf("no keyring entry for %s", account)
		}
		return nil, fmt.Errorf("failed to read keyring entry: %w", err)
	}
	return []byte(value), nil
}
