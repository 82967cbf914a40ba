// Package plugins hosts the secret-store adapters the broker propagates
// credentials into, and the directory that resolves them by name.
//
// Each adapter is a thin wrapper over a vendor SDK. The monitoring core
// depends only on the interfaces in this file, never on concrete vendor
// types.
package plugins

import (
	"context"

	"github.com/systmms/credbroker/pkg/credential"
)

// Plugin is the minimal capability every secret-store adapter provides:
// accepting a credential pushed from the PAM vault.
//
// Implementations must be thread-safe and must never log credential values.
type Plugin interface {
	// Name returns the adapter's stable, lowercase type identifier,
	// e.g. "aws.secretsmanager" or "azure.keyvault".
	Name() string

	// Push writes a credential for the given account into the store.
	Push(ctx context.Context, account credential.Account, value []byte, kind credential.Kind) error
}

// Puller is implemented by plugins whose store can originate credentials.
// A plugin that implements Puller supports reverse flow: the broker pulls
// the store-side value back for comparison instead of pushing.
type Puller interface {
	// Pull retrieves the store-side credential for the given account.
	Pull(ctx context.Context, account credential.Account, kind credential.Kind) ([]byte, error)
}

// CredentialRefresher is implemented by plugins that cache authentication
// material (tokens, sessions) which may go stale while monitoring is
// stopped. The engine refreshes these before starting a pass.
type CredentialRefresher interface {
	RefreshCredentials(ctx context.Context) error
}

// Binding is the broker's read-only view of one configured plugin instance.
// The monitoring core looks bindings up by name and never mutates them.
type Binding struct {
	Name                string
	Plugin              Plugin
	Loaded              bool
	Disabled            bool
	Kind                credential.Kind
	SupportsReverseFlow bool
	ReverseFlowEnabled  bool
}

// ReverseActive reports whether pull flow applies to this binding right now.
func (b *Binding) ReverseActive() bool {
	return b.Loaded && !b.Disabled && b.SupportsReverseFlow && b.ReverseFlowEnabled
}
