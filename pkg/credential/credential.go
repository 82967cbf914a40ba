// Package credential defines the shared vocabulary of the broker: credential
// kinds, account identities, and fetch keys.
//
// A fetch key is an opaque handle used to retrieve a credential from the PAM
// vault without embedding the raw secret in configuration. The kind
// determines which push/pull operation and payload shape applies on the
// plugin side.
package credential

import "fmt"

// Kind categorizes the payload shape and semantics of a secret.
type Kind string

const (
	// KindPassword is an account password.
	KindPassword Kind = "password"
	// KindSSHKey is a private SSH key.
	KindSSHKey Kind = "sshkey"
	// KindAPIKey is an API key set.
	KindAPIKey Kind = "apikey"
)

// ParseKind converts a configuration string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindPassword, KindSSHKey, KindAPIKey:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown credential kind %q", s)
}

// Account identifies a vault-managed account on an asset.
type Account struct {
	Asset string
	Name  string
}

// String returns the asset-qualified account identity.
func (a Account) String() string {
	return a.Asset + "/" + a.Name
}
