package plugins

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/systmms/credbroker/pkg/credential"
)

// fakeKeyring is an in-memory test double for KeyringClient.
type fakeKeyring struct {
	entries map[string]string
}

func newFakeKeyring() *fakeKeyring {
	return &fakeKeyring{entries: make(map[string]string)}
}

func (f *fakeKeyring) Set(service, user, password string) error {
	f.entries[service+"|"+user] = password
	return nil
}

func (f *fakeKeyring) Get(service, user string) (string, error) {
	value, ok := f.entries[service+"|"+user]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return value, nil
}

func TestKeyringPushAndPull(t *testing.T) {
	t.Parallel()

	client := newFakeKeyring()
	plugin := NewKeyringPlugin("kr", "credbroker", client)

	err := plugin.Push(context.Background(), testAccount(), []byte("pw"), credential.KindPassword)
	require.NoError(t, err)
	assert.Equal(t, "pw", client.entries["credbroker|db1/app/password"])

	value, err := plugin.Pull(context.Background(), testAccount(), credential.KindPassword)
	require.NoError(t, err)
	assert.Equal(t, []byte("pw"), value)
}

func TestKeyringPullMissing(t *testing.T) {
	t.Parallel()

	plugin := NewKeyringPlugin("kr", "credbroker", newFakeKeyring())

	_, err := plugin.Pull(context.Background(), testAccount(), credential.KindPassword)
	assert.Error(t, err)
}

func TestKeyringFactoryDefaultsService(t *testing.T) {
	t.Parallel()

	plugin, err := NewKeyringPluginFactory("kr", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "credbroker", plugin.(*KeyringPlugin).service)
}
