package plugins

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/credbroker/pkg/credential"
)

// fakeAkeylessClient is a test double for AkeylessClient.
type fakeAkeylessClient struct {
	secrets map[string]string
	auths   int
	authErr error
	ttl     time.Duration
}

func newFakeAkeylessClient() *fakeAkeylessClient {
	return &fakeAkeylessClient{
		secrets: make(map[string]string),
		ttl:     time.Hour,
	}
}

func (f *fakeAkeylessClient) Authenticate(ctx context.Context) (string, time.Duration, error) {
	if f.authErr != nil {
		return "", 0, f.authErr
	}
	f.auths++
	return "token", f.ttl, nil
}

func (f *fakeAkeylessClient) GetSecret(ctx context.Context, token, path string) (string, error) {
	value, ok := f.secrets[path]
	if !ok {
		return "", errors.New("secret not found")
	}
	return value, nil
}

func (f *fakeAkeylessClient) SetSecret(ctx context.Context, token, path, value string) error {
	f.secrets[path] = value
	return nil
}

func TestAkeylessPushAndPull(t *testing.T) {
	t.Parallel()

	client := newFakeAkeylessClient()
	plugin := NewAkeylessPlugin("ak", "/broker", client)

	err := plugin.Push(context.Background(), testAccount(), []byte("pw"), credential.KindPassword)
	require.NoError(t, err)
	assert.Equal(t, "pw", client.secrets["/broker/db1/app/password"])

	value, err := plugin.Pull(context.Background(), testAccount(), credential.KindPassword)
	require.NoError(t, err)
	assert.Equal(t, []byte("pw"), value)
}

func TestAkeylessTokenCachedAcrossOperations(t *testing.T) {
	t.Parallel()

	client := newFakeAkeylessClient()
	plugin := NewAkeylessPlugin("ak", "", client)

	require.NoError(t, plugin.Push(context.Background(), testAccount(), []byte("pw"), credential.KindPassword))
	_, err := plugin.Pull(context.Background(), testAccount(), credential.KindPassword)
	require.NoError(t, err)

	assert.Equal(t, 1, client.auths, "token is reused until it expires")
}

func TestAkeylessExpiredTokenReauthenticates(t *testing.T) {
	t.Parallel()

	client := newFakeAkeylessClient()
	client.ttl = -time.Minute
	plugin := NewAkeylessPlugin("ak", "", client)

	require.NoError(t, plugin.Push(context.Background(), testAccount(), []byte("pw"), credential.KindPassword))
	require.NoError(t, plugin.Push(context.Background(), testAccount(), []byte("pw2"), credential.KindPassword))

	assert.Equal(t, 2, client.auths)
}

func TestAkeylessRefreshCredentials(t *testing.T) {
	t.Parallel()

	client := newFakeAkeylessClient()
	plugin := NewAkeylessPlugin("ak", "", client)

	require.NoError(t, plugin.Push(context.Background(), testAccount(), []byte("pw"), credential.KindPassword))
	require.NoError(t, plugin.RefreshCredentials(context.Background()))

	assert.Equal(t, 2, client.auths, "refresh drops the cached token and re-authenticates")
}

func TestAkeylessAuthFailure(t *testing.T) {
	t.Parallel()

	client := newFakeAkeylessClient()
	client.authErr = errors.New("invalid access key")
	plugin := NewAkeylessPlugin("ak", "", client)

	err := plugin.Push(context.Background(), testAccount(), []byte("pw"), credential.KindPassword)
	assert.Error(t, err)
}

func TestAkeylessFactoryRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewAkeylessPluginFactory("ak", map[string]interface{}{
		"gateway_url": "https://api.akeyless.io",
	})
	assert.Error(t, err)
}
