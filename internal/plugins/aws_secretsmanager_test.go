package plugins

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/credbroker/pkg/credential"
)

// fakeSecretsManagerClient is a test double for SecretsManagerClientAPI.
type fakeSecretsManagerClient struct {
	secrets    map[string][]byte
	putErr     error
	getErr     error
	puts       int
	creates    int
	stringOnly bool
}

func newFakeSecretsManagerClient() *fakeSecretsManagerClient {
	return &fakeSecretsManagerClient{secrets: make(map[string][]byte)}
}

func (f *fakeSecretsManagerClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	value, ok := f.secrets[*params.SecretId]
	if !ok {
		return nil, &types.ResourceNotFoundException{}
	}
	if f.stringOnly {
		s := string(value)
		return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(s)}, nil
	}
	return &secretsmanager.GetSecretValueOutput{SecretBinary: value}, nil
}

func (f *fakeSecretsManagerClient) PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	if _, ok := f.secrets[*params.SecretId]; !ok {
		return nil, &types.ResourceNotFoundException{}
	}
	f.puts++
	f.secrets[*params.SecretId] = params.SecretBinary
	return &secretsmanager.PutSecretValueOutput{}, nil
}

func (f *fakeSecretsManagerClient) CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	f.creates++
	f.secrets[*params.Name] = params.SecretBinary
	return &secretsmanager.CreateSecretOutput{}, nil
}

// fakeSTSClient is a test double for STSClientAPI.
type fakeSTSClient struct {
	err   error
	calls int
}

func (f *fakeSTSClient) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &sts.GetCallerIdentityOutput{Arn: aws.String("arn:aws:iam::123456789012:role/broker")}, nil
}

func testAccount() credential.Account {
	return credential.Account{Asset: "db1", Name: "app"}
}

func TestSecretsManagerPushCreatesOnFirstUse(t *testing.T) {
	t.Parallel()

	client := newFakeSecretsManagerClient()
	plugin, err := NewAWSSecretsManagerPlugin("sm", map[string]interface{}{},
		WithSecretsManagerClient(client))
	require.NoError(t, err)

	err = plugin.Push(context.Background(), testAccount(), []byte("pw"), credential.KindPassword)
	require.NoError(t, err)
	assert.Equal(t, 1, client.creates, "missing secret is created")
	assert.Equal(t, []byte("pw"), client.secrets["db1/app/password"])

	err = plugin.Push(context.Background(), testAccount(), []byte("pw2"), credential.KindPassword)
	require.NoError(t, err)
	assert.Equal(t, 1, client.creates, "existing secret gets a new version")
	assert.Equal(t, 1, client.puts)
}

func TestSecretsManagerPushPrefix(t *testing.T) {
	t.Parallel()

	client := newFakeSecretsManagerClient()
	plugin, err := NewAWSSecretsManagerPlugin("sm", map[string]interface{}{"prefix": "prod/"},
		WithSecretsManagerClient(client))
	require.NoError(t, err)

	require.NoError(t, plugin.Push(context.Background(), testAccount(), []byte("pw"), credential.KindPassword))
	assert.Contains(t, client.secrets, "prod/db1/app/password")
}

func TestSecretsManagerPushOtherErrorPropagates(t *testing.T) {
	t.Parallel()

	client := newFakeSecretsManagerClient()
	client.putErr = errors.New("access denied")
	plugin, err := NewAWSSecretsManagerPlugin("sm", map[string]interface{}{},
		WithSecretsManagerClient(client))
	require.NoError(t, err)

	err = plugin.Push(context.Background(), testAccount(), []byte("pw"), credential.KindPassword)
	require.Error(t, err)
	assert.Zero(t, client.creates, "no create fallback for non-missing errors")
}

func TestSecretsManagerPull(t *testing.T) {
	t.Parallel()

	client := newFakeSecretsManagerClient()
	client.secrets["db1/app/password"] = []byte("pw")
	plugin, err := NewAWSSecretsManagerPlugin("sm", map[string]interface{}{},
		WithSecretsManagerClient(client))
	require.NoError(t, err)

	value, err := plugin.Pull(context.Background(), testAccount(), credential.KindPassword)
	require.NoError(t, err)
	assert.Equal(t, []byte("pw"), value)
}

func TestSecretsManagerPullSecretString(t *testing.T) {
	t.Parallel()

	client := newFakeSecretsManagerClient()
	client.secrets["db1/app/password"] = []byte("pw")
	client.stringOnly = true
	plugin, err := NewAWSSecretsManagerPlugin("sm", map[string]interface{}{},
		WithSecretsManagerClient(client))
	require.NoError(t, err)

	value, err := plugin.Pull(context.Background(), testAccount(), credential.KindPassword)
	require.NoError(t, err)
	assert.Equal(t, []byte("pw"), value)
}

func TestSecretsManagerPullMissing(t *testing.T) {
	t.Parallel()

	plugin, err := NewAWSSecretsManagerPlugin("sm", map[string]interface{}{},
		WithSecretsManagerClient(newFakeSecretsManagerClient()))
	require.NoError(t, err)

	_, err = plugin.Pull(context.Background(), testAccount(), credential.KindPassword)
	assert.Error(t, err)
}

func TestSecretsManagerRefreshCredentials(t *testing.T) {
	t.Parallel()

	stsClient := &fakeSTSClient{}
	plugin, err := NewAWSSecretsManagerPlugin("sm", map[string]interface{}{},
		WithSecretsManagerClient(newFakeSecretsManagerClient()),
		WithSTSClient(stsClient))
	require.NoError(t, err)

	require.NoError(t, plugin.RefreshCredentials(context.Background()))
	assert.Equal(t, 1, stsClient.calls)

	stsClient.err = errors.New("expired token")
	assert.Error(t, plugin.RefreshCredentials(context.Background()))
}
