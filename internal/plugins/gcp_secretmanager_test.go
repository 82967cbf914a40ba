package plugins

import (
	"context"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/systmms/credbroker/pkg/credential"
)

// fakeGCPSecretManagerClient is a test double for GCPSecretManagerClientAPI.
type fakeGCPSecretManagerClient struct {
	secrets  map[string][]byte
	versions int
	creates  int
	addErr   error
}

func newFakeGCPSecretManagerClient() *fakeGCPSecretManagerClient {
	return &fakeGCPSecretManagerClient{secrets: make(map[string][]byte)}
}

func (f *fakeGCPSecretManagerClient) AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest) (*secretmanagerpb.SecretVersion, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	if _, ok := f.secrets[req.Parent]; !ok {
		return nil, status.Error(codes.NotFound, "secret not found")
	}
	f.versions++
	f.secrets[req.Parent] = req.Payload.Data
	return &secretmanagerpb.SecretVersion{
		Name:       req.Parent + "/versions/1",
		CreateTime: timestamppb.Now(),
	}, nil
}

func (f *fakeGCPSecretManagerClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	parent := req.Name[:len(req.Name)-len("/versions/latest")]
	data, ok := f.secrets[parent]
	if !ok {
		return nil, status.Error(codes.NotFound, "secret not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.Name,
		Payload: &secretmanagerpb.SecretPayload{Data: data},
	}, nil
}

func (f *fakeGCPSecretManagerClient) CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest) (*secretmanagerpb.Secret, error) {
	f.creates++
	name := req.Parent + "/secrets/" + req.SecretId
	f.secrets[name] = nil
	return &secretmanagerpb.Secret{
		Name:       name,
		CreateTime: timestamppb.Now(),
	}, nil
}

func gcpConfig() map[string]interface{} {
	return map[string]interface{}{"project_id": "broker-prod"}
}

func TestGCPSecretManagerPushCreatesOnFirstUse(t *testing.T) {
	t.Parallel()

	client := newFakeGCPSecretManagerClient()
	plugin, err := NewGCPSecretManagerPlugin("gcp", gcpConfig(), client)
	require.NoError(t, err)

	err = plugin.Push(context.Background(), testAccount(), []byte("pw"), credential.KindPassword)
	require.NoError(t, err)
	assert.Equal(t, 1, client.creates)
	assert.Equal(t, []byte("pw"), client.secrets["projects/broker-prod/secrets/db1_app_password"])

	require.NoError(t, plugin.Push(context.Background(), testAccount(), []byte("pw2"), credential.KindPassword))
	assert.Equal(t, 1, client.creates, "existing secret only gains a version")
	assert.Equal(t, 2, client.versions)
}

func TestGCPSecretManagerPushOtherErrorPropagates(t *testing.T) {
	t.Parallel()

	client := newFakeGCPSecretManagerClient()
	client.addErr = status.Error(codes.PermissionDenied, "denied")
	plugin, err := NewGCPSecretManagerPlugin("gcp", gcpConfig(), client)
	require.NoError(t, err)

	err = plugin.Push(context.Background(), testAccount(), []byte("pw"), credential.KindPassword)
	require.Error(t, err)
	assert.Zero(t, client.creates, "no create fallback on permission errors")
}

func TestGCPSecretManagerPull(t *testing.T) {
	t.Parallel()

	client := newFakeGCPSecretManagerClient()
	client.secrets["projects/broker-prod/secrets/db1_app_password"] = []byte("pw")
	plugin, err := NewGCPSecretManagerPlugin("gcp", gcpConfig(), client)
	require.NoError(t, err)

	value, err := plugin.Pull(context.Background(), testAccount(), credential.KindPassword)
	require.NoError(t, err)
	assert.Equal(t, []byte("pw"), value)
}

func TestGCPSecretManagerPullMissing(t *testing.T) {
	t.Parallel()

	plugin, err := NewGCPSecretManagerPlugin("gcp", gcpConfig(), newFakeGCPSecretManagerClient())
	require.NoError(t, err)

	_, err = plugin.Pull(context.Background(), testAccount(), credential.KindPassword)
	assert.Error(t, err)
}

func TestGCPSecretManagerSecretIDSanitized(t *testing.T) {
	t.Parallel()

	plugin, err := NewGCPSecretManagerPlugin("gcp", gcpConfig(), newFakeGCPSecretManagerClient())
	require.NoError(t, err)

	account := credential.Account{Asset: "db.example/1", Name: "svc account"}
	id := plugin.secretID(account, credential.KindPassword)
	assert.Equal(t, "db_example_1_svc_account_password", id)
}

func TestGCPSecretManagerRequiresProjectID(t *testing.T) {
	t.Parallel()

	_, err := NewGCPSecretManagerPlugin("gcp", map[string]interface{}{}, newFakeGCPSecretManagerClient())
	assert.Error(t, err)
}
