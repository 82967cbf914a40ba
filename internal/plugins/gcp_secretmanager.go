package plugins

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/systmms/credbroker/pkg/credential"
)

// GCPSecretManagerClientAPI is the narrow Secret Manager surface the plugin
// uses. The SDK client is wrapped so tests can substitute a fake.
type GCPSecretManagerClientAPI interface {
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest) (*secretmanagerpb.SecretVersion, error)
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error)
	CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest) (*secretmanagerpb.Secret, error)
}

// sdkSecretManagerClient adapts *secretmanager.Client to the narrow API.
type sdkSecretManagerClient struct {
	client *secretmanager.Client
}

func (c *sdkSecretManagerClient) AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest) (*secretmanagerpb.SecretVersion, error) {
	return c.client.AddSecretVersion(ctx, req)
}

func (c *sdkSecretManagerClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	return c.client.AccessSecretVersion(ctx, req)
}

func (c *sdkSecretManagerClient) CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest) (*secretmanagerpb.Secret, error) {
	return c.client.CreateSecret(ctx, req)
}

// GCPSecretManagerPlugin propagates credentials into Google Cloud Secret
// Manager.
type GCPSecretManagerPlugin struct {
	name      string
	client    GCPSecretManagerClientAPI
	projectID string
}

// NewGCPSecretManagerPluginFactory creates the gcp.secretmanager factory.
func NewGCPSecretManagerPluginFactory(name string, cfg map[string]interface{}) (Plugin, error) {
	return NewGCPSecretManagerPlugin(name, cfg, nil)
}

// NewGCPSecretManagerPlugin creates a new Secret Manager plugin. A non-nil
// client overrides SDK construction (for testing).
func NewGCPSecretManagerPlugin(name string, cfg map[string]interface{}, client GCPSecretManagerClientAPI) (*GCPSecretManagerPlugin, error) {
	projectID, err := requireConfig(cfg, "project_id", "gcp.secretmanager")
	if err != nil {
		return nil, err
	}

	p := &GCPSecretManagerPlugin{
		name:      name,
		client:    client,
		projectID: projectID,
	}

	if p.client == nil {
		var clientOptions []option.ClientOption
		if keyPath := configString(cfg, "service_account_key_path"); keyPath != "" {
			clientOptions = append(clientOptions, option.WithCredentialsFile(keyPath))
		}
		sdkClient, err := secretmanager.NewClient(context.Background(), clientOptions...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
		}
		p.client = &sdkSecretManagerClient{client: sdkClient}
	}

	return p, nil
}

// Name returns the plugin type identifier.
func (p *GCPSecretManagerPlugin) Name() string {
	return "gcp.secretmanager"
}

// secretID flattens an account identity into a Secret Manager secret ID.
// Secret IDs allow letters, digits, dashes and underscores.
func (p *GCPSecretManagerPlugin) secretID(account credential.Account, kind credential.Kind) string {
	raw := fmt.Sprintf("%s_%s_%s", account.Asset, account.Name, kind)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, raw)
}

func (p *GCPSecretManagerPlugin) secretResource(account credential.Account, kind credential.Kind) string {
	return fmt.Sprintf("projects/%s/secrets/%s", p.projectID, p.secretID(account, kind))
}

// Push adds a new secret version, creating the secret on first use.
func (p *GCPSecretManagerPlugin) Push(ctx context.Context, account credential.Account, value []byte, kind credential.Kind) error {
	parent := p.secretResource(account, kind)

	_, err := p.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  parent,
		Payload: &secretmanagerpb.SecretPayload{Data: value},
	})
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to add secret version: %w", err)
	}

	_, err = p.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   fmt.Sprintf("projects/%s", p.projectID),
		SecretId: p.secretID(account, kind),
		Secret: &secretmanagerpb.Secret{
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{
					Automatic: &secretmanagerpb.Replication_Automatic{},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create secret: %w", err)
	}

	_, err = p.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  parent,
		Payload: &secretmanagerpb.SecretPayload{Data: value},
	})
	if err != nil {
		return fmt.Errorf("failed to add secret version: %w", err)
	}
	return nil
}

// Pull retrieves the latest secret version for reverse flow.
func (p *GCPSecretManagerPlugin) Pull(ctx context.Context, account credential.Account, kind credential.Kind) ([]byte, error) {
	resp, err := p.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: p.secretResource(account, kind) + "/versions/latest",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access secret version: %w", err)
	}
	if resp.Payload == nil {
		return nil, fmt.Errorf("secret %s has no payload", p.secretID(account, kind))
	}
	return resp.Payload.Data, nil
}
