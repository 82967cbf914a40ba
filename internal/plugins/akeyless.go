package plugins

import (
	"context"
	"fmt"
	"sync"
	"time"

	akeyless "github.com/akeylesslabs/akeyless-go/v3"

	"github.com/systmms/credbroker/pkg/credential"
)

// AkeylessClient abstracts the Akeyless SDK operations for testing.
type AkeylessClient interface {
	Authenticate(ctx context.Context) (token string, expiresIn time.Duration, err error)
	GetSecret(ctx context.Context, token, path string) (string, error)
	SetSecret(ctx context.Context, token, path, value string) error
}

// AkeylessPlugin propagates credentials into Akeyless.
type AkeylessPlugin struct {
	name   string
	client AkeylessClient
	prefix string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewAkeylessPluginFactory creates the akeyless factory.
func NewAkeylessPluginFactory(name string, cfg map[string]interface{}) (Plugin, error) {
	gatewayURL, err := requireConfig(cfg, "gateway_url", "akeyless")
	if err != nil {
		return nil, err
	}
	accessID, err := requireConfig(cfg, "access_id", "akeyless")
	if err != nil {
		return nil, err
	}
	accessKey, err := requireConfig(cfg, "access_key", "akeyless")
	if err != nil {
		return nil, err
	}

	client := newAkeylessSDKClient(gatewayURL, accessID, accessKey)
	return NewAkeylessPlugin(name, configString(cfg, "prefix"), client), nil
}

// NewAkeylessPlugin creates an Akeyless plugin with the given client.
// Exposed so tests can inject a fake client.
func NewAkeylessPlugin(name, prefix string, client AkeylessClient) *AkeylessPlugin {
	return &AkeylessPlugin{
		name:   name,
		client: client,
		prefix: prefix,
	}
}

// Name returns the plugin type identifier.
func (p *AkeylessPlugin) Name() string {
	return "akeyless"
}

func (p *AkeylessPlugin) secretPath(account credential.Account, kind credential.Kind) string {
	return fmt.Sprintf("%s/%s/%s/%s", p.prefix, account.Asset, account.Name, kind)
}

func (p *AkeylessPlugin) getToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	token, ttl, err := p.client.Authenticate(ctx)
	if err != nil {
		return "", err
	}
	p.token = token
	p.tokenExpiry = time.Now().Add(ttl)
	return token, nil
}

// Push writes the credential as a static secret value.
func (p *AkeylessPlugin) Push(ctx context.Context, account credential.Account, value []byte, kind credential.Kind) error {
	token, err := p.getToken(ctx)
	if err != nil {
		return fmt.Errorf("akeyless authentication failed: %w", err)
	}
	if err := p.client.SetSecret(ctx, token, p.secretPath(account, kind), string(value)); err != nil {
		return fmt.Errorf("failed to set secret: %w", err)
	}
	return nil
}

// Pull retrieves the store-side credential for reverse flow.
func (p *AkeylessPlugin) Pull(ctx context.Context, account credential.Account, kind credential.Kind) ([]byte, error) {
	token, err := p.getToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("akeyless authentication failed: %w", err)
	}
	value, err := p.client.GetSecret(ctx, token, p.secretPath(account, kind))
	if err != nil {
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}
	return []byte(value), nil
}

// RefreshCredentials drops the cached token so the next operation
// re-authenticates.
func (p *AkeylessPlugin) RefreshCredentials(ctx context.Context) error {
	p.mu.Lock()
	p.token = ""
	p.tokenExpiry = time.Time{}
	p.mu.Unlock()

	_, err := p.getToken(ctx)
	return err
}

// akeylessSDKClient implements AkeylessClient using the official SDK.
type akeylessSDKClient struct {
	apiClient *akeyless.APIClient
	accessID  string
	accessKey string
}

func newAkeylessSDKClient(gatewayURL, accessID, accessKey string) *akeylessSDKClient {
	configuration := akeyless.NewConfiguration()
	configuration.Servers = []akeyless.ServerConfiguration{
		{URL: gatewayURL},
	}

	return &akeylessSDKClient{
		apiClient: akeyless.NewAPIClient(configuration),
		accessID:  accessID,
		accessKey: accessKey,
	}
}

// Authenticate obtains an access token using API key auth.
func (c *akeylessSDKClient) Authenticate(ctx context.Context) (string, time.Duration, error) {
	authBody := akeyless.NewAuthWithDefaults()
	authBody.SetAccessId(c.accessID)
	authBody.SetAccessKey(c.accessKey)

	authRes, _, err := c.apiClient.V2Api.Auth(ctx).Body(*authBody).Execute()
	if err != nil {
		return "", 0, fmt.Errorf("api key authentication failed: %w", err)
	}

	// Akeyless tokens typically last 30 minutes; use 25 to be safe.
	return authRes.GetToken(), 25 * time.Minute, nil
}

// GetSecret retrieves a static secret value by path.
func (c *akeylessSDKClient) GetSecret(ctx context.Context, token, path string) (string, error) {
	body := akeyless.NewGetSecretValue([]string{path})
	body.SetToken(token)

	res, _, err := c.apiClient.V2Api.GetSecretValue(ctx).Body(*body).Execute()
	if err != nil {
		return "", err
	}

	value, ok := res[path]
	if !ok {
		return "", fmt.Errorf("secret not found at %s", path)
	}
	return fmt.Sprintf("%v", value), nil
}

// SetSecret updates a static secret value, creating it on first use.
func (c *akeylessSDKClient) SetSecret(ctx context.Context, token, path, value string) error {
	updateBody := akeyless.NewUpdateSecretVal(path, value)
	updateBody.SetToken(token)

	_, _, err := c.apiClient.V2Api.UpdateSecretVal(ctx).Body(*updateBody).Execute()
	if err == nil {
		return nil
	}

	createBody := akeyless.NewCreateSecret(path, value)
	createBody.SetToken(token)

	_, _, createErr := c.apiClient.V2Api.CreateSecret(ctx).Body(*createBody).Execute()
	if createErr != nil {
		return fmt.Errorf("update failed (%v) and create failed: %w", err, createErr)
	}
	return nil
}
