package plugins

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/systmms/credbroker/pkg/credential"
)

// AzureKeyVaultClientAPI defines the Azure Key Vault operations used by the
// plugin. This allows for mocking in tests.
type AzureKeyVaultClientAPI interface {
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// AzureKeyVaultPlugin propagates credentials into an Azure Key Vault.
type AzureKeyVaultPlugin struct {
	name     string
	client   AzureKeyVaultClientAPI
	vaultURL string
}

// NewAzureKeyVaultPluginFactory creates the azure.keyvault factory.
func NewAzureKeyVaultPluginFactory(name string, cfg map[string]interface{}) (Plugin, error) {
	return NewAzureKeyVaultPlugin(name, cfg, nil)
}

// NewAzureKeyVaultPlugin creates a new Key Vault plugin. A non-nil client
// overrides SDK construction (for testing).
func NewAzureKeyVaultPlugin(name string, cfg map[string]interface{}, client AzureKeyVaultClientAPI) (*AzureKeyVaultPlugin, error) {
	vaultURL, err := requireConfig(cfg, "vault_url", "azure.keyvault")
	if err != nil {
		return nil, err
	}

	p := &AzureKeyVaultPlugin{
		name:     name,
		client:   client,
		vaultURL: vaultURL,
	}

	if p.client == nil {
		cred, err := azureCredential(cfg)
		if err != nil {
			return nil, err
		}
		sdkClient, err := azsecrets.NewClient(vaultURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Key Vault client: %w", err)
		}
		p.client = sdkClient
	}

	return p, nil
}

// azureCredential builds a token credential from plugin config, preferring
// an explicit service principal and falling back to managed identity.
func azureCredential(cfg map[string]interface{}) (azcore.TokenCredential, error) {
	tenantID := configString(cfg, "tenant_id")
	clientID := configString(cfg, "client_id")
	clientSecret := configString(cfg, "client_secret")

	if tenantID != "" && clientID != "" && clientSecret != "" {
		cred, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client secret credential: %w", err)
		}
		return cred, nil
	}

	opts := &azidentity.ManagedIdentityCredentialOptions{}
	if userAssignedID := configString(cfg, "user_assigned_identity_id"); userAssignedID != "" {
		opts.ID = azidentity.ClientID(userAssignedID)
	}
	cred, err := azidentity.NewManagedIdentityCredential(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create managed identity credential: %w", err)
	}
	return cred, nil
}

// Name returns the plugin type identifier.
func (p *AzureKeyVaultPlugin) Name() string {
	return "azure.keyvault"
}

// secretName flattens an account identity into a Key Vault secret name.
// Key Vault only allows alphanumerics and dashes.
func (p *AzureKeyVaultPlugin) secretName(account credential.Account, kind credential.Kind) string {
	raw := fmt.Sprintf("%s-%s-%s", account.Asset, account.Name, kind)
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

// Push writes the credential as a new secret version.
func (p *AzureKeyVaultPlugin) Push(ctx context.Context, account credential.Account, value []byte, kind credential.Kind) error {
	secretValue := string(value)
	_, err := p.client.SetSecret(ctx, p.secretName(account, kind), azsecrets.SetSecretParameters{
		Value: &secretValue,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to set secret: %w", err)
	}
	return nil
}

// Pull retrieves the current secret version for reverse flow.
func (p *AzureKeyVaultPlugin) Pull(ctx context.Context, account credential.Account, kind credential.Kind) ([]byte, error) {
	resp, err := p.client.GetSecret(ctx, p.secretName(account, kind), "", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}
	if resp.Value == nil {
		return nil, fmt.Errorf("secret %s has no value", p.secretName(account, kind))
	}
	return []byte(*resp.Value), nil
}
