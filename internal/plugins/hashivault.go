package plugins

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/systmms/credbroker/pkg/credential"
)

// HashiVaultPlugin propagates credentials into a HashiCorp Vault KV v2
// mount over the HTTP API.
type HashiVaultPlugin struct {
	name       string
	address    string
	mount      string
	namespace  string
	token      string
	httpClient *http.Client
}

// NewHashiVaultPluginFactory creates the hashicorp.vault factory.
func NewHashiVaultPluginFactory(name string, cfg map[string]interface{}) (Plugin, error) {
	address, err := requireConfig(cfg, "address", "hashicorp.vault")
	if err != nil {
		return nil, err
	}

	token := configString(cfg, "token")
	if token == "" {
		token = os.Getenv("VAULT_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("no vault token found in config or VAULT_TOKEN environment variable")
	}

	mount := configString(cfg, "mount")
	if mount == "" {
		mount = "secret"
	}

	client := &http.Client{Timeout: 30 * time.Second}
	if configBool(cfg, "tls_skip_verify") {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &HashiVaultPlugin{
		name:       name,
		address:    strings.TrimSuffix(address, "/"),
		mount:      mount,
		namespace:  configString(cfg, "namespace"),
		token:      token,
		httpClient: client,
	}, nil
}

// Name returns the plugin type identifier.
func (p *HashiVaultPlugin) Name() string {
	return "hashicorp.vault"
}

func (p *HashiVaultPlugin) dataURL(account credential.Account) string {
	return fmt.Sprintf("%s/v1/%s/data/%s/%s", p.address, p.mount, account.Asset, account.Name)
}

func (p *HashiVaultPlugin) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("X-Vault-Token", p.token)
	if p.namespace != "" {
		req.Header.Set("X-Vault-Namespace", p.namespace)
	}
	return p.httpClient.Do(req)
}

// Push writes the credential as a KV v2 secret keyed by kind.
func (p *HashiVaultPlugin) Push(ctx context.Context, account credential.Account, value []byte, kind credential.Kind) error {
	payload := map[string]interface{}{
		"data": map[string]string{string(kind): string(value)},
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal secret payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.dataURL(account), bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("vault returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Pull retrieves the store-side credential for reverse flow.
func (p *HashiVaultPlugin) Pull(ctx context.Context, account credential.Account, kind credential.Kind) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.dataURL(account), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("secret not found for %s", account)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vault returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Data struct {
			Data map[string]string `json:"data"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	value, ok := response.Data.Data[string(kind)]
	if !ok {
		return nil, fmt.Errorf("secret for %s has no %s entry", account, kind)
	}
	return []byte(value), nil
}
