// Package vaultclient implements the HTTPS client for the PAM vault: the
// change-event subscription, credential fetch by opaque key, and the
// registration lookup that gates reverse flow.
package vaultclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/systmms/credbroker/internal/config"
	"github.com/systmms/credbroker/internal/logging"
	"github.com/systmms/credbroker/pkg/credential"
)

// ErrNotFound indicates the vault has no record for the requested resource.
var ErrNotFound = errors.New("not found in vault")

// ChangeHandler receives one credential-change notification.
type ChangeHandler func(asset, account string)

// HTTPClient talks to the PAM vault REST API. All requests carry the
// client identity header and run over the TLS posture built from the
// connection configuration.
type HTTPClient struct {
	cfg        config.ConnectionConfig
	logger     *logging.Logger
	httpClient *http.Client

	mu    sync.Mutex
	token string
}

// NewHTTPClient builds a vault client from connection settings. Certificate
// material is loaded eagerly so misconfiguration surfaces at Start rather
// than mid-pass.
func NewHTTPClient(cfg config.ConnectionConfig, logger *logging.Logger) (*HTTPClient, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.CACert != "" {
		pem, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CACert)
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.ClientCert != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return &HTTPClient{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout(),
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		},
	}, nil
}

func (c *HTTPClient) apiURL(parts ...string) string {
	base := strings.TrimSuffix(c.cfg.Address, "/")
	return base + "/api/" + c.cfg.APIVersion + "/" + strings.Join(parts, "/")
}

func (c *HTTPClient) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("X-Client-Id", c.cfg.ClientID)
	c.mu.Lock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.Unlock()
	return c.httpClient.Do(req)
}

// FetchCredential retrieves the credential bytes behind a fetch key. A
// missing or empty credential returns ErrNotFound.
func (c *HTTPClient) FetchCredential(ctx context.Context, fetchKey string, kind credential.Kind) ([]byte, error) {
	u := c.apiURL("credentials", url.PathEscape(fetchKey)) + "?kind=" + url.QueryEscape(string(kind))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch credential: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vault returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode credential response: %w", err)
	}
	if response.Value == "" {
		return nil, ErrNotFound
	}
	return []byte(response.Value), nil
}

// CheckRegistrationBidirectional reports whether the broker's vault
// registration currently permits reverse flow. Lookup errors distinguish
// missing registrations from transport failures via ErrNotFound.
func (c *HTTPClient) CheckRegistrationBidirectional(ctx context.Context, registrationID string) (bool, error) {
	u := c.apiURL("registrations", url.PathEscape(registrationID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return false, fmt.Errorf("failed to look up registration: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return false, fmt.Errorf("registration %s: %w", registrationID, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("vault returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Bidirectional bool `json:"bidirectional"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return false, fmt.Errorf("failed to decode registration response: %w", err)
	}
	return response.Bidirectional, nil
}

// ClearSessionCache drops any cached vault session token so the next
// request authenticates fresh.
func (c *HTTPClient) ClearSessionCache() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// Subscription is the live handle for one change-event stream. Stopping it
// cancels the long-poll loop and waits for the goroutine to exit.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop cancels the subscription. Safe to call more than once.
func (s *Subscription) Stop() {
	s.cancel()
	<-s.done
}

// Subscribe opens a change-event stream for the given fetch keys and invokes
// onChange for every notification. The stream is a long-poll loop; transport
// errors are logged and retried with a short backoff rather than tearing the
// subscription down.
func (c *HTTPClient) Subscribe(ctx context.Context, fetchKeys []string, onChange ChangeHandler) (*Subscription, error) {
	if len(fetchKeys) == 0 {
		return nil, fmt.Errorf("no fetch keys to subscribe to")
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		for {
			if err := c.pollEvents(ctx, fetchKeys, onChange); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Warn("Vault event poll failed, retrying: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
			}
		}
	}()

	return sub, nil
}

// pollEvents performs one long-poll round and dispatches any events it
// returns. An empty result (poll timeout on the vault side) is not an error.
func (c *HTTPClient) pollEvents(ctx context.Context, fetchKeys []string, onChange ChangeHandler) error {
	u := c.apiURL("events") + "?keys=" + url.QueryEscape(strings.Join(fetchKeys, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("vault returned status %d: %s", resp.StatusCode, string(body))
	}

	var events []struct {
		Asset   string `json:"asset"`
		Account string `json:"account"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return fmt.Errorf("failed to decode event batch: %w", err)
	}

	for _, ev := range events {
		onChange(ev.Asset, ev.Account)
	}
	return nil
}
