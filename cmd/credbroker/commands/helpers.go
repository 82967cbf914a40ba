package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultAdminAddr is where serve listens and the other subcommands connect.
const defaultAdminAddr = "127.0.0.1:9465"

type statusResponse struct {
	Running           bool `json:"running"`
	ListenerActive    bool `json:"listener_active"`
	ReverseFlowActive bool `json:"reverse_flow_active"`
}

type eventResponse struct {
	Description string    `json:"description"`
	Outcome     string    `json:"outcome"`
	Failure     string    `json:"failure,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type pollResponse struct {
	Scheduled bool `json:"scheduled"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// adminClient talks to a running serve daemon.
type adminClient struct {
	addr       string
	httpClient *http.Client
}

func newAdminClient(addr string) *adminClient {
	return &adminClient{
		addr:       addr,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *adminClient) url(path string) string {
	return "http://" + c.addr + path
}

// call performs one request and decodes the JSON response into out. A
// non-2xx response carrying an error payload becomes that error.
func (c *adminClient) call(method, path string, out interface{}) error {
	req, err := http.NewRequest(method, c.url(path), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach broker daemon at %s (is 'credbroker serve' running?): %w", c.addr, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("broker daemon returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func formatFlag(active bool) string {
	if active {
		return "✅ active"
	}
	return "⚪ inactive"
}
