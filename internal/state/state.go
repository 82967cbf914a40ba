// Package state persists the broker's last-known monitoring state across
// restarts. Only the enabled flag is persisted; the event history is
// memory-only by design and resets with the process.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MonitorState is the persisted record of whether monitoring was enabled.
type MonitorState struct {
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store reads and writes the persisted monitor state.
type Store struct {
	baseDir string
	mu      sync.Mutex
}

// NewStore creates a file-backed state store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// DefaultStateDir returns the default state directory.
func DefaultStateDir() string {
	if testDir := os.Getenv("CREDBROKER_STATE_DIR"); testDir != "" {
		return testDir
	}

	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "credbroker")
	}

	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "credbroker")
	}

	return filepath.Join(os.TempDir(), "credbroker")
}

func (s *Store) stateFile() string {
	return filepath.Join(s.baseDir, "monitor-state.json")
}

// SaveEnabled records whether monitoring is enabled.
func (s *Store) SaveEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.baseDir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(MonitorState{
		Enabled:   enabled,
		UpdatedAt: time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal monitor state: %w", err)
	}

	if err := os.WriteFile(s.stateFile(), data, 0600); err != nil {
		return fmt.Errorf("failed to write monitor state: %w", err)
	}
	return nil
}

// LoadEnabled returns the persisted enabled flag. A missing state file is
// not an error; it reads as disabled.
func (s *Store) LoadEnabled() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.stateFile())
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read monitor state: %w", err)
	}

	var st MonitorState
	if err := json.Unmarshal(data, &st); err != nil {
		return false, fmt.Errorf("failed to unmarshal monitor state: %w", err)
	}
	return st.Enabled, nil
}
