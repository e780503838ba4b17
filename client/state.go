package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// QuotaState is the device-local cache of monthly usage. It is advisory
// only: the server ledger is authoritative, and the cache exists so the UI
// can show remaining time without a round trip.
type QuotaState struct {
	Year        int     `json:"year"`
	Month       int     `json:"month"`
	UsedSeconds float64 `json:"usedSeconds"`
}

// QuotaStore persists QuotaState as a JSON file.
type QuotaStore struct {
	path string
}

func NewQuotaStore(path string) *QuotaStore {
	return &QuotaStore{path: path}
}

// Load reads the cached state, resetting it when the stored month is not
// the current one. A missing or corrupt file reads as a fresh month.
func (s *QuotaStore) Load(now time.Time) (*QuotaState, error) {
	fresh := &QuotaState{Year: now.Year(), Month: int(now.Month())}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fresh, nil
		}
		return fresh, err
	}

	var state QuotaState
	if err := json.Unmarshal(data, &state); err != nil {
		return fresh, nil
	}

	if state.Year != now.Year() || state.Month != int(now.Month()) {
		return fresh, nil
	}
	return &state, nil
}

func (s *QuotaStore) Save(state *QuotaState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write quota state: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Merge reconciles local usage with the server's figure for the same month.
// Usage only moves upward: whichever side has seen more consumption wins, so
// a stale local cache can never resurrect spent quota.
func (state *QuotaState) Merge(serverUsedSeconds float64) {
	if serverUsedSeconds > state.UsedSeconds {
		state.UsedSeconds = serverUsedSeconds
	}
}

// AddUsage records local consumption immediately after a recording ends,
// ahead of the server acknowledging the Consume call.
func (state *QuotaState) AddUsage(seconds float64) {
	if seconds > 0 {
		state.UsedSeconds += seconds
	}
}
