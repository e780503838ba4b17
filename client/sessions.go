package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// SessionLedger durably records analysis session IDs that were submitted but
// whose results have not been retrieved yet. After a crash or app kill the
// orchestrator replays this ledger to recover results that finished
// server-side while the app was gone.
type SessionLedger struct {
	mu      sync.Mutex
	path    string
	pending map[string]struct{}
}

func NewSessionLedger(path string) (*SessionLedger, error) {
	l := &SessionLedger{
		path:    path,
		pending: make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return l, nil
		}
		return nil, err
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		// A corrupt ledger loses its pending sessions but must not brick
		// the app. Start empty.
		return l, nil
	}
	for _, id := range ids {
		l.pending[id] = struct{}{}
	}
	return l, nil
}

// Add records a session as pending. Adding an ID that is already present is
// a no-op, so retried submissions never duplicate ledger entries.
func (l *SessionLedger) Add(sessionID string) error {
	if sessionID == "" {
		return errors.New("session id required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.pending[sessionID]; ok {
		return nil
	}
	l.pending[sessionID] = struct{}{}
	return l.persistLocked()
}

// Remove drops a session after its result was retrieved or the server
// reported it gone. Removing an absent ID is a no-op.
func (l *SessionLedger) Remove(sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.pending[sessionID]; !ok {
		return nil
	}
	delete(l.pending, sessionID)
	return l.persistLocked()
}

// ListPending returns the pending session IDs in stable order.
func (l *SessionLedger) ListPending() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]string, 0, len(l.pending))
	for id := range l.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (l *SessionLedger) persistLocked() error {
	ids := make([]string, 0, len(l.pending))
	for id := range l.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to persist session ledger: %w", err)
	}
	return os.Rename(tmp, l.path)
}
