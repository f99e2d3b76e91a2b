// Package overlay persists the user-maintained per-client state
// (inactivity justifications and contact-log entries) as a JSON file.
// The analytics pipeline never writes overlays; it only merges them onto
// aggregates before scoring and reproduces them unchanged.
package overlay

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/slelog/crm-dashboard-go/internal/domain"
)

// Store is a mutex-guarded id → overlay map with JSON file persistence.
// An empty path disables persistence (memory-only, useful in tests).
type Store struct {
	mu   sync.RWMutex
	path string
	data map[string]domain.Overlay
}

// NewStore creates a store, loading existing overlays from path when the
// file exists. A missing or unreadable file starts empty, not failed.
func NewStore(path string) *Store {
	s := &Store{
		path: path,
		data: make(map[string]domain.Overlay),
	}

	if path != "" {
		if raw, err := os.ReadFile(path); err == nil {
			var loaded map[string]domain.Overlay
			if json.Unmarshal(raw, &loaded) == nil && loaded != nil {
				s.data = loaded
			}
		}
	}
	return s
}

// Get returns the overlay for one client.
func (s *Store) Get(clientID string) (domain.Overlay, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.data[clientID]
	return o, ok
}

// All returns a copy of every stored overlay, keyed by client id.
func (s *Store) All() map[string]domain.Overlay {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.Overlay, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// SaveJustification sets (or replaces) the justification for a client.
func (s *Store) SaveJustification(clientID string, j domain.Justification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.data[clientID]
	o.Justification = &j
	s.data[clientID] = o
	return s.persistLocked()
}

// AppendAction prepends a contact-log entry (newest first, matching how
// the log is displayed).
func (s *Store) AppendAction(clientID string, a domain.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.data[clientID]
	o.Actions = append([]domain.Action{a}, o.Actions...)
	s.data[clientID] = o
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
