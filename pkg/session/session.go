// Package session persists agent session records under the session
// directory. A session record outlives the agent goroutine that produced
// it, which is what makes orphan detection and post-crash recovery
// possible.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"hive/pkg/protocol"
)

// Manager stores one AgentRecord per agent id in sessions.json. Like the
// queue stores it re-reads the backing file on every call and replaces it
// atomically on every mutation, so fresh instances observe each other's
// writes and a corrupt file degrades to an empty record set.
type Manager struct {
	path string
	mu   sync.Mutex
}

// NewManager creates a session manager rooted at sessionDir.
func NewManager(sessionDir string) *Manager {
	return &Manager{path: filepath.Join(sessionDir, protocol.SessionsFile)}
}

func (m *Manager) load() (map[int]protocol.AgentRecord, error) {
	records := make(map[int]protocol.AgentRecord)
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return records, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", m.path, err)
	}
	if err := json.Unmarshal(data, &records); err != nil {
		// Corrupt backing file; self-heal to empty.
		return make(map[int]protocol.AgentRecord), nil
	}
	return records, nil
}

func (m *Manager) store(records map[int]protocol.AgentRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, protocol.SessionsFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", m.path, err)
	}
	return nil
}

// Save writes (or overwrites) the record for its agent id.
func (m *Manager) Save(rec protocol.AgentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.load()
	if err != nil {
		return err
	}
	records[rec.ID] = rec
	return m.store(records)
}

// Get returns the record for agentID, or a SessionNotFoundError.
func (m *Manager) Get(agentID int) (protocol.AgentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.load()
	if err != nil {
		return protocol.AgentRecord{}, err
	}
	rec, ok := records[agentID]
	if !ok {
		return protocol.AgentRecord{}, &protocol.SessionNotFoundError{AgentID: agentID}
	}
	return rec, nil
}

// Update applies fn to the record for agentID and persists the result.
// It fails loudly if no record exists.
func (m *Manager) Update(agentID int, fn func(*protocol.AgentRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.load()
	if err != nil {
		return err
	}
	rec, ok := records[agentID]
	if !ok {
		return &protocol.SessionNotFoundError{AgentID: agentID}
	}
	fn(&rec)
	rec.ID = agentID // the id is the key; fn must not reassign it
	records[agentID] = rec
	return m.store(records)
}

// Delete removes the record for agentID entirely, failing loudly if it
// does not exist.
func (m *Manager) Delete(agentID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.load()
	if err != nil {
		return err
	}
	if _, ok := records[agentID]; !ok {
		return &protocol.SessionNotFoundError{AgentID: agentID}
	}
	delete(records, agentID)
	return m.store(records)
}

// List returns every persisted record ordered by agent id.
func (m *Manager) List() ([]protocol.AgentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.load()
	if err != nil {
		return nil, err
	}
	out := make([]protocol.AgentRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListWithErrors returns every record carrying a recorded error.
func (m *Manager) ListWithErrors() ([]protocol.AgentRecord, error) {
	all, err := m.List()
	if err != nil {
		return nil, err
	}
	var out []protocol.AgentRecord
	for _, rec := range all {
		if rec.LastError != "" || rec.ErrorCount > 0 {
			out = append(out, rec)
		}
	}
	return out, nil
}
