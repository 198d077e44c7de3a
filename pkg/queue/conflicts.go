package queue

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"hive/pkg/protocol"

	"github.com/google/uuid"
)

// ConflictQueue is the durable queue of unresolved conflicts raised by
// agents. It shares the claim store's durability contract (atomic replace,
// corrupt-file self-heal, no cross-call caching) but models a different
// lifecycle: pending -> resolving -> resolved.
type ConflictQueue struct {
	path string
	mu   sync.Mutex

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
	// idFunc allows tests to control generated conflict IDs.
	idFunc func() string
}

// NewConflictQueue creates a conflict queue backed by conflicts.json under
// sessionDir.
func NewConflictQueue(sessionDir string) *ConflictQueue {
	return &ConflictQueue{
		path:    filepath.Join(sessionDir, protocol.ConflictsFile),
		nowFunc: time.Now,
		idFunc:  func() string { return "conflict-" + uuid.NewString() },
	}
}

func (q *ConflictQueue) load() ([]protocol.Conflict, error) {
	var conflicts []protocol.Conflict
	if _, err := readJSON(q.path, &conflicts); err != nil {
		return nil, err
	}
	return conflicts, nil
}

// Add records a new conflict. The ID and creation timestamp are generated
// here; the initial status is always pending.
func (q *ConflictQueue) Add(c protocol.Conflict) (protocol.Conflict, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	conflicts, err := q.load()
	if err != nil {
		return protocol.Conflict{}, err
	}

	c.ID = q.idFunc()
	c.Status = protocol.ConflictPending
	c.CreatedAt = q.nowFunc()

	conflicts = append(conflicts, c)
	if err := writeJSON(q.path, conflicts); err != nil {
		return protocol.Conflict{}, err
	}
	return c, nil
}

// UpdateStatus moves the conflict to status. Unknown ids and invalid
// statuses fail loudly. A resolved conflict never reverts to an earlier
// status.
func (q *ConflictQueue) UpdateStatus(id string, status protocol.ConflictStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid conflict status %q", status)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	conflicts, err := q.load()
	if err != nil {
		return err
	}
	for i := range conflicts {
		if conflicts[i].ID != id {
			continue
		}
		if conflicts[i].Status == protocol.ConflictResolved && status != protocol.ConflictResolved {
			return fmt.Errorf("conflict %s is resolved and cannot revert to %q", id, status)
		}
		conflicts[i].Status = status
		return writeJSON(q.path, conflicts)
	}
	return &protocol.ConflictNotFoundError{ID: id}
}

// Remove deletes the conflict with the given id, failing loudly if it is
// unknown.
func (q *ConflictQueue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	conflicts, err := q.load()
	if err != nil {
		return err
	}
	for i := range conflicts {
		if conflicts[i].ID == id {
			conflicts = append(conflicts[:i], conflicts[i+1:]...)
			return writeJSON(q.path, conflicts)
		}
	}
	return &protocol.ConflictNotFoundError{ID: id}
}

// GetByID returns the conflict with the given id.
func (q *ConflictQueue) GetByID(id string) (protocol.Conflict, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	conflicts, err := q.load()
	if err != nil {
		return protocol.Conflict{}, err
	}
	for _, c := range conflicts {
		if c.ID == id {
			return c, nil
		}
	}
	return protocol.Conflict{}, &protocol.ConflictNotFoundError{ID: id}
}

// ListAll returns every recorded conflict, oldest first.
func (q *ConflictQueue) ListAll() ([]protocol.Conflict, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	conflicts, err := q.load()
	if err != nil {
		return nil, err
	}
	sortConflicts(conflicts)
	return conflicts, nil
}

// ListByStatus returns every conflict currently in status.
func (q *ConflictQueue) ListByStatus(status protocol.ConflictStatus) ([]protocol.Conflict, error) {
	all, err := q.ListAll()
	if err != nil {
		return nil, err
	}
	var out []protocol.Conflict
	for _, c := range all {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

// ListByAgent returns every conflict raised by agentID.
func (q *ConflictQueue) ListByAgent(agentID int) ([]protocol.Conflict, error) {
	all, err := q.ListAll()
	if err != nil {
		return nil, err
	}
	var out []protocol.Conflict
	for _, c := range all {
		if c.AgentID == agentID {
			out = append(out, c)
		}
	}
	return out, nil
}

// ClearResolved removes every resolved conflict and returns the count
// removed. Pending and resolving entries are untouched.
func (q *ConflictQueue) ClearResolved() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	conflicts, err := q.load()
	if err != nil {
		return 0, err
	}

	kept := conflicts[:0]
	removed := 0
	for _, c := range conflicts {
		if c.Status == protocol.ConflictResolved {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := writeJSON(q.path, kept); err != nil {
		return 0, err
	}
	return removed, nil
}

// ClearAll removes every conflict regardless of status.
func (q *ConflictQueue) ClearAll() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return writeJSON(q.path, []protocol.Conflict{})
}

func sortConflicts(conflicts []protocol.Conflict) {
	sort.Slice(conflicts, func(i, j int) bool {
		if !conflicts[i].CreatedAt.Equal(conflicts[j].CreatedAt) {
			return conflicts[i].CreatedAt.Before(conflicts[j].CreatedAt)
		}
		return conflicts[i].ID < conflicts[j].ID
	})
}
