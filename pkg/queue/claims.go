package queue

import (
	"path/filepath"
	"sort"
	"sync"
	"time"

	"hive/pkg/protocol"
)

// ClaimStore is the durable map of work item -> holding agent. Claiming is
// an atomic test-and-set against the backing file; at most one live claim
// exists per key. The store re-reads the file on every operation.
type ClaimStore struct {
	path string

	// mu serializes read-modify-write cycles within this process. Claims
	// are single-writer-per-file; cross-process coordination is out of
	// scope.
	mu sync.Mutex

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// NewClaimStore creates a claim store backed by claims.json under
// sessionDir. The file is created lazily on first mutation.
func NewClaimStore(sessionDir string) *ClaimStore {
	return &ClaimStore{
		path:    claimsPath(sessionDir),
		nowFunc: time.Now,
	}
}

func claimsPath(sessionDir string) string {
	return filepath.Join(sessionDir, protocol.ClaimsFile)
}

// load reads the full claim set. A missing or corrupt file yields an empty
// set.
func (s *ClaimStore) load() (map[string]protocol.Claim, error) {
	claims := make(map[string]protocol.Claim)
	if _, err := readJSON(s.path, &claims); err != nil {
		return nil, err
	}
	if claims == nil {
		claims = make(map[string]protocol.Claim)
	}
	return claims, nil
}

// Claim attempts to claim (projectNumber, issueNumber) for agentID. It
// returns true and persists the claim iff no live claim exists for that
// key. A held key returns false with no side effects since contention is a
// normal scheduling outcome, not an error.
func (s *ClaimStore) Claim(projectNumber, issueNumber, agentID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	claims, err := s.load()
	if err != nil {
		return false, err
	}

	key := protocol.ClaimKey(projectNumber, issueNumber)
	if _, held := claims[key]; held {
		return false, nil
	}

	claims[key] = protocol.Claim{
		AgentID:       agentID,
		ProjectNumber: projectNumber,
		IssueNumber:   issueNumber,
		ClaimedAt:     s.nowFunc(),
	}
	if err := writeJSON(s.path, claims); err != nil {
		return false, err
	}
	return true, nil
}

// Release removes the claim for (projectNumber, issueNumber). Releasing a
// claim that does not exist returns a ClaimNotFoundError; masking a
// double release would hide a real bug in the caller.
func (s *ClaimStore) Release(projectNumber, issueNumber int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	claims, err := s.load()
	if err != nil {
		return err
	}

	key := protocol.ClaimKey(projectNumber, issueNumber)
	if _, held := claims[key]; !held {
		return &protocol.ClaimNotFoundError{ProjectNumber: projectNumber, IssueNumber: issueNumber}
	}

	delete(claims, key)
	return writeJSON(s.path, claims)
}

// Get returns the live claim for the key, or ok=false if none exists.
func (s *ClaimStore) Get(projectNumber, issueNumber int) (protocol.Claim, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	claims, err := s.load()
	if err != nil {
		return protocol.Claim{}, false, err
	}
	c, ok := claims[protocol.ClaimKey(projectNumber, issueNumber)]
	return c, ok, nil
}

// ListActive returns every live claim, ordered by key for stable output.
func (s *ClaimStore) ListActive() ([]protocol.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	claims, err := s.load()
	if err != nil {
		return nil, err
	}
	return sortClaims(claims), nil
}

// ListByAgent returns every live claim held by agentID.
func (s *ClaimStore) ListByAgent(agentID int) ([]protocol.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	claims, err := s.load()
	if err != nil {
		return nil, err
	}
	filtered := make(map[string]protocol.Claim)
	for k, c := range claims {
		if c.AgentID == agentID {
			filtered[k] = c
		}
	}
	return sortClaims(filtered), nil
}

// ListStale returns every live claim older than the staleness threshold.
// This is a read-time classification only; recovery is the emergency
// controls' job.
func (s *ClaimStore) ListStale() ([]protocol.Claim, error) {
	all, err := s.ListActive()
	if err != nil {
		return nil, err
	}
	now := s.nowFunc()
	var stale []protocol.Claim
	for _, c := range all {
		if c.Stale(now) {
			stale = append(stale, c)
		}
	}
	return stale, nil
}

// ClearAll removes every claim.
func (s *ClaimStore) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.path, map[string]protocol.Claim{})
}

func sortClaims(claims map[string]protocol.Claim) []protocol.Claim {
	out := make([]protocol.Claim, 0, len(claims))
	for _, c := range claims {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProjectNumber != out[j].ProjectNumber {
			return out[i].ProjectNumber < out[j].ProjectNumber
		}
		return out[i].IssueNumber < out[j].IssueNumber
	})
	return out
}
