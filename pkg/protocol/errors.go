package protocol

import "fmt"

// ClaimNotFoundError reports a release of a claim that does not exist.
// Releasing a missing claim is a caller bug and is never masked.
type ClaimNotFoundError struct {
	ProjectNumber int
	IssueNumber   int
}

func (e *ClaimNotFoundError) Error() string {
	return fmt.Sprintf("no claim exists for %s", ClaimKey(e.ProjectNumber, e.IssueNumber))
}

// ConflictNotFoundError reports an update or removal of an unknown
// conflict id.
type ConflictNotFoundError struct {
	ID string
}

func (e *ConflictNotFoundError) Error() string {
	return fmt.Sprintf("conflict %s not found", e.ID)
}

// SessionNotFoundError reports an operation on an agent id with no
// persisted session record.
type SessionNotFoundError struct {
	AgentID int
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("no session record for agent %d", e.AgentID)
}

// AgentNotFoundError reports an operation on an agent id not in the live
// pool.
type AgentNotFoundError struct {
	AgentID int
}

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("agent %d is not in the live pool", e.AgentID)
}
