package orchestrator

import (
	"context"
	"fmt"

	"hive/pkg/protocol"
)

// WorkItem is one unit of claimable work from the backlog.
type WorkItem struct {
	ProjectNumber int    `json:"projectNumber"`
	IssueNumber   int    `json:"issueNumber"`
	Title         string `json:"title"`
	BranchName    string `json:"branchName,omitempty"`
}

// WorkSource is the external collaborator that supplies and executes work.
// It is a black box to the coordinator: the only contract is that an agent
// never holds more than one claim at a time and always releases on
// completion or failure.
type WorkSource interface {
	// NextItem returns the next candidate work item, or nil when the
	// backlog is empty. The item is a candidate only; the caller still
	// has to win the claim.
	NextItem(ctx context.Context) (*WorkItem, error)

	// Execute performs the work item. It returns nil on completion, a
	// *ConflictError when blocked on a conflict needing external
	// resolution, or any other error on failure.
	Execute(ctx context.Context, agentID int, item WorkItem) error

	// PendingReviews reports how many completed peer outputs await
	// review.
	PendingReviews(ctx context.Context) (int, error)

	// NextReview processes one completed peer output awaiting review.
	// It returns false when nothing is waiting.
	NextReview(ctx context.Context, agentID int) (bool, error)

	// Ideate generates new backlog items when the queue runs low and
	// returns what it created.
	Ideate(ctx context.Context, agentID int) ([]WorkItem, error)
}

// ConflictError reports that executing a work item hit a conflict the
// agent cannot resolve itself. The orchestrator records it on the conflict
// queue and releases the claim.
type ConflictError struct {
	BranchName string
	Files      []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on branch %s (%d files)", e.BranchName, len(e.Files))
}

// BudgetReader is the read-only cost collaborator surface consumed by
// Status.
type BudgetReader interface {
	Status() (protocol.BudgetStatus, error)
}

// TransitionRecorder receives every agent state transition. The loop
// validator implements it; a nil recorder disables recording.
type TransitionRecorder interface {
	RecordTransition(t protocol.StateTransition)
}

// AgentStatus is the per-agent slice of a status snapshot.
type AgentStatus struct {
	ID    int                 `json:"id"`
	State protocol.AgentState `json:"state"`
	Phase string              `json:"phase,omitempty"`
}

// Status is the orchestrator's point-in-time snapshot.
type Status struct {
	Agents           []AgentStatus         `json:"agents"`
	DesiredInstances int                   `json:"desiredInstances"`
	ActiveWorktrees  int                   `json:"activeWorktrees"`
	Budget           protocol.BudgetStatus `json:"budgetStatus"`
}
