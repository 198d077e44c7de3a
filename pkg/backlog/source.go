package backlog

import (
	"context"
	"errors"
	"fmt"
	"log"

	"hive/pkg/orchestrator"
	"hive/pkg/protocol"
	"hive/pkg/queue"
)

// Runner executes one claimed work item. cmd/hive wires the real
// executor; tests inject stubs.
type Runner func(ctx context.Context, agentID int, item orchestrator.WorkItem) error

// Ideator proposes new work items when the queue runs low. A nil
// Ideator disables ideation output without disabling the state cycle.
type Ideator func(ctx context.Context, agentID int) ([]orchestrator.WorkItem, error)

// Source adapts the file-backed store to the orchestrator's work
// contract.
type Source struct {
	store  *Store
	claims *queue.ClaimStore
	run    Runner
	ideate Ideator
	logf   func(format string, args ...any)
}

// NewSource builds a Source. run must not be nil; ideate may be.
func NewSource(store *Store, claims *queue.ClaimStore, run Runner, ideate Ideator) *Source {
	return &Source{
		store:  store,
		claims: claims,
		run:    run,
		ideate: ideate,
		logf:   log.Printf,
	}
}

// NextItem returns the first pending item nobody currently holds, or
// nil when the claimable backlog is empty.
func (s *Source) NextItem(_ context.Context) (*orchestrator.WorkItem, error) {
	pending, err := s.store.ListByStatus(StatusPending)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	active, err := s.claims.ListActive()
	if err != nil {
		return nil, err
	}
	held := make(map[string]bool, len(active))
	for _, c := range active {
		held[c.Key()] = true
	}

	for _, item := range pending {
		if held[protocol.ClaimKey(item.ProjectNumber, item.IssueNumber)] {
			continue
		}
		return &orchestrator.WorkItem{
			ProjectNumber: item.ProjectNumber,
			IssueNumber:   item.IssueNumber,
			Title:         item.Title,
			BranchName:    item.BranchName,
		}, nil
	}
	return nil, nil
}

// Execute runs the item and records the outcome on its backlog file.
// Done items enter the review queue; conflicts mark the item blocked
// and propagate so the caller can record the conflict.
func (s *Source) Execute(ctx context.Context, agentID int, item orchestrator.WorkItem) error {
	err := s.run(ctx, agentID, item)

	status := StatusDone
	switch {
	case err == nil:
	case isConflict(err):
		status = StatusBlocked
	default:
		status = StatusFailed
	}
	if serr := s.store.SetStatus(item.ProjectNumber, item.IssueNumber, status); serr != nil {
		s.logf("backlog: mark %s %s: %v",
			protocol.ClaimKey(item.ProjectNumber, item.IssueNumber), status, serr)
	}
	return err
}

func isConflict(err error) bool {
	var ce *orchestrator.ConflictError
	return errors.As(err, &ce)
}

// PendingReviews counts done items not yet reviewed.
func (s *Source) PendingReviews(_ context.Context) (int, error) {
	done, err := s.store.ListByStatus(StatusDone)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, item := range done {
		if !item.Reviewed {
			n++
		}
	}
	return n, nil
}

// NextReview marks the oldest unreviewed done item reviewed. It returns
// false when nothing is waiting.
func (s *Source) NextReview(_ context.Context, _ int) (bool, error) {
	done, err := s.store.ListByStatus(StatusDone)
	if err != nil {
		return false, err
	}
	for _, item := range done {
		if item.Reviewed {
			continue
		}
		item.Reviewed = true
		if err := s.store.Put(item); err != nil {
			return false, fmt.Errorf("mark reviewed: %w", err)
		}
		return true, nil
	}
	return false, nil
}

// Ideate asks the ideator for new items and files each one as pending.
func (s *Source) Ideate(ctx context.Context, agentID int) ([]orchestrator.WorkItem, error) {
	if s.ideate == nil {
		return nil, nil
	}
	proposed, err := s.ideate(ctx, agentID)
	if err != nil {
		return nil, err
	}
	var created []orchestrator.WorkItem
	for _, w := range proposed {
		err := s.store.Put(Item{
			ProjectNumber: w.ProjectNumber,
			IssueNumber:   w.IssueNumber,
			Title:         w.Title,
			BranchName:    w.BranchName,
			Status:        StatusPending,
		})
		if err != nil {
			s.logf("backlog: file ideated item %s: %v",
				protocol.ClaimKey(w.ProjectNumber, w.IssueNumber), err)
			continue
		}
		created = append(created, w)
	}
	return created, nil
}
