package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"hive/pkg/protocol"
)

// runLoop is one agent's thread of control. Suspension points, the only
// places graceful stop and pause take effect, are the idle sleep, the
// claim attempt, and the gap between work items. Hard cancellation via ctx
// can interrupt anywhere, including mid-Execute.
func (o *Orchestrator) runLoop(ctx context.Context, a *agent) {
	defer close(a.doneCh)

	for {
		// Suspension point: graceful stop and hard cancel.
		select {
		case <-a.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		o.heartbeat(a)

		if o.isPaused(a) {
			if o.idleWait(ctx, a) {
				return
			}
			continue
		}

		worked, err := o.seekWork(ctx, a)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.recordError(a, err)
		}
		if worked {
			continue
		}

		// Nothing to do; idle until the next poll.
		if o.idleWait(ctx, a) {
			return
		}
	}
}

// idleWait sleeps one poll interval. It returns true when the loop should
// exit.
func (o *Orchestrator) idleWait(ctx context.Context, a *agent) bool {
	select {
	case <-a.stopCh:
		return true
	case <-ctx.Done():
		return true
	case <-time.After(o.cfg.IdleSleep):
		return false
	}
}

// seekWork tries, in order: claim and execute a backlog item, review a
// peer's completed output, or ideate when the queue runs low. It returns
// true if any of the three ran.
func (o *Orchestrator) seekWork(ctx context.Context, a *agent) (bool, error) {
	item, err := o.source.NextItem(ctx)
	if err != nil {
		return false, err
	}
	if item != nil {
		won, err := o.claims.Claim(item.ProjectNumber, item.IssueNumber, a.rec.ID)
		if err != nil {
			return false, err
		}
		if !won {
			// Normal contention: a peer holds the item. Not work, not
			// an error.
			return false, nil
		}
		return true, o.executeItem(ctx, a, *item)
	}

	pending, err := o.source.PendingReviews(ctx)
	if err != nil {
		return false, err
	}
	if pending > 0 {
		return true, o.review(ctx, a)
	}

	depth, err := o.queueDepth(ctx)
	if err != nil {
		return false, err
	}
	if depth < o.cfg.IdeationLowWater {
		return true, o.ideate(ctx, a)
	}
	return false, nil
}

// executeItem runs one claimed work item through the work source,
// releasing the claim on every path out.
func (o *Orchestrator) executeItem(ctx context.Context, a *agent, item WorkItem) error {
	o.mu.Lock()
	a.rec.ProjectNumber = item.ProjectNumber
	a.rec.IssueNumber = item.IssueNumber
	a.rec.Phase = "executing: " + item.Title
	a.rec.BranchName = item.BranchName
	o.transitionLocked(a, protocol.AgentWorking)
	o.mu.Unlock()

	o.publishPhase(item.ProjectNumber, item.IssueNumber, "executing")

	execErr := o.source.Execute(ctx, a.rec.ID, item)

	// Always release: completion, failure, and conflict all return the
	// item to the backlog's control.
	if relErr := o.claims.Release(item.ProjectNumber, item.IssueNumber); relErr != nil {
		o.logf("orchestrator: agent %d release %s: %v",
			a.rec.ID, protocol.ClaimKey(item.ProjectNumber, item.IssueNumber), relErr)
	}

	var conflict *ConflictError
	switch {
	case execErr == nil:
		o.finishItem(a, item, "done")
	case errors.As(execErr, &conflict):
		o.raiseConflict(a, item, conflict)
	case ctx.Err() != nil:
		// Hard-cancelled mid-execution; the claim is already released.
		return nil
	default:
		o.recordError(a, execErr)
		o.finishItem(a, item, "failed")
		return nil
	}
	return nil
}

// finishItem returns the agent to Idle and publishes the outcome.
func (o *Orchestrator) finishItem(a *agent, item WorkItem, outcome string) {
	o.mu.Lock()
	if outcome == "done" {
		a.rec.TasksCompleted++
	}
	a.rec.ProjectNumber = 0
	a.rec.IssueNumber = 0
	a.rec.Phase = ""
	a.rec.BranchName = ""
	if a.rec.State == protocol.AgentWorking {
		o.transitionLocked(a, protocol.AgentIdle)
	} else {
		o.persistLocked(a)
	}
	o.mu.Unlock()

	data, _ := json.Marshal(map[string]string{"status": outcome})
	o.publish(protocol.StateChangeEvent{
		Type:          protocol.EventIssueUpdated,
		ProjectNumber: item.ProjectNumber,
		IssueNumber:   item.IssueNumber,
		Data:          data,
	})
}

// raiseConflict records a conflict the agent could not resolve and idles
// the agent. The work item stays blocked until the conflict is resolved
// externally.
func (o *Orchestrator) raiseConflict(a *agent, item WorkItem, ce *ConflictError) {
	_, err := o.conflicts.Add(protocol.Conflict{
		ProjectNumber:    item.ProjectNumber,
		IssueNumber:      item.IssueNumber,
		BranchName:       ce.BranchName,
		ConflictingFiles: ce.Files,
		AgentID:          a.rec.ID,
	})
	if err != nil {
		o.logf("orchestrator: agent %d record conflict: %v", a.rec.ID, err)
	}
	o.finishItem(a, item, "conflict")
}

// review processes one completed peer output through the work source.
func (o *Orchestrator) review(ctx context.Context, a *agent) error {
	o.mu.Lock()
	a.rec.Phase = "reviewing"
	o.transitionLocked(a, protocol.AgentReviewing)
	o.mu.Unlock()

	_, err := o.source.NextReview(ctx, a.rec.ID)

	o.mu.Lock()
	a.rec.Phase = ""
	if a.rec.State == protocol.AgentReviewing {
		o.transitionLocked(a, protocol.AgentIdle)
	}
	o.mu.Unlock()
	return err
}

// ideate asks the work source to generate new backlog items and announces
// what it created.
func (o *Orchestrator) ideate(ctx context.Context, a *agent) error {
	o.mu.Lock()
	a.rec.Phase = "ideating"
	o.transitionLocked(a, protocol.AgentIdeating)
	o.mu.Unlock()

	created, err := o.source.Ideate(ctx, a.rec.ID)

	o.mu.Lock()
	a.rec.Phase = ""
	if a.rec.State == protocol.AgentIdeating {
		o.transitionLocked(a, protocol.AgentIdle)
	}
	o.mu.Unlock()

	if err != nil {
		return err
	}
	for _, item := range created {
		data, _ := json.Marshal(map[string]string{"title": item.Title})
		o.publish(protocol.StateChangeEvent{
			Type:          protocol.EventIssueCreated,
			ProjectNumber: item.ProjectNumber,
			IssueNumber:   item.IssueNumber,
			Data:          data,
		})
	}
	return nil
}

// queueDepth is the scheduling signal for ideation: live claims plus
// pending conflicts plus outputs awaiting review.
func (o *Orchestrator) queueDepth(ctx context.Context) (int, error) {
	claims, err := o.claims.ListActive()
	if err != nil {
		return 0, err
	}
	pending, err := o.conflicts.ListByStatus(protocol.ConflictPending)
	if err != nil {
		return 0, err
	}
	reviews, err := o.source.PendingReviews(ctx)
	if err != nil {
		return 0, err
	}
	return len(claims) + len(pending) + reviews, nil
}

// heartbeat stamps the shared record. Stuck-agent detection keys off this
// timestamp, so it must advance on every loop iteration.
func (o *Orchestrator) heartbeat(a *agent) {
	o.updateAgent(a, func(rec *protocol.AgentRecord) {
		rec.LastHeartbeat = o.nowFunc()
	})
}

// recordError notes a failure on the shared record.
func (o *Orchestrator) recordError(a *agent, err error) {
	o.updateAgent(a, func(rec *protocol.AgentRecord) {
		rec.LastError = err.Error()
		rec.ErrorCount++
	})
}

func (o *Orchestrator) publishPhase(project, issue int, phase string) {
	data, _ := json.Marshal(map[string]string{"phase": phase})
	o.publish(protocol.StateChangeEvent{
		Type:          protocol.EventPhaseUpdated,
		ProjectNumber: project,
		IssueNumber:   issue,
		Data:          data,
	})
}

func (o *Orchestrator) publish(ev protocol.StateChangeEvent) {
	if o.bus == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = o.nowFunc()
	}
	o.bus.Publish(ev)
}
