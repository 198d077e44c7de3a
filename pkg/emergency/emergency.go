package emergency

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"hive/pkg/orchestrator"
	"hive/pkg/protocol"
	"hive/pkg/queue"
	"hive/pkg/session"
)

// Audit log action names.
const (
	ActionStopAll        = "emergency_stop_all"
	ActionRestartAgent   = "restart_agent"
	ActionResetAgent     = "reset_agent"
	ActionRecoverStale   = "recover_stale_claims"
	ActionPurgeQueue     = "purge_queue"
	ActionCleanupOrphans = "cleanup_orphaned_sessions"
)

// ErrCancelled is returned when the operator declines a confirmation
// prompt. It is recorded to the audit log as a failure with this reason,
// distinguishing it from a genuine execution failure.
var ErrCancelled = errors.New("cancelled by user")

// Pool is the orchestrator surface the emergency controls act on.
type Pool interface {
	LiveIDs() []int
	Status() orchestrator.Status
	EmergencyStop()
	RestartAgent(id int) error
	ResetAgent(id int) bool
}

// Impact summarizes what a destructive action would touch. It is shown
// to the operator before confirmation.
type Impact struct {
	TotalAgents   int `json:"totalAgents"`
	WorkingAgents int `json:"workingAgents"`
	ActiveClaims  int `json:"activeClaims"`
}

// ConfirmFunc asks the operator to approve an action given its impact.
// A nil ConfirmFunc skips confirmation (automated callers, tests).
type ConfirmFunc func(Impact) bool

// StopReport is the outcome of a stop-all.
type StopReport struct {
	AgentsStopped  int `json:"agentsStopped"`
	ClaimsReleased int `json:"claimsReleased"`
}

// RecoverReport is the outcome of a stale-claim recovery.
type RecoverReport struct {
	Recovered    int   `json:"recovered"`
	IssueNumbers []int `json:"issueNumbers,omitempty"`
}

// RecoveryOption is one currently-meaningful recovery action, annotated
// for operator display.
type RecoveryOption struct {
	Action               string `json:"action"`
	Description          string `json:"description"`
	RequiresConfirmation bool   `json:"requiresConfirmation"`
}

// Controller composes the orchestrator, claim store, and session records
// into the five operator recovery actions. Every action is recorded to
// the audit log, success or failure; audit write failures are logged and
// swallowed so a broken log never blocks an emergency.
type Controller struct {
	pool     Pool
	claims   *queue.ClaimStore
	sessions *session.Manager
	audit    *AuditLog

	nowFunc func() time.Time
	logf    func(format string, args ...any)
}

// NewController builds a Controller. audit may be nil to disable
// recording.
func NewController(pool Pool, claims *queue.ClaimStore, sessions *session.Manager, audit *AuditLog) *Controller {
	return &Controller{
		pool:     pool,
		claims:   claims,
		sessions: sessions,
		audit:    audit,
		nowFunc:  time.Now,
		logf:     log.Printf,
	}
}

// StopAll forcibly terminates every agent and releases every active
// claim. With nothing live it succeeds trivially. confirm, when
// non-nil, sees the impact summary first; declining cancels the action.
func (c *Controller) StopAll(confirm ConfirmFunc) (StopReport, error) {
	impact, err := c.impact()
	if err != nil {
		c.record(ActionStopAll, nil, err)
		return StopReport{}, err
	}

	if impact.TotalAgents == 0 && impact.ActiveClaims == 0 {
		report := StopReport{}
		c.record(ActionStopAll, report, nil)
		return report, nil
	}

	if confirm != nil && !confirm(impact) {
		c.record(ActionStopAll, impact, ErrCancelled)
		return StopReport{}, ErrCancelled
	}

	c.pool.EmergencyStop()
	released, relErr := c.releaseAll()

	report := StopReport{AgentsStopped: impact.TotalAgents, ClaimsReleased: released}
	c.record(ActionStopAll, report, relErr)
	if relErr != nil {
		return report, relErr
	}
	return report, nil
}

// RestartAgent stops and restarts one agent, clearing its error state
// while preserving its work-in-progress fields.
func (c *Controller) RestartAgent(id int) error {
	err := c.pool.RestartAgent(id)
	c.record(ActionRestartAgent, map[string]int{"agentId": id}, err)
	return err
}

// ResetAgent destructively resets one agent: releases every claim it
// holds, deletes its session record, and restarts it from a clean Idle
// state with all work fields nulled.
func (c *Controller) ResetAgent(id int) error {
	var errs []error

	held, err := c.claims.ListByAgent(id)
	if err != nil {
		errs = append(errs, err)
	}
	released := 0
	for _, cl := range held {
		if err := c.claims.Release(cl.ProjectNumber, cl.IssueNumber); err != nil {
			errs = append(errs, err)
			continue
		}
		released++
	}

	// The record is re-created clean if the pool respawns the agent.
	if err := c.sessions.Delete(id); err != nil {
		var notFound *protocol.SessionNotFoundError
		if !errors.As(err, &notFound) {
			errs = append(errs, err)
		}
	}

	wasLive := c.pool.ResetAgent(id)

	err = errors.Join(errs...)
	c.record(ActionResetAgent, map[string]any{
		"agentId":        id,
		"claimsReleased": released,
		"wasLive":        wasLive,
	}, err)
	return err
}

// RecoverStale force-releases every claim older than the staleness
// threshold and reports which issue numbers went back to the backlog.
// Fresh claims are untouched.
func (c *Controller) RecoverStale() (RecoverReport, error) {
	stale, err := c.claims.ListStale()
	if err != nil {
		c.record(ActionRecoverStale, nil, err)
		return RecoverReport{}, err
	}

	var report RecoverReport
	var errs []error
	for _, cl := range stale {
		if err := c.claims.Release(cl.ProjectNumber, cl.IssueNumber); err != nil {
			errs = append(errs, err)
			continue
		}
		report.Recovered++
		report.IssueNumbers = append(report.IssueNumbers, cl.IssueNumber)
	}

	err = errors.Join(errs...)
	c.record(ActionRecoverStale, report, err)
	if err != nil {
		return report, err
	}
	return report, nil
}

// PurgeQueue force-releases every active claim regardless of age. An
// empty queue is a no-op success. confirm, when non-nil, must approve.
func (c *Controller) PurgeQueue(confirm ConfirmFunc) (int, error) {
	active, err := c.claims.ListActive()
	if err != nil {
		c.record(ActionPurgeQueue, nil, err)
		return 0, err
	}
	if len(active) == 0 {
		c.record(ActionPurgeQueue, map[string]int{"claimsReleased": 0}, nil)
		return 0, nil
	}

	if confirm != nil && !confirm(Impact{ActiveClaims: len(active)}) {
		c.record(ActionPurgeQueue, Impact{ActiveClaims: len(active)}, ErrCancelled)
		return 0, ErrCancelled
	}

	released, relErr := c.releaseAll()
	c.record(ActionPurgeQueue, map[string]int{"claimsReleased": released}, relErr)
	if relErr != nil {
		return released, relErr
	}
	return released, nil
}

// RecoveryOptions computes which recovery actions are currently
// meaningful given live system state.
func (c *Controller) RecoveryOptions() ([]RecoveryOption, error) {
	var opts []RecoveryOption

	live := c.pool.LiveIDs()
	active, err := c.claims.ListActive()
	if err != nil {
		return nil, err
	}
	if len(live) > 0 {
		opts = append(opts, RecoveryOption{
			Action: ActionStopAll,
			Description: fmt.Sprintf("stop %d agents and release %d active claims",
				len(live), len(active)),
			RequiresConfirmation: true,
		})
	}

	errored, err := c.sessions.ListWithErrors()
	if err != nil {
		return nil, err
	}
	if len(errored) > 0 {
		opts = append(opts, RecoveryOption{
			Action:      ActionRestartAgent,
			Description: fmt.Sprintf("restart %d agents with recorded errors", len(errored)),
		})
	}

	stale, err := c.claims.ListStale()
	if err != nil {
		return nil, err
	}
	if len(stale) > 0 {
		opts = append(opts, RecoveryOption{
			Action:      ActionRecoverStale,
			Description: fmt.Sprintf("release %d stale claims back to the backlog", len(stale)),
		})
	}

	if len(active) > 0 {
		opts = append(opts, RecoveryOption{
			Action:               ActionPurgeQueue,
			Description:          fmt.Sprintf("force-release all %d active claims", len(active)),
			RequiresConfirmation: true,
		})
	}

	orphans, err := c.CheckForOrphanedSessions()
	if err != nil {
		return nil, err
	}
	if len(orphans) > 0 {
		opts = append(opts, RecoveryOption{
			Action:      ActionCleanupOrphans,
			Description: fmt.Sprintf("delete %d orphaned session records", len(orphans)),
		})
	}
	return opts, nil
}

// CheckForOrphanedSessions finds session records whose agent id has no
// live loop behind it. Records already marked stopped are not orphans.
func (c *Controller) CheckForOrphanedSessions() ([]protocol.AgentRecord, error) {
	records, err := c.sessions.List()
	if err != nil {
		return nil, err
	}

	live := make(map[int]bool)
	for _, id := range c.pool.LiveIDs() {
		live[id] = true
	}

	var orphans []protocol.AgentRecord
	for _, rec := range records {
		if live[rec.ID] || rec.State == protocol.AgentStopped {
			continue
		}
		orphans = append(orphans, rec)
	}
	return orphans, nil
}

// CleanupOrphanedSessions deletes orphaned session records and releases
// their claims, returning the count cleaned.
func (c *Controller) CleanupOrphanedSessions() (int, error) {
	orphans, err := c.CheckForOrphanedSessions()
	if err != nil {
		c.record(ActionCleanupOrphans, nil, err)
		return 0, err
	}

	var errs []error
	cleaned := 0
	for _, rec := range orphans {
		held, err := c.claims.ListByAgent(rec.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, cl := range held {
			if err := c.claims.Release(cl.ProjectNumber, cl.IssueNumber); err != nil {
				errs = append(errs, err)
			}
		}
		if err := c.sessions.Delete(rec.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		cleaned++
	}

	err = errors.Join(errs...)
	c.record(ActionCleanupOrphans, map[string]int{"cleaned": cleaned}, err)
	if err != nil {
		return cleaned, err
	}
	return cleaned, nil
}

// impact snapshots what a stop-all would touch.
func (c *Controller) impact() (Impact, error) {
	st := c.pool.Status()
	active, err := c.claims.ListActive()
	if err != nil {
		return Impact{}, err
	}

	working := 0
	for _, a := range st.Agents {
		if a.State == protocol.AgentWorking {
			working++
		}
	}
	return Impact{
		TotalAgents:   len(st.Agents),
		WorkingAgents: working,
		ActiveClaims:  len(active),
	}, nil
}

// releaseAll force-releases every active claim, returning the count
// released and any joined release errors.
func (c *Controller) releaseAll() (int, error) {
	active, err := c.claims.ListActive()
	if err != nil {
		return 0, err
	}
	released := 0
	var errs []error
	for _, cl := range active {
		if err := c.claims.Release(cl.ProjectNumber, cl.IssueNumber); err != nil {
			errs = append(errs, err)
			continue
		}
		released++
	}
	return released, errors.Join(errs...)
}

// record writes one audit entry. Failures recording to the audit log
// are logged and swallowed: an emergency action must never be blocked
// by its own paperwork.
func (c *Controller) record(action string, details any, actionErr error) {
	if c.audit == nil {
		return
	}

	payload := map[string]any{}
	if details != nil {
		payload["details"] = details
	}
	result := protocol.ResultSuccess
	if actionErr != nil {
		result = protocol.ResultFailure
		payload["error"] = actionErr.Error()
	}
	data, _ := json.Marshal(payload)

	err := c.audit.Record(protocol.EmergencyAction{
		Timestamp: c.nowFunc(),
		Action:    action,
		UserID:    protocol.EmergencyUserID,
		Details:   string(data),
		Result:    result,
	})
	if err != nil {
		c.logf("emergency: audit %s: %v", action, err)
	}
}
