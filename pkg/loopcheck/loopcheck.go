// Package loopcheck validates agent loop health. It records every state
// transition into the runtime database and derives per-agent cycle
// metrics, queue-depth scheduling hints, and stuck-agent detection, all
// aggregated into one operator-facing report.
package loopcheck

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"hive/pkg/eventlog"
	"hive/pkg/protocol"
	"hive/pkg/queue"
	"hive/pkg/session"
)

// NeverTransitioned is the sentinel for an agent with no recorded
// transitions.
const NeverTransitioned = "never"

// ReviewCounter reports how many completed outputs await review. The
// backlog source implements it; nil disables the review component of
// queue depth.
type ReviewCounter interface {
	PendingReviews(ctx context.Context) (int, error)
}

// Validator records transitions and derives loop health.
type Validator struct {
	db        *sql.DB
	claims    *queue.ClaimStore
	conflicts *queue.ConflictQueue
	sessions  *session.Manager
	reviews   ReviewCounter

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
	logf    func(format string, args ...any)
}

// New builds a Validator over the runtime database and the shared
// stores. reviews may be nil.
func New(db *sql.DB, claims *queue.ClaimStore, conflicts *queue.ConflictQueue,
	sessions *session.Manager, reviews ReviewCounter) *Validator {
	return &Validator{
		db:        db,
		claims:    claims,
		conflicts: conflicts,
		sessions:  sessions,
		reviews:   reviews,
		nowFunc:   time.Now,
		logf:      log.Printf,
	}
}

// RecordTransition appends one transition row. It is called from agent
// loops on every state change, so failures are logged rather than
// returned.
func (v *Validator) RecordTransition(t protocol.StateTransition) {
	var project any
	if t.ProjectNumber != 0 {
		project = t.ProjectNumber
	}
	_, err := v.db.Exec(
		`INSERT INTO transitions (agent_id, from_state, to_state, project_number, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.AgentID, string(t.FromState), string(t.ToState), project,
		eventlog.FormatTime(t.Timestamp))
	if err != nil {
		v.logf("loopcheck: record transition agent %d: %v", t.AgentID, err)
	}
}

// Transitions returns every recorded transition for agentID, oldest
// first (0 = all agents).
func (v *Validator) Transitions(ctx context.Context, agentID int) ([]protocol.StateTransition, error) {
	query := `SELECT agent_id, from_state, to_state, COALESCE(project_number, 0), created_at
		FROM transitions`
	var args []any
	if agentID != 0 {
		query += " WHERE agent_id = ?"
		args = append(args, agentID)
	}
	query += " ORDER BY id ASC"

	rows, err := v.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []protocol.StateTransition
	for rows.Next() {
		var t protocol.StateTransition
		var from, to, createdAt string
		if err := rows.Scan(&t.AgentID, &from, &to, &t.ProjectNumber, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.FromState = protocol.AgentState(from)
		t.ToState = protocol.AgentState(to)
		t.Timestamp, err = eventlog.ParseTime(createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return out, nil
}

// Clear wipes the transition log wholesale.
func (v *Validator) Clear(ctx context.Context) error {
	if _, err := v.db.ExecContext(ctx, `DELETE FROM transitions`); err != nil {
		return fmt.Errorf("clear transitions: %w", err)
	}
	return nil
}

// CycleMetrics summarizes one agent's loop cadence. A cycle is a
// departure from Idle followed by a return to Idle.
type CycleMetrics struct {
	AgentID           int           `json:"agentId"`
	CyclesCompleted   int           `json:"cyclesCompleted"`
	LastCycleDuration time.Duration `json:"lastCycleDuration"`
	AvgCycleDuration  time.Duration `json:"avgCycleDuration"`
	LastTransition    string        `json:"lastTransition"` // formatted time or "never"
}

// Cycles derives cycle metrics for agentID from the transition log.
func (v *Validator) Cycles(ctx context.Context, agentID int) (CycleMetrics, error) {
	transitions, err := v.Transitions(ctx, agentID)
	if err != nil {
		return CycleMetrics{}, err
	}

	m := CycleMetrics{AgentID: agentID, LastTransition: NeverTransitioned}
	if len(transitions) == 0 {
		return m, nil
	}
	m.LastTransition = eventlog.FormatTime(transitions[len(transitions)-1].Timestamp)

	var cycleStart time.Time
	var total time.Duration
	inCycle := false
	for _, t := range transitions {
		switch {
		case t.FromState == protocol.AgentIdle && t.ToState != protocol.AgentIdle:
			cycleStart = t.Timestamp
			inCycle = true
		case inCycle && t.ToState == protocol.AgentIdle:
			m.CyclesCompleted++
			m.LastCycleDuration = t.Timestamp.Sub(cycleStart)
			total += m.LastCycleDuration
			inCycle = false
		}
	}
	if m.CyclesCompleted > 0 {
		m.AvgCycleDuration = total / time.Duration(m.CyclesCompleted)
	}
	return m, nil
}

// QueueDepth is the live scheduling signal: active claims plus pending
// conflicts plus outputs awaiting review.
func (v *Validator) QueueDepth(ctx context.Context) (int, error) {
	claims, err := v.claims.ListActive()
	if err != nil {
		return 0, err
	}
	pending, err := v.conflicts.ListByStatus(protocol.ConflictPending)
	if err != nil {
		return 0, err
	}
	reviews := 0
	if v.reviews != nil {
		reviews, err = v.reviews.PendingReviews(ctx)
		if err != nil {
			return 0, err
		}
	}
	return len(claims) + len(pending) + reviews, nil
}

// PrioritizeIdeation reports whether depth is below the low-water mark.
// Pure function of depth, not a stateful toggle.
func PrioritizeIdeation(depth int) bool { return depth < protocol.QueueLowWater }

// PauseIdeation reports whether depth is above the high-water mark.
func PauseIdeation(depth int) bool { return depth > protocol.QueueHighWater }

// StuckAgents flags every live-state session record whose last
// heartbeat is older than the staleness window, regardless of what
// state the record claims to be in.
func (v *Validator) StuckAgents() ([]protocol.AgentRecord, error) {
	records, err := v.sessions.List()
	if err != nil {
		return nil, err
	}
	cutoff := v.nowFunc().Add(-protocol.StuckHeartbeatAge)
	var stuck []protocol.AgentRecord
	for _, rec := range records {
		if !rec.State.Live() {
			continue
		}
		if rec.LastHeartbeat.Before(cutoff) {
			stuck = append(stuck, rec)
		}
	}
	return stuck, nil
}

// Report is the aggregated loop-health view for operator display.
type Report struct {
	ActiveAgents     int      `json:"activeAgents"` // working, reviewing, or ideating
	IdleAgents       int      `json:"idleAgents"`
	PausedAgents     int      `json:"pausedAgents"`
	QueueDepth       int      `json:"queueDepth"`
	ActiveClaims     int      `json:"activeClaims"`
	PendingConflicts int      `json:"pendingConflicts"`
	PendingReviews   int      `json:"pendingReviews"`
	StuckAgents      []int    `json:"stuckAgents,omitempty"`
	Recommendations  []string `json:"recommendations"`
}

// ValidateLoopHealth aggregates agent counts, queue depths, stuck
// agents, and scheduling recommendations into one report.
func (v *Validator) ValidateLoopHealth(ctx context.Context) (Report, error) {
	var r Report

	records, err := v.sessions.List()
	if err != nil {
		return r, err
	}
	for _, rec := range records {
		switch rec.State {
		case protocol.AgentWorking, protocol.AgentReviewing, protocol.AgentIdeating:
			r.ActiveAgents++
		case protocol.AgentIdle:
			r.IdleAgents++
		case protocol.AgentPaused:
			r.PausedAgents++
		}
	}

	claims, err := v.claims.ListActive()
	if err != nil {
		return r, err
	}
	r.ActiveClaims = len(claims)

	pending, err := v.conflicts.ListByStatus(protocol.ConflictPending)
	if err != nil {
		return r, err
	}
	r.PendingConflicts = len(pending)

	if v.reviews != nil {
		r.PendingReviews, err = v.reviews.PendingReviews(ctx)
		if err != nil {
			return r, err
		}
	}
	r.QueueDepth = r.ActiveClaims + r.PendingConflicts + r.PendingReviews

	stuck, err := v.StuckAgents()
	if err != nil {
		return r, err
	}
	for _, rec := range stuck {
		r.StuckAgents = append(r.StuckAgents, rec.ID)
		r.Recommendations = append(r.Recommendations,
			fmt.Sprintf("stuck agent detected: agent %d last heartbeat %s",
				rec.ID, rec.LastHeartbeat.Format(time.RFC3339)))
	}
	if PrioritizeIdeation(r.QueueDepth) {
		r.Recommendations = append(r.Recommendations, "prioritize ideation")
	}
	if PauseIdeation(r.QueueDepth) {
		r.Recommendations = append(r.Recommendations, "pause ideation")
	}
	if len(r.Recommendations) == 0 {
		r.Recommendations = append(r.Recommendations, "loop healthy")
	}
	return r, nil
}
