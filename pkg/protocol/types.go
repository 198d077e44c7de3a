// Package protocol defines the shared types of the hive coordinator: agent
// records, claims, conflicts, state-change events, the notification wire
// protocol, and the SQLite schema for the runtime database. Every other
// package depends on protocol; protocol depends on nothing in hive.
package protocol

import (
	"fmt"
	"time"
)

// AgentState is the control-plane state of an agent slot.
type AgentState string

// Agent state constants. Idle, Working, Reviewing and Ideating are live
// states; Paused overlays any live state and resumes to it; Stopped is
// terminal and only reached by removal from the pool.
const (
	AgentIdle      AgentState = "idle"
	AgentWorking   AgentState = "working"
	AgentReviewing AgentState = "reviewing"
	AgentIdeating  AgentState = "ideating"
	AgentPaused    AgentState = "paused"
	AgentStopped   AgentState = "stopped"
)

// Live reports whether the state belongs to an agent still in the pool.
func (s AgentState) Live() bool {
	return s != AgentStopped && s != ""
}

// AgentRecord is the shared record for one numbered agent slot. The
// orchestrator owns the record; the agent loop mutates it through the
// orchestrator's update API only.
type AgentRecord struct {
	ID             int        `json:"id"`
	State          AgentState `json:"state"`
	ProjectNumber  int        `json:"projectNumber,omitempty"`
	IssueNumber    int        `json:"issueNumber,omitempty"`
	Phase          string     `json:"phase,omitempty"`
	BranchName     string     `json:"branchName,omitempty"`
	TasksCompleted int        `json:"tasksCompleted"`
	LastError      string     `json:"lastError,omitempty"`
	ErrorCount     int        `json:"errorCount"`
	LastHeartbeat  time.Time  `json:"lastHeartbeat"`
}

// Claim is an exclusive, timestamped assignment of one work item to one
// agent. At most one live claim exists per (project, issue) key.
type Claim struct {
	AgentID       int       `json:"agentId"`
	ProjectNumber int       `json:"projectNumber"`
	IssueNumber   int       `json:"issueNumber"`
	ClaimedAt     time.Time `json:"claimedAt"`
}

// Key returns the store key for the claim, "{project}-{issue}".
func (c Claim) Key() string {
	return ClaimKey(c.ProjectNumber, c.IssueNumber)
}

// ClaimKey builds the canonical claim-store key for a work item.
func ClaimKey(projectNumber, issueNumber int) string {
	return fmt.Sprintf("%d-%d", projectNumber, issueNumber)
}

// Age returns how long the claim has been held, measured at now.
func (c Claim) Age(now time.Time) time.Duration {
	return now.Sub(c.ClaimedAt)
}

// Stale reports whether the claim is older than StaleClaimAge at now.
// Staleness is a read-time classification; nothing sweeps claims
// automatically.
func (c Claim) Stale(now time.Time) bool {
	return c.Age(now) > StaleClaimAge
}

// ConflictStatus is the lifecycle state of a recorded conflict.
type ConflictStatus string

// Conflict status constants. A conflict moves pending -> resolving ->
// resolved and never reverts from resolved.
const (
	ConflictPending   ConflictStatus = "pending"
	ConflictResolving ConflictStatus = "resolving"
	ConflictResolved  ConflictStatus = "resolved"
)

// Valid reports whether s is a known conflict status.
func (s ConflictStatus) Valid() bool {
	switch s {
	case ConflictPending, ConflictResolving, ConflictResolved:
		return true
	}
	return false
}

// Conflict records an obstruction (typically a merge conflict) that blocks
// a work item until it is resolved outside the coordinator.
type Conflict struct {
	ID               string         `json:"conflictId"`
	ProjectNumber    int            `json:"projectNumber"`
	IssueNumber      int            `json:"issueNumber"`
	BranchName       string         `json:"branchName,omitempty"`
	ConflictingFiles []string       `json:"conflictingFiles,omitempty"`
	AgentID          int            `json:"agentId"`
	Status           ConflictStatus `json:"status"`
	CreatedAt        time.Time      `json:"createdAt"`
}

// StateTransition is one recorded agent state change, used by the loop
// validator to derive cycle metrics. The log may be cleared wholesale.
type StateTransition struct {
	AgentID       int        `json:"agentId"`
	FromState     AgentState `json:"fromState"`
	ToState       AgentState `json:"toState"`
	Timestamp     time.Time  `json:"timestamp"`
	ProjectNumber int        `json:"projectNumber,omitempty"`
}

// EmergencyAction is one entry in the append-only emergency audit log.
// The log is trimmed to the most recent EmergencyLogCap entries on every
// write; older entries are discarded by design.
type EmergencyAction struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	UserID    string    `json:"userId"`
	Details   string    `json:"details,omitempty"` // JSON payload
	Result    string    `json:"result"`            // "success" or "failure"
}

// Audit log result values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// BudgetStatus is the read-only snapshot surfaced by the orchestrator from
// the cost collaborator.
type BudgetStatus struct {
	DailySpend   float64 `json:"dailySpend"`
	MonthlySpend float64 `json:"monthlySpend"`
	DailyLimit   float64 `json:"dailyLimit"`
	MonthlyLimit float64 `json:"monthlyLimit"`
	WithinBudget bool    `json:"isWithinBudget"`
}
