package protocol

import (
	"testing"
	"time"
)

func TestClaimKey(t *testing.T) {
	if got := ClaimKey(79, 1); got != "79-1" {
		t.Errorf("ClaimKey(79, 1) = %q, want %q", got, "79-1")
	}
	c := Claim{ProjectNumber: 12, IssueNumber: 34}
	if got := c.Key(); got != "12-34" {
		t.Errorf("Key() = %q, want %q", got, "12-34")
	}
}

func TestClaimStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"fresh", 1 * time.Hour, false},
		{"at threshold", StaleClaimAge, false},
		{"past threshold", 9 * time.Hour, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Claim{ClaimedAt: now.Add(-tt.age)}
			if got := c.Stale(now); got != tt.want {
				t.Errorf("Stale() with age %v = %v, want %v", tt.age, got, tt.want)
			}
		})
	}
}

func TestConflictStatusValid(t *testing.T) {
	for _, s := range []ConflictStatus{ConflictPending, ConflictResolving, ConflictResolved} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if ConflictStatus("done").Valid() {
		t.Error("unknown status should not be valid")
	}
}

func TestEventTypeValid(t *testing.T) {
	for _, et := range []EventType{
		EventProjectUpdated, EventIssueCreated, EventIssueUpdated,
		EventIssueDeleted, EventPhaseUpdated,
	} {
		if !et.Valid() {
			t.Errorf("%q should be valid", et)
		}
	}
	if EventType("issue.archived").Valid() {
		t.Error("unknown event type should not be valid")
	}
}

func TestAgentStateLive(t *testing.T) {
	if AgentStopped.Live() {
		t.Error("stopped must not be live")
	}
	if AgentState("").Live() {
		t.Error("zero state must not be live")
	}
	for _, s := range []AgentState{AgentIdle, AgentWorking, AgentReviewing, AgentIdeating, AgentPaused} {
		if !s.Live() {
			t.Errorf("%q should be live", s)
		}
	}
}
