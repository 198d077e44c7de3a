package main

import (
	"strings"
	"testing"
	"time"

	"hive/pkg/protocol"
	"hive/pkg/queue"
	"hive/pkg/session"
)

func TestStatusEmptyState(t *testing.T) {
	t.Setenv("HIVE_HOME", t.TempDir())

	out, err := runHive(t, "status")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "no agents recorded") {
		t.Fatalf("output = %q", out)
	}
	if !strings.Contains(out, "claims: 0 active") {
		t.Fatalf("output = %q", out)
	}
}

func TestStatusShowsAgentsAndClaims(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HIVE_HOME", dir)

	paths, err := ResolvePaths()
	if err != nil {
		t.Fatal(err)
	}
	sessions := session.NewManager(paths.SessionDir)
	if err := sessions.Save(protocol.AgentRecord{
		ID: 1, State: protocol.AgentWorking, TasksCompleted: 4,
		Phase: "executing: fix tests", LastHeartbeat: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}
	claims := queue.NewClaimStore(paths.SessionDir)
	if _, err := claims.Claim(79, 2, 1); err != nil {
		t.Fatal(err)
	}

	out, err := runHive(t, "status")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "agent 1") || !strings.Contains(out, "working") {
		t.Fatalf("output = %q", out)
	}
	if !strings.Contains(out, "executing: fix tests") {
		t.Fatalf("output = %q", out)
	}
	if !strings.Contains(out, "claims: 1 active") {
		t.Fatalf("output = %q", out)
	}
}

func TestClaimsListsAndFilters(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HIVE_HOME", dir)

	paths, err := ResolvePaths()
	if err != nil {
		t.Fatal(err)
	}
	claims := queue.NewClaimStore(paths.SessionDir)
	if _, err := claims.Claim(79, 1, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := claims.Claim(79, 2, 2); err != nil {
		t.Fatal(err)
	}

	out, err := runHive(t, "claims")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "79-1") || !strings.Contains(out, "79-2") {
		t.Fatalf("output = %q", out)
	}

	out, err = runHive(t, "claims", "--agent", "2")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "79-1") || !strings.Contains(out, "79-2") {
		t.Fatalf("filtered output = %q", out)
	}
}
