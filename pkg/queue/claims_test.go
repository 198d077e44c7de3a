package queue //nolint:testpackage // internal white-box tests need access to unexported fields

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hive/pkg/protocol"
)

func newTestClaimStore(t *testing.T) *ClaimStore {
	t.Helper()
	return NewClaimStore(t.TempDir())
}

func TestClaimTestAndSet(t *testing.T) {
	s := newTestClaimStore(t)

	ok, err := s.Claim(79, 1, 1)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !ok {
		t.Fatal("first claim should succeed")
	}

	// Second claim on the same key by a different agent must fail without
	// overwriting the holder.
	ok, err = s.Claim(79, 1, 2)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if ok {
		t.Fatal("second claim should fail while first is live")
	}

	c, held, err := s.Get(79, 1)
	if err != nil || !held {
		t.Fatalf("Get: held=%v err=%v", held, err)
	}
	if c.AgentID != 1 {
		t.Errorf("holder = agent %d, want agent 1", c.AgentID)
	}
}

func TestReleaseThenReclaim(t *testing.T) {
	s := newTestClaimStore(t)

	if ok, _ := s.Claim(79, 1, 1); !ok {
		t.Fatal("claim by agent 1 should succeed")
	}
	if ok, _ := s.Claim(79, 1, 2); ok {
		t.Fatal("claim by agent 2 should fail")
	}
	if err := s.Release(79, 1); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := s.Claim(79, 1, 2); !ok {
		t.Fatal("claim by agent 2 after release should succeed")
	}
}

func TestReleaseMissingClaimFailsLoudly(t *testing.T) {
	s := newTestClaimStore(t)

	err := s.Release(5, 9)
	if err == nil {
		t.Fatal("releasing a nonexistent claim must error")
	}
	var notFound *protocol.ClaimNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v, want ClaimNotFoundError", err)
	}
}

func TestListByAgent(t *testing.T) {
	s := newTestClaimStore(t)

	mustClaim(t, s, 70, 1, 1)
	mustClaim(t, s, 70, 2, 2)
	mustClaim(t, s, 71, 1, 1)

	mine, err := s.ListByAgent(1)
	if err != nil {
		t.Fatalf("ListByAgent: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("agent 1 holds %d claims, want 2", len(mine))
	}
	for _, c := range mine {
		if c.AgentID != 1 {
			t.Errorf("ListByAgent returned claim held by agent %d", c.AgentID)
		}
	}
}

func TestListStale(t *testing.T) {
	s := newTestClaimStore(t)
	now := time.Now()

	// One claim aged 9 hours, one aged 1 hour.
	s.nowFunc = func() time.Time { return now.Add(-9 * time.Hour) }
	mustClaim(t, s, 80, 1, 1)
	s.nowFunc = func() time.Time { return now.Add(-1 * time.Hour) }
	mustClaim(t, s, 80, 2, 2)

	s.nowFunc = func() time.Time { return now }
	stale, err := s.ListStale()
	if err != nil {
		t.Fatalf("ListStale: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("stale count = %d, want 1", len(stale))
	}
	if stale[0].IssueNumber != 1 {
		t.Errorf("stale claim issue = %d, want 1", stale[0].IssueNumber)
	}
}

func TestCorruptFileSelfHeals(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, protocol.ClaimsFile)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewClaimStore(dir)
	active, err := s.ListActive()
	if err != nil {
		t.Fatalf("ListActive on corrupt store: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("corrupt store should read as empty, got %d claims", len(active))
	}

	// The store must remain fully usable.
	if ok, err := s.Claim(1, 1, 1); err != nil || !ok {
		t.Fatalf("claim after self-heal: ok=%v err=%v", ok, err)
	}
}

func TestTwoStoreInstancesObserveEachOther(t *testing.T) {
	dir := t.TempDir()
	a := NewClaimStore(dir)
	b := NewClaimStore(dir)

	if ok, _ := a.Claim(7, 7, 1); !ok {
		t.Fatal("claim via instance a should succeed")
	}
	// No process-local caching: instance b sees a's write.
	if ok, _ := b.Claim(7, 7, 2); ok {
		t.Fatal("instance b must observe instance a's claim")
	}
	if err := b.Release(7, 7); err != nil {
		t.Fatalf("release via instance b: %v", err)
	}
	if ok, _ := a.Claim(7, 7, 2); !ok {
		t.Fatal("instance a must observe instance b's release")
	}
}

func TestConcurrentClaimsSingleWinner(t *testing.T) {
	s := newTestClaimStore(t)

	const contenders = 8
	wins := make(chan int, contenders)
	for i := 0; i < contenders; i++ {
		go func(agent int) {
			ok, err := s.Claim(42, 42, agent)
			if err != nil {
				t.Errorf("claim by agent %d: %v", agent, err)
			}
			if ok {
				wins <- agent
			} else {
				wins <- -1
			}
		}(i)
	}

	winners := 0
	for i := 0; i < contenders; i++ {
		if <-wins >= 0 {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("concurrent claims produced %d winners, want exactly 1", winners)
	}
}

func TestClearAll(t *testing.T) {
	s := newTestClaimStore(t)
	mustClaim(t, s, 1, 1, 1)
	mustClaim(t, s, 1, 2, 1)

	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	active, err := s.ListActive()
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Fatalf("ClearAll left %d claims", len(active))
	}
}

func mustClaim(t *testing.T, s *ClaimStore, project, issue, agent int) {
	t.Helper()
	ok, err := s.Claim(project, issue, agent)
	if err != nil {
		t.Fatalf("claim %d-%d: %v", project, issue, err)
	}
	if !ok {
		t.Fatalf("claim %d-%d unexpectedly contended", project, issue)
	}
}
