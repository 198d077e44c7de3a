package backlog //nolint:testpackage // internal white-box tests need access to unexported fields

import (
	"context"
	"errors"
	"testing"
	"time"

	"hive/pkg/bus"
	"hive/pkg/orchestrator"
	"hive/pkg/protocol"
	"hive/pkg/queue"
)

func seedItem(t *testing.T, s *Store, project, issue int, title string) {
	t.Helper()
	if err := s.Put(Item{ProjectNumber: project, IssueNumber: issue, Title: title}); err != nil {
		t.Fatal(err)
	}
}

func TestStorePutGetList(t *testing.T) {
	s := NewStore(t.TempDir())
	seedItem(t, s, 79, 2, "second")
	seedItem(t, s, 79, 1, "first")
	seedItem(t, s, 12, 9, "other project")

	items, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("list = %d items, want 3", len(items))
	}
	// Ordered by project, then issue.
	if items[0].ProjectNumber != 12 || items[1].IssueNumber != 1 || items[2].IssueNumber != 2 {
		t.Fatalf("order wrong: %+v", items)
	}

	got, ok := s.Get(79, 1)
	if !ok || got.Title != "first" || got.Status != StatusPending {
		t.Fatalf("get = %+v ok=%v", got, ok)
	}
}

func TestStoreEmptyDirIsEmptyBacklog(t *testing.T) {
	s := NewStore(t.TempDir() + "/missing")
	items, err := s.List()
	if err != nil || items != nil {
		t.Fatalf("missing dir: items=%v err=%v", items, err)
	}
}

func TestStoreSetStatusAndRemove(t *testing.T) {
	s := NewStore(t.TempDir())
	seedItem(t, s, 79, 1, "x")

	if err := s.SetStatus(79, 1, StatusDone); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(79, 1)
	if got.Status != StatusDone {
		t.Fatalf("status = %q", got.Status)
	}

	// Missing items are silent no-ops on both paths.
	if err := s.SetStatus(1, 1, StatusDone); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(1, 1); err != nil {
		t.Fatal(err)
	}

	if err := s.Remove(79, 1); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get(79, 1); ok {
		t.Fatal("item survived remove")
	}
}

func newTestSource(t *testing.T, run Runner, ideate Ideator) (*Source, *Store) {
	t.Helper()
	dir := t.TempDir()
	store := NewStore(dir)
	src := NewSource(store, queue.NewClaimStore(dir), run, ideate)
	src.logf = t.Logf
	return src, store
}

func TestNextItemSkipsClaimedItems(t *testing.T) {
	src, store := newTestSource(t, nil, nil)
	seedItem(t, store, 79, 1, "held")
	seedItem(t, store, 79, 2, "free")

	if _, err := src.claims.Claim(79, 1, 3); err != nil {
		t.Fatal(err)
	}

	item, err := src.NextItem(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if item == nil || item.IssueNumber != 2 {
		t.Fatalf("next = %+v, want issue 2", item)
	}
}

func TestNextItemEmptyBacklog(t *testing.T) {
	src, _ := newTestSource(t, nil, nil)
	item, err := src.NextItem(context.Background())
	if err != nil || item != nil {
		t.Fatalf("empty backlog: item=%v err=%v", item, err)
	}
}

func TestExecuteOutcomesUpdateItemStatus(t *testing.T) {
	cases := []struct {
		name   string
		runErr error
		want   string
	}{
		{"success", nil, StatusDone},
		{"failure", errors.New("boom"), StatusFailed},
		{"conflict", &orchestrator.ConflictError{BranchName: "b"}, StatusBlocked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src, store := newTestSource(t, func(context.Context, int, orchestrator.WorkItem) error {
				return tc.runErr
			}, nil)
			seedItem(t, store, 79, 1, "work")

			err := src.Execute(context.Background(), 1, orchestrator.WorkItem{ProjectNumber: 79, IssueNumber: 1})
			if (err == nil) != (tc.runErr == nil) {
				t.Fatalf("execute err = %v", err)
			}
			got, _ := store.Get(79, 1)
			if got.Status != tc.want {
				t.Fatalf("status = %q, want %q", got.Status, tc.want)
			}
		})
	}
}

func TestReviewCycle(t *testing.T) {
	src, store := newTestSource(t, func(context.Context, int, orchestrator.WorkItem) error {
		return nil
	}, nil)
	seedItem(t, store, 79, 1, "work")

	if err := src.Execute(context.Background(), 1, orchestrator.WorkItem{ProjectNumber: 79, IssueNumber: 1}); err != nil {
		t.Fatal(err)
	}

	n, err := src.PendingReviews(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("pending = %d err=%v, want 1", n, err)
	}

	ok, err := src.NextReview(context.Background(), 2)
	if err != nil || !ok {
		t.Fatalf("review: ok=%v err=%v", ok, err)
	}

	n, _ = src.PendingReviews(context.Background())
	if n != 0 {
		t.Fatalf("pending after review = %d", n)
	}
	ok, _ = src.NextReview(context.Background(), 2)
	if ok {
		t.Fatal("second review should find nothing")
	}
}

func TestIdeateFilesNewItems(t *testing.T) {
	src, store := newTestSource(t, nil, func(context.Context, int) ([]orchestrator.WorkItem, error) {
		return []orchestrator.WorkItem{{ProjectNumber: 70, IssueNumber: 9, Title: "idea"}}, nil
	})

	created, err := src.Ideate(context.Background(), 1)
	if err != nil || len(created) != 1 {
		t.Fatalf("ideate: created=%v err=%v", created, err)
	}
	got, ok := store.Get(70, 9)
	if !ok || got.Status != StatusPending {
		t.Fatalf("ideated item = %+v ok=%v", got, ok)
	}
}

func TestIdeateWithoutIdeatorIsQuiet(t *testing.T) {
	src, _ := newTestSource(t, nil, nil)
	created, err := src.Ideate(context.Background(), 1)
	if err != nil || created != nil {
		t.Fatalf("nil ideator: created=%v err=%v", created, err)
	}
}

func TestWatcherDiffEmitsLifecycleEvents(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	eventBus := bus.New()

	var events []protocol.StateChangeEvent
	eventBus.Subscribe(bus.Filter{}, func(ev protocol.StateChangeEvent) error {
		events = append(events, ev)
		return nil
	})

	w := NewWatcher(WatcherConfig{}, store, eventBus)
	w.logf = t.Logf

	// Pre-existing contents are primed, not announced.
	seedItem(t, store, 79, 1, "already there")
	w.rescan(false)
	if len(events) != 0 {
		t.Fatalf("priming published %d events", len(events))
	}

	seedItem(t, store, 79, 2, "new")
	w.rescan(true)
	if len(events) != 1 || events[0].Type != protocol.EventIssueCreated || events[0].IssueNumber != 2 {
		t.Fatalf("after create: %+v", events)
	}

	if err := store.SetStatus(79, 2, StatusDone); err != nil {
		t.Fatal(err)
	}
	w.rescan(true)
	if len(events) != 2 || events[1].Type != protocol.EventIssueUpdated {
		t.Fatalf("after update: %+v", events)
	}

	if err := store.Remove(79, 1); err != nil {
		t.Fatal(err)
	}
	w.rescan(true)
	if len(events) != 3 || events[2].Type != protocol.EventIssueDeleted || events[2].IssueNumber != 1 {
		t.Fatalf("after delete: %+v", events)
	}
}

func TestWatcherRunStopsOnCancel(t *testing.T) {
	store := NewStore(t.TempDir())
	w := NewWatcher(WatcherConfig{PollInterval: 10 * time.Millisecond}, store, nil)
	w.logf = t.Logf

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}
