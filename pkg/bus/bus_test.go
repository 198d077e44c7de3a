package bus //nolint:testpackage // internal white-box tests need access to unexported fields

import (
	"errors"
	"sync"
	"testing"
	"time"

	"hive/pkg/protocol"
)

func event(typ protocol.EventType, project int) protocol.StateChangeEvent {
	return protocol.StateChangeEvent{
		Type:          typ,
		Timestamp:     time.Now(),
		ProjectNumber: project,
	}
}

// collector records delivered events in order.
type collector struct {
	mu     sync.Mutex
	events []protocol.StateChangeEvent
}

func (c *collector) handle(ev protocol.StateChangeEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *collector) projects() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.ProjectNumber
	}
	return out
}

func TestProjectFilter(t *testing.T) {
	b := New()
	b.logf = t.Logf

	filtered := &collector{}
	unfiltered := &collector{}
	b.Subscribe(Filter{ProjectNumbers: []int{72}}, filtered.handle)
	b.Subscribe(Filter{}, unfiltered.handle)

	b.Publish(event(protocol.EventIssueCreated, 72))
	b.Publish(event(protocol.EventIssueCreated, 99))

	if got := filtered.projects(); len(got) != 1 || got[0] != 72 {
		t.Errorf("filtered subscriber saw %v, want [72]", got)
	}
	if got := unfiltered.projects(); len(got) != 2 {
		t.Errorf("unfiltered subscriber saw %v, want both events", got)
	}
}

func TestTypeFilter(t *testing.T) {
	b := New()
	b.logf = t.Logf

	c := &collector{}
	b.Subscribe(Filter{Types: []protocol.EventType{protocol.EventPhaseUpdated}}, c.handle)

	b.Publish(event(protocol.EventIssueCreated, 1))
	b.Publish(event(protocol.EventPhaseUpdated, 1))

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) != 1 || c.events[0].Type != protocol.EventPhaseUpdated {
		t.Errorf("type-filtered subscriber saw %v", c.events)
	}
}

func TestSubscriberFailureIsolation(t *testing.T) {
	b := New()
	b.logf = t.Logf

	good1 := &collector{}
	good2 := &collector{}
	bad := &collector{}

	b.Subscribe(Filter{}, good1.handle)
	badHandle := b.Subscribe(Filter{}, func(ev protocol.StateChangeEvent) error {
		_ = bad.handle(ev)
		return errors.New("subscriber exploded")
	})
	b.Subscribe(Filter{}, good2.handle)

	b.Publish(event(protocol.EventIssueCreated, 1))

	// Both healthy subscribers still received the event.
	if len(good1.projects()) != 1 || len(good2.projects()) != 1 {
		t.Fatal("healthy subscribers must receive the event despite a failing peer")
	}

	// The failing subscriber still receives the next event.
	b.Publish(event(protocol.EventIssueUpdated, 2))
	if got := bad.projects(); len(got) != 2 {
		t.Fatalf("failing subscriber saw %v, want both events", got)
	}
	if n := b.Failures(badHandle); n != 2 {
		t.Errorf("failure count = %d, want 2", n)
	}
}

func TestSubscriberPanicIsolation(t *testing.T) {
	b := New()
	b.logf = t.Logf

	good := &collector{}
	b.Subscribe(Filter{}, func(protocol.StateChangeEvent) error { panic("boom") })
	b.Subscribe(Filter{}, good.handle)

	b.Publish(event(protocol.EventIssueDeleted, 3))

	if len(good.projects()) != 1 {
		t.Fatal("panicking subscriber must not abort delivery to others")
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	b.logf = t.Logf

	c := &collector{}
	handle := b.Subscribe(Filter{}, c.handle)

	b.Publish(event(protocol.EventIssueCreated, 1))
	if err := b.Unsubscribe(handle); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	b.Publish(event(protocol.EventIssueCreated, 2))

	if got := c.projects(); len(got) != 1 {
		t.Errorf("subscriber saw %v after unsubscribe, want one event", got)
	}

	if err := b.Unsubscribe(handle); err == nil {
		t.Error("double unsubscribe must fail loudly")
	}
	if err := b.Unsubscribe("sub-unknown"); err == nil {
		t.Error("unknown handle must fail loudly")
	}
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	b := New()
	b.logf = t.Logf

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := &collector{}
			h := b.Subscribe(Filter{}, c.handle)
			for j := 0; j < 25; j++ {
				b.Publish(event(protocol.EventProjectUpdated, j))
			}
			if err := b.Unsubscribe(h); err != nil {
				t.Errorf("unsubscribe: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := b.PublishedCount(); n != 100 {
		t.Errorf("published = %d, want 100", n)
	}
	if n := b.SubscriberCount(); n != 0 {
		t.Errorf("subscribers = %d, want 0", n)
	}
}
