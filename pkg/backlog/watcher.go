package backlog

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"

	"hive/pkg/bus"
	"hive/pkg/protocol"
)

// WatcherConfig holds watcher tuning knobs.
type WatcherConfig struct {
	PollInterval         time.Duration // pure-poll interval when fsnotify is unavailable (default 10s)
	FallbackPollInterval time.Duration // safety-net poll interval alongside fsnotify (default 60s)
	Debounce             time.Duration // quiet window after an fs event before rescanning (default 200ms)
}

func (c *WatcherConfig) withDefaults() WatcherConfig {
	out := *c
	if out.PollInterval == 0 {
		out.PollInterval = 10 * time.Second
	}
	if out.FallbackPollInterval == 0 {
		out.FallbackPollInterval = 60 * time.Second
	}
	if out.Debounce == 0 {
		out.Debounce = 200 * time.Millisecond
	}
	return out
}

// Watcher turns backlog file changes into bus events so downstream
// subscribers (the notification server, the dash) see issue churn
// without polling the directory themselves.
type Watcher struct {
	cfg   WatcherConfig
	store *Store
	bus   *bus.Bus
	logf  func(format string, args ...any)

	// last directory snapshot, keyed by claim key.
	seen map[string]Item
}

// NewWatcher builds a Watcher over the store's directory.
func NewWatcher(cfg WatcherConfig, store *Store, eventBus *bus.Bus) *Watcher {
	return &Watcher{
		cfg:   cfg.withDefaults(),
		store: store,
		bus:   eventBus,
		logf:  log.Printf,
		seen:  make(map[string]Item),
	}
}

// Run watches the backlog directory until ctx is cancelled. It prefers
// fsnotify with a slow safety-net poll, and degrades to pure polling
// when the watch cannot be established.
func (w *Watcher) Run(ctx context.Context) {
	// Prime the snapshot so startup contents don't flood subscribers
	// with created events.
	w.rescan(false)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logf("backlog: fsnotify unavailable, polling: %v", err)
		w.runPoll(ctx)
		return
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(w.store.Dir()); err != nil {
		w.logf("backlog: watch %s failed, polling: %v", w.store.Dir(), err)
		w.runPoll(ctx)
		return
	}

	fallback := time.NewTicker(w.cfg.FallbackPollInterval)
	defer fallback.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-watcher.Events:
			// Writes arrive in bursts; wait for a quiet window.
			if debounce == nil {
				debounce = time.NewTimer(w.cfg.Debounce)
				debounceC = debounce.C
			} else {
				debounce.Reset(w.cfg.Debounce)
			}
		case <-debounceC:
			debounce = nil
			debounceC = nil
			w.rescan(true)
		case err := <-watcher.Errors:
			if err != nil {
				w.logf("backlog: watcher error: %v", err)
			}
		case <-fallback.C:
			w.rescan(true)
		}
	}
}

func (w *Watcher) runPoll(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.rescan(true)
		}
	}
}

// rescan diffs the directory against the last snapshot and, when
// publish is set, emits one event per created, updated, or deleted
// item.
func (w *Watcher) rescan(publish bool) {
	items, err := w.store.List()
	if err != nil {
		w.logf("backlog: rescan: %v", err)
		return
	}

	current := make(map[string]Item, len(items))
	for _, item := range items {
		current[protocol.ClaimKey(item.ProjectNumber, item.IssueNumber)] = item
	}

	if publish {
		for key, item := range current {
			prev, existed := w.seen[key]
			switch {
			case !existed:
				w.emit(protocol.EventIssueCreated, item)
			case prev != item:
				w.emit(protocol.EventIssueUpdated, item)
			}
		}
		for key, item := range w.seen {
			if _, still := current[key]; !still {
				w.emit(protocol.EventIssueDeleted, item)
			}
		}
	}
	w.seen = current
}

func (w *Watcher) emit(eventType protocol.EventType, item Item) {
	if w.bus == nil {
		return
	}
	data, _ := json.Marshal(map[string]string{
		"title":  item.Title,
		"status": item.Status,
	})
	w.bus.Publish(protocol.StateChangeEvent{
		Type:          eventType,
		Timestamp:     time.Now(),
		ProjectNumber: item.ProjectNumber,
		IssueNumber:   item.IssueNumber,
		Data:          data,
	})
}
