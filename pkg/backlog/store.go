// Package backlog is the file-backed work queue. Each work item is one
// YAML file in the backlog directory, named after its claim key, so
// items can be added by hand, by ideation, or by an external sync job,
// and a directory watcher can turn file changes into events.
package backlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"hive/pkg/protocol"
)

// Item statuses. Pending items are claimable; done items await review.
const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
	StatusBlocked = "blocked"
)

// Item is the on-disk shape of one backlog entry.
type Item struct {
	ProjectNumber int    `yaml:"projectNumber"`
	IssueNumber   int    `yaml:"issueNumber"`
	Title         string `yaml:"title"`
	BranchName    string `yaml:"branchName,omitempty"`
	Status        string `yaml:"status"`
	Reviewed      bool   `yaml:"reviewed,omitempty"`
}

// fileName is the canonical file name for an item, derived from its
// claim key.
func fileName(project, issue int) string {
	return protocol.ClaimKey(project, issue) + ".yaml"
}

// Store reads and writes backlog item files. Like the claim store, it
// holds no cache: every call reads the directory fresh.
type Store struct {
	dir string
}

// NewStore returns a Store over dir. The directory is created lazily on
// the first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the backlog directory path.
func (s *Store) Dir() string { return s.dir }

// DefaultDir returns the backlog directory under root.
func DefaultDir(root string) string {
	return filepath.Join(root, protocol.HiveDir, protocol.BacklogDirName)
}

// Put writes one item, replacing any existing file for the same
// project/issue pair.
func (s *Store) Put(item Item) error {
	if item.Status == "" {
		item.Status = StatusPending
	}
	data, err := yaml.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal backlog item: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create backlog dir: %w", err)
	}
	path := filepath.Join(s.dir, fileName(item.ProjectNumber, item.IssueNumber))
	tmp, err := os.CreateTemp(s.dir, ".item-*")
	if err != nil {
		return fmt.Errorf("create temp item file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp item file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp item file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace item file: %w", err)
	}
	return nil
}

// Get reads one item by project/issue pair. A missing or unreadable
// file returns ok=false.
func (s *Store) Get(project, issue int) (Item, bool) {
	return s.readFile(filepath.Join(s.dir, fileName(project, issue)))
}

// Remove deletes one item file. Removing a missing item is a no-op.
func (s *Store) Remove(project, issue int) error {
	err := os.Remove(filepath.Join(s.dir, fileName(project, issue)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove item file: %w", err)
	}
	return nil
}

// List returns every readable item, ordered by project then issue.
// Unparseable files are skipped, not fatal: one corrupt item must not
// wedge the whole backlog.
func (s *Store) List() ([]Item, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backlog dir: %w", err)
	}
	var items []Item
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		if item, ok := s.readFile(filepath.Join(s.dir, e.Name())); ok {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].ProjectNumber != items[j].ProjectNumber {
			return items[i].ProjectNumber < items[j].ProjectNumber
		}
		return items[i].IssueNumber < items[j].IssueNumber
	})
	return items, nil
}

// ListByStatus returns items with the given status, in List order.
func (s *Store) ListByStatus(status string) ([]Item, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var out []Item
	for _, item := range all {
		if item.Status == status {
			out = append(out, item)
		}
	}
	return out, nil
}

// SetStatus rewrites one item with a new status. Missing items are a
// silent no-op: the item may have been removed out from under us.
func (s *Store) SetStatus(project, issue int, status string) error {
	item, ok := s.Get(project, issue)
	if !ok {
		return nil
	}
	item.Status = status
	return s.Put(item)
}

func (s *Store) readFile(path string) (Item, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Item{}, false
	}
	var item Item
	if err := yaml.Unmarshal(data, &item); err != nil {
		return Item{}, false
	}
	if item.ProjectNumber == 0 && item.IssueNumber == 0 {
		return Item{}, false
	}
	return item, true
}
