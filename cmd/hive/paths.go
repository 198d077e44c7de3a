package main

import (
	"fmt"
	"os"
	"path/filepath"

	"hive/pkg/backlog"
	"hive/pkg/eventlog"
	"hive/pkg/protocol"
)

// Paths holds all resolved hive state file paths.
// Use ResolvePaths() to populate this struct with defaults + env overrides.
type Paths struct {
	Root       string // project root: HIVE_HOME or the working directory
	HiveDir    string // <root>/.hive
	SessionDir string // claim, conflict, and session stores
	DBPath     string // runtime database
	BacklogDir string // backlog item files
	ConfigPath string // <root>/.hive/config.yaml
}

// ResolvePaths returns all hive paths, rooted at HIVE_HOME when set and
// the working directory otherwise.
func ResolvePaths() (*Paths, error) {
	root := os.Getenv("HIVE_HOME")
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		root = wd
	}

	hiveDir := filepath.Join(root, protocol.HiveDir)
	return &Paths{
		Root:       root,
		HiveDir:    hiveDir,
		SessionDir: filepath.Join(hiveDir, protocol.SessionDirName),
		DBPath:     eventlog.DefaultDBPath(root),
		BacklogDir: backlog.DefaultDir(root),
		ConfigPath: filepath.Join(hiveDir, "config.yaml"),
	}, nil
}
