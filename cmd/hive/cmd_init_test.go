package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitCreatesLayout(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HIVE_HOME", dir)

	out, err := runHive(t, "init")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "initialized") {
		t.Fatalf("output = %q", out)
	}

	for _, p := range []string{
		filepath.Join(dir, ".hive", "session"),
		filepath.Join(dir, ".hive", "backlog"),
		filepath.Join(dir, ".hive", "config.yaml"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing %s: %v", p, err)
		}
	}
}

func TestInitRefusesToOverwriteWithoutForce(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HIVE_HOME", dir)

	if _, err := runHive(t, "init"); err != nil {
		t.Fatal(err)
	}
	if _, err := runHive(t, "init"); err == nil {
		t.Fatal("second init must refuse without --force")
	}
	if _, err := runHive(t, "init", "--force"); err != nil {
		t.Fatalf("init --force: %v", err)
	}
}
