package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Instances != 3 {
		t.Fatalf("default instances = %d, want 3", cfg.Instances)
	}
}

func TestLoadConfigParsesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "instances: 5\nexecutor: ./run.sh\nnotify:\n  addr: \":7433\"\n  key: secret\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Instances != 5 || cfg.Executor != "./run.sh" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Notify.Addr != ":7433" || cfg.Notify.Key != "secret" {
		t.Fatalf("notify = %+v", cfg.Notify)
	}
}

func TestLoadConfigRejectsMalformedAndNegative(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("instances: [broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(bad); err == nil {
		t.Fatal("malformed config must error")
	}

	neg := filepath.Join(dir, "neg.yaml")
	if err := os.WriteFile(neg, []byte("instances: -2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(neg); err == nil {
		t.Fatal("negative instances must error")
	}
}
