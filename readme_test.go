package main

import (
	"os"
	"strings"
	"testing"
)

func TestREADMEContainsReferencesSection(t *testing.T) {
	content, err := os.ReadFile("README.md")
	if err != nil {
		t.Fatalf("Failed to read README.md: %v", err)
	}

	readmeText := string(content)

	// Check for References section header
	if !strings.Contains(readmeText, "## References") {
		t.Error("README.md missing ## References section")
	}

	// Check for required links
	requiredLinks := map[string]string{
		"Steve Yegge - Beads":         "github.com/steveyegge/beads",
		"Steve Yegge - Gastown":       "github.com/steveyegge/gastown",
		"Obra - Superpowers":          "github.com/obra/superpowers",
		"Teresa Torres - Context Rot": "https://www.producttalk.org/context-rot/",
	}

	for name, expectedURL := range requiredLinks {
		if !strings.Contains(readmeText, name) {
			t.Errorf("README.md missing reference to %s", name)
		}
		if !strings.Contains(readmeText, expectedURL) {
			t.Errorf("README.md missing URL for %s (expected to contain: %s)", name, expectedURL)
		}
	}
}

func TestREADMEDocumentsOperatorCommands(t *testing.T) {
	content, err := os.ReadFile("README.md")
	if err != nil {
		t.Fatalf("Failed to read README.md: %v", err)
	}

	readmeText := string(content)
	for _, cmd := range []string{
		"hive init", "hive serve", "hive status", "hive claims",
		"hive conflicts", "hive recover", "hive purge", "hive cleanup",
	} {
		if !strings.Contains(readmeText, cmd) {
			t.Errorf("README.md missing command %s", cmd)
		}
	}
}
