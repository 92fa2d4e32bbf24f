package main

import (
	"bytes"
	"strings"
	"testing"
)

// TestBuildInfo tests that version helpers never return empty strings.
func TestBuildInfo(t *testing.T) {
	t.Parallel()

	for name, got := range map[string]string{
		"version": getVersion(),
		"commit":  getCommit(),
		"date":    getDate(),
	} {
		if got == "" {
			t.Errorf("%s is empty", name)
		}
	}
	if c := getCommit(); len(c) > 7 && c != "unknown" {
		t.Errorf("commit should be shortened, got %q", c)
	}
}

// TestNewVersionCmd tests the version command output.
func TestNewVersionCmd(t *testing.T) {
	t.Parallel()

	t.Run("prints full version info", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		cmd := NewVersionCmd()
		cmd.SetOut(&buf)
		cmd.SetArgs([]string{})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"stackcrawl version", "commit:", "built:", "go:"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q, got %q", want, output)
			}
		}
	})

	t.Run("prints only the version with --short", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		cmd := NewVersionCmd()
		cmd.SetOut(&buf)
		cmd.SetArgs([]string{"--short"})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := strings.TrimSpace(buf.String()); got != getVersion() {
			t.Errorf("expected %q, got %q", getVersion(), got)
		}
	})
}
