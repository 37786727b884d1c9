package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute %v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestDecideStricterStart(t *testing.T) {
	dir := t.TempDir()
	before := writeFile(t, dir, "before.yaml", "startDate: 2026-01-01T00:00:00Z\ndueDate: 2026-02-01T00:00:00Z\nallowOfflineIde: true\n")
	after := writeFile(t, dir, "after.yaml", "startDate: 2026-01-25T00:00:00Z\ndueDate: 2026-02-01T00:00:00Z\nallowOfflineIde: true\n")

	out := execute(t, "decide", "--before", before, "--after", after, "--now", "2026-01-20T00:00:00Z")
	if strings.TrimSpace(out) != "LOCK_ALL_REPOSITORIES_AND_PARTICIPATIONS" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestDecideUnchanged(t *testing.T) {
	dir := t.TempDir()
	snap := writeFile(t, dir, "snap.yaml", "dueDate: 2026-02-01T00:00:00Z\nallowOfflineIde: true\n")

	out := execute(t, "decide", "--before", snap, "--after", snap, "--now", "2026-01-20T00:00:00Z")
	if !strings.Contains(out, "No access changes") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestStatementListsTasks(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "statement.md", "# Sorting\n\n[task][Bubble Sort](testBubbleSort,<testid>17</testid>)\n")

	out := execute(t, "statement", "--file", path)
	for _, want := range []string{"Tasks: 1", "Bubble Sort", "testBubbleSort", "#17"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q misses %q", out, want)
		}
	}
}
