package diag

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewPrefixesLines(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, false)

	logger.Info("spawned child", slog.Int("pid", 42))

	got := buf.String()
	if !strings.HasPrefix(got, "<runar> spawned child") {
		t.Fatalf("output = %q, want prefix %q", got, "<runar> spawned child")
	}
	if !strings.Contains(got, "pid=42") {
		t.Fatalf("output = %q, want to contain %q", got, "pid=42")
	}
	if !strings.HasSuffix(got, "\n") {
		t.Fatalf("output = %q, want trailing newline", got)
	}
}

func TestNewVerboseEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, true)

	logger.Debug("loop iteration", slog.String("state", "alive"))

	if got := buf.String(); !strings.Contains(got, "loop iteration") {
		t.Fatalf("debug line missing in verbose mode, got %q", got)
	}
}

func TestNewNonVerboseSuppressesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, false)

	logger.Debug("loop iteration", slog.String("state", "alive"))

	if got := buf.String(); got != "" {
		t.Fatalf("expected debug line suppressed without verbose, got %q", got)
	}
}

func TestWithAttrsCarriesIntoEveryRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, false).With(slog.String("component", "supervisor"))

	logger.Info("spawned", slog.Int("pid", 7))

	got := buf.String()
	if !strings.Contains(got, "component=supervisor") {
		t.Fatalf("output = %q, want attr component=supervisor", got)
	}
	if !strings.Contains(got, "pid=7") {
		t.Fatalf("output = %q, want pid=7", got)
	}
}

func TestWithGroupPrefixesSubsequentAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, false).WithGroup("child")

	logger.Info("spawned", slog.Int("pid", 7))

	if got := buf.String(); !strings.Contains(got, "child.pid=7") {
		t.Fatalf("output = %q, want grouped key child.pid=7", got)
	}
}
