//go:build linux

package supervisor

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileWatcherDetectsWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watched")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	fw, err := NewFileWatcher(testLogger(t), []string{path}, false)
	if err != nil {
		t.Fatalf("NewFileWatcher: %v", err)
	}
	defer fw.Close()

	if err := os.WriteFile(path, []byte("y"), 0o644); err != nil {
		t.Fatal(err)
	}

	if !waitReadable(t, fw.Fd(), time.Second) {
		t.Fatal("expected inotify fd to become readable after write")
	}
	if err := fw.Drain(); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}

func TestFileWatcherMissingPathFails(t *testing.T) {
	_, err := NewFileWatcher(testLogger(t), []string{"/does/not/exist"}, false)
	if err == nil {
		t.Fatal("expected error for missing watch path")
	}
}

func TestFileWatcherRecursiveMissingPathFails(t *testing.T) {
	_, err := NewFileWatcher(testLogger(t), []string{"/does/not/exist"}, true)
	if err == nil {
		t.Fatal("expected error for missing recursive watch path")
	}
}

func TestFileWatcherRecursiveWatchesNestedFile(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "deep")
	if err := os.Mkdir(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(nested, "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	fw, err := NewFileWatcher(testLogger(t), []string{dir}, true)
	if err != nil {
		t.Fatalf("NewFileWatcher: %v", err)
	}
	defer fw.Close()

	if err := os.WriteFile(file, []byte("y"), 0o644); err != nil {
		t.Fatal(err)
	}

	if !waitReadable(t, fw.Fd(), time.Second) {
		t.Fatal("expected inotify fd to become readable after nested write")
	}
}
