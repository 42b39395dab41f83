// Package supervisor implements the event/state core: the FileWatcher,
// EventSource, and Supervisor described for runar. This file is the
// FileWatcher, generalized from the teacher's inotify watcher
// (internal/watcher/inotify_linux.go in the original tree this module was
// built from) and from the upstream Rust original's setup_inotify
// (event_handler.rs): instead of decoding event identities and dispatching
// typed alerts on its own goroutine, it owns a single inotify instance and
// exposes its raw fd for registration with the EventSource's epoll set, and
// its job is reduced to "something changed" — no identity, no goroutine.
//
//go:build linux

package supervisor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// inClosew is IN_CLOSE_WRITE: a writable file descriptor referring to the
// watched path was closed. Chosen over IN_MODIFY to collapse one logical
// edit (open, write, close) into a single event, which is the debounce
// editors' save patterns need.
const inClosew uint32 = unix.IN_CLOSE_WRITE

// FileWatcher wraps a single inotify instance and the set of watches
// installed from the configured paths. It produces no ordering or identity
// information about which file changed — Drain discards it deliberately.
type FileWatcher struct {
	fd     int
	logger *slog.Logger
}

// NewFileWatcher creates a non-blocking, close-on-exec inotify instance and
// installs an IN_CLOSE_WRITE watch for each of files. When recursive is
// true, each path is walked and a watch is installed on every entry
// (including the root itself); otherwise exactly one watch per path is
// installed. A path that cannot be resolved (ENOENT or any other stat/watch
// failure) is a fatal setup error: the caller is expected to report it on
// the diagnostics stream and exit 1, matching spec's "no such file or
// directory" contract.
func NewFileWatcher(logger *slog.Logger, files []string, recursive bool) (*FileWatcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("file watcher: inotify_init1: %w", err)
	}

	fw := &FileWatcher{fd: fd, logger: logger}

	for _, path := range files {
		if err := fw.addWatches(path, recursive); err != nil {
			unix.Close(fd)
			return nil, err
		}
	}

	return fw, nil
}

// addWatches installs the watch(es) rooted at path.
func (fw *FileWatcher) addWatches(path string, recursive bool) error {
	if !recursive {
		if _, err := unix.InotifyAddWatch(fw.fd, path, inClosew); err != nil {
			return fmt.Errorf("no such file or directory: %s: %w", path, err)
		}
		fw.logger.Debug("file watcher: watching path", slog.String("path", path))
		return nil
	}

	return filepath.Walk(path, func(entry string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("no such file or directory: %s: %w", entry, err)
		}
		if _, werr := unix.InotifyAddWatch(fw.fd, entry, inClosew); werr != nil {
			return fmt.Errorf("no such file or directory: %s: %w", entry, werr)
		}
		fw.logger.Debug("file watcher: watching path", slog.String("path", entry))
		return nil
	})
}

// Fd returns the inotify file descriptor, suitable for registration with
// the EventSource's readiness multiplexer.
func (fw *FileWatcher) Fd() int { return fw.fd }

// Drain reads and discards all pending inotify events without decoding
// which files changed. EAGAIN (nothing pending) is not an error.
func (fw *FileWatcher) Drain() error {
	var buf [4096]byte
	for {
		n, err := unix.Read(fw.fd, buf[:])
		if err != nil {
			if err == unix.EAGAIN {
				return nil
			}
			return fmt.Errorf("file watcher: read: %w", err)
		}
		if n <= 0 {
			return nil
		}
	}
}

// Close releases the inotify instance.
func (fw *FileWatcher) Close() error {
	return unix.Close(fw.fd)
}
