//go:build linux

package supervisor

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// waitReadable polls fd until it is readable or timeout elapses.
func waitReadable(t *testing.T, fd int, timeout time.Duration) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, 50)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			t.Fatalf("poll: %v", err)
		}
		if n > 0 && fds[0].Revents&unix.POLLIN != 0 {
			return true
		}
	}
	return false
}
