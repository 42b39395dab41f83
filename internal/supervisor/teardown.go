//go:build linux

package supervisor

import (
	"log/slog"

	"golang.org/x/sys/unix"
)

// teardown implements term_wait_kill: SIGTERM to the child's process group,
// a bounded signals-only wait to let CHLD arrive naturally, then a
// non-blocking reap-and-escalate pass. If the SIGTERM finds the group
// already empty (ESRCH), it returns at once. It is best-effort: all syscall
// errors here are logged, never propagated, matching spec's "teardown never
// propagates errors" policy.
func (s *Supervisor) teardown() {
	pgrp := -s.childPid

	if err := unix.Kill(pgrp, unix.SIGTERM); err != nil {
		if err == unix.ESRCH {
			// The group is already empty: nothing to wait for or kill.
			return
		}
		s.logger.Warn("supervisor: teardown: sigterm failed", slog.Any("error", err))
	}

	if _, err := s.es.WaitSignals(s.opts.KillTimer); err != nil {
		s.logger.Warn("supervisor: teardown: signals-only wait failed", slog.Any("error", err))
	}

	escalate := false
	for {
		var ws unix.WaitStatus
		wpid, err := unix.Wait4(pgrp, &ws, unix.WNOHANG, nil)
		if err != nil {
			if err == unix.ECHILD {
				break
			}
			if err == unix.EINTR {
				continue
			}
			s.logger.Warn("supervisor: teardown: reap failed", slog.Any("error", err))
			break
		}
		if wpid == 0 {
			escalate = true
			break
		}
		// wpid > 0: one descendant reaped; keep draining.
	}

	if escalate {
		if s.opts.Verbose {
			s.logger.Info("supervisor: teardown: escalating to SIGKILL", slog.Int("pgrp", -pgrp))
		}
		if err := unix.Kill(pgrp, unix.SIGKILL); err != nil && err != unix.ESRCH {
			s.logger.Warn("supervisor: teardown: sigkill failed", slog.Any("error", err))
		}
		// Do not block further: the sub-reaper plus subsequent CHLD
		// deliveries mop up whatever SIGKILL leaves behind.
	}
}

// reapAvailable drains every immediately-reapable descendant via WNOHANG,
// tolerating ECHILD (no children left) and EINTR (retry). It returns the
// exit status of each pid reaped in this pass.
func reapAvailable() (map[int]unix.WaitStatus, error) {
	results := make(map[int]unix.WaitStatus)
	for {
		var ws unix.WaitStatus
		wpid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if err != nil {
			if err == unix.ECHILD {
				return results, nil
			}
			if err == unix.EINTR {
				continue
			}
			return results, err
		}
		if wpid <= 0 {
			return results, nil
		}
		results[wpid] = ws
	}
}

// rawStatus derives spec's raw status byte from a reaped wait status: the
// exit code for a normal exit, or 128+signal for a signaled exit.
func rawStatus(ws unix.WaitStatus) int {
	switch {
	case ws.Exited():
		return ws.ExitStatus()
	case ws.Signaled():
		return 128 + int(ws.Signal())
	default:
		return 0
	}
}
