//go:build linux

// Package supervisor implements runar's event/state core: the FileWatcher,
// EventSource, and Supervisor. Supervisor is the state machine driving
// spawn/terminate/kill/reap/restart decisions for a single supervised child
// process: a constructor-injected *slog.Logger, functional-options
// construction (WithStdio), and one struct owning the child's lifecycle
// end to end, with no other components to forward events to.
package supervisor

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/runar-sh/runar/internal/options"
)

// childState is one of Alive, Dormant, Restarting.
type childState int

const (
	stateAlive childState = iota
	stateDormant
	stateRestarting
)

func (s childState) String() string {
	switch s {
	case stateAlive:
		return "alive"
	case stateDormant:
		return "dormant"
	case stateRestarting:
		return "restarting"
	default:
		return "unknown"
	}
}

// restartDebounceMs is the signals-only wait timeout honored while
// Restarting, absorbing file-change bursts that occur during teardown so a
// restart does not immediately retrigger against stale state.
const restartDebounceMs = 100

// Supervisor owns the child-process lifecycle state machine described for
// runar: spawn, terminate, kill, reap, and the restart/dormancy/exit policy
// decision on every child exit.
type Supervisor struct {
	opts   options.Options
	logger *slog.Logger

	fw *FileWatcher
	es *EventSource

	state      childState
	childPid   int
	lastStatus int

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// Option is a functional option for Supervisor construction.
type Option func(*Supervisor)

// WithStdio overrides the child's inherited stdio streams. Tests use this to
// capture a fixture command's output; production callers leave it unset and
// get the supervisor's own inherited os.Stdin/Stdout/Stderr, so the child's
// output streams are passed through unchanged.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(s *Supervisor) {
		s.stdin = stdin
		s.stdout = stdout
		s.stderr = stderr
	}
}

// New performs the startup sequence up to, but not including, the initial
// spawn: marks the process a sub-reaper and constructs the FileWatcher and
// EventSource, which is where watchedSignals' catch-all is installed (see
// eventsource_linux.go's doc comment for why that, not a thread-directed
// sigprocmask, is the correct "mask the signal set before the first spawn"
// step in Go). Run performs the initial spawn and then owns the main loop.
func New(logger *slog.Logger, opts options.Options, optFns ...Option) (*Supervisor, error) {
	if err := unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0); err != nil {
		return nil, fmt.Errorf("supervisor: prctl(PR_SET_CHILD_SUBREAPER): %w", err)
	}

	fw, err := NewFileWatcher(logger, opts.Files, opts.Recursive)
	if err != nil {
		return nil, err
	}

	es, err := NewEventSource(logger, fw)
	if err != nil {
		fw.Close()
		return nil, err
	}

	s := &Supervisor{
		opts:   opts,
		logger: logger,
		fw:     fw,
		es:     es,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, fn := range optFns {
		fn(s)
	}
	return s, nil
}

// Run spawns the initial child and owns the main loop until a terminating
// condition is reached. When the loop ends with the state still Alive, Run
// calls teardown once more; it does not check whether the event that ended
// the loop already tore the group down (teardown returns at once when the
// group is already empty). It returns the process's own exit status: 1 if
// the initial spawn or a wait fails, otherwise the last recorded child exit
// status, or 0 if no child has exited yet.
func (s *Supervisor) Run() int {
	defer s.es.Close()
	defer s.fw.Close()

	if err := s.spawn(); err != nil {
		s.logger.Error("supervisor: initial spawn failed", slog.Any("error", err))
		return 1
	}
	s.state = stateAlive

	for {
		ev, err := s.waitNext()
		if err != nil {
			s.logger.Error("supervisor: wait failed", slog.Any("error", err))
			if s.state == stateAlive {
				s.teardown()
			}
			return 1
		}

		if s.opts.Verbose {
			s.logger.Debug("supervisor: loop iteration",
				slog.String("state", s.state.String()),
				slog.String("event", ev.Kind.String()))
		}

		exitLoop, err := s.dispatch(ev)
		if err != nil {
			s.logger.Warn("supervisor: dispatch error", slog.Any("error", err))
		}
		if exitLoop {
			break
		}
	}

	if s.state == stateAlive {
		s.teardown()
	}
	return s.lastStatus
}

// waitNext performs the single wait call for one loop iteration, honoring
// the Restarting-state debounce (signals-only wait at 100ms, then an
// inotify drain discarding whatever backlog accumulated).
func (s *Supervisor) waitNext() (Event, error) {
	if s.state != stateRestarting {
		return s.es.Wait(-1)
	}

	ev, err := s.es.WaitSignals(restartDebounceMs)
	if err != nil {
		return Event{}, err
	}
	if derr := s.fw.Drain(); derr != nil {
		s.logger.Warn("supervisor: inotify drain after debounce", slog.Any("error", derr))
	}
	return ev, nil
}

// dispatch applies the state/event transition table described for runar.
// It returns (true, nil) when the main loop should exit.
func (s *Supervisor) dispatch(ev Event) (bool, error) {
	switch ev.Kind {
	case KindTerminate:
		if s.state == stateAlive {
			s.teardown()
		}
		return true, nil

	case KindFilesChanged:
		switch s.state {
		case stateAlive:
			s.teardown()
			s.state = stateRestarting
		case stateDormant:
			s.state = stateRestarting
		case stateRestarting:
			// Unreachable: Restarting only waits on signals.
		}
		return false, nil

	case KindChildExit:
		return s.handleChildExit()

	case KindNothing:
		if s.state == stateRestarting {
			if err := s.spawn(); err != nil {
				return true, err
			}
			s.state = stateAlive
		}
		return false, nil
	}

	return false, nil
}

// handleChildExit performs the coalescing-aware reap described in spec's
// reaping discipline: the ChildExit event carries no pid, and one SIGCHLD
// can cover many exits; instead every available
// descendant is reaped non-blockingly and routing is decided by whether the
// tracked child's pid shows up among the results.
func (s *Supervisor) handleChildExit() (bool, error) {
	results, err := reapAvailable()
	if err != nil {
		return false, err
	}

	ws, exited := results[s.childPid]
	if !exited {
		// Only grandchildren exited this round; nothing changes.
		return false, nil
	}

	status := rawStatus(ws)
	s.lastStatus = status
	if s.opts.Verbose {
		s.logger.Info("supervisor: child exited",
			slog.Int("pid", s.childPid), slog.Int("status", status))
	}

	switch s.state {
	case stateAlive:
		s.teardown()
		exitLoop, policy := s.applyPolicy(status)
		if s.opts.Verbose {
			s.logger.Info("supervisor: policy decision", slog.String("decision", policy))
		}
		return exitLoop, nil
	case stateRestarting:
		if err := s.spawn(); err != nil {
			return true, err
		}
		s.state = stateAlive
		return false, nil
	default: // stateDormant
		return false, nil
	}
}

// applyPolicy resolves spec's (exit_on_X, restart_on_X) pairs in first-match
// order and returns whether the loop should exit, plus a label for logging.
func (s *Supervisor) applyPolicy(status int) (bool, string) {
	zero := status == 0
	switch {
	case s.opts.ExitOnZero && zero:
		return true, "exit"
	case s.opts.ExitOnError && !zero:
		return true, "exit"
	case s.opts.RestartOnZero && zero:
		s.state = stateRestarting
		return false, "restart"
	case s.opts.RestartOnError && !zero:
		s.state = stateRestarting
		return false, "restart"
	default:
		s.state = stateDormant
		return false, "dormant"
	}
}

// spawn forks and execs the configured command, inheriting stdio unchanged.
// SysProcAttr.Setpgid with a zero Pgid implements setpgid(0, 0): the child
// becomes the leader of its own new process group, which is the corrected
// behavior spec calls for in place of the upstream source's
// setpgid(0, supervisor_pid) bug.
//
// There is no pre-exec "unblock the signal set" step here, and none is
// needed: watchedSignals are never blocked at the kernel level in the first
// place (see eventsource_linux.go's doc comment — they are caught via
// os/signal.Notify, a handler-based disposition, not a sigprocmask block).
// POSIX resets a caught signal's disposition to its default on execve
// regardless of the caller's signal mask (only SIG_IGN survives exec), so
// the exec'd command gets default HUP/INT/TERM/CHLD disposition
// automatically, with nothing for spawn to do about it.
func (s *Supervisor) spawn() error {
	cmd := exec.Command(s.opts.Command[0], s.opts.Command[1:]...)
	cmd.Stdin = s.stdin
	cmd.Stdout = s.stdout
	cmd.Stderr = s.stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("supervisor: spawn %q: %w", s.opts.Command[0], err)
	}

	s.childPid = cmd.Process.Pid
	if s.opts.Verbose {
		s.logger.Info("supervisor: spawned child", slog.Int("pid", s.childPid))
	}
	return nil
}
