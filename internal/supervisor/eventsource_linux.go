//go:build linux

package supervisor

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// watchedSignals is the fixed set the supervisor catches for its own
// lifetime: HUP, INT, TERM, CHLD.
var watchedSignals = []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGCHLD}

const maxEpollEvents = 10

// EventSource multiplexes watchedSignals and a FileWatcher's inotify fd into
// a single prioritized Event stream. It owns the readiness loop: Wait and
// WaitSignals are the only blocking calls in the supervisor, matching the
// single-threaded, lock-free design described for the core.
//
// The upstream Rust original (event_handler.rs) gets this multiplexing for
// free from a real signalfd: sigprocmask blocks the set on the one OS thread
// that exists, and the signalfd becomes just another pollable descriptor.
// That does not translate to Go. golang.org/x/sys/unix.Sigprocmask only
// blocks a signal on the calling OS thread; the Go runtime multiplexes
// goroutines across many OS threads it creates and manages itself (sysmon,
// threads parked in blocking syscalls, …), and a goroutine can hop threads
// across any blocking call. A single Sigprocmask call cannot mask a signal
// "on every supervisor thread" the way spec's invariant wants, so a signal
// delivered to an unmasked thread would run Go's default disposition
// (terminate the process) without ever reaching this package. The
// idiomatic Go substitute for "catch a signal regardless of which thread
// the kernel delivers it to" is os/signal.Notify, which is itself
// process-wide by construction — this is the same mechanism the teacher
// (cmd/agent/main.go, cmd/server/main.go) and
// bogen85-config/.../zombie-reaping-supervisor/supervisor.go use for their
// own INT/TERM/CHLD handling. To keep this multiplexed with the inotify fd
// under one epoll wait (preserving spec's single prioritized wait/
// wait_signals contract), a goroutine forwards each signal.Notify delivery
// across the classic self-pipe: one byte per signal, written into an
// os.Pipe whose read end is registered with epoll alongside the inotify fd.
type EventSource struct {
	epollFd int
	sigR    *os.File
	sigW    *os.File
	sigCh   chan os.Signal
	fw      *FileWatcher
	logger  *slog.Logger
}

// NewEventSource installs signal.Notify for watchedSignals, starts the
// self-pipe forwarding goroutine, and creates an epoll instance registering
// both the pipe's read end and fw's inotify fd. Because signal.Notify's
// process-wide disposition change — not a thread-directed sigprocmask — is
// what makes signal delivery reliable here, this call itself is the
// "mask the signal set" step spec's startup sequence calls for: it must run
// (as it does, via Supervisor.New) before the first child spawn.
func NewEventSource(logger *slog.Logger, fw *FileWatcher) (*EventSource, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("event source: self-pipe: %w", err)
	}
	if err := unix.SetNonblock(int(r.Fd()), true); err != nil {
		r.Close()
		w.Close()
		return nil, fmt.Errorf("event source: set self-pipe nonblocking: %w", err)
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		r.Close()
		w.Close()
		return nil, fmt.Errorf("event source: epoll_create1: %w", err)
	}

	sigCh := make(chan os.Signal, 16)
	signal.Notify(sigCh, watchedSignals...)

	es := &EventSource{epollFd: epfd, sigR: r, sigW: w, sigCh: sigCh, fw: fw, logger: logger}

	go es.forwardSignals()

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, int(r.Fd()), &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(r.Fd())}); err != nil {
		es.Close()
		return nil, fmt.Errorf("event source: epoll_ctl add self-pipe: %w", err)
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fw.Fd(), &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fw.Fd())}); err != nil {
		es.Close()
		return nil, fmt.Errorf("event source: epoll_ctl add inotify: %w", err)
	}

	return es, nil
}

// forwardSignals relays every signal.Notify delivery across the self-pipe as
// one byte (the signal number), until sigCh is closed by Close. Pipe write
// errors are swallowed: they only happen post-Close, after the pipe's write
// end is already gone, by which point nothing is waiting to read it.
func (es *EventSource) forwardSignals() {
	for sig := range es.sigCh {
		if num, ok := sig.(syscall.Signal); ok {
			es.sigW.Write([]byte{byte(num)}) //nolint:errcheck
		}
	}
}

// Wait blocks until the self-pipe or the inotify fd is ready, or timeoutMs
// elapses (a negative timeoutMs waits indefinitely), and returns the
// minimum-by-priority Event observed across every ready descriptor.
func (es *EventSource) Wait(timeoutMs int) (Event, error) {
	return es.wait(timeoutMs, true)
}

// WaitSignals behaves like Wait but ignores inotify readiness entirely. Used
// during the restart debounce and inside teardown so a burst of file writes
// does not interrupt the wait; the inotify backlog must be drained
// separately by the caller afterward.
func (es *EventSource) WaitSignals(timeoutMs int) (Event, error) {
	return es.wait(timeoutMs, false)
}

func (es *EventSource) wait(timeoutMs int, includeInotify bool) (Event, error) {
	if !includeInotify {
		if err := es.setInotifyArmed(false); err != nil {
			return Event{}, err
		}
		defer es.setInotifyArmed(true)
	}

	var events [maxEpollEvents]unix.EpollEvent
	n, err := unix.EpollWait(es.epollFd, events[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return Event{Kind: KindNothing}, nil
		}
		return Event{}, fmt.Errorf("event source: epoll_wait: %w", err)
	}
	if n == 0 {
		return Event{Kind: KindNothing}, nil
	}

	sigFd := int(es.sigR.Fd())
	result := Event{Kind: KindNothing}
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		switch fd {
		case sigFd:
			ev, err := es.readSignals()
			if err != nil {
				return Event{}, err
			}
			result = min(result, ev)
		case es.fw.Fd():
			if err := es.fw.Drain(); err != nil {
				return Event{}, err
			}
			result = min(result, Event{Kind: KindFilesChanged})
		}
	}
	return result, nil
}

// readSignals reads whatever is pending on the self-pipe in one call and
// maps the signal numbers found to the minimum-by-priority Event. Only one
// read is made per wake-up, so it never waits on an already-empty pipe;
// bytes beyond buf's size stay in the pipe, which keeps it readable for the
// next epoll wait.
func (es *EventSource) readSignals() (Event, error) {
	var buf [32]byte
	n, err := es.sigR.Read(buf[:])
	if err != nil {
		if err == os.ErrClosed {
			return Event{Kind: KindNothing}, nil
		}
		return Event{}, fmt.Errorf("event source: read self-pipe: %w", err)
	}

	result := Event{Kind: KindNothing}
	for i := 0; i < n; i++ {
		result = min(result, signalToEvent(es.logger, syscall.Signal(buf[i])))
	}
	return result, nil
}

// signalToEvent maps one watched signal number to its Event. The Event
// carries no pid (the self-pipe carries only the signal number, not kernel
// siginfo); on ChildExit the supervisor reaps every available descendant
// instead.
func signalToEvent(logger *slog.Logger, sig syscall.Signal) Event {
	switch sig {
	case syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM:
		return Event{Kind: KindTerminate}
	case syscall.SIGCHLD:
		return Event{Kind: KindChildExit}
	default:
		logger.Warn("event source: unexpected signal observed", slog.Int("signal", int(sig)))
		return Event{Kind: KindTerminate}
	}
}

// setInotifyArmed toggles whether the inotify fd contributes to epoll
// readiness, by modifying its registered event mask. Disabling it for the
// duration of a signals-only wait, then re-enabling it afterward, is the
// concrete mechanism behind the 100 ms restart debounce: file-change bursts
// during that window are coalesced and drained, not individually observed.
func (es *EventSource) setInotifyArmed(armed bool) error {
	var events uint32
	if armed {
		events = unix.EPOLLIN
	}
	ev := &unix.EpollEvent{Events: events, Fd: int32(es.fw.Fd())}
	if err := unix.EpollCtl(es.epollFd, unix.EPOLL_CTL_MOD, es.fw.Fd(), ev); err != nil {
		return fmt.Errorf("event source: epoll_ctl mod inotify: %w", err)
	}
	return nil
}

// Close stops signal delivery, releases the self-pipe, and closes the epoll
// instance. The FileWatcher is owned and closed separately by its creator.
func (es *EventSource) Close() error {
	signal.Stop(es.sigCh)
	close(es.sigCh)

	err1 := es.sigR.Close()
	err2 := es.sigW.Close()
	err3 := unix.Close(es.epollFd)
	if err1 != nil {
		return err1
	}
	if err2 != nil {
		return err2
	}
	return err3
}
