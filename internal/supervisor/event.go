package supervisor

// Kind identifies which variant of Event is carried. The numeric values are
// the priority ordinal: lower wins when multiple readinesses fire in one
// wait. This mirrors the Rust original's derived Ord on its Event enum,
// where declaration order (Terminate, FilesChanged, ChildExit, Nothing)
// becomes the total order.
type Kind int

const (
	// KindTerminate is an external terminating signal, or an unexpected
	// signal defensively treated as terminating. Highest priority.
	KindTerminate Kind = iota
	// KindFilesChanged means one or more inotify events were observed.
	KindFilesChanged
	// KindChildExit means SIGCHLD arrived. It carries no pid: the
	// supervisor reaps every available descendant and checks whether the
	// tracked child is among them.
	KindChildExit
	// KindNothing means the wait timed out with no readiness. Lowest
	// priority: see min.
	KindNothing
)

// Event is the tagged variant produced by EventSource.Wait / WaitSignals.
type Event struct {
	Kind Kind
}

// min returns the event of lower ordinal (higher priority) between a and b.
// Ties are impossible in practice since priority is derived from distinct
// underlying readinesses inspected in a single pass.
func min(a, b Event) Event {
	if a.Kind <= b.Kind {
		return a
	}
	return b
}

func (k Kind) String() string {
	switch k {
	case KindTerminate:
		return "terminate"
	case KindFilesChanged:
		return "files_changed"
	case KindChildExit:
		return "child_exit"
	case KindNothing:
		return "nothing"
	default:
		return "unknown"
	}
}
