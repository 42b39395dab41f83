// Package options parses and validates the command-line surface that
// produces the supervisor's immutable configuration. It stands in the same
// slot the teacher's internal/config fills for the dashboard agent — one
// early validated struct, built before anything else starts — but is sourced
// from flags instead of a YAML file, since runar persists no configuration.
package options

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// Options is the immutable configuration produced at startup. Every field
// is set once, by Parse, and never mutated afterward.
type Options struct {
	// Command is the program and its arguments to run, in order. Always has
	// at least one element.
	Command []string

	// Files are the watched paths, in the order given on the command line.
	// A nil/empty slice is legal: only signals and child exit drive the loop.
	Files []string

	Recursive bool
	Verbose   bool

	ExitOnZero     bool
	ExitOnError    bool
	RestartOnZero  bool
	RestartOnError bool

	// KillTimer is the SIGTERM→SIGKILL grace period, in milliseconds.
	KillTimer int
}

// ParseError is returned by Parse for any failure that should terminate the
// process with exit code 1 before any supervision begins. help is non-empty
// only for the user-requested usage/help case, which callers should print to
// stdout rather than treating as a diagnostic.
type ParseError struct {
	msg  string
	help string
}

func (e *ParseError) Error() string { return e.msg }

// Help returns the usage text for a -h/--help invocation, or "" for any
// other parse error.
func (e *ParseError) Help() string { return e.help }

const usage = `runar [FLAGS] -- <COMMAND> [ARGS...]

A literal -- separator divides supervisor flags from the command to run.

FLAGS:
  -f, --file stringArray     add a watched path (repeatable)
  -r, --recursive            walk each -f directory and watch every entry
  -e, --exit                 exit when the child exits with status 0
  -E, --exit-on-error        exit when the child exits with non-zero status
  -s, --restart              restart when the child exits with status 0
  -S, --restart-on-error     restart when the child exits with non-zero status
  -k, --kill-timer int       SIGTERM->SIGKILL grace period in ms (default 5000)
  -v, --verbose              enable progress messages on the diagnostics stream
  -h, --help                 print usage and exit successfully
`

// Parse reads args (typically os.Args[1:]) and produces an Options. A
// literal "--" must separate flags from the command; everything after it is
// taken verbatim as Command. Returns a *ParseError for any usage failure,
// including the explicit -h/--help request.
func Parse(args []string) (Options, error) {
	fs := pflag.NewFlagSet("runar", pflag.ContinueOnError)
	fs.SetOutput(new(discardWriter))
	fs.Usage = func() {}

	files := fs.StringArrayP("file", "f", nil, "add a watched path")
	recursive := fs.BoolP("recursive", "r", false, "recursively watch directories")
	exitOnZero := fs.BoolP("exit", "e", false, "exit when the child exits with status 0")
	exitOnError := fs.BoolP("exit-on-error", "E", false, "exit when the child exits with non-zero status")
	restartOnZero := fs.BoolP("restart", "s", false, "restart when the child exits with status 0")
	restartOnError := fs.BoolP("restart-on-error", "S", false, "restart when the child exits with non-zero status")
	killTimer := fs.IntP("kill-timer", "k", 5000, "SIGTERM->SIGKILL grace period in ms")
	verbose := fs.BoolP("verbose", "v", false, "enable progress messages")
	help := fs.BoolP("help", "h", false, "print usage and exit successfully")

	flagArgs, command := splitSeparator(args)

	if err := fs.Parse(flagArgs); err != nil {
		return Options{}, &ParseError{msg: fmt.Sprintf("argument parse error: %v", err)}
	}

	if *help {
		return Options{}, &ParseError{help: usage}
	}

	if len(command) == 0 {
		return Options{}, &ParseError{msg: "no command given: expected `--` followed by a command"}
	}

	if *killTimer < 0 {
		return Options{}, &ParseError{msg: fmt.Sprintf("kill-timer must be non-negative, got %d", *killTimer)}
	}

	return Options{
		Command:        command,
		Files:          *files,
		Recursive:      *recursive,
		Verbose:        *verbose,
		ExitOnZero:     *exitOnZero,
		ExitOnError:    *exitOnError,
		RestartOnZero:  *restartOnZero,
		RestartOnError: *restartOnError,
		KillTimer:      *killTimer,
	}, nil
}

// splitSeparator finds the first literal "--" token in args and returns the
// flags before it and the command after it. If no "--" is present, every
// token is treated as a flag token and command is empty (a usage error,
// caught by the caller).
func splitSeparator(args []string) (flagArgs, command []string) {
	for i, a := range args {
		if a == "--" {
			return args[:i], args[i+1:]
		}
	}
	return args, nil
}

// discardWriter swallows pflag's own error/usage output; runar prints its
// own diagnostics in the <runar>-prefixed format at the cmd/runar boundary.
type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// String renders the Options in one line, useful for verbose startup logs.
func (o Options) String() string {
	return fmt.Sprintf("command=%q files=%v recursive=%t kill_timer=%dms",
		strings.Join(o.Command, " "), o.Files, o.Recursive, o.KillTimer)
}
