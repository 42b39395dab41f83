// Command runar supervises a child process, watching a set of filesystem
// paths and restarting or exiting the child according to the policy flags
// it was given. It is the sole entrypoint: parse Options, build a logger,
// hand both to supervisor.New, run the loop, exit with its status.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/runar-sh/runar/internal/diag"
	"github.com/runar-sh/runar/internal/options"
	"github.com/runar-sh/runar/internal/supervisor"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run performs the startup sequence described for runar's Supervisor
// (parse Options, build the logger, construct the Supervisor) and then
// owns the main loop via Supervisor.Run, mirroring the teacher's
// cmd/agent/main.go shape: one early validated config struct, one logger
// built from it, one long-lived orchestrator driven to completion.
func run(args []string) int {
	opts, err := options.Parse(args)
	if err != nil {
		if pe, ok := err.(*options.ParseError); ok && pe.Help() != "" {
			fmt.Fprint(os.Stdout, pe.Help())
			return 0
		}
		fmt.Fprintf(os.Stderr, "<runar> %v\n", err)
		return 1
	}

	logger := diag.New(os.Stderr, opts.Verbose)

	if opts.Verbose {
		logger.Debug("starting", slog.Int("pid", os.Getpid()), slog.String("options", opts.String()))
	}

	sup, err := supervisor.New(logger, opts)
	if err != nil {
		logger.Error("setup failed", slog.Any("error", err))
		return 1
	}

	return sup.Run()
}
