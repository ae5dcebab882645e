// runledger runs a pytest suite under supervision, reconciles its console
// stream with its results table, and keeps a trend history of every run.
//
// Usage:
//
//	runledger run [--module cart --module search] [--dry-run]
//	runledger report --raw results/output.log --table results/table.html
//	runledger trend [--limit 20] [--format terminal|json|markdown]
//	runledger version
//
// Exit codes: 0 when the run completed (test failures included), 1 when the
// test command could not be launched, 2 for usage and configuration errors.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/dkoosis/runledger/internal/supervisor"
)

const (
	exitOK     = 0
	exitLaunch = 1
	exitUsage  = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), supervisor.InterruptSignals()...)
	defer stop()

	root := newRootCmd(&streams{in: stdin, out: stdout, err: stderr})
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	fmt.Fprintf(stderr, "runledger: %v\n", err)
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	return exitUsage
}

// exitError carries a specific exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error {
	return &exitError{code: exitUsage, err: err}
}

func launchError(err error) error {
	return &exitError{code: exitLaunch, err: err}
}
