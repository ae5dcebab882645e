// Package live shows a run's progress on the controlling terminal while the
// supervisor works. Neither display ever blocks the child: events are
// delivered from the supervisor's reader goroutine and lines are followed
// through the handle's own buffer.
package live

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/dkoosis/runledger/internal/supervisor"
	"github.com/dkoosis/runledger/pkg/render"
	"github.com/dkoosis/runledger/pkg/result"
)

// Display is a supervisor subscriber that also follows the run's output.
type Display interface {
	supervisor.Subscriber
	// Follow starts drawing h. Call it right after Start succeeds.
	Follow(ctx context.Context, h *supervisor.Handle)
	// Wait blocks until the display has drawn the end of the run.
	Wait() error
}

// New returns the interactive display when interactive is set, the plain
// line writer otherwise.
func New(out io.Writer, interactive bool, theme render.Theme) Display {
	if interactive {
		return NewTUI(out, theme)
	}
	return NewPlain(out, theme)
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// tally counts terminal attempts as the stream reports them.
type tally struct {
	passed, failed, skipped, rerun int
}

func (t *tally) add(o result.Outcome) {
	switch o {
	case result.Passed:
		t.passed++
	case result.Failed, result.Error:
		t.failed++
	case result.Skipped:
		t.skipped++
	case result.Rerun:
		t.rerun++
	}
}

func (t tally) render(theme render.Theme) string {
	parts := []string{
		theme.Success.Render(fmt.Sprintf("%s %d", theme.Icons.Pass, t.passed)),
		theme.Error.Render(fmt.Sprintf("%s %d", theme.Icons.Fail, t.failed)),
		theme.Warning.Render(fmt.Sprintf("%s %d", theme.Icons.Warn, t.skipped)),
	}
	if t.rerun > 0 {
		parts = append(parts, theme.Warning.Render(fmt.Sprintf("%s %d", theme.Icons.Rerun, t.rerun)))
	}
	return strings.Join(parts, "  ")
}

func endLine(theme render.Theme, res supervisor.Result) string {
	secs := fmt.Sprintf("%.2fs", res.Elapsed.Seconds())
	switch {
	case res.Cancelled:
		return theme.Warning.Render(fmt.Sprintf("%s run cancelled after %s", theme.Icons.Warn, secs))
	case res.StreamErr != nil:
		return theme.Warning.Render(fmt.Sprintf("%s output lost after %s, results are partial", theme.Icons.Warn, secs))
	case res.ExitCode != 0:
		return theme.Error.Render(fmt.Sprintf("%s finished in %s (exit %d)", theme.Icons.Fail, secs, res.ExitCode))
	default:
		return theme.Success.Render(fmt.Sprintf("%s finished in %s", theme.Icons.Pass, secs))
	}
}
