package capture

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
)

// PathPlaceholder in a capture command's arguments is replaced with the
// target file path.
const PathPlaceholder = "{path}"

// CommandPage takes screenshots by running an external command, e.g. a
// driver helper or a desktop grabber.
type CommandPage struct {
	argv   []string
	closed atomic.Bool
}

// NewCommandPage returns a page backed by argv. An empty argv is a page that
// is always unavailable.
func NewCommandPage(argv []string) *CommandPage {
	return &CommandPage{argv: append([]string(nil), argv...)}
}

// Screenshot runs the command and checks the file was produced.
func (p *CommandPage) Screenshot(ctx context.Context, path string) error {
	if len(p.argv) == 0 {
		return ErrUnavailable
	}
	args := make([]string, len(p.argv))
	for i, a := range p.argv {
		args[i] = strings.ReplaceAll(a, PathPlaceholder, path)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ErrTimeout
		}
		return fmt.Errorf("capture command %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("capture command produced no file: %w", err)
	}
	return nil
}

// Close marks the page torn down.
func (p *CommandPage) Close() {
	p.closed.Store(true)
}

// Closed reports whether Close was called or no command is configured.
func (p *CommandPage) Closed() bool {
	return len(p.argv) == 0 || p.closed.Load()
}
