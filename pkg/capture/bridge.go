package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/log"

	"github.com/dkoosis/runledger/internal/logging"
)

// DefaultTimeout bounds how long a caller waits for a capture.
const DefaultTimeout = 5 * time.Second

// Kind names the screenshot's purpose and prefixes its file name.
type Kind string

const (
	KindFailure Kind = "error"
	KindSuccess Kind = "success"
	KindManual  Kind = "screenshot"
)

func (k Kind) reasonLimit() int {
	if k == KindFailure {
		return 20
	}
	return 30
}

// Page is the screenshot capability exposed by the automation driver. Its
// methods are only called from the loop goroutine.
type Page interface {
	Screenshot(ctx context.Context, path string) error
	Closed() bool
}

// Bridge captures screenshots of a page owned by a Loop.
type Bridge struct {
	loop    *Loop
	page    Page
	dir     string
	timeout time.Duration
	logger  *log.Logger
	now     func() time.Time
}

// NewBridge wires a page and its owning loop. timeout <= 0 selects
// DefaultTimeout.
func NewBridge(loop *Loop, page Page, dir string, timeout time.Duration, logger *log.Logger) *Bridge {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Bridge{loop: loop, page: page, dir: dir, timeout: timeout, logger: logger, now: time.Now}
}

// Capture saves a screenshot and returns its path. Any problem yields
// ("", false): a missing screenshot never fails the run. Timeouts are not
// retried, since a second attempt would race a closing page.
func (b *Bridge) Capture(kind Kind, reason string) (string, bool) {
	if b == nil || b.page == nil {
		return "", false
	}
	path := filepath.Join(b.dir, FileName(kind, reason, b.now()))

	_, err := Call(b.loop, b.timeout, func(ctx context.Context) (struct{}, error) {
		if b.page.Closed() {
			return struct{}{}, ErrUnavailable
		}
		if err := os.MkdirAll(b.dir, 0o755); err != nil {
			return struct{}{}, fmt.Errorf("creating screenshot dir: %w", err)
		}
		return struct{}{}, b.page.Screenshot(ctx, path)
	})

	switch {
	case err == nil:
		b.logger.Info("screenshot saved", "shot", string(kind), "path", path)
		return path, true
	case errors.Is(err, ErrTimeout):
		b.logger.Warn("screenshot timed out", "kind", logging.KindCaptureTimeout, "timeout", b.timeout, "reason", reason)
	case errors.Is(err, ErrLoopClosed), errors.Is(err, ErrUnavailable):
		b.logger.Debug("screenshot skipped", "kind", logging.KindCaptureUnavailable, "error", err)
	default:
		b.logger.Warn("screenshot failed", "kind", logging.KindCaptureUnavailable, "error", err)
	}
	return "", false
}

// FileName builds "<kind>_<YYYYMMDD_HHMMSS>[_<reason>].png". The reason keeps
// letters, digits, '_' and '-' from its first 20 (failure) or 30 characters.
func FileName(kind Kind, reason string, ts time.Time) string {
	name := string(kind) + "_" + ts.Format("20060102_150405")
	if safe := sanitizeReason(reason, kind.reasonLimit()); safe != "" {
		name += "_" + safe
	}
	return name + ".png"
}

func sanitizeReason(reason string, limit int) string {
	runes := []rune(reason)
	if len(runes) > limit {
		runes = runes[:limit]
	}
	var sb strings.Builder
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
