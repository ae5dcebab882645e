package history

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/dkoosis/runledger/internal/logging"
	"github.com/dkoosis/runledger/pkg/run"
)

// Trend is the trend store: the primary Store plus report recovery for
// fresh installs.
type Trend struct {
	store    Store
	recovery *Recovery
	logger   *log.Logger
}

// NewTrend combines store and an optional recovery source.
func NewTrend(store Store, recovery *Recovery, logger *log.Logger) *Trend {
	if logger == nil {
		logger = log.Default()
	}
	return &Trend{store: store, recovery: recovery, logger: logger}
}

// Append persists rec.
func (t *Trend) Append(ctx context.Context, rec run.RunRecord) error {
	if err := t.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("persisting run record: %w", err)
	}
	return nil
}

// Window returns up to limit runs, oldest first, with current appended last
// unless already persisted. Store failures degrade to recovery. An empty
// result is reported as ErrNoHistory alongside the empty window.
func (t *Trend) Window(ctx context.Context, limit int, current *run.RunRecord) (run.TrendWindow, error) {
	if limit <= 0 {
		limit = run.DefaultWindow
	}
	persisted, err := t.store.List(ctx, limit)
	if err != nil {
		t.logger.Warn("reading run history failed, trying report recovery",
			"kind", logging.KindPersistenceFailure, "error", err)
		persisted = nil
	}
	if len(persisted) == 0 && t.recovery != nil {
		recovered, err := t.recovery.Recover(ctx)
		if err != nil {
			t.logger.Warn("report recovery failed", "kind", logging.KindPersistenceFailure, "error", err)
		} else if len(recovered) > 0 {
			t.logger.Info("rebuilt run history from reports", "runs", len(recovered))
			persisted = recovered
		}
	}

	w := run.NewWindow(persisted, current, limit)
	if w.Empty() {
		return w, ErrNoHistory
	}
	return w, nil
}

// Close closes the underlying store.
func (t *Trend) Close() error {
	return t.store.Close()
}
