// Package pipeline runs one test invocation end to end: supervise the child,
// reconcile both result sources, aggregate, render, persist and notify.
//
// Only a launch failure is returned as an error. Every later problem is
// logged with its failure kind and the run still completes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dkoosis/runledger/internal/config"
	"github.com/dkoosis/runledger/internal/history"
	"github.com/dkoosis/runledger/internal/live"
	"github.com/dkoosis/runledger/internal/logging"
	"github.com/dkoosis/runledger/internal/notify"
	"github.com/dkoosis/runledger/internal/supervisor"
	"github.com/dkoosis/runledger/pkg/capture"
	"github.com/dkoosis/runledger/pkg/extract"
	"github.com/dkoosis/runledger/pkg/report"
	"github.com/dkoosis/runledger/pkg/result"
	"github.com/dkoosis/runledger/pkg/run"
)

// Options wires a Pipeline. Only Config is required.
type Options struct {
	Config *config.AppConfig
	Logger *log.Logger
	// Display draws progress. Nil runs headless.
	Display live.Display
	// Notifier overrides the configured notification route.
	Notifier notify.Notifier
	// Store overrides the configured history backend. The pipeline does
	// not close a store it did not open.
	Store history.Store
	Now   func() time.Time
}

// Pipeline executes runs against one configuration.
type Pipeline struct {
	cfg      *config.AppConfig
	logger   *log.Logger
	display  live.Display
	notifier notify.Notifier
	store    history.Store
	now      func() time.Time
}

// New fills defaults from opts.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		cfg:      opts.Config,
		logger:   opts.Logger,
		display:  opts.Display,
		notifier: opts.Notifier,
		store:    opts.Store,
		now:      opts.Now,
	}
	if p.cfg == nil {
		p.cfg = config.Defaults()
	}
	if p.logger == nil {
		p.logger = log.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.notifier == nil {
		p.notifier = DefaultNotifier(p.cfg, p.logger)
	}
	return p
}

// DefaultNotifier posts to the configured webhook, or logs the summary
// when none is set.
func DefaultNotifier(cfg *config.AppConfig, logger *log.Logger) notify.Notifier {
	if cfg.Notify.WebhookURL != "" {
		return notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Secret, logger)
	}
	return notify.Log{Logger: logger}
}

// Outcome is everything one run produced.
type Outcome struct {
	Result     supervisor.Result
	Extraction extract.Extraction
	Record     run.RunRecord
	Window     run.TrendWindow
	Document   report.Document
	// ReportPath is "" when rendering failed.
	ReportPath    string
	RawOutputPath string
	TablePath     string
	Artifacts     map[string]string
}

// Paths are the derived file locations for one run.
type Paths struct {
	RawOutput   string
	TableReport string
}

// ArtifactPaths resolves the raw output and table paths, deriving
// timestamped names in the results directory when unset.
func ArtifactPaths(cfg *config.AppConfig, ts time.Time) Paths {
	stamp := ts.Format(report.TimestampLayout)
	a := Paths{RawOutput: cfg.Paths.RawOutput, TableReport: cfg.Paths.TableReport}
	if a.RawOutput == "" {
		a.RawOutput = filepath.Join(cfg.Paths.ResultsDir, "output_"+stamp+".log")
	}
	if a.TableReport == "" {
		a.TableReport = filepath.Join(cfg.Paths.ResultsDir, "table_"+stamp+".html")
	}
	return a
}

// Run executes the configured test command once.
func (p *Pipeline) Run(ctx context.Context) (Outcome, error) {
	started := p.now()
	paths := ArtifactPaths(p.cfg, started)
	out := Outcome{RawOutputPath: paths.RawOutput, TablePath: paths.TableReport}

	raw, closeRaw := p.openRawOutput(paths.RawOutput)
	defer closeRaw()
	if raw == nil {
		out.RawOutputPath = ""
	}

	bridge, closeCapture := p.startCapture(ctx)
	defer closeCapture()
	failures := supervisor.NewFailureCapture(bridge)

	sup := supervisor.New(supervisor.Options{
		MaxLines:       p.cfg.MaxLogLines,
		Lookahead:      p.cfg.Lookahead,
		Encoding:       p.cfg.Encoding,
		TerminateGrace: p.cfg.TerminateGrace.Std(),
		Logger:         p.logger,
	})
	sup.Subscribe(failures)
	if p.display != nil {
		sup.Subscribe(p.display)
	}

	tablePath := p.clearStaleTable(paths.TableReport)
	argv := config.BuildCommand(p.cfg, paths.TableReport)
	p.logger.Info("starting test run", "argv", argv)
	h, err := sup.Start(ctx, supervisor.Command{
		Argv:      argv,
		Env:       config.ChildEnv(p.cfg),
		RawOutput: raw,
	})
	if err != nil {
		return out, err
	}
	if p.display != nil {
		p.display.Follow(ctx, h)
	}
	out.Result = h.Wait()
	if p.display != nil {
		if err := p.display.Wait(); err != nil {
			p.logger.Warn("live view failed", "error", err)
		}
	}

	lines := h.Extraction()
	out.Extraction = p.reconcile(lines, tablePath, h.RunContext())
	out.Artifacts = failures.Artifacts()
	if bridge != nil && out.Result.ExitCode == 0 && !out.Result.Partial() {
		if path, ok := bridge.Capture(capture.KindSuccess, "run"); ok {
			p.logger.Debug("final screenshot saved", "path", path)
		}
	}

	rec := p.aggregate(out.Extraction, out.Result.Elapsed, started)
	rec.Partial = out.Result.Partial()
	// A cancelled run is still recorded.
	p.finish(context.WithoutCancel(ctx), &out, rec, true)
	return out, nil
}

// Offline reconciles finished artifacts without launching anything. It
// renders a report marked as a replay, which history recovery skips, and
// neither persists the record nor notifies.
func (p *Pipeline) Offline(ctx context.Context, lines []string, table io.Reader) (Outcome, error) {
	ex, err := extract.Extract(lines, table, p.logger)
	if err != nil {
		return Outcome{}, err
	}
	p.warnAmbiguities(ex)
	elapsed := time.Duration(ex.Summary.Seconds * float64(time.Second))
	out := Outcome{Extraction: ex}
	p.finish(ctx, &out, p.aggregate(ex, elapsed, p.now()), false)
	return out, nil
}

// finish renders, persists and notifies. Each step degrades on its own.
func (p *Pipeline) finish(ctx context.Context, out *Outcome, rec run.RunRecord, persist bool) {
	trend, closeTrend := p.openTrend(ctx)
	defer closeTrend()

	win := run.NewWindow(nil, &rec, p.cfg.History.Window)
	if trend != nil {
		w, err := trend.Window(ctx, p.cfg.History.Window, &rec)
		if err != nil && !errors.Is(err, history.ErrNoHistory) {
			p.logger.Warn("trend window unavailable", "kind", logging.KindPersistenceFailure, "error", err)
		} else {
			win = w
		}
	}
	out.Window = win

	opts := []report.Option{
		report.WithTitle(p.cfg.Report.Title),
		report.WithGroups(p.cfg.Groups),
		report.WithArtifacts(out.Artifacts),
		report.WithResolutions(out.Extraction.Resolutions),
	}
	if !persist {
		opts = append(opts, report.WithReplay())
	}
	out.Document = report.Render(rec, win, out.Extraction.Records, opts...)
	path, err := report.Save(p.cfg.Paths.ReportsDir, p.cfg.Report.Prefix, out.Document)
	if err != nil {
		p.logger.Warn("report not written", "kind", logging.KindRenderFailure, "error", err)
	} else {
		out.ReportPath = path
		rec.ReportPath = path
		p.logger.Info("report written", "path", path)
	}
	out.Record = rec

	if !persist {
		return
	}
	if trend != nil {
		if err := trend.Append(ctx, rec); err != nil {
			p.logger.Warn("run record not saved", "kind", logging.KindPersistenceFailure, "error", err)
		}
	}
	msg := notify.Summary(p.cfg.Report.Title, rec, out.Extraction.Resolutions, out.ReportPath)
	if err := p.notifier.Notify(ctx, msg); err != nil {
		p.logger.Warn("summary not delivered", "kind", logging.KindNotifyFailure, "error", err)
	}
}

func (p *Pipeline) aggregate(ex extract.Extraction, elapsed time.Duration, ts time.Time) run.RunRecord {
	agg := run.Aggregator{Now: func() time.Time { return ts }}
	rec := agg.AggregateResolved(ex.Resolutions, elapsed, p.cfg.Modules)

	sum := ex.Summary
	switch {
	case !sum.Found:
	case rec.Total == 0:
		rec = rec.WithCounts(sum.Passed, sum.Failed+sum.Errors, sum.Skipped)
	case sum.Total() != rec.Total:
		p.logger.Warn("framework summary disagrees with extracted results",
			"kind", logging.KindExtractionAmbiguity, "summary_total", sum.Total(), "extracted_total", rec.Total)
	}
	return rec
}

// reconcile merges the finished line pass with the results table, if the
// child wrote one.
// clearStaleTable removes a results table left by an earlier run so a child
// that dies before writing one cannot pass old rows off as this run's. It
// returns "" when the old table could not be removed.
func (p *Pipeline) clearStaleTable(path string) string {
	err := os.Remove(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return path
	}
	p.logger.Warn("stale results table not removed, ignoring table",
		"kind", logging.KindExtractionAmbiguity, "path", path, "error", err)
	return ""
}

func (p *Pipeline) reconcile(lines extract.LineResult, tablePath string, rc *extract.RunContext) extract.Extraction {
	var rows []result.TestCaseRecord
	var stats extract.TableStats

	var (
		f   *os.File
		err error
	)
	if tablePath != "" {
		f, err = os.Open(tablePath)
	}
	switch {
	case tablePath == "":
	case errors.Is(err, os.ErrNotExist):
		p.logger.Warn("no results table, using console stream only",
			"kind", logging.KindExtractionAmbiguity, "path", tablePath)
	case err != nil:
		p.logger.Warn("results table unreadable, using console stream only",
			"kind", logging.KindExtractionAmbiguity, "error", err)
	default:
		rows, stats, err = extract.ParseTable(f, p.logger)
		_ = f.Close()
		if err != nil {
			p.logger.Warn("results table unusable, using console stream only",
				"kind", logging.KindExtractionAmbiguity, "error", err)
			rows = nil
		}
	}

	ex := extract.Reconcile(lines, rows, rc)
	ex.Table = stats
	ex.Ambiguities += stats.Unknown + stats.BadDurations
	p.warnAmbiguities(ex)
	return ex
}

func (p *Pipeline) warnAmbiguities(ex extract.Extraction) {
	if ex.Ambiguities > 0 {
		p.logger.Warn("some results could not be classified",
			"kind", logging.KindExtractionAmbiguity, "count", ex.Ambiguities)
	}
}

func (p *Pipeline) openRawOutput(path string) (io.Writer, func()) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		p.logger.Warn("raw output disabled", "kind", logging.KindPersistenceFailure, "error", err)
		return nil, func() {}
	}
	f, err := os.Create(path)
	if err != nil {
		p.logger.Warn("raw output disabled", "kind", logging.KindPersistenceFailure, "error", err)
		return nil, func() {}
	}
	return f, func() {
		if err := f.Close(); err != nil {
			p.logger.Warn("closing raw output", "kind", logging.KindPersistenceFailure, "error", err)
		}
	}
}

// startCapture starts the page owner's loop when a capture command is
// configured. A nil bridge disables capture.
func (p *Pipeline) startCapture(ctx context.Context) (*capture.Bridge, func()) {
	if len(p.cfg.Capture.Command) == 0 {
		return nil, func() {}
	}
	loop := capture.NewLoop()
	loop.Start(ctx)
	page := capture.NewCommandPage(p.cfg.Capture.Command)
	bridge := capture.NewBridge(loop, page, p.cfg.Paths.ScreenshotsDir, p.cfg.Capture.Timeout.Std(), p.logger)
	return bridge, func() {
		page.Close()
		loop.Close()
	}
}

func (p *Pipeline) openTrend(ctx context.Context) (*history.Trend, func()) {
	recovery := &history.Recovery{
		Dir:    p.cfg.Paths.ReportsDir,
		Prefix: p.cfg.Report.Prefix,
		Logger: p.logger,
	}
	if p.store != nil {
		return history.NewTrend(p.store, recovery, p.logger), func() {}
	}
	store, err := OpenStore(ctx, p.cfg, p.logger)
	if err != nil {
		p.logger.Warn("history store unavailable", "kind", logging.KindPersistenceFailure, "error", err)
		return nil, func() {}
	}
	trend := history.NewTrend(store, recovery, p.logger)
	return trend, func() {
		if err := trend.Close(); err != nil {
			p.logger.Debug("closing history store", "error", err)
		}
	}
}

// OpenStore opens the configured history backend.
func OpenStore(ctx context.Context, cfg *config.AppConfig, logger *log.Logger) (history.Store, error) {
	store, err := history.Open(ctx, history.Options{
		Backend: history.Backend(cfg.History.Backend),
		Dir:     cfg.Paths.ResultsDir,
		DSN:     cfg.History.DSN,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s history: %w", cfg.History.Backend, err)
	}
	return store, nil
}
