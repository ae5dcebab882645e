//go:build unix

package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoosis/runledger/internal/config"
	"github.com/dkoosis/runledger/internal/history"
	"github.com/dkoosis/runledger/internal/logging"
	"github.com/dkoosis/runledger/internal/notify"
	"github.com/dkoosis/runledger/internal/supervisor"
	"github.com/dkoosis/runledger/pkg/extract"
	"github.com/dkoosis/runledger/pkg/result"
)

var runAt = time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)

const consoleOutput = `============================= test session starts ==============================
collected 2 items

tests/shop/test_cart.py::test_add PASSED                                 [ 50%]
tests/shop/test_cart.py::test_remove FAILED                              [100%]

=================================== FAILURES ===================================
_________________________________ test_remove __________________________________
    def test_remove():
>       assert cart.size() == 0
E       AssertionError: cart not empty
=========================== short test summary info ============================
FAILED tests/shop/test_cart.py::test_remove - AssertionError: cart not empty
========================= 1 failed, 1 passed in 0.50s ==========================
`

const resultsTable = `<html><body><table class="results">
<tr><td>PASSED</td><td>tests/shop/test_cart.py::test_add</td><td>0.2s</td></tr>
<tr><td>FAILED</td><td>tests/shop/test_cart.py::test_remove</td><td>0.3s</td></tr>
</table></body></html>
`

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recordingNotifier) messages() []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Message(nil), r.msgs...)
}

// testConfig returns a config whose command is a shell script that prints
// the console output and, when writeTable is set, the results table.
func testConfig(t *testing.T, writeTable bool) *config.AppConfig {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Defaults()
	cfg.Paths.ReportsDir = filepath.Join(dir, "reports")
	cfg.Paths.ResultsDir = filepath.Join(dir, "results")
	cfg.Paths.ScreenshotsDir = filepath.Join(dir, "shots")
	cfg.Paths.TableReport = filepath.Join(dir, "table.html")
	cfg.TerminateGrace = config.Duration(time.Second)

	var script strings.Builder
	script.WriteString("cat <<'OUT'\n" + consoleOutput + "OUT\n")
	if writeTable {
		script.WriteString("cat > '" + cfg.Paths.TableReport + "' <<'TABLE'\n" + resultsTable + "TABLE\n")
	}
	script.WriteString("exit 1\n")
	path := filepath.Join(dir, "fake_pytest.sh")
	require.NoError(t, os.WriteFile(path, []byte(script.String()), 0o755))

	cfg.Command = []string{"/bin/sh", path}
	return cfg
}

func fixedClock(times ...time.Time) func() time.Time {
	var mu sync.Mutex
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := times[0]
		if len(times) > 1 {
			times = times[1:]
		}
		return now
	}
}

func TestPipeline_RecordsReportsAndNotifies_When_RunCompletes(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, true)
	notifier := &recordingNotifier{}
	p := New(Options{Config: cfg, Logger: logging.Discard(), Notifier: notifier, Now: fixedClock(runAt)})

	out, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, out.Result.ExitCode)
	assert.False(t, out.Record.Partial)
	assert.Equal(t, 2, out.Record.Total)
	assert.Equal(t, 1, out.Record.Passed)
	assert.Equal(t, 1, out.Record.Failed)
	assert.InDelta(t, 50.0, out.Record.PassRate, 1e-9)
	assert.Equal(t, runAt, out.Record.Timestamp)

	require.NotEmpty(t, out.ReportPath)
	assert.FileExists(t, out.ReportPath)
	assert.Equal(t, out.ReportPath, out.Record.ReportPath)

	raw, err := os.ReadFile(out.RawOutputPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "tests/shop/test_cart.py::test_remove FAILED")

	stored, err := history.NewFileStore(cfg.Paths.ResultsDir, logging.Discard()).List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, out.ReportPath, stored[0].ReportPath)

	msgs := notifier.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "test_remove")
	assert.Contains(t, msgs[0].Text, filepath.Base(out.ReportPath))

	var failed *result.TestCaseRecord
	for i := range out.Extraction.Records {
		if out.Extraction.Records[i].Outcome == result.Failed {
			failed = &out.Extraction.Records[i]
		}
	}
	require.NotNil(t, failed)
	assert.InDelta(t, 0.3, failed.Duration, 1e-9)
	assert.Contains(t, failed.ErrorText, "cart not empty")
}

func TestPipeline_FallsBackToConsole_When_TableMissing(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, false)
	p := New(Options{Config: cfg, Logger: logging.Discard(), Notifier: &recordingNotifier{}, Now: fixedClock(runAt)})

	out, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, out.Record.Total)
	assert.Equal(t, 1, out.Record.Failed)
	assert.Zero(t, out.Extraction.Table.Rows)
}

func TestPipeline_IgnoresPreviousTable_When_ChildWritesNone(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, false)
	stale := strings.ReplaceAll(resultsTable, "tests/shop/test_cart.py", "tests/old/test_gone.py")
	require.NoError(t, os.WriteFile(cfg.Paths.TableReport, []byte(stale), 0o644))
	p := New(Options{Config: cfg, Logger: logging.Discard(), Notifier: &recordingNotifier{}, Now: fixedClock(runAt)})

	out, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.NoFileExists(t, cfg.Paths.TableReport)
	assert.Zero(t, out.Extraction.Table.Rows)
	assert.Equal(t, 2, out.Record.Total)
	for _, res := range out.Extraction.Resolutions {
		assert.NotContains(t, res.ID, "tests/old/")
	}
}

func TestPipeline_ReturnsLaunchError_When_CommandMissing(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, false)
	cfg.Command = []string{filepath.Join(t.TempDir(), "no-such-binary")}
	notifier := &recordingNotifier{}
	p := New(Options{Config: cfg, Logger: logging.Discard(), Notifier: notifier, Now: fixedClock(runAt)})

	_, err := p.Run(context.Background())

	var launchErr *supervisor.LaunchError
	require.True(t, errors.As(err, &launchErr))
	assert.Empty(t, notifier.messages())
	assert.NoDirExists(t, cfg.Paths.ReportsDir)
}

func TestPipeline_ComparesWithPreviousRun_When_HistoryExists(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, true)
	p := New(Options{
		Config: cfg, Logger: logging.Discard(), Notifier: &recordingNotifier{},
		Now: fixedClock(runAt, runAt.Add(time.Hour)),
	})

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	out, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, out.Window.Len())
	require.NotNil(t, out.Document.Previous)
	assert.Equal(t, runAt, out.Document.Previous.Timestamp)
	assert.Equal(t, 2, out.Window.Stats().TotalExecutions)
}

func TestPipeline_StillPersists_When_NotifierFails(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, true)
	notifier := &recordingNotifier{err: errors.New("webhook down")}
	p := New(Options{Config: cfg, Logger: logging.Discard(), Notifier: notifier, Now: fixedClock(runAt)})

	out, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, out.ReportPath)
	stored, err := history.NewFileStore(cfg.Paths.ResultsDir, logging.Discard()).List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestPipeline_Offline_RendersWithoutPersisting(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, false)
	notifier := &recordingNotifier{}
	p := New(Options{Config: cfg, Logger: logging.Discard(), Notifier: notifier, Now: fixedClock(runAt)})

	out, err := p.Offline(context.Background(), extract.SplitLines(consoleOutput), strings.NewReader(resultsTable))
	require.NoError(t, err)

	assert.Equal(t, 2, out.Record.Total)
	assert.InDelta(t, 0.5, out.Record.DurationSeconds, 1e-9)
	assert.FileExists(t, out.ReportPath)
	assert.Empty(t, notifier.messages())
	assert.NoDirExists(t, cfg.Paths.ResultsDir)
}

func TestPipeline_Offline_IsSkippedByRecovery_When_OriginalReportExists(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, true)
	p := New(Options{
		Config: cfg, Logger: logging.Discard(), Notifier: &recordingNotifier{},
		Now: fixedClock(runAt, runAt.Add(time.Hour)),
	})

	original, err := p.Run(context.Background())
	require.NoError(t, err)
	replay, err := p.Offline(context.Background(), extract.SplitLines(consoleOutput), strings.NewReader(resultsTable))
	require.NoError(t, err)
	require.True(t, replay.Document.Replay)
	require.NotEqual(t, original.ReportPath, replay.ReportPath)

	recovered, err := history.Recovery{
		Dir: cfg.Paths.ReportsDir, Prefix: cfg.Report.Prefix, Logger: logging.Discard(),
	}.Recover(context.Background())
	require.NoError(t, err)

	require.Len(t, recovered, 1)
	assert.Equal(t, original.ReportPath, recovered[0].ReportPath)
}

func TestAggregate_UsesFrameworkTotals_When_NoCasesExtracted(t *testing.T) {
	t.Parallel()

	p := New(Options{Config: config.Defaults(), Logger: logging.Discard(), Notifier: &recordingNotifier{}})
	ex := extract.Extraction{Summary: extract.Summary{Found: true, Passed: 3, Failed: 1, Errors: 1, Skipped: 1}}

	rec := p.aggregate(ex, time.Second, runAt)

	assert.Equal(t, 6, rec.Total)
	assert.Equal(t, 3, rec.Passed)
	assert.Equal(t, 2, rec.Failed)
	assert.Equal(t, 1, rec.Skipped)
	assert.InDelta(t, 50.0, rec.PassRate, 1e-9)
}

func TestArtifactPaths_DerivesTimestampedNames_When_Unset(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	paths := ArtifactPaths(cfg, runAt)
	assert.Equal(t, filepath.Join("results", "output_20260309_083000.log"), paths.RawOutput)
	assert.Equal(t, filepath.Join("results", "table_20260309_083000.html"), paths.TableReport)

	cfg.Paths.RawOutput = "out.log"
	cfg.Paths.TableReport = "table.html"
	paths = ArtifactPaths(cfg, runAt)
	assert.Equal(t, "out.log", paths.RawOutput)
	assert.Equal(t, "table.html", paths.TableReport)
}

func TestDefaultNotifier_SelectsWebhook_When_URLConfigured(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	assert.IsType(t, notify.Log{}, DefaultNotifier(cfg, logging.Discard()))

	cfg.Notify.WebhookURL = "https://example.invalid/hook"
	assert.IsType(t, &notify.Webhook{}, DefaultNotifier(cfg, logging.Discard()))
}
