//go:build unix

package supervisor

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoosis/runledger/pkg/extract"
	"github.com/dkoosis/runledger/pkg/result"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func shell(script string) Command {
	return Command{Argv: []string{"/bin/sh", "-c", script}}
}

type recorder struct {
	mu     sync.Mutex
	starts []string
	ends   []CaseEnd
	runEnd []RunEnd
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		CaseStart: func(e CaseStart) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.starts = append(r.starts, e.ID)
		},
		CaseEnd: func(e CaseEnd) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.ends = append(r.ends, e)
		},
		RunEnd: func(e RunEnd) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.runEnd = append(r.runEnd, e)
		},
	}
}

func TestSupervisor_Start_When_ChildReportsCases(t *testing.T) {
	t.Parallel()

	sup := New(Options{Logger: quietLogger()})
	rec := &recorder{}
	sup.Subscribe(rec.hooks())

	var raw strings.Builder
	cmd := shell(`printf 'collected 2 items\ntests/test_a.py::test_one PASSED [ 50%%]\ntests/test_a.py::test_two FAILED [100%%]\n'; exit 1`)
	cmd.RawOutput = &raw

	h, err := sup.Start(context.Background(), cmd)
	require.NoError(t, err)

	var seen []string
	for line := range h.Lines() {
		seen = append(seen, line)
	}
	res := h.Wait()

	assert.Equal(t, 1, res.ExitCode)
	assert.False(t, res.Partial())
	assert.Equal(t, []string{
		"collected 2 items",
		"tests/test_a.py::test_one PASSED [ 50%]",
		"tests/test_a.py::test_two FAILED [100%]",
	}, seen)
	assert.Equal(t, strings.Join(seen, "\n")+"\n", raw.String())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"tests/test_a.py::test_one", "tests/test_a.py::test_two"}, rec.starts)
	require.Len(t, rec.ends, 2)
	assert.Equal(t, result.Passed, rec.ends[0].Outcome)
	assert.Equal(t, result.Failed, rec.ends[1].Outcome)
	require.Len(t, rec.runEnd, 1)
	assert.Equal(t, 1, rec.runEnd[0].Result.ExitCode)

	lr := h.Extraction()
	assert.Len(t, lr.Observations, 2)
	assert.Equal(t, []string{"tests/test_a.py::test_one", "tests/test_a.py::test_two"}, h.RunContext().Order())
	assert.False(t, sup.Active())
}

func TestSupervisor_Start_When_RunAlreadyActive(t *testing.T) {
	t.Parallel()

	sup := New(Options{Logger: quietLogger(), TerminateGrace: 200 * time.Millisecond})
	h, err := sup.Start(context.Background(), shell("sleep 5"))
	require.NoError(t, err)

	_, err = sup.Start(context.Background(), shell("true"))
	require.ErrorIs(t, err, ErrRunActive)

	h.Cancel()
	res := h.Wait()
	assert.True(t, res.Cancelled)

	h2, err := sup.Start(context.Background(), shell("true"))
	require.NoError(t, err)
	assert.Equal(t, 0, h2.Wait().ExitCode)
}

func TestSupervisor_Start_When_ExecutableMissing(t *testing.T) {
	t.Parallel()

	sup := New(Options{Logger: quietLogger()})
	_, err := sup.Start(context.Background(), Command{Argv: []string{"/nonexistent/runner-binary"}})

	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Contains(t, err.Error(), "/nonexistent/runner-binary")
	assert.False(t, sup.Active())
}

func TestSupervisor_Start_When_ArgvEmpty(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Logger: quietLogger()}).Start(context.Background(), Command{})

	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
}

func TestSupervisor_Start_When_EncodingUnknown(t *testing.T) {
	t.Parallel()

	sup := New(Options{Logger: quietLogger(), Encoding: "klingon-8"})
	_, err := sup.Start(context.Background(), shell("true"))

	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
}

func TestHandle_Cancel_When_ChildIgnoresTerminate(t *testing.T) {
	t.Parallel()

	sup := New(Options{Logger: quietLogger(), TerminateGrace: 200 * time.Millisecond})
	h, err := sup.Start(context.Background(), shell(`trap '' TERM; echo started; sleep 30`))
	require.NoError(t, err)

	for line := range h.Lines() {
		if line == "started" {
			break
		}
	}
	began := time.Now()
	h.Cancel()
	h.Cancel()
	res := h.Wait()

	assert.True(t, res.Cancelled)
	assert.True(t, res.Partial())
	assert.Less(t, time.Since(began), 10*time.Second)
}

func TestHandle_Cancel_When_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	sup := New(Options{Logger: quietLogger(), TerminateGrace: time.Second})
	h, err := sup.Start(ctx, shell("echo started; sleep 30"))
	require.NoError(t, err)

	cancel()

	select {
	case <-h.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop after context cancellation")
	}
	assert.True(t, h.Wait().Cancelled)
}

func TestHandle_Cancel_When_LinesArriveAfterStop(t *testing.T) {
	t.Parallel()

	sup := New(Options{Logger: quietLogger(), TerminateGrace: time.Second})
	h, err := sup.Start(context.Background(),
		shell(`trap 'echo "a.py::late PASSED"; exit 0' TERM; echo "a.py::early PASSED"; while :; do sleep 0.05; done`))
	require.NoError(t, err)

	for line := range h.Lines() {
		if strings.Contains(line, "early") {
			break
		}
	}
	h.Cancel()
	h.Wait()

	ids := make([]string, 0)
	for _, ob := range h.Extraction().Observations {
		ids = append(ids, ob.ID)
	}
	assert.Equal(t, []string{"a.py::early"}, ids)
}

func TestHandle_Tail_When_OutputExceedsLimit(t *testing.T) {
	t.Parallel()

	sup := New(Options{Logger: quietLogger(), MaxLines: 3})
	h, err := sup.Start(context.Background(), shell(`for i in 1 2 3 4 5; do echo line$i; done`))
	require.NoError(t, err)
	h.Wait()

	assert.Equal(t, []string{"line3", "line4", "line5"}, h.Tail())

	var replay []string
	for line := range h.Lines() {
		replay = append(replay, line)
	}
	assert.Equal(t, h.Tail(), replay)
}

func TestSupervisor_Start_When_OutputIsGBK(t *testing.T) {
	t.Parallel()

	sup := New(Options{Logger: quietLogger(), Encoding: "gbk"})
	h, err := sup.Start(context.Background(), shell(`printf '\262\342\312\324\n'`))
	require.NoError(t, err)
	h.Wait()

	assert.Equal(t, []string{"测试"}, h.Tail())
}

func TestSupervisor_Start_When_EnvProvided(t *testing.T) {
	t.Parallel()

	sup := New(Options{Logger: quietLogger()})
	cmd := shell(`echo "$RUNLEDGER_PROBE"`)
	cmd.Env = map[string]string{"RUNLEDGER_PROBE": "visible"}
	cmd.Dir = t.TempDir()

	h, err := sup.Start(context.Background(), cmd)
	require.NoError(t, err)
	h.Wait()

	assert.Equal(t, []string{"visible"}, h.Tail())
}

func TestHandle_Pump_When_StreamBreaks(t *testing.T) {
	t.Parallel()

	decoder, err := newLineDecoder("")
	require.NoError(t, err)
	rc := extract.NewRunContext()
	h := &Handle{
		buf:     newLineBuffer(10),
		decoder: decoder,
		logger:  quietLogger(),
		rc:      rc,
		scanner: extract.NewLineScanner(extract.WithRunContext(rc), extract.WithLogger(quietLogger())),
	}
	boom := errors.New("pipe torn")

	h.pump(io.MultiReader(strings.NewReader("a.py::t1 PASSED\n"), iotest.ErrReader(boom)))

	require.ErrorIs(t, h.streamErr, boom)
	assert.Equal(t, []string{"a.py::t1 PASSED"}, h.buf.lines())
	assert.Equal(t, []string{"a.py::t1"}, rc.Order())
	assert.True(t, Result{StreamErr: h.streamErr}.Partial())
}
