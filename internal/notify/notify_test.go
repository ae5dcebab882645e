package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoosis/runledger/pkg/result"
	"github.com/dkoosis/runledger/pkg/run"
)

func sampleRecord() run.RunRecord {
	return run.RunRecord{
		Timestamp:       time.Date(2026, 2, 4, 10, 15, 30, 0, time.UTC),
		Modules:         []string{"teaching", "exam"},
		Total:           3,
		Passed:          1,
		Failed:          1,
		Skipped:         1,
		DurationSeconds: 42.5,
		PassRate:        run.PassRate(1, 3),
	}
}

// resolveAll groups records by id in first-seen order and resolves each.
func resolveAll(records []result.TestCaseRecord) []result.Resolution {
	var order []string
	byID := make(map[string][]result.TestCaseRecord)
	for _, r := range records {
		if _, ok := byID[r.ID]; !ok {
			order = append(order, r.ID)
		}
		byID[r.ID] = append(byID[r.ID], r)
	}
	out := make([]result.Resolution, 0, len(order))
	for _, id := range order {
		out = append(out, result.Resolve(id, byID[id]))
	}
	return out
}

func TestSummary_ListsFailures_When_RunFailed(t *testing.T) {
	t.Parallel()

	records := []result.TestCaseRecord{
		{ID: "tests/a.py::test_ok", Outcome: result.Passed},
		{ID: "tests/a.py::test_bad", Outcome: result.Failed, ErrorText: "AssertionError: boom\n  at line 3"},
		{ID: "tests/a.py::test_skip", Outcome: result.Skipped},
	}

	msg := Summary("Nightly", sampleRecord(), resolveAll(records), "reports/report_20260204_101530.html")

	assert.Equal(t, "Nightly", msg.Title)
	assert.Contains(t, msg.Text, "### Nightly")
	assert.Contains(t, msg.Text, "- **Modules**: teaching, exam")
	assert.Contains(t, msg.Text, "- **Pass rate**: 33.33%")
	assert.Contains(t, msg.Text, "Failed cases (1)")
	assert.Contains(t, msg.Text, "`tests/a.py::test_bad` FAIL")
	assert.Contains(t, msg.Text, "> AssertionError: boom")
	assert.NotContains(t, msg.Text, "at line 3")
	assert.Contains(t, msg.Text, "report_20260204_101530.html")
}

func TestSummary_CapsFailureList_When_ManyFailures(t *testing.T) {
	t.Parallel()

	var records []result.TestCaseRecord
	for i := range 13 {
		records = append(records, result.TestCaseRecord{
			ID: "tests/a.py::test_" + string(rune('a'+i)), Outcome: result.Failed,
		})
	}

	msg := Summary("", run.RunRecord{}, resolveAll(records), "")

	assert.Contains(t, msg.Text, "Failed cases (13)")
	assert.Equal(t, 10, strings.Count(msg.Text, " FAIL"))
	assert.Contains(t, msg.Text, "3 more")
	assert.NotContains(t, msg.Text, "**Report**")
}

func TestSummary_SkipsRecovered_When_RerunPassed(t *testing.T) {
	t.Parallel()

	records := []result.TestCaseRecord{
		{ID: "tests/a.py::test_flaky", Outcome: result.Rerun},
		{ID: "tests/a.py::test_flaky", Outcome: result.Passed},
	}

	msg := Summary("", sampleRecord(), resolveAll(records), "")

	assert.NotContains(t, msg.Text, "Failed cases")
}

func TestSummary_ListsFailure_When_OnlyConsoleSawIt(t *testing.T) {
	t.Parallel()

	console := []result.TestCaseRecord{{ID: "tests/t2.py::B::y", Outcome: result.Failed, ErrorText: "E   boom"}}
	table := []result.TestCaseRecord{{ID: "tests/t2.py::B::y", Outcome: result.Passed, Duration: 3.4}}

	msg := Summary("", sampleRecord(), []result.Resolution{result.Resolve("tests/t2.py::B::y", console, table)}, "")

	assert.Contains(t, msg.Text, "Failed cases (1)")
	assert.Contains(t, msg.Text, "`tests/t2.py::B::y` FAIL")
	assert.Contains(t, msg.Text, "E   boom")
}

func TestPreview_TruncatesLongLine(t *testing.T) {
	t.Parallel()

	got := preview(strings.Repeat("é", 150))

	assert.Equal(t, strings.Repeat("é", maxErrorPreview)+"…", got)
}

func TestWebhook_Notify_SignsRequest_When_SecretSet(t *testing.T) {
	t.Parallel()

	var gotQuery atomic.Value
	var gotBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		body, _ := io.ReadAll(r.Body)
		gotBody.Store(body)
		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL+"/robot/send?access_token=abc", "s3cret", log.New(io.Discard))
	wh.now = func() time.Time { return time.UnixMilli(1700000000000) }

	err := wh.Notify(context.Background(), Message{Title: "Nightly", Text: "### hi"})
	require.NoError(t, err)

	q := gotQuery.Load().(url.Values)
	assert.Equal(t, []string{"abc"}, q["access_token"])
	assert.Equal(t, []string{"1700000000000"}, q["timestamp"])
	assert.Equal(t, []string{Sign("s3cret", "1700000000000")}, q["sign"])

	var payload webhookPayload
	require.NoError(t, json.Unmarshal(gotBody.Load().([]byte), &payload))
	assert.Equal(t, "markdown", payload.MsgType)
	assert.Equal(t, "### hi", payload.Markdown.Text)
}

func TestWebhook_Notify_ReturnsError_When_Rejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errcode":310000,"errmsg":"sign not match"}`))
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, "", log.New(io.Discard)).Notify(context.Background(), Message{Title: "t"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sign not match")
}

func TestWebhook_Notify_Retries_When_ServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"errcode":0}`))
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, "", log.New(io.Discard))
	wh.client.RetryWaitMin = time.Millisecond
	wh.client.RetryWaitMax = 5 * time.Millisecond

	require.NoError(t, wh.Notify(context.Background(), Message{Title: "t"}))
	assert.Equal(t, int32(3), calls.Load())
}

type failingNotifier struct{ err error }

func (f failingNotifier) Notify(context.Context, Message) error { return f.err }

func TestMulti_Notify_JoinsErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	var buf bytes.Buffer
	m := Multi{Log{Logger: log.New(&buf)}, failingNotifier{err: boom}}

	err := m.Notify(context.Background(), Message{Title: "Nightly", Text: "body"})

	require.ErrorIs(t, err, boom)
	assert.Contains(t, buf.String(), "Nightly")
}
