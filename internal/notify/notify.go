// Package notify sends a short run summary to humans. The summary is built
// from the run record and per-case verdicts alone, so it goes out even when the
// report could not be rendered.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/dkoosis/runledger/pkg/pattern"
	"github.com/dkoosis/runledger/pkg/render"
	"github.com/dkoosis/runledger/pkg/result"
	"github.com/dkoosis/runledger/pkg/run"
)

const (
	maxFailures     = 10
	maxErrorPreview = 100
)

// Message is one notification.
type Message struct {
	Title string
	Text  string // markdown
}

// Notifier delivers a Message.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Summary builds the markdown summary from the run record and the per-id
// verdicts it was aggregated from. reportPath is mentioned only when
// non-empty; callers pass "" when the report was not written.
func Summary(title string, rec run.RunRecord, resolutions []result.Resolution, reportPath string) Message {
	if title == "" {
		title = "Test run report"
	}
	modules := "all"
	if len(rec.Modules) > 0 {
		modules = strings.Join(rec.Modules, ", ")
	}
	metrics := []pattern.SummaryItem{
		{Label: "Started", Value: rec.Timestamp.Format("2006-01-02 15:04:05")},
		{Label: "Modules", Value: modules},
		{Label: "Total", Value: fmt.Sprint(rec.Total)},
		{Label: "Passed", Value: fmt.Sprintf("%d ✅", rec.Passed)},
		{Label: "Failed", Value: fmt.Sprintf("%d ❌", rec.Failed)},
		{Label: "Skipped", Value: fmt.Sprintf("%d ⏭️", rec.Skipped)},
		{Label: "Duration", Value: fmt.Sprintf("%.2fs", rec.DurationSeconds)},
		{Label: "Pass rate", Value: fmt.Sprintf("%.2f%%", rec.PassRate)},
	}
	if rec.Partial {
		metrics = append(metrics, pattern.SummaryItem{Label: "Status", Value: "partial run"})
	}
	if reportPath != "" {
		metrics = append(metrics, pattern.SummaryItem{Label: "Report", Value: "`" + reportPath + "`"})
	}
	patterns := []pattern.Pattern{&pattern.Summary{Label: title, Kind: pattern.SummaryKindRun, Metrics: metrics}}

	if failed := failedCases(resolutions); len(failed) > 0 {
		table := &pattern.TestTable{Label: fmt.Sprintf("Failed cases (%d)", len(failed))}
		for i, f := range failed {
			if i == maxFailures {
				table.Results = append(table.Results, pattern.TestTableItem{
					Name: fmt.Sprintf("%d more", len(failed)-maxFailures), Status: "info",
				})
				break
			}
			table.Results = append(table.Results, pattern.TestTableItem{
				Name: f.ID, Status: "fail", Details: preview(f.ErrorText),
			})
		}
		patterns = append(patterns, table)
	}

	return Message{Title: title, Text: render.NewMarkdown().Render(patterns)}
}

// failedCases keeps the verdicts whose final outcome is a failure, in run
// order.
func failedCases(resolutions []result.Resolution) []result.Resolution {
	var out []result.Resolution
	for _, res := range resolutions {
		if res.Final.IsFailure() {
			out = append(out, res)
		}
	}
	return out
}

func preview(text string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	if utf8.RuneCountInString(first) <= maxErrorPreview {
		return first
	}
	return string([]rune(first)[:maxErrorPreview]) + "…"
}

// Log writes the summary to a logger. It is the fallback when no webhook
// is configured.
type Log struct {
	Logger *log.Logger
}

func (l Log) Notify(_ context.Context, msg Message) error {
	l.Logger.Info(msg.Title + "\n" + msg.Text)
	return nil
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
