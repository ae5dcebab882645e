package report

import (
	"fmt"

	"github.com/dkoosis/runledger/pkg/pattern"
	"github.com/dkoosis/runledger/pkg/result"
	"github.com/dkoosis/runledger/pkg/run"
)

// maxFailureRows caps the failure table in terminal and chat views.
const maxFailureRows = 10

// Patterns maps doc onto the terminal/json/markdown pattern views.
func Patterns(doc Document) []pattern.Pattern {
	rec := doc.Record
	headline := fmt.Sprintf("RUN: %d tests, %.1f%% passed in %.1fs", rec.Total, rec.PassRate, rec.DurationSeconds)
	if doc.NoData {
		headline = "RUN: no test results recorded"
	}
	if rec.Partial {
		headline += " (partial)"
	}
	summary := &pattern.Summary{
		Label: headline,
		Kind:  pattern.SummaryKindRun,
		Metrics: []pattern.SummaryItem{
			{Label: "Passed", Value: fmt.Sprint(rec.Passed), Kind: "success"},
			{Label: "Failed", Value: fmt.Sprint(rec.Failed), Kind: countKind(rec.Failed, "error")},
			{Label: "Skipped", Value: fmt.Sprint(rec.Skipped), Kind: countKind(rec.Skipped, "warning")},
		},
	}
	if rec.Flaky > 0 {
		summary.Metrics = append(summary.Metrics, pattern.SummaryItem{Label: "Flaky", Value: fmt.Sprint(rec.Flaky), Kind: "warning"})
	}
	if rec.ReportPath != "" {
		summary.Metrics = append(summary.Metrics, pattern.SummaryItem{Label: "Report", Value: rec.ReportPath, Kind: "info"})
	}
	out := []pattern.Pattern{summary}

	if len(doc.Failures) > 0 {
		table := &pattern.TestTable{Label: fmt.Sprintf("Failures (%d)", len(doc.Failures))}
		for i, f := range doc.Failures {
			if i == maxFailureRows {
				table.Results = append(table.Results, pattern.TestTableItem{
					Name:   fmt.Sprintf("... and %d more", len(doc.Failures)-maxFailureRows),
					Status: "info",
				})
				break
			}
			details := f.ErrorText
			if f.Screenshot != "" {
				details += "\nscreenshot: " + f.Screenshot
			}
			table.Results = append(table.Results, pattern.TestTableItem{
				Name: f.ID, Status: statusOf(f.Outcome), Details: details,
			})
		}
		out = append(out, table)
	}

	if len(doc.Durations) > 0 {
		board := &pattern.Leaderboard{Label: "Slowest attempts", MetricName: "Duration", ShowRank: true, TotalCount: len(doc.Durations)}
		for i, d := range doc.Durations[:min(len(doc.Durations), 5)] {
			item := pattern.LeaderboardItem{Name: d.ID, Metric: fmt.Sprintf("%.2fs", d.Seconds), Value: d.Seconds, Rank: i + 1}
			if d.Outcome == result.Rerun {
				item.Context = "(rerun)"
			}
			board.Items = append(board.Items, item)
		}
		out = append(out, board)
	}

	if len(doc.Groups) > 0 {
		heat := &pattern.Heatmap{Label: "Pass rate by group"}
		for _, g := range doc.Groups {
			heat.Cells = append(heat.Cells, pattern.HeatmapCell{
				Label: g.Label, Total: g.Total, Passed: g.Passed, Failed: g.Failed, PassRate: g.PassRate,
			})
		}
		out = append(out, heat)
	}

	if len(doc.Trend) > 1 {
		rates := make([]float64, len(doc.Trend))
		durations := make([]float64, len(doc.Trend))
		for i, p := range doc.Trend {
			rates[i], durations[i] = p.PassRate, p.Duration
		}
		out = append(out,
			&pattern.Sparkline{Label: "Pass rate", Values: rates, Min: 0, Max: 100, Unit: "%"},
			&pattern.Sparkline{Label: "Duration", Values: durations, Unit: "s"},
		)
	}

	if prev := doc.Previous; prev != nil {
		out = append(out, &pattern.Comparison{
			Label: "vs previous run",
			Changes: []pattern.ComparisonItem{
				{
					Label: "Pass rate", Before: fmt.Sprintf("%.1f%%", prev.PassRate), After: fmt.Sprintf("%.1f%%", rec.PassRate),
					Change: rec.PassRate - prev.PassRate, Unit: "%", HigherIsBetter: true,
				},
				{
					Label: "Duration", Before: fmt.Sprintf("%.1fs", prev.DurationSeconds), After: fmt.Sprintf("%.1fs", rec.DurationSeconds),
					Change: rec.DurationSeconds - prev.DurationSeconds, Unit: "s",
				},
			},
		})
	}
	return out
}

// TrendPatterns summarizes a trend window without a current run.
func TrendPatterns(win run.TrendWindow) []pattern.Pattern {
	if win.Empty() {
		return []pattern.Pattern{&pattern.Summary{Label: "TREND: no run history", Kind: pattern.SummaryKindTrend}}
	}
	stats := win.Stats()
	out := []pattern.Pattern{&pattern.Summary{
		Label: fmt.Sprintf("TREND: %d runs, %.2f%% average pass rate", win.Len(), stats.AvgPassRate),
		Kind:  pattern.SummaryKindTrend,
		Metrics: []pattern.SummaryItem{
			{Label: "Tests", Value: fmt.Sprint(stats.TotalTests), Kind: "info"},
			{Label: "Passed", Value: fmt.Sprint(stats.TotalPassed), Kind: "success"},
			{Label: "Failed", Value: fmt.Sprint(stats.TotalFailed), Kind: countKind(stats.TotalFailed, "error")},
			{Label: "Overall pass rate", Value: fmt.Sprintf("%.2f%%", stats.OverallPassRate), Kind: "info"},
			{Label: "Average duration", Value: fmt.Sprintf("%.2fs", stats.AvgDuration), Kind: "info"},
		},
	}}
	out = append(out,
		&pattern.Sparkline{Label: "Pass rate", Values: win.PassRates(), Min: 0, Max: 100, Unit: "%"},
		&pattern.Sparkline{Label: "Duration", Values: win.Durations(), Unit: "s"},
	)

	table := &pattern.TestTable{Label: "Runs"}
	for _, r := range win.Runs {
		status := "pass"
		switch {
		case r.Failed > 0:
			status = "fail"
		case r.Total == 0:
			status = "skip"
		}
		name := fmt.Sprintf("%s  %d/%d passed (%.1f%%)", r.Timestamp.Format("2006-01-02 15:04:05"), r.Passed, r.Total, r.PassRate)
		if r.Partial {
			name += " partial"
		}
		table.Results = append(table.Results, pattern.TestTableItem{
			Name: name, Status: status, Duration: fmt.Sprintf("%.1fs", r.DurationSeconds),
		})
	}
	return append(out, table)
}

func countKind(n int, kind string) string {
	if n == 0 {
		return "success"
	}
	return kind
}

func statusOf(o result.Outcome) string {
	switch o {
	case result.Passed:
		return "pass"
	case result.Failed, result.Error:
		return "fail"
	case result.Skipped:
		return "skip"
	case result.Rerun:
		return "rerun"
	default:
		return "info"
	}
}
