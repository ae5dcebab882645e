package render

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/dkoosis/runledger/pkg/pattern"
)

const (
	maxNameWidth   = 60
	maxDetailLines = 8
)

// Terminal renders patterns as styled terminal output via lipgloss.
type Terminal struct {
	theme Theme
	width int
}

// NewTerminal creates a terminal renderer with the given theme.
func NewTerminal(theme Theme, width int) *Terminal {
	if width <= 0 {
		width = 80
	}
	return &Terminal{theme: theme, width: width}
}

// Render formats all patterns for terminal display.
func (t *Terminal) Render(patterns []pattern.Pattern) string {
	var sections []string
	for _, p := range patterns {
		if s := t.renderOne(p); s != "" {
			sections = append(sections, s)
		}
	}
	return strings.Join(sections, "\n")
}

func (t *Terminal) renderOne(p pattern.Pattern) string {
	switch v := p.(type) {
	case *pattern.Summary:
		return t.renderSummary(v)
	case *pattern.Leaderboard:
		return t.renderLeaderboard(v)
	case *pattern.TestTable:
		return t.renderTestTable(v)
	case *pattern.Sparkline:
		return t.renderSparkline(v)
	case *pattern.Comparison:
		return t.renderComparison(v)
	case *pattern.Heatmap:
		return t.renderHeatmap(v)
	default:
		return ""
	}
}

func (t *Terminal) renderSummary(s *pattern.Summary) string {
	var sb strings.Builder
	if s.Label != "" {
		sb.WriteString(t.theme.Bold.Render(s.Label))
		sb.WriteString("\n")
	}
	for _, m := range s.Metrics {
		icon, style := t.iconStyle(m.Kind)
		sb.WriteString("  ")
		sb.WriteString(style.Render(icon + " " + m.Label + ": " + m.Value))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (t *Terminal) renderLeaderboard(l *pattern.Leaderboard) string {
	if len(l.Items) == 0 {
		return ""
	}
	var sb strings.Builder
	if l.Label != "" {
		header := l.Label
		if l.TotalCount > len(l.Items) {
			header += fmt.Sprintf(" (top %d of %d)", len(l.Items), l.TotalCount)
		}
		sb.WriteString(t.theme.Bold.Render(header))
		sb.WriteString("\n")
	}

	nameWidth, metricWidth := 0, 0
	for _, item := range l.Items {
		nameWidth = max(nameWidth, runewidth.StringWidth(item.Name))
		metricWidth = max(metricWidth, runewidth.StringWidth(item.Metric))
	}
	nameWidth = min(nameWidth, t.nameBudget(metricWidth+6))

	for _, item := range l.Items {
		sb.WriteString("  ")
		if l.ShowRank {
			sb.WriteString(t.theme.Muted.Render(fmt.Sprintf("%2d. ", item.Rank)))
		}
		sb.WriteString(t.theme.Primary.Render(fit(item.Name, nameWidth)))
		sb.WriteString("  ")
		sb.WriteString(t.theme.Warning.Render(runewidth.FillLeft(item.Metric, metricWidth)))
		if item.Context != "" {
			sb.WriteString(" ")
			sb.WriteString(t.theme.Muted.Render(item.Context))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (t *Terminal) renderTestTable(tt *pattern.TestTable) string {
	if len(tt.Results) == 0 {
		return ""
	}
	var sb strings.Builder
	if tt.Label != "" {
		sb.WriteString(t.theme.Bold.Render(tt.Label))
		sb.WriteString("\n")
	}

	nameWidth, durWidth := 0, 0
	for _, r := range tt.Results {
		nameWidth = max(nameWidth, runewidth.StringWidth(r.Name))
		durWidth = max(durWidth, runewidth.StringWidth(r.Duration))
	}
	nameWidth = min(nameWidth, t.nameBudget(durWidth+6))

	for _, r := range tt.Results {
		icon, style := t.statusIconStyle(r.Status)
		sb.WriteString("  ")
		sb.WriteString(style.Render(icon + " "))
		sb.WriteString(fit(r.Name, nameWidth))
		if r.Duration != "" {
			sb.WriteString("  ")
			sb.WriteString(t.theme.Muted.Render(runewidth.FillLeft(r.Duration, durWidth)))
		}
		if r.Details != "" {
			lines := strings.Split(r.Details, "\n")
			if len(lines) > maxDetailLines {
				lines = append(lines[:maxDetailLines], fmt.Sprintf("... %d more lines", len(lines)-maxDetailLines))
			}
			for _, line := range lines {
				sb.WriteString("\n    ")
				sb.WriteString(t.theme.Muted.Render(runewidth.Truncate(line, t.width-4, "…")))
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

func (t *Terminal) renderSparkline(s *pattern.Sparkline) string {
	if len(s.Values) == 0 {
		return ""
	}
	var sb strings.Builder
	if s.Label != "" {
		sb.WriteString(t.theme.Primary.Render(s.Label + ": "))
	}

	lo, hi := s.Min, s.Max
	if lo == 0 && hi == 0 {
		lo, hi = s.Values[0], s.Values[0]
		for _, v := range s.Values {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}

	var spark strings.Builder
	for _, v := range s.Values {
		idx := int((v - lo) / span * float64(len(sparkBlocks)-1))
		idx = min(max(idx, 0), len(sparkBlocks)-1)
		spark.WriteRune(sparkBlocks[idx])
	}
	sb.WriteString(t.theme.Success.Render(spark.String()))

	latest := s.Values[len(s.Values)-1]
	sb.WriteString(t.theme.Muted.Render(fmt.Sprintf(" %.1f%s", latest, s.Unit)))
	sb.WriteString("\n")
	return sb.String()
}

func (t *Terminal) renderComparison(c *pattern.Comparison) string {
	if len(c.Changes) == 0 {
		return ""
	}
	var sb strings.Builder
	if c.Label != "" {
		sb.WriteString(t.theme.Bold.Render(c.Label))
		sb.WriteString("\n")
	}
	for _, item := range c.Changes {
		sb.WriteString("  ")
		sb.WriteString(item.Label + ": ")
		sb.WriteString(t.theme.Muted.Render(item.Before + " → " + item.After))
		sb.WriteString(" ")

		arrow, style := "=", t.theme.Muted
		if item.Change != 0 {
			improved := (item.Change > 0) == item.HigherIsBetter
			arrow = "↓"
			if item.Change > 0 {
				arrow = "↑"
			}
			style = t.theme.Warning
			if improved {
				style = t.theme.Success
			}
		}
		sb.WriteString(style.Render(fmt.Sprintf("%s %.1f%s", arrow, math.Abs(item.Change), item.Unit)))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (t *Terminal) renderHeatmap(h *pattern.Heatmap) string {
	if len(h.Cells) == 0 {
		return ""
	}
	var sb strings.Builder
	if h.Label != "" {
		sb.WriteString(t.theme.Bold.Render(h.Label))
		sb.WriteString("\n")
	}
	labelWidth := 0
	for _, c := range h.Cells {
		labelWidth = max(labelWidth, runewidth.StringWidth(c.Label))
	}
	labelWidth = min(labelWidth, t.nameBudget(30))

	const barWidth = 20
	for _, c := range h.Cells {
		filled := int(math.Round(c.PassRate / 100 * barWidth))
		filled = min(max(filled, 0), barWidth)
		bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

		sb.WriteString("  ")
		sb.WriteString(fit(c.Label, labelWidth))
		sb.WriteString("  ")
		sb.WriteString(t.heatStyle(c.PassRate).Render(bar))
		sb.WriteString(t.theme.Muted.Render(fmt.Sprintf(" %5.1f%%  %d/%d", c.PassRate, c.Passed, c.Total)))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (t *Terminal) heatStyle(rate float64) lipgloss.Style {
	if len(t.theme.Heat) == 0 {
		return t.theme.Muted
	}
	level := pattern.HeatLevel(rate) * (len(t.theme.Heat) - 1) / 4
	return t.theme.Heat[level]
}

func (t *Terminal) nameBudget(reserved int) int {
	return max(min(maxNameWidth, t.width-reserved), 10)
}

func (t *Terminal) iconStyle(kind string) (string, lipgloss.Style) {
	switch kind {
	case "success":
		return t.theme.Icons.Pass, t.theme.Success
	case "error":
		return t.theme.Icons.Fail, t.theme.Error
	case "warning":
		return t.theme.Icons.Warn, t.theme.Warning
	default:
		return t.theme.Icons.Info, t.theme.Primary
	}
}

func (t *Terminal) statusIconStyle(status string) (string, lipgloss.Style) {
	switch status {
	case "pass":
		return t.theme.Icons.Pass, t.theme.Success
	case "fail":
		return t.theme.Icons.Fail, t.theme.Error
	case "skip":
		return t.theme.Icons.Warn, t.theme.Warning
	case "rerun":
		return t.theme.Icons.Rerun, t.theme.Warning
	default:
		return t.theme.Icons.Info, t.theme.Muted
	}
}

// fit truncates or pads s to exactly width display cells.
func fit(s string, width int) string {
	if runewidth.StringWidth(s) > width {
		s = runewidth.Truncate(s, width, "...")
	}
	return runewidth.FillRight(s, width)
}
