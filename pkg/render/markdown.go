package render

import (
	"fmt"
	"strings"

	"github.com/dkoosis/runledger/pkg/pattern"
)

// Markdown renders patterns as plain markdown for chat notifications. It
// emits no ANSI codes and never depends on a rendered report existing.
type Markdown struct{}

// NewMarkdown creates a markdown renderer.
func NewMarkdown() *Markdown {
	return &Markdown{}
}

// Render formats all patterns as markdown blocks.
func (m *Markdown) Render(patterns []pattern.Pattern) string {
	var blocks []string
	for _, p := range patterns {
		var s string
		switch v := p.(type) {
		case *pattern.Summary:
			s = m.summary(v)
		case *pattern.TestTable:
			s = m.table(v)
		case *pattern.Leaderboard:
			s = m.leaderboard(v)
		case *pattern.Heatmap:
			s = m.heatmap(v)
		case *pattern.Comparison:
			s = m.comparison(v)
		case *pattern.Sparkline:
			if len(v.Values) > 0 {
				s = fmt.Sprintf("%s: %.1f%s (%d runs)\n", v.Label, v.Values[len(v.Values)-1], v.Unit, len(v.Values))
			}
		}
		if s != "" {
			blocks = append(blocks, s)
		}
	}
	return strings.Join(blocks, "\n")
}

func (m *Markdown) summary(s *pattern.Summary) string {
	var sb strings.Builder
	if s.Label != "" {
		fmt.Fprintf(&sb, "### %s\n", s.Label)
	}
	for _, item := range s.Metrics {
		fmt.Fprintf(&sb, "- **%s**: %s\n", item.Label, item.Value)
	}
	return sb.String()
}

func (m *Markdown) table(t *pattern.TestTable) string {
	if len(t.Results) == 0 {
		return ""
	}
	var sb strings.Builder
	if t.Label != "" {
		fmt.Fprintf(&sb, "**%s**\n", t.Label)
	}
	for _, r := range t.Results {
		fmt.Fprintf(&sb, "- `%s` %s", r.Name, strings.ToUpper(r.Status))
		if r.Duration != "" {
			fmt.Fprintf(&sb, " (%s)", r.Duration)
		}
		sb.WriteString("\n")
		if first, _, _ := strings.Cut(strings.TrimSpace(r.Details), "\n"); first != "" {
			fmt.Fprintf(&sb, "  > %s\n", first)
		}
	}
	return sb.String()
}

func (m *Markdown) leaderboard(l *pattern.Leaderboard) string {
	if len(l.Items) == 0 {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s**\n", l.Label)
	for _, item := range l.Items {
		fmt.Fprintf(&sb, "%d. `%s` %s\n", item.Rank, item.Name, item.Metric)
	}
	return sb.String()
}

func (m *Markdown) heatmap(h *pattern.Heatmap) string {
	if len(h.Cells) == 0 {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s**\n\n| Group | Pass rate | Passed | Total |\n|---|---:|---:|---:|\n", h.Label)
	for _, c := range h.Cells {
		fmt.Fprintf(&sb, "| %s | %.1f%% | %d | %d |\n", c.Label, c.PassRate, c.Passed, c.Total)
	}
	return sb.String()
}

func (m *Markdown) comparison(c *pattern.Comparison) string {
	if len(c.Changes) == 0 {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s**\n", c.Label)
	for _, item := range c.Changes {
		fmt.Fprintf(&sb, "- %s: %s → %s (%+.1f%s)\n", item.Label, item.Before, item.After, item.Change, item.Unit)
	}
	return sb.String()
}
