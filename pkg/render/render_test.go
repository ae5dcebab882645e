package render

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoosis/runledger/pkg/pattern"
)

func samplePatterns() []pattern.Pattern {
	return []pattern.Pattern{
		&pattern.Summary{
			Label: "RUN: 3 tests, 66.7% passed",
			Kind:  pattern.SummaryKindRun,
			Metrics: []pattern.SummaryItem{
				{Label: "Passed", Value: "2", Kind: "success"},
				{Label: "Failed", Value: "1", Kind: "error"},
			},
		},
		&pattern.TestTable{
			Label: "Failures",
			Results: []pattern.TestTableItem{
				{Name: "tests/checkout/test_pay.py::Card::test_declined", Status: "fail", Duration: "3.4s", Details: "AssertionError: expected 402\nsecond line"},
			},
		},
		&pattern.Heatmap{
			Label: "Pass rate by group",
			Cells: []pattern.HeatmapCell{
				{Label: "Checkout", Total: 2, Passed: 1, Failed: 1, PassRate: 50},
				{Label: "unclassified", Total: 1, Passed: 1, PassRate: 100},
			},
		},
		&pattern.Sparkline{Label: "Pass rate", Values: []float64{90, 80, 66.7}, Unit: "%"},
	}
}

func TestTerminal_Render_When_RunPatterns(t *testing.T) {
	t.Parallel()

	out := NewTerminal(MonoTheme(), 80).Render(samplePatterns())

	assert.Contains(t, out, "RUN: 3 tests")
	assert.Contains(t, out, "x Failed: 1")
	assert.Contains(t, out, "AssertionError: expected 402")
	assert.Contains(t, out, "Checkout")
	assert.Contains(t, out, " 50.0%  1/2")
	assert.Contains(t, out, "Pass rate: ")
	assert.Contains(t, out, "66.7%")
}

func TestTerminal_Render_When_NameExceedsWidth(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("very_long_segment/", 10) + "test_x.py::test_case"
	out := NewTerminal(MonoTheme(), 40).Render([]pattern.Pattern{
		&pattern.TestTable{Results: []pattern.TestTableItem{{Name: long, Status: "pass", Duration: "1.0s"}}},
	})

	assert.NotContains(t, out, long)
	assert.Contains(t, out, "...")
}

func TestTerminal_Render_When_EmptyPatterns(t *testing.T) {
	t.Parallel()

	out := NewTerminal(DefaultTheme(), 0).Render([]pattern.Pattern{
		&pattern.TestTable{Label: "Failures"},
		&pattern.Sparkline{Label: "Pass rate"},
	})

	assert.Empty(t, out)
}

func TestTerminal_Render_When_ComparisonImproves(t *testing.T) {
	t.Parallel()

	out := NewTerminal(MonoTheme(), 80).Render([]pattern.Pattern{
		&pattern.Comparison{Label: "vs previous run", Changes: []pattern.ComparisonItem{
			{Label: "Pass rate", Before: "80.0%", After: "90.0%", Change: 10, Unit: "%", HigherIsBetter: true},
			{Label: "Duration", Before: "10.0s", After: "10.0s"},
		}},
	})

	assert.Contains(t, out, "↑ 10.0%")
	assert.Contains(t, out, "= 0.0")
}

func TestJSON_Render_When_RunPatterns(t *testing.T) {
	t.Parallel()

	out := NewJSON().Render(samplePatterns())

	var decoded struct {
		Version  string `json:"version"`
		Patterns []struct {
			Type string `json:"type"`
		} `json:"patterns"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "1", decoded.Version)
	require.Len(t, decoded.Patterns, 4)
	assert.Equal(t, "heatmap", decoded.Patterns[2].Type)
}

func TestMarkdown_Render_When_RunPatterns(t *testing.T) {
	t.Parallel()

	out := NewMarkdown().Render(samplePatterns())

	assert.Contains(t, out, "### RUN: 3 tests, 66.7% passed")
	assert.Contains(t, out, "- **Failed**: 1")
	assert.Contains(t, out, "- `tests/checkout/test_pay.py::Card::test_declined` FAIL (3.4s)")
	assert.Contains(t, out, "  > AssertionError: expected 402\n")
	assert.NotContains(t, out, "second line")
	assert.Contains(t, out, "| Checkout | 50.0% | 1 | 2 |")
	assert.NotContains(t, out, "\x1b[")
}

func TestByFormat_When_FormatNamed(t *testing.T) {
	t.Parallel()

	assert.IsType(t, &JSON{}, ByFormat("json", MonoTheme(), 80))
	assert.IsType(t, &Markdown{}, ByFormat("md", MonoTheme(), 80))
	assert.IsType(t, &Terminal{}, ByFormat("", MonoTheme(), 80))
	assert.Equal(t, "mono", ThemeByName("default", true).Name)
	assert.Equal(t, "muted", ThemeByName("muted", false).Name)
}
