package report

import (
	"fmt"
	"math"
	"strings"
)

// Chart geometry for the inline SVG trend chart.
const (
	chartWidth  = 640
	chartHeight = 220
	chartPad    = 28
)

// ChartPoint is a plotted trend point in SVG user units.
type ChartPoint struct {
	X, Y  float64
	Label string
	Value string
	Now   bool
}

// TrendChart is the plotted trend of pass rate and duration.
type TrendChart struct {
	Width, Height int
	PassRate      []ChartPoint
	Duration      []ChartPoint
	PassRateLine  string
	DurationLine  string
	MaxDuration   float64
	Baseline      float64
	Top           float64
}

// PlotTrend lays out the trend points. A single point sits in the middle.
func PlotTrend(points []TrendPoint) TrendChart {
	c := TrendChart{
		Width:    chartWidth,
		Height:   chartHeight,
		Baseline: chartHeight - chartPad,
		Top:      chartPad,
	}
	if len(points) == 0 {
		return c
	}
	for _, p := range points {
		c.MaxDuration = math.Max(c.MaxDuration, p.Duration)
	}
	plotH := float64(chartHeight - 2*chartPad)
	for i, p := range points {
		x := xPosition(i, len(points))
		label := p.Timestamp.Format("01-02 15:04")
		c.PassRate = append(c.PassRate, ChartPoint{
			X: x, Y: c.Baseline - p.PassRate/100*plotH,
			Label: label, Value: fmt.Sprintf("%.1f%%", p.PassRate), Now: p.Current,
		})
		dy := 0.0
		if c.MaxDuration > 0 {
			dy = p.Duration / c.MaxDuration * plotH
		}
		c.Duration = append(c.Duration, ChartPoint{
			X: x, Y: c.Baseline - dy,
			Label: label, Value: fmt.Sprintf("%.1fs", p.Duration), Now: p.Current,
		})
	}
	c.PassRateLine = polyline(c.PassRate)
	c.DurationLine = polyline(c.Duration)
	return c
}

func xPosition(i, n int) float64 {
	if n == 1 {
		return chartWidth / 2
	}
	span := float64(chartWidth - 2*chartPad)
	return chartPad + float64(i)*span/float64(n-1)
}

func polyline(points []ChartPoint) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = fmt.Sprintf("%.1f,%.1f", p.X, p.Y)
	}
	return strings.Join(parts, " ")
}
