package pattern

// Heatmap shows pass rate per logical group of test cases.
type Heatmap struct {
	Label string
	Cells []HeatmapCell
}

// HeatmapCell is one group's rollup.
type HeatmapCell struct {
	Label    string
	Total    int
	Passed   int
	Failed   int
	PassRate float64 // percent
}

func (h *Heatmap) Type() PatternType { return PatternTypeHeatmap }

// HeatLevel buckets a pass rate into 0 (coldest) through 4.
func HeatLevel(rate float64) int {
	switch {
	case rate < 50:
		return 0
	case rate < 70:
		return 1
	case rate < 85:
		return 2
	case rate < 95:
		return 3
	default:
		return 4
	}
}
