package extract

import (
	"math"
	"strconv"
	"strings"
)

// ParseDuration reads a table duration cell. Accepted forms: "HH:MM:SS",
// "HH:MM:SS.fff", "MM:SS", "12.3s", "12.3", "850 ms". Empty or malformed
// input reports false.
func ParseDuration(s string) (float64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}

	var secs float64
	var err error
	switch {
	case strings.HasSuffix(s, "ms"):
		secs, err = strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "ms")), 64)
		secs /= 1000
	case strings.HasSuffix(s, "s"):
		secs, err = strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "s")), 64)
	case strings.Contains(s, ":"):
		secs, err = parseClock(s)
	default:
		secs, err = strconv.ParseFloat(s, 64)
	}
	if err != nil || secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, false
	}
	return secs, true
}

func parseClock(s string) (float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, strconv.ErrSyntax
	}
	var total float64
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, err
		}
		total = total*60 + v
	}
	return total, nil
}
