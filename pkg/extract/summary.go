package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// Summary is the framework's own closing tally, e.g.
// "=== 1 failed, 3 passed, 1 rerun in 4.20s ===".
type Summary struct {
	Found    bool
	Passed   int
	Failed   int
	Skipped  int
	Errors   int
	Reruns   int
	Seconds  float64
	Warnings int
}

// Total is the number of distinct cases the framework claims to have run.
func (s Summary) Total() int {
	return s.Passed + s.Failed + s.Skipped + s.Errors
}

var (
	statsLineRe  = regexp.MustCompile(`^=*\s*((?:\d+ [a-z]+,?\s*)+|no tests ran\s*)in ([\d.]+)s\b`)
	statsCountRe = regexp.MustCompile(`(\d+) ([a-z]+)`)
)

// parseSummary recognizes a closing stats line. Counts for xpassed and xfailed
// fold into passed and skipped, matching ParseOutcome.
func parseSummary(line string) (Summary, bool) {
	m := statsLineRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Summary{}, false
	}
	s := Summary{Found: true}
	s.Seconds, _ = strconv.ParseFloat(m[2], 64)
	for _, c := range statsCountRe.FindAllStringSubmatch(m[1], -1) {
		n, err := strconv.Atoi(c[1])
		if err != nil {
			continue
		}
		switch c[2] {
		case "passed", "xpassed":
			s.Passed += n
		case "failed":
			s.Failed += n
		case "skipped", "xfailed":
			s.Skipped += n
		case "error", "errors":
			s.Errors += n
		case "rerun", "reruns":
			s.Reruns += n
		case "warning", "warnings":
			s.Warnings += n
		}
	}
	return s, true
}
