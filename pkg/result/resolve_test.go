package result

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func recs(id string, outcomes ...Outcome) []TestCaseRecord {
	out := make([]TestCaseRecord, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, TestCaseRecord{ID: id, Outcome: o})
	}
	return out
}

func TestParseOutcome_When_TokenVariants(t *testing.T) {
	t.Parallel()

	tests := map[string]Outcome{
		"PASSED":  Passed,
		"passed":  Passed,
		"XPASS":   Passed,
		"Failed":  Failed,
		"SKIPPED": Skipped,
		"XFAIL":   Skipped,
		"ERROR":   Error,
		"Rerun":   Rerun,
	}
	for in, want := range tests {
		got, ok := ParseOutcome(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseOutcome("n/a")
	assert.False(t, ok)
}

func TestResolve_When_RerunThenPassed(t *testing.T) {
	t.Parallel()

	line := recs("t1::A::x", Rerun, Passed)
	table := []TestCaseRecord{
		{ID: "t1::A::x", Outcome: Rerun, Duration: 1.2},
		{ID: "t1::A::x", Outcome: Passed, Duration: 0.9},
	}

	res := Resolve("t1::A::x", line, table)

	assert.Equal(t, Passed, res.Final)
	assert.Equal(t, Rerun, res.Worst)
	assert.True(t, res.Retried)
	assert.True(t, res.Flaky())
	assert.False(t, res.Dangling)
	assert.Equal(t, 2, res.Attempts)
	assert.InDelta(t, 2.1, res.Duration, 1e-9)
}

func TestResolve_When_FailureObservedBeforePass(t *testing.T) {
	t.Parallel()

	res := Resolve("t::A::x", recs("t::A::x", Failed, Rerun, Passed))

	assert.Equal(t, Failed, res.Final)
	assert.Equal(t, Failed, res.Worst)
	assert.False(t, res.Flaky())
}

func TestResolve_When_ErrorOnlyInOneSource(t *testing.T) {
	t.Parallel()

	res := Resolve("t::A::x", recs("t::A::x", Passed), recs("t::A::x", Error))

	assert.Equal(t, Error, res.Final)
}

func TestResolve_When_RerunDangles(t *testing.T) {
	t.Parallel()

	res := Resolve("t::A::x", recs("t::A::x", Rerun))

	assert.Equal(t, Failed, res.Final)
	assert.True(t, res.Dangling)
	assert.Equal(t, Rerun, res.Worst)
}

func TestResolve_When_TableTerminalOverridesLineDangling(t *testing.T) {
	t.Parallel()

	res := Resolve("t::A::x", recs("t::A::x", Rerun), recs("t::A::x", Rerun, Passed))

	assert.Equal(t, Passed, res.Final)
	assert.False(t, res.Dangling)
}

func TestResolve_When_SkippedOnly(t *testing.T) {
	t.Parallel()

	res := Resolve("t::A::x", recs("t::A::x", Skipped))

	assert.Equal(t, Skipped, res.Final)
	assert.Equal(t, 1, res.Attempts)
}

func TestResolve_When_FailureTextInBothSources(t *testing.T) {
	t.Parallel()

	console := []TestCaseRecord{{ID: "t::A::x", Outcome: Failed, ErrorText: "E   boom"}}
	table := []TestCaseRecord{{ID: "t::A::x", Outcome: Failed, ErrorText: "detail log"}, {ID: "t::A::x", Outcome: Passed}}

	res := Resolve("t::A::x", console, table)

	assert.Equal(t, Failed, res.Final)
	assert.Equal(t, "E   boom", res.ErrorText)
}
