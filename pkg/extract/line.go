package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/ansi"

	"github.com/dkoosis/runledger/internal/logging"
	"github.com/dkoosis/runledger/pkg/result"
)

// DefaultLookahead is how many lines after a bare test id the scanner waits
// for that id's status token.
const DefaultLookahead = 10

const (
	maxErrorLines = 50
	maxErrorBytes = 4 << 10
)

type section int

const (
	sectionProgress section = iota
	sectionFailures
	sectionShortSummary
	sectionDurations
	sectionIgnored
)

const statusAlternation = `PASSED|FAILED|SKIPPED|ERROR|RERUN|XFAIL|XPASS`

// idPattern is one node id. Parametrize brackets may hold spaces, so the id
// runs to the first space outside brackets.
const idPattern = `[^\s\[][^\s\[]*(?:\[[^\]]*\][^\s\[]*)*`

var (
	sectionRe    = regexp.MustCompile(`^={3,}\s*(.+?)\s*={3,}$`)
	blockTitleRe = regexp.MustCompile(`^_{3,}\s*(.+?)\s*_{3,}$`)
	ruleRe       = regexp.MustCompile(`^[-=_]{5,}`)
	durationRe   = regexp.MustCompile(`^([\d.]+)s\s+(?:call|setup|teardown)\s+(` + idPattern + `)`)
	shortRe      = regexp.MustCompile(`^(` + statusAlternation + `)\s+(` + idPattern + `)(?:\s+-\s+(.*))?$`)

	// idLineRe accepts "id STATUS [ 50%]" and the xdist form
	// "[gw0] [ 50%] STATUS id".
	idLineRe = regexp.MustCompile(`^(?:\[[^\]]*\]\s*)*(?:(` + statusAlternation + `)\s+)?(` + idPattern + `)(.*)$`)

	statusTokenRe    = regexp.MustCompile(`^(` + statusAlternation + `)$`)
	leadingStatusRe  = regexp.MustCompile(`^(` + statusAlternation + `)\b`)
	trailingStatusRe = regexp.MustCompile(`(` + statusAlternation + `)(?:\s+\[\s*\d+%\])?$`)
)

// Observation is one status sighting for one id in the console stream.
type Observation struct {
	ID        string
	Outcome   result.Outcome
	Line      int
	ErrorText string
}

// LineResult is the outcome of the line-oriented pass.
type LineResult struct {
	Observations []Observation
	// Durations sums the per-phase timings reported in the durations section.
	Durations   map[string]float64
	Summary     Summary
	Ambiguities int
}

type pendingCase struct {
	id        string
	line      int
	remaining int
}

// LineScanner is the incremental line-oriented pass. It is not safe for
// concurrent use; the supervisor feeds it from its reader goroutine.
type LineScanner struct {
	lookahead int
	logger    *log.Logger
	rc        *RunContext

	lineNo  int
	section section
	pending *pendingCase

	// inline error block following a FAILED/ERROR status
	collecting int
	block      []string

	// FAILURES/ERRORS section block
	blockTitle    string
	sectionBlock  []string
	failureBlocks map[string]string

	shortMessages map[string]string
	lastOutcome   map[string]result.Outcome
	durations     map[string]float64
	observations  []Observation
	summary       Summary
	ambiguous     int
	flushed       bool

	onStart func(id string, line int)
	onEnd   func(Observation)
}

// ScannerOption configures a LineScanner.
type ScannerOption func(*LineScanner)

// WithLookahead sets the status lookahead window. Values below 1 are ignored.
func WithLookahead(n int) ScannerOption {
	return func(s *LineScanner) {
		if n > 0 {
			s.lookahead = n
		}
	}
}

// WithLogger routes ambiguity diagnostics to l.
func WithLogger(l *log.Logger) ScannerOption {
	return func(s *LineScanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRunContext shares rc with the scanner so first-appearance order is
// recorded as lines arrive.
func WithRunContext(rc *RunContext) ScannerOption {
	return func(s *LineScanner) {
		if rc != nil {
			s.rc = rc
		}
	}
}

// WithEvents registers callbacks for live progress. onStart fires when an id
// line opens an attempt; onEnd fires when the progress stream resolves it.
// Fallback statuses recovered from summary sections do not fire events.
func WithEvents(onStart func(id string, line int), onEnd func(Observation)) ScannerOption {
	return func(s *LineScanner) {
		s.onStart = onStart
		s.onEnd = onEnd
	}
}

// NewLineScanner creates a scanner positioned at the start of a run.
func NewLineScanner(opts ...ScannerOption) *LineScanner {
	s := &LineScanner{
		lookahead:     DefaultLookahead,
		logger:        log.Default(),
		collecting:    -1,
		failureBlocks: make(map[string]string),
		shortMessages: make(map[string]string),
		lastOutcome:   make(map[string]result.Outcome),
		durations:     make(map[string]float64),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rc == nil {
		s.rc = NewRunContext()
	}
	return s
}

// RunContext returns the context the scanner records order into.
func (s *LineScanner) RunContext() *RunContext {
	return s.rc
}

// Feed consumes one line of console output.
func (s *LineScanner) Feed(raw string) {
	if s.flushed {
		return
	}
	s.lineNo++
	line := strings.TrimRight(ansi.Strip(raw), "\r\n")
	trimmed := strings.TrimSpace(line)

	if sum, ok := parseSummary(trimmed); ok {
		s.leaveSection()
		s.summary = sum
		s.section = sectionIgnored
		return
	}
	if m := sectionRe.FindStringSubmatch(trimmed); m != nil {
		s.leaveSection()
		s.section = classifySection(m[1])
		return
	}

	switch s.section {
	case sectionFailures:
		s.feedFailureSection(trimmed, line)
	case sectionShortSummary:
		s.feedShortSummary(trimmed)
	case sectionDurations:
		s.feedDuration(trimmed)
	case sectionIgnored:
	default:
		s.feedProgress(trimmed)
	}
}

// Flush closes any open block and expires a pending id. Feed is a no-op
// afterwards.
func (s *LineScanner) Flush() {
	if s.flushed {
		return
	}
	s.leaveSection()
	s.flushed = true

	for i := range s.observations {
		ob := &s.observations[i]
		if !ob.Outcome.IsFailure() || ob.ErrorText != "" {
			continue
		}
		ob.ErrorText = s.sectionErrorFor(ob.ID)
	}
	if s.ambiguous > 0 {
		s.logger.Warn("console lines without a matching status",
			"kind", logging.KindExtractionAmbiguity, "count", s.ambiguous, "run_id", s.rc.RunID)
	}
}

// Result flushes the scanner and returns what it collected.
func (s *LineScanner) Result() LineResult {
	s.Flush()
	return LineResult{
		Observations: append([]Observation(nil), s.observations...),
		Durations:    s.durations,
		Summary:      s.summary,
		Ambiguities:  s.ambiguous,
	}
}

// Summary returns the closing tally seen so far.
func (s *LineScanner) Summary() Summary {
	return s.summary
}

// Observations returns a copy of the observations collected so far.
func (s *LineScanner) Observations() []Observation {
	return append([]Observation(nil), s.observations...)
}

func classifySection(title string) section {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "test session starts"):
		return sectionProgress
	case t == "failures" || t == "errors":
		return sectionFailures
	case strings.Contains(t, "short test summary"), strings.Contains(t, "rerun test summary"):
		return sectionShortSummary
	case strings.Contains(t, "durations"):
		return sectionDurations
	default:
		return sectionIgnored
	}
}

func (s *LineScanner) leaveSection() {
	s.endBlock()
	s.closeFailureBlock()
	if s.pending != nil {
		s.ambiguity(s.pending.id, "status never arrived")
		s.pending = nil
	}
}

func (s *LineScanner) feedProgress(trimmed string) {
	if s.collecting >= 0 {
		if trimmed == "" || ruleRe.MatchString(trimmed) || len(s.block) >= maxErrorLines {
			s.endBlock()
			return
		}
		if id, _, _ := parseIDLine(trimmed); id == "" {
			s.block = append(s.block, trimmed)
			return
		}
		s.endBlock()
	}

	id, status, hasStatus := parseIDLine(trimmed)
	if id != "" && s.onStart != nil && (s.pending == nil || s.pending.id != id) {
		s.onStart(id, s.lineNo)
	}
	switch {
	case id != "" && hasStatus:
		if s.pending != nil && s.pending.id != id {
			s.ambiguity(s.pending.id, "superseded by "+id)
		}
		s.pending = nil
		s.observe(id, status)
	case id != "":
		if s.pending != nil && s.pending.id != id {
			s.ambiguity(s.pending.id, "superseded by "+id)
		}
		s.pending = &pendingCase{id: id, line: s.lineNo, remaining: s.lookahead}
	case s.pending != nil:
		if status, ok := parseStatusOnly(trimmed); ok {
			id := s.pending.id
			s.pending = nil
			s.observe(id, status)
			return
		}
		s.pending.remaining--
		if s.pending.remaining <= 0 {
			s.ambiguity(s.pending.id, "no status within lookahead")
			s.pending = nil
		}
	}
}

func parseIDLine(trimmed string) (string, result.Outcome, bool) {
	m := idLineRe.FindStringSubmatch(trimmed)
	if m == nil {
		return "", "", false
	}
	id := result.Normalize(m[2])
	if !result.LooksLikeID(id) {
		return "", "", false
	}
	if m[1] != "" {
		o, ok := result.ParseOutcome(m[1])
		return id, o, ok
	}
	for _, f := range strings.Fields(m[3]) {
		if statusTokenRe.MatchString(f) {
			o, ok := result.ParseOutcome(f)
			return id, o, ok
		}
	}
	return id, "", false
}

func parseStatusOnly(trimmed string) (result.Outcome, bool) {
	m := leadingStatusRe.FindStringSubmatch(trimmed)
	if m == nil {
		m = trailingStatusRe.FindStringSubmatch(trimmed)
	}
	if m == nil {
		return "", false
	}
	return result.ParseOutcome(m[1])
}

func (s *LineScanner) observe(id string, outcome result.Outcome) {
	s.rc.Observe(id)
	s.lastOutcome[id] = outcome
	ob := Observation{ID: id, Outcome: outcome, Line: s.lineNo}
	s.observations = append(s.observations, ob)
	if outcome.IsFailure() {
		s.collecting = len(s.observations) - 1
		s.block = s.block[:0]
	}
	if s.onEnd != nil {
		s.onEnd(ob)
	}
}

func (s *LineScanner) endBlock() {
	if s.collecting >= 0 && len(s.block) > 0 {
		s.observations[s.collecting].ErrorText = capText(s.block)
	}
	s.collecting = -1
	s.block = nil
}

func (s *LineScanner) feedFailureSection(trimmed, line string) {
	if m := blockTitleRe.FindStringSubmatch(trimmed); m != nil {
		s.closeFailureBlock()
		s.blockTitle = normalizeBlockTitle(m[1])
		return
	}
	if s.blockTitle != "" && len(s.sectionBlock) < maxErrorLines {
		s.sectionBlock = append(s.sectionBlock, line)
	}
}

func (s *LineScanner) closeFailureBlock() {
	if s.blockTitle != "" && len(s.sectionBlock) > 0 {
		if _, exists := s.failureBlocks[s.blockTitle]; !exists {
			s.failureBlocks[s.blockTitle] = capText(s.sectionBlock)
		}
	}
	s.blockTitle = ""
	s.sectionBlock = nil
}

func normalizeBlockTitle(title string) string {
	for _, prefix := range []string{"ERROR at setup of ", "ERROR at teardown of ", "ERROR collecting "} {
		title = strings.TrimPrefix(title, prefix)
	}
	return strings.TrimSpace(title)
}

// feedShortSummary reads "FAILED id - message" lines. They supply the error
// message and, for ids the progress pass never resolved, a fallback status.
func (s *LineScanner) feedShortSummary(trimmed string) {
	m := shortRe.FindStringSubmatch(trimmed)
	if m == nil {
		return
	}
	id := result.Normalize(m[2])
	if !result.LooksLikeID(id) {
		return
	}
	outcome, ok := result.ParseOutcome(m[1])
	if !ok {
		return
	}
	if m[3] != "" && outcome.IsFailure() {
		if _, exists := s.shortMessages[id]; !exists {
			s.shortMessages[id] = m[3]
		}
	}
	last, seen := s.lastOutcome[id]
	if seen && last != result.Rerun {
		return
	}
	if seen && outcome == result.Rerun {
		return
	}
	s.rc.Observe(id)
	s.lastOutcome[id] = outcome
	s.observations = append(s.observations, Observation{ID: id, Outcome: outcome, Line: s.lineNo})
}

func (s *LineScanner) feedDuration(trimmed string) {
	m := durationRe.FindStringSubmatch(trimmed)
	if m == nil {
		return
	}
	secs, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return
	}
	id := result.Normalize(m[2])
	if result.LooksLikeID(id) {
		s.durations[id] += secs
	}
}

// sectionErrorFor looks up the FAILURES/ERRORS block for id, then the short
// summary message.
func (s *LineScanner) sectionErrorFor(id string) string {
	parsed := result.ParseID(id)
	keys := []string{parsed.Case, id}
	if parsed.Group != "" {
		keys = append([]string{parsed.Group + "." + parsed.Case}, keys...)
	}
	for _, k := range keys {
		if text, ok := s.failureBlocks[k]; ok {
			return text
		}
	}
	return s.shortMessages[id]
}

func (s *LineScanner) ambiguity(id, reason string) {
	s.ambiguous++
	s.logger.Debug("unresolved test line",
		"kind", logging.KindExtractionAmbiguity, "id", id, "line", s.lineNo, "reason", reason)
}

// capText joins an error block, bounded in lines and bytes.
func capText(lines []string) string {
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > maxErrorLines {
		lines = lines[:maxErrorLines]
	}
	text := strings.Join(lines, "\n")
	if len(text) <= maxErrorBytes {
		return text
	}
	cut := maxErrorBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "\n..."
}
