// Package supervisor runs the external test process for one run at a time,
// streams its output into a bounded buffer and the incremental extractor, and
// publishes case lifecycle events to subscribers.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dkoosis/runledger/internal/logging"
	"github.com/dkoosis/runledger/pkg/extract"
)

const (
	// DefaultMaxLines bounds the retained log.
	DefaultMaxLines = 1000
	// DefaultTerminateGrace is how long a cancelled child gets before SIGKILL.
	DefaultTerminateGrace = 10 * time.Second

	maxLineBytes = 1024 * 1024
)

// ErrRunActive rejects Start while another run is in flight.
var ErrRunActive = errors.New("a run is already active")

// LaunchError reports that the child process could not be started.
type LaunchError struct {
	Argv []string
	Err  error
}

func (e *LaunchError) Error() string {
	name := "<empty>"
	if len(e.Argv) > 0 {
		name = e.Argv[0]
	}
	return fmt.Sprintf("launching %s: %v", name, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Command describes the child process.
type Command struct {
	Argv []string
	Dir  string
	Env  map[string]string
	// RawOutput, when set, receives every decoded line.
	RawOutput io.Writer
}

// Options tunes a Supervisor.
type Options struct {
	MaxLines       int
	Lookahead      int
	Encoding       string
	TerminateGrace time.Duration
	Logger         *log.Logger
}

// Supervisor owns at most one running child.
type Supervisor struct {
	opts   Options
	logger *log.Logger

	mu     sync.Mutex
	active *Handle
	subs   []Subscriber
}

// New returns a Supervisor with defaults filled in.
func New(opts Options) *Supervisor {
	if opts.MaxLines <= 0 {
		opts.MaxLines = DefaultMaxLines
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = extract.DefaultLookahead
	}
	if opts.TerminateGrace <= 0 {
		opts.TerminateGrace = DefaultTerminateGrace
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Supervisor{opts: opts, logger: opts.Logger}
}

// Subscribe registers sub for every subsequent run.
func (s *Supervisor) Subscribe(sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
}

// Active reports whether a run is in flight.
func (s *Supervisor) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Start launches cmd. Launch failures are returned synchronously as
// *LaunchError. Cancelling ctx cancels the run.
func (s *Supervisor) Start(ctx context.Context, cmd Command) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return nil, ErrRunActive
	}
	if len(cmd.Argv) == 0 || cmd.Argv[0] == "" {
		return nil, &LaunchError{Argv: cmd.Argv, Err: errors.New("empty command")}
	}
	decoder, err := newLineDecoder(s.opts.Encoding)
	if err != nil {
		return nil, &LaunchError{Argv: cmd.Argv, Err: err}
	}

	h := &Handle{
		sup:     s,
		argv:    append([]string(nil), cmd.Argv...),
		buf:     newLineBuffer(s.opts.MaxLines),
		decoder: decoder,
		raw:     cmd.RawOutput,
		grace:   s.opts.TerminateGrace,
		logger:  s.logger,
		subs:    append([]Subscriber(nil), s.subs...),
		rc:      extract.NewRunContext(),
		exited:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	h.scanner = extract.NewLineScanner(
		extract.WithRunContext(h.rc),
		extract.WithLookahead(s.opts.Lookahead),
		extract.WithLogger(s.logger),
		extract.WithEvents(h.publishStart, h.publishEnd),
	)

	h.cmd = exec.Command(h.argv[0], h.argv[1:]...)
	h.cmd.Dir = cmd.Dir
	h.cmd.Env = mergeEnv(os.Environ(), cmd.Env)
	setProcessGroup(h.cmd)
	// Bounds Wait when grandchildren keep the output pipe open.
	h.cmd.WaitDelay = h.grace

	pr, pw := io.Pipe()
	h.cmd.Stdout = pw
	h.cmd.Stderr = pw

	h.started = time.Now()
	if err := h.cmd.Start(); err != nil {
		_ = pw.Close()
		_ = pr.Close()
		return nil, &LaunchError{Argv: h.argv, Err: err}
	}
	s.active = h
	s.logger.Info("test process started", "pid", h.cmd.Process.Pid, "run_id", h.rc.RunID, "command", h.argv[0])

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		h.pump(pr)
	}()
	go h.wait(pw, pumpDone)
	go func() {
		select {
		case <-ctx.Done():
			h.Cancel()
		case <-h.done:
		}
	}()
	return h, nil
}

func (s *Supervisor) release(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == h {
		s.active = nil
	}
}

// Handle is one running child.
type Handle struct {
	sup     *Supervisor
	argv    []string
	cmd     *exec.Cmd
	buf     *lineBuffer
	decoder *lineDecoder
	raw     io.Writer
	grace   time.Duration
	logger  *log.Logger
	subs    []Subscriber
	rc      *extract.RunContext
	scanner *extract.LineScanner
	started time.Time

	stopped    atomic.Bool
	cancelOnce sync.Once
	streamErr  error
	exited     chan struct{}
	done       chan struct{}
	result     Result
}

// Lines yields retained log lines from the oldest, blocking for new ones,
// and ends when the child exits and output is drained. Each call starts a
// fresh pass; a slow consumer skips lines already evicted.
func (h *Handle) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		var seq uint64
		for {
			line, next, ok := h.buf.next(seq)
			if !ok || !yield(line) {
				return
			}
			seq = next
		}
	}
}

// Tail returns the currently retained lines.
func (h *Handle) Tail() []string {
	return h.buf.lines()
}

// RunContext returns the run's id-order context.
func (h *Handle) RunContext() *extract.RunContext {
	return h.rc
}

// Cancel stops feeding the extractor immediately and sends a terminate
// signal to the child's process group, escalating to SIGKILL after the
// grace period. It does not wait for the child.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(func() {
		h.stopped.Store(true)
		select {
		case <-h.exited:
			return
		default:
		}
		h.logger.Info("cancelling test process", "pid", h.cmd.Process.Pid, "grace", h.grace)
		if err := terminateGroup(h.cmd); err != nil {
			h.logger.Debug("terminate signal failed", "error", err)
		}
		go func() {
			timer := time.NewTimer(h.grace)
			defer timer.Stop()
			select {
			case <-h.exited:
			case <-timer.C:
				h.logger.Warn("test process ignored terminate, killing", "pid", h.cmd.Process.Pid)
				_ = killGroup(h.cmd)
			}
		}()
	})
}

// Wait blocks until the run has fully finished.
func (h *Handle) Wait() Result {
	<-h.done
	return h.result
}

// Done is closed when the run has fully finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Extraction blocks until the run finishes and returns the console
// extraction.
func (h *Handle) Extraction() extract.LineResult {
	<-h.done
	return h.scanner.Result()
}

// pump reads the child's output. On a read error the rest of the stream is
// discarded so the child never blocks on a full pipe.
func (h *Handle) pump(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		h.consume(h.decoder.decode(scanner.Bytes()))
	}
	if err := scanner.Err(); err != nil {
		h.streamErr = err
		h.logger.Error("output stream broke, finishing with partial results",
			"kind", logging.KindStreamFailure, "error", err, "run_id", h.rc.RunID)
		_, _ = io.Copy(io.Discard, r)
	}
}

func (h *Handle) consume(line string) {
	h.buf.add(line)
	if h.raw != nil {
		if _, err := io.WriteString(h.raw, line+"\n"); err != nil {
			h.logger.Debug("raw output write failed", "error", err)
			h.raw = nil
		}
	}
	if !h.stopped.Load() {
		h.scanner.Feed(line)
	}
}

func (h *Handle) wait(pw *io.PipeWriter, pumpDone <-chan struct{}) {
	waitErr := h.cmd.Wait()
	close(h.exited)
	_ = pw.Close()
	<-pumpDone

	res := Result{
		Elapsed:   time.Since(h.started),
		Cancelled: h.stopped.Load(),
		StreamErr: h.streamErr,
	}
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
	case errors.As(waitErr, &exitErr):
		if code, ok := exitCodeFromError(exitErr); ok {
			res.ExitCode = code
		} else {
			res.ExitCode = exitErr.ExitCode()
		}
	default:
		h.logger.Warn("waiting for test process", "error", waitErr)
		res.ExitCode = h.cmd.ProcessState.ExitCode()
	}

	h.scanner.Flush()
	h.buf.close()
	h.result = res
	h.logger.Info("test process finished",
		"exit_code", res.ExitCode, "elapsed", res.Elapsed.Round(time.Millisecond), "partial", res.Partial())
	for _, sub := range h.subs {
		sub.OnRunEnd(RunEnd{Result: res})
	}
	h.sup.release(h)
	close(h.done)
}

func (h *Handle) publishStart(id string, line int) {
	for _, sub := range h.subs {
		sub.OnCaseStart(CaseStart{ID: id, Line: line})
	}
}

func (h *Handle) publishEnd(ob extract.Observation) {
	for _, sub := range h.subs {
		sub.OnCaseEnd(CaseEnd{ID: ob.ID, Outcome: ob.Outcome, Line: ob.Line})
	}
}

func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	env := make([]string, len(base), len(base)+len(extra))
	copy(env, base)
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}
