package live

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dkoosis/runledger/internal/supervisor"
	"github.com/dkoosis/runledger/pkg/render"
)

// Plain echoes the child's output line by line and prints a tally when the
// run ends. It is the display for pipes and CI logs.
type Plain struct {
	out   io.Writer
	theme render.Theme

	mu     sync.Mutex
	counts tally
	res    supervisor.Result

	ended     chan struct{}
	endOnce   sync.Once
	following sync.WaitGroup
}

// NewPlain returns a Plain display writing to out.
func NewPlain(out io.Writer, theme render.Theme) *Plain {
	return &Plain{out: out, theme: theme, ended: make(chan struct{})}
}

func (p *Plain) OnCaseStart(supervisor.CaseStart) {}

func (p *Plain) OnCaseEnd(e supervisor.CaseEnd) {
	p.mu.Lock()
	p.counts.add(e.Outcome)
	p.mu.Unlock()
}

func (p *Plain) OnRunEnd(e supervisor.RunEnd) {
	p.mu.Lock()
	p.res = e.Result
	p.mu.Unlock()
	p.endOnce.Do(func() { close(p.ended) })
}

// Follow copies h's lines to the output until the run's output closes or
// ctx is done.
func (p *Plain) Follow(ctx context.Context, h *supervisor.Handle) {
	p.following.Add(1)
	go func() {
		defer p.following.Done()
		for line := range h.Lines() {
			if ctx.Err() != nil {
				return
			}
			p.mu.Lock()
			fmt.Fprintln(p.out, line)
			p.mu.Unlock()
		}
	}()
}

// Wait returns once the output is drained and the run has ended, after
// printing the summary.
func (p *Plain) Wait() error {
	p.following.Wait()
	<-p.ended

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out)
	fmt.Fprintf(p.out, "Summary: %s\n", p.counts.render(p.theme))
	fmt.Fprintln(p.out, endLine(p.theme, p.res))
	return nil
}
