package supervisor

import "sync"

// lineBuffer keeps the newest max lines. Appends never block: the oldest line
// is evicted. Readers address lines by absolute sequence number and wait on
// cond for new ones.
type lineBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	max    int
	start  uint64
	values []string
	closed bool
}

func newLineBuffer(max int) *lineBuffer {
	if max <= 0 {
		max = 1
	}
	b := &lineBuffer{max: max}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *lineBuffer) add(line string) {
	b.mu.Lock()
	b.values = append(b.values, line)
	if len(b.values) > b.max {
		drop := len(b.values) - b.max
		b.values = b.values[drop:]
		b.start += uint64(drop)
	}
	b.mu.Unlock()
	b.cond.Broadcast()
}

func (b *lineBuffer) close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cond.Broadcast()
}

// next blocks until line seq exists or the buffer closes. A reader that fell
// behind eviction resumes at the oldest retained line.
func (b *lineBuffer) next(seq uint64) (string, uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for seq >= b.start+uint64(len(b.values)) && !b.closed {
		b.cond.Wait()
	}
	if seq < b.start {
		seq = b.start
	}
	if seq >= b.start+uint64(len(b.values)) {
		return "", seq, false
	}
	return b.values[seq-b.start], seq + 1, true
}

func (b *lineBuffer) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.values...)
}
