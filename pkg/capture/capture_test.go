package capture

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePage struct {
	closed atomic.Bool
	delay  time.Duration
	err    error
	calls  atomic.Int32
}

func (p *fakePage) Screenshot(ctx context.Context, path string) error {
	p.calls.Add(1)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.err != nil {
		return p.err
	}
	return os.WriteFile(path, []byte("png"), 0o644)
}

func (p *fakePage) Closed() bool { return p.closed.Load() }

func startLoop(t *testing.T) *Loop {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	l := NewLoop()
	l.Start(ctx)
	t.Cleanup(func() {
		cancel()
		l.Close()
	})
	return l
}

func TestCall_When_TaskCompletes(t *testing.T) {
	t.Parallel()

	l := startLoop(t)

	v, err := Call(l, time.Second, func(context.Context) (int, error) { return 42, nil })

	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestCall_When_TasksRunSerially(t *testing.T) {
	t.Parallel()

	l := startLoop(t)
	var active, maxActive atomic.Int32
	done := make(chan struct{}, 8)

	for range 8 {
		go func() {
			_, _ = Call(l, time.Second, func(context.Context) (struct{}, error) {
				n := active.Add(1)
				if n > maxActive.Load() {
					maxActive.Store(n)
				}
				time.Sleep(time.Millisecond)
				active.Add(-1)
				return struct{}{}, nil
			})
			done <- struct{}{}
		}()
	}
	for range 8 {
		<-done
	}

	assert.Equal(t, int32(1), maxActive.Load())
}

func TestCall_When_TaskExceedsTimeout(t *testing.T) {
	t.Parallel()

	l := startLoop(t)

	start := time.Now()
	_, err := Call(l, 20*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCall_When_LoopClosed(t *testing.T) {
	t.Parallel()

	l := NewLoop()
	l.Close()

	_, err := Call(l, time.Second, func(context.Context) (int, error) { return 1, nil })

	assert.ErrorIs(t, err, ErrLoopClosed)
	assert.True(t, l.Closed())
}

func TestCall_When_LoopNil(t *testing.T) {
	t.Parallel()

	_, err := Call[int](nil, time.Second, func(context.Context) (int, error) { return 1, nil })

	assert.ErrorIs(t, err, ErrLoopClosed)
}

func TestCall_When_LoopStopsWhileWaiting(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	l := NewLoop()
	l.Start(ctx)
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := Call(l, 5*time.Second, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	assert.Error(t, err)
}

func TestBridge_Capture_When_PageHealthy(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "shots")
	page := &fakePage{}
	b := NewBridge(startLoop(t), page, dir, time.Second, nil)
	b.now = func() time.Time { return time.Date(2026, 4, 2, 13, 4, 5, 0, time.UTC) }

	path, ok := b.Capture(KindFailure, "t::A::x")

	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "error_20260402_130405_tAx.png"), path)
	assert.FileExists(t, path)
}

func TestBridge_Capture_LogsTaxonomyKinds_When_OutcomeVaries(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := log.New(&buf)
	ok := NewBridge(startLoop(t), &fakePage{}, t.TempDir(), time.Second, logger)
	slow := NewBridge(startLoop(t), &fakePage{delay: time.Second}, t.TempDir(), 20*time.Millisecond, logger)

	_, saved := ok.Capture(KindFailure, "t::A::x")
	_, timedOut := slow.Capture(KindFailure, "t::A::y")

	require.True(t, saved)
	require.False(t, timedOut)
	out := buf.String()
	assert.Contains(t, out, "shot=error")
	assert.NotContains(t, out, "kind=error")
	assert.Contains(t, out, "kind=capture_timeout")
}

func TestBridge_Capture_When_PageClosed(t *testing.T) {
	t.Parallel()

	page := &fakePage{}
	page.closed.Store(true)
	b := NewBridge(startLoop(t), page, t.TempDir(), time.Second, nil)

	path, ok := b.Capture(KindFailure, "x")

	assert.False(t, ok)
	assert.Empty(t, path)
	assert.Zero(t, page.calls.Load())
}

func TestBridge_Capture_When_Slow(t *testing.T) {
	t.Parallel()

	page := &fakePage{delay: time.Second}
	b := NewBridge(startLoop(t), page, t.TempDir(), 20*time.Millisecond, nil)

	_, ok := b.Capture(KindSuccess, "login")

	assert.False(t, ok)
	assert.Equal(t, int32(1), page.calls.Load())
}

func TestBridge_Capture_When_LoopGone(t *testing.T) {
	t.Parallel()

	l := NewLoop()
	l.Close()
	b := NewBridge(l, &fakePage{}, t.TempDir(), time.Second, nil)

	_, ok := b.Capture(KindManual, "")
	assert.False(t, ok)

	var nilBridge *Bridge
	_, ok = nilBridge.Capture(KindManual, "")
	assert.False(t, ok)
}

func TestBridge_Capture_When_ScreenshotErrors(t *testing.T) {
	t.Parallel()

	b := NewBridge(startLoop(t), &fakePage{err: errors.New("target crashed")}, t.TempDir(), time.Second, nil)

	_, ok := b.Capture(KindFailure, "x")

	assert.False(t, ok)
}

func TestFileName(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	assert.Equal(t, "error_20260102_030405.png", FileName(KindFailure, "", ts))
	assert.Equal(t, "error_20260102_030405_Timeoutwaitingfor.png", FileName(KindFailure, "Timeout waiting for selector", ts))
	assert.Equal(t, "success_20260102_030405_login-step_1.png", FileName(KindSuccess, "login-step_1", ts))
	assert.Equal(t, "screenshot_20260102_030405_登录页.png", FileName(KindManual, "登录页!", ts))
}

func TestCommandPage_When_CommandWritesFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shot.png")
	page := NewCommandPage([]string{"/bin/sh", "-c", "printf png > " + PathPlaceholder})

	require.NoError(t, page.Screenshot(context.Background(), path))
	assert.FileExists(t, path)

	page.Close()
	assert.True(t, page.Closed())
}

func TestCommandPage_When_Unconfigured(t *testing.T) {
	t.Parallel()

	page := NewCommandPage(nil)

	assert.True(t, page.Closed())
	assert.ErrorIs(t, page.Screenshot(context.Background(), "x.png"), ErrUnavailable)
}
