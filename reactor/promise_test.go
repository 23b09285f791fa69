package reactor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// inlineExecutor runs everything inline and reports InEventLoop true,
// exercising the Promise/Future plumbing without a real Reactor.
type inlineExecutor struct{}

func (inlineExecutor) Submit(task func()) error { task(); return nil }
func (inlineExecutor) InEventLoop() bool        { return true }

func TestPromiseWriteOnce(t *testing.T) {
	p := NewPromise(inlineExecutor{})
	require.True(t, p.Succeed(1))
	require.False(t, p.Succeed(2))
	require.False(t, p.Fail(errors.New("boom")))
	require.Equal(t, Success, p.Future().Outcome())
	require.Equal(t, 1, p.Future().Value())
}

func TestPromiseFailure(t *testing.T) {
	p := NewPromise(inlineExecutor{})
	boom := errors.New("boom")
	require.True(t, p.Fail(boom))
	require.False(t, p.Fail(errors.New("other")))
	require.Equal(t, Failure, p.Future().Outcome())
	require.ErrorIs(t, p.Future().Err(), boom)
}

func TestPromiseListenerOrder(t *testing.T) {
	p := NewPromise(inlineExecutor{})
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		p.Future().AddListener(func(*Future) { order = append(order, i) })
	}
	p.Succeed(nil)
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPromiseLateListener(t *testing.T) {
	p := NewPromise(inlineExecutor{})
	p.Succeed("done")
	var got any
	p.Future().AddListener(func(f *Future) { got = f.Value() })
	require.Equal(t, "done", got)
}

func TestPromiseCancel(t *testing.T) {
	var cancelled bool
	p := NewCancellablePromise(inlineExecutor{}, func() { cancelled = true })
	require.True(t, p.Cancel())
	require.True(t, cancelled)
	require.Equal(t, Cancelled, p.Future().Outcome())
	require.False(t, p.Cancel())
}

func TestPromiseNotCancellable(t *testing.T) {
	p := NewPromise(inlineExecutor{})
	require.False(t, p.Cancellable())
	require.False(t, p.Cancel())
}

func TestFutureAwaitTimesOutOnContext(t *testing.T) {
	p := NewPromise(inlineExecutor{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := p.Future().Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFutureAwaitReturnsOnSettle(t *testing.T) {
	p := NewPromise(inlineExecutor{})
	go func() {
		time.Sleep(5 * time.Millisecond)
		p.Succeed(nil)
	}()
	err := p.Future().Await(context.Background())
	require.NoError(t, err)
}
