package reactor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/netty/selector"
)

// spinningSelector reports readiness with zero progress on every Wait,
// simulating the classic "epoll reports ready but no events" defect (spec
// §4.1, scenario S6).
type spinningSelector struct {
	rebuilds atomic.Int32
	waits    atomic.Int32
}

func (s *spinningSelector) Register(int, selector.Events, selector.Callback) error { return nil }
func (s *spinningSelector) Modify(int, selector.Events) error                      { return nil }
func (s *spinningSelector) Cancel(int) error                                       { return nil }
func (s *spinningSelector) Wait(time.Duration) (int, error) {
	s.waits.Add(1)
	return 0, nil
}
func (s *spinningSelector) Wake() error    { return nil }
func (s *spinningSelector) Rebuild() error { s.rebuilds.Add(1); return nil }
func (s *spinningSelector) Close() error   { return nil }

var _ selector.Selector = (*spinningSelector)(nil)

func TestReactorRebuildsSelectorOnSpinThreshold(t *testing.T) {
	sel := &spinningSelector{}
	r, err := New(
		WithSelectorFactory(func() (selector.Selector, error) { return sel, nil }),
		WithSpinThreshold(5),
	)
	require.NoError(t, err)
	defer r.Close(context.Background())

	require.NoError(t, r.Submit(func() {})) // starts the loop

	require.Eventually(t, func() bool {
		return sel.rebuilds.Load() >= 1
	}, time.Second, time.Millisecond, "selector was never rebuilt after exceeding the spin threshold")
}

// failingSelector always fails Wait, simulating a selector that never
// recovers (spec §4.1/§7 "unrecoverable reactor failures terminate that
// reactor").
type failingSelector struct {
	waits atomic.Int32
}

func (s *failingSelector) Register(int, selector.Events, selector.Callback) error { return nil }
func (s *failingSelector) Modify(int, selector.Events) error                      { return nil }
func (s *failingSelector) Cancel(int) error                                       { return nil }
func (s *failingSelector) Wait(time.Duration) (int, error) {
	s.waits.Add(1)
	return 0, errors.New("wait: simulated unrecoverable failure")
}
func (s *failingSelector) Wake() error    { return nil }
func (s *failingSelector) Rebuild() error { return nil }
func (s *failingSelector) Close() error   { return nil }

var _ selector.Selector = (*failingSelector)(nil)

func TestReactorTerminatesWithFailureAfterPersistentSelectorErrors(t *testing.T) {
	sel := &failingSelector{}
	r, err := New(
		WithSelectorFactory(func() (selector.Selector, error) { return sel, nil }),
	)
	require.NoError(t, err)

	f := r.ShutdownGracefully(time.Hour, time.Hour) // never quiesces on its own; the selector failure must end it first
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.Error(t, f.Await(ctx))
	require.Equal(t, Failure, f.Outcome())
	require.True(t, r.IsTerminated())
	require.GreaterOrEqual(t, int(sel.waits.Load()), maxConsecutiveSelectErrors)
}
