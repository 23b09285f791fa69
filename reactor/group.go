package reactor

import (
	"context"
	"sync"
	"time"
)

// Group is a fixed-size pool of Reactors (spec §4.2, component B). Callers
// hand channels to Next() to spread work across the pool; a Group never
// grows or shrinks after construction.
type Group struct {
	reactors []*Reactor
	chooser  *chooser

	shutdownOnce sync.Once
	terminated   chan struct{}
	terminatedP  *Promise
}

// NewGroup constructs a Group of n reactors, all built with the same
// options. Returns ErrNoReactors if n is zero.
func NewGroup(n int, opts ...Option) (*Group, error) {
	if n <= 0 {
		return nil, ErrNoReactors
	}
	reactors := make([]*Reactor, 0, n)
	for i := 0; i < n; i++ {
		r, err := New(opts...)
		if err != nil {
			for _, created := range reactors {
				_ = created.ShutdownGracefully(0, 0)
			}
			return nil, err
		}
		reactors = append(reactors, r)
	}
	return &Group{
		reactors:    reactors,
		chooser:     newChooser(reactors),
		terminated:  make(chan struct{}),
		terminatedP: NewPromise(nil),
	}, nil
}

// Next returns the next reactor in round-robin order.
func (g *Group) Next() *Reactor { return g.chooser.next1() }

// Size returns the number of reactors in the group.
func (g *Group) Size() int { return len(g.reactors) }

// Iterator calls fn for every reactor in the group, in index order.
func (g *Group) Iterator(fn func(*Reactor)) {
	for _, r := range g.reactors {
		fn(r)
	}
}

// ShutdownGracefully requests a graceful shutdown of every reactor in the
// group and returns a Future that settles once all of them have terminated.
func (g *Group) ShutdownGracefully(quiet, timeout time.Duration) *Future {
	g.shutdownOnce.Do(func() {
		futures := make([]*Future, len(g.reactors))
		for i, r := range g.reactors {
			futures[i] = r.ShutdownGracefully(quiet, timeout)
		}
		go func() {
			for _, f := range futures {
				<-f.Done()
			}
			close(g.terminated)
			g.terminatedP.Succeed(nil)
		}()
	})
	return g.terminatedP.Future()
}

// AwaitTermination blocks until every reactor in the group has terminated or
// ctx is done.
func (g *Group) AwaitTermination(ctx context.Context) error {
	select {
	case <-g.terminated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsShuttingDown reports whether every reactor in the group has had
// ShutdownGracefully called on it (as Group.ShutdownGracefully does).
func (g *Group) IsShuttingDown() bool {
	for _, r := range g.reactors {
		if !r.IsShuttingDown() {
			return false
		}
	}
	return true
}

// IsTerminated reports whether every reactor in the group has fully stopped.
func (g *Group) IsTerminated() bool {
	for _, r := range g.reactors {
		if !r.IsTerminated() {
			return false
		}
	}
	return true
}
