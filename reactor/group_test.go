package reactor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGroupNewRejectsZero(t *testing.T) {
	_, err := NewGroup(0)
	require.ErrorIs(t, err, ErrNoReactors)
}

func TestGroupNextRoundRobinsAcrossRealReactors(t *testing.T) {
	g, err := NewGroup(3)
	require.NoError(t, err)
	defer g.ShutdownGracefully(0, time.Second)

	seen := make(map[*Reactor]int)
	for i := 0; i < 9; i++ {
		seen[g.Next()]++
	}
	require.Len(t, seen, 3)
	for _, count := range seen {
		require.Equal(t, 3, count)
	}
}

func TestGroupIteratorVisitsEveryReactor(t *testing.T) {
	g, err := NewGroup(4)
	require.NoError(t, err)
	defer g.ShutdownGracefully(0, time.Second)

	var count int
	g.Iterator(func(*Reactor) { count++ })
	require.Equal(t, 4, count)
	require.Equal(t, 4, g.Size())
}

func TestGroupShutdownGracefullyTerminatesEveryReactor(t *testing.T) {
	g, err := NewGroup(3)
	require.NoError(t, err)

	// Touch every reactor so each has actually started its goroutine.
	g.Iterator(func(r *Reactor) {
		done := make(chan struct{})
		_ = r.Submit(func() { close(done) })
		<-done
	})

	f := g.ShutdownGracefully(0, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.Await(ctx))
	require.NoError(t, g.AwaitTermination(ctx))
	require.True(t, g.IsTerminated())
}

func TestGroupShutdownGracefullyIsIdempotent(t *testing.T) {
	g, err := NewGroup(2)
	require.NoError(t, err)
	f1 := g.ShutdownGracefully(0, time.Second)
	f2 := g.ShutdownGracefully(time.Hour, time.Hour)
	require.True(t, f1 == f2)
	require.NoError(t, f1.Await(context.Background()))
}
