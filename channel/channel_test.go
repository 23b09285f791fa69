package channel

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/netty/config"
	"github.com/joeycumines/netty/pipeline"
	"github.com/joeycumines/netty/reactor"
)

type fakeTransport struct {
	binds, connects, disconnects, closes, deregisters, flushes int
	reads                                                      int
	writes                                                     []any
}

func (t *fakeTransport) Bind(net.Addr, *reactor.Promise)              { t.binds++ }
func (t *fakeTransport) Connect(net.Addr, net.Addr, *reactor.Promise) { t.connects++ }
func (t *fakeTransport) Disconnect(*reactor.Promise)                  { t.disconnects++ }
func (t *fakeTransport) Close(p *reactor.Promise)                     { t.closes++; p.Succeed(nil) }
func (t *fakeTransport) Deregister(*reactor.Promise)                  { t.deregisters++ }
func (t *fakeTransport) BeginRead()                                   { t.reads++ }
func (t *fakeTransport) Write(msg any, p *reactor.Promise)            { t.writes = append(t.writes, msg); p.Succeed(nil) }
func (t *fakeTransport) Flush()                                       { t.flushes++ }

var _ pipeline.Transport = (*fakeTransport)(nil)

func newTestReactor(t *testing.T) *reactor.Reactor {
	t.Helper()
	r, err := reactor.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r
}

func TestChannelNewIsUnregistered(t *testing.T) {
	ch := New(&fakeTransport{}, nil)
	require.Equal(t, StateUnregistered, ch.State())
	require.False(t, ch.IsRegistered())
	require.False(t, ch.IsActive())
	require.Nil(t, ch.Reactor())
}

func TestChannelRegisterFiresChannelRegistered(t *testing.T) {
	ch := New(&fakeTransport{}, nil)
	r := newTestReactor(t)

	var registered bool
	_ = ch.Pipeline().AddLast("recorder", &registeredProbe{fired: &registered})

	f := ch.Register(r, false)
	require.NoError(t, f.Await(context.Background()))
	require.Equal(t, reactor.Success, f.Outcome())

	require.True(t, registered)
	require.Equal(t, StateRegistered, ch.State())
	require.True(t, ch.IsRegistered())
	require.False(t, ch.IsActive())
	require.Equal(t, r, ch.Reactor())
}

type registeredProbe struct {
	pipeline.HandlerAdapter
	fired *bool
}

func (p *registeredProbe) ChannelRegistered(ctx *pipeline.Context) { *p.fired = true }

func TestChannelRegisterAlreadyActiveFiresActiveAndReads(t *testing.T) {
	tr := &fakeTransport{}
	ch := New(tr, nil)
	r := newTestReactor(t)

	f := ch.Register(r, true)
	require.NoError(t, f.Await(context.Background()))
	require.Equal(t, StateActive, ch.State())
	require.True(t, ch.IsActive())
	require.Equal(t, 1, tr.reads) // autoRead defaults on
}

func TestChannelRegisterTwiceFails(t *testing.T) {
	ch := New(&fakeTransport{}, nil)
	r := newTestReactor(t)

	f1 := ch.Register(r, false)
	require.NoError(t, f1.Await(context.Background()))

	f2 := ch.Register(r, false)
	require.NoError(t, f2.Await(context.Background()))
	require.Equal(t, reactor.Failure, f2.Outcome())
	require.ErrorIs(t, f2.Err(), reactor.ErrReentrantRegister)
}

func TestChannelNotifyActiveIsIdempotent(t *testing.T) {
	tr := &fakeTransport{}
	ch := New(tr, nil)
	r := newTestReactor(t)
	f := ch.Register(r, false)
	require.NoError(t, f.Await(context.Background()))

	ch.NotifyActive()
	done := make(chan struct{})
	_ = r.Submit(func() { close(done) })
	<-done
	require.True(t, ch.IsActive())
	readsAfterFirst := tr.reads

	ch.NotifyActive() // second call must be a no-op
	done2 := make(chan struct{})
	_ = r.Submit(func() { close(done2) })
	<-done2
	require.Equal(t, readsAfterFirst, tr.reads)
}

func TestChannelNotifyInactiveFiresOnce(t *testing.T) {
	ch := New(&fakeTransport{}, nil)
	r := newTestReactor(t)
	f := ch.Register(r, true)
	require.NoError(t, f.Await(context.Background()))

	var inactiveCount int
	_ = ch.Pipeline().AddLast("inactive-probe", &inactiveProbe{count: &inactiveCount})

	ch.NotifyInactive()
	ch.NotifyInactive()
	done := make(chan struct{})
	_ = r.Submit(func() { close(done) })
	<-done
	require.Equal(t, 1, inactiveCount)
}

type inactiveProbe struct {
	pipeline.HandlerAdapter
	count *int
}

func (p *inactiveProbe) ChannelInactive(ctx *pipeline.Context) { *p.count++ }

func TestChannelOutboundBeforeRegistrationFails(t *testing.T) {
	ch := New(&fakeTransport{}, nil)
	f := ch.Close()
	require.Equal(t, reactor.Failure, f.Outcome())
	require.ErrorIs(t, f.Err(), ErrNotRegistered)
}

func TestChannelWriteFlushReachTransport(t *testing.T) {
	tr := &fakeTransport{}
	ch := New(tr, nil)
	r := newTestReactor(t)
	f := ch.Register(r, false)
	require.NoError(t, f.Await(context.Background()))

	wf := ch.WriteAndFlush("payload")
	require.NoError(t, wf.Await(context.Background()))
	require.Equal(t, []any{"payload"}, tr.writes)
	require.Equal(t, 1, tr.flushes)
}

func TestChannelCloseReachesTransport(t *testing.T) {
	tr := &fakeTransport{}
	ch := New(tr, nil)
	r := newTestReactor(t)
	f := ch.Register(r, false)
	require.NoError(t, f.Await(context.Background()))

	cf := ch.Close()
	require.NoError(t, cf.Await(context.Background()))
	require.Equal(t, 1, tr.closes)
}

func TestChannelAttrRoundTrip(t *testing.T) {
	ch := New(&fakeTransport{}, nil)
	key := config.NewAttrKey("channel_test.attr")
	_, ok := ch.Attr(key)
	require.False(t, ok)
	ch.SetAttr(key, 7)
	v, ok := ch.Attr(key)
	require.True(t, ok)
	require.Equal(t, 7, v)
}

func TestChannelStateStringer(t *testing.T) {
	require.Equal(t, "unregistered", StateUnregistered.String())
	require.Equal(t, "registered", StateRegistered.String())
	require.Equal(t, "active", StateActive.String())
	require.Equal(t, "closed", StateClosed.String())
}

func TestReactorSelectTimeoutSmokeForClose(t *testing.T) {
	// Exercises that a fresh, never-submitted-to reactor still shuts down
	// promptly via Close (regression guard for lazy-start interacting badly
	// with ShutdownGracefully).
	r, err := reactor.New()
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))
}

// TestChannelCrossReactorWriteListenerRunsOnChannelReactor exercises spec's
// "cross-reactor outbound" scenario: writeAndFlush called from a goroutine
// that is not the channel's reactor returns immediately with an incomplete
// future, and any listener added from that foreign goroutine still runs on
// the channel's own reactor.
func TestChannelCrossReactorWriteListenerRunsOnChannelReactor(t *testing.T) {
	tr := &fakeTransport{}
	ch := New(tr, nil)
	r := newTestReactor(t)
	f := ch.Register(r, false)
	require.NoError(t, f.Await(context.Background()))

	listenerRanOnReactor := make(chan bool, 1)

	// This call happens on the test goroutine, which is not r's goroutine.
	wf := ch.WriteAndFlush("payload")
	require.False(t, wf.IsDone(), "writeAndFlush from a foreign goroutine must return an incomplete future")

	wf.AddListener(func(*reactor.Future) {
		listenerRanOnReactor <- r.InEventLoop()
	})

	select {
	case onReactor := <-listenerRanOnReactor:
		require.True(t, onReactor)
	case <-time.After(time.Second):
		t.Fatal("listener added from a foreign goroutine never ran")
	}
	require.Equal(t, []any{"payload"}, tr.writes)
}
