package bootstrap

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/netty/config"
	"github.com/joeycumines/netty/pipeline"
	"github.com/joeycumines/netty/reactor"
)

type fakeTransport struct{}

func (fakeTransport) Bind(net.Addr, *reactor.Promise)              {}
func (fakeTransport) Connect(net.Addr, net.Addr, *reactor.Promise) {}
func (fakeTransport) Disconnect(*reactor.Promise)                  {}
func (fakeTransport) Close(*reactor.Promise)                       {}
func (fakeTransport) Deregister(*reactor.Promise)                  {}
func (fakeTransport) BeginRead()                                   {}
func (fakeTransport) Write(any, *reactor.Promise)                  {}
func (fakeTransport) Flush()                                       {}

var _ pipeline.Transport = fakeTransport{}

// fakeServerOwner stands in for the server Channel when testing the acceptor
// handler in isolation, without pulling in the channel package.
type fakeServerOwner struct {
	r   *reactor.Reactor
	cfg *config.Config
}

func (o *fakeServerOwner) Reactor() *reactor.Reactor           { return o.r }
func (o *fakeServerOwner) Transport() pipeline.Transport       { return fakeTransport{} }
func (o *fakeServerOwner) Config() *config.Config              { return o.cfg }
func (o *fakeServerOwner) Attr(config.AttrKey) (any, bool)     { return nil, false }
func (o *fakeServerOwner) SetAttr(config.AttrKey, any)         {}
func (o *fakeServerOwner) IsActive() bool                      { return true }
func (o *fakeServerOwner) IsRegistered() bool                  { return true }
func (o *fakeServerOwner) SetAutoRead(v bool) { _ = o.cfg.Set(config.OptionAutoRead, v) }
func (o *fakeServerOwner) String() string { return "fake-server" }

var _ pipeline.Owner = (*fakeServerOwner)(nil)

func TestAcceptorExceptionCaughtPausesAndResumesAutoRead(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)
	defer r.Close(context.Background())

	owner := &fakeServerOwner{r: r, cfg: config.NewConfig()}
	p := pipeline.New(owner, nil)

	acceptor := &acceptorHandler{}
	require.NoError(t, p.AddLast("acceptor", acceptor))

	done := make(chan struct{})
	require.NoError(t, r.Submit(func() {
		p.FireExceptionCaught(errors.New("accept failed"))
		close(done)
	}))
	<-done

	require.Eventually(t, func() bool {
		return !owner.cfg.GetBool(config.OptionAutoRead, true)
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return owner.cfg.GetBool(config.OptionAutoRead, false)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAcceptorChannelReadRejectsNonChannelPayload(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)
	defer r.Close(context.Background())

	owner := &fakeServerOwner{r: r, cfg: config.NewConfig()}
	p := pipeline.New(owner, nil)

	var caught error
	require.NoError(t, p.AddLast("acceptor", &acceptorHandler{}))
	require.NoError(t, p.AddLast("catcher", &exceptionCatcher{out: &caught}))

	done := make(chan struct{})
	require.NoError(t, r.Submit(func() {
		p.FireChannelRead("not a channel")
		close(done)
	}))
	<-done

	require.Eventually(t, func() bool { return caught != nil }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, caught, ErrUnexpectedAcceptPayload)
}

type exceptionCatcher struct {
	pipeline.HandlerAdapter
	out *error
}

func (c *exceptionCatcher) ExceptionCaught(ctx *pipeline.Context, err error) { *c.out = err }
