package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/netty/channel"
	"github.com/joeycumines/netty/pipeline"
	"github.com/joeycumines/netty/reactor"
)

func newTestReactor(t *testing.T) *reactor.Reactor {
	t.Helper()
	r, err := reactor.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r
}

// tcpPair dials a loopback listener and returns both ends as *net.TCPConn.
func tcpPair(t *testing.T) (server, client *net.TCPConn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		require.NoError(t, err)
		accepted <- c
	}()

	client0, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	server0 := <-accepted
	return server0.(*net.TCPConn), client0.(*net.TCPConn)
}

type readProbe struct {
	pipeline.HandlerAdapter
	ch chan []byte
}

func (p *readProbe) ChannelRead(ctx *pipeline.Context, msg any) {
	p.ch <- msg.([]byte)
}

func TestConnTransportReadDeliversBytes(t *testing.T) {
	serverConn, clientConn := tcpPair(t)
	defer clientConn.Close()

	r := newTestReactor(t)
	tr := NewConnTransport(serverConn, nil)
	ch := channel.New(tr, nil)
	tr.Attach(ch)

	reads := make(chan []byte, 1)
	require.NoError(t, ch.Pipeline().AddLast("probe", &readProbe{ch: reads}))

	f := ch.Register(r, true)
	require.NoError(t, f.Await(context.Background()))

	_, err := clientConn.Write([]byte("hello"))
	require.NoError(t, err)

	select {
	case got := <-reads:
		require.Equal(t, "hello", string(got))
	case <-time.After(time.Second):
		t.Fatal("never received data through the reactor-driven transport")
	}
}

func TestConnTransportWriteSendsOnWire(t *testing.T) {
	serverConn, clientConn := tcpPair(t)
	defer clientConn.Close()

	r := newTestReactor(t)
	tr := NewConnTransport(serverConn, nil)
	ch := channel.New(tr, nil)
	tr.Attach(ch)

	f := ch.Register(r, true)
	require.NoError(t, f.Await(context.Background()))

	wf := ch.WriteAndFlush([]byte("world"))
	require.NoError(t, wf.Await(context.Background()))
	require.Equal(t, reactor.Success, wf.Outcome())

	_ = clientConn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 16)
	n, err := clientConn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "world", string(buf[:n]))
}

func TestConnTransportWriteRejectsNonBytesMessage(t *testing.T) {
	serverConn, clientConn := tcpPair(t)
	defer clientConn.Close()

	r := newTestReactor(t)
	tr := NewConnTransport(serverConn, nil)
	ch := channel.New(tr, nil)
	tr.Attach(ch)

	f := ch.Register(r, true)
	require.NoError(t, f.Await(context.Background()))

	wf := ch.Write("not bytes")
	require.NoError(t, wf.Await(context.Background()))
	require.Equal(t, reactor.Failure, wf.Outcome())
	require.ErrorIs(t, wf.Err(), ErrUnsupportedMessage)
}

func TestConnTransportCloseNotifiesInactiveAndUnregistered(t *testing.T) {
	serverConn, clientConn := tcpPair(t)
	defer clientConn.Close()

	r := newTestReactor(t)
	tr := NewConnTransport(serverConn, nil)
	ch := channel.New(tr, nil)
	tr.Attach(ch)

	f := ch.Register(r, true)
	require.NoError(t, f.Await(context.Background()))
	require.True(t, ch.IsActive())

	cf := ch.Close()
	require.NoError(t, cf.Await(context.Background()))
	require.False(t, ch.IsActive())
	require.Equal(t, channel.StateClosed, ch.State())
}

func TestConnTransportEOFFiresInactive(t *testing.T) {
	serverConn, clientConn := tcpPair(t)

	r := newTestReactor(t)
	tr := NewConnTransport(serverConn, nil)
	ch := channel.New(tr, nil)
	tr.Attach(ch)

	f := ch.Register(r, true)
	require.NoError(t, f.Await(context.Background()))
	require.True(t, ch.IsActive())

	require.NoError(t, clientConn.Close()) // triggers EOF on the server side

	require.Eventually(t, func() bool {
		return !ch.IsActive()
	}, time.Second, 5*time.Millisecond)
}

type acceptProbe struct {
	pipeline.HandlerAdapter
	ch chan *channel.Channel
}

func (p *acceptProbe) ChannelRead(ctx *pipeline.Context, msg any) {
	p.ch <- msg.(*channel.Channel)
}

func TestServerTransportAcceptDeliversChildChannel(t *testing.T) {
	r := newTestReactor(t)
	tr := NewServerTransport(nil)
	ch := channel.New(tr, nil)
	tr.Attach(ch)

	accepted := make(chan *channel.Channel, 1)
	require.NoError(t, ch.Pipeline().AddLast("accept-probe", &acceptProbe{ch: accepted}))

	f := ch.Register(r, false)
	require.NoError(t, f.Await(context.Background()))

	bf := ch.Bind(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, bf.Await(context.Background()))
	require.Equal(t, reactor.Success, bf.Outcome())
	require.NotNil(t, ch.LocalAddr())

	conn, err := net.Dial("tcp", ch.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	select {
	case child := <-accepted:
		require.NotNil(t, child)
		require.NotNil(t, child.RemoteAddr())
	case <-time.After(time.Second):
		t.Fatal("server transport never delivered an accepted channel")
	}
}

func TestServerTransportWriteUnsupported(t *testing.T) {
	r := newTestReactor(t)
	tr := NewServerTransport(nil)
	ch := channel.New(tr, nil)
	tr.Attach(ch)

	f := ch.Register(r, false)
	require.NoError(t, f.Await(context.Background()))

	wf := ch.Write([]byte("x"))
	require.NoError(t, wf.Await(context.Background()))
	require.Equal(t, reactor.Failure, wf.Outcome())
	require.ErrorIs(t, wf.Err(), ErrNotSupported)
}
