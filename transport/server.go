package transport

import (
	"net"
	"time"

	"github.com/joeycumines/netty/channel"
	"github.com/joeycumines/netty/internal/nettylog"
	"github.com/joeycumines/netty/pipeline"
	"github.com/joeycumines/netty/reactor"
	"github.com/joeycumines/netty/selector"
)

// ServerTransport adapts a net.TCPListener to pipeline.Transport for a
// channel whose only job is accepting connections (spec §4.6's server
// channel). Accept readiness is multiplexed through the owning reactor's
// selector rather than a dedicated goroutine, so accepting never blocks the
// reactor: every AcceptTCP call is wrapped in an immediate deadline, which
// turns "nothing pending yet" into a plain timeout instead of a stall.
type ServerTransport struct {
	ch  *channel.Channel
	log *nettylog.Logger

	ln         *net.TCPListener
	fd         int
	registered bool
}

// NewServerTransport constructs a ServerTransport. The channel it will back
// is supplied after construction via Attach, since pipeline.New needs the
// owner before the owner can hold a reference to its pipeline's transport.
func NewServerTransport(log *nettylog.Logger) *ServerTransport {
	return &ServerTransport{log: log}
}

// Attach records the channel this transport backs. Must be called once,
// before the channel is registered.
func (t *ServerTransport) Attach(ch *channel.Channel) { t.ch = ch }

var _ pipeline.Transport = (*ServerTransport)(nil)

func (t *ServerTransport) Bind(addr net.Addr, promise *reactor.Promise) {
	ln, err := net.Listen("tcp", addr.String())
	if err != nil {
		promise.Fail(err)
		return
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		promise.Fail(ErrNotSupported)
		return
	}
	fd, err := fdOf(tcpLn)
	if err != nil {
		_ = tcpLn.Close()
		promise.Fail(err)
		return
	}
	t.ln = tcpLn
	t.fd = fd
	t.ch.SetLocalAddr(tcpLn.Addr())

	sel := t.ch.Reactor().Selector()
	if err := sel.Register(fd, selector.Read, t.onReadable); err != nil {
		_ = tcpLn.Close()
		promise.Fail(err)
		return
	}
	t.registered = true
	promise.Succeed(nil)
}

func (t *ServerTransport) Connect(net.Addr, net.Addr, *reactor.Promise) {}

func (t *ServerTransport) Disconnect(promise *reactor.Promise) { t.Close(promise) }

func (t *ServerTransport) Close(promise *reactor.Promise) {
	t.cancel()
	var err error
	if t.ln != nil {
		err = t.ln.Close()
	}
	t.ch.NotifyUnregistered()
	if err != nil {
		promise.Fail(err)
		return
	}
	promise.Succeed(nil)
}

func (t *ServerTransport) Deregister(promise *reactor.Promise) {
	t.cancel()
	t.ch.NotifyUnregistered()
	promise.Succeed(nil)
}

func (t *ServerTransport) BeginRead() {}

func (t *ServerTransport) Write(_ any, promise *reactor.Promise) { promise.Fail(ErrNotSupported) }

func (t *ServerTransport) Flush() {}

func (t *ServerTransport) cancel() {
	if t.registered {
		_ = t.ch.Reactor().Selector().Cancel(t.fd)
		t.registered = false
	}
}

// onReadable runs on the reactor goroutine; it accepts exactly one
// connection per notification, relying on level-triggered readiness to
// refire if the backlog still holds more.
func (t *ServerTransport) onReadable(selector.Events) {
	_ = t.ln.SetDeadline(time.Now())
	conn, err := t.ln.AcceptTCP()
	_ = t.ln.SetDeadline(time.Time{})
	if err != nil {
		if isTimeout(err) {
			return
		}
		t.ch.Pipeline().FireExceptionCaught(err)
		return
	}

	childTransport := NewConnTransport(conn, t.log)
	child := channel.New(childTransport, t.log)
	childTransport.Attach(child)
	child.SetLocalAddr(conn.LocalAddr())
	child.SetRemoteAddr(conn.RemoteAddr())

	t.ch.Pipeline().FireChannelRead(child)
}
