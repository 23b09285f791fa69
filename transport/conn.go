package transport

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/joeycumines/netty/channel"
	"github.com/joeycumines/netty/config"
	"github.com/joeycumines/netty/internal/nettylog"
	"github.com/joeycumines/netty/pipeline"
	"github.com/joeycumines/netty/reactor"
	"github.com/joeycumines/netty/selector"
)

// ConnTransport adapts a connected net.TCPConn to pipeline.Transport (spec
// §6). Inbound bytes are delivered as a fresh []byte per ChannelRead; writes
// are synchronous, since Write always runs already on the owning reactor
// (outbound dispatch resolves there before reaching the transport) and the
// write-buffer watermark options exist for callers to consult but this
// transport does not itself apply backpressure from them.
type ConnTransport struct {
	ch  *channel.Channel
	log *nettylog.Logger

	conn *net.TCPConn
	fd   int

	readBuf    []byte
	registered bool
}

// NewConnTransport constructs a ConnTransport wrapping an already-connected
// socket (either accepted by a ServerTransport or, in a future client
// bootstrap, dialed directly).
func NewConnTransport(conn *net.TCPConn, log *nettylog.Logger) *ConnTransport {
	return &ConnTransport{conn: conn, log: log, readBuf: make([]byte, 64*1024)}
}

// Attach records the channel this transport backs.
func (t *ConnTransport) Attach(ch *channel.Channel) { t.ch = ch }

var _ pipeline.Transport = (*ConnTransport)(nil)

func (t *ConnTransport) Bind(net.Addr, *reactor.Promise) {}

func (t *ConnTransport) Connect(_, _ net.Addr, promise *reactor.Promise) {
	// Accepted channels are already connected; dialing out is a client
	// bootstrap feature this transport does not implement.
	promise.Fail(ErrNotSupported)
}

func (t *ConnTransport) Disconnect(promise *reactor.Promise) { t.Close(promise) }

func (t *ConnTransport) Close(promise *reactor.Promise) {
	t.cancel()
	err := t.conn.Close()
	t.ch.NotifyInactive()
	t.ch.NotifyUnregistered()
	if err != nil {
		promise.Fail(err)
		return
	}
	promise.Succeed(nil)
}

func (t *ConnTransport) Deregister(promise *reactor.Promise) {
	t.cancel()
	t.ch.NotifyUnregistered()
	promise.Succeed(nil)
}

// BeginRead ensures the connection's fd is registered for read readiness,
// and immediately attempts one non-blocking read. The immediate attempt
// matters when autoRead is off: the selector callback itself refuses to
// read while paused (see onReadable), so an explicit Read() call is the
// only path that resumes delivery.
func (t *ConnTransport) BeginRead() {
	if !t.registered {
		fd, err := fdOf(t.conn)
		if err != nil {
			t.ch.Pipeline().FireExceptionCaught(err)
			return
		}
		t.fd = fd
		if err := t.ch.Reactor().Selector().Register(fd, selector.Read, t.onReadable); err != nil {
			t.ch.Pipeline().FireExceptionCaught(err)
			return
		}
		t.registered = true
	}
	t.doRead()
}

func (t *ConnTransport) Write(msg any, promise *reactor.Promise) {
	data, ok := msg.([]byte)
	if !ok {
		promise.Fail(ErrUnsupportedMessage)
		return
	}
	if _, err := t.conn.Write(data); err != nil {
		promise.Fail(err)
		return
	}
	promise.Succeed(nil)
}

// Flush is a no-op: Write already sends synchronously.
func (t *ConnTransport) Flush() {}

func (t *ConnTransport) cancel() {
	if t.registered {
		_ = t.ch.Reactor().Selector().Cancel(t.fd)
		t.registered = false
	}
}

// onReadable runs on the reactor goroutine. While autoRead is off it leaves
// pending bytes unread in the kernel buffer rather than draining them, so a
// resumed autoRead or an explicit Read() sees them on the next attempt.
func (t *ConnTransport) onReadable(selector.Events) {
	if !t.ch.Config().GetBool(config.OptionAutoRead, true) {
		return
	}
	t.doRead()
}

func (t *ConnTransport) doRead() {
	_ = t.conn.SetReadDeadline(time.Now())
	n, err := t.conn.Read(t.readBuf)
	_ = t.conn.SetReadDeadline(time.Time{})

	if n > 0 {
		buf := make([]byte, n)
		copy(buf, t.readBuf[:n])
		t.ch.Pipeline().FireChannelRead(buf)
		t.ch.Pipeline().FireChannelReadComplete()
	}

	if err != nil {
		if isTimeout(err) {
			return
		}
		if !errors.Is(err, io.EOF) {
			t.ch.Pipeline().FireExceptionCaught(err)
		}
		t.cancel()
		t.ch.NotifyInactive()
		return
	}
}
