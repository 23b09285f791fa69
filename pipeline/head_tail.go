package pipeline

import (
	"net"

	"github.com/joeycumines/netty/config"
	"github.com/joeycumines/netty/internal/nettylog"
	"github.com/joeycumines/netty/reactor"
)

// headHandler terminates outbound operations by invoking the owning
// channel's transport (spec §4.4 "head terminates outbound operations by
// invoking the transport's low-level send/bind/connect").
type headHandler struct {
	HandlerAdapter
	owner Owner
}

func (h headHandler) Bind(_ *Context, addr net.Addr, promise *reactor.Promise) {
	h.owner.Transport().Bind(addr, promise)
}

func (h headHandler) Connect(_ *Context, remote, local net.Addr, promise *reactor.Promise) {
	h.owner.Transport().Connect(remote, local, promise)
}

func (h headHandler) Disconnect(_ *Context, promise *reactor.Promise) {
	h.owner.Transport().Disconnect(promise)
}

func (h headHandler) Close(_ *Context, promise *reactor.Promise) {
	h.owner.Transport().Close(promise)
}

func (h headHandler) Deregister(_ *Context, promise *reactor.Promise) {
	h.owner.Transport().Deregister(promise)
}

func (h headHandler) Read(*Context) {
	h.owner.Transport().BeginRead()
}

func (h headHandler) Write(_ *Context, msg any, promise *reactor.Promise) {
	h.owner.Transport().Write(msg, promise)
}

func (h headHandler) Flush(*Context) {
	h.owner.Transport().Flush()
}

// tailHandler terminates inbound propagation: unhandled messages are
// released if reference-counted and logged; unhandled exceptions are logged
// at warn level (spec §4.4, §7).
type tailHandler struct {
	HandlerAdapter
	log *nettylog.Logger
}

func (h tailHandler) ChannelRead(ctx *Context, msg any) {
	if rc, ok := msg.(ReferenceCounted); ok {
		rc.Release()
	}
	nettylog.Log(h.log, nettylog.LevelWarn, "discarded unhandled inbound message", func(b *nettylog.Builder) *nettylog.Builder {
		return b.Str("channel", ctx.Channel().String())
	})
}

// ChannelReadComplete drives the autoRead continuation (spec §5's
// "autoRead on: after each channelReadComplete, request more data"). Placed
// at the tail rather than in the transport so it applies uniformly
// regardless of which transport backs the channel.
func (h tailHandler) ChannelReadComplete(ctx *Context) {
	if ctx.Channel().Config().GetBool(config.OptionAutoRead, true) {
		ctx.Read()
	}
}

func (h tailHandler) ExceptionCaught(ctx *Context, err error) {
	nettylog.Log(h.log, nettylog.LevelWarn, "unhandled exception reached pipeline tail", func(b *nettylog.Builder) *nettylog.Builder {
		return b.Err(err)
	})
}
