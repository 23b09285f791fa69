package pipeline

import (
	"fmt"
	"net"

	"github.com/joeycumines/netty/reactor"
)

// Context is the pipeline's wrapper around one Handler: links, name,
// executor and mask (spec §3 "Handler Context").
//
// executor is nil for the common case: the context runs on whatever reactor
// currently owns the channel, resolved dynamically so a handler can be added
// to a pipeline before the channel is registered (spec §4.4 "Deferred
// initialization"). It is non-nil only when the handler was added with an
// explicit override executor (spec §3, §5).
type Context struct {
	pipeline *Pipeline
	name     string
	handler  Handler
	mask     Mask
	executor *reactor.Reactor

	prev, next *Context

	added   bool
	removed bool
}

func newContext(p *Pipeline, name string, h Handler, mask Mask, executor *reactor.Reactor) *Context {
	return &Context{pipeline: p, name: name, handler: h, mask: mask, executor: executor}
}

// resolveExecutor returns the reactor this context's callbacks run on: its override
// executor if one was given, otherwise the channel's current reactor (which
// may be nil before registration).
func (c *Context) resolveExecutor() *reactor.Reactor {
	if c.executor != nil {
		return c.executor
	}
	return c.pipeline.owner.Reactor()
}

// Name returns the context's name, unique within its pipeline.
func (c *Context) Name() string { return c.name }

// Handler returns the handler this context wraps.
func (c *Context) Handler() Handler { return c.handler }

// Pipeline returns the owning pipeline.
func (c *Context) Pipeline() *Pipeline { return c.pipeline }

// Channel returns the narrow Owner view of the channel this pipeline belongs
// to (named Channel, not Owner, because that's what a handler author reaches
// for — spec's handlers are written against "the channel", not an internal
// plumbing type).
func (c *Context) Channel() Owner { return c.pipeline.owner }

// Executor returns the reactor this context's callbacks currently run on,
// which may be nil if the channel has not yet been registered.
func (c *Context) Executor() *reactor.Reactor { return c.resolveExecutor() }

func invoke(c *Context, fn func()) {
	exec := c.resolveExecutor()
	if exec == nil {
		// No reactor owns this channel yet (pre-registration pipeline setup);
		// nothing else can be racing, so run inline.
		fn()
		return
	}
	reactor.RunOrSubmit(exec, fn)
}

// recoverFromHandlerPanic recovers a panic raised by n's own handler and
// converts it into an exceptionCaught event fired starting at the *next*
// inbound context, so the throwing handler never receives its own error
// (spec §7). Must be deferred directly inside the closure passed to invoke,
// while still running on n's executor.
func recoverFromHandlerPanic(n *Context) {
	if r := recover(); r != nil {
		var err error
		if e, ok := r.(error); ok {
			err = e
		} else {
			err = fmt.Errorf("pipeline: handler %q panicked: %v", n.name, r)
		}
		n.FireExceptionCaught(err)
	}
}

func (c *Context) nextInbound(bit Mask) *Context {
	n := c.next
	for n != nil && n.mask&bit == 0 {
		n = n.next
	}
	return n
}

func (c *Context) nextOutbound(bit Mask) *Context {
	p := c.prev
	for p != nil && p.mask&bit == 0 {
		p = p.prev
	}
	return p
}

// Inbound propagation (head -> tail). Each Fire* method looks for the next
// context whose mask has the corresponding bit set, skipping every context
// in between in O(1) per skip (spec §4.4).

func (c *Context) FireChannelRegistered() *Context {
	if n := c.nextInbound(MaskChannelRegistered); n != nil {
		invoke(n, func() {
			defer recoverFromHandlerPanic(n)
			n.handler.ChannelRegistered(n)
		})
	}
	return c
}

func (c *Context) FireChannelUnregistered() *Context {
	if n := c.nextInbound(MaskChannelUnregistered); n != nil {
		invoke(n, func() {
			defer recoverFromHandlerPanic(n)
			n.handler.ChannelUnregistered(n)
		})
	}
	return c
}

func (c *Context) FireChannelActive() *Context {
	if n := c.nextInbound(MaskChannelActive); n != nil {
		invoke(n, func() {
			defer recoverFromHandlerPanic(n)
			n.handler.ChannelActive(n)
		})
	}
	return c
}

func (c *Context) FireChannelInactive() *Context {
	if n := c.nextInbound(MaskChannelInactive); n != nil {
		invoke(n, func() {
			defer recoverFromHandlerPanic(n)
			n.handler.ChannelInactive(n)
		})
	}
	return c
}

func (c *Context) FireChannelRead(msg any) *Context {
	if n := c.nextInbound(MaskChannelRead); n != nil {
		invoke(n, func() {
			defer recoverFromHandlerPanic(n)
			n.handler.ChannelRead(n, msg)
		})
	}
	return c
}

func (c *Context) FireChannelReadComplete() *Context {
	if n := c.nextInbound(MaskChannelReadComplete); n != nil {
		invoke(n, func() {
			defer recoverFromHandlerPanic(n)
			n.handler.ChannelReadComplete(n)
		})
	}
	return c
}

func (c *Context) FireUserEventTriggered(evt any) *Context {
	if n := c.nextInbound(MaskUserEventTriggered); n != nil {
		invoke(n, func() {
			defer recoverFromHandlerPanic(n)
			n.handler.UserEventTriggered(n, evt)
		})
	}
	return c
}

func (c *Context) FireChannelWritabilityChanged() *Context {
	if n := c.nextInbound(MaskChannelWritabilityChanged); n != nil {
		invoke(n, func() {
			defer recoverFromHandlerPanic(n)
			n.handler.ChannelWritabilityChanged(n)
		})
	}
	return c
}

// FireExceptionCaught propagates err to the next inbound context. Per spec
// §7, a handler-thrown error is caught by the dispatching context and
// reported starting at the *next* context, so the throwing handler never
// receives its own error.
func (c *Context) FireExceptionCaught(err error) *Context {
	if n := c.nextInbound(MaskExceptionCaught); n != nil {
		invoke(n, func() {
			defer recoverFromHandlerPanic(n)
			n.handler.ExceptionCaught(n, err)
		})
	}
	return c
}

// Outbound propagation (tail -> head). Each method searches backward for the
// next context implementing the operation; head always implements every
// outbound operation, so the search never runs off the list.

func (c *Context) Bind(addr net.Addr, promise *reactor.Promise) {
	if n := c.nextOutbound(MaskBind); n != nil {
		invoke(n, func() {
			defer recoverFromHandlerPanic(n)
			n.handler.Bind(n, addr, promise)
		})
	} else if promise != nil {
		promise.Fail(ErrNoOutboundHandler)
	}
}

func (c *Context) Connect(remote, local net.Addr, promise *reactor.Promise) {
	if n := c.nextOutbound(MaskConnect); n != nil {
		invoke(n, func() {
			defer recoverFromHandlerPanic(n)
			n.handler.Connect(n, remote, local, promise)
		})
	} else if promise != nil {
		promise.Fail(ErrNoOutboundHandler)
	}
}

func (c *Context) Disconnect(promise *reactor.Promise) {
	if n := c.nextOutbound(MaskDisconnect); n != nil {
		invoke(n, func() {
			defer recoverFromHandlerPanic(n)
			n.handler.Disconnect(n, promise)
		})
	} else if promise != nil {
		promise.Fail(ErrNoOutboundHandler)
	}
}

func (c *Context) Close(promise *reactor.Promise) {
	if n := c.nextOutbound(MaskClose); n != nil {
		invoke(n, func() {
			defer recoverFromHandlerPanic(n)
			n.handler.Close(n, promise)
		})
	} else if promise != nil {
		promise.Fail(ErrNoOutboundHandler)
	}
}

func (c *Context) Deregister(promise *reactor.Promise) {
	if n := c.nextOutbound(MaskDeregister); n != nil {
		invoke(n, func() {
			defer recoverFromHandlerPanic(n)
			n.handler.Deregister(n, promise)
		})
	} else if promise != nil {
		promise.Fail(ErrNoOutboundHandler)
	}
}

func (c *Context) Read() {
	if n := c.nextOutbound(MaskRead); n != nil {
		invoke(n, func() {
			defer recoverFromHandlerPanic(n)
			n.handler.Read(n)
		})
	}
}

func (c *Context) Write(msg any, promise *reactor.Promise) {
	if n := c.nextOutbound(MaskWrite); n != nil {
		invoke(n, func() {
			defer recoverFromHandlerPanic(n)
			n.handler.Write(n, msg, promise)
		})
	} else if promise != nil {
		promise.Fail(ErrNoOutboundHandler)
	}
}

func (c *Context) Flush() {
	if n := c.nextOutbound(MaskFlush); n != nil {
		invoke(n, func() {
			defer recoverFromHandlerPanic(n)
			n.handler.Flush(n)
		})
	}
}
