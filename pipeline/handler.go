// Package pipeline implements the channel pipeline (spec §4.4, component D)
// and its handler-mask optimisation (spec §4.5, component E): a doubly
// linked list of handler contexts through which inbound events travel head
// to tail and outbound operations travel tail to head, skipping contexts
// whose handler doesn't implement a given event in O(1).
//
// Grounded on the teacher's dispatch style in eventloop (callback-based,
// single-threaded-confined mutation) generalized from a JS event loop's
// microtask queue to a network pipeline's event propagation.
package pipeline

import (
	"net"

	"github.com/joeycumines/netty/config"
	"github.com/joeycumines/netty/reactor"
)

// Transport is the external collaborator at the head of every pipeline
// (spec §6 "Transport interface"): the low-level I/O primitive a concrete
// network implementation provides.
type Transport interface {
	Bind(addr net.Addr, promise *reactor.Promise)
	Connect(remote, local net.Addr, promise *reactor.Promise)
	Disconnect(promise *reactor.Promise)
	Close(promise *reactor.Promise)
	Deregister(promise *reactor.Promise)
	BeginRead()
	Write(msg any, promise *reactor.Promise)
	Flush()
}

// ReferenceCounted is implemented by inbound payloads that hold pooled
// resources. A message reaching the tail unhandled is released, not merely
// dropped (spec §4.4).
type ReferenceCounted interface {
	Release() bool
}

// Owner is the narrow view of a Channel that a Pipeline and its contexts
// need. Channel implements Owner; Pipeline never imports the channel package
// directly, which is what keeps channel -> pipeline -> config/reactor
// acyclic even though conceptually a Channel owns its Pipeline and a
// Pipeline's head/tail need Channel-level facilities.
type Owner interface {
	Reactor() *reactor.Reactor
	Transport() Transport
	Config() *config.Config
	Attr(key config.AttrKey) (any, bool)
	SetAttr(key config.AttrKey, value any)
	IsActive() bool
	IsRegistered() bool
	SetAutoRead(bool)
	String() string
}

// Handler reacts to inbound events and/or initiates outbound operations for
// one link in a Pipeline. Embed HandlerAdapter to get no-op defaults for
// every method; overriding a method is what causes the pipeline to invoke
// it (spec §4.5).
type Handler interface {
	// HandlerAdded fires once, before the context becomes reachable by
	// dispatch (spec §4.4's "Handler Context" lifecycle). Not masked.
	HandlerAdded(ctx *Context)
	// HandlerRemoved fires once, after the context is unreachable by
	// dispatch. Not masked.
	HandlerRemoved(ctx *Context)

	ChannelRegistered(ctx *Context)
	ChannelUnregistered(ctx *Context)
	ChannelActive(ctx *Context)
	ChannelInactive(ctx *Context)
	ChannelRead(ctx *Context, msg any)
	ChannelReadComplete(ctx *Context)
	UserEventTriggered(ctx *Context, evt any)
	ChannelWritabilityChanged(ctx *Context)
	ExceptionCaught(ctx *Context, err error)

	Bind(ctx *Context, addr net.Addr, promise *reactor.Promise)
	Connect(ctx *Context, remote, local net.Addr, promise *reactor.Promise)
	Disconnect(ctx *Context, promise *reactor.Promise)
	Close(ctx *Context, promise *reactor.Promise)
	Deregister(ctx *Context, promise *reactor.Promise)
	Read(ctx *Context)
	Write(ctx *Context, msg any, promise *reactor.Promise)
	Flush(ctx *Context)
}

// HandlerAdapter supplies no-op defaults for every Handler method. A
// concrete handler embeds it and overrides only the events it cares about;
// maskOf uses reflection to tell an override from a promoted default (spec
// §4.5), so the pipeline skips the event methods this type provides; only
// HandlerAdded and HandlerRemoved, which are outside the mask, are called.
type HandlerAdapter struct{}

func (HandlerAdapter) HandlerAdded(*Context)   {}
func (HandlerAdapter) HandlerRemoved(*Context) {}

func (HandlerAdapter) ChannelRegistered(*Context)         {}
func (HandlerAdapter) ChannelUnregistered(*Context)       {}
func (HandlerAdapter) ChannelActive(*Context)             {}
func (HandlerAdapter) ChannelInactive(*Context)           {}
func (HandlerAdapter) ChannelRead(*Context, any)          {}
func (HandlerAdapter) ChannelReadComplete(*Context)       {}
func (HandlerAdapter) UserEventTriggered(*Context, any)   {}
func (HandlerAdapter) ChannelWritabilityChanged(*Context) {}
func (HandlerAdapter) ExceptionCaught(*Context, error)    {}

func (HandlerAdapter) Bind(*Context, net.Addr, *reactor.Promise)           {}
func (HandlerAdapter) Connect(*Context, net.Addr, net.Addr, *reactor.Promise) {}
func (HandlerAdapter) Disconnect(*Context, *reactor.Promise)               {}
func (HandlerAdapter) Close(*Context, *reactor.Promise)                    {}
func (HandlerAdapter) Deregister(*Context, *reactor.Promise)               {}
func (HandlerAdapter) Read(*Context)                                       {}
func (HandlerAdapter) Write(*Context, any, *reactor.Promise)               {}
func (HandlerAdapter) Flush(*Context)                                      {}

var _ Handler = HandlerAdapter{}
