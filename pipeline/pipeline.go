package pipeline

import (
	"net"
	"reflect"
	"sync"

	"github.com/joeycumines/netty/internal/nettylog"
	"github.com/joeycumines/netty/reactor"
)

// Pipeline is the ordered chain of handler contexts belonging to one
// channel (spec §3, §4.4). All mutation (add/remove/replace) and all event
// dispatch happens, ultimately, on the owner's reactor; calls from other
// goroutines are transparently enqueued (spec §4.4 "Mutation").
type Pipeline struct {
	owner Owner
	log   *nettylog.Logger

	// mu guards the linked list and the name index. Mutation only ever
	// happens on the owner's reactor goroutine (enforced by routing every
	// public method through reactor.RunOrSubmit), so this exists to let
	// read-only accessors like Get be called safely from other goroutines
	// too, not to arbitrate concurrent mutation.
	mu    sync.Mutex
	head  *Context
	tail  *Context
	names map[string]*Context

	initDone bool // guards at-most-once initializer execution (spec §4.4, §8.3)
}

// New builds a Pipeline for owner, with just a head and tail sentinel.
func New(owner Owner, log *nettylog.Logger) *Pipeline {
	p := &Pipeline{owner: owner, log: log, names: make(map[string]*Context)}
	p.head = newContext(p, "head", headHandler{owner: owner}, maskAll, nil)
	p.tail = newContext(p, "tail", tailHandler{log: log}, maskAll, nil)
	p.head.next = p.tail
	p.head.added = true
	p.tail.prev = p.head
	p.tail.added = true
	return p
}

func (p *Pipeline) warn(msg, name string, err error) {
	nettylog.Log(p.log, nettylog.LevelWarn, msg, func(b *nettylog.Builder) *nettylog.Builder {
		return b.Str("name", name).Err(err)
	})
}

// Head returns the pipeline's head sentinel context.
func (p *Pipeline) Head() *Context { return p.head }

// Tail returns the pipeline's tail sentinel context.
func (p *Pipeline) Tail() *Context { return p.tail }

// Get returns the context registered under name, if any.
func (p *Pipeline) Get(name string) (*Context, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.names[name]
	return c, ok
}

func (p *Pipeline) checkSharable(h Handler) error {
	if s, ok := h.(Sharable); ok && s.IsSharable() {
		return nil
	}
	// A handler passed by value is a fresh copy on every add, so only
	// pointer handlers can be the same instance twice.
	if reflect.TypeOf(h).Kind() != reflect.Pointer {
		return nil
	}
	for _, c := range p.names {
		if c.handler == h {
			return ErrNotSharable
		}
	}
	return nil
}

// AddLast inserts h immediately before the tail sentinel.
func (p *Pipeline) AddLast(name string, h Handler) error {
	return p.insert(name, h, func() (*Context, *Context) { return p.tail.prev, p.tail })
}

// AddFirst inserts h immediately after the head sentinel.
func (p *Pipeline) AddFirst(name string, h Handler) error {
	return p.insert(name, h, func() (*Context, *Context) { return p.head, p.head.next })
}

// AddBefore inserts h immediately before the context named baseName.
func (p *Pipeline) AddBefore(baseName, name string, h Handler) error {
	return p.insert(name, h, func() (*Context, *Context) {
		base, ok := p.names[baseName]
		if !ok {
			return nil, nil
		}
		return base.prev, base
	})
}

// AddAfter inserts h immediately after the context named baseName.
func (p *Pipeline) AddAfter(baseName, name string, h Handler) error {
	return p.insert(name, h, func() (*Context, *Context) {
		base, ok := p.names[baseName]
		if !ok {
			return nil, nil
		}
		return base, base.next
	})
}

func (p *Pipeline) insert(name string, h Handler, locate func() (before, after *Context)) error {
	reactor.RunOrSubmit(p.owner.Reactor(), func() {
		p.mu.Lock()
		if _, exists := p.names[name]; exists {
			p.mu.Unlock()
			p.warn("cannot add handler, name already in use", name, ErrNameInUse)
			return
		}
		if err := p.checkSharable(h); err != nil {
			p.mu.Unlock()
			p.warn("cannot add handler", name, err)
			return
		}
		before, after := locate()
		if before == nil || after == nil {
			p.mu.Unlock()
			p.warn("cannot add handler, reference context not found", name, ErrNotFound)
			return
		}
		ctx := newContext(p, name, h, maskOf(h), nil)
		before.next = ctx
		ctx.prev = before
		ctx.next = after
		after.prev = ctx
		p.names[name] = ctx
		p.mu.Unlock()

		ctx.handler.HandlerAdded(ctx)
		ctx.added = true

		// A channel may already be registered by the time a deferred
		// initializer's own context is added (spec §4.4 "Deferred
		// initialization" races registration against handlerAdded); give the
		// initializer a chance to run right away instead of waiting for a
		// channelRegistered event that already happened.
		if init, ok := h.(Initializer); ok && p.owner.IsRegistered() {
			p.runInitializer(ctx, init)
		}
	})
	return nil
}

// Remove detaches the context named name. Removing head or tail is rejected.
func (p *Pipeline) Remove(name string) error {
	if name == p.head.name || name == p.tail.name {
		return ErrRemoveSentinel
	}
	reactor.RunOrSubmit(p.owner.Reactor(), func() {
		p.mu.Lock()
		ctx, ok := p.names[name]
		if !ok {
			p.mu.Unlock()
			p.warn("cannot remove handler, name not found", name, ErrNotFound)
			return
		}
		delete(p.names, name)
		ctx.prev.next = ctx.next
		ctx.next.prev = ctx.prev
		p.mu.Unlock()

		ctx.handler.HandlerRemoved(ctx)
		ctx.removed = true
		ctx.prev = nil
		ctx.next = nil
	})
	return nil
}

// Replace swaps the handler at oldName for h, re-using the position but
// registering it under newName.
func (p *Pipeline) Replace(oldName, newName string, h Handler) error {
	reactor.RunOrSubmit(p.owner.Reactor(), func() {
		p.mu.Lock()
		old, ok := p.names[oldName]
		if !ok {
			p.mu.Unlock()
			p.warn("cannot replace handler, name not found", oldName, ErrNotFound)
			return
		}
		before, after := old.prev, old.next
		delete(p.names, oldName)
		p.mu.Unlock()

		old.handler.HandlerRemoved(old)
		old.removed = true

		ctx := newContext(p, newName, h, maskOf(h), nil)
		p.mu.Lock()
		before.next = ctx
		ctx.prev = before
		ctx.next = after
		after.prev = ctx
		p.names[newName] = ctx
		p.mu.Unlock()

		ctx.handler.HandlerAdded(ctx)
		ctx.added = true
	})
	return nil
}

// Initializer is implemented by deferred pipeline initializers (spec §4.4
// "Deferred initialization"). A handler added to a pipeline that also
// implements Initializer has its InitChannel called exactly once, then is
// removed.
type Initializer interface {
	InitChannel(ctx *Context)
}

// InitializerFunc adapts a plain function to an Initializer/Handler, for
// callers that don't need a dedicated type (bootstrap's server and acceptor
// initializers use this).
type InitializerFunc struct {
	HandlerAdapter
	Func func(ctx *Context)
}

func (f InitializerFunc) InitChannel(ctx *Context) { f.Func(ctx) }

var (
	_ Handler     = InitializerFunc{}
	_ Initializer = InitializerFunc{}
)

// runInitializer runs init exactly once for this pipeline, then removes its
// context, guarding the initializer-vs-registration race named in spec §4.4
// and §8.3 with the pipeline's initDone flag.
func (p *Pipeline) runInitializer(ctx *Context, init Initializer) {
	p.mu.Lock()
	if p.initDone {
		p.mu.Unlock()
		return
	}
	p.initDone = true
	p.mu.Unlock()

	init.InitChannel(ctx)
	_ = p.Remove(ctx.name)
}

// FireChannelRegistered fires channelRegistered starting at the head,
// running any pending deferred initializer first.
func (p *Pipeline) FireChannelRegistered() {
	p.mu.Lock()
	for _, ctx := range p.names {
		if init, ok := ctx.handler.(Initializer); ok {
			p.mu.Unlock()
			p.runInitializer(ctx, init)
			p.mu.Lock()
			break
		}
	}
	p.mu.Unlock()
	p.head.FireChannelRegistered()
}

func (p *Pipeline) FireChannelUnregistered()       { p.head.FireChannelUnregistered() }
func (p *Pipeline) FireChannelActive()             { p.head.FireChannelActive() }
func (p *Pipeline) FireChannelInactive()           { p.head.FireChannelInactive() }
func (p *Pipeline) FireChannelRead(msg any)        { p.head.FireChannelRead(msg) }
func (p *Pipeline) FireChannelReadComplete()       { p.head.FireChannelReadComplete() }
func (p *Pipeline) FireUserEventTriggered(evt any) { p.head.FireUserEventTriggered(evt) }
func (p *Pipeline) FireChannelWritabilityChanged() { p.head.FireChannelWritabilityChanged() }
func (p *Pipeline) FireExceptionCaught(err error)  { p.head.FireExceptionCaught(err) }

func (p *Pipeline) Bind(addr net.Addr, promise *reactor.Promise) { p.tail.Bind(addr, promise) }

func (p *Pipeline) Connect(remote, local net.Addr, promise *reactor.Promise) {
	p.tail.Connect(remote, local, promise)
}

func (p *Pipeline) Write(msg any, promise *reactor.Promise) { p.tail.Write(msg, promise) }
func (p *Pipeline) Flush()                                  { p.tail.Flush() }
func (p *Pipeline) Read()                                   { p.tail.Read() }
func (p *Pipeline) Disconnect(promise *reactor.Promise)     { p.tail.Disconnect(promise) }
func (p *Pipeline) Close(promise *reactor.Promise)          { p.tail.Close(promise) }
func (p *Pipeline) Deregister(promise *reactor.Promise)     { p.tail.Deregister(promise) }
