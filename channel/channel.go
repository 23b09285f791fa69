// Package channel implements Channel (spec §3, §4.3, component C): the
// abstraction over one network endpoint, owning a pipeline, a configuration
// object, an attribute map, and an affinity reference to exactly one
// reactor. Grounded on the teacher's state-machine discipline in
// eventloop/state.go, generalized from a single JS-loop lifecycle to a
// per-connection one.
package channel

import (
	"net"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/joeycumines/netty/config"
	"github.com/joeycumines/netty/internal/nettylog"
	"github.com/joeycumines/netty/pipeline"
	"github.com/joeycumines/netty/reactor"
)

// Channel is one network endpoint: a listening socket or an accepted
// connection. It owns its Pipeline for life but is bound to a Reactor only
// once, on a successful Register call (spec §3's "bound reactor ... set on
// registration, immutable thereafter").
type Channel struct {
	id        uuid.UUID
	cfg       *config.Config
	attrs     *config.AttrMap
	pipe      *pipeline.Pipeline
	transport pipeline.Transport
	log       *nettylog.Logger

	state      atomicState
	active     atomic.Bool
	reactorPtr atomic.Pointer[reactor.Reactor]

	localAddr  net.Addr
	remoteAddr net.Addr
}

// New constructs an unregistered Channel backed by transport. The pipeline
// is usable immediately (handlers may be added before registration); its
// handlerAdded callbacks simply run inline until a reactor is attached (spec
// §4.4 "Deferred initialization").
func New(transport pipeline.Transport, log *nettylog.Logger) *Channel {
	c := &Channel{
		id:        uuid.New(),
		cfg:       config.NewConfig(),
		attrs:     config.NewAttrMap(),
		transport: transport,
		log:       log,
	}
	c.pipe = pipeline.New(c, log)
	return c
}

// ID uniquely identifies this channel for the lifetime of the process.
func (c *Channel) ID() uuid.UUID { return c.id }

// String implements fmt.Stringer, used in log fields.
func (c *Channel) String() string { return c.id.String() }

// Pipeline returns the channel's pipeline.
func (c *Channel) Pipeline() *pipeline.Pipeline { return c.pipe }

// Config returns the channel's option set.
func (c *Channel) Config() *config.Config { return c.cfg }

// Attr returns the value stored under key, and whether it was present.
func (c *Channel) Attr(key config.AttrKey) (any, bool) { return c.attrs.Get(key) }

// SetAttr stores value under key; a nil value removes it.
func (c *Channel) SetAttr(key config.AttrKey, value any) { c.attrs.Set(key, value) }

// SetAutoRead toggles the autoRead option; used directly (bypassing
// validation plumbing, which would never reject a bool anyway) by the
// acceptor's accept-storm backpressure (spec §4.6).
func (c *Channel) SetAutoRead(v bool) { _ = c.cfg.Set(config.OptionAutoRead, v) }

// IsActive reports whether the channel has ever fired channelActive without
// a subsequent channelInactive.
func (c *Channel) IsActive() bool { return c.active.Load() }

// IsRegistered reports whether the channel has been bound to a reactor.
func (c *Channel) IsRegistered() bool { return c.state.load() >= StateRegistered }

// State returns the channel's coarse lifecycle state.
func (c *Channel) State() State { return c.state.load() }

// Reactor returns the reactor this channel is bound to, or nil before
// registration.
func (c *Channel) Reactor() *reactor.Reactor { return c.reactorPtr.Load() }

// EventLoop is a spec-named alias for Reactor (spec §4.3 "eventLoop()").
func (c *Channel) EventLoop() *reactor.Reactor { return c.Reactor() }

// Transport returns the channel's low-level I/O collaborator.
func (c *Channel) Transport() pipeline.Transport { return c.transport }

// LocalAddr and RemoteAddr report the channel's endpoint addresses, set by
// the transport once known (bind/connect/accept).
func (c *Channel) LocalAddr() net.Addr  { return c.localAddr }
func (c *Channel) RemoteAddr() net.Addr { return c.remoteAddr }

// SetLocalAddr and SetRemoteAddr are called by the transport layer once an
// address becomes known. Must be called on the channel's reactor once one
// is attached.
func (c *Channel) SetLocalAddr(addr net.Addr)  { c.localAddr = addr }
func (c *Channel) SetRemoteAddr(addr net.Addr) { c.remoteAddr = addr }

// Register binds the channel to r and runs the registration sequence from
// spec §4.3: attach to the reactor, fire channelRegistered down the
// pipeline (handlerAdded for pre-registration contexts already fired
// inline when they were added), and — if alreadyActive (an accepted child
// channel) — fire channelActive and, if autoRead is on, request a read.
// Registration is idempotent only in failure: a second call after success
// fails without side effects.
func (c *Channel) Register(r *reactor.Reactor, alreadyActive bool) *reactor.Future {
	return r.Invoke(func() (any, error) {
		if !c.state.advance(StateRegistered) {
			return nil, reactor.ErrReentrantRegister
		}
		c.reactorPtr.Store(r)
		r.AddChannel()

		c.pipe.FireChannelRegistered()

		if alreadyActive {
			c.state.advance(StateActive)
			c.active.Store(true)
			c.pipe.FireChannelActive()
			if c.cfg.GetBool(config.OptionAutoRead, true) {
				c.pipe.Read()
			}
		}
		return nil, nil
	})
}

// NotifyActive is called by the transport layer once a connect (as opposed
// to accept) completes, transitioning the channel into the Active state and
// firing channelActive. No-op if already active.
func (c *Channel) NotifyActive() {
	reactor.RunOrSubmit(c.Reactor(), func() {
		if !c.active.CompareAndSwap(false, true) {
			return
		}
		c.state.advance(StateActive)
		c.pipe.FireChannelActive()
		if c.cfg.GetBool(config.OptionAutoRead, true) {
			c.pipe.Read()
		}
	})
}

// NotifyInactive is called by the transport layer when the connection drops
// (EOF, reset, or a local close), firing channelInactive at most once.
func (c *Channel) NotifyInactive() {
	reactor.RunOrSubmit(c.Reactor(), func() {
		if c.active.CompareAndSwap(true, false) {
			c.pipe.FireChannelInactive()
		}
	})
}

// NotifyUnregistered is called once the channel has been fully detached
// from its reactor (after close + deregister complete), moving it to the
// terminal Closed state and releasing the reactor's shutdown bookkeeping
// (spec §3's reactor lifecycle: "terminates when ... all registered
// channels closed").
func (c *Channel) NotifyUnregistered() {
	r := c.Reactor()
	reactor.RunOrSubmit(r, func() {
		if !c.state.advance(StateClosed) {
			return
		}
		if r != nil {
			r.RemoveChannel()
		}
		c.pipe.FireChannelUnregistered()
	})
}

func (c *Channel) outbound(fn func(promise *reactor.Promise)) *reactor.Future {
	r := c.Reactor()
	if r == nil {
		p := reactor.NewPromise(nil)
		p.Fail(ErrNotRegistered)
		return p.Future()
	}
	p := reactor.NewPromise(r)
	reactor.RunOrSubmit(r, func() { fn(p) })
	return p.Future()
}

// Bind requests the transport bind addr (spec §4.3 operations).
func (c *Channel) Bind(addr net.Addr) *reactor.Future {
	return c.outbound(func(p *reactor.Promise) { c.pipe.Bind(addr, p) })
}

// Connect requests the transport connect to remote.
func (c *Channel) Connect(remote, local net.Addr) *reactor.Future {
	return c.outbound(func(p *reactor.Promise) { c.pipe.Connect(remote, local, p) })
}

// Disconnect requests the transport disconnect without fully closing.
func (c *Channel) Disconnect() *reactor.Future {
	return c.outbound(func(p *reactor.Promise) { c.pipe.Disconnect(p) })
}

// Close requests the transport close the channel.
func (c *Channel) Close() *reactor.Future {
	return c.outbound(func(p *reactor.Promise) { c.pipe.Close(p) })
}

// Deregister requests the channel be detached from its reactor without
// closing the underlying connection.
func (c *Channel) Deregister() *reactor.Future {
	return c.outbound(func(p *reactor.Promise) { c.pipe.Deregister(p) })
}

// Read requests one more round of inbound data from the transport.
func (c *Channel) Read() *reactor.Future {
	return c.outbound(func(p *reactor.Promise) {
		c.pipe.Read()
		p.Succeed(nil)
	})
}

// Write queues msg for the transport without flushing.
func (c *Channel) Write(msg any) *reactor.Future {
	return c.outbound(func(p *reactor.Promise) { c.pipe.Write(msg, p) })
}

// Flush requests the transport send any queued writes.
func (c *Channel) Flush() *reactor.Future {
	return c.outbound(func(p *reactor.Promise) {
		c.pipe.Flush()
		p.Succeed(nil)
	})
}

// WriteAndFlush is a convenience combining Write and Flush; the returned
// future completes with the write's outcome.
func (c *Channel) WriteAndFlush(msg any) *reactor.Future {
	return c.outbound(func(p *reactor.Promise) {
		c.pipe.Write(msg, p)
		c.pipe.Flush()
	})
}
