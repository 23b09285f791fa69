// Package bootstrap implements the server bootstrap and acceptor (spec
// §4.6, component F): the glue that turns a parent reactor group, a child
// reactor group, and a user-supplied child initializer into a listening
// channel that spawns registered child channels.
package bootstrap

import (
	"net"

	"github.com/joeycumines/netty/channel"
	"github.com/joeycumines/netty/config"
	"github.com/joeycumines/netty/internal/nettylog"
	"github.com/joeycumines/netty/pipeline"
	"github.com/joeycumines/netty/reactor"
	"github.com/joeycumines/netty/transport"
)

// ServerBootstrap assembles the configuration surface for a listening
// channel (spec §4.6 "Configuration surface"). Zero value is usable; chain
// the setter methods, then call Bind.
type ServerBootstrap struct {
	parentGroup *reactor.Group
	childGroup  *reactor.Group

	parentHandler    pipeline.Handler
	childInitializer func(ctx *pipeline.Context)

	parentOptions config.Options
	parentAttrs   config.Attrs
	childOptions  config.Options
	childAttrs    config.Attrs

	localAddr net.Addr
	log       *nettylog.Logger
}

// New constructs a ServerBootstrap that logs through log (a nil log
// discards, per the Logger contract).
func New(log *nettylog.Logger) *ServerBootstrap {
	return &ServerBootstrap{log: log}
}

func (b *ServerBootstrap) ParentGroup(g *reactor.Group) *ServerBootstrap { b.parentGroup = g; return b }
func (b *ServerBootstrap) ChildGroup(g *reactor.Group) *ServerBootstrap  { b.childGroup = g; return b }

func (b *ServerBootstrap) ParentHandler(h pipeline.Handler) *ServerBootstrap {
	b.parentHandler = h
	return b
}

// ChildInitializer registers the required callback that populates each
// accepted child's pipeline (spec §4.6 "child initializer (required)").
func (b *ServerBootstrap) ChildInitializer(fn func(ctx *pipeline.Context)) *ServerBootstrap {
	b.childInitializer = fn
	return b
}

func (b *ServerBootstrap) ParentOption(key config.OptionKey, value any) *ServerBootstrap {
	b.parentOptions = append(b.parentOptions, config.OptionEntry{Key: key, Value: value})
	return b
}

func (b *ServerBootstrap) ParentAttr(key config.AttrKey, value any) *ServerBootstrap {
	b.parentAttrs = append(b.parentAttrs, config.AttrEntry{Key: key, Value: value})
	return b
}

func (b *ServerBootstrap) ChildOption(key config.OptionKey, value any) *ServerBootstrap {
	b.childOptions = append(b.childOptions, config.OptionEntry{Key: key, Value: value})
	return b
}

func (b *ServerBootstrap) ChildAttr(key config.AttrKey, value any) *ServerBootstrap {
	b.childAttrs = append(b.childAttrs, config.AttrEntry{Key: key, Value: value})
	return b
}

func (b *ServerBootstrap) LocalAddr(addr net.Addr) *ServerBootstrap { b.localAddr = addr; return b }

func (b *ServerBootstrap) validate() error {
	if b.childInitializer == nil {
		return ErrChildInitializerRequired
	}
	if b.localAddr == nil {
		return ErrBindAddressRequired
	}
	return nil
}

// Bind runs the bind sequence from spec §4.6 and returns the server channel
// together with a future that completes once bind (not accept) finishes.
func (b *ServerBootstrap) Bind() (*channel.Channel, *reactor.Future) {
	if err := b.validate(); err != nil {
		p := reactor.NewPromise(nil)
		p.Fail(err)
		return nil, p.Future()
	}

	childGroup := b.childGroup
	if childGroup == nil {
		childGroup = b.parentGroup
		nettylog.Log(b.log, nettylog.LevelWarn, "no child group configured, serving accepted channels on the parent group", nil)
	}

	st := transport.NewServerTransport(b.log)
	ch := channel.New(st, b.log)
	st.Attach(ch)

	for _, o := range b.parentOptions {
		if err := ch.Config().Set(o.Key, o.Value); err != nil {
			nettylog.Log(b.log, nettylog.LevelWarn, "unsupported parent option, skipping", func(bld *nettylog.Builder) *nettylog.Builder {
				return bld.Str("option", o.Key.Name()).Err(err)
			})
		}
	}
	for _, a := range b.parentAttrs {
		ch.SetAttr(a.Key, a.Value)
	}

	parentHandler := b.parentHandler
	childInit := b.childInitializer
	childOptions := b.childOptions
	childAttrs := b.childAttrs
	log := b.log

	_ = ch.Pipeline().AddLast("bootstrap-init", pipeline.InitializerFunc{Func: func(ctx *pipeline.Context) {
		if parentHandler != nil {
			_ = ctx.Pipeline().AddLast("parent-handler", parentHandler)
		}
		r := ctx.Channel().Reactor()
		acceptor := &acceptorHandler{
			childGroup:       childGroup,
			childInitializer: childInit,
			childOptions:     childOptions,
			childAttrs:       childAttrs,
			log:              log,
		}
		// Appending the acceptor must be a separate, later task: doing it
		// inline here would make it reachable before this channelRegistered
		// dispatch (and the rest of this initializer) has finished (spec
		// §4.6 "the submit-task step is required").
		r.SubmitInternal(func() {
			_ = ctx.Pipeline().AddLast("acceptor", acceptor)
		})
	}})

	parentReactor := b.parentGroup.Next()
	regFuture := ch.Register(parentReactor, false)

	bindPromise := reactor.NewPromise(parentReactor)
	regFuture.AddListener(func(f *reactor.Future) {
		if f.Outcome() != reactor.Success {
			bindPromise.Fail(f.Err())
			return
		}
		bindFuture := ch.Bind(b.localAddr)
		bindFuture.AddListener(func(bf *reactor.Future) {
			if bf.Outcome() != reactor.Success {
				bindPromise.Fail(bf.Err())
				return
			}
			ch.NotifyActive()
			bindPromise.Succeed(nil)
		})
	})

	return ch, bindPromise.Future()
}
