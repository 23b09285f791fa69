package bootstrap

import (
	"time"

	"github.com/joeycumines/netty/channel"
	"github.com/joeycumines/netty/config"
	"github.com/joeycumines/netty/internal/nettylog"
	"github.com/joeycumines/netty/pipeline"
	"github.com/joeycumines/netty/reactor"
)

// acceptPauseDuration is how long the acceptor pauses accepting after an
// exception, before autoRead is restored (spec §4.6 "one second later").
const acceptPauseDuration = time.Second

// acceptorHandler is the server pipeline's tail inbound handler (spec §4.6
// "Acceptor handler"). Its channelRead treats msg as a newly accepted child
// channel: append the child initializer, apply child options/attrs, and
// register on one reactor from the child group.
type acceptorHandler struct {
	pipeline.HandlerAdapter

	childGroup       *reactor.Group
	childInitializer func(ctx *pipeline.Context)
	childOptions     config.Options
	childAttrs       config.Attrs
	log              *nettylog.Logger
}

func (a *acceptorHandler) ChannelRead(ctx *pipeline.Context, msg any) {
	child, ok := msg.(*channel.Channel)
	if !ok {
		ctx.FireExceptionCaught(ErrUnexpectedAcceptPayload)
		return
	}

	childInit := a.childInitializer
	_ = child.Pipeline().AddLast("child-init", pipeline.InitializerFunc{Func: childInit})

	for _, o := range a.childOptions {
		if err := child.Config().Set(o.Key, o.Value); err != nil {
			nettylog.Log(a.log, nettylog.LevelWarn, "unsupported child option, skipping", func(b *nettylog.Builder) *nettylog.Builder {
				return b.Str("option", o.Key.Name()).Err(err)
			})
		}
	}
	for _, at := range a.childAttrs {
		child.SetAttr(at.Key, at.Value)
	}

	target := a.childGroup.Next()
	fut := child.Register(target, true)
	fut.AddListener(func(f *reactor.Future) {
		if f.Outcome() != reactor.Success {
			nettylog.Log(a.log, nettylog.LevelWarn, "child registration failed, force-closing", func(b *nettylog.Builder) *nettylog.Builder {
				return b.Str("channel", child.String()).Err(f.Err())
			})
			child.Close()
		}
	})
}

// ExceptionCaught implements the accept-storm backpressure (spec §4.6): pause
// autoRead on the server channel and schedule its restoration one second
// out. The exception is still propagated so the application can observe it.
func (a *acceptorHandler) ExceptionCaught(ctx *pipeline.Context, err error) {
	server := ctx.Channel()
	if server.Config().GetBool(config.OptionAutoRead, true) {
		server.SetAutoRead(false)
		r := server.Reactor()
		if r != nil {
			r.Schedule(acceptPauseDuration, func() {
				server.SetAutoRead(true)
			})
		}
	}
	ctx.FireExceptionCaught(err)
}
