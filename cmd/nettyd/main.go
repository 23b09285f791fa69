// Command nettyd runs a TCP echo server on top of the reactor/pipeline
// stack, mostly as a runnable demonstration of bootstrap wiring a parent and
// child reactor group to a handler chain.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joeycumines/netty/bootstrap"
	"github.com/joeycumines/netty/internal/nettylog"
	"github.com/joeycumines/netty/pipeline"
	"github.com/joeycumines/netty/reactor"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nettyd",
	Short: "nettyd runs a reactor-driven TCP echo server",
	RunE:  runServe,
}

func init() {
	rootCmd.Flags().String("listen", "127.0.0.1:9000", "address to bind")
	rootCmd.Flags().Int("parent-workers", 1, "parent reactor group size (accepts connections)")
	rootCmd.Flags().Int("child-workers", 4, "child reactor group size (serves accepted connections)")
	rootCmd.Flags().Duration("quiet-period", 2*time.Second, "graceful shutdown quiet period")
	rootCmd.Flags().Duration("shutdown-timeout", 10*time.Second, "graceful shutdown hard timeout")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	listen, _ := cmd.Flags().GetString("listen")
	parentWorkers, _ := cmd.Flags().GetInt("parent-workers")
	childWorkers, _ := cmd.Flags().GetInt("child-workers")
	quietPeriod, _ := cmd.Flags().GetDuration("quiet-period")
	shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")
	logLevelFlag, _ := cmd.Flags().GetString("log-level")

	log := nettylog.New(os.Stderr, parseLevel(logLevelFlag))

	addr, err := net.ResolveTCPAddr("tcp", listen)
	if err != nil {
		return fmt.Errorf("resolving listen address: %w", err)
	}

	parentGroup, err := reactor.NewGroup(parentWorkers, reactor.WithLogger(log))
	if err != nil {
		return fmt.Errorf("starting parent reactor group: %w", err)
	}
	childGroup, err := reactor.NewGroup(childWorkers, reactor.WithLogger(log))
	if err != nil {
		return fmt.Errorf("starting child reactor group: %w", err)
	}

	bs := bootstrap.New(log).
		ParentGroup(parentGroup).
		ChildGroup(childGroup).
		LocalAddr(addr).
		ChildInitializer(func(ctx *pipeline.Context) {
			_ = ctx.Pipeline().AddLast("echo", &echoHandler{log: log})
		})

	ch, bindFuture := bs.Bind()
	if err := bindFuture.Await(cmd.Context()); err != nil {
		return fmt.Errorf("awaiting bind: %w", err)
	}
	if bindFuture.Outcome() != reactor.Success {
		return fmt.Errorf("bind failed: %w", bindFuture.Err())
	}

	nettylog.Log(log, nettylog.LevelInfo, "listening", func(b *nettylog.Builder) *nettylog.Builder {
		return b.Str("addr", ch.LocalAddr().String())
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	nettylog.Log(log, nettylog.LevelInfo, "shutting down", nil)
	ch.Close()

	done := parentGroup.ShutdownGracefully(quietPeriod, shutdownTimeout)
	_ = done.Await(cmd.Context())
	doneChild := childGroup.ShutdownGracefully(quietPeriod, shutdownTimeout)
	_ = doneChild.Await(cmd.Context())

	return nil
}

func parseLevel(s string) nettylog.Level {
	switch s {
	case "debug":
		return nettylog.LevelDebug
	case "warn":
		return nettylog.LevelWarn
	case "error":
		return nettylog.LevelError
	default:
		return nettylog.LevelInfo
	}
}

// echoHandler writes every inbound payload straight back to its channel.
type echoHandler struct {
	pipeline.HandlerAdapter
	log *nettylog.Logger
}

func (h *echoHandler) ChannelRead(ctx *pipeline.Context, msg any) {
	ctx.Write(msg, nil)
}

func (h *echoHandler) ChannelReadComplete(ctx *pipeline.Context) {
	ctx.Flush()
}

func (h *echoHandler) ExceptionCaught(ctx *pipeline.Context, err error) {
	nettylog.Log(h.log, nettylog.LevelWarn, "connection error", func(b *nettylog.Builder) *nettylog.Builder {
		return b.Err(err)
	})
	ctx.Close(nil)
}
