// Package nettylog wires the structured logging facade shared by the
// reactor, channel, pipeline and bootstrap packages. It exists so that none
// of those packages need to pick a concrete logging backend: they accept a
// *nettylog.Logger (possibly nil) and this package is the only place that
// knows about logiface/zerolog.
package nettylog

import (
	"io"

	"github.com/joeycumines/logiface"
	izerolog "github.com/joeycumines/izerolog"
	"github.com/rs/zerolog"
)

// Event is the concrete logiface event type backing Logger, implemented by
// the zerolog adapter.
type Event = izerolog.Event

// Logger is the structured logger type used across this module. A nil
// *Logger is valid and discards everything, so callers never need to guard
// against a missing logger being configured.
type Logger = logiface.Logger[*Event]

// Level re-exports logiface's level type so callers configuring a Logger
// never need to import logiface directly.
type Level = logiface.Level

// Builder is the event builder passed to Log's fn callback, re-exported so
// callers populating log fields never need to import logiface directly.
type Builder = logiface.Builder[*Event]

// Level constants used by the reactor, pipeline and bootstrap packages.
const (
	LevelDebug = logiface.LevelDebug
	LevelInfo  = logiface.LevelInformational
	LevelWarn  = logiface.LevelWarning
	LevelError = logiface.LevelError
)

// New builds a Logger writing newline-delimited JSON to w at the given
// minimum level.
func New(w io.Writer, level Level) *Logger {
	zl := zerolog.New(w).With().Timestamp().Logger()
	return logiface.New[*Event](
		izerolog.WithZerolog(zl),
		logiface.WithLevel[*Event](level),
	)
}

// Nop returns a Logger with no writer configured; every call is a cheap
// no-op. Used as the default when callers don't configure a Logger option.
func Nop() *Logger {
	return logiface.New[*Event]()
}

// Log emits an event at level using fn to populate it, guarding against a
// nil logger so callers can write `nettylog.Log(l.log, nettylog.LevelDebug, ...)`
// regardless of whether logging was configured.
func Log(l *Logger, level Level, msg string, fn func(b *Builder) *Builder) {
	if l == nil {
		return
	}
	b := l.Build(level)
	if fn != nil {
		b = fn(b)
	}
	if b == nil {
		return
	}
	b.Log(msg)
}
