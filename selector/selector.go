// Package selector implements the OS readiness multiplexer consumed by a
// reactor (spec §6 "Selector interface"): register a file descriptor with an
// interest set, modify it, cancel it; wait with a timeout; enumerate ready
// keys; and be woken from another goroutine. Concrete backends are epoll
// (Linux) and kqueue (Darwin); both are thin wrappers over
// golang.org/x/sys/unix, in the style of the teacher's FastPoller.
package selector

import "time"

// Events is a bitmask of readiness conditions.
type Events uint32

const (
	// Read indicates the descriptor is ready for reading (or, for a listening
	// socket, that a connection is ready to be accepted).
	Read Events = 1 << iota
	// Write indicates the descriptor is ready for writing.
	Write
	// Error indicates an error condition on the descriptor.
	Error
	// Hangup indicates the peer end of the descriptor has closed.
	Hangup
)

// Callback is invoked with the readiness bits observed for a registered
// descriptor. It is called on the reactor's worker goroutine, synchronously
// from within Selector.Wait.
type Callback func(Events)

// Selector is the external collaborator a Reactor polls for I/O readiness.
// Implementations must be safe to call Wake from any goroutine; all other
// methods are only ever called from the owning reactor's worker goroutine.
type Selector interface {
	// Register starts monitoring fd for the given interest set. cb is invoked
	// from Wait whenever fd becomes ready.
	Register(fd int, events Events, cb Callback) error
	// Modify changes the interest set for an already-registered fd.
	Modify(fd int, events Events) error
	// Cancel stops monitoring fd. It is not an error to cancel an fd that was
	// never registered (the defensive no-op matches "cancelled keys are
	// discarded" in spec §4.1).
	Cancel(fd int) error
	// Wait blocks for up to timeout for readiness on any registered fd,
	// dispatching callbacks inline, and returns the number of keys that were
	// ready. A timeout of zero polls without blocking. A negative timeout
	// blocks indefinitely.
	Wait(timeout time.Duration) (int, error)
	// Wake interrupts a concurrent or future Wait call. Safe from any
	// goroutine.
	Wake() error
	// Rebuild discards the underlying OS selector and replaces it with a
	// fresh one, re-registering every currently-known fd. This is the
	// reactor's response to the "epoll reports ready but no events" spin
	// defect (spec §4.1).
	Rebuild() error
	// Close releases the underlying OS resources.
	Close() error
}
