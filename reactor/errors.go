package reactor

import "errors"

// Standard errors returned by Reactor and Group operations.
var (
	// ErrTerminated is returned when a task is submitted to, or a channel is
	// registered on, a reactor that has fully shut down.
	ErrTerminated = errors.New("reactor: terminated")

	// ErrTerminating names a reactor that is draining towards shutdown. No
	// operation in this package returns it: a reactor keeps accepting tasks
	// until it has terminated, after which Submit returns ErrTerminated.
	ErrTerminating = errors.New("reactor: shutting down")

	// ErrReentrantRegister is returned when Register is called for a channel
	// that is already registered, on any reactor including the same one.
	ErrReentrantRegister = errors.New("reactor: channel already registered")

	// ErrPromiseAlreadyDone describes a completion attempt on a Promise that
	// has already settled. Promise's Succeed, Fail and Cancel report that case
	// by returning false; none of them returns this error.
	ErrPromiseAlreadyDone = errors.New("reactor: promise already completed")

	// ErrNoReactors is returned by NewGroup when asked to create zero reactors.
	ErrNoReactors = errors.New("reactor: group requires at least one reactor")
)
