package reactor

import "sync/atomic"

// State is the lifecycle state of a Reactor.
//
//	StateCreated   -> StateRunning    (worker goroutine starts: first Submit/Invoke/Schedule/ShutdownGracefully)
//	StateRunning   -> StateSleeping   (blocked in the selector wait, CAS)
//	StateSleeping  -> StateRunning    (woken by a submission or I/O readiness)
//	StateRunning   -> StateTerminated (loop goroutine exits)
//
// The loop never enters StateTerminating: a pending graceful shutdown is
// reported by Reactor.IsShuttingDown while the state stays Running/Sleeping.
type State uint32

const (
	// StateCreated is set by New; the worker goroutine has not started.
	StateCreated State = iota
	// StateRunning indicates the reactor is actively polling or running tasks.
	StateRunning
	// StateSleeping indicates the reactor is blocked in the selector wait.
	StateSleeping
	// StateTerminating indicates shutdown was requested; the loop is draining.
	StateTerminating
	// StateTerminated is the terminal state.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

type atomicState struct {
	v atomic.Uint32
}

func (s *atomicState) load() State { return State(s.v.Load()) }

func (s *atomicState) store(state State) { s.v.Store(uint32(state)) }

func (s *atomicState) cas(from, to State) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
