package channel

import "sync/atomic"

// State is a channel's lifecycle state (spec §3 Channel). Transitions are
// monotonic in the order declared here; active -> registered is explicitly
// forbidden even though it would already be ruled out by monotonicity alone
// (spec calls it out separately, so this type enforces it the same way).
type State uint32

const (
	StateUnregistered State = iota
	StateRegistered
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type atomicState struct {
	v atomic.Uint32
}

func (s *atomicState) load() State { return State(s.v.Load()) }

// advance moves the state forward to `to`, rejecting any transition that
// isn't a strict forward move (and, redundantly with that rule but matching
// spec's explicit callout, any move that would land back on Registered from
// Active). Returns false if `to` is not reachable from the current state.
func (s *atomicState) advance(to State) bool {
	for {
		from := State(s.v.Load())
		if to <= from {
			return false
		}
		if s.v.CompareAndSwap(uint32(from), uint32(to)) {
			return true
		}
	}
}
