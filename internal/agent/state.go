// Package agent implements the parent-side half of the agent IPC worker
// (spec.md §4.6): a forward-only state machine plus a message pump that
// dispatches a typed protocol to per-message handlers, grounded on
// daemon/agents/perf/perf_agent_worker.h's perf_agent_worker_t (the CAS
// state machine itself lives in the uncaptured agent_worker_base.h, so
// the transition contract here follows spec.md's prose directly).
package agent

import "sync/atomic"

// State is one node of the worker's forward-only lifecycle.
type State int32

const (
	StateInitial State = iota
	StateReady
	StateShutdownRequested
	StateShutdownReceived
	StateTerminatedPendingMessageLoop
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateReady:
		return "ready"
	case StateShutdownRequested:
		return "shutdown_requested"
	case StateShutdownReceived:
		return "shutdown_received"
	case StateTerminatedPendingMessageLoop:
		return "terminated_pending_message_loop"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// stateMachine is a CAS-guarded forward-only state holder: a transition
// to a state that does not strictly increase the ordinal is a no-op,
// matching spec.md §4.6 ("the worker transitions forward only").
type stateMachine struct {
	value atomic.Int32
}

func (m *stateMachine) current() State { return State(m.value.Load()) }

// transition attempts to move to target, retrying the CAS under
// concurrent writers; it reports whether it moved the state (false if
// target was not strictly forward of the state observed at the time of
// the successful CAS, or of a newer state written by a racing caller).
func (m *stateMachine) transition(target State) bool {
	for {
		cur := State(m.value.Load())
		if target <= cur {
			return false
		}
		if m.value.CompareAndSwap(int32(cur), int32(target)) {
			return true
		}
	}
}
