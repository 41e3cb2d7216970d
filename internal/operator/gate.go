package operator

import "sync/atomic"

// GateState is the dispatch state of a Watcher.
type GateState int32

const (
	// GateNotReady drops every event; no full reconciliation has completed yet.
	GateNotReady GateState = iota

	// GateReconciled dispatches events to the handler.
	GateReconciled

	// GateClosed drops every event; the watcher has been stopped.
	GateClosed
)

// String returns the state name.
func (s GateState) String() string {
	switch s {
	case GateNotReady:
		return "NotReady"
	case GateReconciled:
		return "Reconciled"
	case GateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Gate is the one-way latch shared by the event-delivery goroutine and the
// reconciliation scheduler. Valid transitions are NotReady -> Reconciled,
// NotReady -> Closed and Reconciled -> Closed.
type Gate struct {
	state atomic.Int32
}

// State returns the current state.
func (g *Gate) State() GateState {
	return GateState(g.state.Load())
}

// Open moves the gate to Reconciled. It reports whether this call opened it;
// repeated calls and calls on a closed gate return false.
func (g *Gate) Open() bool {
	return g.transition(GateReconciled)
}

// Close moves the gate to Closed.
func (g *Gate) Close() bool {
	return g.transition(GateClosed)
}

// Admits reports whether events are dispatched.
func (g *Gate) Admits() bool {
	return g.State() == GateReconciled
}

func (g *Gate) transition(to GateState) bool {
	for {
		from := GateState(g.state.Load())
		if !gateTransitionAllowed(from, to) {
			return false
		}
		if g.state.CompareAndSwap(int32(from), int32(to)) {
			return true
		}
	}
}

func gateTransitionAllowed(from, to GateState) bool {
	switch from {
	case GateNotReady:
		return to == GateReconciled || to == GateClosed
	case GateReconciled:
		return to == GateClosed
	default:
		return false
	}
}
