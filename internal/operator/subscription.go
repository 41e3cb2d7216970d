package operator

import (
	"sync/atomic"

	"k8s.io/apimachinery/pkg/watch"
)

// subscription wraps one watch stream.
type subscription struct {
	stream watch.Interface
}

// closedSubscription marks a handle that no longer accepts streams.
var closedSubscription = &subscription{}

// subscriptionHandle gives the current stream a single owner. Resubscription
// installs new streams, close swaps in closedSubscription; both go through
// atomic operations so a stream installed after close is stopped immediately.
type subscriptionHandle struct {
	current atomic.Pointer[subscription]
}

// install replaces the current stream. It returns false and stops the new
// stream when the handle is already closed.
func (h *subscriptionHandle) install(stream watch.Interface) bool {
	next := &subscription{stream: stream}
	for {
		prev := h.current.Load()
		if prev == closedSubscription {
			stream.Stop()
			return false
		}
		if h.current.CompareAndSwap(prev, next) {
			if prev != nil && prev.stream != nil {
				prev.stream.Stop()
			}
			return true
		}
	}
}

// close stops the current stream and rejects later installs.
func (h *subscriptionHandle) close() {
	prev := h.current.Swap(closedSubscription)
	if prev != nil && prev != closedSubscription && prev.stream != nil {
		prev.stream.Stop()
	}
}

func (h *subscriptionHandle) isClosed() bool {
	return h.current.Load() == closedSubscription
}
