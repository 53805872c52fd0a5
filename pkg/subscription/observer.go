package subscription

import "sync"

// statusTransitionCap bounds how many transitions one subscription can
// ever make: connecting is never broadcast, at most one of
// active/fallback per attach attempt, and closed exactly once.
const statusTransitionCap = 4

// statusBroadcaster is the single broadcast point for one
// subscription's status transitions. Listeners register and deregister
// through it; nothing else holds a mutable callback collection.
//
// Transitions are queued in the order the state machine made them and
// delivered by one dispatcher goroutine, so a listener never observes
// a status after closed even when the enqueuing goroutines race.
type statusBroadcaster struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]StatusListener
	queue     chan Status
}

func newStatusBroadcaster() *statusBroadcaster {
	b := &statusBroadcaster{
		listeners: make(map[int]StatusListener),
		queue:     make(chan Status, statusTransitionCap),
	}
	go b.dispatch()
	return b
}

// subscribe registers a listener and returns its cancel function.
// Cancel is safe to call more than once.
func (b *statusBroadcaster) subscribe(fn StatusListener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.listeners[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// enqueue queues one transition for delivery. The caller must enqueue
// inside the same critical section that changed the status, so queue
// order is state-machine order. The state machine stops transitioning
// at closed, which keeps the buffered send from ever blocking.
func (b *statusBroadcaster) enqueue(status Status) {
	b.queue <- status
}

// dispatch delivers queued transitions in order. Listeners run outside
// the lock so they may re-enter the broadcaster. Closed is terminal;
// the dispatcher exits after delivering it.
func (b *statusBroadcaster) dispatch() {
	for status := range b.queue {
		b.mu.Lock()
		listeners := make([]StatusListener, 0, len(b.listeners))
		for _, fn := range b.listeners {
			listeners = append(listeners, fn)
		}
		b.mu.Unlock()

		for _, fn := range listeners {
			fn(status)
		}
		if status == StatusClosed {
			return
		}
	}
}
