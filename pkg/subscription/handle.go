package subscription

// Handle is the subscriber-facing view of one live subscription.
type Handle struct {
	controller *Controller
	sub        *subscription
}

// ID returns the subscription identifier.
func (h *Handle) ID() string {
	return h.sub.id
}

// ChainID returns the chain the subscription watches.
func (h *Handle) ChainID() uint64 {
	return h.sub.chainID
}

// Status returns the current lifecycle state.
func (h *Handle) Status() Status {
	return h.sub.Status()
}

// Stats returns a point-in-time snapshot of the counters.
func (h *Handle) Stats() Stats {
	return h.sub.statsSnapshot()
}

// OnStatus registers an additional status listener and returns its
// cancel function.
func (h *Handle) OnStatus(fn StatusListener) func() {
	return h.sub.broadcaster.subscribe(fn)
}

// Unsubscribe tears the subscription down. Idempotent: repeated calls
// are no-ops.
func (h *Handle) Unsubscribe() {
	h.controller.unsubscribe(h.sub)
}
