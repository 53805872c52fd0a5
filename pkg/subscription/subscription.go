package subscription

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/0xmhha/mempoolwatch/client"
	"github.com/0xmhha/mempoolwatch/pkg/mempool"
)

// watcher is one attached endpoint feed: its cancel handle plus the
// connections to release on teardown.
type watcher struct {
	url     string
	cancel  client.CancelFunc
	release func()
}

// subscription is the controller-owned state of one Subscribe call.
// All fields besides the atomics are guarded by mu; the dedup set and
// stats belong exclusively to this subscription.
type subscription struct {
	id      string
	chainID uint64
	opts    Options

	dedup       *mempool.Deduplicator
	broadcaster *statusBroadcaster

	// ctx is cancelled on unsubscribe; polling loops and in-flight
	// pipeline work hang off it.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	status   Status
	watchers []watcher

	received     atomic.Uint64
	dropped      atomic.Uint64
	lastActivity atomic.Int64 // unix nanos, 0 before first activity
}

func newSubscription(id string, opts Options, dedup *mempool.Deduplicator) *subscription {
	ctx, cancel := context.WithCancel(context.Background())
	s := &subscription{
		id:          id,
		chainID:     opts.ChainID,
		opts:        opts,
		dedup:       dedup,
		broadcaster: newStatusBroadcaster(),
		ctx:         ctx,
		cancel:      cancel,
		status:      StatusConnecting,
	}
	if opts.OnStatusChange != nil {
		s.broadcaster.subscribe(opts.OnStatusChange)
	}
	return s
}

// Status returns the current lifecycle state.
func (s *subscription) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// setStatus transitions the state machine and notifies listeners.
// Closed is final: transitions out of it are ignored, and only the
// first transition into it is broadcast. The transition is enqueued
// under mu so listeners observe transitions in state-machine order.
func (s *subscription) setStatus(next Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusClosed {
		return false
	}
	s.status = next
	s.broadcaster.enqueue(next)
	return true
}

func (s *subscription) markReceived() {
	s.received.Add(1)
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *subscription) markDropped() {
	s.dropped.Add(1)
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *subscription) statsSnapshot() Stats {
	stats := Stats{
		Received: s.received.Load(),
		Dropped:  s.dropped.Load(),
	}
	if nanos := s.lastActivity.Load(); nanos > 0 {
		t := time.Unix(0, nanos)
		stats.LastActivityAt = &t
	}
	return stats
}

// close tears the subscription down: cancels the context, cancels every
// watcher, clears the dedup set and broadcasts the final status.
// Idempotent; watcher cancellation failures are logged, never
// propagated, and never block the remaining teardown steps.
func (s *subscription) close(logger *zap.Logger) {
	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		return
	}
	s.status = StatusClosed
	s.broadcaster.enqueue(StatusClosed)
	watchers := s.watchers
	s.watchers = nil
	s.mu.Unlock()

	s.cancel()

	for _, w := range watchers {
		if w.cancel != nil {
			if err := w.cancel(); err != nil {
				logger.Warn("watcher cancellation failed",
					zap.String("subscription", s.id),
					zap.String("url", w.url),
					zap.Error(err),
				)
			}
		}
		if w.release != nil {
			w.release()
		}
	}

	s.dedup.Clear()
}
