package subscription

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/0xmhha/mempoolwatch/client"
	"github.com/0xmhha/mempoolwatch/internal/constants"
	"github.com/0xmhha/mempoolwatch/pkg/health"
	"github.com/0xmhha/mempoolwatch/pkg/mempool"
	"github.com/0xmhha/mempoolwatch/pkg/registry"
	"github.com/0xmhha/mempoolwatch/pkg/types"
)

// Config holds subscription controller configuration
type Config struct {
	// EndpointCount is the default number of endpoints per subscription
	EndpointCount int
	// PollingInterval is the pending-block poll period
	PollingInterval time.Duration
	// DedupTTL is the duplicate-suppression window
	DedupTTL time.Duration
	// MaxSeenEntries caps each subscription's dedup set
	MaxSeenEntries int
}

// DefaultConfig returns the built-in tuning.
func DefaultConfig() Config {
	return Config{
		EndpointCount:   constants.DefaultEndpointCount,
		PollingInterval: constants.DefaultPollingInterval,
		DedupTTL:        constants.DefaultDedupTTL,
		MaxSeenEntries:  constants.DefaultMaxSeenEntries,
	}
}

// Controller owns every live subscription. It selects endpoints through
// the health manager, attaches watchers with streaming-to-polling
// fallback, and runs each payload through the pipeline.
type Controller struct {
	cfg     Config
	health  *health.Manager
	factory client.Factory
	chains  registry.ChainRegistry

	normalizer *mempool.Normalizer
	decoder    *mempool.Decoder
	enricher   *mempool.Enricher

	logger  *zap.Logger
	metrics *Metrics

	mu     sync.RWMutex
	subs   map[string]*subscription
	nextID atomic.Uint64
}

// NewController creates a controller.
func NewController(
	cfg Config,
	healthManager *health.Manager,
	factory client.Factory,
	chains registry.ChainRegistry,
	protocols registry.ProtocolRegistry,
	logger *zap.Logger,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("subscriptions")

	return &Controller{
		cfg:        cfg,
		health:     healthManager,
		factory:    factory,
		chains:     chains,
		normalizer: mempool.NewNormalizer(logger),
		decoder:    mempool.NewDecoder(protocols, logger),
		enricher:   mempool.NewEnricher(),
		logger:     logger,
		subs:       make(map[string]*subscription),
	}
}

// SetMetrics enables Prometheus metrics for the controller.
// This is optional - if not called, metrics will not be collected.
func (c *Controller) SetMetrics(metrics *Metrics) {
	c.metrics = metrics
}

// Subscribe validates the chain, registers a subscription in the
// connecting state and attaches transports asynchronously. The returned
// handle is live immediately; transactions start flowing once the
// status reaches active or fallback.
func (c *Controller) Subscribe(opts Options) (*Handle, error) {
	if opts.OnTransactions == nil {
		return nil, fmt.Errorf("OnTransactions handler is required")
	}
	if !c.chains.IsChainSupported(opts.ChainID) {
		return nil, fmt.Errorf("chain %d: %w", opts.ChainID, ErrUnsupportedChain)
	}

	if opts.Preference == "" {
		opts.Preference = PreferAuto
	}
	if opts.EndpointCount <= 0 {
		opts.EndpointCount = c.cfg.EndpointCount
	}

	id := "sub-" + strconv.FormatUint(c.nextID.Add(1), 10)
	sub := newSubscription(id, opts, mempool.NewDeduplicator(c.cfg.DedupTTL, c.cfg.MaxSeenEntries))

	c.mu.Lock()
	c.subs[id] = sub
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ActiveSubscriptions.Inc()
	}
	c.logger.Info("subscription created",
		zap.String("id", id),
		zap.Uint64("chainId", opts.ChainID),
		zap.String("preference", string(opts.Preference)),
		zap.Int("endpointCount", opts.EndpointCount),
	)

	go c.attach(sub)

	return &Handle{controller: c, sub: sub}, nil
}

// attach walks the transport fallback ladder. Endpoint-level failures
// are reported and isolated; only a fully exhausted ladder closes the
// subscription.
func (c *Controller) attach(sub *subscription) {
	opts := sub.opts

	if opts.Preference == PreferStreaming || opts.Preference == PreferAuto {
		if c.attachStreamingSet(sub) {
			sub.setStatus(StatusActive)
			return
		}
		if opts.Preference == PreferStreaming {
			// Strict streaming failed; say so, then fall back anyway
			// rather than sitting in connecting forever.
			c.reportError(sub, fmt.Errorf("streaming transport unavailable for chain %d, falling back to polling", sub.chainID))
		}
	}

	if c.attachPollingSet(sub) {
		sub.setStatus(StatusFallback)
		return
	}

	c.reportError(sub, fmt.Errorf("chain %d: %w", sub.chainID, ErrNoTransportAttached))
	c.teardown(sub)
}

// attachStreamingSet selects streaming endpoints and attaches a watcher
// to each, reporting per-endpoint failures. Returns true if at least
// one watcher attached.
func (c *Controller) attachStreamingSet(sub *subscription) bool {
	endpoints, err := c.health.DiverseHealthyEndpoints(sub.ctx, sub.chainID, health.SelectionOptions{
		Count:         sub.opts.EndpointCount,
		Transports:    health.StreamingOnly,
		PreferDiverse: true,
	})
	if err != nil {
		c.reportError(sub, err)
		return false
	}

	attached := 0
	for _, ep := range endpoints {
		if err := c.attachStreaming(sub, ep); err != nil {
			c.countAttachFailure("streaming")
			c.reportError(sub, err)
			continue
		}
		attached++
	}
	return attached > 0
}

// attachPollingSet is attachStreamingSet for the polling transport.
func (c *Controller) attachPollingSet(sub *subscription) bool {
	endpoints, err := c.health.DiverseHealthyEndpoints(sub.ctx, sub.chainID, health.SelectionOptions{
		Count:         sub.opts.EndpointCount,
		Transports:    health.PollingOnly,
		PreferDiverse: true,
	})
	if err != nil {
		c.reportError(sub, err)
		return false
	}

	attached := 0
	for _, ep := range endpoints {
		if err := c.attachPolling(sub, ep); err != nil {
			c.countAttachFailure("polling")
			c.reportError(sub, err)
			continue
		}
		attached++
	}
	return attached > 0
}

// attachStreaming wires a push watcher plus a point-query transport
// (for bare-hash expansion) to one endpoint.
func (c *Controller) attachStreaming(sub *subscription, ep types.Endpoint) error {
	streamer, err := c.factory.Streamer(sub.ctx, ep)
	if err != nil {
		return NewEndpointError(ep.URL, "dial stream", err)
	}

	transport, err := c.factory.Transport(sub.ctx, ep)
	if err != nil {
		streamer.Close()
		return NewEndpointError(ep.URL, "dial transport", err)
	}

	cancel, err := streamer.WatchPendingTransactions(sub.ctx,
		func(raw types.RawTransaction) {
			if enriched := c.pipeline(sub, transport, raw); enriched != nil {
				c.deliver(sub, []types.EnrichedTransaction{*enriched})
			}
		},
		func(err error) {
			c.reportError(sub, NewEndpointError(ep.URL, "stream", err))
		},
	)
	if err != nil {
		streamer.Close()
		transport.Close()
		return NewEndpointError(ep.URL, "subscribe", err)
	}

	c.register(sub, watcher{
		url:    ep.URL,
		cancel: cancel,
		release: func() {
			streamer.Close()
			transport.Close()
		},
	})

	c.logger.Debug("streaming watcher attached",
		zap.String("subscription", sub.id),
		zap.String("url", ep.URL),
		zap.String("provider", ep.Provider),
	)
	return nil
}

// attachPolling wires a fixed-interval pending-block poller to one
// endpoint.
func (c *Controller) attachPolling(sub *subscription, ep types.Endpoint) error {
	transport, err := c.factory.Transport(sub.ctx, ep)
	if err != nil {
		return NewEndpointError(ep.URL, "dial transport", err)
	}

	wctx, wcancel := context.WithCancel(sub.ctx)
	go c.pollLoop(sub, wctx, ep, transport)

	c.register(sub, watcher{
		url: ep.URL,
		cancel: func() error {
			wcancel()
			return nil
		},
		release: transport.Close,
	})

	c.logger.Debug("polling watcher attached",
		zap.String("subscription", sub.id),
		zap.String("url", ep.URL),
		zap.String("provider", ep.Provider),
	)
	return nil
}

// pollLoop fetches the pending block every interval and forwards its
// transactions. Ticks are skipped once the subscription closes; poll
// failures are reported and the loop keeps going.
func (c *Controller) pollLoop(sub *subscription, wctx context.Context, ep types.Endpoint, transport client.Transport) {
	ticker := time.NewTicker(c.cfg.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wctx.Done():
			return
		case <-ticker.C:
			if sub.Status() == StatusClosed {
				return
			}
			raws, err := transport.PendingBlockTransactions(wctx)
			if err != nil {
				c.reportError(sub, NewEndpointError(ep.URL, "poll", err))
				continue
			}
			var batch []types.EnrichedTransaction
			for _, raw := range raws {
				if enriched := c.pipeline(sub, transport, raw); enriched != nil {
					batch = append(batch, *enriched)
				}
			}
			if len(batch) > 0 {
				c.deliver(sub, batch)
			}
		}
	}
}

// pipeline runs one raw payload through normalize → dedup → decode →
// enrich → filter. Returns nil when the payload is skipped, suppressed
// or filtered out.
func (c *Controller) pipeline(sub *subscription, transport client.Transport, raw types.RawTransaction) *types.EnrichedTransaction {
	// A watcher already mid-flight when the subscription closed may
	// still deliver one payload; discard it here.
	if sub.Status() == StatusClosed {
		return nil
	}

	tx, err := c.normalizer.Normalize(sub.ctx, sub.chainID, raw, transport)
	if err != nil {
		return nil
	}

	if !sub.dedup.ShouldProcess(tx.Hash) {
		sub.markDropped()
		if c.metrics != nil {
			c.metrics.TransactionsDroppedTotal.WithLabelValues(chainLabel(sub.chainID)).Inc()
		}
		return nil
	}

	decoded := c.decoder.Decode(sub.ctx, *tx)
	enriched := c.enricher.Enrich(decoded)

	if !mempool.Passes(&enriched, sub.opts.Filter) {
		return nil
	}
	return &enriched
}

// deliver hands surviving transactions to the subscriber.
func (c *Controller) deliver(sub *subscription, batch []types.EnrichedTransaction) {
	if sub.Status() == StatusClosed {
		return
	}
	for range batch {
		sub.markReceived()
	}
	if c.metrics != nil {
		c.metrics.TransactionsReceivedTotal.WithLabelValues(chainLabel(sub.chainID)).Add(float64(len(batch)))
	}
	sub.opts.OnTransactions(batch)
}

// register records a watcher on the subscription, or tears it straight
// down when the subscription closed while the attach was in flight.
func (c *Controller) register(sub *subscription, w watcher) {
	sub.mu.Lock()
	closed := sub.status == StatusClosed
	if !closed {
		sub.watchers = append(sub.watchers, w)
	}
	sub.mu.Unlock()

	if closed {
		if w.cancel != nil {
			if err := w.cancel(); err != nil {
				c.logger.Warn("late watcher cancellation failed",
					zap.String("subscription", sub.id),
					zap.String("url", w.url),
					zap.Error(err),
				)
			}
		}
		if w.release != nil {
			w.release()
		}
	}
}

// unsubscribe tears down one subscription. Idempotent: a second call
// on the same subscription is a no-op.
func (c *Controller) unsubscribe(sub *subscription) {
	c.teardown(sub)
}

func (c *Controller) teardown(sub *subscription) {
	c.mu.Lock()
	_, present := c.subs[sub.id]
	delete(c.subs, sub.id)
	c.mu.Unlock()

	sub.close(c.logger)

	if present {
		if c.metrics != nil {
			c.metrics.ActiveSubscriptions.Dec()
		}
		c.logger.Info("subscription closed", zap.String("id", sub.id))
	}
}

// Close tears down every live subscription.
func (c *Controller) Close() {
	c.mu.RLock()
	subs := make([]*subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.RUnlock()

	for _, sub := range subs {
		c.teardown(sub)
	}
}

// Snapshots describes every live subscription.
func (c *Controller) Snapshots() []Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Snapshot, 0, len(c.subs))
	for _, sub := range c.subs {
		out = append(out, Snapshot{
			ID:      sub.id,
			ChainID: sub.chainID,
			Status:  sub.Status(),
			Stats:   sub.statsSnapshot(),
		})
	}
	return out
}

// Snapshot describes one live subscription by ID.
func (c *Controller) Snapshot(id string) (Snapshot, error) {
	c.mu.RLock()
	sub, ok := c.subs[id]
	c.mu.RUnlock()
	if !ok {
		return Snapshot{}, fmt.Errorf("subscription %s: %w", id, ErrSubscriptionNotFound)
	}
	return Snapshot{
		ID:      sub.id,
		ChainID: sub.chainID,
		Status:  sub.Status(),
		Stats:   sub.statsSnapshot(),
	}, nil
}

func (c *Controller) reportError(sub *subscription, err error) {
	c.logger.Debug("subscription error",
		zap.String("subscription", sub.id),
		zap.Error(err),
	)
	if sub.opts.OnError != nil {
		sub.opts.OnError(err)
	}
}

func (c *Controller) countAttachFailure(transport string) {
	if c.metrics != nil {
		c.metrics.AttachFailuresTotal.WithLabelValues(transport).Inc()
	}
}

func chainLabel(chainID uint64) string {
	return strconv.FormatUint(chainID, 10)
}
