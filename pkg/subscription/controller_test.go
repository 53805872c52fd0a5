package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/mempoolwatch/client"
	"github.com/0xmhha/mempoolwatch/internal/testutil"
	"github.com/0xmhha/mempoolwatch/pkg/health"
	"github.com/0xmhha/mempoolwatch/pkg/registry"
	"github.com/0xmhha/mempoolwatch/pkg/types"
)

// stubTransport is an in-memory client.Transport.
type stubTransport struct {
	mu         sync.Mutex
	pending    []types.RawTransaction
	pendingErr error
	byHash     map[string]*types.RawTransaction
	closed     bool
}

func (s *stubTransport) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return 100, nil
}

func (s *stubTransport) TransactionByHash(ctx context.Context, hash string) (*types.RawTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byHash[hash], nil
}

func (s *stubTransport) PendingBlockTransactions(ctx context.Context) ([]types.RawTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingErr != nil {
		return nil, s.pendingErr
	}
	out := make([]types.RawTransaction, len(s.pending))
	copy(out, s.pending)
	return out, nil
}

func (s *stubTransport) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// stubStreamer is an in-memory client.Streamer whose feed the test
// drives by hand.
type stubStreamer struct {
	mu          sync.Mutex
	onData      func(types.RawTransaction)
	onError     func(error)
	cancelCalls int
	closed      bool
}

func (s *stubStreamer) WatchPendingTransactions(ctx context.Context, onData func(types.RawTransaction), onError func(error)) (client.CancelFunc, error) {
	s.mu.Lock()
	s.onData = onData
	s.onError = onError
	s.mu.Unlock()
	return func() error {
		s.mu.Lock()
		s.cancelCalls++
		s.mu.Unlock()
		return nil
	}, nil
}

func (s *stubStreamer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// push feeds one payload into the stream, as the read loop would.
func (s *stubStreamer) push(raw types.RawTransaction) {
	s.mu.Lock()
	onData := s.onData
	s.mu.Unlock()
	if onData != nil {
		onData(raw)
	}
}

func (s *stubStreamer) cancels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelCalls
}

// stubFactory hands out stub transports and streamers per endpoint URL.
type stubFactory struct {
	mu           sync.Mutex
	streamers    map[string]*stubStreamer
	transports   map[string]*stubTransport
	streamerErr  map[string]error
	transportErr map[string]error
}

func newStubFactory() *stubFactory {
	return &stubFactory{
		streamers:    make(map[string]*stubStreamer),
		transports:   make(map[string]*stubTransport),
		streamerErr:  make(map[string]error),
		transportErr: make(map[string]error),
	}
}

func (f *stubFactory) Transport(ctx context.Context, endpoint types.Endpoint) (client.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.transportErr[endpoint.URL]; err != nil {
		return nil, err
	}
	if f.transports[endpoint.URL] == nil {
		f.transports[endpoint.URL] = &stubTransport{}
	}
	return f.transports[endpoint.URL], nil
}

func (f *stubFactory) Streamer(ctx context.Context, endpoint types.Endpoint) (client.Streamer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.streamerErr[endpoint.URL]; err != nil {
		return nil, err
	}
	if f.streamers[endpoint.URL] == nil {
		f.streamers[endpoint.URL] = &stubStreamer{}
	}
	return f.streamers[endpoint.URL], nil
}

func (f *stubFactory) streamer(url string) *stubStreamer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streamers[url]
}

func (f *stubFactory) transport(url string) *stubTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transports[url] == nil {
		f.transports[url] = &stubTransport{}
	}
	return f.transports[url]
}

// stubCatalog serves a fixed endpoint list for chain 1.
type stubCatalog struct {
	endpoints []types.Endpoint
}

func (c *stubCatalog) Endpoints(chainID uint64) []types.Endpoint {
	if chainID != 1 {
		return nil
	}
	return c.endpoints
}

// okProber reports every endpoint healthy.
type okProber struct{}

func (okProber) Probe(ctx context.Context, endpoint types.Endpoint) (uint64, error) {
	return 100, nil
}

func newTestController(t *testing.T, factory *stubFactory, endpoints ...types.Endpoint) *Controller {
	t.Helper()

	healthCfg := health.DefaultConfig()
	healthCfg.ProbeRatePerSecond = 10000
	healthCfg.ProbeBurst = 10000
	manager := health.NewManager(healthCfg, &stubCatalog{endpoints: endpoints}, okProber{}, testutil.NewTestLogger(t))

	cfg := Config{
		EndpointCount:   2,
		PollingInterval: 10 * time.Millisecond,
		DedupTTL:        time.Minute,
		MaxSeenEntries:  1000,
	}

	c := NewController(
		cfg,
		manager,
		factory,
		registry.NewStaticChainRegistry([]uint64{1}),
		registry.NewStaticProtocolRegistry(),
		testutil.NewTestLogger(t),
	)
	t.Cleanup(c.Close)
	return c
}

type subscriber struct {
	deliveries chan []types.EnrichedTransaction
	errs       chan error
	statuses   chan Status
}

func newSubscriber() *subscriber {
	return &subscriber{
		deliveries: make(chan []types.EnrichedTransaction, 64),
		errs:       make(chan error, 64),
		statuses:   make(chan Status, 64),
	}
}

func (s *subscriber) options(chainID uint64) Options {
	return Options{
		ChainID:        chainID,
		OnTransactions: func(txs []types.EnrichedTransaction) { s.deliveries <- txs },
		OnError:        func(err error) { s.errs <- err },
		OnStatusChange: func(status Status) { s.statuses <- status },
	}
}

func (s *subscriber) waitStatus(t *testing.T, want Status) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case status := <-s.statuses:
			if status == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %s", want)
		}
	}
}

func (s *subscriber) waitDelivery(t *testing.T) []types.EnrichedTransaction {
	t.Helper()
	select {
	case txs := <-s.deliveries:
		return txs
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a delivery")
		return nil
	}
}

func wsEndpoint(url string) types.Endpoint {
	return types.Endpoint{URL: url, Kind: types.TransportWebSocket, Provider: "Unknown"}
}

func httpEndpoint(url string) types.Endpoint {
	return types.Endpoint{URL: url, Kind: types.TransportHTTP, Provider: "Unknown"}
}

func TestSubscribeUnsupportedChain(t *testing.T) {
	c := newTestController(t, newStubFactory(), wsEndpoint("wss://a.example"))

	sub := newSubscriber()
	opts := sub.options(999)

	_, err := c.Subscribe(opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedChain)
}

func TestSubscribeRequiresHandler(t *testing.T) {
	c := newTestController(t, newStubFactory(), wsEndpoint("wss://a.example"))

	_, err := c.Subscribe(Options{ChainID: 1})
	require.Error(t, err)
}

// TestStreamingDelivery tests the happy path: streaming attach, decode,
// enrich, delivery and dedup counting
func TestStreamingDelivery(t *testing.T) {
	factory := newStubFactory()
	c := newTestController(t, factory, wsEndpoint("wss://a.example"))

	sub := newSubscriber()
	handle, err := c.Subscribe(sub.options(1))
	require.NoError(t, err)

	sub.waitStatus(t, StatusActive)
	assert.Equal(t, StatusActive, handle.Status())

	factory.streamer("wss://a.example").push(testutil.NewRawTransaction("0xaaa"))

	txs := sub.waitDelivery(t)
	require.Len(t, txs, 1)
	assert.Equal(t, "0xaaa", txs[0].Hash)
	assert.Equal(t, uint64(1), txs[0].ChainID)
	assert.NotEmpty(t, txs[0].Summary)

	// The same hash from the same feed is suppressed and counted.
	factory.streamer("wss://a.example").push(testutil.NewRawTransaction("0xaaa"))

	require.Eventually(t, func() bool {
		return handle.Stats().Dropped == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), handle.Stats().Received)
	assert.NotNil(t, handle.Stats().LastActivityAt)
}

// TestCrossEndpointDedup tests that the same hash arriving from two
// different endpoint feeds within the dedup window is delivered once
func TestCrossEndpointDedup(t *testing.T) {
	factory := newStubFactory()
	c := newTestController(t, factory,
		wsEndpoint("wss://a.example"),
		wsEndpoint("wss://b.example"),
	)

	sub := newSubscriber()
	handle, err := c.Subscribe(sub.options(1))
	require.NoError(t, err)
	sub.waitStatus(t, StatusActive)

	first := factory.streamer("wss://a.example")
	second := factory.streamer("wss://b.example")
	require.NotNil(t, first)
	require.NotNil(t, second, "both endpoints should have attached")

	first.push(testutil.NewRawTransaction("0xaaa"))
	txs := sub.waitDelivery(t)
	require.Len(t, txs, 1)
	assert.Equal(t, "0xaaa", txs[0].Hash)

	second.push(testutil.NewRawTransaction("0xaaa"))

	require.Eventually(t, func() bool {
		return handle.Stats().Dropped >= 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), handle.Stats().Received)

	select {
	case extra := <-sub.deliveries:
		t.Fatalf("duplicate hash was re-delivered: %v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestStreamingHashOnlyExpansion tests that a bare-hash push is
// expanded over the same endpoint's point-query transport
func TestStreamingHashOnlyExpansion(t *testing.T) {
	factory := newStubFactory()
	full := testutil.NewRawTransaction("0xbbb")
	factory.transport("wss://a.example").byHash = map[string]*types.RawTransaction{"0xbbb": &full}

	c := newTestController(t, factory, wsEndpoint("wss://a.example"))

	sub := newSubscriber()
	_, err := c.Subscribe(sub.options(1))
	require.NoError(t, err)
	sub.waitStatus(t, StatusActive)

	factory.streamer("wss://a.example").push(testutil.NewRawHashOnly("0xbbb"))

	txs := sub.waitDelivery(t)
	require.Len(t, txs, 1)
	assert.Equal(t, full.From, txs[0].From)
}

// TestFallbackToPolling tests that a failed streaming attach reports
// the endpoint error and falls back to the polling transport
func TestFallbackToPolling(t *testing.T) {
	factory := newStubFactory()
	factory.streamerErr["wss://a.example"] = errors.New("connection refused")
	factory.transport("http://b.example").pending = []types.RawTransaction{
		testutil.NewRawTransaction("0xccc"),
	}

	c := newTestController(t, factory,
		wsEndpoint("wss://a.example"),
		httpEndpoint("http://b.example"),
	)

	sub := newSubscriber()
	handle, err := c.Subscribe(sub.options(1))
	require.NoError(t, err)

	sub.waitStatus(t, StatusFallback)
	assert.Equal(t, StatusFallback, handle.Status())

	// The streaming failure was reported, scoped to its endpoint.
	select {
	case reported := <-sub.errs:
		var epErr *EndpointError
		require.ErrorAs(t, reported, &epErr)
		assert.Equal(t, "wss://a.example", epErr.URL)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the attach error")
	}

	txs := sub.waitDelivery(t)
	require.Len(t, txs, 1)
	assert.Equal(t, "0xccc", txs[0].Hash)
}

// TestPollingPreferenceSkipsStreaming tests that PreferPolling attaches
// the polling transport directly
func TestPollingPreferenceSkipsStreaming(t *testing.T) {
	factory := newStubFactory()
	factory.transport("http://b.example").pending = []types.RawTransaction{
		testutil.NewRawTransaction("0xddd"),
	}

	c := newTestController(t, factory,
		wsEndpoint("wss://a.example"),
		httpEndpoint("http://b.example"),
	)

	sub := newSubscriber()
	opts := sub.options(1)
	opts.Preference = PreferPolling

	_, err := c.Subscribe(opts)
	require.NoError(t, err)

	sub.waitStatus(t, StatusFallback)
	assert.Nil(t, factory.streamer("wss://a.example"), "no streamer should have been dialed")

	txs := sub.waitDelivery(t)
	assert.Equal(t, "0xddd", txs[0].Hash)
}

// TestNoTransportAttached tests the terminal failure: nothing attaches
// on either ladder rung and the subscription closes
func TestNoTransportAttached(t *testing.T) {
	factory := newStubFactory()
	factory.streamerErr["wss://a.example"] = errors.New("refused")
	factory.transportErr["wss://a.example"] = errors.New("refused")
	factory.transportErr["http://b.example"] = errors.New("refused")

	c := newTestController(t, factory,
		wsEndpoint("wss://a.example"),
		httpEndpoint("http://b.example"),
	)

	sub := newSubscriber()
	handle, err := c.Subscribe(sub.options(1))
	require.NoError(t, err, "Subscribe itself stays synchronous and clean")

	sub.waitStatus(t, StatusClosed)
	assert.Equal(t, StatusClosed, handle.Status())

	sawTerminal := false
	for done := false; !done; {
		select {
		case reported := <-sub.errs:
			if errors.Is(reported, ErrNoTransportAttached) {
				sawTerminal = true
			}
		default:
			done = true
		}
	}
	assert.True(t, sawTerminal, "the terminal error should have been reported")

	// The subscription is gone from the controller.
	assert.Empty(t, c.Snapshots())
}

// TestUnsubscribeIdempotent tests that tearing down twice is safe and
// cancels watchers exactly once
func TestUnsubscribeIdempotent(t *testing.T) {
	factory := newStubFactory()
	c := newTestController(t, factory, wsEndpoint("wss://a.example"))

	sub := newSubscriber()
	handle, err := c.Subscribe(sub.options(1))
	require.NoError(t, err)
	sub.waitStatus(t, StatusActive)

	handle.Unsubscribe()
	handle.Unsubscribe()

	assert.Equal(t, StatusClosed, handle.Status())
	assert.Equal(t, 1, factory.streamer("wss://a.example").cancels())
	assert.Empty(t, c.Snapshots())
}

// TestClosedSubscriptionDiscardsInFlight tests that a payload arriving
// after close is discarded without counting
func TestClosedSubscriptionDiscardsInFlight(t *testing.T) {
	factory := newStubFactory()
	c := newTestController(t, factory, wsEndpoint("wss://a.example"))

	sub := newSubscriber()
	handle, err := c.Subscribe(sub.options(1))
	require.NoError(t, err)
	sub.waitStatus(t, StatusActive)

	handle.Unsubscribe()

	// The stub still holds the callback, like a read loop mid-flight.
	factory.streamer("wss://a.example").push(testutil.NewRawTransaction("0xeee"))

	select {
	case txs := <-sub.deliveries:
		t.Fatalf("expected no delivery after close, got %v", txs)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, uint64(0), handle.Stats().Received)
}

// TestFilterAppliedBeforeDelivery tests that filtered-out transactions
// are neither delivered nor counted as received
func TestFilterAppliedBeforeDelivery(t *testing.T) {
	factory := newStubFactory()
	c := newTestController(t, factory, wsEndpoint("wss://a.example"))

	sub := newSubscriber()
	opts := sub.options(1)
	opts.Filter = &types.FilterSpec{
		Addresses: []string{"0x9999999999999999999999999999999999999999"},
	}

	handle, err := c.Subscribe(opts)
	require.NoError(t, err)
	sub.waitStatus(t, StatusActive)

	factory.streamer("wss://a.example").push(testutil.NewRawTransaction("0xfff"))

	select {
	case txs := <-sub.deliveries:
		t.Fatalf("expected no delivery for filtered transaction, got %v", txs)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, uint64(0), handle.Stats().Received)
}

func TestSnapshotByID(t *testing.T) {
	factory := newStubFactory()
	c := newTestController(t, factory, wsEndpoint("wss://a.example"))

	sub := newSubscriber()
	handle, err := c.Subscribe(sub.options(1))
	require.NoError(t, err)

	snapshot, err := c.Snapshot(handle.ID())
	require.NoError(t, err)
	assert.Equal(t, handle.ID(), snapshot.ID)
	assert.Equal(t, uint64(1), snapshot.ChainID)

	_, err = c.Snapshot("sub-does-not-exist")
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

// TestHandleOnStatus tests late listener registration through the
// handle
func TestHandleOnStatus(t *testing.T) {
	factory := newStubFactory()
	c := newTestController(t, factory, wsEndpoint("wss://a.example"))

	sub := newSubscriber()
	handle, err := c.Subscribe(sub.options(1))
	require.NoError(t, err)
	sub.waitStatus(t, StatusActive)

	late := make(chan Status, 8)
	cancel := handle.OnStatus(func(status Status) { late <- status })
	defer cancel()

	handle.Unsubscribe()

	select {
	case status := <-late:
		assert.Equal(t, StatusClosed, status)
	case <-time.After(2 * time.Second):
		t.Fatal("late listener never observed the close")
	}
}
