// Package client provides per-endpoint transport handles for watching
// pending transactions: a JSON-RPC client for point queries and polling,
// and a websocket streamer for push subscriptions. Capability is fixed by
// which concrete type is constructed, never probed at runtime.
package client

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/0xmhha/mempoolwatch/pkg/types"
)

// CancelFunc tears down a running watcher. Implementations must be safe
// to call more than once.
type CancelFunc func() error

// Transport is the point-query surface of one RPC endpoint.
type Transport interface {
	// LatestBlockNumber returns the endpoint's current head height.
	LatestBlockNumber(ctx context.Context) (uint64, error)
	// TransactionByHash returns the raw transaction, or nil if the
	// endpoint does not know the hash.
	TransactionByHash(ctx context.Context, hash string) (*types.RawTransaction, error)
	// PendingBlockTransactions returns the transactions of the pending
	// block as the endpoint currently sees it.
	PendingBlockTransactions(ctx context.Context) ([]types.RawTransaction, error)
	// Close releases the underlying connection.
	Close()
}

// Streamer is the push surface of a streaming-capable endpoint.
type Streamer interface {
	// WatchPendingTransactions subscribes to the endpoint's pending
	// transaction feed. Payloads go to onData, failures to onError;
	// a failure never crashes the read loop's owner.
	WatchPendingTransactions(ctx context.Context, onData func(types.RawTransaction), onError func(error)) (CancelFunc, error)
	// Close releases the underlying connection.
	Close()
}

// Factory dials transports for endpoints. The subscription controller
// decides which method to call from the endpoint's declared kind.
type Factory interface {
	Transport(ctx context.Context, endpoint types.Endpoint) (Transport, error)
	Streamer(ctx context.Context, endpoint types.Endpoint) (Streamer, error)
}

// RPCFactory is the default Factory: go-ethereum clients for point
// queries and polling, a raw websocket subscription for streaming.
type RPCFactory struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewRPCFactory creates a factory with the given dial/query timeout.
func NewRPCFactory(timeout time.Duration, logger *zap.Logger) *RPCFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RPCFactory{
		timeout: timeout,
		logger:  logger,
	}
}

// Transport dials a point-query client for the endpoint.
func (f *RPCFactory) Transport(ctx context.Context, endpoint types.Endpoint) (Transport, error) {
	return NewClient(ctx, &Config{
		Endpoint: endpoint.URL,
		Timeout:  f.timeout,
		Logger:   f.logger,
	})
}

// Streamer dials a pending-transaction stream for the endpoint. Fails
// for endpoints not declared streaming-capable.
func (f *RPCFactory) Streamer(ctx context.Context, endpoint types.Endpoint) (Streamer, error) {
	if !endpoint.Kind.Streaming() {
		return nil, fmt.Errorf("endpoint %s is not streaming-capable", endpoint.URL)
	}
	return NewWebsocketStream(ctx, &StreamConfig{
		URL:     endpoint.URL,
		Timeout: f.timeout,
		Logger:  f.logger,
	})
}
