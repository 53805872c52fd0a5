package client

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/0xmhha/mempoolwatch/pkg/types"
)

// Client wraps an Ethereum JSON-RPC connection with the point queries
// the watcher pipeline needs.
type Client struct {
	ethClient *ethclient.Client
	rpcClient *rpc.Client
	endpoint  string
	timeout   time.Duration
	logger    *zap.Logger
}

// Config holds client configuration
type Config struct {
	Endpoint string
	Timeout  time.Duration
	Logger   *zap.Logger
}

// pendingBlock is the subset of eth_getBlockByNumber("pending", true)
// the watcher cares about.
type pendingBlock struct {
	Number       *string                `json:"number"`
	Transactions []types.RawTransaction `json:"transactions"`
}

// NewClient dials an RPC endpoint.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dialCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	rpcClient, err := rpc.DialContext(dialCtx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	client := &Client{
		ethClient: ethclient.NewClient(rpcClient),
		rpcClient: rpcClient,
		endpoint:  cfg.Endpoint,
		timeout:   cfg.Timeout,
		logger:    logger.Named("client"),
	}

	return client, nil
}

// Close closes the client connection
func (c *Client) Close() {
	if c.ethClient != nil {
		c.ethClient.Close()
	}
}

// Endpoint returns the URL this client is connected to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// LatestBlockNumber returns the latest block number
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	blockNumber, err := c.ethClient.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block number: %w", err)
	}
	return blockNumber, nil
}

// TransactionByHash fetches a transaction in its raw provider shape.
// A hash the endpoint does not know yields (nil, nil): mempool
// visibility is provider-dependent and a miss is not a failure.
func (c *Client) TransactionByHash(ctx context.Context, hash string) (*types.RawTransaction, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var raw *types.RawTransaction
	if err := c.rpcClient.CallContext(ctx, &raw, "eth_getTransactionByHash", hash); err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", hash, err)
	}
	return raw, nil
}

// PendingBlockTransactions fetches the pending block with full
// transaction objects and returns its transaction list.
func (c *Client) PendingBlockTransactions(ctx context.Context) ([]types.RawTransaction, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var block *pendingBlock
	if err := c.rpcClient.CallContext(ctx, &block, "eth_getBlockByNumber", "pending", true); err != nil {
		return nil, fmt.Errorf("failed to get pending block: %w", err)
	}
	if block == nil {
		return nil, nil
	}
	return block.Transactions, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
