package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/0xmhha/mempoolwatch/pkg/types"
)

// StreamConfig holds websocket stream configuration
type StreamConfig struct {
	// URL is the ws:// or wss:// endpoint URL
	URL string
	// Timeout bounds the handshake and the subscribe round trip
	Timeout time.Duration
	// FullTransactions asks the provider for complete transaction
	// objects instead of bare hashes. Not every provider honors it;
	// payloads are parsed by shape either way.
	FullTransactions bool
	Logger           *zap.Logger
}

// WebsocketStream is a raw JSON-RPC subscription to an endpoint's
// pending-transaction feed over gorilla/websocket.
type WebsocketStream struct {
	conn    *websocket.Conn
	url     string
	timeout time.Duration
	logger  *zap.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
	watched   bool
	fullTx    bool
}

type wsRequest struct {
	ID      uint64 `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// wsMessage covers both call responses and subscription notifications.
type wsMessage struct {
	ID     *uint64         `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wsError        `json:"error,omitempty"`
	Method string          `json:"method,omitempty"`
	Params *wsNotification `json:"params,omitempty"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type wsNotification struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// NewWebsocketStream dials a websocket endpoint.
func NewWebsocketStream(ctx context.Context, cfg *StreamConfig) (*WebsocketStream, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("stream URL cannot be empty")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.Timeout}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial websocket endpoint: %w", err)
	}

	return &WebsocketStream{
		conn:    conn,
		url:     cfg.URL,
		timeout: cfg.Timeout,
		logger:  logger.Named("wsstream"),
		closed:  make(chan struct{}),
		fullTx:  cfg.FullTransactions,
	}, nil
}

// WatchPendingTransactions subscribes to newPendingTransactions and
// forwards every notification. It may be called once per stream; the
// returned cancel unsubscribes and closes the connection.
func (s *WebsocketStream) WatchPendingTransactions(ctx context.Context, onData func(types.RawTransaction), onError func(error)) (CancelFunc, error) {
	if s.watched {
		return nil, fmt.Errorf("stream %s is already watching", s.url)
	}
	s.watched = true

	params := []any{"newPendingTransactions"}
	if s.fullTx {
		params = append(params, true)
	}
	subID, err := s.call(ctx, "eth_subscribe", params)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to pending transactions: %w", err)
	}

	var id string
	if err := json.Unmarshal(subID, &id); err != nil {
		return nil, fmt.Errorf("unexpected subscription id %s: %w", string(subID), err)
	}

	s.logger.Debug("pending transaction subscription established",
		zap.String("endpoint", s.url),
		zap.String("subscription", id),
	)

	go s.readLoop(id, onData, onError)

	cancel := func() error {
		var closeErr error
		s.closeOnce.Do(func() {
			// Best effort: the connection is going away regardless.
			s.writeMu.Lock()
			_ = s.conn.WriteJSON(wsRequest{
				ID:      2,
				JSONRPC: "2.0",
				Method:  "eth_unsubscribe",
				Params:  []any{id},
			})
			s.writeMu.Unlock()

			close(s.closed)
			closeErr = s.conn.Close()
		})
		return closeErr
	}
	return cancel, nil
}

// Close closes the connection without unsubscribing first.
func (s *WebsocketStream) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}

// call performs one JSON-RPC round trip on the connection. It is only
// used before the read loop starts.
func (s *WebsocketStream) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if s.timeout > 0 {
		_ = s.conn.SetWriteDeadline(deadline)
		_ = s.conn.SetReadDeadline(deadline)
	}

	s.writeMu.Lock()
	err := s.conn.WriteJSON(wsRequest{ID: 1, JSONRPC: "2.0", Method: method, Params: params})
	s.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	var msg wsMessage
	if err := s.conn.ReadJSON(&msg); err != nil {
		return nil, err
	}
	if msg.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", msg.Error.Code, msg.Error.Message)
	}

	// Clear the read deadline for the long-lived subscription loop.
	_ = s.conn.SetReadDeadline(time.Time{})
	return msg.Result, nil
}

// readLoop forwards subscription notifications until the connection
// closes. Read failures after a deliberate cancel are swallowed.
func (s *WebsocketStream) readLoop(subID string, onData func(types.RawTransaction), onError func(error)) {
	for {
		var msg wsMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			onError(fmt.Errorf("websocket read failed: %w", err))
			return
		}

		if msg.Method != "eth_subscription" || msg.Params == nil {
			continue
		}
		if msg.Params.Subscription != subID {
			continue
		}

		raw, err := parseSubscriptionPayload(msg.Params.Result)
		if err != nil {
			s.logger.Warn("dropping unparsable subscription payload",
				zap.String("endpoint", s.url),
				zap.Error(err),
			)
			continue
		}
		onData(raw)
	}
}

// parseSubscriptionPayload accepts both payload shapes providers send:
// a bare hash string or a full transaction object.
func parseSubscriptionPayload(result json.RawMessage) (types.RawTransaction, error) {
	var hash string
	if err := json.Unmarshal(result, &hash); err == nil {
		return types.RawTransaction{Hash: hash}, nil
	}

	var raw types.RawTransaction
	if err := json.Unmarshal(result, &raw); err != nil {
		return types.RawTransaction{}, fmt.Errorf("payload is neither hash nor transaction: %w", err)
	}
	return raw, nil
}
