package testutil

import (
	"math/big"
	"testing"

	"go.uber.org/zap"

	"github.com/0xmhha/mempoolwatch/pkg/types"
)

// NewTestLogger creates a test logger that doesn't output to console
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zap.NewNop()
}

// NewDebugLogger creates a development logger for tests that need to
// see output while debugging.
func NewDebugLogger(t *testing.T) *zap.Logger {
	t.Helper()
	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("Failed to create test logger: %v", err)
	}
	return logger
}

// StrPtr returns a pointer to the given string.
func StrPtr(s string) *string {
	return &s
}

// NewRawTransaction creates a fully populated raw transaction fixture.
func NewRawTransaction(hash string) types.RawTransaction {
	return types.RawTransaction{
		Hash:     hash,
		From:     "0x1111111111111111111111111111111111111111",
		To:       StrPtr("0x2222222222222222222222222222222222222222"),
		Value:    StrPtr("0xde0b6b3a7640000"), // 1 ether
		Gas:      StrPtr("0x5208"),
		GasPrice: StrPtr("0x3b9aca00"),
		Nonce:    StrPtr("0x7"),
		Input:    StrPtr("0x"),
	}
}

// NewRawHashOnly creates a hash-only raw transaction, as delivered by
// a bare newPendingTransactions stream.
func NewRawHashOnly(hash string) types.RawTransaction {
	return types.RawTransaction{Hash: hash}
}

// NewMempoolTransaction creates a normalized transaction fixture.
func NewMempoolTransaction(chainID uint64, hash string) types.MempoolTransaction {
	return types.MempoolTransaction{
		ChainID: chainID,
		Hash:    hash,
		From:    "0x1111111111111111111111111111111111111111",
		To:      StrPtr("0x2222222222222222222222222222222222222222"),
		Value:   big.NewInt(0),
		Nonce:   7,
	}
}

// NewEndpoint creates an endpoint fixture with the given transport kind.
func NewEndpoint(url string, kind types.TransportKind) types.Endpoint {
	return types.Endpoint{
		URL:         url,
		Kind:        kind,
		Provider:    "Unknown",
		Reliability: 0.5,
	}
}
