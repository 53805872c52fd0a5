package mempool

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/0xmhha/mempoolwatch/client"
	"github.com/0xmhha/mempoolwatch/pkg/types"
)

// Normalization rejection reasons. Callers treat these as skips, not
// failures.
var (
	ErrMissingHash   = errors.New("transaction has no hash")
	ErrMissingSender = errors.New("transaction has no sender")
	ErrLookupMiss    = errors.New("transaction not found on endpoint")
)

// Normalizer converts heterogeneous raw payloads into canonical
// MempoolTransactions.
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer creates a normalizer.
func NewNormalizer(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{logger: logger.Named("normalizer")}
}

// Normalize produces a canonical transaction from a raw payload. A
// bare-hash payload is expanded with a point lookup over the transport
// it arrived on; a failed or empty lookup skips the payload with a
// warning. Records without hash or sender are rejected.
func (n *Normalizer) Normalize(ctx context.Context, chainID uint64, raw types.RawTransaction, transport client.Transport) (*types.MempoolTransaction, error) {
	if raw.Hash == "" {
		return nil, ErrMissingHash
	}

	if raw.HashOnly() {
		expanded, err := transport.TransactionByHash(ctx, raw.Hash)
		if err != nil {
			n.logger.Warn("skipping transaction, lookup failed",
				zap.String("hash", raw.Hash),
				zap.Error(err),
			)
			return nil, fmt.Errorf("%w: %s", ErrLookupMiss, raw.Hash)
		}
		if expanded == nil {
			n.logger.Warn("skipping transaction, endpoint does not know it",
				zap.String("hash", raw.Hash),
			)
			return nil, fmt.Errorf("%w: %s", ErrLookupMiss, raw.Hash)
		}
		raw = *expanded
	}

	if raw.From == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingSender, raw.Hash)
	}

	now := time.Now()
	tx := &types.MempoolTransaction{
		ChainID:              chainID,
		Hash:                 raw.Hash,
		From:                 raw.From,
		To:                   raw.To,
		Value:                quantityOrZero(raw.Value),
		GasPrice:             parseQuantity(raw.GasPrice),
		MaxFeePerGas:         parseQuantity(raw.MaxFeePerGas),
		MaxPriorityFeePerGas: parseQuantity(raw.MaxPriorityFeePerGas),
		Gas:                  parseQuantity(raw.Gas),
		Nonce:                parseUint(raw.Nonce),
		Input:                parseInput(raw.Input),
		BlockNumber:          parseBlockNumber(raw.BlockNumber),
		Timestamp:            &now,
		Type:                 parseType(raw.Type),
	}
	return tx, nil
}

// parseQuantity parses a hex or decimal quantity string. Absent,
// unparsable or negative values yield nil.
func parseQuantity(s *string) *big.Int {
	if s == nil || *s == "" {
		return nil
	}
	v, ok := new(big.Int).SetString(strings.TrimPrefix(strings.ToLower(*s), "0x"), pickBase(*s))
	if !ok || v.Sign() < 0 {
		return nil
	}
	return v
}

// quantityOrZero is parseQuantity with a zero default, for fields that
// must never be nil.
func quantityOrZero(s *string) *big.Int {
	if v := parseQuantity(s); v != nil {
		return v
	}
	return new(big.Int)
}

func parseUint(s *string) uint64 {
	v := parseQuantity(s)
	if v == nil || !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}

func parseBlockNumber(s *string) *uint64 {
	v := parseQuantity(s)
	if v == nil || !v.IsUint64() {
		return nil
	}
	n := v.Uint64()
	return &n
}

func parseType(s *string) *uint8 {
	v := parseQuantity(s)
	if v == nil || !v.IsUint64() || v.Uint64() > 0xff {
		return nil
	}
	t := uint8(v.Uint64())
	return &t
}

// parseInput decodes calldata hex; absent or malformed calldata
// defaults to empty.
func parseInput(s *string) []byte {
	if s == nil || *s == "" || *s == "0x" {
		return []byte{}
	}
	data, err := hexutil.Decode(*s)
	if err != nil {
		return []byte{}
	}
	return data
}

func pickBase(s string) int {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return 16
	}
	return 10
}
