package mempool

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/0xmhha/mempoolwatch/pkg/registry"
	"github.com/0xmhha/mempoolwatch/pkg/types"
)

// Decoder resolves the contract a transaction targets and decodes its
// calldata through a layered fallback: curated or registry-fetched
// interface first, then a bare 4-byte selector lookup. Decoding never
// fails; anything unresolvable leaves the corresponding fields unset.
type Decoder struct {
	registry registry.ProtocolRegistry
	logger   *zap.Logger
}

// NewDecoder creates a decoder over a protocol registry.
func NewDecoder(reg registry.ProtocolRegistry, logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{
		registry: reg,
		logger:   logger.Named("decoder"),
	}
}

// Decode produces a DecodedTransaction. It swallows every resolution
// and decoding error: a degraded transaction beats a dropped one.
func (d *Decoder) Decode(ctx context.Context, tx types.MempoolTransaction) types.DecodedTransaction {
	decoded := types.DecodedTransaction{MempoolTransaction: tx}

	if tx.To == nil {
		decoded.Method = types.MethodContractCreation
		return decoded
	}

	if len(tx.Input) == 0 {
		if tx.Value.Sign() > 0 {
			decoded.Method = types.MethodNativeTransfer
		} else {
			decoded.Method = types.MethodCall
		}
		return decoded
	}

	if len(tx.Input) >= 4 {
		decoded.FunctionSignature = hexutil.Encode(tx.Input[:4])
	}

	decoded.Protocol = d.registry.Lookup(*tx.To, tx.ChainID)

	d.decodeCalldata(ctx, &decoded)
	if decoded.Method == "" {
		d.selectorFallback(ctx, &decoded)
	}
	return decoded
}

// decodeCalldata tries the contract's known interface.
func (d *Decoder) decodeCalldata(ctx context.Context, decoded *types.DecodedTransaction) {
	if len(decoded.Input) < 4 {
		return
	}

	contractABI, abiName, err := d.registry.Interface(ctx, *decoded.To, decoded.ChainID)
	if err != nil || contractABI == nil {
		if err != nil {
			d.logger.Debug("interface resolution failed",
				zap.String("address", *decoded.To),
				zap.Error(err),
			)
		}
		return
	}

	method, err := contractABI.MethodById(decoded.Input[:4])
	if err != nil || method == nil {
		return
	}

	args, err := method.Inputs.Unpack(decoded.Input[4:])
	if err != nil {
		d.logger.Debug("calldata decode failed",
			zap.String("hash", decoded.Hash),
			zap.String("method", method.RawName),
			zap.Error(err),
		)
		return
	}

	decoded.Method = method.RawName
	decoded.RawMethodSignature = method.Sig
	decoded.Args = args
	decoded.ABIName = abiName
}

// selectorFallback consults the 4-byte signature service.
func (d *Decoder) selectorFallback(ctx context.Context, decoded *types.DecodedTransaction) {
	if decoded.FunctionSignature == "" {
		return
	}

	signature, err := d.registry.FunctionSignature(ctx, decoded.FunctionSignature)
	if err != nil || signature == "" {
		if err != nil {
			d.logger.Debug("selector lookup failed",
				zap.String("selector", decoded.FunctionSignature),
				zap.Error(err),
			)
		}
		return
	}

	decoded.RawMethodSignature = signature
	if i := strings.Index(signature, "("); i > 0 {
		decoded.Method = signature[:i]
	} else {
		decoded.Method = signature
	}
}
