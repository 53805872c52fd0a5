// Package registry defines the collaborator boundaries the watcher
// consumes: which chains are known, and what is known about the
// contracts transactions target. Implementations backed by external
// aggregators plug in behind these interfaces; the package ships static
// table-driven implementations for the daemon and tests.
package registry

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/0xmhha/mempoolwatch/pkg/types"
)

// ChainRegistry answers whether a chain is watchable.
type ChainRegistry interface {
	IsChainSupported(chainID uint64) bool
}

// ProtocolRegistry resolves contract addresses to protocol metadata and
// interfaces. Every method is best effort: a miss is (nil or empty, nil
// error) and callers degrade rather than fail.
type ProtocolRegistry interface {
	// Lookup resolves the protocol behind an address. Synchronous;
	// returns nil when the address is unknown.
	Lookup(address string, chainID uint64) *types.ProtocolInfo

	// Interface returns the contract ABI and its name for an address,
	// or (nil, "", nil) when no interface is known.
	Interface(ctx context.Context, address string, chainID uint64) (*abi.ABI, string, error)

	// FunctionSignature resolves a 0x-prefixed 4-byte selector to a
	// full text signature like "transfer(address,uint256)", or "".
	FunctionSignature(ctx context.Context, selector string) (string, error)
}
