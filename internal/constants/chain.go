package constants

// Well-known EVM chain IDs supported out of the box. The chain registry
// consumes this set; additional chains come from configuration.
var ChainNames = map[uint64]string{
	1:     "Ethereum",
	10:    "Optimism",
	56:    "BNB Smart Chain",
	137:   "Polygon",
	8453:  "Base",
	42161: "Arbitrum One",
	43114: "Avalanche C-Chain",
}

// ChainName returns the human-readable name for a chain ID, or empty if
// the chain is not in the built-in set.
func ChainName(chainID uint64) string {
	return ChainNames[chainID]
}

// NativeTokenDecimals is the decimal precision of the native token on
// every supported chain.
const NativeTokenDecimals = 18
