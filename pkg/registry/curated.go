package registry

import "github.com/0xmhha/mempoolwatch/pkg/types"

// erc20ABI covers the calls that dominate token traffic.
const erc20ABI = `[
	{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"transferFrom","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const uniswapV2RouterABI = `[
	{"type":"function","name":"swapExactTokensForTokens","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
	{"type":"function","name":"swapExactETHForTokens","inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
	{"type":"function","name":"swapExactTokensForETH","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
	{"type":"function","name":"addLiquidity","inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"amountADesired","type":"uint256"},{"name":"amountBDesired","type":"uint256"},{"name":"amountAMin","type":"uint256"},{"name":"amountBMin","type":"uint256"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amountA","type":"uint256"},{"name":"amountB","type":"uint256"},{"name":"liquidity","type":"uint256"}]}
]`

const wethABI = `[
	{"type":"function","name":"deposit","inputs":[],"outputs":[]},
	{"type":"function","name":"withdraw","inputs":[{"name":"wad","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// curatedProtocols is the built-in protocol table, keyed by chain ID and
// contract address. Sources a real deployment would merge in (aggregator
// APIs, verified-contract services) sit behind the ProtocolRegistry
// interface instead.
var curatedProtocols = map[uint64]map[string]ProtocolEntry{
	1: {
		"0x7a250d5630b4cf539739df2c5dacb4c659f2488d": {
			Info:    types.ProtocolInfo{Name: "Uniswap V2", Category: "dex", Confidence: 1, Source: "curated"},
			ABIName: "UniswapV2Router02",
			ABIJSON: uniswapV2RouterABI,
		},
		"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": {
			Info:    types.ProtocolInfo{Name: "Wrapped Ether", Category: "token", Confidence: 1, Source: "curated"},
			ABIName: "WETH9",
			ABIJSON: wethABI,
		},
		"0xdac17f958d2ee523a2206206994597c13d831ec7": {
			Info:    types.ProtocolInfo{Name: "Tether", Category: "token", Confidence: 1, Source: "curated"},
			ABIName: "TetherToken",
			ABIJSON: erc20ABI,
		},
		"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": {
			Info:    types.ProtocolInfo{Name: "USD Coin", Category: "token", Confidence: 1, Source: "curated"},
			ABIName: "FiatTokenV2",
			ABIJSON: erc20ABI,
		},
	},
	56: {
		"0x10ed43c718714eb63d5aa57b78b54704e256024e": {
			Info:    types.ProtocolInfo{Name: "PancakeSwap", Category: "dex", Confidence: 1, Source: "curated"},
			ABIName: "PancakeRouter",
			ABIJSON: uniswapV2RouterABI,
		},
	},
	137: {
		"0x2791bca1f2de4661ed88a30c99a7a9449aa84174": {
			Info:    types.ProtocolInfo{Name: "USD Coin", Category: "token", Confidence: 1, Source: "curated"},
			ABIName: "FiatTokenV2",
			ABIJSON: erc20ABI,
		},
	},
}

// wellKnownSelectors is the built-in 4-byte fallback table for calldata
// that matches no known contract interface.
var wellKnownSelectors = map[string]string{
	"0xa9059cbb": "transfer(address,uint256)",
	"0x095ea7b3": "approve(address,uint256)",
	"0x23b872dd": "transferFrom(address,address,uint256)",
	"0x38ed1739": "swapExactTokensForTokens(uint256,uint256,address[],address,uint256)",
	"0x7ff36ab5": "swapExactETHForTokens(uint256,address[],address,uint256)",
	"0x18cbafe5": "swapExactTokensForETH(uint256,uint256,address[],address,uint256)",
	"0xd0e30db0": "deposit()",
	"0x2e1a7d4d": "withdraw(uint256)",
	"0x42842e0e": "safeTransferFrom(address,address,uint256)",
	"0xb6f9de95": "swapExactETHForTokensSupportingFeeOnTransferTokens(uint256,address[],address,uint256)",
	"0x5ae401dc": "multicall(uint256,bytes[])",
}
