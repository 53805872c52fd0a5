package constants

import (
	"net/url"
	"strings"
)

// UnknownProvider is the bucket for endpoints whose hostname matches no
// known operator. Diversity selection treats all Unknown endpoints as one
// provider, so it degrades to latency-ordered selection when most
// endpoints are unclassified.
const UnknownProvider = "Unknown"

// providerPatterns maps hostname substrings to operator labels.
// Classification is best effort; the first match wins.
var providerPatterns = []struct {
	Substring string
	Label     string
}{
	{"alchemy", "Alchemy"},
	{"infura", "Infura"},
	{"quiknode", "QuickNode"},
	{"quicknode", "QuickNode"},
	{"ankr", "Ankr"},
	{"llamarpc", "LlamaNodes"},
	{"publicnode", "PublicNode"},
	{"blastapi", "Bware"},
	{"chainstack", "Chainstack"},
	{"drpc", "dRPC"},
	{"onfinality", "OnFinality"},
	{"pokt", "Pocket"},
	{"grove.city", "Pocket"},
	{"tenderly", "Tenderly"},
	{"1rpc", "1RPC"},
	{"cloudflare", "Cloudflare"},
	{"gateway.fm", "GatewayFM"},
	{"nodereal", "NodeReal"},
	{"getblock", "GetBlock"},
}

// ProviderLabel derives the operator label for an endpoint URL from its
// hostname. Unparsable URLs and unmatched hostnames yield UnknownProvider.
func ProviderLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return UnknownProvider
	}
	host := strings.ToLower(u.Hostname())
	for _, p := range providerPatterns {
		if strings.Contains(host, p.Substring) {
			return p.Label
		}
	}
	return UnknownProvider
}
