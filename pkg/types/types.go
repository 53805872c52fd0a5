// Package types defines the canonical data model for the mempool watcher:
// endpoints, health records, and the transaction shapes that flow through
// the normalization, decoding and enrichment pipeline.
package types

import (
	"math/big"
	"time"
)

// TransportKind identifies how an endpoint is reached.
type TransportKind string

const (
	// TransportWebSocket is a streaming (push) endpoint.
	TransportWebSocket TransportKind = "websocket"
	// TransportHTTP is a polling (request/response) endpoint.
	TransportHTTP TransportKind = "http"
)

// Streaming reports whether the endpoint supports push subscriptions.
func (k TransportKind) Streaming() bool {
	return k == TransportWebSocket
}

// Endpoint describes one RPC-reachable node.
type Endpoint struct {
	// URL is the full RPC URL (http(s):// or ws(s)://).
	URL string `json:"url"`
	// Kind is the transport capability of this endpoint.
	Kind TransportKind `json:"kind"`
	// Provider is the operator label derived from the URL hostname.
	// Hosts that match no known provider collapse into "Unknown", so
	// diversity selection degrades gracefully when classification fails.
	Provider string `json:"provider"`
	// Reliability is an exponential moving average of recent probe
	// outcomes, always within [0,1]. Mutated only by the health manager.
	Reliability float64 `json:"reliability"`
}

// HealthRecord is the cached outcome of a single endpoint probe.
type HealthRecord struct {
	Healthy     bool          `json:"healthy"`
	Latency     time.Duration `json:"latency"`
	BlockNumber uint64        `json:"blockNumber,omitempty"`
	Error       string        `json:"error,omitempty"`
	CheckedAt   time.Time     `json:"checkedAt"`
}

// RawTransaction is a transaction payload as delivered by a provider:
// either a bare hash or a partially populated transaction object with
// hex-quantity fields. Unknown or missing fields stay nil.
type RawTransaction struct {
	Hash                 string  `json:"hash"`
	From                 string  `json:"from,omitempty"`
	To                   *string `json:"to,omitempty"`
	Value                *string `json:"value,omitempty"`
	GasPrice             *string `json:"gasPrice,omitempty"`
	MaxFeePerGas         *string `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *string `json:"maxPriorityFeePerGas,omitempty"`
	Gas                  *string `json:"gas,omitempty"`
	Nonce                *string `json:"nonce,omitempty"`
	Input                *string `json:"input,omitempty"`
	BlockNumber          *string `json:"blockNumber,omitempty"`
	Type                 *string `json:"type,omitempty"`
}

// HashOnly reports whether the payload carries nothing but a hash and
// must be expanded with a point lookup before normalization.
func (r *RawTransaction) HashOnly() bool {
	return r.From == "" && r.To == nil && r.Value == nil && r.Input == nil
}

// MempoolTransaction is the canonical pending-transaction record.
type MempoolTransaction struct {
	ChainID uint64 `json:"chainId"`
	Hash    string `json:"hash"`
	From    string `json:"from"`
	// To is nil for contract creations.
	To *string `json:"to"`
	// Value is never nil; unparsable or absent values default to zero.
	Value                *big.Int   `json:"value"`
	GasPrice             *big.Int   `json:"gasPrice,omitempty"`
	MaxFeePerGas         *big.Int   `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *big.Int   `json:"maxPriorityFeePerGas,omitempty"`
	Gas                  *big.Int   `json:"gas,omitempty"`
	Nonce                uint64     `json:"nonce"`
	Input                []byte     `json:"input"`
	BlockNumber          *uint64    `json:"blockNumber,omitempty"`
	Timestamp            *time.Time `json:"timestamp,omitempty"`
	Type                 *uint8     `json:"type,omitempty"`
}

// ProtocolInfo is the result of a protocol-registry lookup for a
// contract address.
type ProtocolInfo struct {
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// Well-known synthetic method names assigned without calldata decoding.
const (
	MethodContractCreation = "contractCreation"
	MethodNativeTransfer   = "nativeTransfer"
	MethodCall             = "call"
)

// DecodedTransaction is a MempoolTransaction with best-effort protocol
// and calldata decoding attached. Every field here may be unset: decode
// failures degrade, they never propagate.
type DecodedTransaction struct {
	MempoolTransaction

	Protocol *ProtocolInfo `json:"protocol,omitempty"`
	// Method is the short function name, or one of the Method* constants.
	Method string `json:"method,omitempty"`
	// FunctionSignature is the 4-byte selector as a 0x-prefixed string.
	FunctionSignature string `json:"functionSignature,omitempty"`
	// RawMethodSignature is the full name(type,type,...) signature.
	RawMethodSignature string `json:"rawMethodSignature,omitempty"`
	Args               []any  `json:"args,omitempty"`
	ABIName            string `json:"abiName,omitempty"`
}

// EnrichedTransaction is a DecodedTransaction with a human-readable
// summary, categorical labels and a metadata bag.
type EnrichedTransaction struct {
	DecodedTransaction

	Summary  string            `json:"summary,omitempty"`
	Labels   []string          `json:"labels"`
	Metadata map[string]string `json:"metadata"`
}

// FilterSpec selects which enriched transactions a subscriber wants.
// A nil spec passes everything; populated clauses are ANDed.
type FilterSpec struct {
	// Addresses matches To or From, case-insensitively.
	Addresses []string `json:"addresses,omitempty"`
	// Protocols matches the resolved protocol name.
	Protocols []string `json:"protocols,omitempty"`
	// Categories matches the resolved protocol category.
	Categories []string `json:"categories,omitempty"`
	// Methods matches the decoded method name.
	Methods []string `json:"methods,omitempty"`
	// MinValueWei and MaxValueWei are inclusive bounds on Value.
	MinValueWei *big.Int `json:"minValueWei,omitempty"`
	MaxValueWei *big.Int `json:"maxValueWei,omitempty"`
}
