package mempool

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/0xmhha/mempoolwatch/internal/constants"
	"github.com/0xmhha/mempoolwatch/pkg/types"
)

// Enricher derives a human-readable summary, labels and a metadata bag
// from a decoded transaction.
type Enricher struct{}

// NewEnricher creates an enricher.
func NewEnricher() *Enricher {
	return &Enricher{}
}

// Enrich produces an EnrichedTransaction.
func (e *Enricher) Enrich(tx types.DecodedTransaction) types.EnrichedTransaction {
	enriched := types.EnrichedTransaction{
		DecodedTransaction: tx,
		Summary:            summarize(tx),
		Labels:             label(tx),
		Metadata:           metadata(tx),
	}
	return enriched
}

// summarize builds the one-line summary. The synthetic nativeTransfer
// and call markers do not count as a known method here, so a plain
// value transfer reads "Transfer 2 to 0x…" rather than an internal
// method name.
func summarize(tx types.DecodedTransaction) string {
	method := tx.Method
	if method == types.MethodNativeTransfer || method == types.MethodCall {
		method = ""
	}

	switch {
	case tx.Protocol != nil && method != "":
		return tx.Protocol.Name + " • " + method
	case method != "":
		return method
	case tx.Value.Sign() > 0 && tx.To != nil:
		return fmt.Sprintf("Transfer %s to %s", FormatValue(tx.Value), *tx.To)
	default:
		return ""
	}
}

// label accumulates categorical labels in a fixed order.
func label(tx types.DecodedTransaction) []string {
	labels := make([]string, 0, 4)
	if tx.Protocol != nil {
		labels = append(labels, "protocol:"+tx.Protocol.Name)
		if tx.Protocol.Category != "" {
			labels = append(labels, "category:"+tx.Protocol.Category)
		}
	}
	if tx.Method != "" {
		labels = append(labels, "method:"+tx.Method)
	}
	if tx.Value.Sign() > 0 {
		labels = append(labels, "transfer")
	}
	return labels
}

func metadata(tx types.DecodedTransaction) map[string]string {
	meta := map[string]string{
		"valueFormatted": FormatValue(tx.Value),
		"hasCalldata":    strconv.FormatBool(len(tx.Input) > 0),
	}
	if tx.Protocol != nil {
		meta["protocolName"] = tx.Protocol.Name
		meta["protocolCategory"] = tx.Protocol.Category
		meta["protocolConfidence"] = strconv.FormatFloat(tx.Protocol.Confidence, 'f', -1, 64)
	}
	if tx.FunctionSignature != "" {
		meta["functionSignature"] = tx.FunctionSignature
	}
	if tx.RawMethodSignature != "" {
		meta["rawMethodSignature"] = tx.RawMethodSignature
	}
	return meta
}

// FormatValue renders a wei amount as whole native-token units with
// trailing zeros trimmed: 2×10^18 → "2", 5×10^17 → "0.5".
func FormatValue(value *big.Int) string {
	if value == nil || value.Sign() == 0 {
		return "0"
	}

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(constants.NativeTokenDecimals), nil)
	whole, frac := new(big.Int).QuoRem(value, divisor, new(big.Int))

	if frac.Sign() == 0 {
		return whole.String()
	}

	fracStr := fmt.Sprintf("%0*s", constants.NativeTokenDecimals, frac.String())
	fracStr = strings.TrimRight(fracStr, "0")
	return whole.String() + "." + fracStr
}
