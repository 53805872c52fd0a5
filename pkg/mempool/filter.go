package mempool

import (
	"strings"

	"github.com/0xmhha/mempoolwatch/pkg/types"
)

// Passes reports whether an enriched transaction matches a filter
// specification. A nil spec passes everything; every populated clause
// must hold.
func Passes(tx *types.EnrichedTransaction, spec *types.FilterSpec) bool {
	if spec == nil {
		return true
	}

	if len(spec.Addresses) > 0 && !matchesAddress(tx, spec.Addresses) {
		return false
	}

	if len(spec.Protocols) > 0 {
		if tx.Protocol == nil || !containsFold(spec.Protocols, tx.Protocol.Name) {
			return false
		}
	}

	if len(spec.Categories) > 0 {
		if tx.Protocol == nil || !containsFold(spec.Categories, tx.Protocol.Category) {
			return false
		}
	}

	if len(spec.Methods) > 0 && !containsFold(spec.Methods, tx.Method) {
		return false
	}

	if spec.MinValueWei != nil && tx.Value.Cmp(spec.MinValueWei) < 0 {
		return false
	}
	if spec.MaxValueWei != nil && tx.Value.Cmp(spec.MaxValueWei) > 0 {
		return false
	}

	return true
}

func matchesAddress(tx *types.EnrichedTransaction, addresses []string) bool {
	if containsFold(addresses, tx.From) {
		return true
	}
	return tx.To != nil && containsFold(addresses, *tx.To)
}

func containsFold(haystack []string, needle string) bool {
	if needle == "" {
		return false
	}
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}
