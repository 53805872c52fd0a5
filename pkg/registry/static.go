package registry

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/0xmhha/mempoolwatch/pkg/types"
)

// StaticChainRegistry supports a fixed set of chain IDs.
type StaticChainRegistry struct {
	chains map[uint64]bool
}

// NewStaticChainRegistry creates a registry supporting the given chains.
func NewStaticChainRegistry(chainIDs []uint64) *StaticChainRegistry {
	chains := make(map[uint64]bool, len(chainIDs))
	for _, id := range chainIDs {
		chains[id] = true
	}
	return &StaticChainRegistry{chains: chains}
}

// IsChainSupported implements ChainRegistry.
func (r *StaticChainRegistry) IsChainSupported(chainID uint64) bool {
	return r.chains[chainID]
}

// ProtocolEntry is one curated protocol record.
type ProtocolEntry struct {
	Info types.ProtocolInfo
	// ABIName and ABIJSON describe the contract interface, when known.
	ABIName string
	ABIJSON string
}

// StaticProtocolRegistry serves protocol lookups from curated tables.
// ABIs are parsed lazily and cached; selector lookups come from a fixed
// signature table.
type StaticProtocolRegistry struct {
	mu sync.RWMutex
	// entries is keyed by chainID, then lowercased address.
	entries map[uint64]map[string]*ProtocolEntry
	// parsed caches lazily parsed ABIs by chainID:address.
	parsed map[string]*abi.ABI
	// selectors maps 0x-prefixed 4-byte selectors to full signatures.
	selectors map[string]string
}

// NewStaticProtocolRegistry creates a registry preloaded with the
// built-in curated tables.
func NewStaticProtocolRegistry() *StaticProtocolRegistry {
	r := &StaticProtocolRegistry{
		entries:   make(map[uint64]map[string]*ProtocolEntry),
		parsed:    make(map[string]*abi.ABI),
		selectors: make(map[string]string, len(wellKnownSelectors)),
	}
	for sel, sig := range wellKnownSelectors {
		r.selectors[sel] = sig
	}
	for chainID, contracts := range curatedProtocols {
		for addr, entry := range contracts {
			e := entry
			r.Register(chainID, addr, &e)
		}
	}
	return r
}

// Register adds or replaces a protocol entry.
func (r *StaticProtocolRegistry) Register(chainID uint64, address string, entry *ProtocolEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries[chainID] == nil {
		r.entries[chainID] = make(map[string]*ProtocolEntry)
	}
	r.entries[chainID][strings.ToLower(address)] = entry
}

// RegisterSelector adds a selector to the signature table.
func (r *StaticProtocolRegistry) RegisterSelector(selector, signature string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selectors[strings.ToLower(selector)] = signature
}

// Lookup implements ProtocolRegistry.
func (r *StaticProtocolRegistry) Lookup(address string, chainID uint64) *types.ProtocolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry := r.entries[chainID][strings.ToLower(address)]
	if entry == nil {
		return nil
	}
	info := entry.Info
	return &info
}

// Interface implements ProtocolRegistry.
func (r *StaticProtocolRegistry) Interface(_ context.Context, address string, chainID uint64) (*abi.ABI, string, error) {
	key := strings.ToLower(address)

	r.mu.RLock()
	entry := r.entries[chainID][key]
	cached := r.parsed[cacheKey(chainID, key)]
	r.mu.RUnlock()

	if entry == nil || entry.ABIJSON == "" {
		return nil, "", nil
	}
	if cached != nil {
		return cached, entry.ABIName, nil
	}

	parsed, err := abi.JSON(strings.NewReader(entry.ABIJSON))
	if err != nil {
		return nil, "", err
	}

	r.mu.Lock()
	r.parsed[cacheKey(chainID, key)] = &parsed
	r.mu.Unlock()

	return &parsed, entry.ABIName, nil
}

// FunctionSignature implements ProtocolRegistry.
func (r *StaticProtocolRegistry) FunctionSignature(_ context.Context, selector string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selectors[strings.ToLower(selector)], nil
}

func cacheKey(chainID uint64, address string) string {
	return strconv.FormatUint(chainID, 10) + ":" + address
}
