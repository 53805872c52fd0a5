package registry

import (
	"context"
	"testing"

	"github.com/0xmhha/mempoolwatch/pkg/types"
)

func TestStaticChainRegistry(t *testing.T) {
	r := NewStaticChainRegistry([]uint64{1, 137})

	if !r.IsChainSupported(1) {
		t.Error("chain 1 should be supported")
	}
	if !r.IsChainSupported(137) {
		t.Error("chain 137 should be supported")
	}
	if r.IsChainSupported(999) {
		t.Error("chain 999 should not be supported")
	}
}

// TestLookupCaseInsensitive tests that address lookup normalizes case
func TestLookupCaseInsensitive(t *testing.T) {
	r := NewStaticProtocolRegistry()

	lower := r.Lookup("0xdac17f958d2ee523a2206206994597c13d831ec7", 1)
	if lower == nil || lower.Name != "Tether" {
		t.Fatalf("expected Tether for lowercase address, got %v", lower)
	}

	mixed := r.Lookup("0xDAC17F958D2ee523a2206206994597C13D831ec7", 1)
	if mixed == nil || mixed.Name != "Tether" {
		t.Errorf("expected Tether for checksummed address, got %v", mixed)
	}
}

func TestLookupMisses(t *testing.T) {
	r := NewStaticProtocolRegistry()

	if info := r.Lookup("0x0000000000000000000000000000000000000001", 1); info != nil {
		t.Errorf("expected nil for unknown address, got %v", info)
	}
	// Known mainnet address, wrong chain.
	if info := r.Lookup("0xdac17f958d2ee523a2206206994597c13d831ec7", 137); info != nil {
		t.Errorf("expected nil for wrong chain, got %v", info)
	}
}

func TestInterfaceParsesAndCaches(t *testing.T) {
	r := NewStaticProtocolRegistry()

	first, name, err := r.Interface(context.Background(), "0xdac17f958d2ee523a2206206994597c13d831ec7", 1)
	if err != nil {
		t.Fatalf("Interface failed: %v", err)
	}
	if first == nil {
		t.Fatal("expected a parsed ABI")
	}
	if name != "TetherToken" {
		t.Errorf("expected ABI name TetherToken, got %q", name)
	}
	if _, ok := first.Methods["transfer"]; !ok {
		t.Error("parsed ABI should contain transfer")
	}

	second, _, err := r.Interface(context.Background(), "0xdac17f958d2ee523a2206206994597c13d831ec7", 1)
	if err != nil {
		t.Fatalf("Interface failed on second call: %v", err)
	}
	if second != first {
		t.Error("second call should return the cached ABI pointer")
	}
}

func TestInterfaceMiss(t *testing.T) {
	r := NewStaticProtocolRegistry()

	parsed, name, err := r.Interface(context.Background(), "0x0000000000000000000000000000000000000001", 1)
	if err != nil {
		t.Fatalf("a miss must not be an error: %v", err)
	}
	if parsed != nil || name != "" {
		t.Errorf("expected empty miss, got %v %q", parsed, name)
	}
}

func TestFunctionSignature(t *testing.T) {
	r := NewStaticProtocolRegistry()

	sig, err := r.FunctionSignature(context.Background(), "0xa9059cbb")
	if err != nil {
		t.Fatalf("FunctionSignature failed: %v", err)
	}
	if sig != "transfer(address,uint256)" {
		t.Errorf("unexpected signature %q", sig)
	}

	sig, err = r.FunctionSignature(context.Background(), "0xA9059CBB")
	if err != nil {
		t.Fatalf("FunctionSignature failed: %v", err)
	}
	if sig != "transfer(address,uint256)" {
		t.Errorf("selector lookup should be case-insensitive, got %q", sig)
	}

	sig, err = r.FunctionSignature(context.Background(), "0xdeadbeef")
	if err != nil {
		t.Fatalf("a miss must not be an error: %v", err)
	}
	if sig != "" {
		t.Errorf("expected empty signature for unknown selector, got %q", sig)
	}
}

func TestRegisterCustomEntries(t *testing.T) {
	r := NewStaticProtocolRegistry()

	r.Register(42161, "0xAbCd000000000000000000000000000000000000", &ProtocolEntry{
		Info: types.ProtocolInfo{Name: "GMX", Category: "perps", Confidence: 0.9, Source: "curated"},
	})
	r.RegisterSelector("0x12345678", "custom(bytes32)")

	info := r.Lookup("0xabcd000000000000000000000000000000000000", 42161)
	if info == nil || info.Name != "GMX" {
		t.Fatalf("expected registered entry, got %v", info)
	}

	sig, _ := r.FunctionSignature(context.Background(), "0x12345678")
	if sig != "custom(bytes32)" {
		t.Errorf("expected registered selector, got %q", sig)
	}
}
