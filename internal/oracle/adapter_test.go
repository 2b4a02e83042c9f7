package oracle_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"OptionVault/internal/oracle"
)

var (
	nativeAsset = common.Address{}
	tokenAsset  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

// ============================================================================
// Test: native asset short-circuit
// ============================================================================

func TestPrice_NativeAssetFixedUnit(t *testing.T) {
	// The native asset is priced without consulting the source; an empty
	// source would error for any other asset.
	adapter := oracle.NewAdapter(oracle.NewStaticOracle(), oracle.NewStaticOracle())

	got, err := adapter.Price(nativeAsset)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	if got.Cmp(want) != 0 {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestDecimals_NativeAssetFixed(t *testing.T) {
	adapter := oracle.NewAdapter(oracle.NewStaticOracle(), oracle.NewStaticOracle())

	got, err := adapter.Decimals(nativeAsset)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 18 {
		t.Errorf("got %d, want 18", got)
	}
}

// ============================================================================
// Test: pass-through to the configured source
// ============================================================================

func TestPrice_PassThrough(t *testing.T) {
	src := oracle.NewStaticOracle()
	src.SetPrice(tokenAsset, big.NewInt(2_500_000))
	adapter := oracle.NewAdapter(src, src)

	got, err := adapter.Price(tokenAsset)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(big.NewInt(2_500_000)) != 0 {
		t.Errorf("got %s, want 2500000", got)
	}
}

func TestPrice_UnknownAsset(t *testing.T) {
	adapter := oracle.NewAdapter(oracle.NewStaticOracle(), oracle.NewStaticOracle())

	if _, err := adapter.Price(tokenAsset); err == nil {
		t.Fatal("expected error for unknown asset, got nil")
	}
}

func TestDecimals_PassThrough(t *testing.T) {
	src := oracle.NewStaticOracle()
	src.SetDecimals(tokenAsset, 6)
	adapter := oracle.NewAdapter(src, src)

	got, err := adapter.Decimals(tokenAsset)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 6 {
		t.Errorf("got %d, want 6", got)
	}
}

// ============================================================================
// Test: precision bound
// ============================================================================

func TestDecimals_AboveMaxRejected(t *testing.T) {
	src := oracle.NewStaticOracle()
	src.SetDecimals(tokenAsset, 19)
	adapter := oracle.NewAdapter(src, src)

	_, err := adapter.Decimals(tokenAsset)
	if !errors.Is(err, oracle.ErrUnsupportedPrecision) {
		t.Errorf("got %v, want ErrUnsupportedPrecision", err)
	}
}

func TestDecimals_AtMaxAccepted(t *testing.T) {
	src := oracle.NewStaticOracle()
	src.SetDecimals(tokenAsset, 18)
	adapter := oracle.NewAdapter(src, src)

	got, err := adapter.Decimals(tokenAsset)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 18 {
		t.Errorf("got %d, want 18", got)
	}
}
