package oracle

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MaxDecimals is the highest asset precision the vault engine supports.
// Scaling logic pads amounts up to 18 decimals and never truncates down,
// so assets with more than 18 decimals cannot be priced.
const MaxDecimals = 18

// ErrUnsupportedPrecision is returned when an asset reports more than
// MaxDecimals decimal places.
var ErrUnsupportedPrecision = errors.New("asset precision exceeds 18 decimals")

// PriceSource supplies asset prices in a fixed 18-decimal reference unit.
type PriceSource interface {
	GetPrice(asset common.Address) (*big.Int, error)
}

// AssetMetadata supplies per-asset decimal precision.
type AssetMetadata interface {
	Decimals(asset common.Address) (uint8, error)
}

// nativeUnit is the fixed price of the native asset: 10^18.
var nativeUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Adapter normalizes prices and decimals for the vault engine. The
// distinguished native asset (zero address) is priced at exactly 10^18
// with 18 decimals and never hits the external collaborators.
type Adapter struct {
	prices   PriceSource
	metadata AssetMetadata
}

func NewAdapter(prices PriceSource, metadata AssetMetadata) *Adapter {
	return &Adapter{prices: prices, metadata: metadata}
}

// Price returns the asset's value in the 18-decimal reference unit.
func (a *Adapter) Price(asset common.Address) (*big.Int, error) {
	if asset == (common.Address{}) {
		return new(big.Int).Set(nativeUnit), nil
	}
	price, err := a.prices.GetPrice(asset)
	if err != nil {
		return nil, fmt.Errorf("oracle price for %s: %w", asset.Hex(), err)
	}
	return price, nil
}

// Decimals returns the asset's decimal precision, rejecting anything
// above MaxDecimals.
func (a *Adapter) Decimals(asset common.Address) (uint8, error) {
	if asset == (common.Address{}) {
		return 18, nil
	}
	dec, err := a.metadata.Decimals(asset)
	if err != nil {
		return 0, fmt.Errorf("asset metadata for %s: %w", asset.Hex(), err)
	}
	if dec > MaxDecimals {
		return 0, fmt.Errorf("%w: %s has %d decimals", ErrUnsupportedPrecision, asset.Hex(), dec)
	}
	return dec, nil
}
