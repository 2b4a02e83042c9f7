package oracle

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// StaticOracle is an in-memory PriceSource and AssetMetadata used by
// tests and standalone runs. Prices and decimals are set up front.
type StaticOracle struct {
	prices   map[common.Address]*big.Int
	decimals map[common.Address]uint8
}

func NewStaticOracle() *StaticOracle {
	return &StaticOracle{
		prices:   make(map[common.Address]*big.Int),
		decimals: make(map[common.Address]uint8),
	}
}

// SetPrice sets the reference-unit price for an asset.
func (s *StaticOracle) SetPrice(asset common.Address, price *big.Int) {
	s.prices[asset] = new(big.Int).Set(price)
}

// SetDecimals sets the decimal precision for an asset.
func (s *StaticOracle) SetDecimals(asset common.Address, dec uint8) {
	s.decimals[asset] = dec
}

func (s *StaticOracle) GetPrice(asset common.Address) (*big.Int, error) {
	price, ok := s.prices[asset]
	if !ok {
		return nil, fmt.Errorf("no price for asset %s", asset.Hex())
	}
	return new(big.Int).Set(price), nil
}

func (s *StaticOracle) Decimals(asset common.Address) (uint8, error) {
	dec, ok := s.decimals[asset]
	if !ok {
		return 0, fmt.Errorf("no metadata for asset %s", asset.Hex())
	}
	return dec, nil
}
