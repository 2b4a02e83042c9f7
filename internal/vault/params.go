package vault

import (
	"fmt"

	"OptionVault/internal/fixedpoint"
)

// Params are the owner-mutable risk parameters read by every safety
// check: the liquidator's bonus fraction, the per-call liquidation cap
// fraction, and the required collateralization multiple.
type Params struct {
	LiquidationIncentive      fixedpoint.Ratio
	LiquidationFactor         fixedpoint.Ratio
	MinCollateralizationRatio fixedpoint.Ratio
}

var (
	maxLiquidationIncentive = fixedpoint.New(2, -1) // 0.20
	maxLiquidationFactor    = fixedpoint.New(1, 0)  // 1.0
	minMinRatio             = fixedpoint.New(1, 0)  // 1.0
)

// ValidateParams checks the bounds: incentive <= 0.20, factor <= 1.0,
// minimum collateralization ratio >= 1.0. All bounds are inclusive.
func ValidateParams(p Params) error {
	if p.LiquidationIncentive.Cmp(maxLiquidationIncentive) > 0 {
		return fmt.Errorf("liquidation incentive %s exceeds 0.20", p.LiquidationIncentive)
	}
	if p.LiquidationIncentive.Value < 0 {
		return fmt.Errorf("liquidation incentive %s is negative", p.LiquidationIncentive)
	}
	if p.LiquidationFactor.Cmp(maxLiquidationFactor) > 0 {
		return fmt.Errorf("liquidation factor %s exceeds 1.0", p.LiquidationFactor)
	}
	if p.LiquidationFactor.Value < 0 {
		return fmt.Errorf("liquidation factor %s is negative", p.LiquidationFactor)
	}
	if p.MinCollateralizationRatio.Cmp(minMinRatio) < 0 {
		return fmt.Errorf("minimum collateralization ratio %s is below 1.0", p.MinCollateralizationRatio)
	}
	return nil
}

// ParamsManager holds the process-wide risk parameters. It is injected
// into the collateralization and liquidation engines rather than being
// ambient module state, so tests can run with fixed parameter sets.
type ParamsManager struct {
	current Params
}

func NewParamsManager(initial Params) (*ParamsManager, error) {
	if err := ValidateParams(initial); err != nil {
		return nil, fmt.Errorf("invalid initial risk params: %w", err)
	}
	return &ParamsManager{current: initial}, nil
}

// Current returns the parameters in effect.
func (pm *ParamsManager) Current() Params {
	return pm.current
}

// Update replaces the parameters after validating bounds.
func (pm *ParamsManager) Update(p Params) error {
	if err := ValidateParams(p); err != nil {
		return fmt.Errorf("invalid risk params: %w", err)
	}
	pm.current = p
	return nil
}
