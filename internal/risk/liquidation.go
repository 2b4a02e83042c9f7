package risk

import (
	"math/big"

	"OptionVault/internal/fixedpoint"
	"OptionVault/internal/vault"
)

// IsUnsafe reports whether a vault's current state fails the safety
// predicate, making it eligible for liquidation.
func (e *Engine) IsUnsafe(v *vault.Vault) (bool, error) {
	safe, err := e.IsSafe(v.Collateral, v.Obligations)
	if err != nil {
		return false, err
	}
	return !safe, nil
}

// MaxCollateralLiquidatable is the per-call cap on collateral that can
// leave a vault in one liquidation: collateral * liquidationFactor.
func (e *Engine) MaxCollateralLiquidatable(v *vault.Vault) *big.Int {
	return e.params.Current().LiquidationFactor.Apply(v.Collateral)
}

// MaxObligationsLiquidatable converts the per-call collateral cap into
// an obligation count at proportion 1 + liquidationIncentive, so that
// principal plus bonus together stay within the cap. Returns 0 for a
// vault that is currently safe.
func (e *Engine) MaxObligationsLiquidatable(v *vault.Vault) (*big.Int, error) {
	unsafe, err := e.IsUnsafe(v)
	if err != nil {
		return nil, err
	}
	if !unsafe {
		return new(big.Int), nil
	}
	proportion, err := fixedpoint.One().Add(e.params.Current().LiquidationIncentive)
	if err != nil {
		return nil, err
	}
	return e.ObligationsForCollateral(e.MaxCollateralLiquidatable(v), proportion)
}

// LiquidationPayout computes the collateral owed for liquidating a given
// obligation count: the principal at proportion 1, the incentive at the
// liquidation incentive proportion, and their sum. Both legs come from
// the single CollateralRequiredFor primitive so they always agree with
// MaxObligationsLiquidatable.
func (e *Engine) LiquidationPayout(count *big.Int) (principal, incentive, total *big.Int, err error) {
	principal, err = e.CollateralRequiredFor(count, fixedpoint.One())
	if err != nil {
		return nil, nil, nil, err
	}
	incentive, err = e.CollateralRequiredFor(count, e.params.Current().LiquidationIncentive)
	if err != nil {
		return nil, nil, nil, err
	}
	total = new(big.Int).Add(principal, incentive)
	return principal, incentive, total, nil
}
