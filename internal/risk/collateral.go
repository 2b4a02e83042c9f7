package risk

import (
	"errors"
	"fmt"
	"math/big"

	"OptionVault/internal/fixedpoint"
	"OptionVault/internal/oracle"
	"OptionVault/internal/vault"
)

// ErrDecimalOverflow is returned by every collateralization operation
// when the collateral asset's decimal precision exceeds 18.
var ErrDecimalOverflow = errors.New("collateral decimal precision exceeds 18")

// Engine is the collateralization engine: the single safety predicate
// consulted by issuance, collateral removal, and liquidation
// eligibility, plus the conversions between collateral amounts and
// obligation counts. All arithmetic is integer-only with truncating
// division; prices and decimal padding are normalized to 18-decimal
// reference terms by the oracle adapter.
type Engine struct {
	terms  *vault.Terms
	params *vault.ParamsManager
	oracle *oracle.Adapter
}

func NewEngine(terms *vault.Terms, params *vault.ParamsManager, adapter *oracle.Adapter) *Engine {
	return &Engine{terms: terms, params: params, oracle: adapter}
}

// priceInputs resolves the collateral and strike prices and the decimal
// padding factor 10^(18-collateralDecimals). When collateral and strike
// are the same asset both prices are 1 and the oracle is skipped: an
// explicit branch, not a lookup that happens to return 1.
func (e *Engine) priceInputs() (collateralPrice, strikePrice, pad *big.Int, err error) {
	collateralDec, err := e.oracle.Decimals(e.terms.CollateralAsset)
	if err != nil {
		if errors.Is(err, oracle.ErrUnsupportedPrecision) {
			return nil, nil, nil, fmt.Errorf("%w: %v", ErrDecimalOverflow, err)
		}
		return nil, nil, nil, err
	}
	pad = fixedpoint.Pow10(18 - int32(collateralDec))

	if e.terms.SameCollateralAndStrike() {
		return big.NewInt(1), big.NewInt(1), pad, nil
	}

	collateralPrice, err = e.oracle.Price(e.terms.CollateralAsset)
	if err != nil {
		return nil, nil, nil, err
	}
	strikePrice, err = e.oracle.Price(e.terms.StrikeAsset)
	if err != nil {
		return nil, nil, nil, err
	}
	return collateralPrice, strikePrice, pad, nil
}

// collateralValue computes collateral * 10^(18-collateralDecimals) *
// price(collateral) / price(strike): the collateral amount expressed in
// strike-denominated 18-decimal terms.
func (e *Engine) collateralValue(collateral *big.Int) (*big.Int, error) {
	collateralPrice, strikePrice, pad, err := e.priceInputs()
	if err != nil {
		return nil, err
	}
	v := new(big.Int).Mul(collateral, pad)
	v.Mul(v, collateralPrice)
	return v.Quo(v, strikePrice), nil
}

// IsSafe reports whether a hypothetical (collateral, obligation-count)
// pair satisfies the collateralization requirement:
//
//	obligations * minRatio * strikePrice <= collateralValue
func (e *Engine) IsSafe(collateral, obligations *big.Int) (bool, error) {
	required, err := e.terms.StrikePrice.Mul(e.params.Current().MinCollateralizationRatio)
	if err != nil {
		return false, err
	}
	lhs := required.Apply(obligations)
	rhs, err := e.collateralValue(collateral)
	if err != nil {
		return false, err
	}
	return lhs.Cmp(rhs) <= 0, nil
}

// MaxObligationsIssuable returns the largest obligation count for which
// IsSafe holds against the given collateral, solved directly from the
// safety inequality rather than by search.
func (e *Engine) MaxObligationsIssuable(collateral *big.Int) (*big.Int, error) {
	required, err := e.terms.StrikePrice.Mul(e.params.Current().MinCollateralizationRatio)
	if err != nil {
		return nil, err
	}
	value, err := e.collateralValue(collateral)
	if err != nil {
		return nil, err
	}
	return required.ApplyInverse(value), nil
}

// CollateralRequiredFor converts an obligation count into a collateral
// amount at the strike rate, scaled by the given proportion and by the
// strike-to-collateral price ratio, padded back down to the collateral
// asset's native decimals. Proportion 1 gives the exact exercise payout;
// the liquidation incentive gives the liquidator bonus.
func (e *Engine) CollateralRequiredFor(count *big.Int, proportion fixedpoint.Ratio) (*big.Int, error) {
	collateralPrice, strikePrice, _, err := e.priceInputs()
	if err != nil {
		return nil, err
	}
	collateralDec, err := e.oracle.Decimals(e.terms.CollateralAsset)
	if err != nil {
		return nil, err
	}
	scaled, err := e.terms.StrikePrice.Mul(proportion)
	if err != nil {
		return nil, err
	}

	// amount = count * strike.Value * proportion.Value * price(strike)
	//          * 10^(strike.Exp + proportion.Exp + collateralDec - 18)
	//          / price(collateral)
	num := new(big.Int).Mul(count, big.NewInt(scaled.Value))
	num.Mul(num, strikePrice)
	t := scaled.Exponent + int32(collateralDec) - 18
	if t >= 0 {
		num.Mul(num, fixedpoint.Pow10(t))
		return num.Quo(num, collateralPrice), nil
	}
	den := new(big.Int).Mul(fixedpoint.Pow10(-t), collateralPrice)
	return num.Quo(num, den), nil
}

// ObligationsForCollateral is the inverse of CollateralRequiredFor with
// truncation: the largest obligation count whose required collateral at
// the given proportion does not exceed the amount.
func (e *Engine) ObligationsForCollateral(amount *big.Int, proportion fixedpoint.Ratio) (*big.Int, error) {
	collateralPrice, strikePrice, _, err := e.priceInputs()
	if err != nil {
		return nil, err
	}
	collateralDec, err := e.oracle.Decimals(e.terms.CollateralAsset)
	if err != nil {
		return nil, err
	}
	scaled, err := e.terms.StrikePrice.Mul(proportion)
	if err != nil {
		return nil, err
	}
	if scaled.Value == 0 {
		return nil, fmt.Errorf("zero strike-proportion ratio %s", scaled)
	}

	num := new(big.Int).Mul(amount, collateralPrice)
	den := new(big.Int).Mul(big.NewInt(scaled.Value), strikePrice)
	t := scaled.Exponent + int32(collateralDec) - 18
	if t >= 0 {
		den.Mul(den, fixedpoint.Pow10(t))
	} else {
		num.Mul(num, fixedpoint.Pow10(-t))
	}
	return num.Quo(num, den), nil
}
