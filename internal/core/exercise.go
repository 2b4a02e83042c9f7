package core

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"OptionVault/internal/event"
	"OptionVault/internal/fixedpoint"
)

// settlement is one planned per-vault leg of an exercise call.
type settlement struct {
	owner         common.Address
	count         *big.Int
	collateralDue *big.Int
	underlyingDue *big.Int
}

// Exercise settles `amount` obligations against a caller-ordered list
// of vaults during the exercise window. The loop drains each vault's
// entire obligation count until one vault can absorb the remainder,
// which terminates the walk; entries after the terminating vault are
// untouched. If the list is exhausted with obligations still owed, the
// whole call fails and nothing commits.
//
// The caller chooses the order deliberately: it lets the exerciser pick
// favorable vaults and bounds the cost of the call to the list length,
// at the price that a too-short or badly ordered list can fail even
// when aggregate obligations across all vaults would suffice.
func (e *Engine) Exercise(exerciser common.Address, amount *big.Int, owners []common.Address, now time.Time) error {
	return e.instrument("exercise", func() error {
		if !e.terms.InExerciseWindow(now) {
			return ErrOutsideExerciseWindow
		}
		if amount.Sign() < 0 {
			return fmt.Errorf("%w: %s", ErrZeroAmount, amount)
		}

		// Plan every leg before touching any state, so a rejection in a
		// later vault leaves the earlier ones unmutated.
		remaining := new(big.Int).Set(amount)
		plans := make([]settlement, 0, len(owners))
		settled := false

		for _, owner := range owners {
			v, err := e.ledger.Get(owner)
			if err != nil {
				return err
			}
			if remaining.Sign() == 0 {
				settled = true
				break
			}

			count := new(big.Int).Set(remaining)
			terminating := v.Obligations.Cmp(remaining) >= 0
			if !terminating {
				count.Set(v.Obligations)
			}

			plan, err := e.planSettlement(exerciser, owner, count)
			if err != nil {
				return err
			}
			plans = append(plans, plan)
			remaining.Sub(remaining, count)

			if terminating {
				settled = true
				break
			}
		}

		if !settled && remaining.Sign() != 0 {
			return fmt.Errorf("%w: %s obligations unsettled", ErrInsufficientVaultsSupplied, remaining)
		}

		// The caller pays underlying and burns tokens across all legs.
		total := new(big.Int).Sub(amount, remaining)
		if e.obligations.BalanceOf(exerciser).Cmp(total) < 0 {
			return fmt.Errorf("%w: need %s", ErrInsufficientCallerBalance, total)
		}

		totalUnderlying := new(big.Int)
		totalCollateral := new(big.Int)
		for _, p := range plans {
			totalUnderlying.Add(totalUnderlying, p.underlyingDue)
			totalCollateral.Add(totalCollateral, p.collateralDue)
		}

		// Collaborator transfers settle in aggregate before any ledger
		// mutation or emit. A failure here aborts the whole call with no
		// vault touched and no event emitted.
		if err := e.assets.TransferIn(e.terms.UnderlyingAsset, exerciser, totalUnderlying); err != nil {
			return fmt.Errorf("underlying transfer in: %w", err)
		}
		if err := e.obligations.Burn(exerciser, total); err != nil {
			return fmt.Errorf("obligation burn: %w", err)
		}
		if err := e.assets.TransferOut(e.terms.CollateralAsset, exerciser, totalCollateral); err != nil {
			return fmt.Errorf("collateral transfer out: %w", err)
		}

		for _, p := range plans {
			if err := e.applySettlement(exerciser, p, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// planSettlement validates one leg and computes the amounts due, with
// no side effects.
func (e *Engine) planSettlement(exerciser, owner common.Address, count *big.Int) (settlement, error) {
	v, err := e.ledger.Get(owner)
	if err != nil {
		return settlement{}, err
	}
	if count.Sign() == 0 {
		return settlement{}, fmt.Errorf("%w: vault %s", ErrZeroExercise, owner.Hex())
	}
	if count.Cmp(v.Obligations) > 0 {
		return settlement{}, fmt.Errorf("%w: %s of %s", ErrExceedsVaultObligations, count, v.Obligations)
	}
	if e.obligations.BalanceOf(exerciser).Cmp(count) < 0 {
		return settlement{}, fmt.Errorf("%w: need %s", ErrInsufficientCallerBalance, count)
	}

	underlyingDec, err := e.oracle.Decimals(e.terms.UnderlyingAsset)
	if err != nil {
		return settlement{}, err
	}
	underlyingDue := new(big.Int).Mul(count, fixedpoint.Pow10(int32(underlyingDec)))
	if underlyingDue.Sign() == 0 {
		return settlement{}, ErrZeroUnderlying
	}

	collateralDue, err := e.risk.CollateralRequiredFor(count, fixedpoint.One())
	if err != nil {
		return settlement{}, err
	}
	if collateralDue.Cmp(v.Collateral) > 0 {
		return settlement{}, fmt.Errorf("%w: due %s, collateral %s", ErrVaultUnderwater, collateralDue, v.Collateral)
	}

	return settlement{
		owner:         owner,
		count:         count,
		collateralDue: collateralDue,
		underlyingDue: underlyingDue,
	}, nil
}

// applySettlement commits the ledger deltas and event for one planned
// leg. Transfers have already settled in aggregate; the amounts here
// were validated against the vault at plan time.
func (e *Engine) applySettlement(exerciser common.Address, p settlement, now time.Time) error {
	if err := e.ledger.AddUnderlying(p.owner, p.underlyingDue); err != nil {
		return err
	}
	if err := e.ledger.RemoveCollateral(p.owner, p.collateralDue); err != nil {
		return err
	}
	if err := e.ledger.RemoveObligations(p.owner, p.count); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.ExerciseSettlements.Inc()
	}
	e.emit(event.TypeExercised, event.Exercised{
		Exerciser:      exerciser,
		VaultOwner:     p.owner,
		Count:          new(big.Int).Set(p.count),
		CollateralPaid: new(big.Int).Set(p.collateralDue),
		UnderlyingPaid: new(big.Int).Set(p.underlyingDue),
	}, now)
	return nil
}
