package core

import "errors"

// Precondition, safety, and arithmetic-domain rejections. Every one of
// these aborts the whole operation before any ledger mutation commits.
var (
	ErrContractExpired            = errors.New("contract has expired")
	ErrNotExpired                 = errors.New("contract has not expired")
	ErrOutsideExerciseWindow      = errors.New("outside exercise window")
	ErrZeroAmount                 = errors.New("amount must be positive")
	ErrUnsafeMint                 = errors.New("issuance would leave vault unsafe")
	ErrWouldBeUnsafe              = errors.New("removal would leave vault unsafe")
	ErrNoUnderlyingBalance        = errors.New("no underlying balance")
	ErrNothingToRedeem            = errors.New("vault has no balances to redeem")
	ErrZeroExercise               = errors.New("exercise count must be positive")
	ErrExceedsVaultObligations    = errors.New("count exceeds vault obligations")
	ErrInsufficientCallerBalance  = errors.New("caller holds insufficient obligation tokens")
	ErrZeroUnderlying             = errors.New("derived underlying amount is zero")
	ErrVaultUnderwater            = errors.New("vault collateral below exercise payout")
	ErrInsufficientVaultsSupplied = errors.New("supplied vaults cannot cover requested amount")
	ErrVaultIsSafe                = errors.New("vault is not eligible for liquidation")
	ErrSelfLiquidation            = errors.New("cannot liquidate own vault")
	ErrExceedsLiquidationFactor   = errors.New("payout exceeds liquidation factor cap")
	ErrNotOwner                   = errors.New("caller is not the contract owner")
)
