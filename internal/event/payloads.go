package event

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// VaultOpened is emitted once per distinct owner, on registry append.
type VaultOpened struct {
	Owner common.Address `json:"owner"`
}

// CollateralAdded carries the amount deposited and the new balance.
type CollateralAdded struct {
	Owner      common.Address `json:"owner"`
	Amount     *big.Int       `json:"amount"`
	NewBalance *big.Int       `json:"new_balance"`
}

// ObligationsIssued is emitted when a vault mints obligation tokens.
type ObligationsIssued struct {
	Owner    common.Address `json:"owner"`
	Receiver common.Address `json:"receiver"`
	Count    *big.Int       `json:"count"`
}

// ObligationsBurned is emitted when a vault owner burns their own tokens.
type ObligationsBurned struct {
	Owner common.Address `json:"owner"`
	Count *big.Int       `json:"count"`
}

// CollateralRemoved carries the amount withdrawn and the new balance.
type CollateralRemoved struct {
	Owner      common.Address `json:"owner"`
	Amount     *big.Int       `json:"amount"`
	NewBalance *big.Int       `json:"new_balance"`
}

// UnderlyingRemoved is emitted when a vault owner withdraws underlying
// owed from exercises.
type UnderlyingRemoved struct {
	Owner  common.Address `json:"owner"`
	Amount *big.Int       `json:"amount"`
}

// Exercised is emitted once per vault settled within an exercise call.
type Exercised struct {
	Exerciser      common.Address `json:"exerciser"`
	VaultOwner     common.Address `json:"vault_owner"`
	Count          *big.Int       `json:"count"`
	CollateralPaid *big.Int       `json:"collateral_paid"`
	UnderlyingPaid *big.Int       `json:"underlying_paid"`
}

// Liquidated is emitted on a successful partial liquidation.
type Liquidated struct {
	Liquidator     common.Address `json:"liquidator"`
	VaultOwner     common.Address `json:"vault_owner"`
	Count          *big.Int       `json:"count"`
	CollateralPaid *big.Int       `json:"collateral_paid"`
	Incentive      *big.Int       `json:"incentive"`
}

// VaultRedeemed is emitted on post-expiry redemption of a vault's balances.
type VaultRedeemed struct {
	Owner             common.Address `json:"owner"`
	CollateralPaid    *big.Int       `json:"collateral_paid"`
	UnderlyingPaid    *big.Int       `json:"underlying_paid"`
	ObligationsVoided *big.Int       `json:"obligations_voided"`
}

// ParametersUpdated records the new risk parameters as value/exponent pairs.
type ParametersUpdated struct {
	IncentiveValue int64 `json:"incentive_value"`
	IncentiveExp   int32 `json:"incentive_exp"`
	FactorValue    int64 `json:"factor_value"`
	FactorExp      int32 `json:"factor_exp"`
	MinRatioValue  int64 `json:"min_ratio_value"`
	MinRatioExp    int32 `json:"min_ratio_exp"`
}
