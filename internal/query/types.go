package query

import "time"

// Amounts are decimal strings: projection columns are NUMERIC(78,0) and
// the engine works in big.Int, so int64 would silently truncate.

// VaultResponse is the projected state of one vault.
type VaultResponse struct {
	Owner        string    `json:"owner"`
	Collateral   string    `json:"collateral"`
	Obligations  string    `json:"obligations"`
	Underlying   string    `json:"underlying"`
	Redeemed     bool      `json:"redeemed"`
	OpenedAt     time.Time `json:"opened_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// ExerciseHistoryResponse is one settled exercise leg.
type ExerciseHistoryResponse struct {
	Sequence       int64     `json:"sequence"`
	Exerciser      string    `json:"exerciser"`
	VaultOwner     string    `json:"vault_owner"`
	Count          string    `json:"count"`
	CollateralPaid string    `json:"collateral_paid"`
	UnderlyingPaid string    `json:"underlying_paid"`
	Timestamp      time.Time `json:"timestamp"`
	AsOfSequence   int64     `json:"as_of_sequence"`
}

// LiquidationHistoryResponse is one executed liquidation.
type LiquidationHistoryResponse struct {
	Sequence       int64     `json:"sequence"`
	Liquidator     string    `json:"liquidator"`
	VaultOwner     string    `json:"vault_owner"`
	Count          string    `json:"count"`
	CollateralPaid string    `json:"collateral_paid"`
	Timestamp      time.Time `json:"timestamp"`
	AsOfSequence   int64     `json:"as_of_sequence"`
}
