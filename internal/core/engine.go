package core

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"OptionVault/internal/event"
	"OptionVault/internal/fixedpoint"
	"OptionVault/internal/observability"
	"OptionVault/internal/oracle"
	"OptionVault/internal/risk"
	"OptionVault/internal/token"
	"OptionVault/internal/vault"
)

// Output is one committed event leaving the engine.
type Output struct {
	Envelope event.Envelope
}

// Engine owns all mutable state of one option series: the vault ledger
// and the risk parameters. It processes one operation at a time and
// never reads the wall clock: every time-gated operation takes a
// versioned `now` supplied by the caller. Each successful mutating
// operation emits exactly one event per affected vault: a blocking send
// to the persist channel (no event loss) and a non-blocking send to the
// publish channel (drop on full).
type Engine struct {
	log    zerolog.Logger
	terms  *vault.Terms
	params *vault.ParamsManager
	ledger *vault.Ledger
	risk   *risk.Engine

	obligations token.ObligationToken
	assets      token.AssetTransfer
	guard       token.Guard
	oracle      *oracle.Adapter

	metrics  *observability.Metrics
	sequence int64

	persistChan chan<- Output
	publishChan chan<- Output
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Terms       *vault.Terms
	Params      *vault.ParamsManager
	Ledger      *vault.Ledger
	Obligations token.ObligationToken
	Assets      token.AssetTransfer
	Guard       token.Guard
	Oracle      *oracle.Adapter
	Metrics     *observability.Metrics

	PersistChan chan<- Output
	PublishChan chan<- Output

	StartSequence int64
	Logger        zerolog.Logger
}

func NewEngine(d Deps) *Engine {
	return &Engine{
		log:         d.Logger,
		terms:       d.Terms,
		params:      d.Params,
		ledger:      d.Ledger,
		risk:        risk.NewEngine(d.Terms, d.Params, d.Oracle),
		obligations: d.Obligations,
		assets:      d.Assets,
		guard:       d.Guard,
		oracle:      d.Oracle,
		metrics:     d.Metrics,
		sequence:    d.StartSequence,
		persistChan: d.PersistChan,
		publishChan: d.PublishChan,
	}
}

// Sequence returns the next sequence number to be assigned.
func (e *Engine) Sequence() int64 {
	return e.sequence
}

// Terms returns the immutable series terms.
func (e *Engine) Terms() *vault.Terms {
	return e.terms
}

// Params returns the risk parameters in effect.
func (e *Engine) Params() vault.Params {
	return e.params.Current()
}

// Ledger exposes the vault ledger for read-only queries. Callers must
// go through the same serialized loop as mutations.
func (e *Engine) Ledger() *vault.Ledger {
	return e.ledger
}

// Risk exposes the collateralization engine for read-only queries.
func (e *Engine) Risk() *risk.Engine {
	return e.risk
}

// OpenVault creates a zero-valued vault for the owner and appends the
// owner to the registry. Re-opening always fails.
func (e *Engine) OpenVault(owner common.Address, now time.Time) error {
	return e.instrument("open_vault", func() error {
		if _, err := e.ledger.Open(owner); err != nil {
			return err
		}
		if e.metrics != nil {
			e.metrics.VaultsOpen.Set(float64(e.ledger.Len()))
		}
		e.emit(event.TypeVaultOpened, event.VaultOpened{Owner: owner}, now)
		return nil
	})
}

// AddCollateral pulls `amount` of the collateral asset from the owner
// into the pool and credits the vault, returning the new balance.
func (e *Engine) AddCollateral(owner common.Address, amount *big.Int, now time.Time) (*big.Int, error) {
	var newBalance *big.Int
	err := e.instrument("add_collateral", func() error {
		if e.terms.Expired(now) {
			return ErrContractExpired
		}
		if _, err := e.ledger.Get(owner); err != nil {
			return err
		}
		if amount.Sign() < 0 {
			return fmt.Errorf("%w: %s", ErrZeroAmount, amount)
		}
		if err := e.assets.TransferIn(e.terms.CollateralAsset, owner, amount); err != nil {
			return fmt.Errorf("collateral transfer in: %w", err)
		}
		bal, err := e.ledger.AddCollateral(owner, amount)
		if err != nil {
			return err
		}
		newBalance = bal
		e.emit(event.TypeCollateralAdded, event.CollateralAdded{
			Owner:      owner,
			Amount:     new(big.Int).Set(amount),
			NewBalance: new(big.Int).Set(bal),
		}, now)
		return nil
	})
	return newBalance, err
}

// IssueObligations mints `count` obligation tokens to the receiver
// against the owner's vault, guarded by the safety predicate.
func (e *Engine) IssueObligations(owner, receiver common.Address, count *big.Int, now time.Time) error {
	return e.instrument("issue_obligations", func() error {
		if e.terms.Expired(now) {
			return ErrContractExpired
		}
		v, err := e.ledger.Get(owner)
		if err != nil {
			return err
		}
		if count.Sign() < 0 {
			return fmt.Errorf("%w: %s", ErrZeroAmount, count)
		}
		hypothetical := new(big.Int).Add(v.Obligations, count)
		safe, err := e.risk.IsSafe(v.Collateral, hypothetical)
		if err != nil {
			return err
		}
		if !safe {
			return fmt.Errorf("%w: %s obligations against %s collateral", ErrUnsafeMint, hypothetical, v.Collateral)
		}
		if err := e.obligations.Mint(receiver, count); err != nil {
			return fmt.Errorf("obligation mint: %w", err)
		}
		if err := e.ledger.AddObligations(owner, count); err != nil {
			return err
		}
		e.emit(event.TypeObligationsIssued, event.ObligationsIssued{
			Owner:    owner,
			Receiver: receiver,
			Count:    new(big.Int).Set(count),
		}, now)
		return nil
	})
}

// BurnObligations burns `count` of the owner's own obligation tokens
// and reduces the vault's outstanding count.
func (e *Engine) BurnObligations(owner common.Address, count *big.Int, now time.Time) error {
	return e.instrument("burn_obligations", func() error {
		if e.terms.Expired(now) {
			return ErrContractExpired
		}
		v, err := e.ledger.Get(owner)
		if err != nil {
			return err
		}
		if count.Sign() <= 0 {
			return fmt.Errorf("%w: %s", ErrZeroAmount, count)
		}
		if v.Obligations.Cmp(count) < 0 {
			return fmt.Errorf("%w: burn %s of %s", vault.ErrUnderflow, count, v.Obligations)
		}
		if err := e.obligations.Burn(owner, count); err != nil {
			return fmt.Errorf("obligation burn: %w", err)
		}
		if err := e.ledger.RemoveObligations(owner, count); err != nil {
			return err
		}
		e.emit(event.TypeObligationsBurned, event.ObligationsBurned{
			Owner: owner,
			Count: new(big.Int).Set(count),
		}, now)
		return nil
	})
}

// RemoveCollateral withdraws collateral from the vault, rejecting any
// removal that would leave the vault unsafe.
func (e *Engine) RemoveCollateral(owner common.Address, amount *big.Int, now time.Time) error {
	return e.instrument("remove_collateral", func() error {
		if e.terms.Expired(now) {
			return ErrContractExpired
		}
		v, err := e.ledger.Get(owner)
		if err != nil {
			return err
		}
		if amount.Sign() <= 0 {
			return fmt.Errorf("%w: %s", ErrZeroAmount, amount)
		}
		if v.Collateral.Cmp(amount) < 0 {
			return fmt.Errorf("%w: have %s, remove %s", vault.ErrInsufficientCollateral, v.Collateral, amount)
		}
		hypothetical := new(big.Int).Sub(v.Collateral, amount)
		safe, err := e.risk.IsSafe(hypothetical, v.Obligations)
		if err != nil {
			return err
		}
		if !safe {
			return fmt.Errorf("%w: %s collateral against %s obligations", ErrWouldBeUnsafe, hypothetical, v.Obligations)
		}
		if err := e.assets.TransferOut(e.terms.CollateralAsset, owner, amount); err != nil {
			return fmt.Errorf("collateral transfer out: %w", err)
		}
		if err := e.ledger.RemoveCollateral(owner, amount); err != nil {
			return err
		}
		e.emit(event.TypeCollateralRemoved, event.CollateralRemoved{
			Owner:      owner,
			Amount:     new(big.Int).Set(amount),
			NewBalance: new(big.Int).Set(v.Collateral),
		}, now)
		return nil
	})
}

// RemoveUnderlying withdraws the vault's full underlying balance.
// Underlying owed from exercises is not subject to the exercise window
// or expiry; this is callable at any time.
func (e *Engine) RemoveUnderlying(owner common.Address, now time.Time) (*big.Int, error) {
	var withdrawn *big.Int
	err := e.instrument("remove_underlying", func() error {
		v, err := e.ledger.Get(owner)
		if err != nil {
			return err
		}
		if v.Underlying.Sign() == 0 {
			return ErrNoUnderlyingBalance
		}
		amount := new(big.Int).Set(v.Underlying)
		if err := e.assets.TransferOut(e.terms.UnderlyingAsset, owner, amount); err != nil {
			return fmt.Errorf("underlying transfer out: %w", err)
		}
		if _, err := e.ledger.ClearUnderlying(owner); err != nil {
			return err
		}
		withdrawn = amount
		e.emit(event.TypeUnderlyingRemoved, event.UnderlyingRemoved{
			Owner:  owner,
			Amount: amount,
		}, now)
		return nil
	})
	return withdrawn, err
}

// RedeemVaultBalance pays out a vault's remaining collateral and
// underlying after expiry and zeroes all three balances. Obligation
// tokens still held against the vault become worthless. The vault
// record keeps existing; a second redeem fails.
func (e *Engine) RedeemVaultBalance(owner common.Address, now time.Time) error {
	return e.instrument("redeem_vault", func() error {
		if !e.terms.Expired(now) {
			return ErrNotExpired
		}
		v, err := e.ledger.Get(owner)
		if err != nil {
			return err
		}
		if v.Collateral.Sign() == 0 && v.Underlying.Sign() == 0 {
			return ErrNothingToRedeem
		}
		collateral := new(big.Int).Set(v.Collateral)
		underlying := new(big.Int).Set(v.Underlying)
		voided := new(big.Int).Set(v.Obligations)
		if collateral.Sign() > 0 {
			if err := e.assets.TransferOut(e.terms.CollateralAsset, owner, collateral); err != nil {
				return fmt.Errorf("redeem collateral transfer: %w", err)
			}
		}
		if underlying.Sign() > 0 {
			if err := e.assets.TransferOut(e.terms.UnderlyingAsset, owner, underlying); err != nil {
				return fmt.Errorf("redeem underlying transfer: %w", err)
			}
		}
		if _, _, err := e.ledger.ZeroOut(owner); err != nil {
			return err
		}
		e.emit(event.TypeVaultRedeemed, event.VaultRedeemed{
			Owner:             owner,
			CollateralPaid:    collateral,
			UnderlyingPaid:    underlying,
			ObligationsVoided: voided,
		}, now)
		return nil
	})
}

// Liquidate closes out part of an unsafe vault: the liquidator burns
// `count` obligation tokens and receives the equivalent collateral plus
// the incentive, bounded per call by the liquidation factor cap.
func (e *Engine) Liquidate(liquidator, owner common.Address, count *big.Int, now time.Time) error {
	return e.instrument("liquidate", func() error {
		if e.terms.Expired(now) {
			return ErrContractExpired
		}
		v, err := e.ledger.Get(owner)
		if err != nil {
			return err
		}
		unsafe, err := e.risk.IsUnsafe(v)
		if err != nil {
			return err
		}
		if !unsafe {
			return ErrVaultIsSafe
		}
		if liquidator == owner {
			return ErrSelfLiquidation
		}
		if count.Sign() <= 0 {
			return fmt.Errorf("%w: %s", ErrZeroAmount, count)
		}
		if v.Obligations.Cmp(count) < 0 {
			return fmt.Errorf("%w: %s of %s", ErrExceedsVaultObligations, count, v.Obligations)
		}
		_, incentive, total, err := e.risk.LiquidationPayout(count)
		if err != nil {
			return err
		}
		capAmount := e.risk.MaxCollateralLiquidatable(v)
		if total.Cmp(capAmount) > 0 {
			return fmt.Errorf("%w: pay %s, cap %s", ErrExceedsLiquidationFactor, total, capAmount)
		}
		if err := e.obligations.Burn(liquidator, count); err != nil {
			return fmt.Errorf("obligation burn: %w", err)
		}
		if err := e.assets.TransferOut(e.terms.CollateralAsset, liquidator, total); err != nil {
			return fmt.Errorf("liquidation payout: %w", err)
		}
		if err := e.ledger.RemoveObligations(owner, count); err != nil {
			return err
		}
		if err := e.ledger.RemoveCollateral(owner, total); err != nil {
			return err
		}
		if e.metrics != nil {
			e.metrics.LiquidationsExecuted.Inc()
		}
		e.emit(event.TypeLiquidated, event.Liquidated{
			Liquidator:     liquidator,
			VaultOwner:     owner,
			Count:          new(big.Int).Set(count),
			CollateralPaid: total,
			Incentive:      incentive,
		}, now)
		return nil
	})
}

// UpdateParameters replaces the risk parameters. Owner-gated.
func (e *Engine) UpdateParameters(caller common.Address, p vault.Params, now time.Time) error {
	return e.instrument("update_parameters", func() error {
		if !e.guard.IsOwner(caller) {
			return ErrNotOwner
		}
		if err := e.params.Update(p); err != nil {
			return err
		}
		e.emit(event.TypeParametersUpdated, event.ParametersUpdated{
			IncentiveValue: p.LiquidationIncentive.Value,
			IncentiveExp:   p.LiquidationIncentive.Exponent,
			FactorValue:    p.LiquidationFactor.Value,
			FactorExp:      p.LiquidationFactor.Exponent,
			MinRatioValue:  p.MinCollateralizationRatio.Value,
			MinRatioExp:    p.MinCollateralizationRatio.Exponent,
		}, now)
		return nil
	})
}

// SetDetails updates the obligation token's name and symbol. Owner-gated.
func (e *Engine) SetDetails(caller common.Address, name, symbol string) error {
	return e.instrument("set_details", func() error {
		if !e.guard.IsOwner(caller) {
			return ErrNotOwner
		}
		e.obligations.SetDetails(name, symbol)
		e.log.Info().Str("name", name).Str("symbol", symbol).Msg("token details updated")
		return nil
	})
}

// MaxObligationsLiquidatable returns the liquidation headroom for a
// vault: 0 when safe, otherwise the obligation count whose principal
// plus incentive fills the per-call collateral cap.
func (e *Engine) MaxObligationsLiquidatable(owner common.Address) (*big.Int, error) {
	v, err := e.ledger.Get(owner)
	if err != nil {
		return nil, err
	}
	return e.risk.MaxObligationsLiquidatable(v)
}

// VaultIsSafe evaluates the safety predicate on a vault's current state.
func (e *Engine) VaultIsSafe(owner common.Address) (bool, error) {
	v, err := e.ledger.Get(owner)
	if err != nil {
		return false, err
	}
	return e.risk.IsSafe(v.Collateral, v.Obligations)
}

// instrument wraps an operation with metrics and structured logging.
func (e *Engine) instrument(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	if e.metrics != nil {
		if err != nil {
			e.metrics.OpsRejected.WithLabelValues(op, rejectReason(err)).Inc()
		} else {
			e.metrics.OpsApplied.WithLabelValues(op).Inc()
			e.metrics.EngineSequence.Set(float64(e.sequence))
		}
		e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		e.log.Debug().Str("op", op).Err(err).Msg("operation rejected")
	}
	return err
}

// emit assigns the next sequence and sends the event to both channels.
// The persist send blocks (backpressure, no event loss); the publish
// send drops on full; downstream consumers rebuild from the event log.
func (e *Engine) emit(t event.Type, payload interface{}, now time.Time) {
	env := event.Envelope{
		Sequence:  e.sequence,
		EventID:   uuid.New(),
		Type:      t,
		Timestamp: now,
		Payload:   payload,
	}
	e.sequence++

	out := Output{Envelope: env}
	if e.persistChan != nil {
		e.persistChan <- out
	}
	if e.publishChan != nil {
		select {
		case e.publishChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.PublishDrops.Inc()
			}
		}
	}
}

// rejectReason maps a rejection to a bounded metrics label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, vault.ErrVaultNotFound):
		return "not_found"
	case errors.Is(err, vault.ErrVaultAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrContractExpired), errors.Is(err, ErrNotExpired):
		return "time_gate"
	case errors.Is(err, ErrOutsideExerciseWindow):
		return "window"
	case errors.Is(err, ErrUnsafeMint), errors.Is(err, ErrWouldBeUnsafe):
		return "unsafe"
	case errors.Is(err, ErrVaultIsSafe), errors.Is(err, ErrSelfLiquidation),
		errors.Is(err, ErrExceedsLiquidationFactor):
		return "liquidation_guard"
	case errors.Is(err, risk.ErrDecimalOverflow), errors.Is(err, oracle.ErrUnsupportedPrecision):
		return "precision"
	default:
		return "rejected"
	}
}

// ExportState captures the engine state for snapshots.
func (e *Engine) ExportState() EngineState {
	p := e.params.Current()
	return EngineState{
		Sequence: e.sequence,
		Ledger:   e.ledger.ExportState(),
		Params: ParamsState{
			IncentiveValue: p.LiquidationIncentive.Value,
			IncentiveExp:   p.LiquidationIncentive.Exponent,
			FactorValue:    p.LiquidationFactor.Value,
			FactorExp:      p.LiquidationFactor.Exponent,
			MinRatioValue:  p.MinCollateralizationRatio.Value,
			MinRatioExp:    p.MinCollateralizationRatio.Exponent,
		},
	}
}

// RestoreState replaces the engine state from a snapshot.
func (e *Engine) RestoreState(st EngineState) error {
	if err := e.ledger.RestoreState(st.Ledger); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	if err := e.params.Update(vault.Params{
		LiquidationIncentive:      fixedpoint.New(st.Params.IncentiveValue, st.Params.IncentiveExp),
		LiquidationFactor:         fixedpoint.New(st.Params.FactorValue, st.Params.FactorExp),
		MinCollateralizationRatio: fixedpoint.New(st.Params.MinRatioValue, st.Params.MinRatioExp),
	}); err != nil {
		return fmt.Errorf("restore params: %w", err)
	}
	e.sequence = st.Sequence
	if e.metrics != nil {
		e.metrics.VaultsOpen.Set(float64(e.ledger.Len()))
		e.metrics.EngineSequence.Set(float64(e.sequence))
	}
	return nil
}

// EngineState is the JSON-serializable engine snapshot.
type EngineState struct {
	Sequence int64       `json:"sequence"`
	Ledger   vault.State `json:"ledger"`
	Params   ParamsState `json:"params"`
}

// ParamsState carries risk parameters as value/exponent pairs.
type ParamsState struct {
	IncentiveValue int64 `json:"incentive_value"`
	IncentiveExp   int32 `json:"incentive_exp"`
	FactorValue    int64 `json:"factor_value"`
	FactorExp      int32 `json:"factor_exp"`
	MinRatioValue  int64 `json:"min_ratio_value"`
	MinRatioExp    int32 `json:"min_ratio_exp"`
}
