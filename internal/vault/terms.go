package vault

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"OptionVault/internal/fixedpoint"
)

// Terms are the immutable parameters of one option series: the assets
// involved, the strike rate per obligation unit, the expiry instant, and
// the exercise window length. The exercise window is the half-open
// interval [Expiry-WindowSize, Expiry).
type Terms struct {
	CollateralAsset common.Address
	UnderlyingAsset common.Address
	StrikeAsset     common.Address
	StrikePrice     fixedpoint.Ratio
	Expiry          time.Time
	WindowSize      time.Duration
}

// NewTerms validates and constructs series terms. Construction must
// happen strictly before expiry, and the window cannot be negative or
// reach back before the series could have existed.
func NewTerms(
	collateralAsset, underlyingAsset, strikeAsset common.Address,
	strikePrice fixedpoint.Ratio,
	expiry time.Time,
	windowSize time.Duration,
	now time.Time,
) (*Terms, error) {
	if !now.Before(expiry) {
		return nil, fmt.Errorf("expiry %s is not after construction time %s", expiry, now)
	}
	if windowSize < 0 {
		return nil, fmt.Errorf("window size %s is negative", windowSize)
	}
	if windowSize > expiry.Sub(time.Unix(0, 0)) {
		return nil, fmt.Errorf("window size %s exceeds expiry %s", windowSize, expiry)
	}
	return &Terms{
		CollateralAsset: collateralAsset,
		UnderlyingAsset: underlyingAsset,
		StrikeAsset:     strikeAsset,
		StrikePrice:     strikePrice,
		Expiry:          expiry,
		WindowSize:      windowSize,
	}, nil
}

// Expired reports whether the series is past expiry at the given time.
func (t *Terms) Expired(now time.Time) bool {
	return !now.Before(t.Expiry)
}

// InExerciseWindow reports whether the given time falls inside
// [Expiry-WindowSize, Expiry).
func (t *Terms) InExerciseWindow(now time.Time) bool {
	return !now.Before(t.Expiry.Add(-t.WindowSize)) && now.Before(t.Expiry)
}

// SameCollateralAndStrike reports whether the collateral and strike
// assets are identical, in which case both prices are treated as 1 and
// the oracle is never consulted.
func (t *Terms) SameCollateralAndStrike() bool {
	return t.CollateralAsset == t.StrikeAsset
}
