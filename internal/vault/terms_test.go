package vault_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"OptionVault/internal/fixedpoint"
	"OptionVault/internal/vault"
)

var (
	collateralAsset = common.Address{}
	underlyingAsset = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	strikeAsset     = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func mustTerms(t *testing.T, expiry time.Time, window time.Duration, now time.Time) *vault.Terms {
	t.Helper()
	terms, err := vault.NewTerms(collateralAsset, underlyingAsset, strikeAsset,
		fixedpoint.One(), expiry, window, now)
	if err != nil {
		t.Fatalf("NewTerms: %v", err)
	}
	return terms
}

// ============================================================================
// Test: construction validation
// ============================================================================

func TestNewTerms_ExpiryNotAfterNow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := vault.NewTerms(collateralAsset, underlyingAsset, strikeAsset,
		fixedpoint.One(), now, time.Hour, now)
	if err == nil {
		t.Error("expected error for expiry equal to now, got nil")
	}

	_, err = vault.NewTerms(collateralAsset, underlyingAsset, strikeAsset,
		fixedpoint.One(), now.Add(-time.Second), time.Hour, now)
	if err == nil {
		t.Error("expected error for expiry before now, got nil")
	}
}

func TestNewTerms_NegativeWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := vault.NewTerms(collateralAsset, underlyingAsset, strikeAsset,
		fixedpoint.One(), now.Add(time.Hour), -time.Second, now)
	if err == nil {
		t.Error("expected error for negative window, got nil")
	}
}

// ============================================================================
// Test: expiry and window boundaries
// ============================================================================

func TestExpired_Boundary(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expiry := now.Add(24 * time.Hour)
	terms := mustTerms(t, expiry, time.Hour, now)

	if terms.Expired(expiry.Add(-time.Nanosecond)) {
		t.Error("expired just before expiry instant")
	}
	if !terms.Expired(expiry) {
		t.Error("not expired at exactly the expiry instant")
	}
	if !terms.Expired(expiry.Add(time.Hour)) {
		t.Error("not expired after expiry")
	}
}

func TestInExerciseWindow_HalfOpenInterval(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expiry := now.Add(48 * time.Hour)
	window := 24 * time.Hour
	terms := mustTerms(t, expiry, window, now)

	open := expiry.Add(-window)
	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before window opens", open.Add(-time.Nanosecond), false},
		{"at window open", open, true},
		{"mid window", expiry.Add(-time.Hour), true},
		{"just before expiry", expiry.Add(-time.Nanosecond), true},
		{"at expiry", expiry, false},
		{"after expiry", expiry.Add(time.Hour), false},
	}
	for _, c := range cases {
		if got := terms.InExerciseWindow(c.at); got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestInExerciseWindow_ZeroWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expiry := now.Add(time.Hour)
	terms := mustTerms(t, expiry, 0, now)

	// [expiry, expiry) is empty; exercise is never possible.
	if terms.InExerciseWindow(expiry.Add(-time.Nanosecond)) || terms.InExerciseWindow(expiry) {
		t.Error("zero-length window admitted an instant")
	}
}

// ============================================================================
// Test: same-asset detection
// ============================================================================

func TestSameCollateralAndStrike(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	terms, err := vault.NewTerms(collateralAsset, underlyingAsset, collateralAsset,
		fixedpoint.One(), now.Add(time.Hour), 0, now)
	if err != nil {
		t.Fatalf("NewTerms: %v", err)
	}
	if !terms.SameCollateralAndStrike() {
		t.Error("same asset not detected")
	}

	terms = mustTerms(t, now.Add(time.Hour), 0, now)
	if terms.SameCollateralAndStrike() {
		t.Error("distinct assets reported as same")
	}
}
