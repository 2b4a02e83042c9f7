package fixedpoint_test

import (
	"math"
	"math/big"
	"testing"

	"OptionVault/internal/fixedpoint"
)

// ============================================================================
// Test: Apply / ApplyInverse
// ============================================================================

func TestApply_PositiveExponent(t *testing.T) {
	r := fixedpoint.New(3, 2) // 300
	got := r.Apply(big.NewInt(7))
	if got.Cmp(big.NewInt(2100)) != 0 {
		t.Errorf("got %s, want 2100", got)
	}
}

func TestApply_NegativeExponentTruncates(t *testing.T) {
	r := fixedpoint.New(16, -1) // 1.6
	got := r.Apply(big.NewInt(105))
	// 105 * 16 = 1680; 1680 / 10 = 168
	if got.Cmp(big.NewInt(168)) != 0 {
		t.Errorf("got %s, want 168", got)
	}

	got = r.Apply(big.NewInt(3))
	// 3 * 16 = 48; 48 / 10 truncates to 4
	if got.Cmp(big.NewInt(4)) != 0 {
		t.Errorf("got %s, want 4", got)
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	amount := big.NewInt(100)
	fixedpoint.New(2, 0).Apply(amount)
	if amount.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("input mutated to %s", amount)
	}
}

func TestApplyInverse_Truncates(t *testing.T) {
	r := fixedpoint.New(16, -1) // 1.6
	got := r.ApplyInverse(big.NewInt(1_600_000))
	if got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Errorf("got %s, want 1000000", got)
	}

	got = r.ApplyInverse(big.NewInt(1_599_999))
	if got.Cmp(big.NewInt(999_999)) != 0 {
		t.Errorf("got %s, want 999999", got)
	}
}

func TestApplyInverse_RoundTripLowerBound(t *testing.T) {
	// ApplyInverse returns the largest n with Apply(n) <= amount.
	r := fixedpoint.New(7, -1)
	amount := big.NewInt(1234)
	n := r.ApplyInverse(amount)
	if r.Apply(n).Cmp(amount) > 0 {
		t.Errorf("Apply(ApplyInverse(%s)) = %s exceeds input", amount, r.Apply(n))
	}
	next := new(big.Int).Add(n, big.NewInt(1))
	if r.Apply(next).Cmp(amount) <= 0 {
		t.Errorf("ApplyInverse(%s) = %s is not maximal", amount, n)
	}
}

// ============================================================================
// Test: Mul / Add overflow behavior
// ============================================================================

func TestMul_CombinesValuesAndExponents(t *testing.T) {
	got, err := fixedpoint.New(16, -1).Mul(fixedpoint.New(3, 2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Value != 48 || got.Exponent != 1 {
		t.Errorf("got %s, want 48e1", got)
	}
}

func TestMul_Overflow(t *testing.T) {
	_, err := fixedpoint.New(math.MaxInt64, 0).Mul(fixedpoint.New(2, 0))
	if err == nil {
		t.Fatal("expected overflow error, got nil")
	}
}

func TestAdd_UnifiesExponents(t *testing.T) {
	// 1.0 + 0.1 = 1.1
	got, err := fixedpoint.One().Add(fixedpoint.New(1, -1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Value != 11 || got.Exponent != -1 {
		t.Errorf("got %s, want 11e-1", got)
	}
}

func TestAdd_Overflow(t *testing.T) {
	_, err := fixedpoint.New(math.MaxInt64, 0).Add(fixedpoint.New(math.MaxInt64, 0))
	if err == nil {
		t.Fatal("expected overflow error, got nil")
	}
}

func TestAdd_RescaleOverflow(t *testing.T) {
	// Rescaling MaxInt64 down 10 decimal places cannot fit.
	_, err := fixedpoint.New(math.MaxInt64, 0).Add(fixedpoint.New(1, -10))
	if err == nil {
		t.Fatal("expected rescale overflow error, got nil")
	}
}

// ============================================================================
// Test: Cmp
// ============================================================================

func TestCmp(t *testing.T) {
	cases := []struct {
		a, b fixedpoint.Ratio
		want int
	}{
		{fixedpoint.New(1, 0), fixedpoint.New(10, -1), 0},
		{fixedpoint.New(16, -1), fixedpoint.One(), 1},
		{fixedpoint.New(9, -1), fixedpoint.One(), -1},
		{fixedpoint.New(2, 2), fixedpoint.New(200, 0), 0},
	}
	for _, c := range cases {
		if got := c.a.Cmp(c.b); got != c.want {
			t.Errorf("Cmp(%s, %s) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

// ============================================================================
// Test: Pow10
// ============================================================================

func TestPow10(t *testing.T) {
	if got := fixedpoint.Pow10(0); got.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("Pow10(0) = %s, want 1", got)
	}
	if got := fixedpoint.Pow10(6); got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Errorf("Pow10(6) = %s, want 1000000", got)
	}
}

func TestPow10_NegativePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for negative exponent")
		}
	}()
	fixedpoint.Pow10(-1)
}
