package fixedpoint

import (
	"fmt"
	"math/big"
)

// Ratio is a dimensionless decimal represented as Value * 10^Exponent.
// Risk parameters (liquidation incentive, liquidation factor, minimum
// collateralization ratio) and the strike price are all carried in this
// form so that they can be combined with integer token amounts without
// native fractional arithmetic. Division always truncates toward zero.
type Ratio struct {
	Value    int64
	Exponent int32
}

// New constructs a Ratio from a value and a base-10 exponent.
func New(value int64, exponent int32) Ratio {
	return Ratio{Value: value, Exponent: exponent}
}

// Zero is the zero ratio.
func Zero() Ratio {
	return Ratio{Value: 0, Exponent: 0}
}

// One is the ratio 1.0.
func One() Ratio {
	return Ratio{Value: 1, Exponent: 0}
}

func (r Ratio) IsZero() bool {
	return r.Value == 0
}

func (r Ratio) String() string {
	return fmt.Sprintf("%de%d", r.Value, r.Exponent)
}

// Pow10 returns 10^n as a big.Int. n must be non-negative.
func Pow10(n int32) *big.Int {
	if n < 0 {
		panic(fmt.Sprintf("fixedpoint: Pow10 with negative exponent %d", n))
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// Apply multiplies an integer amount by the ratio: the amount is scaled
// by Value first, then by 10^Exponent, dividing (floor) when the exponent
// is negative. The input is not modified.
func (r Ratio) Apply(amount *big.Int) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(r.Value))
	if r.Exponent >= 0 {
		return out.Mul(out, Pow10(r.Exponent))
	}
	return out.Quo(out, Pow10(-r.Exponent))
}

// ApplyInverse divides an integer amount by the ratio with truncation:
// the largest n such that r.Apply(n) <= amount for positive ratios.
func (r Ratio) ApplyInverse(amount *big.Int) *big.Int {
	if r.Value == 0 {
		panic("fixedpoint: ApplyInverse by zero ratio")
	}
	out := new(big.Int).Set(amount)
	if r.Exponent >= 0 {
		den := new(big.Int).Mul(big.NewInt(r.Value), Pow10(r.Exponent))
		return out.Quo(out, den)
	}
	out.Mul(out, Pow10(-r.Exponent))
	return out.Quo(out, big.NewInt(r.Value))
}

// Mul multiplies two ratios. Values multiply and exponents add; the
// operation fails instead of wrapping if the value product does not fit
// in an int64.
func (r Ratio) Mul(o Ratio) (Ratio, error) {
	prod := new(big.Int).Mul(big.NewInt(r.Value), big.NewInt(o.Value))
	if !prod.IsInt64() {
		return Ratio{}, fmt.Errorf("fixedpoint: ratio multiplication overflow: %s * %s", r, o)
	}
	return Ratio{Value: prod.Int64(), Exponent: r.Exponent + o.Exponent}, nil
}

// Add sums two ratios after unifying their exponents to the smaller of
// the two. Fails instead of wrapping on overflow.
func (r Ratio) Add(o Ratio) (Ratio, error) {
	exp := r.Exponent
	if o.Exponent < exp {
		exp = o.Exponent
	}
	a, err := rescale(r, exp)
	if err != nil {
		return Ratio{}, err
	}
	b, err := rescale(o, exp)
	if err != nil {
		return Ratio{}, err
	}
	sum := new(big.Int).Add(big.NewInt(a), big.NewInt(b))
	if !sum.IsInt64() {
		return Ratio{}, fmt.Errorf("fixedpoint: ratio addition overflow: %s + %s", r, o)
	}
	return Ratio{Value: sum.Int64(), Exponent: exp}, nil
}

// Cmp compares two ratios numerically: -1 if r < o, 0 if equal, +1 if r > o.
func (r Ratio) Cmp(o Ratio) int {
	exp := r.Exponent
	if o.Exponent < exp {
		exp = o.Exponent
	}
	a := new(big.Int).Mul(big.NewInt(r.Value), Pow10(r.Exponent-exp))
	b := new(big.Int).Mul(big.NewInt(o.Value), Pow10(o.Exponent-exp))
	return a.Cmp(b)
}

// rescale re-expresses v at a smaller exponent, multiplying the value.
func rescale(v Ratio, exp int32) (int64, error) {
	if exp > v.Exponent {
		panic("fixedpoint: rescale to larger exponent")
	}
	scaled := new(big.Int).Mul(big.NewInt(v.Value), Pow10(v.Exponent-exp))
	if !scaled.IsInt64() {
		return 0, fmt.Errorf("fixedpoint: rescale overflow for %s at exponent %d", v, exp)
	}
	return scaled.Int64(), nil
}
