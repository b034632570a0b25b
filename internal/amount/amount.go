// Package amount provides the unsigned fixed-scale integer type used for every
// balance, stake, fee and payout in the engine. Arithmetic is checked: an
// operation that would overflow 256 bits or go below zero returns an error
// instead of wrapping.
package amount

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/holiman/uint256"
)

const (
	// BaseDecimals is the scale of the base currency and of fan tokens.
	BaseDecimals uint8 = 18
	// SecondaryDecimals is the scale of the stable secondary currency.
	SecondaryDecimals uint8 = 6
	// BpsDenominator is the basis-point denominator.
	BpsDenominator uint64 = 10_000
)

var (
	ErrOverflow       = errors.New("amount: overflow")
	ErrUnderflow      = errors.New("amount: underflow")
	ErrDivisionByZero = errors.New("amount: division by zero")
	ErrInvalid        = errors.New("amount: invalid value")
)

// Amount is an unsigned 256-bit integer in the smallest unit of its currency.
// The zero value is 0 and Amount values are safe to copy.
type Amount struct {
	v uint256.Int
}

// Zero returns the zero amount.
func Zero() Amount { return Amount{} }

// FromUint64 returns n smallest units.
func FromUint64(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// Units returns whole * 10^decimals.
func Units(whole uint64, decimals uint8) Amount {
	var a Amount
	a.v.Mul(uint256.NewInt(whole), pow10(decimals))
	return a
}

// One returns a single whole unit at the given scale.
func One(decimals uint8) Amount { return Units(1, decimals) }

// FromBig converts a non-negative big.Int.
func FromBig(b *big.Int) (Amount, error) {
	if b == nil || b.Sign() < 0 {
		return Amount{}, ErrInvalid
	}
	u, overflow := uint256.FromBig(b)
	if overflow {
		return Amount{}, ErrOverflow
	}
	return Amount{v: *u}, nil
}

// ParseUnits parses a decimal string of smallest units, e.g. "900000000000000000".
func ParseUnits(s string) (Amount, error) {
	u, err := uint256.FromDecimal(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return Amount{v: *u}, nil
}

// MustParseUnits is ParseUnits for constants and tests.
func MustParseUnits(s string) Amount {
	a, err := ParseUnits(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Big returns the value as a new big.Int.
func (a Amount) Big() *big.Int { return a.v.ToBig() }

// Uint64 returns the low 64 bits; callers check IsUint64 first when it matters.
func (a Amount) Uint64() uint64 { return a.v.Uint64() }

// IsUint64 reports whether the value fits in a uint64.
func (a Amount) IsUint64() bool { return a.v.IsUint64() }

func (a Amount) IsZero() bool { return a.v.IsZero() }

// Cmp returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

func (a Amount) Eq(b Amount) bool  { return a.v.Eq(&b.v) }
func (a Amount) Lt(b Amount) bool  { return a.v.Lt(&b.v) }
func (a Amount) Gt(b Amount) bool  { return a.v.Gt(&b.v) }
func (a Amount) Gte(b Amount) bool { return !a.v.Lt(&b.v) }

// Add returns a+b.
func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow {
		return Amount{}, ErrOverflow
	}
	return out, nil
}

// Sub returns a-b.
func (a Amount) Sub(b Amount) (Amount, error) {
	var out Amount
	if _, underflow := out.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, ErrUnderflow
	}
	return out, nil
}

// MulDiv returns floor(a*num/den). The product is computed at 512 bits so it
// never loses precision before the division.
func (a Amount) MulDiv(num, den Amount) (Amount, error) {
	if den.IsZero() {
		return Amount{}, ErrDivisionByZero
	}
	var out Amount
	if _, overflow := out.v.MulDivOverflow(&a.v, &num.v, &den.v); overflow {
		return Amount{}, ErrOverflow
	}
	return out, nil
}

// Bps returns floor(a*bps/10000).
func (a Amount) Bps(bps uint64) (Amount, error) {
	return a.MulDiv(FromUint64(bps), FromUint64(BpsDenominator))
}

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a.Lt(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Amount) Amount {
	if a.Gt(b) {
		return a
	}
	return b
}

// Sum adds every element of xs.
func Sum(xs ...Amount) (Amount, error) {
	total := Zero()
	for _, x := range xs {
		var err error
		if total, err = total.Add(x); err != nil {
			return Amount{}, err
		}
	}
	return total, nil
}

// String returns the smallest-unit decimal representation.
func (a Amount) String() string { return a.v.Dec() }

// MarshalText encodes the smallest-unit decimal string.
func (a Amount) MarshalText() ([]byte, error) { return []byte(a.v.Dec()), nil }

// UnmarshalText accepts a smallest-unit decimal string.
func (a *Amount) UnmarshalText(b []byte) error {
	parsed, err := ParseUnits(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Parse converts a human decimal such as "29.1" into smallest units at the
// given scale. More fractional digits than the scale allows is an error.
func Parse(s string, decimals uint8) (Amount, error) {
	d, _, err := apd.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	if d.Negative || d.Form != apd.Finite {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}

	ctx := apd.BaseContext.WithPrecision(120)
	var scaled apd.Decimal
	if _, err := ctx.Mul(&scaled, d, apd.New(1, int32(decimals))); err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	scaled.Reduce(&scaled)
	if scaled.Exponent < 0 {
		return Amount{}, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalid, s, decimals)
	}
	b := scaled.Coeff.MathBigInt()
	if scaled.Exponent > 0 {
		b.Mul(b, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scaled.Exponent)), nil))
	}
	return FromBig(b)
}

// MustParse is Parse for constants and tests.
func MustParse(s string, decimals uint8) Amount {
	a, err := Parse(s, decimals)
	if err != nil {
		panic(err)
	}
	return a
}

// Format renders the amount as a human decimal with trailing zeros removed.
func (a Amount) Format(decimals uint8) string {
	if a.IsZero() {
		return "0"
	}
	coeff := new(apd.BigInt).SetMathBigInt(a.v.ToBig())
	d := apd.NewWithBigInt(coeff, -int32(decimals))
	d.Reduce(d)
	return d.Text('f')
}

func pow10(decimals uint8) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
}
