// Package arith provides checked unsigned arithmetic for the settlement
// core. Every arithmetic step in the balancing and fee engines routes
// through these helpers so that overflow, underflow and division by zero
// surface as errors instead of wrapping silently or panicking.
package arith

import (
	"math"

	"github.com/gaze-network/uint128"
)

// AddU64 returns a+b, or ErrOverflow if the sum exceeds math.MaxUint64.
func AddU64(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// SubU64 returns a-b, or ErrUnderflow if b exceeds a.
func SubU64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

// MulU64 returns a*b, or ErrOverflow if the product exceeds math.MaxUint64.
func MulU64(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > math.MaxUint64/b {
		return 0, ErrOverflow
	}
	return a * b, nil
}

// DivU64 returns a/b, or ErrDivideByZero if b is zero.
func DivU64(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, ErrDivideByZero
	}
	return a / b, nil
}

// Add128 returns a+b, or ErrOverflow if the sum exceeds 128 bits.
func Add128(a, b uint128.Uint128) (uint128.Uint128, error) {
	sum := a.AddWrap(b)
	if sum.Cmp(a) < 0 {
		return uint128.Zero, ErrOverflow
	}
	return sum, nil
}

// Sub128 returns a-b, or ErrUnderflow if b exceeds a.
func Sub128(a, b uint128.Uint128) (uint128.Uint128, error) {
	if a.Cmp(b) < 0 {
		return uint128.Zero, ErrUnderflow
	}
	return a.Sub(b), nil
}

// Mul128 returns a*b, or ErrOverflow if the product exceeds 128 bits.
func Mul128(a, b uint128.Uint128) (uint128.Uint128, error) {
	if a.IsZero() || b.IsZero() {
		return uint128.Zero, nil
	}
	prod := a.MulWrap(b)
	if prod.Div(a).Cmp(b) != 0 {
		return uint128.Zero, ErrOverflow
	}
	return prod, nil
}

// Div128 returns a/b, or ErrDivideByZero if b is zero.
func Div128(a, b uint128.Uint128) (uint128.Uint128, error) {
	if b.IsZero() {
		return uint128.Zero, ErrDivideByZero
	}
	return a.Div(b), nil
}

// U64From128 narrows a 128-bit value to 64 bits, or returns
// ErrLossyConversion if the high word is nonzero.
func U64From128(v uint128.Uint128) (uint64, error) {
	if v.Hi != 0 {
		return 0, ErrLossyConversion
	}
	return v.Lo, nil
}
