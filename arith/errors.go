package arith

import "errors"

var (
	// ErrOverflow indicates an addition or multiplication exceeded the type's range.
	ErrOverflow = errors.New("arith: integer overflow")

	// ErrUnderflow indicates a subtraction went below zero.
	ErrUnderflow = errors.New("arith: integer underflow")

	// ErrDivideByZero indicates a division by zero was attempted.
	ErrDivideByZero = errors.New("arith: division by zero")

	// ErrLossyConversion indicates a 128-bit value does not fit in 64 bits.
	ErrLossyConversion = errors.New("arith: lossy conversion")
)
