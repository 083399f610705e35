package runes

import "errors"

var (
	// ErrSetFull indicates the rune set reached its fixed capacity.
	ErrSetFull = errors.New("runes: rune set is full")

	// ErrInsufficientRunes indicates a removal of more runes than present.
	ErrInsufficientRunes = errors.New("runes: removing more runes than present")

	// ErrRuneNotFound indicates the rune id is not present in the set.
	ErrRuneNotFound = errors.New("runes: rune id not found")

	// ErrNoRunestone indicates the transaction carries no runestone output.
	ErrNoRunestone = errors.New("runes: no runestone in transaction")

	// ErrInvalidRunestone indicates the runestone payload is malformed.
	ErrInvalidRunestone = errors.New("runes: invalid runestone")

	// ErrVarintTooLarge indicates a varint does not fit in 128 bits.
	ErrVarintTooLarge = errors.New("runes: varint overflows 128 bits")

	// ErrVarintTruncated indicates a varint ends before its terminal byte.
	ErrVarintTruncated = errors.New("runes: truncated varint")
)
