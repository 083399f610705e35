package txbuilder

import "errors"

var (
	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("txbuilder: required parameter is nil")

	// ErrFinalized indicates the builder was already consumed by Finalize.
	ErrFinalized = errors.New("txbuilder: builder already finalized")

	// ErrSignersFull indicates the signer list reached its fixed capacity.
	ErrSignersFull = errors.New("txbuilder: signer list is full")

	// ErrAccountsFull indicates the modified-account list reached its fixed capacity.
	ErrAccountsFull = errors.New("txbuilder: modified-account list is full")

	// ErrEdictsFull indicates the runestone edict list reached its fixed capacity.
	ErrEdictsFull = errors.New("txbuilder: edict list is full")

	// ErrIndexOutOfRange indicates an insertion index is outside the input list.
	ErrIndexOutOfRange = errors.New("txbuilder: input index out of range")

	// ErrInputLengthMismatch indicates the draft transaction and the supplied
	// UTXO list disagree on the number of inputs.
	ErrInputLengthMismatch = errors.New("txbuilder: transaction input and utxo counts differ")

	// ErrNotEnoughBtcInPool indicates the candidate UTXO set was exhausted
	// before the requested amount was gathered.
	ErrNotEnoughBtcInPool = errors.New("txbuilder: not enough btc in pool")

	// ErrInsufficientInputs indicates the gathered input value does not cover
	// the transaction's outputs.
	ErrInsufficientInputs = errors.New("txbuilder: input value below output value")

	// ErrOutputBelowDust indicates an output value is below the dust limit.
	ErrOutputBelowDust = errors.New("txbuilder: output value below dust limit")

	// ErrFeeRateTooLow indicates the achieved fee rate misses the target,
	// standalone or combined with unconfirmed ancestors.
	ErrFeeRateTooLow = errors.New("txbuilder: fee rate below target")
)
