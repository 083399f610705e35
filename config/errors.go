package config

import "errors"

var (
	// ErrInvalidNetwork indicates the network name is not recognized.
	ErrInvalidNetwork = errors.New("config: invalid network (must be \"mainnet\", \"testnet\", or \"regtest\")")

	// ErrZeroDustLimit indicates the dust limit is zero.
	ErrZeroDustLimit = errors.New("config: dust limit must be positive")

	// ErrInvalidMaxTxSize indicates the maximum transaction size cannot hold
	// even a minimal settlement transaction.
	ErrInvalidMaxTxSize = errors.New("config: max transaction size too small")

	// ErrInvalidMinFeeRate indicates the minimum fee rate is not positive.
	ErrInvalidMinFeeRate = errors.New("config: minimum fee rate must be positive")
)
