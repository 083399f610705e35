// Package config holds the protocol parameters of the settlement pool:
// the dust threshold, size ceiling and fee floor every component must
// agree on.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

const (
	// DefaultDustLimit is the minimum output value in satoshis under the
	// protocol's standard relay rules.
	DefaultDustLimit = uint64(546)

	// DefaultMaxTxSize bounds the total serialized size of a settlement
	// transaction in bytes.
	DefaultMaxTxSize = 100_000

	// DefaultMinFeeRate is the relay fee floor in sat/vB.
	DefaultMinFeeRate = 1.0

	// minViableTxSize is the smallest ceiling that still fits one input
	// and one output.
	minViableTxSize = 200

	// envPrefix namespaces the environment variables read by FromEnv.
	envPrefix = "SETTLE"
)

// Params are the protocol parameters consumed by the transaction
// builder, the balancer and the consolidation selector.
type Params struct {
	Network    string  `envconfig:"NETWORK" default:"mainnet"`
	DustLimit  uint64  `envconfig:"DUST_LIMIT" default:"546"`
	MaxTxSize  int     `envconfig:"MAX_TX_SIZE" default:"100000"`
	MinFeeRate float64 `envconfig:"MIN_FEE_RATE" default:"1.0"`
}

// Default returns the reference deployment parameters.
func Default() Params {
	return Params{
		Network:    "mainnet",
		DustLimit:  DefaultDustLimit,
		MaxTxSize:  DefaultMaxTxSize,
		MinFeeRate: DefaultMinFeeRate,
	}
}

// FromEnv loads parameters from SETTLE_* environment variables and
// validates them.
func FromEnv() (Params, error) {
	var p Params
	if err := envconfig.Process(envPrefix, &p); err != nil {
		return Params{}, fmt.Errorf("config: load environment: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Validate checks that all parameters are within acceptable ranges and
// returns the first error encountered, or nil if valid.
func (p Params) Validate() error {
	if p.Network != "mainnet" && p.Network != "testnet" && p.Network != "regtest" {
		return ErrInvalidNetwork
	}
	if p.DustLimit == 0 {
		return ErrZeroDustLimit
	}
	if p.MaxTxSize < minViableTxSize {
		return ErrInvalidMaxTxSize
	}
	if p.MinFeeRate <= 0 {
		return ErrInvalidMinFeeRate
	}
	return nil
}
