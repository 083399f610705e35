// Package shard models the program-owned accounts that jointly custody
// the pool's UTXOs, the scoped-borrow accessor contract over them, and
// the pure balancing and reconciliation logic that keeps their holdings
// level.
package shard

import (
	"fmt"

	"github.com/utxoshard/libsettle-go/arith"
	"github.com/utxoshard/libsettle-go/utxo"
)

// MaxBtcUtxos is the fixed capacity of a shard's BTC UTXO list.
const MaxBtcUtxos = 20

// Shard is the UTXO state of one custody account: a bounded list of
// plain BTC UTXOs and at most one rune-carrying UTXO.
type Shard struct {
	btc      []utxo.Info
	runeUtxo *utxo.Info
}

// NewShard returns an empty shard.
func NewShard() *Shard {
	return &Shard{}
}

// BtcCount returns the number of BTC UTXOs held.
func (s *Shard) BtcCount() int { return len(s.btc) }

// SpareBtcCapacity returns how many more BTC UTXOs the shard can hold.
func (s *Shard) SpareBtcCapacity() int { return MaxBtcUtxos - len(s.btc) }

// BtcUtxos returns a copy of the shard's BTC UTXO list.
func (s *Shard) BtcUtxos() []utxo.Info {
	out := make([]utxo.Info, len(s.btc))
	copy(out, s.btc)
	return out
}

// BtcTotal returns the summed satoshi value of the shard's BTC UTXOs.
func (s *Shard) BtcTotal() (uint64, error) {
	var total uint64
	for i := range s.btc {
		sum, err := arith.AddU64(total, s.btc[i].Value)
		if err != nil {
			return 0, fmt.Errorf("shard: btc total: %w", err)
		}
		total = sum
	}
	return total, nil
}

// AddBtcUtxo appends a plain BTC UTXO. Rune-bearing UTXOs belong in the
// rune slot and are rejected here.
func (s *Shard) AddBtcUtxo(info utxo.Info) error {
	if info.HasRunes() {
		return ErrRuneBearingUtxo
	}
	if len(s.btc) >= MaxBtcUtxos {
		return ErrBtcUtxosFull
	}
	s.btc = append(s.btc, info)
	return nil
}

// RuneUtxo returns the shard's rune UTXO, if any.
func (s *Shard) RuneUtxo() (utxo.Info, bool) {
	if s.runeUtxo == nil {
		return utxo.Info{}, false
	}
	return *s.runeUtxo, true
}

// HasRuneUtxo reports whether the rune slot is occupied.
func (s *Shard) HasRuneUtxo() bool { return s.runeUtxo != nil }

// SetRuneUtxo places info into the rune slot. A shard never holds two
// rune UTXOs simultaneously.
func (s *Shard) SetRuneUtxo(info utxo.Info) error {
	if s.runeUtxo != nil {
		return fmt.Errorf("%w: %s", ErrRuneUtxoOccupied, s.runeUtxo.Meta)
	}
	s.runeUtxo = &info
	return nil
}

// ClearRuneUtxo empties the rune slot.
func (s *Shard) ClearRuneUtxo() { s.runeUtxo = nil }

// RemoveUtxo deletes the UTXO identified by meta from the BTC list or
// the rune slot. It reports whether anything was removed; a missing
// UTXO is not an error.
func (s *Shard) RemoveUtxo(meta utxo.Meta) bool {
	for i := range s.btc {
		if s.btc[i].Meta == meta {
			s.btc = append(s.btc[:i], s.btc[i+1:]...)
			return true
		}
	}
	if s.runeUtxo != nil && s.runeUtxo.Meta == meta {
		s.runeUtxo = nil
		return true
	}
	return false
}
