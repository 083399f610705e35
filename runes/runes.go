// Package runes models fungible token balances carried alongside
// Bitcoin-style UTXOs, and the runestone transfer payload that moves
// them between transaction outputs.
package runes

import (
	"fmt"
	"sort"

	"github.com/gaze-network/uint128"

	"github.com/utxoshard/libsettle-go/arith"
)

// MaxSetEntries is the fixed capacity of a Set: the maximum number of
// distinct rune ids a single UTXO or running total may carry.
const MaxSetEntries = 16

// ID identifies a rune by the block height and transaction index of its
// etching.
type ID struct {
	Block uint64
	Tx    uint32
}

// Cmp returns -1, 0 or 1 ordering ids by (block, tx).
func (id ID) Cmp(other ID) int {
	switch {
	case id.Block < other.Block:
		return -1
	case id.Block > other.Block:
		return 1
	case id.Tx < other.Tx:
		return -1
	case id.Tx > other.Tx:
		return 1
	default:
		return 0
	}
}

// String returns the canonical "block:tx" form.
func (id ID) String() string {
	return fmt.Sprintf("%d:%d", id.Block, id.Tx)
}

// Amount pairs a rune id with a 128-bit quantity.
type Amount struct {
	ID     ID
	Amount uint128.Uint128
}

// Set is a fixed-capacity collection of rune amounts, deduplicated by
// id. Insertion merges amounts via checked addition; a push past
// MaxSetEntries fails with ErrSetFull instead of growing.
type Set struct {
	entries []Amount
}

// NewSet returns an empty Set.
func NewSet() Set {
	return Set{}
}

// Len returns the number of distinct rune ids in the set.
func (s *Set) Len() int { return len(s.entries) }

// IsEmpty reports whether the set holds no nonzero amounts.
func (s *Set) IsEmpty() bool {
	for _, e := range s.entries {
		if !e.Amount.IsZero() {
			return false
		}
	}
	return true
}

// Get returns the amount held for id and whether the id is present.
func (s *Set) Get(id ID) (uint128.Uint128, bool) {
	for _, e := range s.entries {
		if e.ID == id {
			return e.Amount, true
		}
	}
	return uint128.Zero, false
}

// Add merges a into the set. Amounts for an existing id combine via
// checked addition; a new id consumes one capacity slot. Zero amounts
// are ignored.
func (s *Set) Add(a Amount) error {
	if a.Amount.IsZero() {
		return nil
	}
	for i := range s.entries {
		if s.entries[i].ID == a.ID {
			sum, err := arith.Add128(s.entries[i].Amount, a.Amount)
			if err != nil {
				return fmt.Errorf("runes: merge %s: %w", a.ID, err)
			}
			s.entries[i].Amount = sum
			return nil
		}
	}
	if len(s.entries) >= MaxSetEntries {
		return ErrSetFull
	}
	s.entries = append(s.entries, a)
	return nil
}

// AddSet merges every entry of other into the set.
func (s *Set) AddSet(other Set) error {
	for _, e := range other.entries {
		if err := s.Add(e); err != nil {
			return err
		}
	}
	return nil
}

// Sub removes a.Amount of a.ID from the set. Removing more than
// present fails with ErrInsufficientRunes; an absent id fails with
// ErrRuneNotFound. Entries that reach zero are dropped.
func (s *Set) Sub(a Amount) error {
	if a.Amount.IsZero() {
		return nil
	}
	for i := range s.entries {
		if s.entries[i].ID != a.ID {
			continue
		}
		rest, err := arith.Sub128(s.entries[i].Amount, a.Amount)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInsufficientRunes, a.ID)
		}
		if rest.IsZero() {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
		} else {
			s.entries[i].Amount = rest
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrRuneNotFound, a.ID)
}

// Entries returns a copy of the set's amounts sorted by id.
func (s *Set) Entries() []Amount {
	out := make([]Amount, len(s.entries))
	copy(out, s.entries)
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Cmp(out[j].ID) < 0 })
	return out
}

// Clone returns an independent copy of the set.
func (s *Set) Clone() Set {
	out := Set{entries: make([]Amount, len(s.entries))}
	copy(out.entries, s.entries)
	return out
}
