package shard

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/wire"

	"github.com/utxoshard/libsettle-go/arith"
	"github.com/utxoshard/libsettle-go/runes"
	"github.com/utxoshard/libsettle-go/utxo"
)

// ApplyParams describes one broadcast settlement transaction to
// reconcile shard state against.
type ApplyParams struct {
	// Tx is the broadcast transaction.
	Tx *wire.MsgTx

	// SignedInputs are the indices of Tx's inputs that spent
	// program-owned UTXOs; each maps to a UTXO that must be removed
	// from whichever shard holds it.
	SignedInputs []uint32

	// ProgramScript identifies outputs created for the program: every
	// output paying this script becomes a new pool-owned UTXO.
	ProgramScript []byte

	// RuneInputs is the pre-transaction rune total entering the
	// transaction. Required when the transaction carries a runestone.
	RuneInputs runes.Set

	// Runestone is the transfer descriptor attached to Tx, or nil for a
	// BTC-only settlement.
	Runestone *runes.Runestone

	// ConsolidationFeeRate, when non-nil, tags every created BTC UTXO
	// for consolidation at or above the given fee rate.
	ConsolidationFeeRate *float64
}

// ApplyTransaction reconciles the selected shards against a broadcast
// transaction: spent UTXOs are removed, created rune-bearing outputs
// are placed into shards holding no rune UTXO, and created plain
// outputs are placed, largest first, into the least-funded shard with
// spare capacity. Reconciliation runs once per transaction and keeps no
// state between calls.
//
// On error, placements already applied are not rolled back; callers
// must treat reconciliation as all-or-nothing at a higher transactional
// boundary.
func (s *Selected) ApplyTransaction(p ApplyParams) error {
	if p.Tx == nil {
		return ErrNilTransaction
	}

	removed, err := spentMetas(p.Tx, p.SignedInputs)
	if err != nil {
		return err
	}

	created := createdUtxos(p.Tx, p.ProgramScript)

	runeOuts, btcOuts, err := splitRuneOutputs(created, p.RuneInputs, p.Runestone)
	if err != nil {
		return err
	}

	if err := s.applyRemovals(removed); err != nil {
		return err
	}
	if err := s.placeRuneOutputs(runeOuts); err != nil {
		return err
	}
	return s.placeBtcOutputs(btcOuts, p.ConsolidationFeeRate)
}

// spentMetas maps the signed input indices to the outpoints they spent.
func spentMetas(tx *wire.MsgTx, signed []uint32) ([]utxo.Meta, error) {
	metas := make([]utxo.Meta, 0, len(signed))
	for _, idx := range signed {
		if int(idx) >= len(tx.TxIn) {
			return nil, fmt.Errorf("%w: signed input %d of %d", ErrIndexOutOfRange, idx, len(tx.TxIn))
		}
		metas = append(metas, utxo.MetaFromOutPoint(tx.TxIn[idx].PreviousOutPoint))
	}
	return metas, nil
}

// createdUtxos collects the outputs paying to the program's own script,
// keyed by the broadcast transaction's id.
func createdUtxos(tx *wire.MsgTx, programScript []byte) []utxo.Info {
	txid := tx.TxHash()
	var created []utxo.Info
	for vout, out := range tx.TxOut {
		if !bytes.Equal(out.PkScript, programScript) {
			continue
		}
		created = append(created, utxo.Info{
			Meta:  utxo.NewMeta(txid, uint32(vout)),
			Value: uint64(out.Value),
		})
	}
	return created
}

// splitRuneOutputs assigns rune amounts to the created outputs per the
// runestone's edicts, routes the unassigned remainder to the pointer
// output, and splits the created set into rune-carrying and plain
// buckets. Unassigned runes without a pointer are a fatal inconsistency.
func splitRuneOutputs(created []utxo.Info, runeInputs runes.Set, stone *runes.Runestone) (runeOuts, btcOuts []utxo.Info, err error) {
	if stone == nil {
		return nil, created, nil
	}

	byVout := make(map[uint32]int, len(created))
	for i := range created {
		byVout[created[i].Meta.Vout] = i
	}

	// Every edict amount leaves the pre-transaction total, whether or
	// not its target output is program-owned; runes sent to outside
	// scripts simply leave the pool.
	leftover := runeInputs.Clone()
	for _, e := range stone.Edicts {
		if err := leftover.Sub(runes.Amount{ID: e.ID, Amount: e.Amount}); err != nil {
			return nil, nil, fmt.Errorf("shard: runestone does not balance: %w", err)
		}
		if i, ok := byVout[e.Output]; ok {
			if err := created[i].Runes.Add(runes.Amount{ID: e.ID, Amount: e.Amount}); err != nil {
				return nil, nil, err
			}
		}
	}

	if !leftover.IsEmpty() {
		if stone.Pointer == nil {
			return nil, nil, ErrRunePointerMissing
		}
		i, ok := byVout[*stone.Pointer]
		if !ok {
			return nil, nil, fmt.Errorf("%w: pointer output %d not program-owned", ErrRunePointerMissing, *stone.Pointer)
		}
		if err := created[i].Runes.AddSet(leftover); err != nil {
			return nil, nil, err
		}
	}

	for i := range created {
		if created[i].HasRunes() {
			runeOuts = append(runeOuts, created[i])
		} else {
			btcOuts = append(btcOuts, created[i])
		}
	}
	return runeOuts, btcOuts, nil
}

// applyRemovals deletes the spent UTXOs from every selected shard.
// A UTXO absent from a given shard is skipped, not an error.
func (s *Selected) applyRemovals(removed []utxo.Meta) error {
	for n := range s.indices {
		err := s.update(n, func(sh *Shard) error {
			for _, meta := range removed {
				sh.RemoveUtxo(meta)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// placeRuneOutputs assigns each created rune output to the first
// selected shard currently holding no rune UTXO.
func (s *Selected) placeRuneOutputs(runeOuts []utxo.Info) error {
	for _, info := range runeOuts {
		placed := false
		for n := range s.indices {
			err := s.update(n, func(sh *Shard) error {
				if sh.HasRuneUtxo() {
					return nil
				}
				if err := sh.SetRuneUtxo(info); err != nil {
					return err
				}
				placed = true
				return nil
			})
			if err != nil {
				return err
			}
			if placed {
				break
			}
		}
		if !placed {
			return fmt.Errorf("%w: %s", ErrExcessRuneUtxos, info.Meta)
		}
	}
	return nil
}

// placeBtcOutputs assigns the created plain outputs, sorted descending
// by value, each into the selected shard with spare capacity and the
// smallest BTC total. Totals are recomputed after each placement, so
// insertion order shapes the final distribution.
func (s *Selected) placeBtcOutputs(btcOuts []utxo.Info, consolidationRate *float64) error {
	sort.SliceStable(btcOuts, func(i, j int) bool { return btcOuts[i].Value > btcOuts[j].Value })

	for _, info := range btcOuts {
		target := -1
		var targetTotal uint64
		for n := range s.indices {
			err := s.view(n, func(sh *Shard) error {
				if sh.SpareBtcCapacity() == 0 {
					return nil
				}
				total, err := sh.BtcTotal()
				if err != nil {
					return err
				}
				if target == -1 || total < targetTotal {
					target = n
					targetTotal = total
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		if target == -1 {
			return fmt.Errorf("%w: placing %s", ErrShardsFullOfBtcUtxos, info.Meta)
		}

		info.NeedsConsolidation = consolidationRate
		if err := s.update(target, func(sh *Shard) error {
			return sh.AddBtcUtxo(info)
		}); err != nil {
			return err
		}
	}
	return nil
}

// btcTotals sums each selected shard's BTC holdings, in selection order.
func (s *Selected) btcTotals() ([]uint64, error) {
	totals := make([]uint64, s.Len())
	for n := range s.indices {
		err := s.view(n, func(sh *Shard) error {
			total, err := sh.BtcTotal()
			if err != nil {
				return err
			}
			totals[n] = total
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return totals, nil
}

// TotalBtc returns the combined BTC balance of the selected shards.
func (s *Selected) TotalBtc() (uint64, error) {
	totals, err := s.btcTotals()
	if err != nil {
		return 0, err
	}
	var sum uint64
	for _, t := range totals {
		v, err := arith.AddU64(sum, t)
		if err != nil {
			return 0, err
		}
		sum = v
	}
	return sum, nil
}
