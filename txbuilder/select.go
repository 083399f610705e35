package txbuilder

import (
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/utxoshard/libsettle-go/runes"
	"github.com/utxoshard/libsettle-go/utxo"
)

// FindBtcInProgramUtxos greedily selects candidate UTXOs and appends
// them as program-signed inputs until the gathered value reaches
// amount. Selection is largest-value-first, with consolidation-flagged
// candidates deprioritized so they stay available for a cheaper fold.
// Candidates already spent by the draft are skipped. Returns the
// indices of the candidates consumed (in consumption order) and the
// total gathered; fails with ErrNotEnoughBtcInPool if the pool is
// exhausted first.
func (b *Builder) FindBtcInProgramUtxos(candidates []utxo.Info, signer *btcec.PublicKey, amount uint64) ([]int, uint64, error) {
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool {
		u, v := &candidates[order[x]], &candidates[order[y]]
		uFlagged := u.NeedsConsolidation != nil
		vFlagged := v.NeedsConsolidation != nil
		if uFlagged != vFlagged {
			return !uFlagged
		}
		return u.Value > v.Value
	})

	var (
		used  []int
		total uint64
	)
	for _, i := range order {
		if total >= amount {
			break
		}
		c := candidates[i]
		if b.HasInput(c.Meta) {
			continue
		}
		if err := b.AddTxInput(c, signer); err != nil {
			return used, total, err
		}
		used = append(used, i)
		total += c.Value
	}
	if total < amount {
		return used, total, ErrNotEnoughBtcInPool
	}
	return used, total, nil
}

// AddConsolidationInputs scans the candidate pool and appends every
// UTXO flagged for consolidation at or above feeRate. Each candidate is
// tentatively added, the resulting final size is checked against
// maxTxSize, and the candidate is rolled back (input and signer entry
// both popped) the instant the limit would be exceeded, terminating the
// scan. Returns the indices of the candidates consumed.
func (b *Builder) AddConsolidationInputs(candidates []utxo.Info, signer *btcec.PublicKey, feeRate FeeRate, maxTxSize int) ([]int, error) {
	var used []int
	for i := range candidates {
		c := candidates[i]
		if c.NeedsConsolidation == nil || *c.NeedsConsolidation < float64(feeRate) {
			continue
		}
		if b.HasInput(c.Meta) {
			continue
		}

		snap := b.snapshot(c.Meta)
		if err := b.AddTxInput(c, signer); err != nil {
			return used, err
		}
		if b.EstimateFinalSize() > maxTxSize {
			b.restore(snap)
			break
		}
		used = append(used, i)
	}
	return used, nil
}

// builderSnapshot captures the state touched by a single speculative
// input addition.
type builderSnapshot struct {
	numIn       int
	numSigners  int
	totalBtcIn  uint64
	runeIn      runes.Set
	unconfirmed MempoolInfo
	meta        utxo.Meta
	ancestorWasSeen bool
}

func (b *Builder) snapshot(meta utxo.Meta) builderSnapshot {
	_, seen := b.seen[meta.TxID]
	return builderSnapshot{
		numIn:           len(b.tx.TxIn),
		numSigners:      len(b.signers),
		totalBtcIn:      b.totalBtcIn,
		runeIn:          b.runeIn.Clone(),
		unconfirmed:     b.unconfirmed,
		meta:            meta,
		ancestorWasSeen: seen,
	}
}

func (b *Builder) restore(snap builderSnapshot) {
	b.tx.TxIn = b.tx.TxIn[:snap.numIn]
	b.signers = b.signers[:snap.numSigners]
	b.totalBtcIn = snap.totalBtcIn
	b.runeIn = snap.runeIn
	b.unconfirmed = snap.unconfirmed
	if !snap.ancestorWasSeen {
		delete(b.seen, snap.meta.TxID)
	}
}
