// Package utxo defines the identity and state of the unspent outputs
// custodied by the settlement pool.
package utxo

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/utxoshard/libsettle-go/runes"
)

// Meta is the identity key of a UTXO: the transaction id it was created
// by plus the output index. Immutable once created. The txid prints in
// big-endian canonical form via chainhash.Hash.String.
type Meta struct {
	TxID chainhash.Hash
	Vout uint32
}

// NewMeta builds a Meta from a txid and output index.
func NewMeta(txid chainhash.Hash, vout uint32) Meta {
	return Meta{TxID: txid, Vout: vout}
}

// MetaFromOutPoint converts a wire outpoint into a Meta.
func MetaFromOutPoint(op wire.OutPoint) Meta {
	return Meta{TxID: op.Hash, Vout: op.Index}
}

// OutPoint converts the Meta into a wire outpoint.
func (m Meta) OutPoint() wire.OutPoint {
	return wire.OutPoint{Hash: m.TxID, Index: m.Vout}
}

// String returns the canonical "txid:vout" form.
func (m Meta) String() string {
	return fmt.Sprintf("%s:%d", m.TxID, m.Vout)
}

// Info is the full state of one pool-owned UTXO. A UTXO is owned by
// exactly one shard at a time. NeedsConsolidation, when non-nil, stores
// the fee-rate threshold (sat/vB) at or above which the pool should
// fold this UTXO back into a future transaction.
type Info struct {
	Meta               Meta
	Value              uint64
	Runes              runes.Set
	NeedsConsolidation *float64
}

// HasRunes reports whether the UTXO carries any nonzero rune balance.
func (i *Info) HasRunes() bool {
	return !i.Runes.IsEmpty()
}
