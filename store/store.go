// Package store persists shard snapshots and pending settlement
// transactions so the pool's UTXO state survives restarts while
// broadcasts are in flight.
package store

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/utxoshard/libsettle-go/shard"
)

// ShardStore persists per-shard UTXO snapshots keyed by shard index.
type ShardStore interface {
	// PutShard writes a snapshot of sh at index, replacing any prior one.
	PutShard(index uint32, sh *shard.Shard) error

	// GetShard rebuilds the shard stored at index.
	GetShard(index uint32) (*shard.Shard, error)

	// LoadAll rebuilds every stored shard in ascending index order and
	// returns the shards alongside their indices.
	LoadAll() ([]uint32, []*shard.Shard, error)

	// DeleteShard removes the snapshot at index. Deleting a missing
	// index is not an error.
	DeleteShard(index uint32) error
}

// PendingTxStore tracks settlement transactions that have been
// broadcast but not yet confirmed. Entries are keyed by txid.
type PendingTxStore interface {
	// PutTx records tx as pending. A txid already tracked fails with
	// ErrDuplicatePendingTx.
	PutTx(tx *wire.MsgTx) error

	// GetTx retrieves a pending transaction by txid.
	GetTx(txid chainhash.Hash) (*wire.MsgTx, error)

	// DeleteTx removes a confirmed or abandoned transaction.
	DeleteTx(txid chainhash.Hash) error

	// ListTxs returns every pending transaction.
	ListTxs() ([]*wire.MsgTx, error)
}
