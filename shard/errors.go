package shard

import "errors"

var (
	// ErrNilAccessor indicates a shard set was built around a nil accessor.
	ErrNilAccessor = errors.New("shard: accessor is nil")

	// ErrNilTransaction indicates reconciliation was asked to apply a nil
	// transaction.
	ErrNilTransaction = errors.New("shard: transaction is nil")

	// ErrShardBusy indicates an overlapping borrow of the same shard.
	ErrShardBusy = errors.New("shard: shard is already borrowed")

	// ErrIndexOutOfRange indicates a shard index outside the collection.
	ErrIndexOutOfRange = errors.New("shard: shard index out of range")

	// ErrNoShardsSelected indicates an empty selection.
	ErrNoShardsSelected = errors.New("shard: no shards selected")

	// ErrDuplicateShard indicates the same shard was selected twice.
	ErrDuplicateShard = errors.New("shard: duplicate shard selection")

	// ErrTooManyShards indicates the selection exceeds MaxSelectedShards.
	ErrTooManyShards = errors.New("shard: too many shards selected")

	// ErrBtcUtxosFull indicates the shard's BTC UTXO list reached capacity.
	ErrBtcUtxosFull = errors.New("shard: btc utxo list is full")

	// ErrRuneUtxoOccupied indicates the shard already holds a rune UTXO.
	ErrRuneUtxoOccupied = errors.New("shard: rune utxo slot occupied")

	// ErrRuneBearingUtxo indicates a rune-carrying UTXO was pushed into the
	// plain BTC list.
	ErrRuneBearingUtxo = errors.New("shard: rune-bearing utxo does not belong in the btc list")

	// ErrRunePointerMissing indicates unassigned runes remain but the
	// runestone declares no pointer output. This is an upstream contract
	// violation, never silently dropped.
	ErrRunePointerMissing = errors.New("shard: unassigned runes with no pointer output")

	// ErrExcessRuneUtxos indicates a created rune output found no shard
	// with a free rune slot.
	ErrExcessRuneUtxos = errors.New("shard: more rune utxos than available shard slots")

	// ErrShardsFullOfBtcUtxos indicates a created BTC output found no shard
	// with spare capacity.
	ErrShardsFullOfBtcUtxos = errors.New("shard: all selected shards are full of btc utxos")
)
