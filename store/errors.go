package store

import "errors"

var (
	// ErrNilParam indicates a nil value was passed where a value is required.
	ErrNilParam = errors.New("store: nil parameter")

	// ErrShardNotFound indicates no snapshot exists for the shard index.
	ErrShardNotFound = errors.New("store: shard not found")

	// ErrDuplicatePendingTx indicates the txid is already tracked as pending.
	ErrDuplicatePendingTx = errors.New("store: pending transaction already exists")

	// ErrPendingTxNotFound indicates no pending transaction exists for the txid.
	ErrPendingTxNotFound = errors.New("store: pending transaction not found")
)
