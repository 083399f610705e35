package store

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"go.etcd.io/bbolt"

	"github.com/utxoshard/libsettle-go/runes"
	"github.com/utxoshard/libsettle-go/shard"
	"github.com/utxoshard/libsettle-go/utxo"
)

var (
	bucketShards     = []byte("shards")
	bucketPendingTxs = []byte("pending_txs")
)

// BoltStore wraps a bbolt database for shard snapshot and pending
// transaction storage.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketShards, bucketPendingTxs} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("boltstore: create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

// Shards returns a ShardStore backed by this database.
func (s *BoltStore) Shards() *BoltShardStore { return &BoltShardStore{db: s.db} }

// PendingTxs returns a PendingTxStore backed by this database.
func (s *BoltStore) PendingTxs() *BoltPendingTxStore { return &BoltPendingTxStore{db: s.db} }

// indexKey encodes a shard index as a 4-byte big-endian key for sorted
// storage.
func indexKey(i uint32) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, i)
	return k
}

// storedUtxo is the gob form of a utxo.Info; rune sets flatten to their
// entry list.
type storedUtxo struct {
	TxID               chainhash.Hash
	Vout               uint32
	Value              uint64
	Runes              []runes.Amount
	NeedsConsolidation *float64
}

// storedShard is the gob form of one shard's UTXO holdings.
type storedShard struct {
	Btc  []storedUtxo
	Rune *storedUtxo
}

func toStoredUtxo(info utxo.Info) storedUtxo {
	return storedUtxo{
		TxID:               info.Meta.TxID,
		Vout:               info.Meta.Vout,
		Value:              info.Value,
		Runes:              info.Runes.Entries(),
		NeedsConsolidation: info.NeedsConsolidation,
	}
}

func fromStoredUtxo(su storedUtxo) (utxo.Info, error) {
	info := utxo.Info{
		Meta:               utxo.NewMeta(su.TxID, su.Vout),
		Value:              su.Value,
		NeedsConsolidation: su.NeedsConsolidation,
	}
	for _, a := range su.Runes {
		if err := info.Runes.Add(a); err != nil {
			return utxo.Info{}, fmt.Errorf("boltstore: rebuild rune set: %w", err)
		}
	}
	return info, nil
}

// encodeGob serializes a value using gob encoding.
func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeGob deserializes gob-encoded data into a value.
func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// ---------------------------------------------------------------------------
// BoltShardStore implements ShardStore.
// ---------------------------------------------------------------------------

// BoltShardStore persists shard snapshots in bbolt.
type BoltShardStore struct {
	db *bbolt.DB
}

// Compile-time interface check.
var _ ShardStore = (*BoltShardStore)(nil)

// PutShard writes a snapshot of sh at index, replacing any prior one.
func (s *BoltShardStore) PutShard(index uint32, sh *shard.Shard) error {
	if sh == nil {
		return fmt.Errorf("%w: shard", ErrNilParam)
	}

	snap := storedShard{}
	for _, info := range sh.BtcUtxos() {
		snap.Btc = append(snap.Btc, toStoredUtxo(info))
	}
	if info, ok := sh.RuneUtxo(); ok {
		su := toStoredUtxo(info)
		snap.Rune = &su
	}

	data, err := encodeGob(&snap)
	if err != nil {
		return fmt.Errorf("boltstore: encode shard: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketShards).Put(indexKey(index), data); err != nil {
			return fmt.Errorf("boltstore: put shard: %w", err)
		}
		return nil
	})
}

// GetShard rebuilds the shard stored at index.
func (s *BoltShardStore) GetShard(index uint32) (*shard.Shard, error) {
	var snap storedShard
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketShards).Get(indexKey(index))
		if data == nil {
			return fmt.Errorf("%w: index %d", ErrShardNotFound, index)
		}
		if err := decodeGob(data, &snap); err != nil {
			return fmt.Errorf("boltstore: decode shard: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rebuildShard(snap)
}

// LoadAll rebuilds every stored shard in ascending index order.
func (s *BoltShardStore) LoadAll() ([]uint32, []*shard.Shard, error) {
	var (
		indices []uint32
		shards  []*shard.Shard
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketShards).ForEach(func(k, v []byte) error {
			var snap storedShard
			if err := decodeGob(v, &snap); err != nil {
				return fmt.Errorf("boltstore: decode shard: %w", err)
			}
			sh, err := rebuildShard(snap)
			if err != nil {
				return err
			}
			indices = append(indices, binary.BigEndian.Uint32(k))
			shards = append(shards, sh)
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return indices, shards, nil
}

// DeleteShard removes the snapshot at index.
func (s *BoltShardStore) DeleteShard(index uint32) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketShards).Delete(indexKey(index))
	})
}

func rebuildShard(snap storedShard) (*shard.Shard, error) {
	sh := shard.NewShard()
	for _, su := range snap.Btc {
		info, err := fromStoredUtxo(su)
		if err != nil {
			return nil, err
		}
		if err := sh.AddBtcUtxo(info); err != nil {
			return nil, fmt.Errorf("boltstore: rebuild shard: %w", err)
		}
	}
	if snap.Rune != nil {
		info, err := fromStoredUtxo(*snap.Rune)
		if err != nil {
			return nil, err
		}
		if err := sh.SetRuneUtxo(info); err != nil {
			return nil, fmt.Errorf("boltstore: rebuild shard: %w", err)
		}
	}
	return sh, nil
}

// ---------------------------------------------------------------------------
// BoltPendingTxStore implements PendingTxStore.
// ---------------------------------------------------------------------------

// BoltPendingTxStore persists in-flight settlement transactions in
// bbolt, wire-serialized and keyed by txid.
type BoltPendingTxStore struct {
	db *bbolt.DB
}

// Compile-time interface check.
var _ PendingTxStore = (*BoltPendingTxStore)(nil)

// PutTx records tx as pending. A txid already tracked fails with
// ErrDuplicatePendingTx.
func (s *BoltPendingTxStore) PutTx(tx *wire.MsgTx) error {
	if tx == nil {
		return fmt.Errorf("%w: transaction", ErrNilParam)
	}

	txid := tx.TxHash()
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return fmt.Errorf("boltstore: serialize tx: %w", err)
	}

	return s.db.Update(func(btx *bbolt.Tx) error {
		b := btx.Bucket(bucketPendingTxs)
		if b.Get(txid[:]) != nil {
			return fmt.Errorf("%w: %s", ErrDuplicatePendingTx, txid)
		}
		if err := b.Put(txid[:], buf.Bytes()); err != nil {
			return fmt.Errorf("boltstore: put pending tx: %w", err)
		}
		return nil
	})
}

// GetTx retrieves a pending transaction by txid.
func (s *BoltPendingTxStore) GetTx(txid chainhash.Hash) (*wire.MsgTx, error) {
	var tx wire.MsgTx
	err := s.db.View(func(btx *bbolt.Tx) error {
		data := btx.Bucket(bucketPendingTxs).Get(txid[:])
		if data == nil {
			return fmt.Errorf("%w: %s", ErrPendingTxNotFound, txid)
		}
		if err := tx.Deserialize(bytes.NewReader(data)); err != nil {
			return fmt.Errorf("boltstore: decode pending tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// DeleteTx removes a confirmed or abandoned transaction.
func (s *BoltPendingTxStore) DeleteTx(txid chainhash.Hash) error {
	return s.db.Update(func(btx *bbolt.Tx) error {
		b := btx.Bucket(bucketPendingTxs)
		if b.Get(txid[:]) == nil {
			return fmt.Errorf("%w: %s", ErrPendingTxNotFound, txid)
		}
		return b.Delete(txid[:])
	})
}

// ListTxs returns every pending transaction.
func (s *BoltPendingTxStore) ListTxs() ([]*wire.MsgTx, error) {
	var txs []*wire.MsgTx
	err := s.db.View(func(btx *bbolt.Tx) error {
		return btx.Bucket(bucketPendingTxs).ForEach(func(_, v []byte) error {
			var tx wire.MsgTx
			if err := tx.Deserialize(bytes.NewReader(v)); err != nil {
				return fmt.Errorf("boltstore: decode pending tx: %w", err)
			}
			txs = append(txs, &tx)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return txs, nil
}
