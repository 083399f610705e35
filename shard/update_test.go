package shard

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/gaze-network/uint128"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utxoshard/libsettle-go/runes"
	"github.com/utxoshard/libsettle-go/utxo"
)

// testProgramScript is a stand-in taproot output script shared by every
// reconciliation test.
var testProgramScript = bytes.Repeat([]byte{0x51}, 34)

// settlementTx builds a transaction spending the given outpoints and
// paying the given values to the program script.
func settlementTx(t *testing.T, spends []utxo.Meta, values []int64) *wire.MsgTx {
	t.Helper()

	tx := wire.NewMsgTx(2)
	for _, meta := range spends {
		op := meta.OutPoint()
		tx.AddTxIn(wire.NewTxIn(&op, nil, nil))
	}
	for _, v := range values {
		tx.AddTxOut(wire.NewTxOut(v, testProgramScript))
	}
	return tx
}

func allSigned(tx *wire.MsgTx) []uint32 {
	signed := make([]uint32, len(tx.TxIn))
	for i := range signed {
		signed[i] = uint32(i)
	}
	return signed
}

func TestApplyTransactionNilTx(t *testing.T) {
	sel := selectShards(t, [][]uint64{{}})
	err := sel.ApplyTransaction(ApplyParams{ProgramScript: testProgramScript})
	require.ErrorIs(t, err, ErrNilTransaction)
}

func TestApplyTransactionSignedIndexOutOfRange(t *testing.T) {
	sel := selectShards(t, [][]uint64{{}})
	tx := settlementTx(t, []utxo.Meta{testMeta(t, 1, 0)}, []int64{1000})

	err := sel.ApplyTransaction(ApplyParams{
		Tx:            tx,
		SignedInputs:  []uint32{5},
		ProgramScript: testProgramScript,
	})
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestApplyTransactionRemovesSpentAndPlacesOutputs(t *testing.T) {
	sel := selectShards(t, [][]uint64{{5000}, {1000}})
	spent := testMeta(t, 1, 0) // the 5000 sat UTXO on shard 0

	tx := settlementTx(t, []utxo.Meta{spent}, []int64{3000, 1500})
	err := sel.ApplyTransaction(ApplyParams{
		Tx:            tx,
		SignedInputs:  allSigned(tx),
		ProgramScript: testProgramScript,
	})
	require.NoError(t, err)

	// Shard 0 lost its only UTXO and takes the larger output first;
	// shard 1 is then the least funded and takes the smaller one.
	totals, err := sel.btcTotals()
	require.NoError(t, err)
	assert.Equal(t, []uint64{3000, 2500}, totals)
}

func TestApplyTransactionRemovalIsIdempotent(t *testing.T) {
	sel := selectShards(t, [][]uint64{{2000}})

	// Spends an outpoint no shard holds; reconciliation proceeds.
	tx := settlementTx(t, []utxo.Meta{testMeta(t, 9, 9)}, []int64{800})
	err := sel.ApplyTransaction(ApplyParams{
		Tx:            tx,
		SignedInputs:  allSigned(tx),
		ProgramScript: testProgramScript,
	})
	require.NoError(t, err)

	totals, err := sel.btcTotals()
	require.NoError(t, err)
	assert.Equal(t, []uint64{2800}, totals)
}

func TestApplyTransactionIgnoresForeignOutputs(t *testing.T) {
	sel := selectShards(t, [][]uint64{{}})

	tx := settlementTx(t, nil, []int64{1000})
	tx.AddTxOut(wire.NewTxOut(9999, []byte{0x00, 0x14, 0xab})) // not ours

	err := sel.ApplyTransaction(ApplyParams{
		Tx:            tx,
		ProgramScript: testProgramScript,
	})
	require.NoError(t, err)

	totals, err := sel.btcTotals()
	require.NoError(t, err)
	assert.Equal(t, []uint64{1000}, totals)
}

func TestApplyTransactionTagsConsolidation(t *testing.T) {
	shards := []*Shard{NewShard()}
	set, err := NewSet(NewSliceAccessor(shards))
	require.NoError(t, err)
	sel, err := set.SelectAll()
	require.NoError(t, err)

	rate := 5.0
	tx := settlementTx(t, nil, []int64{1200})
	err = sel.ApplyTransaction(ApplyParams{
		Tx:                   tx,
		ProgramScript:        testProgramScript,
		ConsolidationFeeRate: &rate,
	})
	require.NoError(t, err)

	utxos := shards[0].BtcUtxos()
	require.Len(t, utxos, 1)
	require.NotNil(t, utxos[0].NeedsConsolidation)
	assert.Equal(t, rate, *utxos[0].NeedsConsolidation)
}

func TestApplyTransactionBtcCapacityExhausted(t *testing.T) {
	sh := NewShard()
	for i := 0; i < MaxBtcUtxos; i++ {
		require.NoError(t, sh.AddBtcUtxo(utxo.Info{Meta: testMeta(t, 1, uint32(i)), Value: 1000}))
	}
	set, err := NewSet(NewSliceAccessor([]*Shard{sh}))
	require.NoError(t, err)
	sel, err := set.SelectAll()
	require.NoError(t, err)

	tx := settlementTx(t, nil, []int64{700})
	err = sel.ApplyTransaction(ApplyParams{Tx: tx, ProgramScript: testProgramScript})
	require.ErrorIs(t, err, ErrShardsFullOfBtcUtxos)
}

func TestApplyTransactionRoutesRunesByEdict(t *testing.T) {
	shards := []*Shard{NewShard(), NewShard()}
	set, err := NewSet(NewSliceAccessor(shards))
	require.NoError(t, err)
	sel, err := set.SelectAll()
	require.NoError(t, err)

	id := runes.ID{Block: 840000, Tx: 1}
	var runeIn runes.Set
	require.NoError(t, runeIn.Add(runes.Amount{ID: id, Amount: uint128.From64(100)}))

	pointer := uint32(1)
	tx := settlementTx(t, nil, []int64{546, 546, 2000})
	err = sel.ApplyTransaction(ApplyParams{
		Tx:            tx,
		ProgramScript: testProgramScript,
		RuneInputs:    runeIn,
		Runestone: &runes.Runestone{
			Pointer: &pointer,
			Edicts: []runes.Edict{
				{ID: id, Amount: uint128.From64(60), Output: 0},
			},
		},
	})
	require.NoError(t, err)

	// Output 0 carries the edicted 60, output 1 the pointer leftover of
	// 40; each occupies one shard's rune slot. Output 2 carries no
	// runes and lands in a BTC list.
	first, ok := shards[0].RuneUtxo()
	require.True(t, ok)
	got, _ := first.Runes.Get(id)
	assert.Equal(t, uint128.From64(60), got)

	second, ok := shards[1].RuneUtxo()
	require.True(t, ok)
	got, _ = second.Runes.Get(id)
	assert.Equal(t, uint128.From64(40), got)

	assert.Equal(t, 1, shards[0].BtcCount()+shards[1].BtcCount())
}

func TestApplyTransactionRunesLeavingPool(t *testing.T) {
	sel := selectShards(t, [][]uint64{{}})

	id := runes.ID{Block: 840000, Tx: 1}
	var runeIn runes.Set
	require.NoError(t, runeIn.Add(runes.Amount{ID: id, Amount: uint128.From64(25)}))

	// Output 0 is the program's, output 1 pays an outside script. The
	// edict sends every rune to output 1, so nothing stays pooled and
	// no pointer is needed.
	tx := settlementTx(t, nil, []int64{1000})
	tx.AddTxOut(wire.NewTxOut(546, []byte{0x00, 0x14, 0xcd}))

	err := sel.ApplyTransaction(ApplyParams{
		Tx:            tx,
		ProgramScript: testProgramScript,
		RuneInputs:    runeIn,
		Runestone: &runes.Runestone{
			Edicts: []runes.Edict{
				{ID: id, Amount: uint128.From64(25), Output: 1},
			},
		},
	})
	require.NoError(t, err)

	totals, err := sel.btcTotals()
	require.NoError(t, err)
	assert.Equal(t, []uint64{1000}, totals)
}

func TestApplyTransactionUnbalancedRunestone(t *testing.T) {
	sel := selectShards(t, [][]uint64{{}})

	id := runes.ID{Block: 840000, Tx: 1}
	var runeIn runes.Set
	require.NoError(t, runeIn.Add(runes.Amount{ID: id, Amount: uint128.From64(10)}))

	tx := settlementTx(t, nil, []int64{546})
	err := sel.ApplyTransaction(ApplyParams{
		Tx:            tx,
		ProgramScript: testProgramScript,
		RuneInputs:    runeIn,
		Runestone: &runes.Runestone{
			Edicts: []runes.Edict{
				{ID: id, Amount: uint128.From64(11), Output: 0},
			},
		},
	})
	require.ErrorIs(t, err, runes.ErrInsufficientRunes)
}

func TestApplyTransactionLeftoverWithoutPointer(t *testing.T) {
	sel := selectShards(t, [][]uint64{{}})

	id := runes.ID{Block: 840000, Tx: 1}
	var runeIn runes.Set
	require.NoError(t, runeIn.Add(runes.Amount{ID: id, Amount: uint128.From64(10)}))

	tx := settlementTx(t, nil, []int64{546})
	err := sel.ApplyTransaction(ApplyParams{
		Tx:            tx,
		ProgramScript: testProgramScript,
		RuneInputs:    runeIn,
		Runestone:     &runes.Runestone{},
	})
	require.ErrorIs(t, err, ErrRunePointerMissing)
}

func TestApplyTransactionExcessRuneOutputs(t *testing.T) {
	shards := []*Shard{NewShard()}
	require.NoError(t, shards[0].SetRuneUtxo(runeInfo(t, testMeta(t, 5, 0), 1)))
	set, err := NewSet(NewSliceAccessor(shards))
	require.NoError(t, err)
	sel, err := set.SelectAll()
	require.NoError(t, err)

	id := runes.ID{Block: 840000, Tx: 1}
	var runeIn runes.Set
	require.NoError(t, runeIn.Add(runes.Amount{ID: id, Amount: uint128.From64(10)}))

	pointer := uint32(0)
	tx := settlementTx(t, nil, []int64{546})
	err = sel.ApplyTransaction(ApplyParams{
		Tx:            tx,
		ProgramScript: testProgramScript,
		RuneInputs:    runeIn,
		Runestone:     &runes.Runestone{Pointer: &pointer},
	})
	require.ErrorIs(t, err, ErrExcessRuneUtxos)
}
