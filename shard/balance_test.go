package shard

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/gaze-network/uint128"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utxoshard/libsettle-go/arith"
	"github.com/utxoshard/libsettle-go/runes"
	"github.com/utxoshard/libsettle-go/utxo"
)

// testMeta builds a distinct outpoint from a seed.
func testMeta(t *testing.T, seed byte, vout uint32) utxo.Meta {
	t.Helper()

	var txid chainhash.Hash
	txid[0] = seed
	return utxo.NewMeta(txid, vout)
}

// selectShards wraps pre-funded shards in a full selection. Each entry
// of balances funds one shard with one UTXO per value.
func selectShards(t *testing.T, balances [][]uint64) *Selected {
	t.Helper()

	shards := make([]*Shard, len(balances))
	for i, values := range balances {
		shards[i] = NewShard()
		for j, v := range values {
			err := shards[i].AddBtcUtxo(utxo.Info{
				Meta:  testMeta(t, byte(i+1), uint32(j)),
				Value: v,
			})
			require.NoError(t, err)
		}
	}

	set, err := NewSet(NewSliceAccessor(shards))
	require.NoError(t, err)
	sel, err := set.SelectAll()
	require.NoError(t, err)
	return sel
}

func TestBalanceBtcEqualSplit(t *testing.T) {
	shares, err := BalanceBtcAcrossShards([]uint64{0, 0}, 2000)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1000, 1000}, shares)
}

func TestBalanceBtcOddRemainderToFirstShards(t *testing.T) {
	shares, err := BalanceBtcAcrossShards([]uint64{0, 0}, 2041)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1021, 1020}, shares)
}

func TestBalanceBtcTopsUpBehindShards(t *testing.T) {
	shares, err := BalanceBtcAcrossShards([]uint64{100, 200, 300}, 600)
	require.NoError(t, err)
	assert.Equal(t, []uint64{300, 200, 100}, shares)
}

func TestBalanceBtcProportionalShortfall(t *testing.T) {
	shares, err := BalanceBtcAcrossShards([]uint64{100, 200, 300}, 150)
	require.NoError(t, err)

	// Needed is {150, 50, 0} against a 250 target but only 150 is
	// available, so shares follow need proportionally and still sum
	// exactly to the distributed amount.
	assert.Equal(t, []uint64{112, 38, 0}, shares)

	var sum uint64
	for _, s := range shares {
		sum += s
	}
	assert.Equal(t, uint64(150), sum)
}

func TestBalanceBtcZeroAmount(t *testing.T) {
	shares, err := BalanceBtcAcrossShards([]uint64{5, 7}, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 0}, shares)
}

func TestBalanceBtcZeroShards(t *testing.T) {
	_, err := BalanceBtcAcrossShards(nil, 100)
	require.ErrorIs(t, err, arith.ErrDivideByZero)
}

func TestBalanceRunesWideAmounts(t *testing.T) {
	big := uint128.Max.Sub(uint128.From64(1))
	shares, err := BalanceRunesAcrossShards([]uint128.Uint128{uint128.Zero, uint128.From64(1)}, big)
	require.NoError(t, err)

	var sum uint128.Uint128
	for _, s := range shares {
		next, err := arith.Add128(sum, s)
		require.NoError(t, err)
		sum = next
	}
	assert.Equal(t, big, sum)
}

func TestRedistributeSubDustMergesIntoSurvivors(t *testing.T) {
	out, err := RedistributeSubDust([]uint64{600, 700, 100, 101}, 546)
	require.NoError(t, err)
	assert.Equal(t, []uint64{701, 800}, out)
}

func TestRedistributeSubDustAllBelowDust(t *testing.T) {
	out, err := RedistributeSubDust([]uint64{334, 334, 333}, 546)
	require.NoError(t, err)

	// No single share reaches the dust limit but the aggregate does, so
	// the whole amount collapses into one entry.
	assert.Equal(t, []uint64{1001}, out)
}

func TestRedistributeSubDustForfeitsUnreachableTotal(t *testing.T) {
	out, err := RedistributeSubDust([]uint64{100, 200}, 546)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRedistributeSubDustNoSubDustEntries(t *testing.T) {
	out, err := RedistributeSubDust([]uint64{1000, 2000}, 546)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1000, 2000}, out)
}

func TestUnsettledBtcExcludesUsedUtxos(t *testing.T) {
	sel := selectShards(t, [][]uint64{{500, 300}, {800}})

	used := map[utxo.Meta]struct{}{
		testMeta(t, 1, 1): {}, // the 300 sat UTXO on shard 0
	}
	balances, err := sel.UnsettledBtc(used)
	require.NoError(t, err)
	assert.Equal(t, []uint64{500, 800}, balances)
}

func TestPlanBtcDistributionSortsDescending(t *testing.T) {
	sel := selectShards(t, [][]uint64{{100}, {200}, {300}})

	plan, err := sel.PlanBtcDistribution(600, 546, nil)
	require.NoError(t, err)

	// Shares {300, 200, 100} lose the sub-dust entries to the
	// survivors: 100 and 200 fold into 300.
	assert.Equal(t, []uint64{600}, plan)
}

func TestPlanBtcDistributionPreservesTotal(t *testing.T) {
	sel := selectShards(t, [][]uint64{{1000}, {5000}, {2000}})

	plan, err := sel.PlanBtcDistribution(9000, 546, nil)
	require.NoError(t, err)

	var sum uint64
	for i, v := range plan {
		sum += v
		if i > 0 {
			assert.LessOrEqual(t, v, plan[i-1])
		}
	}
	assert.Equal(t, uint64(9000), sum)
}

func TestPlanRuneDistributionPerRuneID(t *testing.T) {
	shards := []*Shard{NewShard(), NewShard()}
	idA := runes.ID{Block: 840000, Tx: 1}
	idB := runes.ID{Block: 840000, Tx: 2}

	var held runes.Set
	require.NoError(t, held.Add(runes.Amount{ID: idA, Amount: uint128.From64(100)}))
	require.NoError(t, shards[0].SetRuneUtxo(utxo.Info{
		Meta:  testMeta(t, 9, 0),
		Value: 546,
		Runes: held,
	}))

	set, err := NewSet(NewSliceAccessor(shards))
	require.NoError(t, err)
	sel, err := set.SelectAll()
	require.NoError(t, err)

	var amounts runes.Set
	require.NoError(t, amounts.Add(runes.Amount{ID: idA, Amount: uint128.From64(50)}))
	require.NoError(t, amounts.Add(runes.Amount{ID: idB, Amount: uint128.From64(30)}))

	plans, err := sel.PlanRuneDistribution(amounts, nil)
	require.NoError(t, err)
	require.Len(t, plans, 2)

	// Shard 0 already holds 100 of rune A, so all 50 tops up shard 1;
	// rune B splits evenly with the odd unit on shard 0.
	a0, _ := plans[0].Get(idA)
	a1, _ := plans[1].Get(idA)
	assert.Equal(t, uint128.Zero, a0)
	assert.Equal(t, uint128.From64(50), a1)

	b0, _ := plans[0].Get(idB)
	b1, _ := plans[1].Get(idB)
	assert.Equal(t, uint128.From64(15), b0)
	assert.Equal(t, uint128.From64(15), b1)
}

func TestPlanRuneDistributionExcludesUsedRuneUtxo(t *testing.T) {
	shards := []*Shard{NewShard(), NewShard()}
	id := runes.ID{Block: 840000, Tx: 3}

	var held runes.Set
	require.NoError(t, held.Add(runes.Amount{ID: id, Amount: uint128.From64(40)}))
	runeMeta := testMeta(t, 8, 0)
	require.NoError(t, shards[0].SetRuneUtxo(utxo.Info{Meta: runeMeta, Value: 546, Runes: held}))

	set, err := NewSet(NewSliceAccessor(shards))
	require.NoError(t, err)
	sel, err := set.SelectAll()
	require.NoError(t, err)

	var amounts runes.Set
	require.NoError(t, amounts.Add(runes.Amount{ID: id, Amount: uint128.From64(40)}))

	plans, err := sel.PlanRuneDistribution(amounts, map[utxo.Meta]struct{}{runeMeta: {}})
	require.NoError(t, err)

	// With the held UTXO spent, both shards start from zero.
	p0, _ := plans[0].Get(id)
	p1, _ := plans[1].Get(id)
	assert.Equal(t, uint128.From64(20), p0)
	assert.Equal(t, uint128.From64(20), p1)
}
