package txbuilder

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testChangeScript = append([]byte{0x51, 0x20}, make([]byte, 32)...)

func TestFeeRateFee(t *testing.T) {
	assert.Equal(t, uint64(100), FeeRate(1).Fee(100))
	assert.Equal(t, uint64(150), FeeRate(1.5).Fee(100))
	assert.Equal(t, uint64(101), FeeRate(1.005).Fee(100), "fees round up")
	assert.Equal(t, uint64(0), FeeRate(0).Fee(100))
	assert.Equal(t, uint64(0), FeeRate(2).Fee(0))
}

func TestFee(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.AddTxInput(testUtxo(0x01, 0, 10_000), testKey(t)))
	require.NoError(t, b.AddOutput(4_000, []byte{0x51}))
	require.NoError(t, b.AddOutput(3_000, []byte{0x52}))

	fee, err := b.Fee()
	require.NoError(t, err)
	assert.Equal(t, uint64(3_000), fee)
}

func TestFeeInsufficientInputs(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.AddTxInput(testUtxo(0x01, 0, 1_000), testKey(t)))
	require.NoError(t, b.AddOutput(2_000, []byte{0x51}))

	_, err := b.Fee()
	assert.ErrorIs(t, err, ErrInsufficientInputs)
}

func TestAdjustToPayFeesAddsChange(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.AddTxInput(testUtxo(0x01, 0, 100_000), testKey(t)))
	require.NoError(t, b.AddOutput(20_000, []byte{0x51}))

	rate := FeeRate(5)
	require.NoError(t, b.AdjustToPayFees(rate, testChangeScript))

	require.Len(t, b.Tx().TxOut, 2, "change output appended")
	change := uint64(b.Tx().TxOut[1].Value)
	assert.GreaterOrEqual(t, change, testDustLimit)

	fee, err := b.Fee()
	require.NoError(t, err)
	owed := rate.Fee(b.EstimateFinalVsize())
	assert.Equal(t, owed, fee, "change sized so the draft pays exactly the target")

	require.NoError(t, b.IsFeeRateValid(rate))
}

func TestAdjustToPayFeesNoChangeScript(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.AddTxInput(testUtxo(0x01, 0, 100_000), testKey(t)))
	require.NoError(t, b.AddOutput(20_000, []byte{0x51}))

	require.NoError(t, b.AdjustToPayFees(2, nil))
	assert.Len(t, b.Tx().TxOut, 1, "no change without a script")
}

func TestAdjustToPayFeesSubDustChangeSkipped(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.AddTxInput(testUtxo(0x01, 0, 21_000), testKey(t)))
	require.NoError(t, b.AddOutput(20_000, []byte{0x51}))

	// Headroom after fees is below dust: nothing may be appended.
	require.NoError(t, b.AdjustToPayFees(5, testChangeScript))
	assert.Len(t, b.Tx().TxOut, 1)
}

func TestAdjustToPayFeesInsufficient(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.AddTxInput(testUtxo(0x01, 0, 20_050), testKey(t)))
	require.NoError(t, b.AddOutput(20_000, []byte{0x51}))

	err := b.AdjustToPayFees(10, testChangeScript)
	assert.ErrorIs(t, err, ErrInsufficientInputs)
}

func TestAdjustToPayFeesEnlargesExistingChange(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.AddTxInput(testUtxo(0x01, 0, 50_000), testKey(t)))
	require.NoError(t, b.AddOutput(1_000, testChangeScript))

	rate := FeeRate(3)
	require.NoError(t, b.AdjustToPayFees(rate, testChangeScript))

	require.Len(t, b.Tx().TxOut, 1, "existing change enlarged, not duplicated")
	assert.Greater(t, b.Tx().TxOut[0].Value, int64(1_000))
	require.NoError(t, b.IsFeeRateValid(rate))
}

func TestAdjustToPayFeesAncestorBudgetNotSpent(t *testing.T) {
	// The input spends from a big unconfirmed ancestor that already paid
	// a generous fee. The ancestor's budget must not subsidize this
	// transaction: the change is limited by the standalone figure.
	ancestors := map[chainhash.Hash]MempoolInfo{
		testMeta(0x01, 0).TxID: {TotalFee: 1_000_000, TotalSize: 100},
	}
	b := New(testDustLimit, ancestors)
	require.NoError(t, b.AddTxInput(testUtxo(0x01, 0, 100_000), testKey(t)))
	require.NoError(t, b.AddOutput(20_000, []byte{0x51}))

	rate := FeeRate(5)
	require.NoError(t, b.AdjustToPayFees(rate, testChangeScript))

	fee, err := b.Fee()
	require.NoError(t, err)
	standalone := rate.Fee(b.EstimateFinalVsize())
	assert.Equal(t, standalone, fee,
		"standalone fee still owed in full despite ancestor overpayment")
}

func TestAdjustToPayFeesHeavyAncestors(t *testing.T) {
	// A huge unpaid ancestor bulk raises the owed fee above standalone.
	ancestors := map[chainhash.Hash]MempoolInfo{
		testMeta(0x01, 0).TxID: {TotalFee: 0, TotalSize: 10_000},
	}
	b := New(testDustLimit, ancestors)
	require.NoError(t, b.AddTxInput(testUtxo(0x01, 0, 200_000), testKey(t)))
	require.NoError(t, b.AddOutput(20_000, []byte{0x51}))

	rate := FeeRate(2)
	require.NoError(t, b.AdjustToPayFees(rate, testChangeScript))

	fee, err := b.Fee()
	require.NoError(t, err)
	packageOwed := rate.Fee(b.EstimateFinalVsize() + 10_000)
	assert.Equal(t, packageOwed, fee, "package fee binds when ancestors are unpaid")
	require.NoError(t, b.IsFeeRateValid(rate))
}

func TestIsFeeRateValid(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.AddTxInput(testUtxo(0x01, 0, 10_000), testKey(t)))
	require.NoError(t, b.AddOutput(9_900, []byte{0x51}))

	// 100 sat over ~130 vB is below 1 sat/vB... depends on exact vsize,
	// so assert both directions around the effective rate.
	fee, err := b.Fee()
	require.NoError(t, err)
	vsize := b.EstimateFinalVsize()
	effective := float64(fee) / float64(vsize)

	require.NoError(t, b.IsFeeRateValid(FeeRate(effective)))
	assert.ErrorIs(t, b.IsFeeRateValid(FeeRate(effective*1.5)), ErrFeeRateTooLow)
}

func TestIsFeeRateValidCombinedWithAncestors(t *testing.T) {
	ancestors := map[chainhash.Hash]MempoolInfo{
		testMeta(0x01, 0).TxID: {TotalFee: 0, TotalSize: 50_000},
	}
	b := New(testDustLimit, ancestors)
	require.NoError(t, b.AddTxInput(testUtxo(0x01, 0, 10_000), testKey(t)))
	require.NoError(t, b.AddOutput(9_000, []byte{0x51}))

	// Standalone the draft clears 1 sat/vB easily, but dragging 50 kvB
	// of unpaid ancestors it cannot.
	err := b.IsFeeRateValid(1)
	assert.ErrorIs(t, err, ErrFeeRateTooLow)
}
