package txbuilder

import (
	"bytes"
	"fmt"

	"github.com/utxoshard/libsettle-go/arith"
)

// Fee returns the implicit fee of the draft: total input value minus
// total output value. Fails with ErrInsufficientInputs when the outputs
// exceed the inputs.
func (b *Builder) Fee() (uint64, error) {
	var outSum uint64
	for _, out := range b.tx.TxOut {
		sum, err := arith.AddU64(outSum, uint64(out.Value))
		if err != nil {
			return 0, fmt.Errorf("txbuilder: output total: %w", err)
		}
		outSum = sum
	}
	remaining, err := arith.SubU64(b.totalBtcIn, outSum)
	if err != nil {
		return 0, fmt.Errorf("%w: outputs %d, inputs %d", ErrInsufficientInputs, outSum, b.totalBtcIn)
	}
	return remaining, nil
}

// feeOwed returns the satoshi fee the draft owes at rate for the given
// vsize: the larger of the standalone fee and the package fee net of
// what unconfirmed ancestors already paid. Ancestor-paid fees are never
// spent on this transaction's own target.
func (b *Builder) feeOwed(rate FeeRate, vsize int64) uint64 {
	standalone := rate.Fee(vsize)
	packageFee := rate.Fee(vsize + int64(b.unconfirmed.TotalSize))
	if packageFee > b.unconfirmed.TotalFee {
		packageFee -= b.unconfirmed.TotalFee
	} else {
		packageFee = 0
	}
	if packageFee > standalone {
		return packageFee
	}
	return standalone
}

// AdjustToPayFees sizes a change output so the draft pays exactly the
// target fee rate. The headroom is computed both with and without the
// ancestor-paid fee budget and the smaller figure is used. When
// changeScript is non-nil and the headroom clears the dust limit, a
// change output is appended (or an existing output to the same script
// enlarged); the size is then re-estimated with that output present and
// the change is shrunk, or removed, if the second pass shows it no
// longer clears dust.
func (b *Builder) AdjustToPayFees(rate FeeRate, changeScript []byte) error {
	if b.finalized {
		return ErrFinalized
	}

	remaining, err := b.Fee()
	if err != nil {
		return err
	}

	owed := b.feeOwed(rate, b.EstimateFinalVsize())
	if remaining < owed {
		return fmt.Errorf("%w: have %d sat, owe %d sat", ErrInsufficientInputs, remaining, owed)
	}
	change := remaining - owed

	if changeScript == nil || change < b.dustLimit {
		return nil
	}

	changeIdx := b.findOutput(changeScript)
	if changeIdx < 0 {
		// Re-measure with the change output counted before locking in
		// its value.
		vsize, err := b.EstimateVsizeWithExtras(Potential{Outputs: 1})
		if err != nil {
			return err
		}
		owed = b.feeOwed(rate, vsize)
		if remaining < owed || remaining-owed < b.dustLimit {
			return nil
		}
		if err := b.AddOutput(remaining-owed, changeScript); err != nil {
			return err
		}
		return nil
	}

	// Enlarging an existing change output does not change the size, but
	// its previous value is already in the output total: fold it back
	// into the headroom before resizing.
	prev := uint64(b.tx.TxOut[changeIdx].Value)
	headroom, err := arith.AddU64(change, prev)
	if err != nil {
		return fmt.Errorf("txbuilder: change headroom: %w", err)
	}
	if headroom < b.dustLimit {
		b.removeOutput(changeIdx)
		return nil
	}
	b.tx.TxOut[changeIdx].Value = int64(headroom)

	// Second pass: the draft (and hence the owed fee) is unchanged in
	// size, but re-derive to keep the invariant explicit.
	owed = b.feeOwed(rate, b.EstimateFinalVsize())
	total, err := b.Fee()
	if err != nil {
		return err
	}
	if total < owed {
		short := owed - total
		if headroom < b.dustLimit+short {
			b.removeOutput(changeIdx)
			return nil
		}
		b.tx.TxOut[changeIdx].Value = int64(headroom - short)
	}
	return nil
}

// IsFeeRateValid checks that the draft's effective fee rate meets rate,
// both standalone and combined with its unconfirmed ancestors.
func (b *Builder) IsFeeRateValid(rate FeeRate) error {
	fee, err := b.Fee()
	if err != nil {
		return err
	}
	vsize := b.EstimateFinalVsize()
	if vsize <= 0 {
		return fmt.Errorf("%w: empty transaction", ErrFeeRateTooLow)
	}
	if float64(fee)/float64(vsize) < float64(rate) {
		return fmt.Errorf("%w: %d sat / %d vB standalone", ErrFeeRateTooLow, fee, vsize)
	}

	combinedFee, err := arith.AddU64(fee, b.unconfirmed.TotalFee)
	if err != nil {
		return fmt.Errorf("txbuilder: combined fee: %w", err)
	}
	combinedSize := vsize + int64(b.unconfirmed.TotalSize)
	if float64(combinedFee)/float64(combinedSize) < float64(rate) {
		return fmt.Errorf("%w: %d sat / %d vB with ancestors", ErrFeeRateTooLow, combinedFee, combinedSize)
	}
	return nil
}

// findOutput returns the index of the first output paying to script, or
// -1 when absent.
func (b *Builder) findOutput(script []byte) int {
	for i, out := range b.tx.TxOut {
		if bytes.Equal(out.PkScript, script) {
			return i
		}
	}
	return -1
}

func (b *Builder) removeOutput(index int) {
	b.tx.TxOut = append(b.tx.TxOut[:index], b.tx.TxOut[index+1:]...)
}
