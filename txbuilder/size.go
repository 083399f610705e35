package txbuilder

import (
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/mempool"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	// taprootWitnessSize is the witness weight contributed by one
	// pending key-path signature: item count varint, length byte and a
	// 64-byte schnorr signature.
	taprootWitnessSize = 66

	// witnessHeaderSize covers the segwit marker and flag bytes, paid
	// once as soon as any input carries a witness.
	witnessHeaderSize = 2

	// templateScriptSize is the size of a taproot output script, used
	// for speculative output templates.
	templateScriptSize = 34
)

// pendingWitnessBytes is the serialized weight the signer list will add
// once every registered input is signed.
func pendingWitnessBytes(tx *wire.MsgTx, numSigners int) int {
	if numSigners == 0 {
		return 0
	}
	extra := numSigners * taprootWitnessSize
	if !tx.HasWitness() {
		extra += witnessHeaderSize
	}
	return extra
}

// EstimateFinalSize returns the total serialized size of the draft in
// bytes once every registered signer has attached its witness.
func (b *Builder) EstimateFinalSize() int {
	return b.tx.SerializeSize() + pendingWitnessBytes(b.tx, len(b.signers))
}

// EstimateFinalVsize returns the draft's virtual size including the
// pending witnesses. Witness bytes are discounted by the protocol's
// weight factor of four.
func (b *Builder) EstimateFinalVsize() int64 {
	vsize := mempool.GetTxVirtualSize(btcutil.NewTx(b.tx))
	extra := pendingWitnessBytes(b.tx, len(b.signers))
	scale := blockchain.WitnessScaleFactor
	return vsize + int64((extra+scale-1)/scale)
}

// Potential describes inputs and outputs that have not been added yet
// but should be counted by a size estimate. WithSigners additionally
// counts one pending signature per potential input.
type Potential struct {
	Inputs      int
	Outputs     int
	WithSigners bool
}

// EstimateSizeWithExtras estimates the final size as if the potential
// inputs/outputs had been appended. The builder is left byte-for-byte
// identical to its pre-call state.
func (b *Builder) EstimateSizeWithExtras(p Potential) (int, error) {
	size, _, err := b.estimateWithExtras(p)
	return size, err
}

// EstimateVsizeWithExtras is EstimateSizeWithExtras in virtual bytes.
func (b *Builder) EstimateVsizeWithExtras(p Potential) (int64, error) {
	_, vsize, err := b.estimateWithExtras(p)
	return vsize, err
}

// estimateWithExtras speculatively appends template inputs, outputs and
// signer entries, measures, and rolls every appended item back.
func (b *Builder) estimateWithExtras(p Potential) (int, int64, error) {
	if p.WithSigners && len(b.signers)+p.Inputs > MaxSigners {
		return 0, 0, ErrSignersFull
	}

	numIn := len(b.tx.TxIn)
	numOut := len(b.tx.TxOut)
	numSigners := len(b.signers)

	for i := 0; i < p.Inputs; i++ {
		b.tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{}, nil, nil))
		if p.WithSigners {
			b.signers = append(b.signers, InputSigner{Index: uint32(numIn + i)})
		}
	}
	template := make([]byte, templateScriptSize)
	template[0] = txscript.OP_1
	template[1] = templateScriptSize - 2
	for i := 0; i < p.Outputs; i++ {
		b.tx.AddTxOut(wire.NewTxOut(int64(b.dustLimit), template))
	}

	size := b.EstimateFinalSize()
	vsize := b.EstimateFinalVsize()

	b.tx.TxIn = b.tx.TxIn[:numIn]
	b.tx.TxOut = b.tx.TxOut[:numOut]
	b.signers = b.signers[:numSigners]

	return size, vsize, nil
}
