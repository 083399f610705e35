package txbuilder

import "math"

// FeeRate is a fee target in satoshis per virtual byte.
type FeeRate float64

// Fee returns the satoshi fee owed for vsize virtual bytes at this
// rate, rounded up.
func (r FeeRate) Fee(vsize int64) uint64 {
	if r <= 0 || vsize <= 0 {
		return 0
	}
	return uint64(math.Ceil(float64(vsize) * float64(r)))
}

// MempoolInfo aggregates the fee and size already contributed to the
// mempool by unconfirmed ancestor transactions of the draft's inputs.
type MempoolInfo struct {
	TotalFee  uint64
	TotalSize uint64
}
