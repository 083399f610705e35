package runes

import (
	"fmt"
	"math"
	"sort"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/gaze-network/uint128"
)

// Runestone payload tags. Tags are LEB128 varints preceding their
// value; tag Body terminates the tag section and introduces the edict
// quads.
const (
	tagBody    = 0
	tagPointer = 22
)

// maxVarintBytes bounds an LEB128 encoding of a 128-bit integer.
const maxVarintBytes = 19

// Edict instructs the protocol to move an amount of one rune to a
// specific transaction output.
type Edict struct {
	ID     ID
	Amount uint128.Uint128
	Output uint32
}

// Runestone is the transfer payload attached to a settlement
// transaction: an optional pointer naming the output that receives all
// unassigned runes, plus a list of explicit transfer edicts.
type Runestone struct {
	Pointer *uint32
	Edicts  []Edict
}

// IsEmpty reports whether the runestone carries no pointer and no edicts.
func (r *Runestone) IsEmpty() bool {
	return r.Pointer == nil && len(r.Edicts) == 0
}

// Encipher serializes the runestone into an OP_RETURN OP_13 script.
// Edicts are sorted by rune id and delta-encoded.
func (r *Runestone) Encipher() ([]byte, error) {
	var payload []byte

	if r.Pointer != nil {
		payload = appendVarint(payload, uint128.From64(tagPointer))
		payload = appendVarint(payload, uint128.From64(uint64(*r.Pointer)))
	}

	if len(r.Edicts) > 0 {
		payload = appendVarint(payload, uint128.From64(tagBody))

		edicts := make([]Edict, len(r.Edicts))
		copy(edicts, r.Edicts)
		sort.Slice(edicts, func(i, j int) bool { return edicts[i].ID.Cmp(edicts[j].ID) < 0 })

		var prev ID
		for _, e := range edicts {
			blockDelta := e.ID.Block - prev.Block
			txField := e.ID.Tx
			if blockDelta == 0 {
				txField = e.ID.Tx - prev.Tx
			}
			payload = appendVarint(payload, uint128.From64(blockDelta))
			payload = appendVarint(payload, uint128.From64(uint64(txField)))
			payload = appendVarint(payload, e.Amount)
			payload = appendVarint(payload, uint128.From64(uint64(e.Output)))
			prev = e.ID
		}
	}

	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddOp(txscript.OP_13).
		AddData(payload).
		Script()
}

// IsRunestoneScript reports whether script starts with the runestone
// OP_RETURN OP_13 prefix.
func IsRunestoneScript(script []byte) bool {
	return len(script) >= 2 && script[0] == txscript.OP_RETURN && script[1] == txscript.OP_13
}

// Decipher parses a runestone from an OP_RETURN OP_13 script produced
// by Encipher. Unknown tags are skipped together with one value each.
func Decipher(script []byte) (*Runestone, error) {
	if !IsRunestoneScript(script) {
		return nil, ErrNoRunestone
	}

	var payload []byte
	tokenizer := txscript.MakeScriptTokenizer(0, script[2:])
	for tokenizer.Next() {
		if tokenizer.Data() == nil {
			return nil, fmt.Errorf("%w: non-push opcode in payload", ErrInvalidRunestone)
		}
		payload = append(payload, tokenizer.Data()...)
	}
	if err := tokenizer.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRunestone, err)
	}

	integers, err := decodeVarints(payload)
	if err != nil {
		return nil, err
	}

	stone := &Runestone{}
	i := 0
	for i < len(integers) {
		tag := integers[i]
		i++
		if tag.Hi != 0 {
			return nil, fmt.Errorf("%w: tag out of range", ErrInvalidRunestone)
		}

		if tag.Lo == tagBody {
			if (len(integers)-i)%4 != 0 {
				return nil, fmt.Errorf("%w: trailing edict integers", ErrInvalidRunestone)
			}
			var prev ID
			for ; i < len(integers); i += 4 {
				id, err := decodeEdictID(prev, integers[i], integers[i+1])
				if err != nil {
					return nil, err
				}
				output, err := u32From128(integers[i+3])
				if err != nil {
					return nil, err
				}
				stone.Edicts = append(stone.Edicts, Edict{
					ID:     id,
					Amount: integers[i+2],
					Output: output,
				})
				prev = id
			}
			break
		}

		if i >= len(integers) {
			return nil, fmt.Errorf("%w: tag %d without value", ErrInvalidRunestone, tag.Lo)
		}
		value := integers[i]
		i++

		if tag.Lo == tagPointer {
			p, err := u32From128(value)
			if err != nil {
				return nil, err
			}
			stone.Pointer = &p
		}
		// Other tags (etching, mint, ...) are outside this core's
		// scope and are ignored.
	}

	return stone, nil
}

// FindRunestone locates and deciphers the first runestone output of a
// transaction. It returns the runestone and its output index, or
// ErrNoRunestone if the transaction carries none.
func FindRunestone(tx *wire.MsgTx) (*Runestone, int, error) {
	for vout, out := range tx.TxOut {
		if !IsRunestoneScript(out.PkScript) {
			continue
		}
		stone, err := Decipher(out.PkScript)
		if err != nil {
			return nil, 0, err
		}
		return stone, vout, nil
	}
	return nil, 0, ErrNoRunestone
}

// decodeEdictID reverses the edict delta encoding relative to the
// previously decoded id.
func decodeEdictID(prev ID, blockDelta, txField uint128.Uint128) (ID, error) {
	if blockDelta.Hi != 0 || txField.Hi != 0 || txField.Lo > math.MaxUint32 {
		return ID{}, fmt.Errorf("%w: edict id out of range", ErrInvalidRunestone)
	}
	if blockDelta.Lo == 0 {
		tx := uint64(prev.Tx) + txField.Lo
		if tx > math.MaxUint32 {
			return ID{}, fmt.Errorf("%w: edict id out of range", ErrInvalidRunestone)
		}
		return ID{Block: prev.Block, Tx: uint32(tx)}, nil
	}
	return ID{Block: prev.Block + blockDelta.Lo, Tx: uint32(txField.Lo)}, nil
}

func u32From128(v uint128.Uint128) (uint32, error) {
	if v.Hi != 0 || v.Lo > math.MaxUint32 {
		return 0, fmt.Errorf("%w: value exceeds 32 bits", ErrInvalidRunestone)
	}
	return uint32(v.Lo), nil
}

// appendVarint appends the LEB128 encoding of v to buf.
func appendVarint(buf []byte, v uint128.Uint128) []byte {
	threshold := uint128.From64(0x80)
	for v.Cmp(threshold) >= 0 {
		buf = append(buf, byte(v.Lo&0x7f)|0x80)
		v = v.Rsh(7)
	}
	return append(buf, byte(v.Lo))
}

// decodeVarint decodes one LEB128 integer from b, returning the value
// and the number of bytes consumed.
func decodeVarint(b []byte) (uint128.Uint128, int, error) {
	var v uint128.Uint128
	for i, c := range b {
		if i >= maxVarintBytes {
			return uint128.Zero, 0, ErrVarintTooLarge
		}
		chunk := uint128.From64(uint64(c & 0x7f))
		if i == maxVarintBytes-1 && chunk.Lo > 0x03 {
			return uint128.Zero, 0, ErrVarintTooLarge
		}
		v = v.Or(chunk.Lsh(uint(7 * i)))
		if c&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return uint128.Zero, 0, ErrVarintTruncated
}

// decodeVarints decodes the full payload into its integer sequence.
func decodeVarints(payload []byte) ([]uint128.Uint128, error) {
	var out []uint128.Uint128
	for len(payload) > 0 {
		v, n, err := decodeVarint(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		payload = payload[n:]
	}
	return out, nil
}
