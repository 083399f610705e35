// Package txbuilder constructs fee-correct settlement transactions on
// behalf of the shard pool. A Builder tracks the draft transaction, the
// inputs still requiring a program signature, the accounts whose state
// must be persisted on exit, and the running BTC and rune input totals.
// All collections are fixed-capacity: pushes past capacity fail with a
// typed error instead of growing.
package txbuilder

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/utxoshard/libsettle-go/arith"
	"github.com/utxoshard/libsettle-go/runes"
	"github.com/utxoshard/libsettle-go/utxo"
)

const (
	// MaxSigners is the fixed capacity of the to-sign input list.
	MaxSigners = 64

	// MaxModifiedAccounts is the fixed capacity of the exit-time
	// persistence list.
	MaxModifiedAccounts = 32

	// MaxEdicts is the fixed capacity of the runestone edict list.
	MaxEdicts = 64

	// txVersion is the transaction version used for settlement drafts.
	txVersion = 2
)

// InputSigner records that the input at Index must be signed with the
// key PubKey before broadcast.
type InputSigner struct {
	Index  uint32
	PubKey *btcec.PublicKey
}

// Account identifies a program account taking part in a state
// transition. StateUtxo is the dust-value UTXO anchoring the account's
// serialized state on chain.
type Account struct {
	PubKey    *btcec.PublicKey
	StateUtxo utxo.Meta
}

// Finalizer is the signing/broadcast sink: it receives the finished
// transaction, the accounts whose state must be persisted, and the
// (input index, key) pairs still requiring signatures.
type Finalizer interface {
	Finalize(accounts []*Account, tx *wire.MsgTx, signers []InputSigner) error
}

// Builder is the aggregate root of transaction construction. Create one
// with New or NewFromDraft, mutate it incrementally, and consume it
// exactly once with Finalize.
type Builder struct {
	tx       *wire.MsgTx
	signers  []InputSigner
	modified []*Account

	totalBtcIn uint64
	runeIn     runes.Set
	stone      runes.Runestone

	dustLimit uint64

	// Known unconfirmed ancestors by txid, and the subset already
	// counted into unconfirmed. A txid seen twice contributes its
	// ancestor cost only once.
	ancestors   map[chainhash.Hash]MempoolInfo
	seen        map[chainhash.Hash]struct{}
	unconfirmed MempoolInfo

	finalized bool
}

// New returns an empty Builder. ancestors maps the txids of
// unconfirmed transactions to the mempool fee/size they already pay;
// it may be nil when every spendable input is confirmed.
func New(dustLimit uint64, ancestors map[chainhash.Hash]MempoolInfo) *Builder {
	return &Builder{
		tx:        wire.NewMsgTx(txVersion),
		dustLimit: dustLimit,
		ancestors: ancestors,
		seen:      make(map[chainhash.Hash]struct{}),
	}
}

// NewFromDraft reconstructs a Builder around an existing draft
// transaction. inputs must describe the UTXOs spent by the draft's
// inputs, in order; input totals and ancestor accounting are re-seeded
// from them.
func NewFromDraft(tx *wire.MsgTx, inputs []utxo.Info, dustLimit uint64, ancestors map[chainhash.Hash]MempoolInfo) (*Builder, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: draft transaction", ErrNilParam)
	}
	if len(inputs) != len(tx.TxIn) {
		return nil, fmt.Errorf("%w: %d inputs, %d utxos", ErrInputLengthMismatch, len(tx.TxIn), len(inputs))
	}

	b := &Builder{
		tx:        tx,
		dustLimit: dustLimit,
		ancestors: ancestors,
		seen:      make(map[chainhash.Hash]struct{}),
	}
	for i := range inputs {
		total, err := arith.AddU64(b.totalBtcIn, inputs[i].Value)
		if err != nil {
			return nil, fmt.Errorf("txbuilder: input total: %w", err)
		}
		b.totalBtcIn = total
		if err := b.runeIn.AddSet(inputs[i].Runes); err != nil {
			return nil, err
		}
		if err := b.noteAncestor(inputs[i].Meta.TxID); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Tx returns the draft transaction. Callers must not mutate it
// directly; use the builder's operations.
func (b *Builder) Tx() *wire.MsgTx { return b.tx }

// Signers returns a copy of the to-sign input list.
func (b *Builder) Signers() []InputSigner {
	out := make([]InputSigner, len(b.signers))
	copy(out, b.signers)
	return out
}

// SignedInputIndices returns the input indices requiring a program
// signature, in registration order.
func (b *Builder) SignedInputIndices() []uint32 {
	out := make([]uint32, len(b.signers))
	for i, s := range b.signers {
		out[i] = s.Index
	}
	return out
}

// ModifiedAccounts returns the accounts registered for exit-time
// persistence.
func (b *Builder) ModifiedAccounts() []*Account {
	out := make([]*Account, len(b.modified))
	copy(out, b.modified)
	return out
}

// TotalBtcInput returns the running satoshi input total.
func (b *Builder) TotalBtcInput() uint64 { return b.totalBtcIn }

// RuneInput returns a copy of the running rune input totals.
func (b *Builder) RuneInput() runes.Set { return b.runeIn.Clone() }

// Runestone returns a copy of the draft's runestone descriptor.
func (b *Builder) Runestone() runes.Runestone {
	stone := runes.Runestone{Edicts: make([]runes.Edict, len(b.stone.Edicts))}
	copy(stone.Edicts, b.stone.Edicts)
	if b.stone.Pointer != nil {
		p := *b.stone.Pointer
		stone.Pointer = &p
	}
	return stone
}

// UnconfirmedAncestors returns the accumulated ancestor fee/size of the
// draft's inputs.
func (b *Builder) UnconfirmedAncestors() MempoolInfo { return b.unconfirmed }

// HasInput reports whether the draft already spends the given outpoint.
func (b *Builder) HasInput(meta utxo.Meta) bool {
	op := meta.OutPoint()
	for _, in := range b.tx.TxIn {
		if in.PreviousOutPoint == op {
			return true
		}
	}
	return false
}

// AddStateTransition appends a state transition input spending the
// account's state anchor UTXO (always exactly the dust-limit value),
// registers the account's key in the signer list, and tracks the
// account for exit-time persistence.
func (b *Builder) AddStateTransition(acct *Account) error {
	return b.InsertStateTransitionInput(len(b.tx.TxIn), acct)
}

// InsertStateTransitionInput is AddStateTransition at an explicit input
// position. Signer indices at or after the position shift by one.
func (b *Builder) InsertStateTransitionInput(index int, acct *Account) error {
	if acct == nil || acct.PubKey == nil {
		return fmt.Errorf("%w: account", ErrNilParam)
	}
	if err := b.trackAccount(acct); err != nil {
		return err
	}
	info := utxo.Info{Meta: acct.StateUtxo, Value: b.dustLimit}
	return b.insertInput(index, info, acct.PubKey)
}

// AddTxInput appends a program-owned spend of a known UTXO and
// registers signer as the key that must sign it.
func (b *Builder) AddTxInput(info utxo.Info, signer *btcec.PublicKey) error {
	return b.InsertTxInput(len(b.tx.TxIn), info, signer)
}

// InsertTxInput is AddTxInput at an explicit input position. Signer
// indices at or after the position shift by one.
func (b *Builder) InsertTxInput(index int, info utxo.Info, signer *btcec.PublicKey) error {
	if signer == nil {
		return fmt.Errorf("%w: signer", ErrNilParam)
	}
	return b.insertInput(index, info, signer)
}

// AddUserTxInput appends a user-supplied spend. The user signs it
// outside the program, so no signer entry is registered, but the input
// still counts toward the BTC and rune totals.
func (b *Builder) AddUserTxInput(info utxo.Info) error {
	return b.InsertUserTxInput(len(b.tx.TxIn), info)
}

// InsertUserTxInput is AddUserTxInput at an explicit input position.
// Signer indices at or after the position still shift by one.
func (b *Builder) InsertUserTxInput(index int, info utxo.Info) error {
	return b.insertInput(index, info, nil)
}

// insertInput performs the shared insertion bookkeeping. All fallible
// checks run before the first mutation so a returned error leaves the
// builder untouched.
func (b *Builder) insertInput(index int, info utxo.Info, signer *btcec.PublicKey) error {
	if b.finalized {
		return ErrFinalized
	}
	if index < 0 || index > len(b.tx.TxIn) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(b.tx.TxIn))
	}
	if signer != nil && len(b.signers) >= MaxSigners {
		return ErrSignersFull
	}
	total, err := arith.AddU64(b.totalBtcIn, info.Value)
	if err != nil {
		return fmt.Errorf("txbuilder: input total: %w", err)
	}
	if err := b.runeIn.AddSet(info.Runes); err != nil {
		return err
	}
	b.totalBtcIn = total

	in := wire.NewTxIn(&wire.OutPoint{Hash: info.Meta.TxID, Index: info.Meta.Vout}, nil, nil)
	b.tx.TxIn = append(b.tx.TxIn, nil)
	copy(b.tx.TxIn[index+1:], b.tx.TxIn[index:])
	b.tx.TxIn[index] = in

	// Every already-registered signer at or after the insertion point
	// now signs an input one position to the right.
	for i := range b.signers {
		if b.signers[i].Index >= uint32(index) {
			b.signers[i].Index++
		}
	}
	if signer != nil {
		b.signers = append(b.signers, InputSigner{Index: uint32(index), PubKey: signer})
	}

	return b.noteAncestor(info.Meta.TxID)
}

// trackAccount registers acct for exit-time persistence, once per state
// anchor.
func (b *Builder) trackAccount(acct *Account) error {
	for _, m := range b.modified {
		if m.StateUtxo == acct.StateUtxo {
			return nil
		}
	}
	if len(b.modified) >= MaxModifiedAccounts {
		return ErrAccountsFull
	}
	b.modified = append(b.modified, acct)
	return nil
}

// noteAncestor accumulates the ancestor cost of txid on its first
// occurrence among the draft's inputs.
func (b *Builder) noteAncestor(txid chainhash.Hash) error {
	info, ok := b.ancestors[txid]
	if !ok {
		return nil
	}
	if _, counted := b.seen[txid]; counted {
		return nil
	}
	fee, err := arith.AddU64(b.unconfirmed.TotalFee, info.TotalFee)
	if err != nil {
		return fmt.Errorf("txbuilder: ancestor fee total: %w", err)
	}
	size, err := arith.AddU64(b.unconfirmed.TotalSize, info.TotalSize)
	if err != nil {
		return fmt.Errorf("txbuilder: ancestor size total: %w", err)
	}
	b.unconfirmed = MempoolInfo{TotalFee: fee, TotalSize: size}
	b.seen[txid] = struct{}{}
	return nil
}

// AddOutput appends an output paying value satoshis to pkScript. Values
// below the dust limit are invalid.
func (b *Builder) AddOutput(value uint64, pkScript []byte) error {
	if b.finalized {
		return ErrFinalized
	}
	if len(pkScript) == 0 {
		return fmt.Errorf("%w: output script", ErrNilParam)
	}
	if value < b.dustLimit {
		return fmt.Errorf("%w: %d < %d", ErrOutputBelowDust, value, b.dustLimit)
	}
	b.tx.AddTxOut(wire.NewTxOut(int64(value), pkScript))
	return nil
}

// AddEdict appends a rune transfer edict to the runestone.
func (b *Builder) AddEdict(e runes.Edict) error {
	if b.finalized {
		return ErrFinalized
	}
	if len(b.stone.Edicts) >= MaxEdicts {
		return ErrEdictsFull
	}
	b.stone.Edicts = append(b.stone.Edicts, e)
	return nil
}

// SetRunePointer declares the output index receiving all runes not
// assigned by an edict.
func (b *Builder) SetRunePointer(vout uint32) error {
	if b.finalized {
		return ErrFinalized
	}
	b.stone.Pointer = &vout
	return nil
}

// Finalize consumes the builder: the runestone (if any) is enciphered
// and appended as an OP_RETURN output, then the transaction, the
// modified accounts and the signer list are handed to the sink. The
// builder rejects every operation afterward, whether or not the sink
// succeeds.
func (b *Builder) Finalize(sink Finalizer) error {
	if b.finalized {
		return ErrFinalized
	}
	if sink == nil {
		return fmt.Errorf("%w: sink", ErrNilParam)
	}
	b.finalized = true

	if !b.stone.IsEmpty() {
		script, err := b.stone.Encipher()
		if err != nil {
			return fmt.Errorf("txbuilder: encipher runestone: %w", err)
		}
		b.tx.AddTxOut(wire.NewTxOut(0, script))
	}

	if err := sink.Finalize(b.modified, b.tx, b.signers); err != nil {
		return fmt.Errorf("txbuilder: finalize: %w", err)
	}
	return nil
}
