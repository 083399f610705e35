package shard

import "fmt"

// Accessor yields scoped views of a shard collection. A shard handle is
// only valid for the duration of one callback and must not be retained:
// the contract precludes overlapping mutable borrows of the same
// underlying storage, so a borrow failure is reported as an error, never
// a deadlock.
type Accessor interface {
	// Len returns the number of shards in the collection.
	Len() int

	// View runs fn with read access to shard i.
	View(i int, fn func(*Shard) error) error

	// Update runs fn with write access to shard i.
	Update(i int, fn func(*Shard) error) error
}

// SliceAccessor is the in-memory Accessor over a slice of shards. A
// re-entrant borrow of a shard that is already lent out fails with
// ErrShardBusy.
type SliceAccessor struct {
	shards []*Shard
	busy   []bool
}

var _ Accessor = (*SliceAccessor)(nil)

// NewSliceAccessor wraps shards in a SliceAccessor.
func NewSliceAccessor(shards []*Shard) *SliceAccessor {
	return &SliceAccessor{
		shards: shards,
		busy:   make([]bool, len(shards)),
	}
}

// Len implements Accessor.
func (a *SliceAccessor) Len() int { return len(a.shards) }

// View implements Accessor.
func (a *SliceAccessor) View(i int, fn func(*Shard) error) error {
	return a.borrow(i, fn)
}

// Update implements Accessor.
func (a *SliceAccessor) Update(i int, fn func(*Shard) error) error {
	return a.borrow(i, fn)
}

func (a *SliceAccessor) borrow(i int, fn func(*Shard) error) error {
	if i < 0 || i >= len(a.shards) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(a.shards))
	}
	if a.busy[i] {
		return fmt.Errorf("%w: index %d", ErrShardBusy, i)
	}
	a.busy[i] = true
	defer func() { a.busy[i] = false }()
	return fn(a.shards[i])
}
