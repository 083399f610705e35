package shard

import "fmt"

// MaxSelectedShards caps how many shards one operation may select
// simultaneously.
const MaxSelectedShards = 16

// Set wraps a shard collection before any selection has been made. Only
// cardinality queries and selection operators are reachable; balancing
// and reconciliation require an explicit Select first.
type Set struct {
	acc Accessor
}

// NewSet wraps an accessor in an unselected shard set.
func NewSet(acc Accessor) (*Set, error) {
	if acc == nil {
		return nil, ErrNilAccessor
	}
	return &Set{acc: acc}, nil
}

// Len returns the number of shards in the underlying collection.
func (s *Set) Len() int { return s.acc.Len() }

// Select validates indices and returns the selected view exposing the
// balancing and update operators. Selection rejects out-of-range
// indices, duplicates, empty selections and selections beyond
// MaxSelectedShards.
func (s *Set) Select(indices []int) (*Selected, error) {
	if len(indices) == 0 {
		return nil, ErrNoShardsSelected
	}
	if len(indices) > MaxSelectedShards {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyShards, len(indices), MaxSelectedShards)
	}
	seen := make(map[int]struct{}, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= s.acc.Len() {
			return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, idx, s.acc.Len())
		}
		if _, dup := seen[idx]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateShard, idx)
		}
		seen[idx] = struct{}{}
	}
	sel := make([]int, len(indices))
	copy(sel, indices)
	return &Selected{acc: s.acc, indices: sel}, nil
}

// SelectAll selects every shard in the collection.
func (s *Set) SelectAll() (*Selected, error) {
	indices := make([]int, s.acc.Len())
	for i := range indices {
		indices[i] = i
	}
	return s.Select(indices)
}

// Selected is a shard set with a validated selection. Balancing and
// reconciliation operate on the selected shards in selection order.
type Selected struct {
	acc     Accessor
	indices []int
}

// Len returns the number of selected shards.
func (s *Selected) Len() int { return len(s.indices) }

// Indices returns a copy of the selected shard indices.
func (s *Selected) Indices() []int {
	out := make([]int, len(s.indices))
	copy(out, s.indices)
	return out
}

// view runs fn against the nth selected shard.
func (s *Selected) view(n int, fn func(*Shard) error) error {
	return s.acc.View(s.indices[n], fn)
}

// update runs fn with write access to the nth selected shard.
func (s *Selected) update(n int, fn func(*Shard) error) error {
	return s.acc.Update(s.indices[n], fn)
}
