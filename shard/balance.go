package shard

import (
	"fmt"
	"sort"

	"github.com/gaze-network/uint128"

	"github.com/utxoshard/libsettle-go/arith"
	"github.com/utxoshard/libsettle-go/runes"
	"github.com/utxoshard/libsettle-go/utxo"
)

// balanceAcross computes one share per shard so that post-distribution
// balances are as equal as possible. The shares sum exactly to amount.
//
// When amount covers every shard's shortfall against the equalized
// target, each shard first receives its top-up and the leftover is
// spread evenly, the first leftover%n shards absorbing one extra unit
// each. Otherwise shares are assigned proportionally to each shard's
// shortfall using cumulative sums, the rounding error falling entirely
// on the last shard. The cumulative rounding is load-bearing for
// downstream callers and must not be reworked.
func balanceAcross(current []uint128.Uint128, amount uint128.Uint128) ([]uint128.Uint128, error) {
	if len(current) == 0 {
		return nil, fmt.Errorf("shard: balance across zero shards: %w", arith.ErrDivideByZero)
	}

	shares := make([]uint128.Uint128, len(current))
	if amount.IsZero() {
		return shares, nil
	}

	numShards := uint128.From64(uint64(len(current)))

	var total uint128.Uint128
	for _, c := range current {
		sum, err := arith.Add128(total, c)
		if err != nil {
			return nil, err
		}
		total = sum
	}
	totalAfter, err := arith.Add128(total, amount)
	if err != nil {
		return nil, err
	}
	desired, err := arith.Div128(totalAfter, numShards)
	if err != nil {
		return nil, err
	}

	needed := make([]uint128.Uint128, len(current))
	var totalNeeded uint128.Uint128
	for i, c := range current {
		if c.Cmp(desired) >= 0 {
			continue
		}
		needed[i] = desired.Sub(c)
		sum, err := arith.Add128(totalNeeded, needed[i])
		if err != nil {
			return nil, err
		}
		totalNeeded = sum
	}

	if totalNeeded.Cmp(amount) <= 0 {
		leftover := amount.Sub(totalNeeded)
		base, rem := leftover.QuoRem(numShards)
		for i := range shares {
			share, err := arith.Add128(needed[i], base)
			if err != nil {
				return nil, err
			}
			if uint64(i) < rem.Lo {
				share, err = arith.Add128(share, uint128.From64(1))
				if err != nil {
					return nil, err
				}
			}
			shares[i] = share
		}
		return shares, nil
	}

	// Insufficient to equalize: distribute proportionally to need using
	// cumulative sums so prefix totals stay monotonic and the final
	// share lands the total exactly on amount.
	var cumNeeded, prevAssigned uint128.Uint128
	for i := range shares {
		sum, err := arith.Add128(cumNeeded, needed[i])
		if err != nil {
			return nil, err
		}
		cumNeeded = sum
		scaled, err := arith.Mul128(cumNeeded, amount)
		if err != nil {
			return nil, err
		}
		cumAssigned, err := arith.Div128(scaled, totalNeeded)
		if err != nil {
			return nil, err
		}
		shares[i], err = arith.Sub128(cumAssigned, prevAssigned)
		if err != nil {
			return nil, err
		}
		prevAssigned = cumAssigned
	}
	return shares, nil
}

// BalanceRunesAcrossShards divides a 128-bit rune amount across shards
// holding the given per-shard balances of that rune. The returned
// shares align with the input order and sum exactly to amount.
func BalanceRunesAcrossShards(current []uint128.Uint128, amount uint128.Uint128) ([]uint128.Uint128, error) {
	return balanceAcross(current, amount)
}

// BalanceBtcAcrossShards divides amount satoshis across shards holding
// the given current balances. The returned shares align with the input
// order and sum exactly to amount.
func BalanceBtcAcrossShards(current []uint64, amount uint64) ([]uint64, error) {
	wide := make([]uint128.Uint128, len(current))
	for i, c := range current {
		wide[i] = uint128.From64(c)
	}
	shares, err := balanceAcross(wide, uint128.From64(amount))
	if err != nil {
		return nil, err
	}
	out := make([]uint64, len(shares))
	for i, s := range shares {
		v, err := arith.U64From128(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// RedistributeSubDust folds every share below dustLimit back into the
// remaining shares: sub-dust entries are dropped and their sum spread
// evenly over the survivors, the first survivors absorbing the single
// unit remainder. If nothing survives, the aggregated sub-dust sum
// becomes a single entry iff it alone reaches the dust limit; otherwise
// the result is empty and the value is forfeited to fees. The result's
// cardinality can differ from the input's, so callers must not assume
// index-to-shard correspondence afterward.
func RedistributeSubDust(amounts []uint64, dustLimit uint64) ([]uint64, error) {
	var (
		keep     []uint64
		subTotal uint64
	)
	for _, a := range amounts {
		if a >= dustLimit {
			keep = append(keep, a)
			continue
		}
		sum, err := arith.AddU64(subTotal, a)
		if err != nil {
			return nil, err
		}
		subTotal = sum
	}

	if len(keep) == 0 {
		if subTotal >= dustLimit {
			return []uint64{subTotal}, nil
		}
		return []uint64{}, nil
	}

	base := subTotal / uint64(len(keep))
	rem := subTotal % uint64(len(keep))
	for i := range keep {
		sum, err := arith.AddU64(keep[i], base)
		if err != nil {
			return nil, err
		}
		if uint64(i) < rem {
			sum, err = arith.AddU64(sum, 1)
			if err != nil {
				return nil, err
			}
		}
		keep[i] = sum
	}
	return keep, nil
}

// UnsettledBtc returns the BTC balance of each selected shard, in
// selection order, excluding UTXOs already consumed by the in-flight
// transaction (used, keyed by outpoint).
func (s *Selected) UnsettledBtc(used map[utxo.Meta]struct{}) ([]uint64, error) {
	balances := make([]uint64, s.Len())
	for n := range s.indices {
		err := s.view(n, func(sh *Shard) error {
			var total uint64
			for _, info := range sh.BtcUtxos() {
				if _, spent := used[info.Meta]; spent {
					continue
				}
				sum, err := arith.AddU64(total, info.Value)
				if err != nil {
					return err
				}
				total = sum
			}
			balances[n] = total
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return balances, nil
}

// PlanBtcDistribution computes the satoshi outputs that spread amount
// across the selected shards: balances are equalized, sub-dust shares
// merged, and the result sorted descending for deterministic output
// ordering. Because of the sub-dust merge the result's cardinality may
// differ from the selection's, and entries no longer map to specific
// shards.
func (s *Selected) PlanBtcDistribution(amount, dustLimit uint64, used map[utxo.Meta]struct{}) ([]uint64, error) {
	current, err := s.UnsettledBtc(used)
	if err != nil {
		return nil, err
	}
	shares, err := BalanceBtcAcrossShards(current, amount)
	if err != nil {
		return nil, err
	}
	merged, err := RedistributeSubDust(shares, dustLimit)
	if err != nil {
		return nil, err
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i] > merged[j] })
	return merged, nil
}

// PlanRuneDistribution applies the balancing primitive independently
// per distinct rune id in amounts, accumulating the shares into one
// rune set per selected shard. Index correspondence with the selection
// is preserved: runes have no dust concept.
func (s *Selected) PlanRuneDistribution(amounts runes.Set, used map[utxo.Meta]struct{}) ([]runes.Set, error) {
	plans := make([]runes.Set, s.Len())

	for _, entry := range amounts.Entries() {
		current := make([]uint128.Uint128, s.Len())
		for n := range s.indices {
			err := s.view(n, func(sh *Shard) error {
				info, ok := sh.RuneUtxo()
				if !ok {
					return nil
				}
				if _, spent := used[info.Meta]; spent {
					return nil
				}
				if held, ok := info.Runes.Get(entry.ID); ok {
					current[n] = held
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}

		shares, err := BalanceRunesAcrossShards(current, entry.Amount)
		if err != nil {
			return nil, err
		}
		for n, share := range shares {
			if err := plans[n].Add(runes.Amount{ID: entry.ID, Amount: share}); err != nil {
				return nil, err
			}
		}
	}
	return plans, nil
}
