// Package sortkey implements the total order over transactions used to
// make cache ordering deterministic: newest first, unconfirmed
// transactions ahead of confirmed ones.
package sortkey

import "sort"

// Block is the subset of a transaction's confirmation data the sort cares
// about.
type Block struct {
	Height    uint64
	Timestamp int64
	Present   bool // false for an unconfirmed transaction
}

// Tx is the subset of a transaction record the comparator needs.
type Tx struct {
	Txid          string
	Block         Block
	Timestamp     int64 // mempool timestamp; 0 if absent
	TimeFirstSeen int64 // monotone per-indexer, assumed unique per txid
}

// Less reports whether a should sort before b.
func Less(a, b Tx) bool {
	switch {
	case !a.Block.Present && !b.Block.Present:
		if a.Timestamp != b.Timestamp {
			return a.Timestamp > b.Timestamp
		}
		return a.TimeFirstSeen > b.TimeFirstSeen
	case a.Block.Present != b.Block.Present:
		// the unconfirmed one sorts first
		return !a.Block.Present
	default:
		if a.Block.Height != b.Block.Height {
			return a.Block.Height > b.Block.Height
		}
		if a.Block.Timestamp != b.Block.Timestamp {
			return a.Block.Timestamp > b.Block.Timestamp
		}
		return a.TimeFirstSeen > b.TimeFirstSeen
	}
}

// Sort orders txs newest-first in place. The sort is stable so that ties
// under Less (which shouldn't occur given unique TimeFirstSeen) do not
// reorder nondeterministically between calls.
func Sort(txs []Tx) {
	sort.SliceStable(txs, func(i, j int) bool {
		return Less(txs[i], txs[j])
	})
}
