package cacheengine

import (
	"github.com/chronikcache/chronikcache/internal/domain"
	"github.com/chronikcache/chronikcache/internal/sortkey"
)

// sortOrder re-derives a canonical txOrder from the current txMap contents
// using the sortkey comparator. domain.Tx carries no separate mempool
// timestamp field distinct from TimeFirstSeen, so unconfirmed entries tie
// on it; TimeFirstSeen is assumed unique per txid.
func sortOrder(order []string, txMap map[string]domain.Tx) []string {
	items := make([]sortkey.Tx, len(order))
	for i, id := range order {
		items[i] = toSortKey(txMap[id])
	}
	sortkey.Sort(items)
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Txid
	}
	return out
}

func toSortKey(tx domain.Tx) sortkey.Tx {
	sk := sortkey.Tx{Txid: tx.Txid, TimeFirstSeen: tx.TimeFirstSeen}
	if tx.Block != nil {
		sk.Block = sortkey.Block{Height: tx.Block.Height, Timestamp: tx.Block.Timestamp, Present: true}
	}
	return sk
}
