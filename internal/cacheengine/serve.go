package cacheengine

import (
	"context"
	"math/rand"

	"github.com/chronikcache/chronikcache/internal/contenthash"
	"github.com/chronikcache/chronikcache/internal/domain"
	"github.com/chronikcache/chronikcache/internal/substore"
	"github.com/chronikcache/chronikcache/internal/taskqueue"
)

// repairedTx is the per-task result type the repair queue resolves.
type repairedTx struct {
	tx domain.Tx
	ok bool
}

// servePage implements the two-tier LATEST-state serving path: memory
// cache fronting the durable store, a probabilistic hash check against
// recorded metadata, and per-page repair of unconfirmed entries.
func (e *Engine) servePage(ctx context.Context, subject domain.Subject, pageOffset, pageSize int) (HistoryResult, error) {
	key := subject.Key()

	view, ok := e.mem.get(key)
	if !ok {
		data, found, err := e.store.Read(subject)
		if err != nil {
			return HistoryResult{}, err
		}
		if !found {
			return e.fallbackToIndexer(ctx, subject, pageOffset, pageSize)
		}
		view = memView{txMap: data.TxMap, txOrder: data.TxOrder}
		e.mem.put(key, view)
	}

	order := sortOrder(view.txOrder, view.txMap)
	view.txOrder = order

	if rand.Float64() < e.cfg.HashCheckProbability {
		if newHash, err := contenthash.Hash(order); err == nil {
			if meta, metaOk, mErr := e.store.Metadata(subject); mErr == nil && metaOk && meta.DataHash != "" && meta.DataHash != newHash {
				e.log.Warn("[chronikcache] content hash mismatch, forcing rebuild", "subject", key, "err", domain.ErrInternalInvariant)
				e.mem.invalidate(key)
				go e.checkAndUpdate(context.Background(), subject, meta.NumTxs, true)
			}
		}
	}

	numTxs := len(order)
	if pageSize > 0 {
		lastPageOffset := 0
		if numTxs > 0 {
			lastPageOffset = (numTxs - 1) / pageSize
		}
		if pageOffset > lastPageOffset {
			return HistoryResult{}, domain.ErrOutOfRange
		}
	}
	lo := clamp(pageOffset*pageSize, 0, numTxs)
	hi := clamp(lo+pageSize, 0, numTxs)
	slice := append([]string(nil), order[lo:hi]...)

	_, txs, _ := e.repairPage(ctx, subject, view, slice)

	numPages := 0
	if pageSize > 0 {
		numPages = (numTxs + pageSize - 1) / pageSize
	}
	return HistoryResult{Txs: txs, NumTxs: numTxs, NumPages: numPages}, nil
}

func (e *Engine) fallbackToIndexer(ctx context.Context, subject domain.Subject, pageOffset, pageSize int) (HistoryResult, error) {
	page, err := e.fetchHistory(ctx, subject, pageOffset, pageSize)
	if err != nil {
		return HistoryResult{}, err
	}
	return HistoryResult{Txs: page.Txs, NumTxs: page.NumTxs, NumPages: page.NumPages, Status: 3}, nil
}

// repairPage refetches any visible tx missing block.height on the repair
// queue (concurrency 5); a tx whose refetch now carries a height is
// written back and the subject resorted.
func (e *Engine) repairPage(ctx context.Context, subject domain.Subject, view memView, slice []string) (memView, []domain.Tx, bool) {
	key := subject.Key()

	var needsRepair []int
	for i, id := range slice {
		if tx, ok := view.txMap[id]; ok && tx.Block == nil {
			needsRepair = append(needsRepair, i)
		}
	}
	if len(needsRepair) == 0 {
		return view, projectSlice(slice, view.txMap), false
	}

	futures := make([]*taskqueue.Future[repairedTx], len(needsRepair))
	for fi, i := range needsRepair {
		id := slice[i]
		futures[fi] = e.repairQ.Enqueue(ctx, func(ctx context.Context) (repairedTx, error) {
			fresh, err := e.fetchTx(ctx, id)
			if err != nil {
				return repairedTx{}, nil
			}
			return repairedTx{tx: fresh, ok: fresh.Block != nil}, nil
		})
	}

	newTxMap := make(map[string]domain.Tx, len(view.txMap))
	for k, v := range view.txMap {
		newTxMap[k] = v
	}

	updated := false
	for _, f := range futures {
		r, err := f.Wait(ctx)
		if err != nil || !r.ok {
			continue
		}
		newTxMap[r.tx.Txid] = r.tx
		updated = true
		if e.onRepair != nil {
			e.onRepair()
		}
	}

	newOrder := view.txOrder
	if updated {
		newOrder = sortOrder(view.txOrder, newTxMap)
		if err := e.store.Write(subject, substore.Data{TxMap: newTxMap, TxOrder: newOrder, NumTxs: len(newOrder)}); err != nil {
			e.log.Warn("[chronikcache] repair write failed", "subject", key, "err", err)
		}
	}

	newView := memView{txMap: newTxMap, txOrder: newOrder}
	e.mem.put(key, newView)
	return newView, projectSlice(slice, newTxMap), updated
}

func projectSlice(slice []string, txMap map[string]domain.Tx) []domain.Tx {
	out := make([]domain.Tx, len(slice))
	for i, id := range slice {
		out[i] = txMap[id]
	}
	return out
}
