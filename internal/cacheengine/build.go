package cacheengine

import (
	"context"

	"github.com/chronikcache/chronikcache/internal/domain"
	"github.com/chronikcache/chronikcache/internal/retry"
	"github.com/chronikcache/chronikcache/internal/substore"
)

// checkAndUpdate decides whether subject needs a background build and, if
// so, admits one on the build queue. It never blocks its
// caller.
func (e *Engine) checkAndUpdate(ctx context.Context, subject domain.Subject, apiNumTxs int, forceUpdate bool) {
	key := subject.Key()

	if apiNumTxs > e.cfg.MaxTxLimit {
		e.states.set(key, StateReject)
		e.log.Info("[chronikcache] subject rejected", "subject", key, "numTxs", apiNumTxs, "err", domain.ErrPolicyReject)
		return
	}

	meta, ok, err := e.store.Metadata(subject)
	if err != nil {
		e.log.Warn("[chronikcache] checkAndUpdate: read metadata failed", "subject", key, "err", err)
		return
	}
	have := 0
	if ok {
		have = meta.NumTxs
	}
	dynamicPageSize := clamp(apiNumTxs-have, 1, maxDirectPageSize)

	if !ok || meta.NumTxs != apiNumTxs || forceUpdate {
		if !e.locks.tryAcquire(key) {
			e.log.Info("[chronikcache] update already in flight", "subject", key)
			return
		}
		e.states.set(key, StateUpdating)
		e.buildQ.Enqueue(ctx, func(ctx context.Context) (struct{}, error) {
			defer e.locks.release(key)
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("[chronikcache] panic in build task", "subject", key, "recover", r)
					e.states.set(key, StateUnknown)
				}
			}()
			e.updateCache(ctx, subject, apiNumTxs, dynamicPageSize)
			return struct{}{}, nil
		})
		return
	}

	e.states.set(key, StateLatest)
	go func() {
		if err := e.notifier.Attach(context.Background(), subject); err != nil {
			e.log.Warn("[chronikcache] attach failed", "subject", key, "err", err)
			return
		}
		if e.onAttach != nil {
			e.onAttach()
		}
	}()
}

// updateCache is the background build loop. It is wrapped by
// the retry envelope so a crash mid-build simply restarts from the durable
// state on the next attempt; the update lock serializes this against any
// other build for the same subject.
func (e *Engine) updateCache(ctx context.Context, subject domain.Subject, totalNumTxs, pageSize int) {
	key := subject.Key()

	err := retry.ExecuteWithRetry(ctx, e.cfg.RetryOptions, func(ctx context.Context) error {
		if totalNumTxs > e.cfg.MaxTxLimit {
			e.states.set(key, StateReject)
			e.log.Info("[chronikcache] subject rejected", "subject", key, "numTxs", totalNumTxs, "err", domain.ErrPolicyReject)
			return nil
		}

		data, _, err := e.store.Read(subject)
		if err != nil {
			return err
		}
		txMap := data.TxMap
		if txMap == nil {
			txMap = make(map[string]domain.Tx)
		}
		txOrder := append([]string(nil), data.TxOrder...)

		currentPage, iteration := 0, 0
		for len(txMap) < totalNumTxs {
			page, err := e.fetchHistory(ctx, subject, currentPage, pageSize)
			if err != nil {
				return err
			}
			if len(page.Txs) == 0 {
				// indexer ran dry before reaching the reported count;
				// persist what we have instead of looping forever.
				break
			}

			changed := false
			for _, tx := range page.Txs {
				if _, exists := txMap[tx.Txid]; !exists {
					txOrder = append(txOrder, tx.Txid)
					changed = true
				}
				txMap[tx.Txid] = tx
			}
			if changed {
				txOrder = sortOrder(txOrder, txMap)
			}

			iteration++
			throttled := len(txMap) >= e.cfg.ThrottleThreshold && iteration%10 != 0
			if !throttled {
				if err := e.store.Write(subject, substore.Data{TxMap: txMap, TxOrder: txOrder, NumTxs: len(txOrder)}); err != nil {
					return err
				}
			}
			currentPage++
		}

		txOrder = sortOrder(txOrder, txMap)
		if err := e.store.Write(subject, substore.Data{TxMap: txMap, TxOrder: txOrder, NumTxs: len(txOrder)}); err != nil {
			return err
		}
		e.enforceCacheLimit(subject)

		e.mem.put(key, memView{txMap: txMap, txOrder: txOrder})

		if e.states.get(key) != StateLatest {
			e.states.set(key, StateLatest)
			go func() {
				if err := e.notifier.Attach(context.Background(), subject); err != nil {
					e.log.Warn("[chronikcache] attach failed", "subject", key, "err", err)
					return
				}
				if e.onAttach != nil {
					e.onAttach()
				}
			}()
		}
		return nil
	})
	if err != nil {
		e.log.Error("[chronikcache] build failed", "subject", key, "err", err)
		e.states.set(key, StateUnknown)
	}
}
