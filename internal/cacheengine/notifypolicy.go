package cacheengine

import (
	"context"
	"sync"
	"time"

	"github.com/chronikcache/chronikcache/internal/domain"
	"github.com/chronikcache/chronikcache/internal/substore"
)

// debouncer coalesces bursts of events sharing a key into a single
// delayed call: a new schedule for the same key cancels any
// pending timer and restarts the delay.
type debouncer struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newDebouncer() *debouncer {
	return &debouncer{timers: make(map[string]*time.Timer)}
}

func (d *debouncer) schedule(key string, delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	d.timers[key] = time.AfterFunc(delay, func() {
		d.mu.Lock()
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
}

// handleNotifyEvent is the notification manager's OnEvent callback.
// Debouncing is keyed on (subject, msgType), so a burst of same-kind
// events for a subject collapses to one scheduled refresh; a
// TX_FINALIZED burst for distinct txids on the same subject resolves only
// the most recent txid, an accepted tradeoff since repairPage
// independently mops up any tx still missing block.height on the next
// page read.
func (e *Engine) handleNotifyEvent(subject domain.Subject, txid string, msgType domain.MsgType) {
	key := subject.Key()
	e.mem.invalidate(key)

	switch msgType {
	case domain.MsgTxAddedToMempool:
		e.debounce.schedule(key+":mempool", finalizeDebounce, func() {
			ctx := context.Background()
			probe, err := e.fetchHistory(ctx, subject, 0, 1)
			if err != nil {
				e.log.Warn("[chronikcache] mempool probe failed", "subject", key, "err", err)
				return
			}
			e.checkAndUpdate(ctx, subject, probe.NumTxs, true)
		})
	case domain.MsgTxFinalized:
		e.debounce.schedule(key+":finalized", finalizeDebounce, func() {
			e.updateUnconfirmed(context.Background(), subject, txid)
		})
	}
}

// handleEvict is shared by the notification manager's eviction callback and
// by resetTimer's onExpire: both represent loss of a live subscription, so
// both fall the subject back to UNKNOWN and drop its memory-cache entry
//.
func (e *Engine) handleEvict(subject domain.Subject) {
	key := subject.Key()
	e.states.set(key, StateUnknown)
	e.mem.invalidate(key)
}

// updateUnconfirmed refetches a single finalized txid and, if it is part
// of the subject's cached set, replaces and resorts it.
func (e *Engine) updateUnconfirmed(ctx context.Context, subject domain.Subject, txid string) {
	key := subject.Key()

	future := e.repairQ.Enqueue(ctx, func(ctx context.Context) (repairedTx, error) {
		fresh, err := e.fetchTx(ctx, txid)
		if err != nil {
			return repairedTx{}, err
		}

		view, ok := e.mem.get(key)
		if !ok {
			data, found, err := e.store.Read(subject)
			if err != nil || !found {
				return repairedTx{}, err
			}
			view = memView{txMap: data.TxMap, txOrder: data.TxOrder}
		}
		if _, exists := view.txMap[txid]; !exists {
			return repairedTx{}, nil
		}

		newTxMap := make(map[string]domain.Tx, len(view.txMap))
		for k, v := range view.txMap {
			newTxMap[k] = v
		}
		newTxMap[txid] = fresh
		newOrder := sortOrder(view.txOrder, newTxMap)

		if err := e.store.Write(subject, substore.Data{TxMap: newTxMap, TxOrder: newOrder, NumTxs: len(newOrder)}); err != nil {
			return repairedTx{}, err
		}
		e.mem.put(key, memView{txMap: newTxMap, txOrder: newOrder})
		return repairedTx{tx: fresh, ok: true}, nil
	})

	r, err := future.Wait(ctx)
	if err != nil {
		e.log.Warn("[chronikcache] updateUnconfirmed failed", "subject", key, "txid", txid, "err", err)
		return
	}
	if r.ok && e.onRepair != nil {
		e.onRepair()
	}
}
