// Package cacheengine implements the per-subject cache state machine:
// entry-point dispatch over {UNKNOWN, UPDATING, LATEST, REJECT}, the
// background build loop, two-tier page serving, and repair.
package cacheengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erigontech/erigon-lib/log/v3"

	"github.com/chronikcache/chronikcache/internal/domain"
	"github.com/chronikcache/chronikcache/internal/notify"
	"github.com/chronikcache/chronikcache/internal/retry"
	"github.com/chronikcache/chronikcache/internal/substore"
	"github.com/chronikcache/chronikcache/internal/taskqueue"
)

const (
	buildConcurrency  = 2
	repairConcurrency = 5
	finalizeDebounce  = 500 * time.Millisecond
	maxDirectPageSize = 200
)

// Config carries the tunables the engine needs out of the facade's
// top-level configuration.
type Config struct {
	MaxTxLimit           int
	MaxCacheSize         int64
	ThrottleThreshold    int
	HashCheckProbability float64
	RetryOptions         retry.Options
}

// HistoryResult is the response envelope of history().
type HistoryResult struct {
	Txs      []domain.Tx
	NumTxs   int
	NumPages int
	Status   int
	Message  string
}

// Engine owns every piece of mutable state the cache needs: the two memory
// caches live inside mem, per-subject status in states, in-flight builds
// in locks, and the bounded worker pools in buildQ/repairQ. Its lifecycle
// is bounded by New(...)/Destroy().
type Engine struct {
	cfg      Config
	store    *substore.Store
	client   domain.ChronikClientInterface
	notifier *notify.Manager
	log      log.Logger

	mem       *memCache
	states    *stateStore
	locks     *updateLocks
	buildQ    *taskqueue.Queue[struct{}]
	repairQ   *taskqueue.Queue[repairedTx]
	debounce  *debouncer
	destroyMu sync.Mutex
	destroyed bool

	onAttach func()
	onEvict  func()
	onRepair func()
}

// Option customizes an Engine beyond its required wiring, currently used
// to plug in metrics counters without internal/cacheengine importing
// internal/stats (which itself imports cacheengine, to take a Snapshot).
type Option func(*Engine)

// WithHooks registers counters invoked on subscription attach, subscription
// eviction, and completed per-tx repair; any may be nil.
func WithHooks(onAttach, onEvict, onRepair func()) Option {
	return func(e *Engine) {
		e.onAttach = onAttach
		e.onEvict = onEvict
		e.onRepair = onRepair
	}
}

// New wires an Engine to its durable store, indexer client, and
// subscription transport. The notification manager is constructed here so
// its event/eviction callbacks can close over the engine itself.
func New(cfg Config, store *substore.Store, client domain.ChronikClientInterface, sub domain.Subscription, notifyCfg notify.Config, logger log.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		store:    store,
		client:   client,
		log:      logger,
		mem:      newMemCache(),
		states:   newStateStore(),
		locks:    newUpdateLocks(),
		buildQ:   taskqueue.New[struct{}](buildConcurrency),
		repairQ:  taskqueue.New[repairedTx](repairConcurrency),
		debounce: newDebouncer(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.notifier = notify.New(notifyCfg, logger, sub, e.handleNotifyEvent, func(subject domain.Subject) {
		if e.onEvict != nil {
			e.onEvict()
		}
		e.handleEvict(subject)
	})
	return e
}

// History is the entry contract
func (e *Engine) History(ctx context.Context, subject domain.Subject, pageOffset, pageSize int) (HistoryResult, error) {
	key := subject.Key()
	state := e.effectiveState(key)

	if state == StateReject {
		probeSize := pageSize
		if probeSize > maxDirectPageSize {
			probeSize = maxDirectPageSize
		}
		page, err := e.fetchHistory(ctx, subject, pageOffset, probeSize)
		if err != nil {
			return HistoryResult{}, err
		}
		return HistoryResult{
			Txs: page.Txs, NumTxs: page.NumTxs, NumPages: page.NumPages,
			Status: 2, Message: fmt.Sprintf("subject %s exceeds cache limit", key),
		}, nil
	}

	rt := e.notifier.GetRemainingTime(subject)
	if !rt.Active && state == StateLatest {
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
	if rt.Active || state == StateLatest {
		e.notifier.ResetTimer(subject, e.handleEvict)
	}

	if state != StateLatest {
		probe, err := e.fetchHistory(ctx, subject, 0, 1)
		if err != nil {
			return HistoryResult{}, err
		}
		if state != StateUpdating {
			go e.checkAndUpdate(context.Background(), subject, probe.NumTxs, false)
		}
		if pageSize > maxDirectPageSize {
			return HistoryResult{
				Txs: []domain.Tx{}, NumPages: 0, NumTxs: 0,
				Status: 1, Message: fmt.Sprintf("subject %s is being prepared", key),
			}, nil
		}
		page, err := e.fetchHistory(ctx, subject, pageOffset, pageSize)
		if err != nil {
			return HistoryResult{}, err
		}
		return HistoryResult{Txs: page.Txs, NumTxs: page.NumTxs, NumPages: page.NumPages, Status: 3}, nil
	}

	return e.servePage(ctx, subject, pageOffset, pageSize)
}

// effectiveState reports UPDATING whenever the update lock is held,
// regardless of the last recorded state.
func (e *Engine) effectiveState(key string) State {
	if e.locks.isHeld(key) {
		return StateUpdating
	}
	return e.states.get(key)
}

// GetCacheStatus reports the derived state for external callers.
func (e *Engine) GetCacheStatus(subject domain.Subject) State {
	return e.effectiveState(subject.Key())
}

// ClearSubject drops both the durable and memory-cache state for subject
// and tears down its subscription.
func (e *Engine) ClearSubject(ctx context.Context, subject domain.Subject) error {
	key := subject.Key()
	if err := e.store.ClearSubject(subject); err != nil {
		return fmt.Errorf("cacheengine: clear %s: %w", key, err)
	}
	e.mem.invalidate(key)
	e.states.set(key, StateUnknown)
	return e.notifier.Detach(ctx, subject)
}

// ClearAll clears every subject with durable presence.
func (e *Engine) ClearAll(ctx context.Context) error {
	subjects, err := e.store.ListSubjects()
	if err != nil {
		return err
	}
	var firstErr error
	for _, s := range subjects {
		if err := e.ClearSubject(ctx, s); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// enforceCacheLimit evicts least-accessed subjects until durable size is
// back at or under cfg.MaxCacheSize. Called after a build persists new
// data; a MaxCacheSize of zero disables the ceiling. just, if set, is
// excluded from eviction candidates so a build's own just-written subject
// isn't reclaimed before it has ever been read.
func (e *Engine) enforceCacheLimit(just ...domain.Subject) {
	if e.cfg.MaxCacheSize <= 0 {
		return
	}
	evicted, err := e.store.CleanLeastAccessed(e.cfg.MaxCacheSize, just...)
	for _, subject := range evicted {
		key := subject.Key()
		e.mem.invalidate(key)
		e.states.set(key, StateUnknown)
		if derr := e.notifier.Detach(context.Background(), subject); derr != nil {
			e.log.Warn("[chronikcache] detach evicted subject failed", "subject", key, "err", derr)
		}
	}
	if err != nil {
		if errors.Is(err, substore.ErrLimitExceeded) {
			e.log.Warn("[chronikcache] cache ceiling exceeded after evicting every subject",
				"ceiling", e.cfg.MaxCacheSize, "err", domain.ErrLimitExceeded)
			return
		}
		e.log.Warn("[chronikcache] cleanLeastAccessed failed", "err", err)
	}
}

// MemCacheLen reports the number of entries in the front memory cache, for
// stats reporting.
func (e *Engine) MemCacheLen() int { return e.mem.len() }

// BuildQueueLength and RepairQueueLength report worker-pool occupancy for
// stats reporting.
func (e *Engine) BuildQueueLength() int    { return e.buildQ.GetQueueLength() }
func (e *Engine) RepairQueueLength() int   { return e.repairQ.GetQueueLength() }
func (e *Engine) States() map[string]State { return e.states.snapshot() }

// Destroy tears down the sweeper, subscriptions, and timers.
func (e *Engine) Destroy(ctx context.Context) error {
	e.destroyMu.Lock()
	defer e.destroyMu.Unlock()
	if e.destroyed {
		return nil
	}
	e.destroyed = true
	e.mem.close()
	return e.notifier.DetachAll(ctx)
}

func (e *Engine) fetchHistory(ctx context.Context, subject domain.Subject, page, size int) (domain.HistoryPage, error) {
	return retry.HandleDBOperation(ctx, e.cfg.RetryOptions, nil, func(ctx context.Context) (domain.HistoryPage, error) {
		if subject.IsToken() {
			return e.client.TokenIDHistory(ctx, subject.ID, page, size)
		}
		return e.client.AddressHistory(ctx, subject.ID, page, size)
	})
}

func (e *Engine) fetchTx(ctx context.Context, txid string) (domain.Tx, error) {
	return retry.HandleDBOperation(ctx, e.cfg.RetryOptions, nil, func(ctx context.Context) (domain.Tx, error) {
		return e.client.Tx(ctx, txid)
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
