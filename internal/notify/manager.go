// Package notify implements the long-lived per-subject subscription
// registry: capacity-bounded FIFO eviction per namespace,
// reconnect/re-subscribe handling, and per-subject expiry timers.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erigontech/erigon-lib/log/v3"

	"github.com/chronikcache/chronikcache/internal/domain"
	"github.com/chronikcache/chronikcache/internal/retry"
)

// maxTimerDuration clamps a single sleep so a multi-day expiry is re-armed
// on each firing-less tick rather than blocked on one huge timer.
const maxTimerDuration = 15 * 24 * time.Hour

// OnEvent is invoked for every inbound transaction event matching an
// attached subject.
type OnEvent func(subject domain.Subject, txid string, msgType domain.MsgType)

// OnEvict is invoked exactly once per capacity eviction.
type OnEvict func(subject domain.Subject)

// OnExpire is invoked when a subject's timer fires without being reset.
type OnExpire func(subject domain.Subject)

type entry struct {
	timer    *time.Timer
	expiry   time.Time
	onExpire OnExpire
	insertAt time.Time
}

// Config bounds capacity and timer behavior.
type Config struct {
	MaxSubscriptions int
	WSTimeout        time.Duration
	WSExtendTimeout  time.Duration
	RetryOptions     retry.Options
}

// Manager maintains the address and token subscription sets.
type Manager struct {
	cfg   Config
	log   log.Logger
	sub   domain.Subscription
	onEvt OnEvent
	evict OnEvict

	mu      sync.Mutex
	address map[string]*entry // keyed by subject id
	token   map[string]*entry
}

// New creates a Manager wired to the given indexer subscription transport.
func New(cfg Config, logger log.Logger, sub domain.Subscription, onEvt OnEvent, evict OnEvict) *Manager {
	m := &Manager{
		cfg:     cfg,
		log:     logger,
		sub:     sub,
		onEvt:   onEvt,
		evict:   evict,
		address: make(map[string]*entry),
		token:   make(map[string]*entry),
	}
	sub.OnMessage(m.handleMessage)
	sub.OnReconnect(m.handleReconnect)
	return m
}

func (m *Manager) setFor(ns domain.Namespace) map[string]*entry {
	if ns == domain.NamespaceToken {
		return m.token
	}
	return m.address
}

// Attach subscribes to subject on the indexer, idempotently. At capacity
// the oldest subject in that namespace is evicted (FIFO) and onEvict fires
// exactly once.
func (m *Manager) Attach(ctx context.Context, subject domain.Subject) error {
	m.mu.Lock()
	set := m.setFor(subject.Namespace)
	if _, ok := set[subject.ID]; ok {
		m.mu.Unlock()
		m.log.Info("[chronikcache] already attached", "subject", subject.Key())
		return nil
	}

	var evicted domain.Subject
	doEvict := false
	if len(set) >= m.cfg.MaxSubscriptions {
		oldestID, oldestEntry := m.oldest(subject.Namespace)
		if oldestEntry != nil {
			delete(set, oldestID)
			if oldestEntry.timer != nil {
				oldestEntry.timer.Stop()
			}
			evicted = domain.Subject{Namespace: subject.Namespace, ID: oldestID}
			doEvict = true
		}
	}
	m.mu.Unlock()

	if doEvict {
		if err := m.sub.Unsubscribe(ctx, evicted.Namespace, evicted.ID); err != nil {
			m.log.Warn("[chronikcache] unsubscribe on eviction failed", "subject", evicted.Key(), "err", err)
		}
		if m.evict != nil {
			m.evict(evicted)
		}
	}

	err := retry.HandleWebSocketOperation(ctx, m.cfg.RetryOptions, m.log, subject.Key(), func(ctx context.Context) error {
		return m.sub.Subscribe(ctx, subject.Namespace, subject.ID)
	})
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", subject.Key(), err)
	}

	m.mu.Lock()
	m.setFor(subject.Namespace)[subject.ID] = &entry{insertAt: time.Now()}
	m.mu.Unlock()
	return nil
}

// oldest must be called with m.mu held.
func (m *Manager) oldest(ns domain.Namespace) (string, *entry) {
	set := m.setFor(ns)
	var oldestID string
	var oldest *entry
	for id, e := range set {
		if oldest == nil || e.insertAt.Before(oldest.insertAt) {
			oldestID, oldest = id, e
		}
	}
	return oldestID, oldest
}

// Detach unsubscribes subject and clears any pending timer.
func (m *Manager) Detach(ctx context.Context, subject domain.Subject) error {
	m.mu.Lock()
	set := m.setFor(subject.Namespace)
	e, ok := set[subject.ID]
	if ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(set, subject.ID)
	}
	remaining := len(set)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	if err := m.sub.Unsubscribe(ctx, subject.Namespace, subject.ID); err != nil {
		return fmt.Errorf("notify: unsubscribe %s: %w", subject.Key(), err)
	}
	if remaining == 0 {
		// no remaining subscriptions in this namespace's transport; closing
		// it here is permitted but not required. Left open since both
		// namespaces may share one connection (manager is constructed with a
		// single Subscription).
		_ = remaining
	}
	return nil
}

// DetachAll detaches every subject in both namespaces.
func (m *Manager) DetachAll(ctx context.Context) error {
	m.mu.Lock()
	var all []domain.Subject
	for id := range m.address {
		all = append(all, domain.Subject{Namespace: domain.NamespaceAddress, ID: id})
	}
	for id := range m.token {
		all = append(all, domain.Subject{Namespace: domain.NamespaceToken, ID: id})
	}
	m.mu.Unlock()

	var firstErr error
	for _, s := range all {
		if err := m.Detach(ctx, s); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ResetTimer arms or extends subject's expiry timer: the first
// call sets expiry = now + wsTimeout; later calls extend by wsExtendTimeout.
func (m *Manager) ResetTimer(subject domain.Subject, onExpire OnExpire) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.setFor(subject.Namespace)
	e, ok := set[subject.ID]
	if !ok {
		e = &entry{insertAt: time.Now()}
		set[subject.ID] = e
	}
	if e.timer != nil {
		e.timer.Stop()
	}

	now := time.Now()
	if e.expiry.IsZero() {
		e.expiry = now.Add(m.cfg.WSTimeout)
	} else {
		e.expiry = e.expiry.Add(m.cfg.WSExtendTimeout)
	}
	e.onExpire = onExpire

	m.armTimer(subject, e)
}

// armTimer schedules a timer capped at maxTimerDuration; if the real
// expiry is further out, the timer re-arms itself without firing
// onExpire. Must be called with m.mu held.
func (m *Manager) armTimer(subject domain.Subject, e *entry) {
	d := time.Until(e.expiry)
	if d <= 0 {
		d = 0
	}
	sleep := d
	fireReal := true
	if sleep > maxTimerDuration {
		sleep = maxTimerDuration
		fireReal = false
	}
	e.timer = time.AfterFunc(sleep, func() {
		if fireReal {
			m.fireExpiry(subject)
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		set := m.setFor(subject.Namespace)
		if cur, ok := set[subject.ID]; ok {
			m.armTimer(subject, cur)
		}
	})
}

func (m *Manager) fireExpiry(subject domain.Subject) {
	m.mu.Lock()
	set := m.setFor(subject.Namespace)
	e, ok := set[subject.ID]
	if ok {
		delete(set, subject.ID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := m.sub.Unsubscribe(context.Background(), subject.Namespace, subject.ID); err != nil {
		m.log.Warn("[chronikcache] unsubscribe on timer expiry failed", "subject", subject.Key(), "err", err)
	}
	if e.onExpire != nil {
		e.onExpire(subject)
	}
}

// RemainingTime reports whether a timer is live and how long remains.
type RemainingTime struct {
	Active       bool
	RemainingSec int64
	Message      string
}

// GetRemainingTime reports the live/remaining status of subject's timer.
func (m *Manager) GetRemainingTime(subject domain.Subject) RemainingTime {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.setFor(subject.Namespace)[subject.ID]
	if !ok || e.timer == nil || e.expiry.IsZero() {
		return RemainingTime{Active: false, Message: "no active subscription timer"}
	}
	remaining := time.Until(e.expiry)
	if remaining < 0 {
		remaining = 0
	}
	return RemainingTime{Active: true, RemainingSec: int64(remaining.Seconds())}
}

func (m *Manager) handleMessage(namespace domain.Namespace, id string, ev domain.TxEvent) {
	if ev.MsgType != domain.MsgTxAddedToMempool && ev.MsgType != domain.MsgTxFinalized {
		return
	}
	m.mu.Lock()
	_, attached := m.setFor(namespace)[id]
	m.mu.Unlock()
	if !attached {
		return
	}
	subject := domain.Subject{Namespace: namespace, ID: id}

	func() {
		defer func() {
			if r := recover(); r != nil {
				m.log.Error("[chronikcache] panic in notification callback", "subject", subject.Key(), "recover", r)
			}
		}()
		if m.onEvt != nil {
			m.onEvt(subject, ev.Txid, ev.MsgType)
		}
	}()
}

func (m *Manager) handleReconnect() {
	m.mu.Lock()
	var all []domain.Subject
	for id := range m.address {
		all = append(all, domain.Subject{Namespace: domain.NamespaceAddress, ID: id})
	}
	for id := range m.token {
		all = append(all, domain.Subject{Namespace: domain.NamespaceToken, ID: id})
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, s := range all {
		if err := m.sub.Subscribe(ctx, s.Namespace, s.ID); err != nil {
			m.log.Warn("[chronikcache] re-subscribe after reconnect failed", "subject", s.Key(), "err", err)
			m.mu.Lock()
			delete(m.setFor(s.Namespace), s.ID)
			m.mu.Unlock()
			if m.evict != nil {
				m.evict(s)
			}
		}
	}
}

// Count returns the number of live subscriptions in namespace, for stats
// and tests.
func (m *Manager) Count(ns domain.Namespace) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.setFor(ns))
}
