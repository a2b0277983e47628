package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chronikcache/chronikcache/internal/domain"
	"github.com/chronikcache/chronikcache/internal/retry"

	"github.com/erigontech/erigon-lib/log/v3"
)

type fakeSub struct {
	mu            sync.Mutex
	subscribed    map[string]bool
	onMsg         func(domain.Namespace, string, domain.TxEvent)
	onReconnectFn func()
}

func newFakeSub() *fakeSub { return &fakeSub{subscribed: make(map[string]bool)} }

func (f *fakeSub) Subscribe(_ context.Context, ns domain.Namespace, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed[string(ns)+":"+id] = true
	return nil
}
func (f *fakeSub) Unsubscribe(_ context.Context, ns domain.Namespace, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subscribed, string(ns)+":"+id)
	return nil
}
func (f *fakeSub) OnMessage(fn func(domain.Namespace, string, domain.TxEvent)) { f.onMsg = fn }
func (f *fakeSub) OnConnect(func())                                           {}
func (f *fakeSub) OnReconnect(fn func())                                      { f.onReconnectFn = fn }
func (f *fakeSub) OnError(func(error))                                        {}
func (f *fakeSub) OnEnd(func())                                               {}
func (f *fakeSub) WaitForOpen(context.Context) error                          { return nil }
func (f *fakeSub) Close() error                                               { return nil }

func testConfig() Config {
	return Config{
		MaxSubscriptions: 2,
		WSTimeout:        50 * time.Millisecond,
		WSExtendTimeout:  20 * time.Millisecond,
		RetryOptions:     retry.Options{MaxRetries: 1, RetryDelay: time.Millisecond},
	}
}

func TestAttachIsIdempotent(t *testing.T) {
	sub := newFakeSub()
	m := New(testConfig(), log.Root(), sub, nil, nil)

	require.NoError(t, m.Attach(context.Background(), domain.Address("a1")))
	require.NoError(t, m.Attach(context.Background(), domain.Address("a1")))
	require.Equal(t, 1, m.Count(domain.NamespaceAddress))
}

func TestAttachEvictsOldestAtCapacity(t *testing.T) {
	sub := newFakeSub()
	var evicted []domain.Subject
	var mu sync.Mutex
	m := New(testConfig(), log.Root(), sub, nil, func(s domain.Subject) {
		mu.Lock()
		evicted = append(evicted, s)
		mu.Unlock()
	})

	ctx := context.Background()
	require.NoError(t, m.Attach(ctx, domain.Address("x")))
	time.Sleep(time.Millisecond) // ensure distinct insertion timestamps
	require.NoError(t, m.Attach(ctx, domain.Address("y")))
	time.Sleep(time.Millisecond)
	require.NoError(t, m.Attach(ctx, domain.Address("z")))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, evicted, 1)
	require.Equal(t, "x", evicted[0].ID)
	require.Equal(t, 2, m.Count(domain.NamespaceAddress))
}

func TestDetachRemovesAndUnsubscribes(t *testing.T) {
	sub := newFakeSub()
	m := New(testConfig(), log.Root(), sub, nil, nil)
	ctx := context.Background()
	require.NoError(t, m.Attach(ctx, domain.Address("a1")))
	require.NoError(t, m.Detach(ctx, domain.Address("a1")))
	require.Equal(t, 0, m.Count(domain.NamespaceAddress))
}

func TestResetTimerExpiryInvokesOnExpire(t *testing.T) {
	sub := newFakeSub()
	m := New(testConfig(), log.Root(), sub, nil, nil)
	ctx := context.Background()
	require.NoError(t, m.Attach(ctx, domain.Address("a1")))

	expired := make(chan domain.Subject, 1)
	m.ResetTimer(domain.Address("a1"), func(s domain.Subject) {
		expired <- s
	})

	select {
	case s := <-expired:
		require.Equal(t, "a1", s.ID)
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	require.Equal(t, 0, m.Count(domain.NamespaceAddress))
}

func TestGetRemainingTimeReportsInactiveWhenNotAttached(t *testing.T) {
	sub := newFakeSub()
	m := New(testConfig(), log.Root(), sub, nil, nil)
	rt := m.GetRemainingTime(domain.Address("nope"))
	require.False(t, rt.Active)
}

func TestHandleMessageDispatchesToOnEvent(t *testing.T) {
	sub := newFakeSub()
	events := make(chan string, 1)
	m := New(testConfig(), log.Root(), sub, func(s domain.Subject, txid string, mt domain.MsgType) {
		events <- txid
	}, nil)
	require.NoError(t, m.Attach(context.Background(), domain.Address("a1")))

	sub.onMsg(domain.NamespaceAddress, "a1", domain.TxEvent{MsgType: domain.MsgTxAddedToMempool, Txid: "tx1"})

	select {
	case txid := <-events:
		require.Equal(t, "tx1", txid)
	case <-time.After(time.Second):
		t.Fatal("event never dispatched")
	}
}

func TestHandleMessagePanicRecovered(t *testing.T) {
	sub := newFakeSub()
	m := New(testConfig(), log.Root(), sub, func(domain.Subject, string, domain.MsgType) {
		panic("boom")
	}, nil)
	require.NoError(t, m.Attach(context.Background(), domain.Address("a1")))

	require.NotPanics(t, func() {
		sub.onMsg(domain.NamespaceAddress, "a1", domain.TxEvent{MsgType: domain.MsgTxFinalized, Txid: "tx1"})
	})
}

func TestReconnectResubscribesAll(t *testing.T) {
	sub := newFakeSub()
	m := New(testConfig(), log.Root(), sub, nil, nil)
	require.NoError(t, m.Attach(context.Background(), domain.Address("a1")))
	require.NoError(t, m.Attach(context.Background(), domain.Token("t1")))

	sub.mu.Lock()
	delete(sub.subscribed, "address:a1")
	sub.mu.Unlock()

	sub.onReconnectFn()

	sub.mu.Lock()
	defer sub.mu.Unlock()
	require.True(t, sub.subscribed["address:a1"])
	require.True(t, sub.subscribed["token:t1"])
}
