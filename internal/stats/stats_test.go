package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/erigon-lib/log/v3"

	"github.com/chronikcache/chronikcache/internal/cacheengine"
	"github.com/chronikcache/chronikcache/internal/domain"
	"github.com/chronikcache/chronikcache/internal/kvstore"
	"github.com/chronikcache/chronikcache/internal/notify"
	"github.com/chronikcache/chronikcache/internal/retry"
	"github.com/chronikcache/chronikcache/internal/substore"
)

type emptyClient struct{}

func (emptyClient) AddressHistory(context.Context, string, int, int) (domain.HistoryPage, error) {
	return domain.HistoryPage{}, nil
}
func (emptyClient) TokenIDHistory(context.Context, string, int, int) (domain.HistoryPage, error) {
	return domain.HistoryPage{}, nil
}
func (emptyClient) ScriptHistory(context.Context, string, string, int, int) (domain.HistoryPage, error) {
	return domain.HistoryPage{}, nil
}
func (emptyClient) Tx(context.Context, string) (domain.Tx, error) { return domain.Tx{}, nil }
func (emptyClient) Subscription() domain.Subscription             { return nil }
func (emptyClient) PassThrough(context.Context, string, ...any) (any, error) {
	return nil, nil
}

type emptySub struct{}

func (emptySub) Subscribe(context.Context, domain.Namespace, string) error   { return nil }
func (emptySub) Unsubscribe(context.Context, domain.Namespace, string) error { return nil }
func (emptySub) OnMessage(func(domain.Namespace, string, domain.TxEvent))    {}
func (emptySub) OnConnect(func())                                           {}
func (emptySub) OnReconnect(func())                                         {}
func (emptySub) OnError(func(error))                                        {}
func (emptySub) OnEnd(func())                                               {}
func (emptySub) WaitForOpen(context.Context) error                          { return nil }
func (emptySub) Close() error                                               { return nil }

func TestCollectReportsSubjectsAndSize(t *testing.T) {
	store, err := substore.New(kvstore.NewMemory(), 10_000, 1000)
	require.NoError(t, err)
	require.NoError(t, store.Write(domain.Address("a1"), substore.Data{
		TxMap:   map[string]domain.Tx{"tx1": {Txid: "tx1"}},
		TxOrder: []string{"tx1"},
		NumTxs:  1,
	}))

	eng := cacheengine.New(
		cacheengine.Config{MaxTxLimit: 100, RetryOptions: retry.Options{MaxRetries: 1, RetryDelay: time.Millisecond}},
		store, emptyClient{}, emptySub{},
		notify.Config{MaxSubscriptions: 5, WSTimeout: time.Hour, WSExtendTimeout: time.Minute, RetryOptions: retry.Options{MaxRetries: 1, RetryDelay: time.Millisecond}},
		log.Root(),
	)

	snap, err := Collect(store, eng, nil)
	require.NoError(t, err)
	require.Equal(t, 1, snap.TotalSubjects)
	require.Positive(t, snap.SizeTotal)
	require.Positive(t, snap.Size.Transactions+snap.Size.Metadata)
}

func TestMetricsSetObserveDoesNotPanic(t *testing.T) {
	set := NewSet(nil)
	require.NotPanics(t, func() {
		set.Observe(Snapshot{
			ByState: map[string]StateBreakdown{"LATEST": {Count: 2}},
		})
	})
}
