package chronikcache

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronikcache/chronikcache/internal/domain"
)

type fakeClient struct {
	txs map[string][]domain.Tx
}

func newFakeClient() *fakeClient {
	return &fakeClient{txs: map[string][]domain.Tx{
		"ecash:qp000": {{Txid: "tx1"}, {Txid: "tx2"}},
	}}
}

func (c *fakeClient) AddressHistory(ctx context.Context, address string, page, size int) (domain.HistoryPage, error) {
	all := c.txs[address]
	return pageOf(all, page, size), nil
}

func (c *fakeClient) TokenIDHistory(ctx context.Context, tokenID string, page, size int) (domain.HistoryPage, error) {
	all := c.txs[tokenID]
	return pageOf(all, page, size), nil
}

func (c *fakeClient) ScriptHistory(ctx context.Context, scriptType, scriptHash string, page, size int) (domain.HistoryPage, error) {
	return domain.HistoryPage{}, nil
}

func (c *fakeClient) Tx(ctx context.Context, txid string) (domain.Tx, error) {
	return domain.Tx{Txid: txid}, nil
}

func (c *fakeClient) Subscription() domain.Subscription { return &fakeSubscription{} }

func (c *fakeClient) PassThrough(ctx context.Context, method string, args ...any) (any, error) {
	if method == "blockchainInfo" {
		return map[string]any{"tipHeight": 123}, nil
	}
	return nil, nil
}

func pageOf(all []domain.Tx, page, size int) domain.HistoryPage {
	start := page * size
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	numPages := (len(all) + size - 1) / size
	if numPages == 0 {
		numPages = 1
	}
	return domain.HistoryPage{Txs: all[start:end], NumTxs: len(all), NumPages: numPages}
}

type fakeSubscription struct{}

func (fakeSubscription) Subscribe(context.Context, domain.Namespace, string) error   { return nil }
func (fakeSubscription) Unsubscribe(context.Context, domain.Namespace, string) error { return nil }
func (fakeSubscription) OnMessage(func(domain.Namespace, string, domain.TxEvent))    {}
func (fakeSubscription) OnConnect(func())                                           {}
func (fakeSubscription) OnReconnect(func())                                         {}
func (fakeSubscription) OnError(func(error))                                        {}
func (fakeSubscription) OnEnd(func())                                               {}
func (fakeSubscription) WaitForOpen(context.Context) error                          { return nil }
func (fakeSubscription) Close() error                                               { return nil }

func newTestCache(t *testing.T) *ChronikCache {
	t.Helper()
	dir, err := os.MkdirTemp("", "chronikcache-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cc, err := NewChronikCache(newFakeClient(), Config{DataDir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Destroy(context.Background()) })
	return cc
}

func TestAddressHistoryBootstrapsAndServes(t *testing.T) {
	cc := newTestCache(t)
	res, err := cc.Address("ecash:qp000").History(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, res.Status)
}

func TestScriptResolvesThenForwardsToAddress(t *testing.T) {
	cc := newTestCache(t)
	q, err := cc.Script("p2pkh", "QP000")
	require.NoError(t, err)
	require.Equal(t, "ecash:qp000", q.subject.ID)
}

func TestGetCacheStatusDefaultsToUnknown(t *testing.T) {
	cc := newTestCache(t)
	require.Equal(t, "UNKNOWN", cc.GetCacheStatus("ecash:untouched", false))
}

func TestGetStatisticsReportsEmptyStore(t *testing.T) {
	cc := newTestCache(t)
	snap, err := cc.GetStatistics()
	require.NoError(t, err)
	require.Equal(t, 0, snap.TotalSubjects)
}

func TestPassThroughTagsObjectResponses(t *testing.T) {
	cc := newTestCache(t)
	res, err := cc.PassThrough(context.Background(), "blockchainInfo")
	require.NoError(t, err)
	obj, ok := res.(map[string]any)
	require.True(t, ok)
	require.Equal(t, 3, obj["status"])
	require.Equal(t, 123, obj["tipHeight"])
}

func TestClearAllCacheSucceedsOnEmptyStore(t *testing.T) {
	cc := newTestCache(t)
	require.NoError(t, cc.ClearAllCache(context.Background()))
}
