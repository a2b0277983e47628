package substore

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronikcache/chronikcache/internal/domain"
	"github.com/chronikcache/chronikcache/internal/kvstore"
)

func newTestStore(t *testing.T, maxItemsPerKey int) *Store {
	t.Helper()
	st, err := New(kvstore.NewMemory(), maxItemsPerKey, 100)
	require.NoError(t, err)
	return st
}

func txData(ids ...string) Data {
	m := make(map[string]domain.Tx, len(ids))
	for _, id := range ids {
		m[id] = domain.Tx{Txid: id}
	}
	return Data{TxMap: m, TxOrder: ids, NumTxs: len(ids)}
}

func TestWriteReadRoundTripFlat(t *testing.T) {
	st := newTestStore(t, 10_000)
	subject := domain.Address("addr1")

	require.NoError(t, st.Write(subject, txData("a", "b", "c")))

	data, ok, err := st.Read(subject)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"a", "b", "c"}, data.TxOrder)
	require.Len(t, data.TxMap, 3)
	require.Equal(t, 3, data.NumTxs)
}

func TestWriteReadRoundTripChunked(t *testing.T) {
	st := newTestStore(t, 3)
	subject := domain.Address("addr1")
	ids := []string{"a", "b", "c", "d", "e", "f", "g"}
	require.NoError(t, st.Write(subject, txData(ids...)))

	data, ok, err := st.Read(subject)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ids, data.TxOrder)
	require.Len(t, data.TxMap, len(ids))
}

func TestReadMissingSubjectReturnsNotFound(t *testing.T) {
	st := newTestStore(t, 10_000)
	_, ok, err := st.Read(domain.Address("nope"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWriteIsIdempotentOnUnchangedHash(t *testing.T) {
	st := newTestStore(t, 10_000)
	subject := domain.Token("tok1")
	require.NoError(t, st.Write(subject, txData("a", "b")))
	meta1, ok, err := st.Metadata(subject)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, st.Write(subject, txData("a", "b")))
	meta2, ok, err := st.Metadata(subject)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, meta1.UpdatedAt, meta2.UpdatedAt) // no-op write never touched UpdatedAt again
}

func TestReadBumpsAccessCount(t *testing.T) {
	st := newTestStore(t, 10_000)
	subject := domain.Address("addr1")
	require.NoError(t, st.Write(subject, txData("a")))

	_, _, err := st.Read(subject)
	require.NoError(t, err)
	_, _, err = st.Read(subject)
	require.NoError(t, err)

	meta, ok, err := st.Metadata(subject)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, meta.AccessCount)
}

func TestClearSubjectRemovesEverything(t *testing.T) {
	st := newTestStore(t, 3)
	subject := domain.Address("addr1")
	require.NoError(t, st.Write(subject, txData("a", "b", "c", "d", "e")))
	require.NoError(t, st.ClearSubject(subject))

	_, ok, err := st.Read(subject)
	require.NoError(t, err)
	require.False(t, ok)

	size, err := st.CalculateSize()
	require.NoError(t, err)
	require.Zero(t, size)
}

func TestSwitchingFromChunkedToFlatDropsStaleChunks(t *testing.T) {
	st := newTestStore(t, 3)
	subject := domain.Address("addr1")
	require.NoError(t, st.Write(subject, txData("a", "b", "c", "d", "e")))
	require.NoError(t, st.Write(subject, txData("a")))

	data, ok, err := st.Read(subject)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"a"}, data.TxOrder)
}

func TestCleanLeastAccessedEvictsLowestAccessCountFirst(t *testing.T) {
	st := newTestStore(t, 10_000)
	for i := 0; i < 3; i++ {
		subject := domain.Address(fmt.Sprintf("addr%d", i))
		require.NoError(t, st.Write(subject, txData(fmt.Sprintf("tx%d", i))))
	}
	// addr1 gets the most reads, addr0 the fewest (zero).
	_, _, err := st.Read(domain.Address("addr1"))
	require.NoError(t, err)
	_, _, err = st.Read(domain.Address("addr1"))
	require.NoError(t, err)
	_, _, err = st.Read(domain.Address("addr2"))
	require.NoError(t, err)

	size, err := st.CalculateSize()
	require.NoError(t, err)

	evicted, err := st.CleanLeastAccessed(size - 1)
	require.NoError(t, err)
	require.Equal(t, []domain.Subject{domain.Address("addr0")}, evicted)

	_, ok, err := st.Read(domain.Address("addr0"))
	require.NoError(t, err)
	require.False(t, ok, "least-accessed subject should have been evicted")

	_, ok, err = st.Read(domain.Address("addr1"))
	require.NoError(t, err)
	require.True(t, ok, "most-accessed subject should survive")
}

func TestCleanLeastAccessedNoopWhenUnderCeiling(t *testing.T) {
	st := newTestStore(t, 10_000)
	subject := domain.Address("addr1")
	require.NoError(t, st.Write(subject, txData("a")))

	evicted, err := st.CleanLeastAccessed(1 << 30)
	require.NoError(t, err)
	require.Empty(t, evicted)

	_, ok, err := st.Read(subject)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestListSubjects(t *testing.T) {
	st := newTestStore(t, 10_000)
	require.NoError(t, st.Write(domain.Address("a1"), txData("x")))
	require.NoError(t, st.Write(domain.Token("t1"), txData("y")))

	subjects, err := st.ListSubjects()
	require.NoError(t, err)
	require.Len(t, subjects, 2)
}
