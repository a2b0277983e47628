package sortkey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnconfirmedOrderedByTimestampThenTimeFirstSeen(t *testing.T) {
	a := Tx{Txid: "a", Timestamp: 100, TimeFirstSeen: 1}
	b := Tx{Txid: "b", Timestamp: 200, TimeFirstSeen: 2}
	require.True(t, Less(b, a))
	require.False(t, Less(a, b))

	c := Tx{Txid: "c", Timestamp: 100, TimeFirstSeen: 5}
	require.True(t, Less(c, a))
}

func TestUnconfirmedBeforeConfirmed(t *testing.T) {
	unconf := Tx{Txid: "u"}
	conf := Tx{Txid: "c", Block: Block{Present: true, Height: 100}}
	require.True(t, Less(unconf, conf))
	require.False(t, Less(conf, unconf))
}

func TestConfirmedOrderedByHeightThenBlockTimestampThenTimeFirstSeen(t *testing.T) {
	a := Tx{Txid: "a", Block: Block{Present: true, Height: 10}}
	b := Tx{Txid: "b", Block: Block{Present: true, Height: 20}}
	require.True(t, Less(b, a))

	c := Tx{Txid: "c", Block: Block{Present: true, Height: 10, Timestamp: 500}}
	d := Tx{Txid: "d", Block: Block{Present: true, Height: 10, Timestamp: 600}}
	require.True(t, Less(d, c))

	e := Tx{Txid: "e", Block: Block{Present: true, Height: 10, Timestamp: 500}, TimeFirstSeen: 1}
	f := Tx{Txid: "f", Block: Block{Present: true, Height: 10, Timestamp: 500}, TimeFirstSeen: 2}
	require.True(t, Less(f, e))
}

func TestSortIsDeterministicAcrossCalls(t *testing.T) {
	txs := []Tx{
		{Txid: "1", Block: Block{Present: true, Height: 5}},
		{Txid: "2", Timestamp: 10, TimeFirstSeen: 1},
		{Txid: "3", Block: Block{Present: true, Height: 10}},
		{Txid: "4", Timestamp: 20, TimeFirstSeen: 2},
	}
	first := append([]Tx(nil), txs...)
	Sort(first)

	second := append([]Tx(nil), txs...)
	Sort(second)

	require.Equal(t, first, second)
	// unconfirmed first, newest confirmed next
	require.Equal(t, "4", first[0].Txid)
	require.Equal(t, "2", first[1].Txid)
	require.Equal(t, "3", first[2].Txid)
	require.Equal(t, "1", first[3].Txid)
}
