package contenthash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashIsStableAndOrderSensitive(t *testing.T) {
	h1, err := Hash([]string{"a", "b", "c"})
	require.NoError(t, err)
	h2, err := Hash([]string{"a", "b", "c"})
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	h3, err := Hash([]string{"c", "b", "a"})
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}

func TestHashEmptyAndNilEquivalent(t *testing.T) {
	h1, err := Hash(nil)
	require.NoError(t, err)
	h2, err := Hash([]string{})
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestHashLength(t *testing.T) {
	h := MustHash([]string{"txid1"})
	require.Len(t, h, 64)
}
