package sortbuilder

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSortOrdersByKey(t *testing.T) {
	b, err := New(t.TempDir())
	require.NoError(t, err)
	defer b.Close()

	pairs := [][2]string{
		{"d", "www"},
		{"a", "xxx"},
		{"c", "zzz"},
		{"b", "yyy"},
	}
	for _, p := range pairs {
		require.NoError(t, b.Add([]byte(p[0]), []byte(p[1])))
	}

	require.NoError(t, b.Sort())

	var gotKeys []string
	for _, e := range b.Entries() {
		k, v, err := b.ReadAt(e)
		require.NoError(t, err)
		gotKeys = append(gotKeys, string(k))
		switch string(k) {
		case "a":
			require.Equal(t, "xxx", string(v))
		case "b":
			require.Equal(t, "yyy", string(v))
		case "c":
			require.Equal(t, "zzz", string(v))
		case "d":
			require.Equal(t, "www", string(v))
		}
	}
	require.Equal(t, []string{"a", "b", "c", "d"}, gotKeys)
}

func TestSortIsStableForDuplicateKeys(t *testing.T) {
	b, err := New(t.TempDir())
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Add([]byte("k"), []byte("v1")))
	require.NoError(t, b.Add([]byte("k"), []byte("v2")))

	require.NoError(t, b.Sort())

	entries := b.Entries()
	require.Len(t, entries, 2)
	_, v1, err := b.ReadAt(entries[0])
	require.NoError(t, err)
	_, v2, err := b.ReadAt(entries[1])
	require.NoError(t, err)
	require.Equal(t, "v1", string(v1))
	require.Equal(t, "v2", string(v2))
}

func TestSortHandlesLongKeysBeyondPrefix(t *testing.T) {
	b, err := New(t.TempDir())
	require.NoError(t, err)
	defer b.Close()

	longA := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" // shares a 24-byte prefix
	longB := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaab"

	require.NoError(t, b.Add([]byte(longB), []byte("2")))
	require.NoError(t, b.Add([]byte(longA), []byte("1")))

	require.NoError(t, b.Sort())

	entries := b.Entries()
	k0, _, err := b.ReadAt(entries[0])
	require.NoError(t, err)
	k1, _, err := b.ReadAt(entries[1])
	require.NoError(t, err)
	require.Equal(t, longA, string(k0))
	require.Equal(t, longB, string(k1))
}

func TestCloseRemovesSpillFile(t *testing.T) {
	dir := t.TempDir()
	b, err := New(dir)
	require.NoError(t, err)
	name := b.spill.Name()

	require.NoError(t, b.Add([]byte("a"), []byte("b")))
	require.NoError(t, b.Close())

	// the spill file's name itself should no longer resolve
	_, err = os.Stat(name)
	require.ErrorIs(t, err, os.ErrNotExist)
}
