package cantable

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canteradb/cantable/internal/wo"
)

func buildTable(t *testing.T, pairs [][2]string, opts ...BuilderOption) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "table.cantable")

	b, err := Create(path, opts...)
	require.NoError(t, err)
	for _, p := range pairs {
		require.NoError(t, b.InsertRow([]byte(p[0]), []byte(p[1])))
	}
	require.NoError(t, b.Sync())
	require.NoError(t, b.Close())

	return path
}

// Scenario 1: basic ascending lookups, present and absent keys.
func TestScenarioBasicLookups(t *testing.T) {
	path := buildTable(t, [][2]string{
		{"a", "xxx"},
		{"b", "yyy"},
		{"c", "zzz"},
		{"d", "www"},
	})

	tbl, err := Open(path)
	require.NoError(t, err)
	defer tbl.Close()

	require.True(t, tbl.IsSorted())

	for _, k := range []string{"a", "b", "c", "d"} {
		found, err := tbl.SeekToKey([]byte(k))
		require.NoError(t, err)
		require.True(t, found, "key %q", k)
	}
	for _, k := range []string{"A", "B", "C", "D"} {
		found, err := tbl.SeekToKey([]byte(k))
		require.NoError(t, err)
		require.False(t, found, "key %q", k)
	}
}

// Scenario 2: every two-letter lowercase key round-trips and iterates sorted.
func TestScenarioAllTwoLetterKeys(t *testing.T) {
	var pairs [][2]string
	for a := byte('a'); a <= 'z'; a++ {
		for b := byte('a'); b <= 'z'; b++ {
			pairs = append(pairs, [2]string{string([]byte{a, b}), "xxx"})
		}
	}
	path := buildTable(t, pairs)

	tbl, err := Open(path)
	require.NoError(t, err)
	defer tbl.Close()

	for _, p := range pairs {
		found, err := tbl.SeekToKey([]byte(p[0]))
		require.NoError(t, err)
		require.True(t, found, "key %q", p[0])
		_, value, ok, err := tbl.ReadRow()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, p[1], string(value))
	}

	tbl.SeekToFirst()
	var lastKey string
	count := 0
	for {
		key, _, ok, err := tbl.ReadRow()
		require.NoError(t, err)
		if !ok {
			break
		}
		if count > 0 {
			require.True(t, lastKey < string(key))
		}
		lastKey = string(key)
		count++
	}
	require.Equal(t, len(pairs), count)
}

// Scenario 3: out-of-order inserts still come back sorted.
func TestScenarioOutOfOrderInsertsSortOnSync(t *testing.T) {
	path := buildTable(t, [][2]string{
		{"a", "xxx"},
		{"c", "zzz"},
		{"d", "www"},
		{"b", "yyy"},
	})

	tbl, err := Open(path)
	require.NoError(t, err)
	defer tbl.Close()

	require.True(t, tbl.IsSorted())

	var keys []string
	tbl.SeekToFirst()
	for {
		key, _, ok, err := tbl.ReadRow()
		require.NoError(t, err)
		if !ok {
			break
		}
		keys = append(keys, string(key))
	}
	require.Equal(t, []string{"a", "b", "c", "d"}, keys)
}

// Scenario 4: an empty table builds and opens cleanly, with an immediate
// end-of-rows.
func TestScenarioEmptyTable(t *testing.T) {
	path := buildTable(t, nil)

	tbl, err := Open(path)
	require.NoError(t, err)
	defer tbl.Close()

	tbl.SeekToFirst()
	_, _, ok, err := tbl.ReadRow()
	require.NoError(t, err)
	require.False(t, ok)
}

// Scenario 5: a builder dropped without Sync leaves no file at path.
func TestScenarioDroppedBuilderLeavesNoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.cantable")

	b, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, b.InsertRow([]byte("a"), []byte("xxx")))
	require.NoError(t, b.Close())

	_, err = Open(path)
	require.Error(t, err)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLookupConsistencyForMissingKeyLeavesCursorUnchanged(t *testing.T) {
	path := buildTable(t, [][2]string{
		{"a", "xxx"},
		{"b", "yyy"},
	})

	tbl, err := Open(path)
	require.NoError(t, err)
	defer tbl.Close()

	found, err := tbl.SeekToKey([]byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	before := tbl.Offset()

	found, err = tbl.SeekToKey([]byte("zzz-not-there"))
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, before, tbl.Offset())
}

func TestStabilityPreservesInsertionOrderForDuplicateKeys(t *testing.T) {
	path := buildTable(t, [][2]string{
		{"k", "v1"},
		{"k", "v2"},
	})

	tbl, err := Open(path)
	require.NoError(t, err)
	defer tbl.Close()

	tbl.SeekToFirst()
	_, v1, ok, err := tbl.ReadRow()
	require.NoError(t, err)
	require.True(t, ok)
	_, v2, ok, err := tbl.ReadRow()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v1", string(v1))
	require.Equal(t, "v2", string(v2))
}

func TestIdempotentOpenCloseYieldsIdenticalScans(t *testing.T) {
	path := buildTable(t, [][2]string{
		{"a", "xxx"},
		{"b", "yyy"},
		{"c", "zzz"},
	})

	scan := func() []string {
		tbl, err := Open(path)
		require.NoError(t, err)
		defer tbl.Close()

		var keys []string
		tbl.SeekToFirst()
		for {
			key, _, ok, err := tbl.ReadRow()
			require.NoError(t, err)
			if !ok {
				break
			}
			keys = append(keys, string(key))
		}
		return keys
	}

	first := scan()
	second := scan()
	require.Equal(t, first, second)
}

func TestInsertRowOnClosedBuilderFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.cantable")
	b, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	err = b.InsertRow([]byte("a"), []byte("x"))
	require.ErrorIs(t, err, ErrClosed)
}

func TestWithCompressionRoundTrips(t *testing.T) {
	path := buildTable(t, [][2]string{
		{"a", "a value worth compressing, repeated, repeated, repeated"},
		{"b", "another value worth compressing, repeated, repeated"},
	}, WithCompression(0))

	tbl, err := Open(path)
	require.NoError(t, err)
	defer tbl.Close()

	tbl.SeekToFirst()
	_, value, ok, err := tbl.ReadRow()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a value worth compressing, repeated, repeated, repeated", string(value))
}

func TestNoRelativeFlagReportsAbsoluteOffsets(t *testing.T) {
	path := buildTable(t, [][2]string{
		{"a", "xxx"},
		{"b", "yyy"},
	})

	relTbl, err := Open(path)
	require.NoError(t, err)
	defer relTbl.Close()
	relTbl.SeekToFirst()
	_, _, ok, err := relTbl.ReadRow()
	require.NoError(t, err)
	require.True(t, ok)
	relativeOffset := relTbl.Offset()

	absTbl, err := Open(path, WithNoRelative())
	require.NoError(t, err)
	defer absTbl.Close()
	absTbl.SeekToFirst()
	_, _, ok, err = absTbl.ReadRow()
	require.NoError(t, err)
	require.True(t, ok)
	absoluteOffset := absTbl.Offset()

	require.NotEqual(t, relativeOffset, absoluteOffset)
	require.Equal(t, absoluteOffset, relativeOffset+absTbl.backend.headerSize())
}

func TestSetFlagNoFsyncSkipsFinalSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.cantable")
	b, err := Create(path)
	require.NoError(t, err)
	b.SetFlag(FlagNoFsync)
	require.NoError(t, b.InsertRow([]byte("a"), []byte("xxx")))
	require.NoError(t, b.Sync())
	require.NoError(t, b.Close())

	tbl, err := Open(path)
	require.NoError(t, err)
	defer tbl.Close()

	found, err := tbl.SeekToKey([]byte("a"))
	require.NoError(t, err)
	require.True(t, found)
}

func TestSetFlagNoRelativeMatchesWithNoRelativeOption(t *testing.T) {
	path := buildTable(t, [][2]string{{"a", "xxx"}})

	tbl, err := Open(path)
	require.NoError(t, err)
	defer tbl.Close()

	tbl.SeekToFirst()
	_, _, ok, err := tbl.ReadRow()
	require.NoError(t, err)
	require.True(t, ok)
	before := tbl.Offset()

	tbl.SetFlag(FlagNoRelative)
	require.Equal(t, before+tbl.backend.headerSize(), tbl.Offset())
}

func TestLastErrorShimRecordsFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.cantable")
	b, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	require.ErrorIs(t, b.InsertRow([]byte("a"), []byte("x")), ErrClosed)
	require.ErrorIs(t, GetLastError(b), ErrClosed)
}

func TestUnregisteredBackendNameFails(t *testing.T) {
	_, err := OpenBackend("no-such-backend", "irrelevant")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no-such-backend")
}

func TestRebuildIndexThenOpenFindsRows(t *testing.T) {
	// A table built the ordinary way already has an index; RebuildIndex
	// on it is a no-op, so this exercises the full RebuildIndex -> Open
	// -> SeekToKey path end to end using a table Sync already finished.
	path := buildTable(t, [][2]string{
		{"a", "xxx"},
		{"b", "yyy"},
	})

	require.NoError(t, RebuildIndex(path))

	tbl, err := Open(path)
	require.NoError(t, err)
	defer tbl.Close()

	found, err := tbl.SeekToKey([]byte("a"))
	require.NoError(t, err)
	require.True(t, found)
}

func TestInsertRowAfterSyncFailsAsInvariantViolation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.cantable")
	b, err := Create(path)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.InsertRow([]byte("a"), []byte("xxx")))
	require.NoError(t, b.Sync())

	err = b.InsertRow([]byte("b"), []byte("yyy"))
	var invariant *InvariantViolation
	require.ErrorAs(t, err, &invariant)
	require.ErrorIs(t, err, wo.ErrReadOnly)
}

func TestSyncTwiceFailsAsInvariantViolation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.cantable")
	b, err := Create(path)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.InsertRow([]byte("a"), []byte("xxx")))
	require.NoError(t, b.Sync())

	err = b.Sync()
	var invariant *InvariantViolation
	require.ErrorAs(t, err, &invariant)
}

func TestOpenOnBadMagicFailsAsFormatError(t *testing.T) {
	path := buildTable(t, [][2]string{{"a", "xxx"}})

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt(make([]byte, 8), 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(path)
	var formatErr *FormatError
	require.ErrorAs(t, err, &formatErr)
	require.ErrorIs(t, err, wo.ErrBadMagic)
}

func TestBackendRegistrationExample(t *testing.T) {
	name := fmt.Sprintf("test-backend-%p", t)
	RegisterBackend(name, writeOnceBackend{})

	path := filepath.Join(t.TempDir(), "table.cantable")
	b, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, b.InsertRow([]byte("a"), []byte("xxx")))
	require.NoError(t, b.Sync())
	require.NoError(t, b.Close())

	tbl, err := OpenBackend(name, path)
	require.NoError(t, err)
	defer tbl.Close()

	found, err := tbl.SeekToKey([]byte("a"))
	require.NoError(t, err)
	require.True(t, found)
}
