package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = Key{Dataset: "avenue", Split: "train"}

func openBackends(t *testing.T) map[string]Ledger {
	t.Helper()
	backends := map[string]Ledger{}
	for _, backend := range []string{BackendFile, BackendSQLite} {
		l, err := Open(backend, t.TempDir(), "run-1")
		require.NoError(t, err, backend)
		t.Cleanup(func() { l.Close() })
		backends[backend] = l
	}
	return backends
}

func TestLedgerEmptyOnFirstRun(t *testing.T) {
	for backend, l := range openBackends(t) {
		t.Run(backend, func(t *testing.T) {
			done, err := l.Load(testKey)
			require.NoError(t, err)
			assert.Empty(t, done)

			entries, err := l.Entries(testKey)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestLedgerRoundTripWithDuplicates(t *testing.T) {
	for backend, l := range openBackends(t) {
		t.Run(backend, func(t *testing.T) {
			names := []string{"b.avi", "a.avi", "b.avi", " clip 01 .avi ", "c.avi", "a.avi", "\ttabbed"}
			for _, name := range names {
				require.NoError(t, l.MarkDone(testKey, name))
			}

			done, err := l.Load(testKey)
			require.NoError(t, err)
			want := map[string]struct{}{
				"a.avi": {}, "b.avi": {}, "c.avi": {},
				" clip 01 .avi ": {}, "\ttabbed": {},
			}
			if diff := cmp.Diff(want, done); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}

			entries, err := l.Entries(testKey)
			require.NoError(t, err)
			assert.Equal(t, []string{"b.avi", "a.avi", " clip 01 .avi ", "c.avi", "\ttabbed"}, entries)

			work := []string{"a.avi", " clip 01 .avi ", "b.avi", "c.avi", "clip 01 .avi", "d.avi"}
			assert.Equal(t, []string{"clip 01 .avi", "d.avi"}, Filter(work, done))
		})
	}
}

func TestLedgerKeysAreIsolated(t *testing.T) {
	for backend, l := range openBackends(t) {
		t.Run(backend, func(t *testing.T) {
			other := Key{Dataset: "avenue", Split: "test"}
			require.NoError(t, l.MarkDone(testKey, "01"))
			require.NoError(t, l.MarkDone(other, "02"))

			done, err := l.Load(other)
			require.NoError(t, err)
			assert.Equal(t, map[string]struct{}{"02": {}}, done)

			// Underscores in names must not make keys alias each other.
			left := Key{Dataset: "a_b", Split: "c"}
			right := Key{Dataset: "a", Split: "b_c"}
			require.NoError(t, l.MarkDone(left, "left.avi"))
			require.NoError(t, l.MarkDone(right, "right.avi"))

			done, err = l.Load(right)
			require.NoError(t, err)
			assert.Equal(t, map[string]struct{}{"right.avi": {}}, done)
		})
	}
}

func TestLedgerPersistsAcrossReopen(t *testing.T) {
	for _, backend := range []string{BackendFile, BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			l, err := Open(backend, dir, "run-1")
			require.NoError(t, err)
			require.NoError(t, l.MarkDone(testKey, "v1.mp4"))
			require.NoError(t, l.Close())

			l, err = Open(backend, dir, "run-2")
			require.NoError(t, err)
			defer l.Close()

			done, err := l.Load(testKey)
			require.NoError(t, err)
			assert.Contains(t, done, "v1.mp4")
		})
	}
}

func TestFilterKeepsOrder(t *testing.T) {
	work := []string{"01", "02", "03", "04", "05"}
	done := map[string]struct{}{"02": {}, "05": {}, "99": {}}

	assert.Equal(t, []string{"01", "03", "04"}, Filter(work, done))
	assert.Equal(t, work, Filter(work, nil))
	assert.Empty(t, Filter(nil, done))
}

func TestFileLedgerIgnoresTornAppend(t *testing.T) {
	l, err := NewFileLedger(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Dir(l.Path(testKey)), 0755))
	require.NoError(t, os.WriteFile(l.Path(testKey), []byte("a.avi\r\nb.av"), 0644))

	done, err := l.Load(testKey)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"a.avi": {}}, done)

	require.NoError(t, l.MarkDone(testKey, "c.avi"))
	entries, err := l.Entries(testKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.avi", "b.av", "c.avi"}, entries)
}

func TestFileLedgerPath(t *testing.T) {
	dir := t.TempDir()
	l, err := NewFileLedger(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "avenue", "train.txt"), l.Path(testKey))
}

func TestFileLedgerRejectsEscapingKeys(t *testing.T) {
	dir := t.TempDir()
	l, err := NewFileLedger(filepath.Join(dir, "history"))
	require.NoError(t, err)

	for _, key := range []Key{
		{Dataset: "../x", Split: "train"},
		{Dataset: "avenue", Split: ".."},
		{Dataset: "", Split: "train"},
	} {
		assert.Error(t, l.MarkDone(key, "a.avi"), key.String())
		_, err := l.Load(key)
		assert.Error(t, err, key.String())
	}

	_, err = os.Stat(filepath.Join(dir, "x"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileLedgerRejectsMultilineName(t *testing.T) {
	l, err := NewFileLedger(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, l.MarkDone(testKey, "a\nb"))
	assert.Error(t, l.MarkDone(testKey, ""))
}

func TestFileLedgerAppendFailureIsLedgerIO(t *testing.T) {
	dir := t.TempDir()
	l, err := NewFileLedger(dir)
	require.NoError(t, err)

	// A directory where the ledger file should be makes the open fail.
	require.NoError(t, os.MkdirAll(l.Path(testKey), 0755))

	err = l.MarkDone(testKey, "x")
	assert.ErrorIs(t, err, ErrLedgerIO)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("redis", t.TempDir(), "")
	assert.Error(t, err)
}

func TestCopyFileLedgerIntoSQLite(t *testing.T) {
	src, err := NewFileLedger(t.TempDir())
	require.NoError(t, err)
	dst, err := NewSQLiteLedger(t.TempDir(), "import")
	require.NoError(t, err)
	defer dst.Close()

	for _, name := range []string{"01", "02", "01", "03"} {
		require.NoError(t, src.MarkDone(testKey, name))
	}
	require.NoError(t, dst.MarkDone(testKey, "02"))

	added, err := Copy(dst, src, testKey)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	entries, err := dst.Entries(testKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"02", "01", "03"}, entries)

	added, err = Copy(dst, src, testKey)
	require.NoError(t, err)
	assert.Zero(t, added)
}
