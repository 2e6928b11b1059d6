package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brinedb/memhist/internal/slice"
)

func TestOpenCreatesFixedSchema(t *testing.T) {
	st, err := Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	for _, table := range []string{"slices", "chunks", "accesses"} {
		var name string
		err := st.DB().QueryRow("select name from sqlite_master where type='table' and name=?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestFlushRejectsEmptySlicePair(t *testing.T) {
	st, err := Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	readSlice := slice.NewBuilder(slice.Limits{}).Build()
	writeSlice := slice.NewBuilder(slice.Limits{}).Build()

	err = st.Flush(readSlice, writeSlice, nil)
	require.Error(t, err)
	var logicErr *LogicError
	assert.ErrorAs(t, err, &logicErr)
}

func TestDiscardAfterOnEmptyDatabaseIsNoop(t *testing.T) {
	st, err := Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.DiscardAfter(0))
}

// TestOpenIdempotentOnExistingFile guards against schema.sql's "create
// table"/"create index" statements failing with "table already exists"
// on a second Open against the same on-disk file — the path
// cmd/memhist-ingest's inspect command relies on when reading back a
// database an earlier ingest run produced.
func TestOpenIdempotentOnExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memhist.db")

	st1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st1.Close())

	st2, err := Open(path)
	require.NoError(t, err)
	defer st2.Close()

	var name string
	err = st2.DB().QueryRow("select name from sqlite_master where type='table' and name='slices'").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "slices", name)
}
