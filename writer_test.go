package memhist

import (
	"database/sql"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testToolName    = "TestDbWriter"
	testToolVersion = "1.0.0"
	testToolInfo    = "TestDbWriter info"
)

func newTestWriter(t *testing.T) *Writer {
	t.Helper()
	w, err := FromMemory(testToolName, testToolVersion, testToolInfo)
	require.NoError(t, err)
	return w
}

func nominalAccesses() []Access {
	return []Access{
		{Transition: 0, PhysicalAddress: 10, VirtualAddress: 6666, HasVirtualAddress: true, Size: 10, Operation: OperationWrite},
		{Transition: 1, PhysicalAddress: 100, VirtualAddress: 6666, HasVirtualAddress: true, Size: 10, Operation: OperationWrite},
		{Transition: 2, PhysicalAddress: 1000, VirtualAddress: 6666, HasVirtualAddress: true, Size: 10, Operation: OperationWrite},
		{Transition: 3, PhysicalAddress: 1005, VirtualAddress: 6666, HasVirtualAddress: true, Size: 10, Operation: OperationWrite},
		{Transition: 4, PhysicalAddress: 10, VirtualAddress: 6666, HasVirtualAddress: true, Size: 10, Operation: OperationRead},
		{Transition: 5, PhysicalAddress: 100, VirtualAddress: 6666, HasVirtualAddress: true, Size: 10, Operation: OperationRead},
		{Transition: 6, PhysicalAddress: 1000, VirtualAddress: 6666, HasVirtualAddress: true, Size: 10, Operation: OperationRead},
		{Transition: 7, PhysicalAddress: 1005, VirtualAddress: 6666, HasVirtualAddress: true, Size: 10, Operation: OperationRead},
	}
}

func scalarInt(t *testing.T, db *sql.DB, query string, args ...any) int64 {
	t.Helper()
	var v int64
	require.NoError(t, db.QueryRow(query, args...).Scan(&v))
	return v
}

// TestWriterNominal mirrors original_source/test/test_db_writer.cpp's
// test_db_writer_nominal: one slice, six chunks, eight accesses, and
// every pushed access present verbatim.
func TestWriterNominal(t *testing.T) {
	w := newTestWriter(t)
	accesses := nominalAccesses()
	for _, a := range accesses {
		require.NoError(t, w.Push(a))
	}

	st, err := w.Take()
	require.NoError(t, err)
	db := st.DB()
	defer st.Close()

	require.Equal(t, int64(1), scalarInt(t, db, "select count(*) from slices"))
	require.Equal(t, int64(6), scalarInt(t, db, "select count(*) from chunks"))
	require.Equal(t, int64(len(accesses)), scalarInt(t, db, "select count(*) from accesses"))
	require.Equal(t, int64(0), scalarInt(t, db, "select min(transition_first) from slices"))
	require.Equal(t, int64(7), scalarInt(t, db, "select max(transition_last) from slices"))

	for _, a := range accesses {
		n := scalarInt(t, db,
			"select count(*) from accesses where transition=? and phy_first=? and linear=? and size=? and operation=?",
			int64(a.Transition), int64(a.PhysicalAddress), int64(a.VirtualAddress), int64(a.Size), int(a.Operation))
		require.Equal(t, int64(1), n, "access at transition %d not found exactly once", a.Transition)
	}
}

// TestWriterVirtualAddressNullability mirrors test_db_writer_no_virtual:
// linear is populated when has_virtual_address is true and NULL otherwise.
func TestWriterVirtualAddressNullability(t *testing.T) {
	w := newTestWriter(t)
	require.NoError(t, w.Push(Access{Transition: 0, PhysicalAddress: 10, VirtualAddress: 6666, HasVirtualAddress: true, Size: 10, Operation: OperationWrite}))
	require.NoError(t, w.Push(Access{Transition: 1, PhysicalAddress: 100, VirtualAddress: 156, HasVirtualAddress: false, Size: 10, Operation: OperationWrite}))

	st, err := w.Take()
	require.NoError(t, err)
	db := st.DB()
	defer st.Close()

	var linear sql.NullInt64
	require.NoError(t, db.QueryRow("select linear from accesses where transition = 0").Scan(&linear))
	require.True(t, linear.Valid)

	require.NoError(t, db.QueryRow("select linear from accesses where transition = 1").Scan(&linear))
	require.False(t, linear.Valid)
}

// TestWriterDiscardAfterTailTruncation mirrors test_db_writer_remove_last:
// pushing two more accesses at the trailing transition then discarding
// from that transition removes every access at transition 7 (the two new
// ones and the original transition-7 read), leaving seven of ten.
func TestWriterDiscardAfterTailTruncation(t *testing.T) {
	w := newTestWriter(t)
	accesses := nominalAccesses()
	for _, a := range accesses {
		require.NoError(t, w.Push(a))
	}
	require.NoError(t, w.Push(Access{Transition: 7, PhysicalAddress: 200, VirtualAddress: 6666, HasVirtualAddress: true, Size: 10, Operation: OperationWrite}))
	require.NoError(t, w.Push(Access{Transition: 7, PhysicalAddress: 200, VirtualAddress: 6666, HasVirtualAddress: true, Size: 10, Operation: OperationRead}))
	require.NoError(t, w.DiscardAfter(7))

	st, err := w.Take()
	require.NoError(t, err)
	db := st.DB()
	defer st.Close()

	require.Equal(t, int64(len(accesses)-1), scalarInt(t, db, "select count(*) from accesses"))
}

// TestWriterSlicesOrdering mirrors test_db_writer_slices_ordering: within
// one slice, chunk phy_first is non-decreasing per operation kind and
// access rowids per chunk are non-decreasing whether scanned forward from
// transition 0 or bounded at transition 4.
func TestWriterSlicesOrdering(t *testing.T) {
	w := newTestWriter(t)
	accesses := []Access{
		{Transition: 0, PhysicalAddress: 10, VirtualAddress: 6666, HasVirtualAddress: true, Size: 10, Operation: OperationWrite},
		{Transition: 1, PhysicalAddress: 1000, VirtualAddress: 6666, HasVirtualAddress: true, Size: 10, Operation: OperationWrite},
		{Transition: 2, PhysicalAddress: 1, VirtualAddress: 6666, HasVirtualAddress: true, Size: 10, Operation: OperationRead},
		{Transition: 2, PhysicalAddress: 100, VirtualAddress: 6666, HasVirtualAddress: true, Size: 10, Operation: OperationRead},
		{Transition: 4, PhysicalAddress: 10, VirtualAddress: 6666, HasVirtualAddress: true, Size: 10, Operation: OperationRead},
		{Transition: 4, PhysicalAddress: 1005, VirtualAddress: 6666, HasVirtualAddress: true, Size: 10, Operation: OperationRead},
		{Transition: 6, PhysicalAddress: 100, VirtualAddress: 6666, HasVirtualAddress: true, Size: 10, Operation: OperationWrite},
		{Transition: 7, PhysicalAddress: 1005, VirtualAddress: 6666, HasVirtualAddress: true, Size: 10, Operation: OperationRead},
		{Transition: 12, PhysicalAddress: 100, VirtualAddress: 6666, HasVirtualAddress: true, Size: 10, Operation: OperationRead},
	}
	for _, a := range accesses {
		require.NoError(t, w.Push(a))
	}

	st, err := w.Take()
	require.NoError(t, err)
	db := st.DB()
	defer st.Close()

	require.True(t, isOrdered(t, db, "select phy_first from chunks where operation = ? and slice_id = 1", int(OperationRead)))
	require.True(t, isOrdered(t, db, "select phy_first from chunks where operation = ? and slice_id = 1", int(OperationWrite)))

	maxChunkID := scalarInt(t, db, "select max(rowid) from chunks")
	for i := int64(1); i <= maxChunkID; i++ {
		require.True(t, isOrdered(t, db, "select rowid from accesses where chunk_id = ? and transition >= 0", i))
		// A chunk with no access at or before transition 4 has nothing to order.
		if scalarInt(t, db, "select count(*) from accesses where chunk_id = ? and transition <= 4", i) > 0 {
			require.True(t, isOrdered(t, db, "select rowid from accesses where chunk_id = ? and transition <= 4", i))
		}
	}
}

func isOrdered(t *testing.T, db *sql.DB, query string, args ...any) bool {
	t.Helper()
	rows, err := db.Query(query, args...)
	require.NoError(t, err)
	defer rows.Close()

	var values []int64
	for rows.Next() {
		var v int64
		require.NoError(t, rows.Scan(&v))
		values = append(values, v)
	}
	require.NoError(t, rows.Err())
	if len(values) == 0 {
		return false
	}
	return sort.SliceIsSorted(values, func(i, j int) bool { return values[i] < values[j] })
}

// TestWriterRejectsExecute checks that Execute accesses are refused
// without reaching the store.
func TestWriterRejectsExecute(t *testing.T) {
	w := newTestWriter(t)
	err := w.Push(Access{Transition: 0, PhysicalAddress: 10, Size: 1, Operation: OperationExecute})
	require.Error(t, err)
	var uerr *UnsupportedOperationError
	require.ErrorAs(t, err, &uerr)
}

// TestWriterFlushIdempotentOnEmptyState checks that a flush with nothing
// pushed since the last one is a no-op rather than an error, and that
// Close after Take does not flush again.
func TestWriterFlushIdempotentOnEmptyState(t *testing.T) {
	w := newTestWriter(t)
	require.NoError(t, w.Push(Access{Transition: 0, PhysicalAddress: 10, Size: 1, Operation: OperationRead}))

	st, err := w.Take()
	require.NoError(t, err)

	// Take already flushed the only access; flushing again writes nothing.
	require.NoError(t, w.flush())
	require.Equal(t, int64(1), scalarInt(t, st.DB(), "select count(*) from slices"))
	require.NoError(t, st.Close())

	// Take flushed once already; calling Close afterward must not attempt
	// a second flush against an invalidated builder pair.
	require.NoError(t, w.Close())
}
