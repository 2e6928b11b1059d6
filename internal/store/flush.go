package store

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/brinedb/memhist/internal/chunk"
	"github.com/brinedb/memhist/internal/slice"
)

// AccessLogEntry records one pushed access in arrival order, carrying the
// information that Slice/Chunk do not retain: whether a virtual address
// was supplied, its value, and the operation byte to store.
type AccessLogEntry struct {
	Access            *chunk.Access
	HasVirtualAddress bool
	VirtualAddress    uint64
	Operation         uint8
}

// taggedChunk pairs a chunk with the operation byte it is stored under,
// for the combined read+write emission in step 5 of the flush procedure.
type taggedChunk struct {
	operation uint8
	chunk     *chunk.Chunk
}

// LogicErrorCode identifies the invariant a LogicError reports, mirroring
// the root package's memhist.LogicErrorCode taxonomy for the store's own
// internal-invariant violations.
type LogicErrorCode string

const (
	// ErrCodeEmptyFlush marks a Flush call made with no accesses logged
	// since the last one.
	ErrCodeEmptyFlush LogicErrorCode = "EMPTY_FLUSH"
	// ErrCodeIncompleteMapping marks a logged access missing from the
	// access->chunk-id mapping built while inserting chunk rows.
	ErrCodeIncompleteMapping LogicErrorCode = "INCOMPLETE_MAPPING"
)

// LogicError signals an internal invariant violation: these are never
// expected to surface to a well-behaved caller and indicate a bug in the
// writer that called into the store, not a malformed access.
type LogicError struct {
	Code    LogicErrorCode
	Message string
}

func (e *LogicError) Error() string {
	return fmt.Sprintf("memhist: logic error [%s]: %s", e.Code, e.Message)
}

// Flush persists a completed (read, write) slice pair and the accesses
// pushed since the last flush as one atomic batch: one slice row, one
// chunk row per chunk across both slices, and one access row per logged
// entry, in push order.
func (s *Store) Flush(readSlice, writeSlice *slice.Slice, log []AccessLogEntry) error {
	if readSlice.Empty() && writeSlice.Empty() {
		return &LogicError{Code: ErrCodeEmptyFlush, Message: "flush called with no accesses logged"}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return &Error{Context: "begin transaction", Err: err}
	}

	sliceID, err := s.insertSliceRow(tx, readSlice, writeSlice)
	if err != nil {
		tx.Rollback()
		return err
	}

	accessToChunkID, err := s.insertChunkRows(tx, readSlice, writeSlice, sliceID)
	if err != nil {
		tx.Rollback()
		return err
	}

	if err := s.insertAccessRows(tx, log, accessToChunkID); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return &Error{Context: "commit transaction", Err: err}
	}
	return nil
}

// insertSliceRow computes the bounding box of both slices and inserts the
// single slices row representing them, returning its assigned row id.
func (s *Store) insertSliceRow(tx *sql.Tx, readSlice, writeSlice *slice.Slice) (int64, error) {
	var transitionFirst, transitionLast uint64
	switch {
	case readSlice.Empty():
		transitionFirst, transitionLast = writeSlice.TransitionFirst(), writeSlice.TransitionLast()
	case writeSlice.Empty():
		transitionFirst, transitionLast = readSlice.TransitionFirst(), readSlice.TransitionLast()
	default:
		transitionFirst = min(readSlice.TransitionFirst(), writeSlice.TransitionFirst())
		transitionLast = max(readSlice.TransitionLast(), writeSlice.TransitionLast())
	}

	res, err := tx.Stmt(s.insertSlice).Exec(int64(transitionFirst), int64(transitionLast))
	if err != nil {
		return 0, &Error{Context: "insert slice row", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &Error{Context: "read slice row id", Err: err}
	}
	return id, nil
}

// insertChunkRows gathers every chunk from both slices tagged with its
// operation byte, emits them in descending address_first order — a
// performance hint the combined (operation, slice_id, phy_last) index
// makes non-load-bearing for correctness, not a requirement — and
// returns the map from each chunk's accesses to the chunk's row id.
func (s *Store) insertChunkRows(tx *sql.Tx, readSlice, writeSlice *slice.Slice, sliceID int64) (map[*chunk.Access]int64, error) {
	var tagged []taggedChunk
	readSlice.Chunks(func(c *chunk.Chunk) { tagged = append(tagged, taggedChunk{operationRead, c}) })
	writeSlice.Chunks(func(c *chunk.Chunk) { tagged = append(tagged, taggedChunk{operationWrite, c}) })

	sort.SliceStable(tagged, func(i, j int) bool {
		return tagged[i].chunk.AddressFirst() > tagged[j].chunk.AddressFirst()
	})

	accessToChunkID := make(map[*chunk.Access]int64)
	stmt := tx.Stmt(s.insertChunk)
	for _, t := range tagged {
		res, err := stmt.Exec(sliceID, int64(t.chunk.AddressFirst()), int64(t.chunk.AddressLast()), int(t.operation))
		if err != nil {
			return nil, &Error{Context: "insert chunk row", Err: err}
		}
		chunkID, err := res.LastInsertId()
		if err != nil {
			return nil, &Error{Context: "read chunk row id", Err: err}
		}
		for a := t.chunk.Accesses(); a != nil; a = a.Next() {
			accessToChunkID[a] = chunkID
		}
	}
	return accessToChunkID, nil
}

// insertAccessRows inserts one access row per logged entry, in the
// original push order, using the access->chunk-id mapping built by
// insertChunkRows.
func (s *Store) insertAccessRows(tx *sql.Tx, log []AccessLogEntry, accessToChunkID map[*chunk.Access]int64) error {
	stmt := tx.Stmt(s.insertAccess)
	for _, entry := range log {
		chunkID, ok := accessToChunkID[entry.Access]
		if !ok {
			return &LogicError{Code: ErrCodeIncompleteMapping, Message: "logged access has no corresponding chunk row"}
		}

		var linear any
		if entry.HasVirtualAddress {
			linear = int64(entry.VirtualAddress)
		}

		_, err := stmt.Exec(
			chunkID,
			int64(entry.Access.Transition),
			linear,
			int64(entry.Access.Address),
			int(entry.Access.Size),
			int(entry.Operation),
		)
		if err != nil {
			return &Error{Context: fmt.Sprintf("insert access row at transition %d", entry.Access.Transition), Err: err}
		}
	}
	return nil
}

// operationRead and operationWrite mirror the Read/Write operation byte
// encoding; Execute never reaches the store because Writer.Push rejects
// it before routing to a builder.
const (
	operationWrite uint8 = 0b010
	operationRead  uint8 = 0b100
)
