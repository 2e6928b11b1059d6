// Package store owns the sqlite-backed persistence side of memhist: the
// fixed schema and pragmas from the specification's external interface,
// the atomic flush of a built slice pair into the slices/chunks/accesses
// tables, and the discard_after deletion.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// pragmas are the four tuning statements the specification requires.
// They trade durability for the write-once, streaming-ingestion workload
// this store is built for; a reader is never meant to observe a database
// mid-write.
var pragmas = []string{
	"pragma synchronous=off",
	"pragma count_changes=off",
	"pragma journal_mode=memory",
	"pragma temp_store=memory",
}

// Store owns the database handle and the three prepared statements used
// by Flush. It is not safe for concurrent use — memhist.Writer, its only
// caller, is itself single-threaded by contract.
type Store struct {
	db *sql.DB

	insertSlice  *sql.Stmt
	insertChunk  *sql.Stmt
	insertAccess *sql.Stmt
}

// Open creates or opens a sqlite database at filename (":memory:" selects
// a non-persistent store) and applies the fixed pragmas and schema.
// Idempotent — safe to call multiple times against the same file, since
// schema.sql guards every statement with "if not exists".
func Open(filename string) (*Store, error) {
	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, &Error{Context: "open database", Err: err}
	}

	// sqlite only supports one writer, and a ":memory:" database is
	// private to the connection that created it — both reasons to pin
	// the pool to a single connection for this store's lifetime.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &Error{Context: "connect to database", Err: err}
	}

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, &Error{Context: fmt.Sprintf("apply %q", p), Err: err}
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, &Error{Context: "create schema", Err: err}
	}

	insertSlice, err := db.Prepare("insert into slices values (?,?);")
	if err != nil {
		db.Close()
		return nil, &Error{Context: "prepare insert slice statement", Err: err}
	}
	insertChunk, err := db.Prepare("insert into chunks values (?,?,?,?);")
	if err != nil {
		db.Close()
		return nil, &Error{Context: "prepare insert chunk statement", Err: err}
	}
	insertAccess, err := db.Prepare("insert into accesses values (?,?,?,?,?,?);")
	if err != nil {
		db.Close()
		return nil, &Error{Context: "prepare insert access statement", Err: err}
	}

	return &Store{
		db:           db,
		insertSlice:  insertSlice,
		insertChunk:  insertChunk,
		insertAccess: insertAccess,
	}, nil
}

// DB returns the underlying *sql.DB, for callers (such as the ingest
// CLI's inspection path) that need to run ad-hoc queries against the
// finished database. Prefer Store's own methods for anything that must
// preserve the writer's invariants.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the prepared statements and closes the database handle.
func (s *Store) Close() error {
	if s.insertSlice != nil {
		s.insertSlice.Close()
	}
	if s.insertChunk != nil {
		s.insertChunk.Close()
	}
	if s.insertAccess != nil {
		s.insertAccess.Close()
	}
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Error wraps a store-layer failure with a short description of the
// operation that failed, matching the taxonomy's StoreError category.
type Error struct {
	Context string
	Err     error
}

func (e *Error) Error() string { return fmt.Sprintf("store: %s: %v", e.Context, e.Err) }

func (e *Error) Unwrap() error { return e.Err }
