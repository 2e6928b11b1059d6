// Package memhist implements a write-only ingestion library for a stream
// of memory-access events emitted by an execution trace provider. Events
// are accepted strictly in trace order and persisted into a sqlite-backed
// store whose schema is shaped for fast half-axis range queries: "the
// first N accesses starting at transition T, going forward or backward,
// within address range [A,B]".
//
// The exported surface is deliberately small: construct a Writer with New
// or FromMemory, Push accesses one at a time, optionally DiscardAfter to
// truncate a trailing incomplete transition, and either Take the finished
// database handle or Close the writer to flush it.
//
// # Internals
//
// internal/chunk aggregates same-kind accesses into non-overlapping
// address ranges. internal/slice groups chunks into a transition-bounded,
// address-ordered collection under the capacity limits of internal/config.
// internal/store persists a completed (read, write) slice pair as one
// atomic batch and implements the discard_after deletion. Writer in this
// package wires the three together the way the original C++ DbWriter does.
package memhist
