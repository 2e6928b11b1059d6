package memhist

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/brinedb/memhist/internal/config"
	"github.com/brinedb/memhist/internal/slice"
	"github.com/brinedb/memhist/internal/store"
)

// inMemoryFilename is the sentinel filename that selects a non-persistent
// sqlite store, matching the original's ":memory:" convention.
const inMemoryFilename = ":memory:"

// Writer accepts memory-access events in trace order and persists them
// into a sqlite-backed store. It owns two slice builders (one per
// operation kind), the access-order log that remembers push order across
// both, and the store's database handle and prepared statements.
//
// Writer is not safe for concurrent use: push, discard_after and take are
// specified as a single-threaded, synchronous API. Callers that want to
// parallelize capture must shard across independent Writers and files.
type Writer struct {
	st     *store.Store
	limits config.WriterConfig
	logger *slog.Logger

	readBuilder  *slice.Builder
	writeBuilder *slice.Builder
	accessLog    []store.AccessLogEntry

	sidecarPath string
	sidecar     sidecar

	taken  bool
	closed bool
}

// New opens or creates a sqlite database at filename — the sentinel
// ":memory:" selects a non-persistent store — stamps the metadata
// sidecar, creates the fixed schema, and constructs the initial builder
// pair. tool_name/tool_version/tool_info identify the trace capture tool
// that will be driving Push; they are recorded in the metadata sidecar.
func New(filename, toolName, toolVersion, toolInfo string, opts ...Option) (*Writer, error) {
	options := writerOptions{limits: config.Defaults(), logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}

	st, err := store.Open(filename)
	if err != nil {
		return nil, err
	}

	sc := newSidecar(toolName, toolVersion, toolInfo, time.Now())
	scPath := sidecarPath(filename)
	if err := writeSidecar(scPath, sc); err != nil {
		st.Close()
		return nil, err
	}

	w := &Writer{
		st:          st,
		limits:      options.limits,
		logger:      options.logger.With("session_id", sc.SessionID),
		sidecarPath: scPath,
		sidecar:     sc,
	}
	w.resetBuilders()

	w.logger.Info("memhist writer opened", "filename", filename)
	return w, nil
}

// FromMemory is sugar for New(":memory:", ...).
func FromMemory(toolName, toolVersion, toolInfo string, opts ...Option) (*Writer, error) {
	return New(inMemoryFilename, toolName, toolVersion, toolInfo, opts...)
}

// resetBuilders constructs a fresh builder pair with the Writer's
// configured limits, as required after every flush and at construction.
func (w *Writer) resetBuilders() {
	w.readBuilder = slice.NewBuilder(w.limits.Limits())
	w.writeBuilder = slice.NewBuilder(w.limits.Limits())
	w.readBuilder.SetLogger(w.logger)
	w.writeBuilder.SetLogger(w.logger)
}

// Push admits one access. Execute is rejected with
// *UnsupportedOperationError. A refusal from the kind-matching builder
// triggers a flush of both builders as one slice, a fresh builder pair,
// and a retry — which must succeed on the now-empty builder or the Writer
// raises a *LogicError, since retry-on-empty is an unconditional
// invariant of the specification.
func (w *Writer) Push(access Access) error {
	builder, err := w.builderFor(access.Operation)
	if err != nil {
		return err
	}

	chunkAccess, ok, err := builder.Insert(access.Transition, access.PhysicalAddress, access.Size)
	if err != nil {
		return fmt.Errorf("memhist: push: %w", err)
	}
	if !ok {
		w.logger.Debug("builder refused access, flushing", "operation", access.Operation.String(), "transition", access.Transition)
		if err := w.flush(); err != nil {
			return err
		}
		builder, err = w.builderFor(access.Operation)
		if err != nil {
			return err
		}
		chunkAccess, ok, err = builder.Insert(access.Transition, access.PhysicalAddress, access.Size)
		if err != nil {
			return fmt.Errorf("memhist: push after flush: %w", err)
		}
		if !ok {
			return &LogicError{Code: ErrCodeRetryFailed, Message: "insertion must be possible on empty slices"}
		}
	}

	w.accessLog = append(w.accessLog, store.AccessLogEntry{
		Access:            chunkAccess,
		HasVirtualAddress: access.HasVirtualAddress,
		VirtualAddress:    access.VirtualAddress,
		Operation:         uint8(access.Operation),
	})
	w.logger.Debug("access accepted", "operation", access.Operation.String(), "transition", access.Transition, "address", access.PhysicalAddress, "size", access.Size)
	return nil
}

// builderFor routes to the kind-matching builder, rejecting Execute and
// raising a *LogicError on any other unknown operation byte.
func (w *Writer) builderFor(op Operation) (*slice.Builder, error) {
	switch op {
	case OperationRead:
		return w.readBuilder, nil
	case OperationWrite:
		return w.writeBuilder, nil
	case OperationExecute:
		return nil, &UnsupportedOperationError{Operation: op}
	default:
		return nil, &LogicError{Code: ErrCodeUnknownOperation, Message: fmt.Sprintf("unknown operation byte %d", op)}
	}
}

// flush builds both slices, persists them with the current access log in
// one atomic batch, and resets the builder pair and log for the next
// round. It is a no-op when nothing has been logged since the last flush,
// matching the specification's idempotence-on-empty-state property.
func (w *Writer) flush() error {
	if len(w.accessLog) == 0 {
		return nil
	}

	start := time.Now()
	readSlice := w.readBuilder.Build()
	writeSlice := w.writeBuilder.Build()

	if err := w.st.Flush(readSlice, writeSlice, w.accessLog); err != nil {
		w.logger.Error("flush failed", "error", err)
		return err
	}

	w.logger.Info("flush complete",
		"chunks", readSlice.ChunkCount()+writeSlice.ChunkCount(),
		"accesses", len(w.accessLog),
		"elapsed", time.Since(start))

	w.accessLog = nil
	w.resetBuilders()
	return nil
}

// DiscardAfter forces a flush (even of partially filled builders) and
// deletes every persisted accesses row whose transition is >=
// transitionCount, using the exact statement shape of the specification's
// external interface. Pushing after DiscardAfter is undefined behavior,
// per the caller contract.
func (w *Writer) DiscardAfter(transitionCount uint64) error {
	if err := w.flush(); err != nil {
		return err
	}
	w.logger.Info("discarding accesses", "transition", transitionCount)
	return w.st.DiscardAfter(transitionCount)
}

// Take flushes any pending accesses and returns the underlying
// *sql.DB-backed store, transferring ownership to the caller. Calling any
// other Writer method afterward is undefined behavior. A subsequent Close
// is a documented no-op.
func (w *Writer) Take() (*store.Store, error) {
	if err := w.flush(); err != nil {
		return nil, err
	}
	w.taken = true
	return w.st, nil
}

// Close flushes any pending accesses and closes the underlying store, the
// idiomatic Go equivalent of the original's destructor-triggered final
// flush. A no-op if Take has already transferred ownership of the store,
// or if Close has already run.
func (w *Writer) Close() error {
	if w.taken || w.closed {
		return nil
	}
	w.closed = true
	if err := w.flush(); err != nil {
		return err
	}
	return w.st.Close()
}
