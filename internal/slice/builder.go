package slice

import (
	"fmt"
	"log/slog"

	"github.com/brinedb/memhist/internal/chunk"
)

// Limits configures the soft and hard capacity caps a Builder enforces.
// A zero value for any field means "unset", matching the original's
// std::optional<std::size_t> fields.
type Limits struct {
	// ChunkSizeOverlapLimit is a soft cap on the total access count
	// involved in an overlap-merge. Exceeding it on a new transition
	// refuses the insert; exceeding it on the slice's current
	// transition latches the sticky stop-at-next-transition flag
	// instead.
	ChunkSizeOverlapLimit uint64
	// ChunkSizeTouchLimit caps the combined access count of two
	// adjacent chunks fused during the post-build contiguous-merge pass.
	// It has no effect on Insert.
	ChunkSizeTouchLimit uint64
	// TransitionLimit is a hard cap on (transition - transitionFirst + 1).
	TransitionLimit uint64
	// AccessCountLimit is a soft cap on the accumulated access count,
	// with the same sticky-flag behavior as ChunkSizeOverlapLimit.
	AccessCountLimit uint64
}

// Builder incrementally assembles a Slice from accesses of one operation
// kind, merging overlapping chunks as they arrive and enforcing the
// configured Limits. See Insert for the full admission algorithm.
type Builder struct {
	limits Limits
	logger *slog.Logger

	slice                Slice
	accessCount          uint64
	stopAtNextTransition bool
	built                bool
}

// NewBuilder returns an empty Builder configured with limits. Warn-level
// logging of sticky-saturation latches is a no-op until SetLogger is
// called.
func NewBuilder(limits Limits) *Builder {
	return &Builder{limits: limits}
}

// SetLogger attaches the logger used to report the sticky
// stop-at-next-transition latch. Passing nil silences it again.
func (b *Builder) SetLogger(logger *slog.Logger) {
	b.logger = logger
}

// latch sets the sticky stop-at-next-transition flag and, the first time
// it fires, warns with the condition that triggered it.
func (b *Builder) latch(reason string, transition uint64) {
	if !b.stopAtNextTransition && b.logger != nil {
		b.logger.Warn("builder latched stop-at-next-transition",
			"reason", reason,
			"transition", transition,
			"access_count", b.accessCount)
	}
	b.stopAtNextTransition = true
}

// AccessCount returns the number of accesses inserted so far.
func (b *Builder) AccessCount() uint64 { return b.accessCount }

// ChunkCount returns the number of chunks assembled so far.
func (b *Builder) ChunkCount() int { return b.slice.ChunkCount() }

// Insert admits one access at (transition, address, size) into the slice
// under construction.
//
// It returns the stable *chunk.Access handle for the inserted access on
// success, or (nil, false) if the insert was refused by a capacity limit
// — a normal control signal, not an error. It returns a non-nil error
// only for a caller contract violation: zero size, an address range that
// wraps past the top of the address space, or a transition smaller than
// the last one already accepted.
func (b *Builder) Insert(transition, address uint64, size uint32) (*chunk.Access, bool, error) {
	if b.built {
		return nil, false, fmt.Errorf("%w: insert called after build", ErrInvalidArgument)
	}
	if size == 0 {
		return nil, false, fmt.Errorf("%w: access size must be > 0", ErrInvalidArgument)
	}

	// Step 1: sticky saturation refuses any access on a transition past
	// the one that triggered it.
	if b.stopAtNextTransition && transition > b.slice.transitionLast {
		return nil, false, nil
	}

	// Step 2: soft access-count cap.
	if b.limits.AccessCountLimit != 0 && b.accessCount >= b.limits.AccessCountLimit {
		if transition > b.slice.transitionLast {
			return nil, false, nil
		}
		b.latch("access_count_limit", transition)
	}

	_, err := addressLast(address, size)
	if err != nil {
		return nil, false, err
	}

	if len(b.slice.nodes) > 0 && transition < b.slice.transitionLast {
		return nil, false, fmt.Errorf("%w: transition %d goes backward from %d", ErrInvalidArgument, transition, b.slice.transitionLast)
	}

	// Step 3: hard transition-span cap.
	if b.limits.TransitionLimit != 0 && len(b.slice.nodes) > 0 &&
		(transition-b.slice.transitionFirst+1) > b.limits.TransitionLimit {
		return nil, false, nil
	}

	candidate, err := chunk.New(transition, address, size)
	if err != nil {
		return nil, false, err
	}
	access := candidate.Accesses()

	// Step 4: locate overlapping neighbours. upperBound(address) finds
	// the first chunk strictly to the right of the new address; the
	// predecessor is tested for overlap, then successors are walked
	// until the first non-overlap (existing chunks are pairwise
	// non-overlapping, so that is also the last one that can overlap).
	totalCount := candidate.Count()
	var overlapIdx []int
	if len(b.slice.nodes) > 0 {
		next := b.slice.upperBound(address)
		if next > 0 {
			prevIdx := next - 1
			if b.slice.nodes[prevIdx].chunk.Overlaps(candidate) {
				overlapIdx = append(overlapIdx, prevIdx)
				totalCount += b.slice.nodes[prevIdx].chunk.Count()
			}
		}
		for next < len(b.slice.nodes) && b.slice.nodes[next].chunk.Overlaps(candidate) {
			overlapIdx = append(overlapIdx, next)
			totalCount += b.slice.nodes[next].chunk.Count()
			next++
		}
	}

	// Step 5: soft overlap-size cap.
	if b.limits.ChunkSizeOverlapLimit != 0 && totalCount > b.limits.ChunkSizeOverlapLimit {
		if transition > b.slice.transitionLast {
			return nil, false, nil
		}
		b.latch("chunk_size_overlap_limit", transition)
	}

	// Step 6: first access seeds transitionFirst.
	if len(b.slice.nodes) == 0 {
		b.slice.transitionFirst = transition
	}

	// Step 7: merge overlaps into the candidate, removing them from the
	// map. Walk indices high-to-low so earlier removals don't shift the
	// indices still pending.
	for i := len(overlapIdx) - 1; i >= 0; i-- {
		idx := overlapIdx[i]
		candidate.MergeIn(b.slice.nodes[idx].chunk)
		b.slice.removeAt(idx)
	}

	// Step 8: commit.
	b.slice.transitionLast = transition
	b.slice.insertNode(candidate)
	b.accessCount++

	return access, true, nil
}

// Build runs the post-build contiguous-merge pass and returns the frozen
// Slice. The Builder must not be used afterward.
func (b *Builder) Build() *Slice {
	b.mergeContiguous()
	b.built = true
	return &b.slice
}

// mergeContiguous walks the address-ordered chunks pairwise; whenever two
// adjacent chunks touch and their combined access count respects
// ChunkSizeTouchLimit (if set), the right chunk is fused into the left
// and the walk continues from the same position; otherwise it advances.
func (b *Builder) mergeContiguous() {
	if len(b.slice.nodes) == 0 {
		return
	}
	i := 0
	for i+1 < len(b.slice.nodes) {
		cur := b.slice.nodes[i].chunk
		nxt := b.slice.nodes[i+1].chunk
		withinTouchLimit := b.limits.ChunkSizeTouchLimit == 0 || cur.Count()+nxt.Count() <= b.limits.ChunkSizeTouchLimit
		if cur.IsContiguous(nxt) && withinTouchLimit {
			cur.MergeIn(nxt)
			b.slice.removeAt(i + 1)
			continue
		}
		i++
	}
}

// addressLast duplicates chunk's overflow arithmetic so Insert can reject
// a malformed access before constructing a throwaway chunk.
func addressLast(address uint64, size uint32) (uint64, error) {
	span := uint64(size) - 1
	last := address + span
	if last < address {
		return 0, fmt.Errorf("%w: address %d + size %d overflows u64", ErrInvalidArgument, address, size)
	}
	return last, nil
}
