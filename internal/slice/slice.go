// Package slice implements the transition-bounded, address-ordered
// aggregation of chunks that a SliceBuilder assembles and a Writer
// flushes as one atomic unit.
package slice

import (
	"errors"

	"github.com/brinedb/memhist/internal/chunk"
)

// ErrInvalidArgument is returned by Insert for malformed or
// out-of-trace-order accesses: zero size, an address range that wraps,
// or a transition smaller than the last one accepted.
var ErrInvalidArgument = errors.New("slice: invalid argument")

// node is a (address_first -> *chunk.Chunk) entry kept in ascending
// address order. A plain sorted slice is used instead of a balanced tree:
// insertion locates its position with a binary search and the slice of
// chunks per Slice is bounded by the caller's capacity limits, so the
// O(n) splice on insert/remove is cheap in practice and keeps the code a
// straight translation of the original's ordered map.
type node struct {
	addressFirst uint64
	chunk        *chunk.Chunk
}

// Slice is the frozen, address-ordered collection of non-overlapping
// chunks (of one operation kind) produced by a SliceBuilder's Build.
// It carries the transition range bounding every access it holds.
type Slice struct {
	nodes           []node
	transitionFirst uint64
	transitionLast  uint64
}

// TransitionFirst returns the smallest transition among the slice's accesses.
func (s *Slice) TransitionFirst() uint64 { return s.transitionFirst }

// TransitionLast returns the largest transition among the slice's accesses.
func (s *Slice) TransitionLast() uint64 { return s.transitionLast }

// Empty reports whether the slice holds no chunks.
func (s *Slice) Empty() bool { return len(s.nodes) == 0 }

// ChunkCount returns the number of chunks in the slice.
func (s *Slice) ChunkCount() int { return len(s.nodes) }

// AccessCount counts every access across every chunk. This walks every
// chunk's list and is not cheap; callers on a hot path should track
// counts themselves (as SliceBuilder does).
func (s *Slice) AccessCount() uint64 {
	var count uint64
	for _, n := range s.nodes {
		count += n.chunk.Count()
	}
	return count
}

// Chunks calls fn for each chunk in ascending address_first order.
// Stopping early is not supported; the slice is small enough in practice
// (bounded by the overlap/access-count limits) that a full callback walk
// is simpler than exposing an iterator type.
func (s *Slice) Chunks(fn func(c *chunk.Chunk)) {
	for _, n := range s.nodes {
		fn(n.chunk)
	}
}

// lowerBound returns the index of the first node whose addressFirst is >=
// addr (the equivalent of std::map::lower_bound).
func (s *Slice) lowerBound(addr uint64) int {
	lo, hi := 0, len(s.nodes)
	for lo < hi {
		mid := (lo + hi) / 2
		if s.nodes[mid].addressFirst < addr {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// upperBound returns the index of the first node whose addressFirst is
// strictly greater than addr (the equivalent of std::map::upper_bound).
func (s *Slice) upperBound(addr uint64) int {
	lo, hi := 0, len(s.nodes)
	for lo < hi {
		mid := (lo + hi) / 2
		if s.nodes[mid].addressFirst <= addr {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func (s *Slice) insertNode(c *chunk.Chunk) {
	idx := s.lowerBound(c.AddressFirst())
	s.nodes = append(s.nodes, node{})
	copy(s.nodes[idx+1:], s.nodes[idx:])
	s.nodes[idx] = node{addressFirst: c.AddressFirst(), chunk: c}
}

func (s *Slice) removeAt(idx int) {
	s.nodes = append(s.nodes[:idx], s.nodes[idx+1:]...)
}
