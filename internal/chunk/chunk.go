// Package chunk implements the contiguous-address-range aggregation unit
// that a slice builder assembles memory accesses into.
package chunk

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is returned when a caller-supplied access is malformed:
// zero size, or an address range that wraps past the top of the address
// space.
var ErrInvalidArgument = errors.New("chunk: invalid argument")

// Access is one intrusively-linked memory access inside a Chunk.
//
// Accesses within a chunk form a singly-linked list in insertion order;
// the link is owned by the chunk so that merging two chunks is an O(1)
// pointer swap rather than a copy of every node.
type Access struct {
	Transition uint64
	Address    uint64
	Size       uint32

	next *Access
}

// Next returns the next access in insertion order, or nil if a is the
// last access in its chunk.
func (a *Access) Next() *Access {
	if a == nil {
		return nil
	}
	return a.next
}

// Chunk is a contiguous address range [AddressFirst, AddressLast] holding
// every access of one operation kind that falls inside that range. The
// operation kind itself is not stored on the chunk: it is tracked by
// whichever SliceBuilder owns the chunk.
type Chunk struct {
	addressFirst uint64
	addressLast  uint64
	head         *Access
	tail         *Access
	count        uint64
}

// New builds a chunk containing a single access. It fails with
// ErrInvalidArgument if size is zero or if address+size-1 would wrap
// past math.MaxUint64.
func New(transition, address uint64, size uint32) (*Chunk, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: access size must be > 0", ErrInvalidArgument)
	}
	last, err := addressLast(address, size)
	if err != nil {
		return nil, err
	}
	access := &Access{Transition: transition, Address: address, Size: size}
	return &Chunk{
		addressFirst: address,
		addressLast:  last,
		head:         access,
		tail:         access,
		count:        1,
	}, nil
}

// addressLast computes address+size-1, failing with ErrInvalidArgument on
// overflow. size=0 is rejected by callers before this is reached; the
// one legal way to touch math.MaxUint64 is address+size-1 == MaxUint64
// exactly.
func addressLast(address uint64, size uint32) (uint64, error) {
	span := uint64(size) - 1
	last := address + span
	if last < address {
		return 0, fmt.Errorf("%w: address %d + size %d overflows u64", ErrInvalidArgument, address, size)
	}
	return last, nil
}

// AddressFirst returns the inclusive lower bound of the chunk's range.
func (c *Chunk) AddressFirst() uint64 { return c.addressFirst }

// AddressLast returns the inclusive upper bound of the chunk's range.
func (c *Chunk) AddressLast() uint64 { return c.addressLast }

// AddressSize returns the number of addressable bytes covered by the
// chunk's range.
func (c *Chunk) AddressSize() uint64 { return c.addressLast - c.addressFirst + 1 }

// Count returns the number of accesses currently held by the chunk.
func (c *Chunk) Count() uint64 { return c.count }

// Accesses returns the head of the chunk's intrusive access list, in
// insertion order. Call Access.Next repeatedly until it returns nil. The
// returned pointer and its siblings are valid for as long as the chunk
// they belong to is reachable; a fresh traversal from Accesses always
// reproduces the same sequence.
func (c *Chunk) Accesses() *Access { return c.head }

// Overlaps reports whether c and other share at least one byte of
// address range.
func (c *Chunk) Overlaps(other *Chunk) bool {
	if c.addressLast < other.addressFirst {
		return false
	}
	if other.addressLast < c.addressFirst {
		return false
	}
	return true
}

// IsContiguous reports whether c and other touch: one's range ends
// exactly where the other's begins. Contiguous chunks never overlap.
func (c *Chunk) IsContiguous(other *Chunk) bool {
	const maxAddress = ^uint64(0)
	return (c.addressLast != maxAddress && c.addressLast+1 == other.addressFirst) ||
		(other.addressLast != maxAddress && other.addressLast+1 == c.addressFirst)
}

// MergeIn concatenates other's access list after c's tail in O(1) and
// widens c's range to the union of both. other is left empty and must not
// be used afterward; every Access pointer handed out by either chunk
// remains valid.
func (c *Chunk) MergeIn(other *Chunk) {
	if other.addressFirst < c.addressFirst {
		c.addressFirst = other.addressFirst
	}
	if other.addressLast > c.addressLast {
		c.addressLast = other.addressLast
	}
	if other.head != nil {
		c.tail.next = other.head
		c.tail = other.tail
	}
	c.count += other.count

	other.head = nil
	other.tail = nil
	other.count = 0
}

// Release unlinks the chunk's access list iteratively so that dropping a
// chunk with millions of accesses never recurses through the list, which
// would risk a stack overflow on a naive recursive teardown.
func (c *Chunk) Release() {
	for node := c.head; node != nil; {
		next := node.next
		node.next = nil
		node = next
	}
	c.head = nil
	c.tail = nil
	c.count = 0
}
