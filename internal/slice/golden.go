package slice

import (
	"bytes"
	"fmt"

	"github.com/brinedb/memhist/internal/chunk"
)

// Layout renders a built Slice's ordered (address_first, address_last,
// access_count) triples, one chunk per line, for use in golden-file
// regression tests of the post-build merge pass.
func Layout(s *Slice) []byte {
	var buf bytes.Buffer
	s.Chunks(func(c *chunk.Chunk) {
		fmt.Fprintf(&buf, "%d-%d:%d\n", c.AddressFirst(), c.AddressLast(), c.Count())
	})
	return buf.Bytes()
}
