package perfring

import "encoding/binary"

// Record is one raw perf_event_header-prefixed record read from a data
// ring, possibly split across the ring's wraparound point.
type Record struct {
	CPU       int
	Primary   []byte
	Secondary []byte
}

// Len returns the record's total length across both chunks.
func (r Record) Len() int { return len(r.Primary) + len(r.Secondary) }

// Consumer walks one CPU's data and (optional) AUX rings with monotonic
// tail cursors, exposing record/chunk-level reads that never touch a
// syscall — the mmap'd backing arrays are handed to it by Map, or by a
// test constructing dataRing/auxRing directly over synthetic buffers.
type Consumer struct {
	cpu  int
	data *dataRing
	aux  *auxRing

	dataTail uint64
	auxTail  uint64
}

// NewConsumer builds a Consumer seeded from the rings' current tail
// cursors (spec.md §4.4: a freshly attached consumer starts from
// whatever the kernel already reports as consumed, not from zero).
func NewConsumer(cpu int, data *dataRing, aux *auxRing) *Consumer {
	c := &Consumer{cpu: cpu, data: data, dataTail: data.Tail()}
	if aux != nil {
		c.aux = aux
		c.auxTail = aux.Tail()
	}
	return c
}

// CPU returns the CPU this consumer's rings belong to.
func (c *Consumer) CPU() int { return c.cpu }

// HasAux reports whether this consumer has an AUX ring mapped.
func (c *Consumer) HasAux() bool { return c.aux != nil }

// PeekDataRecord returns the next unconsumed data record, if any, without
// advancing the tail cursor. The record's perf_event_header.size field
// (the final two little-endian bytes of the 8-byte header) gives its
// total length including the header itself.
func (c *Consumer) PeekDataRecord() (Record, bool) {
	head := c.data.Head()
	if c.dataTail == head {
		return Record{}, false
	}

	hdrPrimary, hdrSecondary := c.data.Chunk(c.dataTail, perfEventHeaderSize)
	hdr := reassemble(hdrPrimary, hdrSecondary, perfEventHeaderSize)
	size := binary.LittleEndian.Uint16(hdr[6:8])
	if size == 0 {
		// defensive: a well-formed ring never emits a zero-size record,
		// but refuse to spin forever on corrupt state.
		size = uint16(head - c.dataTail)
	}

	primary, secondary := c.data.Chunk(c.dataTail, int(size))
	return Record{CPU: c.cpu, Primary: primary, Secondary: secondary}, true
}

// AdvanceDataRecord commits totalLen bytes of the data ring as consumed,
// publishing the new tail to the kernel.
func (c *Consumer) AdvanceDataRecord(totalLen int) {
	c.dataTail += uint64(totalLen)
	c.data.CommitTail(c.dataTail)
}

// AuxAvailable returns the number of unconsumed AUX bytes, or 0 if this
// consumer has no AUX ring.
func (c *Consumer) AuxAvailable() int {
	if c.aux == nil {
		return 0
	}
	return int(c.aux.Head() - c.auxTail)
}

// AuxChunk returns up to max unconsumed AUX bytes starting at the current
// tail, without advancing it.
func (c *Consumer) AuxChunk(max int) (primary, secondary []byte, tail uint64) {
	avail := c.AuxAvailable()
	if avail > max {
		avail = max
	}
	primary, secondary = c.aux.Chunk(c.auxTail, avail)
	return primary, secondary, c.auxTail
}

// AdvanceAux commits n AUX bytes as consumed, publishing the new tail.
func (c *Consumer) AdvanceAux(n int) {
	c.auxTail += uint64(n)
	c.aux.CommitTail(c.auxTail)
}

// reassemble copies a (primary, secondary) chunk pair into a single
// contiguous buffer of the given total length.
func reassemble(primary, secondary []byte, total int) []byte {
	if len(secondary) == 0 {
		return primary
	}
	out := make([]byte, total)
	n := copy(out, primary)
	copy(out[n:], secondary)
	return out
}
