// Package perfring bridges the kernel-mmapped perf DATA and AUX ring
// buffers into the APC outbound buffer (spec.md §4.4). The ring-reading
// logic is grounded on the joeycold-ebpf forward-reader pattern (a
// head/tail/mask walk over a []byte with atomic acquire/release on the
// control page) and on the cilium/ebpf reader's treatment of records that
// wrap the ring. The package itself never opens a perf_event_open file
// descriptor; Map takes one that is already open. In this build the
// agent process opens the fd and maps it here, and only the drained APC
// frames cross the IPC pipe back to the core.
package perfring

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const perfEventHeaderSize = 8 // struct perf_event_header: u32 type, u16 misc, u16 size

// dataRing wraps the kernel-published data region of one CPU's perf ring,
// addressed with monotonic head/tail cursors (the ring's backing []byte
// length is always a power of two, per the perf_event_open contract).
type dataRing struct {
	meta *unix.PerfEventMmapPage
	ring []byte
	mask uint64
}

func newDataRing(meta *unix.PerfEventMmapPage, ring []byte) *dataRing {
	return &dataRing{meta: meta, ring: ring, mask: uint64(len(ring) - 1)}
}

func (d *dataRing) Head() uint64        { return atomic.LoadUint64(&d.meta.Data_head) }
func (d *dataRing) Tail() uint64        { return atomic.LoadUint64(&d.meta.Data_tail) }
func (d *dataRing) CommitTail(t uint64) { atomic.StoreUint64(&d.meta.Data_tail, t) }

// Chunk returns up to n bytes starting at ring-relative offset start, as
// (primary, secondary): secondary is non-empty only when the read wraps
// past the end of the ring's backing array.
func (d *dataRing) Chunk(start uint64, n int) (primary, secondary []byte) {
	return chunk(d.ring, d.mask, start, n)
}

// auxRing is the AUX-region counterpart of dataRing.
type auxRing struct {
	meta *unix.PerfEventMmapPage
	ring []byte
	mask uint64
}

func newAuxRing(meta *unix.PerfEventMmapPage, ring []byte) *auxRing {
	return &auxRing{meta: meta, ring: ring, mask: uint64(len(ring) - 1)}
}

func (a *auxRing) Head() uint64        { return atomic.LoadUint64(&a.meta.Aux_head) }
func (a *auxRing) Tail() uint64        { return atomic.LoadUint64(&a.meta.Aux_tail) }
func (a *auxRing) CommitTail(t uint64) { atomic.StoreUint64(&a.meta.Aux_tail, t) }

func (a *auxRing) Chunk(start uint64, n int) (primary, secondary []byte) {
	return chunk(a.ring, a.mask, start, n)
}

func chunk(ring []byte, mask uint64, start uint64, n int) (primary, secondary []byte) {
	if n <= 0 {
		return nil, nil
	}
	s := int(start & mask)
	if s+n <= len(ring) {
		return ring[s : s+n], nil
	}
	first := len(ring) - s
	return ring[s:], ring[:n-first]
}

// mapping owns the raw mmap'd memory backing a dataRing/auxRing pair, and
// unmaps it on Close (spec.md §3.1 "Both are unmapped on drop").
type mapping struct {
	data []byte
	aux  []byte
}

// Map mmaps a perf ring given an already-open perf_event file descriptor
// (opened by the caller in the agent process). dataPages and auxPages are given in
// units of the OS page size: dataPages is 1+2^n (the +1 for the leading
// control page), auxPages is 2^m or 0 to disable AUX.
func Map(cpu int, fd int, dataPages int, auxPages int) (*Consumer, func() error, error) {
	pageSize := os.Getpagesize()

	dataLen := dataPages * pageSize
	data, err := unix.Mmap(fd, 0, dataLen, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, fmt.Errorf("perfring: mmap data region for cpu %d: %w", cpu, err)
	}

	meta := (*unix.PerfEventMmapPage)(unsafe.Pointer(&data[0]))
	m := &mapping{data: data}

	var aux *auxRing
	if auxPages > 0 {
		auxLen := auxPages * pageSize
		auxMem, err := unix.Mmap(fd, int64(meta.Aux_offset), auxLen, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			_ = unix.Munmap(data)
			return nil, nil, fmt.Errorf("perfring: mmap aux region for cpu %d: %w", cpu, err)
		}
		m.aux = auxMem
		aux = newAuxRing(meta, auxMem)
	}

	dataBody := data[meta.Data_offset : meta.Data_offset+meta.Data_size]
	consumer := NewConsumer(cpu, newDataRing(meta, dataBody), aux)

	closer := func() error {
		var firstErr error
		if m.aux != nil {
			if err := unix.Munmap(m.aux); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := unix.Munmap(m.data); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	}

	return consumer, closer, nil
}
