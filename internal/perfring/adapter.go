package perfring

import (
	"encoding/binary"

	"github.com/ARM-software/gator-sub005/internal/apc"
	"github.com/ARM-software/gator-sub005/internal/buffer"
	"github.com/ARM-software/gator-sub005/internal/codec"
)

// auxFrameHeaderReserve bounds the fixed part of a PERF_AUX frame body:
// cpu (varint32) + tail (varint64) + length (varint32), each reserved at
// its worst-case encoded size.
const auxFrameHeaderReserve = codec.MaxPack32*2 + codec.MaxPack64

// dataFrameHeaderReserve bounds the fixed part of a PERF_DATA frame body:
// cpu (varint32) + a 4-byte little-endian blob-length placeholder patched
// via the direct-access API once the frame's record count is known.
const dataFrameHeaderReserve = codec.MaxPack32 + 4

// Adapter drains one CPU's perf rings into APC frames on a raw frame
// builder, applying the outbound buffer's backpressure contract: a
// streaming buffer blocks the drain until space frees, a one-shot buffer
// latches full and the adapter stops producing for the rest of the
// capture (spec.md §4.2, §4.4).
type Adapter struct {
	raw          *buffer.RawFrameBuilder
	maxBodyBytes int
	full         bool

	onAuxFrame func()
}

// OnAuxFrame registers a callback invoked once per PERF_AUX frame
// committed by DrainAux — the hook pkg/metrics uses to count AUX
// fragments without this package depending on a metrics client.
func (a *Adapter) OnAuxFrame(fn func()) { a.onAuxFrame = fn }

// NewAdapter wraps a raw frame builder with perf-ring draining, bounding
// every frame body at apc.MaxResponseLength.
func NewAdapter(raw *buffer.RawFrameBuilder) *Adapter {
	return &Adapter{raw: raw, maxBodyBytes: apc.MaxResponseLength}
}

// NewAdapterWithMaxBody is NewAdapter with an overridden per-frame body
// cap, for exercising the fragmentation logic (spec.md §8 property 4)
// against a small bound without allocating megabyte-sized buffers.
func NewAdapterWithMaxBody(raw *buffer.RawFrameBuilder, maxBodyBytes int) *Adapter {
	return &Adapter{raw: raw, maxBodyBytes: maxBodyBytes}
}

// IsFull reports whether backpressure has latched this adapter off.
func (a *Adapter) IsFull() bool { return a.full }

func (a *Adapter) waitFor(n int) bool {
	if a.full {
		return false
	}
	if !a.raw.WaitForSpace(n) {
		a.full = true
		return false
	}
	return true
}

// DrainAux copies pending AUX bytes from the consumer into one or more
// PERF_AUX frames, each capped at apc.MaxResponseLength, advancing the
// AUX tail monotonically as each frame commits (spec.md §4.4 AUX path,
// §8 property 4).
func (a *Adapter) DrainAux(c *Consumer) error {
	if !c.HasAux() {
		return nil
	}

	for {
		avail := c.AuxAvailable()
		if avail == 0 {
			return nil
		}

		maxBody := a.maxBodyBytes - auxFrameHeaderReserve
		n := avail
		if n > maxBody {
			n = maxBody
		}

		if !a.waitFor(auxFrameHeaderReserve + n) {
			return nil
		}

		primary, secondary, tail := c.AuxChunk(n)
		total := len(primary) + len(secondary)

		if err := a.raw.BeginFrame(apc.FramePerfAux); err != nil {
			return err
		}
		if _, err := a.raw.PackInt(int32(c.CPU())); err != nil {
			return err
		}
		if _, err := a.raw.PackInt64(int64(tail)); err != nil {
			return err
		}
		if _, err := a.raw.PackInt(int32(total)); err != nil {
			return err
		}
		if len(primary) > 0 {
			if err := a.raw.WriteBytes(primary); err != nil {
				return err
			}
		}
		if len(secondary) > 0 {
			if err := a.raw.WriteBytes(secondary); err != nil {
				return err
			}
		}
		if err := a.raw.EndFrame(); err != nil {
			return err
		}
		if a.onAuxFrame != nil {
			a.onAuxFrame()
		}

		c.AdvanceAux(total)
	}
}

// DrainData packs as many whole data records as fit into a PERF_DATA
// frame, closing and reopening a new frame whenever the next record
// would not fit in the remaining space (spec.md §4.4 DATA path). Each
// record is encoded as a sequence of u64 words via PackInt64, regardless
// of the kernel record's own internal layout; the decoder re-parses the
// blob using the same perf_event_header rules.
func (a *Adapter) DrainData(c *Consumer) error {
	frameOpen := false
	var blobLenIdx int
	var blobLen uint32

	closeFrame := func() error {
		if !frameOpen {
			return nil
		}
		var lenBytes [4]byte
		binary.LittleEndian.PutUint32(lenBytes[:], blobLen)
		if err := a.raw.WriteDirect(blobLenIdx, lenBytes[:]); err != nil {
			return err
		}
		if err := a.raw.EndFrame(); err != nil {
			return err
		}
		frameOpen = false
		blobLen = 0
		return nil
	}

	for {
		rec, ok := c.PeekDataRecord()
		if !ok {
			return closeFrame()
		}

		words := packWords(rec)
		recordBytes := len(words) * codec.MaxPack64

		if !frameOpen {
			if !a.waitFor(dataFrameHeaderReserve + recordBytes) {
				return closeFrame()
			}
			if err := a.raw.BeginFrame(apc.FramePerfData); err != nil {
				return err
			}
			if _, err := a.raw.PackInt(int32(c.CPU())); err != nil {
				return err
			}
			blobLenIdx = a.raw.WriteIndex()
			if err := a.raw.AdvanceWrite(4); err != nil {
				return err
			}
			frameOpen = true
		} else if a.raw.BytesAvailable() < int32(recordBytes) {
			if err := closeFrame(); err != nil {
				return err
			}
			continue
		}

		for _, w := range words {
			n, err := a.raw.PackInt64(w)
			if err != nil {
				return err
			}
			blobLen += uint32(n)
		}

		c.AdvanceDataRecord(rec.Len())
	}
}

// packWords splits a record's raw bytes into 8-byte little-endian words,
// zero-padding the final word if the record length is not a multiple of
// 8 (perf records are kernel-padded to u64 alignment, but a synthetic
// test record need not be).
func packWords(rec Record) []int64 {
	total := rec.Len()
	words := make([]int64, (total+7)/8)

	var buf [8]byte
	wi := 0
	bi := 0
	write := func(b byte) {
		buf[bi] = b
		bi++
		if bi == 8 {
			words[wi] = int64(binary.LittleEndian.Uint64(buf[:]))
			wi++
			bi = 0
			buf = [8]byte{}
		}
	}
	for _, b := range rec.Primary {
		write(b)
	}
	for _, b := range rec.Secondary {
		write(b)
	}
	if bi > 0 {
		words[wi] = int64(binary.LittleEndian.Uint64(buf[:]))
	}
	return words
}
