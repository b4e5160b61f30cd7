package perfring

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ARM-software/gator-sub005/internal/apc"
	"github.com/ARM-software/gator-sub005/internal/buffer"
	"github.com/ARM-software/gator-sub005/internal/codec"
)

// newSyntheticConsumer builds a Consumer over in-memory rings backed by a
// plain (non-mmap'd) unix.PerfEventMmapPage, so the chunking and
// fragmentation logic can be exercised without a real perf_event fd.
func newSyntheticConsumer(cpu int, dataSize, auxSize int) (*Consumer, *unix.PerfEventMmapPage) {
	meta := &unix.PerfEventMmapPage{}
	data := newDataRing(meta, make([]byte, dataSize))
	var aux *auxRing
	if auxSize > 0 {
		aux = newAuxRing(meta, make([]byte, auxSize))
	}
	return NewConsumer(cpu, data, aux), meta
}

func putPerfHeader(ring []byte, offset uint64, recType uint32, size uint16) {
	mask := uint64(len(ring) - 1)
	var hdr [8]byte
	hdr[0] = byte(recType)
	hdr[1] = byte(recType >> 8)
	hdr[2] = byte(recType >> 16)
	hdr[3] = byte(recType >> 24)
	hdr[6] = byte(size)
	hdr[7] = byte(size >> 8)
	idx := offset & mask
	n := copy(ring[idx:], hdr[:])
	if n < len(hdr) {
		copy(ring, hdr[n:])
	}
}

func TestConsumerPeekDataRecordWholeRing(t *testing.T) {
	c, meta := newSyntheticConsumer(0, 64, 0)

	putPerfHeader(c.data.ring, 0, 9, 16)
	meta.Data_head = 16

	rec, ok := c.PeekDataRecord()
	require.True(t, ok)
	assert.Equal(t, 16, rec.Len())
	assert.Empty(t, rec.Secondary)

	c.AdvanceDataRecord(rec.Len())
	assert.EqualValues(t, 16, meta.Data_tail)

	_, ok = c.PeekDataRecord()
	assert.False(t, ok)
}

func TestConsumerPeekDataRecordWraps(t *testing.T) {
	c, meta := newSyntheticConsumer(0, 32, 0)

	// Place a 16-byte record starting 8 bytes before the ring end, so it
	// wraps 8 bytes into the front of the ring.
	start := uint64(24)
	putPerfHeader(c.data.ring, start, 9, 16)
	meta.Data_head = start + 16

	c.dataTail = start
	rec, ok := c.PeekDataRecord()
	require.True(t, ok)
	assert.Equal(t, 8, len(rec.Primary))
	assert.Equal(t, 8, len(rec.Secondary))
	assert.Equal(t, 16, rec.Len())
}

func TestAuxFragmentationSumsToExactlyNBytes(t *testing.T) {
	// Mirrors the scenario: MAX_RESPONSE_LENGTH = 1024, a 3000-byte AUX
	// record starting at tail 0 on CPU 2.
	const auxRecordLen = 3000
	const maxResponseLength = 1024

	c, meta := newSyntheticConsumer(2, 16, 8192)
	pattern := make([]byte, auxRecordLen)
	for i := range pattern {
		pattern[i] = byte(i)
	}
	copy(c.aux.ring, pattern)
	meta.Aux_head = auxRecordLen

	b := buffer.New(1<<20, false)
	raw := buffer.NewRawFrameBuilder(b)
	adapter := NewAdapterWithMaxBody(raw, maxResponseLength)

	require.NoError(t, adapter.DrainAux(c))
	assert.EqualValues(t, auxRecordLen, meta.Aux_tail)

	var out bytes.Buffer
	_, err := b.Write(&out)
	require.NoError(t, err)

	var reassembled []byte
	var tails []int64
	pos := 0
	all := out.Bytes()
	for pos < len(all) {
		length := int(all[pos+1]) | int(all[pos+2])<<8 | int(all[pos+3])<<16 | int(all[pos+4])<<24
		pos += apc.ResponseHeaderSize
		payload := all[pos : pos+length]
		pos += length

		readPos := 0
		frameType := codec.UnpackInt32(payload, &readPos)
		require.EqualValues(t, apc.FramePerfAux, frameType)

		cpu := codec.UnpackInt32(payload, &readPos)
		assert.EqualValues(t, 2, cpu)
		tail := codec.UnpackInt64(payload, &readPos)
		tails = append(tails, tail)
		bodyLen := codec.UnpackInt32(payload, &readPos)
		assert.LessOrEqual(t, int(bodyLen), maxResponseLength-auxFrameHeaderReserve)

		reassembled = append(reassembled, payload[readPos:readPos+int(bodyLen)]...)
	}

	assert.Equal(t, pattern, reassembled)

	require.NotEmpty(t, tails)
	assert.EqualValues(t, 0, tails[0])
	for i := 1; i < len(tails); i++ {
		assert.Greater(t, tails[i], tails[i-1])
	}
}

func TestOnAuxFrameFiresOncePerCommittedFrame(t *testing.T) {
	const auxRecordLen = 3000
	const maxResponseLength = 1024

	c, meta := newSyntheticConsumer(2, 16, 8192)
	meta.Aux_head = auxRecordLen

	b := buffer.New(1<<20, false)
	raw := buffer.NewRawFrameBuilder(b)
	adapter := NewAdapterWithMaxBody(raw, maxResponseLength)

	var frameCount int
	adapter.OnAuxFrame(func() { frameCount++ })

	require.NoError(t, adapter.DrainAux(c))
	assert.Greater(t, frameCount, 1)
}

func TestDrainDataPacksRecordsAsU64Words(t *testing.T) {
	c, meta := newSyntheticConsumer(1, 64, 0)

	putPerfHeader(c.data.ring, 0, 9, 16)
	// body (8 bytes following the 8-byte header) is arbitrary payload.
	copy(c.data.ring[8:16], []byte{1, 2, 3, 4, 5, 6, 7, 8})
	meta.Data_head = 16

	b := buffer.New(4096, false)
	raw := buffer.NewRawFrameBuilder(b)
	adapter := NewAdapter(raw)

	require.NoError(t, adapter.DrainData(c))
	assert.EqualValues(t, 16, meta.Data_tail)

	var out bytes.Buffer
	_, err := b.Write(&out)
	require.NoError(t, err)

	all := out.Bytes()
	length := int(all[1]) | int(all[2])<<8 | int(all[3])<<16 | int(all[4])<<24
	payload := all[apc.ResponseHeaderSize : apc.ResponseHeaderSize+length]

	readPos := 0
	frameType := codec.UnpackInt32(payload, &readPos)
	require.EqualValues(t, apc.FramePerfData, frameType)
	cpu := codec.UnpackInt32(payload, &readPos)
	assert.EqualValues(t, 1, cpu)

	blobLen := int(payload[readPos]) | int(payload[readPos+1])<<8 | int(payload[readPos+2])<<16 | int(payload[readPos+3])<<24
	readPos += 4

	blob := payload[readPos : readPos+blobLen]
	var words []int64
	wp := 0
	for wp < len(blob) {
		words = append(words, codec.UnpackInt64(blob, &wp))
	}
	require.Len(t, words, 2)
}

func TestDrainDataClosesFrameWhenRecordDoesNotFit(t *testing.T) {
	c, meta := newSyntheticConsumer(3, 4096, 0)

	// Two records of 16 bytes each, back to back.
	putPerfHeader(c.data.ring, 0, 9, 16)
	putPerfHeader(c.data.ring, 16, 9, 16)
	meta.Data_head = 32

	// 32 bytes hold the first record's 20-byte frame but leave less than
	// the second record's worst-case size, so the first frame is closed
	// and the adapter waits for a drain before opening the second.
	b := buffer.New(32, false)
	raw := buffer.NewRawFrameBuilder(b)
	adapter := NewAdapter(raw)

	drained := make(chan error, 1)
	go func() { drained <- adapter.DrainData(c) }()

	var out bytes.Buffer
	for finished := false; !finished; {
		select {
		case err := <-drained:
			require.NoError(t, err)
			finished = true
		default:
		}
		_, err := b.Write(&out)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 32, meta.Data_tail)

	frames := 0
	all := out.Bytes()
	for pos := 0; pos < len(all); {
		length := int(all[pos+1]) | int(all[pos+2])<<8 | int(all[pos+3])<<16 | int(all[pos+4])<<24
		payload := all[pos+apc.ResponseHeaderSize : pos+apc.ResponseHeaderSize+length]
		pos += apc.ResponseHeaderSize + length

		readPos := 0
		require.EqualValues(t, apc.FramePerfData, codec.UnpackInt32(payload, &readPos))
		frames++
	}
	assert.Equal(t, 2, frames)
}
