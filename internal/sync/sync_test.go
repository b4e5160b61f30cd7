package sync

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ARM-software/gator-sub005/internal/apc"
	"github.com/ARM-software/gator-sub005/internal/buffer"
	"github.com/ARM-software/gator-sub005/internal/codec"
)

func TestThreadCountSPEOnePerCPU(t *testing.T) {
	cpus := ThreadCount(true, true, 4)
	assert.Equal(t, []int{0, 1, 2, 3}, cpus)
}

func TestThreadCountNoSPENoClockIDOneOnCPU0(t *testing.T) {
	cpus := ThreadCount(false, false, 4)
	assert.Equal(t, []int{0}, cpus)
}

func TestThreadCountNoSPEHasClockIDZero(t *testing.T) {
	cpus := ThreadCount(false, true, 4)
	assert.Empty(t, cpus)
}

func TestEmitFrameMatchesE4(t *testing.T) {
	b := buffer.New(4096, false)
	raw := buffer.NewRawFrameBuilder(b)

	rec := Record{PID: 100, TID: 101, CNTFRQ: 100_000_000, MonotonicRaw: 2_000_000_000, CNTVCT: 12345}
	require.NoError(t, EmitFrame(raw, rec))

	var out bytes.Buffer
	_, err := b.Write(&out)
	require.NoError(t, err)

	all := out.Bytes()
	length := int(all[1]) | int(all[2])<<8 | int(all[3])<<16 | int(all[4])<<24
	payload := all[apc.ResponseHeaderSize : apc.ResponseHeaderSize+length]

	readPos := 0
	frameType := codec.UnpackInt32(payload, &readPos)
	require.EqualValues(t, apc.FramePerfSync, frameType)

	var want []byte
	appendInt := func(x int32) {
		var tmp [codec.MaxPack32]byte
		pos := 0
		n := codec.PackInt32(tmp[:], &pos, x, codec.NoWrap)
		want = append(want, tmp[:n]...)
	}
	appendInt64 := func(x int64) {
		var tmp [codec.MaxPack64]byte
		pos := 0
		n := codec.PackInt64(tmp[:], &pos, x, codec.NoWrap)
		want = append(want, tmp[:n]...)
	}
	appendInt(100)
	appendInt(101)
	appendInt64(100_000_000)
	appendInt64(2_000_000_000)
	appendInt64(12345)

	assert.Equal(t, want, payload[readPos:])
}
