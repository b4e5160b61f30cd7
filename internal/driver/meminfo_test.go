package driver

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ARM-software/gator-sub005/internal/apc"
	"github.com/ARM-software/gator-sub005/internal/blockcounter"
	"github.com/ARM-software/gator-sub005/internal/buffer"
	"github.com/ARM-software/gator-sub005/internal/codec"
)

const sampleMemInfo = `MemTotal:        1000000 kB
MemFree:          250000 kB
Buffers:           10000 kB
Cached:            50000 kB
Slab:              20000 kB
Shmem:              5000 kB
`

func TestMemInfoDriverPollPublishesDerivedCounters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meminfo")
	require.NoError(t, os.WriteFile(path, []byte(sampleMemInfo), 0o644))

	ob := buffer.New(buffer.CapacityForMode(buffer.BufferModeStreaming), false)
	raw := buffer.NewRawFrameBuilder(ob)
	fb := blockcounter.NewFrameBuilder(raw, 0)
	mc := blockcounter.NewMessageConsumer(fb)

	prevPollTime := pollTimeNS
	pollTimeNS = func() uint64 { return 1000 }
	defer func() { pollTimeNS = prevPollTime }()

	d := NewMemInfoDriver(0, 0)
	d.path = path

	require.NoError(t, d.Poll(mc))
	require.True(t, fb.Flush())

	var out bytes.Buffer
	_, err := ob.Write(&out)
	require.NoError(t, err)
	payload := out.Bytes()[apc.ResponseHeaderSize:]

	readPos := 0
	require.EqualValues(t, apc.FrameBlockCounter, codec.UnpackInt32(payload, &readPos))
	assert.EqualValues(t, 0, codec.UnpackInt32(payload, &readPos))    // frame core
	assert.EqualValues(t, 0, codec.UnpackInt32(payload, &readPos))    // timestamp key
	assert.EqualValues(t, 1000, codec.UnpackInt64(payload, &readPos)) // timestamp

	want := []struct {
		key   int32
		value int64
	}{
		{keyMemUsed, (1000000 - 250000) << 10},
		{keyMemFree, 250000 << 10},
		{keyBuffers, 10000 << 10},
		{keyCached, 50000 << 10},
		{keySlab, 20000 << 10},
	}
	for _, w := range want {
		assert.Equal(t, w.key, codec.UnpackInt32(payload, &readPos))
		assert.Equal(t, w.value, codec.UnpackInt64(payload, &readPos))
	}
	assert.Equal(t, len(payload), readPos)
}

func TestMemInfoDriverPollFailsOnMissingFile(t *testing.T) {
	ob := buffer.New(buffer.CapacityForMode(buffer.BufferModeStreaming), false)
	raw := buffer.NewRawFrameBuilder(ob)
	fb := blockcounter.NewFrameBuilder(raw, 0)
	mc := blockcounter.NewMessageConsumer(fb)

	d := NewMemInfoDriver(0, 0)
	d.path = "/nonexistent/meminfo"

	require.Error(t, d.Poll(mc))
}

type fakeSetupLog struct{ lines []string }

func (f *fakeSetupLog) Append(line string) { f.lines = append(f.lines, line) }

func TestMemInfoDriverCheckAccessLogsOnFailure(t *testing.T) {
	d := NewMemInfoDriver(0, 0)
	d.path = "/nonexistent/meminfo"

	log := &fakeSetupLog{}
	assert.False(t, d.CheckAccess(log))
	require.Len(t, log.lines, 1)
	assert.Contains(t, log.lines[0], "Cannot access /proc/meminfo")
}

func TestMemInfoDriverCheckAccessOK(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meminfo")
	require.NoError(t, os.WriteFile(path, []byte(sampleMemInfo), 0o644))

	d := NewMemInfoDriver(0, 0)
	d.path = path

	log := &fakeSetupLog{}
	assert.True(t, d.CheckAccess(log))
	assert.Empty(t, log.lines)
}
