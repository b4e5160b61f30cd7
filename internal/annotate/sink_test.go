package annotate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ARM-software/gator-sub005/internal/buffer"
)

func TestFrameSinkEmitsAnnotateFrame(t *testing.T) {
	ob := buffer.New(buffer.CapacityForMode(buffer.BufferModeStreaming), false)
	raw := buffer.NewRawFrameBuilder(ob)
	sink := NewFrameSink(raw)

	require.NoError(t, sink.WriteAnnotateMessage(777, 42, MessageMarker, []byte("hi")))
}
