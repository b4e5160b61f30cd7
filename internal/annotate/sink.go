package annotate

import (
	"github.com/ARM-software/gator-sub005/internal/apc"
	"github.com/ARM-software/gator-sub005/internal/buffer"
)

// FrameSink adapts a client message stream onto an outbound frame
// builder, packing each message as an ANNOTATE frame. The body encoding
// ({pid, tid, msgType, body}) is a core-local choice: spec.md's wire
// table only pins down the bodies it calls out explicitly, leaving
// ANNOTATE's own body free, so the raw client message is carried through
// verbatim alongside the reporting thread's identity.
type FrameSink struct {
	raw *buffer.RawFrameBuilder
}

// NewFrameSink builds a Sink that emits onto raw.
func NewFrameSink(raw *buffer.RawFrameBuilder) *FrameSink {
	return &FrameSink{raw: raw}
}

// WriteAnnotateMessage implements Sink.
func (s *FrameSink) WriteAnnotateMessage(pid, tid int32, msgType MessageType, body []byte) error {
	if !s.raw.WaitForSpace(2*4 + 1 + 4 + len(body)) {
		return nil // backpressured: drop rather than block a client indefinitely
	}
	if err := s.raw.BeginFrame(apc.FrameAnnotate); err != nil {
		return err
	}
	if _, err := s.raw.PackInt(pid); err != nil {
		return err
	}
	if _, err := s.raw.PackInt(tid); err != nil {
		return err
	}
	if _, err := s.raw.PackInt(int32(msgType)); err != nil {
		return err
	}
	if _, err := s.raw.PackInt(int32(len(body))); err != nil {
		return err
	}
	if err := s.raw.WriteBytes(body); err != nil {
		return err
	}
	return s.raw.EndFrame()
}
