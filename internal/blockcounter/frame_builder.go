// Package blockcounter implements the BLOCK_COUNTER frame encoder and the
// delta-encoding consumer that sits above it (spec.md §4.3).
package blockcounter

import (
	"github.com/ARM-software/gator-sub005/internal/apc"
	"github.com/ARM-software/gator-sub005/internal/buffer"
	"github.com/ARM-software/gator-sub005/internal/codec"
)

// reserved event keys; any other key is an ordinary counter.
const (
	keyTimestamp = 0
	keyTid       = 1
	keyCore      = 2
)

// FrameBuilder is the stateful encoder that turns event calls into a
// BLOCK_COUNTER frame on the underlying raw frame builder, committing
// (and re-opening) frames according to a commit-rate policy.
type FrameBuilder struct {
	raw             *buffer.RawFrameBuilder
	checker         *commitTimeChecker
	isFrameStarted  bool
}

// NewFrameBuilder wraps a raw frame builder with block-counter framing,
// committing a frame whenever commitRateNS nanoseconds have elapsed since
// the last commit (0 disables time-based commits; the underlying buffer's
// own flush need is always honored regardless).
func NewFrameBuilder(raw *buffer.RawFrameBuilder, commitRateNS uint64) *FrameBuilder {
	return &FrameBuilder{raw: raw, checker: newCommitTimeChecker(commitRateNS)}
}

// EventHeader emits a timestamp context event (key 0), implicitly
// resetting the consumer's shadow TID to zero on the wire.
func (f *FrameBuilder) EventHeader(t uint64) bool {
	if !f.ensureFrameStarted() {
		return false
	}
	if f.raw.BytesAvailable() < int32(codec.MaxPack32+codec.MaxPack64) {
		return false
	}
	f.raw.PackInt(keyTimestamp)
	f.raw.PackInt64(int64(t))
	return true
}

// EventCore emits a core context event (key 2).
func (f *FrameBuilder) EventCore(core int32) bool {
	if !f.ensureFrameStarted() {
		return false
	}
	if f.raw.BytesAvailable() < int32(2*codec.MaxPack32) {
		return false
	}
	f.raw.PackInt(keyCore)
	f.raw.PackInt(core)
	return true
}

// EventTid emits a tid context event (key 1).
func (f *FrameBuilder) EventTid(tid int32) bool {
	if !f.ensureFrameStarted() {
		return false
	}
	if f.raw.BytesAvailable() < int32(2*codec.MaxPack32) {
		return false
	}
	f.raw.PackInt(keyTid)
	f.raw.PackInt(tid)
	return true
}

// Event64 emits an ordinary counter (key, value) pair.
func (f *FrameBuilder) Event64(key int32, value int64) bool {
	if !f.ensureFrameStarted() {
		return false
	}
	if f.raw.BytesAvailable() < int32(codec.MaxPack64+codec.MaxPack32) {
		return false
	}
	f.raw.PackInt(key)
	f.raw.PackInt64(value)
	return true
}

// Check asks the commit-time policy whether the current frame should be
// closed, closing it (and signalling the caller to reset its delta state)
// if so.
func (f *FrameBuilder) Check(t uint64) bool {
	if f.checker.shouldCommit(t, f.raw.NeedsFlush()) {
		return f.Flush()
	}
	return false
}

// Flush unconditionally closes the current frame (if any) and drains the
// underlying buffer.
func (f *FrameBuilder) Flush() bool {
	closed := f.endFrame()
	f.raw.Flush()
	return closed
}

func (f *FrameBuilder) ensureFrameStarted() bool {
	if f.isFrameStarted {
		return true
	}

	// MAX_FRAME_HEADER_SIZE (6) + one extra pack32 for the leading core=0
	// field the frame is opened with.
	const reserve = 6 + codec.MaxPack32
	if f.raw.BytesAvailable() < int32(reserve) {
		return false
	}

	if err := f.raw.BeginFrame(apc.FrameBlockCounter); err != nil {
		return false
	}
	f.raw.PackInt(0) // core, fixed at zero on frame entry
	f.isFrameStarted = true
	return true
}

func (f *FrameBuilder) endFrame() bool {
	if !f.isFrameStarted {
		return false
	}
	_ = f.raw.EndFrame()
	f.isFrameStarted = false
	return true
}
