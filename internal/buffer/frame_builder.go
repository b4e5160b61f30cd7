package buffer

import (
	"github.com/ARM-software/gator-sub005/internal/apc"
	"github.com/ARM-software/gator-sub005/internal/codec"
)

// RawFrameBuilder builds arbitrary APC frames directly on top of an
// OutboundBuffer. There may be at most one open frame at a time; the
// buffer must not be drained while a frame is open (the caller is
// responsible for not calling WaitForSpace while holding one open, as
// spec.md §4.2 requires).
type RawFrameBuilder struct {
	b *OutboundBuffer

	onCommit func(apc.FrameType)
	openType apc.FrameType
}

// NewRawFrameBuilder wraps an OutboundBuffer with frame-level operations.
func NewRawFrameBuilder(b *OutboundBuffer) *RawFrameBuilder {
	return &RawFrameBuilder{b: b}
}

// OnCommit registers a callback invoked with a frame's type every time
// EndFrame successfully closes it — the hook pkg/metrics uses to count
// frames committed per type without this package depending on a metrics
// client.
func (f *RawFrameBuilder) OnCommit(fn func(apc.FrameType)) { f.onCommit = fn }

// Buffer returns the underlying outbound buffer, for components (the
// sender loop, IsFull/SetDone callers) that need the control interface.
func (f *RawFrameBuilder) Buffer() *OutboundBuffer { return f.b }

// BytesAvailable delegates to the underlying buffer.
func (f *RawFrameBuilder) BytesAvailable() int32 { return f.b.BytesAvailable() }

// SupportsWriteOfSize delegates to the underlying buffer.
func (f *RawFrameBuilder) SupportsWriteOfSize(n int) bool { return f.b.SupportsWriteOfSize(n) }

// WaitForSpace delegates to the underlying buffer.
func (f *RawFrameBuilder) WaitForSpace(n int) bool { return f.b.WaitForSpace(n) }

// NeedsFlush delegates to the underlying buffer.
func (f *RawFrameBuilder) NeedsFlush() bool { return f.b.NeedsFlush() }

// Flush delegates to the underlying buffer.
func (f *RawFrameBuilder) Flush() { f.b.Flush() }

// BeginFrame opens a new frame of the given type. It fails if a frame is
// already open, or if the response-record header plus at least one
// payload byte cannot fit in the remaining buffer space; callers should
// retry after Flush() drains the consumer.
func (f *RawFrameBuilder) BeginFrame(frameType apc.FrameType) error {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()

	if f.b.frameOpen {
		return ErrFrameAlreadyOpen
	}

	if f.b.bytesAvailableLocked() < int32(maxFrameHeaderSize+1) {
		return ErrFrameTooLarge
	}

	f.b.frameStart = f.b.write
	f.writeByteLocked(byte(apc.ResponseTypeAPCData))
	f.b.lengthFieldPos = f.b.write
	f.b.write += 4 // length placeholder, patched in endFrame
	f.b.frameBodyStart = f.b.write

	f.packInt32Locked(int32(frameType))
	f.b.frameOpen = true
	f.openType = frameType
	return nil
}

// EndFrame closes the current frame, patches its length field, and
// advances the committed marker so the sender can drain it.
func (f *RawFrameBuilder) EndFrame() error {
	f.b.mu.Lock()

	if !f.b.frameOpen {
		f.b.mu.Unlock()
		return ErrNoOpenFrame
	}

	length := uint32(f.b.write - f.b.frameBodyStart)
	f.writeLEUint32Locked(f.b.lengthFieldPos, length)
	f.b.committed = f.b.write
	f.b.frameOpen = false
	committedType := f.openType
	f.b.mu.Unlock()

	if f.onCommit != nil {
		f.onCommit(committedType)
	}
	return nil
}

// WriteRawResponse commits p verbatim as a complete APC_DATA response
// record's payload, bypassing the single-open-frame API. This is for
// callers (the agent worker) that receive an already-assembled blob that
// may itself contain more than one frame (spec.md §6.3: ApcFrame "carries
// one opaque pre-framed APC blob").
func (f *RawFrameBuilder) WriteRawResponse(p []byte) error {
	f.b.mu.Lock()

	if f.b.frameOpen {
		f.b.mu.Unlock()
		return ErrFrameAlreadyOpen
	}
	if f.b.bytesAvailableLocked() < int32(apc.ResponseHeaderSize+len(p)) {
		f.b.mu.Unlock()
		return ErrFrameTooLarge
	}

	f.writeByteLocked(byte(apc.ResponseTypeAPCData))
	lengthPos := f.b.write
	f.b.write += 4
	f.writeBytesLocked(p)
	f.writeLEUint32Locked(lengthPos, uint32(len(p)))
	f.b.committed = f.b.write
	f.b.mu.Unlock()

	return nil
}

// AbortFrame discards the current frame, rewinding the write cursor.
func (f *RawFrameBuilder) AbortFrame() error {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()

	if !f.b.frameOpen {
		return ErrNoOpenFrame
	}

	f.b.write = f.b.frameStart
	f.b.frameOpen = false
	return nil
}

// PackInt appends a 32-bit varint to the current frame.
func (f *RawFrameBuilder) PackInt(x int32) (int, error) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	if !f.b.frameOpen {
		return 0, ErrNoOpenFrame
	}
	return f.packInt32Locked(x), nil
}

// PackInt64 appends a 64-bit varint to the current frame.
func (f *RawFrameBuilder) PackInt64(x int64) (int, error) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	if !f.b.frameOpen {
		return 0, ErrNoOpenFrame
	}
	return f.packInt64Locked(x), nil
}

// WriteBytes appends arbitrary bytes to the current frame. The caller
// guarantees enough space has already been reserved.
func (f *RawFrameBuilder) WriteBytes(p []byte) error {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	if !f.b.frameOpen {
		return ErrNoOpenFrame
	}
	f.writeBytesLocked(p)
	return nil
}

// WriteString appends a string's raw bytes to the current frame.
func (f *RawFrameBuilder) WriteString(s string) error {
	return f.WriteBytes([]byte(s))
}

// WriteIndex returns the write cursor as an index into the backing array
// (the monotonic cursor masked to the capacity), for direct-access
// callers that need to patch a length field after streaming variable
// length data (spec.md §4.2's direct-access variant, used by the perf
// ring APC adapter).
func (f *RawFrameBuilder) WriteIndex() int { return int(f.b.write & f.b.mask) }

// AdvanceWrite skips the write cursor forward by n bytes, used after the
// caller has written directly into the backing array via WriteDirect.
func (f *RawFrameBuilder) AdvanceWrite(n int) error {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	if !f.b.frameOpen {
		return ErrNoOpenFrame
	}
	f.b.write += uint64(n)
	return nil
}

// WriteDirect writes p directly into the backing array starting at the
// given raw index (as returned by WriteIndex), wrapping as needed. It
// does not move the write cursor; pair with AdvanceWrite.
func (f *RawFrameBuilder) WriteDirect(index int, p []byte) error {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	if !f.b.frameOpen {
		return ErrNoOpenFrame
	}
	f.copyInLocked(uint64(index), p)
	return nil
}

// --- locked helpers; caller must hold f.b.mu ---

func (f *RawFrameBuilder) packInt32Locked(x int32) int {
	var tmp [codec.MaxPack32]byte
	pos := 0
	n := codec.PackInt32(tmp[:], &pos, x, codec.NoWrap)
	f.writeBytesLocked(tmp[:n])
	return n
}

func (f *RawFrameBuilder) packInt64Locked(x int64) int {
	var tmp [codec.MaxPack64]byte
	pos := 0
	n := codec.PackInt64(tmp[:], &pos, x, codec.NoWrap)
	f.writeBytesLocked(tmp[:n])
	return n
}

func (f *RawFrameBuilder) writeByteLocked(b byte) {
	f.b.buf[f.b.write&f.b.mask] = b
	f.b.write++
}

func (f *RawFrameBuilder) writeBytesLocked(p []byte) {
	idx := f.b.write & f.b.mask
	f.copyInLocked(idx, p)
	f.b.write += uint64(len(p))
}

func (f *RawFrameBuilder) copyInLocked(idx uint64, p []byte) {
	n := copy(f.b.buf[idx:], p)
	if n < len(p) {
		copy(f.b.buf, p[n:])
	}
}

func (f *RawFrameBuilder) writeLEUint32Locked(pos uint64, v uint32) {
	var tmp [4]byte
	tmp[0] = byte(v)
	tmp[1] = byte(v >> 8)
	tmp[2] = byte(v >> 16)
	tmp[3] = byte(v >> 24)
	f.copyInLocked(pos&f.b.mask, tmp[:])
}
