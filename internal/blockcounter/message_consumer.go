package blockcounter

import "math"

// invalidLastEventTime marks "no timestamp emitted yet in this frame".
const invalidLastEventTime = uint64(math.MaxUint64)

// MessageConsumer delta-encodes a stream of per-thread counter samples
// into BLOCK_COUNTER frames via the wrapped FrameBuilder, emitting a
// context event (timestamp/core/tid) only when it differs from the last
// one emitted within the current frame (spec.md §4.3, §8 property 3).
type MessageConsumer struct {
	builder *FrameBuilder

	lastEventTime uint64
	lastEventCore int32
	lastEventTid  int32
}

// NewMessageConsumer wraps a FrameBuilder with delta-encoding state.
func NewMessageConsumer(builder *FrameBuilder) *MessageConsumer {
	return &MessageConsumer{builder: builder, lastEventTime: invalidLastEventTime}
}

// ThreadCounterMessage encodes one (time, core, tid, key, value) sample.
// It returns false if the encoder dropped the event for lack of space; in
// that case the consumer's shadow state reflects only the context events
// actually emitted before the drop, matching the original's early-return
// semantics.
func (c *MessageConsumer) ThreadCounterMessage(t uint64, core int32, tid int32, key int32, value int64) bool {
	// A frame closed outside Check (e.g. an explicit Flush) also
	// invalidates the context emitted into it.
	if !c.builder.isFrameStarted {
		c.lastEventTime = invalidLastEventTime
		c.lastEventCore = 0
		c.lastEventTid = 0
	}

	if t != c.lastEventTime || c.lastEventTime == invalidLastEventTime {
		if !c.builder.EventHeader(t) {
			return false
		}
		c.lastEventTime = t
		// a new timestamp implicitly resets the running TID
		c.lastEventTid = 0
	}

	if core != c.lastEventCore {
		if !c.builder.EventCore(core) {
			return false
		}
		c.lastEventCore = core
	}

	if tid != c.lastEventTid {
		if !c.builder.EventTid(tid) {
			return false
		}
		c.lastEventTid = tid
	}

	if !c.builder.Event64(key, value) {
		return false
	}

	if c.builder.Check(t) {
		c.lastEventTime = invalidLastEventTime
		c.lastEventCore = 0
		c.lastEventTid = 0
	}

	return true
}
