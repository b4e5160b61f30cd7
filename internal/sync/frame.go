// Package sync implements the per-CPU sync-thread subsystem (spec.md
// §4.5): pinned, best-effort-realtime threads that periodically stamp a
// PERF_SYNC frame correlating the generic timer with CLOCK_MONOTONIC_RAW,
// grounded on daemon/linux/perf/PerfSyncThread.{h,cpp}.
package sync

import (
	"github.com/pkg/errors"

	"github.com/ARM-software/gator-sub005/internal/apc"
	"github.com/ARM-software/gator-sub005/internal/buffer"
	"github.com/ARM-software/gator-sub005/internal/codec"
)

// maxSyncFrameBytes reserves the frame header plus five worst-case
// varints (two 32-bit, three 64-bit).
const maxSyncFrameBytes = 6 + 2*codec.MaxPack32 + 3*codec.MaxPack64

var errBackpressured = errors.New("sync: outbound buffer backpressured")

// Record is one sample of the tuple a sync thread hands its consumer:
// (pid, tid, cntfrq, monotonic_raw, cntvct), keyed implicitly by CPU.
type Record struct {
	PID          int32
	TID          int32
	CNTFRQ       int64
	MonotonicRaw int64
	CNTVCT       int64
}

// EmitFrame encodes rec as a PERF_SYNC frame body {pid, tid, cntfrq,
// monotonic_raw, cntvct} (spec.md §3.2) and commits it immediately — sync
// frames are always pushed right away, never batched (spec.md §4.5).
func EmitFrame(raw *buffer.RawFrameBuilder, rec Record) error {
	if !raw.WaitForSpace(maxSyncFrameBytes) {
		return errBackpressured
	}

	if err := raw.BeginFrame(apc.FramePerfSync); err != nil {
		return err
	}
	if _, err := raw.PackInt(rec.PID); err != nil {
		return err
	}
	if _, err := raw.PackInt(rec.TID); err != nil {
		return err
	}
	if _, err := raw.PackInt64(rec.CNTFRQ); err != nil {
		return err
	}
	if _, err := raw.PackInt64(rec.MonotonicRaw); err != nil {
		return err
	}
	if _, err := raw.PackInt64(rec.CNTVCT); err != nil {
		return err
	}
	return raw.EndFrame()
}
