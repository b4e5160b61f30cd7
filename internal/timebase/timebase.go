// Package timebase reads the clocks the capture pipeline stamps every
// record with: CLOCK_MONOTONIC_RAW as the canonical timebase (spec.md
// §6.5), and the ARM generic timer registers CNTFRQ_EL0/CNTVCT_EL0 used
// to correlate perf's SPE timestamps with CLOCK_MONOTONIC_RAW. Grounded on
// daemon/lib/GenericTimer.h and daemon/linux/perf/PerfSyncThread.cpp's
// getTime()/get_cntfreq_el0()/get_cntvct_el0() calls.
package timebase

import "golang.org/x/sys/unix"

// MonotonicRawNS returns CLOCK_MONOTONIC_RAW in nanoseconds, the
// canonical timebase every APC record is stamped against.
func MonotonicRawNS() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC_RAW, &ts); err != nil {
		return 0
	}
	return uint64(ts.Sec)*1e9 + uint64(ts.Nsec)
}

// cntfrqEL0 and cntvctEL0 are overridden in tests and on non-arm64
// builds; on a real arm64 target they read the CNTFRQ_EL0/CNTVCT_EL0
// system registers directly (see timebase_arm64.go).
var (
	cntfrqEL0 = readCNTFRQEL0
	cntvctEL0 = readCNTVCTEL0
)

// CNTFRQEL0 reads the generic timer's frequency register, or 0 on a
// platform that does not implement it.
func CNTFRQEL0() uint64 { return cntfrqEL0() }

// CNTVCTEL0 reads the generic timer's virtual count register, or 0 on a
// platform that does not implement it.
func CNTVCTEL0() uint64 { return cntvctEL0() }
