//go:build arm64

package timebase

// readCNTFRQEL0 and readCNTVCTEL0 are implemented in timebase_arm64.s,
// mirroring GenericTimer.h's inline "mrs %0, CNTFRQ_EL0" / "mrs %0,
// CNTVCT_EL0" asm for the aarch64 case.

func readCNTFRQEL0() uint64 { return cntfrqEL0Asm() }
func readCNTVCTEL0() uint64 { return cntvctEL0Asm() }

func cntfrqEL0Asm() uint64
func cntvctEL0Asm() uint64
