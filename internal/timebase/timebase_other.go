//go:build !arm64

package timebase

// readCNTFRQEL0 and readCNTVCTEL0 return 0 on platforms without the ARM
// generic timer, matching GenericTimer.h's non-aarch64/aarch32 fallback.

func readCNTFRQEL0() uint64 { return 0 }
func readCNTVCTEL0() uint64 { return 0 }
