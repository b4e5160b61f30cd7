package driver

import "github.com/ARM-software/gator-sub005/internal/timebase"

// pollTimeNS is a var, not a direct call, so tests can stub out the
// clock the same way internal/timebase's own tests stub CNTFRQ/CNTVCT.
var pollTimeNS = timebase.MonotonicRawNS
