package blockcounter

// commitTimeChecker decides when an open block-counter frame should be
// committed, based on a fixed commit-rate in nanoseconds. A zero rate
// disables time-based commits entirely, leaving the force flag (raised
// when the underlying buffer itself needs flushing) as the only trigger.
type commitTimeChecker struct {
	commitRateNS uint64
	nextCommitNS uint64
}

func newCommitTimeChecker(commitRateNS uint64) *commitTimeChecker {
	return &commitTimeChecker{commitRateNS: commitRateNS, nextCommitNS: commitRateNS}
}

func (c *commitTimeChecker) shouldCommit(timeNS uint64, force bool) bool {
	if force || (c.commitRateNS > 0 && timeNS >= c.nextCommitNS) {
		c.nextCommitNS = timeNS + c.commitRateNS
		return true
	}
	return false
}
