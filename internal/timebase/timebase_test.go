package timebase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMonotonicRawNSIsNondecreasing(t *testing.T) {
	a := MonotonicRawNS()
	b := MonotonicRawNS()
	assert.GreaterOrEqual(t, b, a)
	assert.NotZero(t, a)
}

func TestCNTFRQAndCNTVCTAreOverridableForTests(t *testing.T) {
	prevFreq, prevCount := cntfrqEL0, cntvctEL0
	defer func() { cntfrqEL0, cntvctEL0 = prevFreq, prevCount }()

	cntfrqEL0 = func() uint64 { return 100_000_000 }
	cntvctEL0 = func() uint64 { return 12345 }

	assert.EqualValues(t, 100_000_000, CNTFRQEL0())
	assert.EqualValues(t, 12345, CNTVCTEL0())
}
