package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetupLogJoinsEntriesWithPipe(t *testing.T) {
	var s SetupLog
	s.Append("Linux counters\nCannot access /proc/meminfo.")
	s.Append("Profiling Source\nUsing perf API for primary data source")

	assert.Equal(t, 2, s.Len())
	assert.Equal(t,
		"Linux counters\nCannot access /proc/meminfo.|Profiling Source\nUsing perf API for primary data source",
		s.String())
}
