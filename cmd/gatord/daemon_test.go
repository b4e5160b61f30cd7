package main

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ARM-software/gator-sub005/internal/config"
	"github.com/ARM-software/gator-sub005/pkg/metrics"
)

func TestEncodeCaptureConfigPacksSampleRateAndUnwindFlag(t *testing.T) {
	sess := &config.Session{SampleRate: 1009, CallStackUnwinding: true}
	blob := encodeCaptureConfig(sess)
	require.Len(t, blob, 5)
	assert.Equal(t, byte(1009&0xff), blob[0])
	assert.Equal(t, byte(1009>>8), blob[1])
	assert.Equal(t, byte(1), blob[4])
}

func TestEncodeCaptureConfigUnwindFlagOffByDefault(t *testing.T) {
	sess := &config.Session{SampleRate: 0}
	blob := encodeCaptureConfig(sess)
	require.Len(t, blob, 5)
	assert.Equal(t, byte(0), blob[4])
}

func TestCountingWriterTalliesBytesIntoCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_bytes_total"})
	reg.MustRegister(counter)

	var buf bytes.Buffer
	cw := countingWriter{w: &buf, counter: counter}

	n, err := cw.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", buf.String())

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Len(t, families[0].GetMetric(), 1)
	assert.Equal(t, float64(5), families[0].GetMetric()[0].GetCounter().GetValue())
}

func TestAgentFrameSinkOnAuxFragmentsAccumulatesIntoRegistry(t *testing.T) {
	reg := metrics.New()
	promReg := prometheus.NewRegistry()
	reg.MustRegister(promReg)

	sink := agentFrameSink{reg: reg}
	sink.OnAuxFragments(3)
	sink.OnAuxFragments(2)

	families, err := promReg.Gather()
	require.NoError(t, err)

	var got float64
	for _, f := range families {
		if f.GetName() == "gatord_perfring_aux_fragments_sent_total" {
			got = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(5), got)
}
