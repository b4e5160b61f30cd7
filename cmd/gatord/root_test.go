package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRootCommandRegistersAgentPerfSubcommand(t *testing.T) {
	root := newRootCommand()

	found := false
	for _, c := range root.Commands() {
		if c.Use == "agent-perf" {
			found = true
			assert.True(t, c.Hidden)
		}
	}
	assert.True(t, found, "expected a hidden agent-perf subcommand")
}

func TestNewRootCommandBindsCoreFlags(t *testing.T) {
	root := newRootCommand()

	for _, name := range []string{"buffer-mode", "sample-rate", "duration", "metrics-addr", "capture-dir", "live-addr"} {
		assert.NotNil(t, root.Flags().Lookup(name), "expected flag %q to be registered", name)
	}
}
