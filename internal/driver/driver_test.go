package driver

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ARM-software/gator-sub005/internal/blockcounter"
)

type countingDriver struct {
	name  string
	calls atomic.Int32
}

func (d *countingDriver) Name() string { return d.name }
func (d *countingDriver) Poll(*blockcounter.MessageConsumer) error {
	d.calls.Add(1)
	return nil
}

func TestHarnessPollsEveryDriverUntilCancel(t *testing.T) {
	d1 := &countingDriver{name: "a"}
	d2 := &countingDriver{name: "b"}
	h := NewHarness(5*time.Millisecond, d1, d2)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	err := h.Run(ctx, func(Driver) *blockcounter.MessageConsumer { return nil })
	assert.NoError(t, err)
	assert.True(t, d1.calls.Load() > 0)
	assert.True(t, d2.calls.Load() > 0)
}

type failingDriver struct {
	name string
}

func (d *failingDriver) Name() string { return d.name }
func (d *failingDriver) Poll(*blockcounter.MessageConsumer) error {
	return errors.New("boom")
}

// TestHarnessIsolatesAFailingDriver asserts that one driver's Poll error
// only stops that driver: its sibling keeps ticking, and Run itself still
// returns nil rather than propagating the failure to the caller.
func TestHarnessIsolatesAFailingDriver(t *testing.T) {
	bad := &failingDriver{name: "bad"}
	good := &countingDriver{name: "good"}
	h := NewHarness(5*time.Millisecond, bad, good)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	err := h.Run(ctx, func(Driver) *blockcounter.MessageConsumer { return nil })
	assert.NoError(t, err)
	assert.True(t, good.calls.Load() > 1, "sibling driver must keep polling after the other one fails")
}
