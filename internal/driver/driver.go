// Package driver is the polling harness for the counter sources spec.md
// §1 scopes out of the capture core proper (individual polled drivers
// such as diskio, net, fs, hwmon, thermal, Mali GPU clocks). The harness
// itself — a ticker-driven poll-then-produce loop supervising one
// goroutine per driver — is ambient plumbing the core owns regardless;
// concrete drivers besides the meminfo illustration are left as the
// leaf Driver interface the spec calls out of scope.
package driver

import (
	"context"
	"sync"
	"time"

	"github.com/ARM-software/gator-sub005/internal/blockcounter"
	"github.com/ARM-software/gator-sub005/internal/log"
)

// Driver is one polled counter source. Poll is called once per tick and
// reports its readings to the supplied consumer.
type Driver interface {
	Name() string
	Poll(mc *blockcounter.MessageConsumer) error
}

// Harness runs a set of Drivers on a shared interval, each against its
// own block-counter encoder, committing on the encoder's own commit-rate
// policy (internal/blockcounter's commitTimeChecker).
type Harness struct {
	interval time.Duration
	drivers  []Driver
}

// NewHarness builds a polling harness ticking every interval.
func NewHarness(interval time.Duration, drivers ...Driver) *Harness {
	return &Harness{interval: interval, drivers: drivers}
}

// Run polls every driver on its own goroutine until ctx is canceled. A
// driver whose Poll fails is logged and stopped on its own goroutine only
// — it never cancels its siblings or the harness as a whole, matching the
// capture pipeline's fatal/skip split: the primary perf/proc source is
// fatal on failure, auxiliary polled drivers are skipped (spec.md §7).
// Run itself always returns nil; ctx cancellation is the only stop signal
// a caller needs to observe.
func (h *Harness) Run(ctx context.Context, mc func(Driver) *blockcounter.MessageConsumer) error {
	var wg sync.WaitGroup
	for _, d := range h.drivers {
		d := d
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(h.interval)
			defer ticker.Stop()
			c := mc(d)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := d.Poll(c); err != nil {
						log.WithField("driver", d.Name()).Warnf("poll failed, driver skipped: %v", err)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	return nil
}
