// Package supervisor is the single background task that samples queue
// depths and crawl rate every tick and reacts with refill, spill,
// emergency-seed injection, shutdown detection, and a safety timeout.
package supervisor

import (
	"sync/atomic"
	"time"
)

const (
	tickInterval = 5 * time.Second

	refillThreshold   = 1000
	refillBatchSize   = 1000
	spillThresholdFrac = 0.8

	emergencyFrontierFloor  = 100
	emergencyRateFloor      = 5.0
	emergencyMaxInjections  = 5

	shutdownAvailableFloor = 10
	shutdownRateFloor      = 2.0
	shutdownConsecutiveTicks = 3

	freshStartupGrace = 60 * time.Second

	defaultRegularSafetyTimeout = 30 * time.Minute
)

// Mode mirrors the process-wide REGULAR/FRESH distinction: FRESH omits
// disk-refill, disk-spill, and emergency injection, and suppresses
// shutdown detection during its startup grace period.
type Mode int

const (
	ModeRegular Mode = iota
	ModeFresh
)

// rateTracker is an exponential moving average of pages/s, fed once per
// tick from a monotonically increasing page counter.
type rateTracker struct {
	lastCount int64
	lastAt    time.Time
	ema       float64
	primed    bool
}

func (r *rateTracker) sample(totalPages int64, now time.Time) float64 {
	if !r.primed {
		r.lastCount = totalPages
		r.lastAt = now
		r.primed = true
		return 0
	}
	elapsed := now.Sub(r.lastAt).Seconds()
	if elapsed <= 0 {
		return r.ema
	}
	instantaneous := float64(totalPages-r.lastCount) / elapsed
	const alpha = 0.3
	r.ema = alpha*instantaneous + (1-alpha)*r.ema
	r.lastCount = totalPages
	r.lastAt = now
	return r.ema
}

// PageCounter is incremented by HTML workers once per EnrichedRecord
// produced; the supervisor reads it every tick to derive the crawl rate.
type PageCounter struct {
	count atomic.Int64
}

func (c *PageCounter) Increment() { c.count.Add(1) }
func (c *PageCounter) Load() int64 { return c.count.Load() }
