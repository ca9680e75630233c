package ratelimit

import "time"

// hostTiming is the per-host state owned exclusively by the rate limiter:
// the last request timestamp and the consecutive-failure counter driving
// the backoff gap.
type hostTiming struct {
	lastRequestAt        time.Time
	nextAllowedAt         time.Time
	consecutiveFailures   int
}

func (h *hostTiming) LastRequestAt() time.Time { return h.lastRequestAt }
func (h *hostTiming) ConsecutiveFailures() int { return h.consecutiveFailures }
