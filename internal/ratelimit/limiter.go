package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

/*
RateLimiter enforces per-host minimum inter-request spacing with
failure-driven backoff.

Responsibilities:
  - Bookkeep each host's last-request timestamp and failure count
  - Compute the next-allowed time given the base gap and backoff
  - Make sure crawling respects a host's observed tolerance

State is sharded by host hash into shardCount independent cells so that
concurrent operations on different hosts do not contend.
*/
const (
	shardCount  = 256
	minGap      = 50 * time.Millisecond
	baseGap     = 2 * time.Millisecond
	failureStep = 2 * time.Millisecond
	maxGap      = 20 * time.Millisecond
)

type RateLimiter interface {
	CanRequestNow(host string) bool
	RecordRequest(host string)
	RecordSuccess(host string)
	RecordFailure(host string)
	Throttle(host string, duration time.Duration)
}

type shard struct {
	mu    sync.Mutex
	hosts map[string]*hostTiming
}

type ShardedRateLimiter struct {
	shards [shardCount]*shard
}

func NewShardedRateLimiter() *ShardedRateLimiter {
	l := &ShardedRateLimiter{}
	for i := range l.shards {
		l.shards[i] = &shard{hosts: make(map[string]*hostTiming)}
	}
	return l
}

var _ RateLimiter = (*ShardedRateLimiter)(nil)

func (l *ShardedRateLimiter) shardFor(host string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(host))
	return l.shards[h.Sum32()%shardCount]
}

// CanRequestNow returns true iff now is at or past minGap since the last
// request and at or past any pending throttle/backoff deadline.
func (l *ShardedRateLimiter) CanRequestNow(host string) bool {
	s := l.shardFor(host)
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.hosts[host]
	if !ok {
		return true
	}
	now := time.Now()
	if !t.nextAllowedAt.IsZero() && now.Before(t.nextAllowedAt) {
		return false
	}
	return now.Sub(t.lastRequestAt) >= minGap
}

func (l *ShardedRateLimiter) RecordRequest(host string) {
	s := l.shardFor(host)
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.hosts[host]
	if t == nil {
		t = &hostTiming{}
		s.hosts[host] = t
	}
	t.lastRequestAt = time.Now()
}

func (l *ShardedRateLimiter) RecordSuccess(host string) {
	s := l.shardFor(host)
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.hosts[host]
	if t == nil {
		return
	}
	t.consecutiveFailures = 0
}

// RecordFailure increments the consecutive-failure counter and pushes the
// next-allowed time forward by base_gap + min(fail_count*k, max_gap).
func (l *ShardedRateLimiter) RecordFailure(host string) {
	s := l.shardFor(host)
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.hosts[host]
	if t == nil {
		t = &hostTiming{}
		s.hosts[host] = t
	}
	t.consecutiveFailures++
	gap := baseGap + time.Duration(t.consecutiveFailures)*failureStep
	if gap > baseGap+maxGap {
		gap = baseGap + maxGap
	}
	deadline := time.Now().Add(gap)
	if deadline.After(t.nextAllowedAt) {
		t.nextAllowedAt = deadline
	}
}

// Throttle forces the next-allowed time forward by duration. The fetch
// worker does not call it: its HTTP 429/503 handling only raises the URL's
// metadata backoff.
func (l *ShardedRateLimiter) Throttle(host string, duration time.Duration) {
	s := l.shardFor(host)
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.hosts[host]
	if t == nil {
		t = &hostTiming{}
		s.hosts[host] = t
	}
	deadline := time.Now().Add(duration)
	if deadline.After(t.nextAllowedAt) {
		t.nextAllowedAt = deadline
	}
}

// HostTimingForTest exposes a shallow snapshot of a host's timing state for
// white-box tests.
func (l *ShardedRateLimiter) HostTimingForTest(host string) (lastRequestAt time.Time, consecutiveFailures int, ok bool) {
	s := l.shardFor(host)
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.hosts[host]
	if !exists {
		return time.Time{}, 0, false
	}
	return t.lastRequestAt, t.consecutiveFailures, true
}
