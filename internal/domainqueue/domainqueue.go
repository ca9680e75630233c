// Package domainqueue holds URLs whose host is currently rate-limited, so a
// fetch worker that dequeues a not-yet-ready URL can park it here rather
// than round-tripping it through the frontier.
package domainqueue

import (
	"sync"

	"github.com/rohmanhakim/corecrawl/internal/ratelimit"
	"github.com/rohmanhakim/corecrawl/internal/record"
)

const maxPerHost = 100

type hostQueue struct {
	mu    sync.Mutex
	items []record.UrlInfo
}

// Manager is a shared mapping host -> FIFO of UrlInfo, guarded by a coarse
// lock on the map plus a per-host lock on each FIFO.
type Manager struct {
	mapMu sync.RWMutex
	hosts map[string]*hostQueue
}

func NewManager() *Manager {
	return &Manager{hosts: make(map[string]*hostQueue)}
}

// TryQueueForHost appends url to host's FIFO if it has fewer than 100
// entries.
func (m *Manager) TryQueueForHost(host string, url record.UrlInfo) bool {
	q := m.queueFor(host)
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= maxPerHost {
		return false
	}
	q.items = append(q.items, url)
	return true
}

func (m *Manager) queueFor(host string) *hostQueue {
	m.mapMu.RLock()
	q, ok := m.hosts[host]
	m.mapMu.RUnlock()
	if ok {
		return q
	}

	m.mapMu.Lock()
	defer m.mapMu.Unlock()
	if q, ok := m.hosts[host]; ok {
		return q
	}
	q = &hostQueue{}
	m.hosts[host] = q
	return q
}

// TryDequeueFromAvailable scans the map and returns the first URL whose
// host now passes rateLimiter.CanRequestNow. Because the caller only
// receives URLs already confirmed ready, it must not re-park the result
// through the rate-limit check path again.
func (m *Manager) TryDequeueFromAvailable(rateLimiter ratelimit.RateLimiter) (record.UrlInfo, string, bool) {
	m.mapMu.RLock()
	hosts := make([]string, 0, len(m.hosts))
	for h := range m.hosts {
		hosts = append(hosts, h)
	}
	m.mapMu.RUnlock()

	for _, host := range hosts {
		q := m.queueFor(host)
		q.mu.Lock()
		if len(q.items) > 0 && rateLimiter.CanRequestNow(host) {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, host, true
		}
		q.mu.Unlock()
	}
	return record.UrlInfo{}, "", false
}

// TotalQueued returns the sum of all per-host FIFO lengths.
func (m *Manager) TotalQueued() int {
	m.mapMu.RLock()
	hosts := make([]*hostQueue, 0, len(m.hosts))
	for _, q := range m.hosts {
		hosts = append(hosts, q)
	}
	m.mapMu.RUnlock()

	total := 0
	for _, q := range hosts {
		q.mu.Lock()
		total += len(q.items)
		q.mu.Unlock()
	}
	return total
}
