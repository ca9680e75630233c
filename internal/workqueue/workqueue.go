// Package workqueue implements per-worker double-ended deques for newly
// discovered links, stealable across workers. A fetch worker turns to its
// own deque, and then to stealing, only after the per-domain queue manager
// and the frontier have nothing ready.
package workqueue

import (
	"math/rand"
	"sync"

	"github.com/rohmanhakim/corecrawl/internal/record"
)

const DefaultCapacity = 500

type deque struct {
	mu       sync.Mutex
	items    []record.UrlInfo
	capacity int
}

// Manager owns one deque per worker and routes push/pop/steal operations
// to the correct deque by worker id.
type Manager struct {
	deques []*deque
	rng    *rand.Rand
	rngMu  sync.Mutex
}

func NewManager(workerCount int, capacity int) *Manager {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	m := &Manager{
		deques: make([]*deque, workerCount),
		rng:    rand.New(rand.NewSource(1)),
	}
	for i := range m.deques {
		m.deques[i] = &deque{capacity: capacity}
	}
	return m
}

// PushLocal appends to the back of worker_id's deque; fails if at capacity.
func (m *Manager) PushLocal(workerID int, item record.UrlInfo) bool {
	d := m.deques[workerID]
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.items) >= d.capacity {
		return false
	}
	d.items = append(d.items, item)
	return true
}

// PopLocal pops from the back of worker_id's deque (LIFO, for cache
// locality on the worker's own freshly-discovered links).
func (m *Manager) PopLocal(workerID int) (record.UrlInfo, bool) {
	d := m.deques[workerID]
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.items)
	if n == 0 {
		return record.UrlInfo{}, false
	}
	item := d.items[n-1]
	d.items = d.items[:n-1]
	return item, true
}

// TryWorkerSteal pops from the front of a pseudo-randomly chosen other
// worker's deque, preserving FIFO order for stolen items.
func (m *Manager) TryWorkerSteal(thiefID int) (record.UrlInfo, bool) {
	n := len(m.deques)
	if n <= 1 {
		return record.UrlInfo{}, false
	}
	start := m.randIntn(n)
	for i := 0; i < n; i++ {
		victimID := (start + i) % n
		if victimID == thiefID {
			continue
		}
		if item, ok := m.stealFrom(victimID); ok {
			return item, true
		}
	}
	return record.UrlInfo{}, false
}

func (m *Manager) stealFrom(victimID int) (record.UrlInfo, bool) {
	d := m.deques[victimID]
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.items) == 0 {
		return record.UrlInfo{}, false
	}
	item := d.items[0]
	d.items = d.items[1:]
	return item, true
}

func (m *Manager) randIntn(n int) int {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	return m.rng.Intn(n)
}

// Size returns the number of items currently queued for worker_id.
func (m *Manager) Size(workerID int) int {
	d := m.deques[workerID]
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

func (m *Manager) Capacity(workerID int) int {
	return m.deques[workerID].capacity
}
