package supervisor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rohmanhakim/corecrawl/internal/diskqueue"
	"github.com/rohmanhakim/corecrawl/internal/domainqueue"
	"github.com/rohmanhakim/corecrawl/internal/frontier"
	"github.com/rohmanhakim/corecrawl/internal/record"
	"github.com/rohmanhakim/corecrawl/internal/workqueue"
)

// Sources bundles every queue tier and shared signal the supervisor reads
// from or mutates on each tick.
type Sources struct {
	Front       *frontier.Frontier
	Domain      *domainqueue.Manager
	Work        *workqueue.Manager
	WorkerCount int
	Disk        *diskqueue.Queue // nil in FRESH mode

	EmergencySeeds []string
	PageCounter    *PageCounter
	StopFlag       *atomic.Bool
	MaxPages       int // 0 means unbounded
}

// Monitor is the supervisor: one instance per crawl process.
type Monitor struct {
	mode          Mode
	sources       Sources
	safetyTimeout time.Duration
	startedAt     time.Time

	rate           rateTracker
	emergencyUsed  int
	lowRateStreak  int
	shutdownStreak int
}

func NewMonitor(mode Mode, sources Sources, safetyTimeout time.Duration, startedAt time.Time) *Monitor {
	if mode == ModeFresh {
		safetyTimeout = 0
	} else if safetyTimeout <= 0 {
		safetyTimeout = defaultRegularSafetyTimeout
	}
	return &Monitor{
		mode:          mode,
		sources:       sources,
		safetyTimeout: safetyTimeout,
		startedAt:     startedAt,
	}
}

// Run ticks every 5s until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			m.tick(now)
		case <-ctx.Done():
			return
		}
	}
}

// Tick runs one supervisor cycle immediately; Run calls this on every
// ticker fire, and tests may call it directly to avoid waiting out the
// real 5s cadence.
func (m *Monitor) Tick(now time.Time) {
	m.tick(now)
}

func (m *Monitor) tick(now time.Time) {
	smartSize := m.sources.Front.Size()
	rate := m.rate.sample(m.sources.PageCounter.Load(), now)

	if m.mode == ModeRegular {
		m.refill(smartSize)
		m.spill()
		m.emergencyInject(smartSize, rate)
	}
	m.detectShutdown(rate, now)
	m.checkSafetyTimeout(now)
	m.checkPageBudget()
}

// checkPageBudget stops the crawl once the configured page budget is
// exhausted; a non-positive MaxPages means unbounded.
func (m *Monitor) checkPageBudget() {
	if m.sources.MaxPages <= 0 {
		return
	}
	if m.sources.PageCounter.Load() >= int64(m.sources.MaxPages) {
		m.sources.StopFlag.Store(true)
	}
}

// refill moves up to refillBatchSize URLs from the disk queue to the
// frontier when the frontier is running low.
func (m *Monitor) refill(smartSize int) {
	if m.sources.Disk == nil || smartSize >= refillThreshold {
		return
	}
	if m.sources.Disk.TotalSize() == 0 {
		return
	}
	urls, err := m.sources.Disk.Dequeue(refillBatchSize)
	if err != nil || len(urls) == 0 {
		return
	}
	for _, u := range urls {
		m.sources.Front.Enqueue(record.NewUrlInfo(u, 1.0, 0, "", record.SourceCrawl))
	}
}

const spillBatchSize = 100

// spill drains a batch from whichever source (frontier or a worker's local
// deque) is over spillThresholdFrac of its capacity into the disk queue.
func (m *Monitor) spill() {
	if m.sources.Disk == nil {
		return
	}

	fullestIsFrontier := false
	frontierRatio := fullnessRatio(m.sources.Front.Size(), m.sources.Front.Capacity())
	worstWorker, worstRatio := -1, 0.0
	for i := 0; i < m.sources.WorkerCount; i++ {
		r := fullnessRatio(m.sources.Work.Size(i), m.sources.Work.Capacity(i))
		if r > worstRatio {
			worstRatio = r
			worstWorker = i
		}
	}
	if frontierRatio >= worstRatio {
		fullestIsFrontier = true
	}

	if fullestIsFrontier {
		if frontierRatio <= spillThresholdFrac {
			return
		}
		m.spillFromFrontier()
		return
	}
	if worstRatio <= spillThresholdFrac || worstWorker < 0 {
		return
	}
	m.spillFromWorker(worstWorker)
}

func fullnessRatio(size, capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	return float64(size) / float64(capacity)
}

func (m *Monitor) spillFromFrontier() {
	urls := make([]string, 0, spillBatchSize)
	for i := 0; i < spillBatchSize; i++ {
		item, ok := m.sources.Front.Dequeue()
		if !ok {
			break
		}
		urls = append(urls, item.URL())
	}
	if len(urls) > 0 {
		_ = m.sources.Disk.Enqueue(urls)
	}
}

func (m *Monitor) spillFromWorker(workerID int) {
	urls := make([]string, 0, spillBatchSize)
	for i := 0; i < spillBatchSize; i++ {
		item, ok := m.sources.Work.PopLocal(workerID)
		if !ok {
			break
		}
		urls = append(urls, item.URL())
	}
	if len(urls) > 0 {
		_ = m.sources.Disk.Enqueue(urls)
	}
}

// emergencyInject seeds the frontier with configured emergency URLs once
// the frontier has been starved and the crawl rate has been low for two
// consecutive ticks, bounded to emergencyMaxInjections per process.
func (m *Monitor) emergencyInject(smartSize int, rate float64) {
	if smartSize < emergencyFrontierFloor && rate < emergencyRateFloor {
		m.lowRateStreak++
	} else {
		m.lowRateStreak = 0
	}
	if m.lowRateStreak < 2 || m.emergencyUsed >= emergencyMaxInjections {
		return
	}
	for _, seed := range m.sources.EmergencySeeds {
		m.sources.Front.Enqueue(record.NewUrlInfo(seed, 1.0, 0, "", record.SourceEmergency))
	}
	m.emergencyUsed++
	m.lowRateStreak = 0
}

func (m *Monitor) totalAvailable() int {
	total := m.sources.Front.Size() + m.sources.Domain.TotalQueued()
	for i := 0; i < m.sources.WorkerCount; i++ {
		total += m.sources.Work.Size(i)
	}
	if m.sources.Disk != nil {
		total += m.sources.Disk.TotalSize()
	}
	return total
}

func (m *Monitor) detectShutdown(rate float64, now time.Time) {
	if m.mode == ModeFresh && now.Sub(m.startedAt) < freshStartupGrace {
		return
	}
	if m.totalAvailable() < shutdownAvailableFloor && rate < shutdownRateFloor {
		m.shutdownStreak++
	} else {
		m.shutdownStreak = 0
	}
	if m.shutdownStreak >= shutdownConsecutiveTicks {
		m.sources.StopFlag.Store(true)
	}
}

func (m *Monitor) checkSafetyTimeout(now time.Time) {
	if m.safetyTimeout <= 0 {
		return
	}
	if now.Sub(m.startedAt) >= m.safetyTimeout {
		m.sources.StopFlag.Store(true)
	}
}
