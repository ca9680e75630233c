package frontier

/*
Frontier Responsibilities
- Maintain approximate-priority ordering of undispatched URLs
- Deduplicate URLs for the lifetime of the process
- Track and bound crawl depth
- Prevent infinite traversal and unbounded memory growth

Knows nothing about fetching, extraction, or storage: a data structure +
admission policy, not a pipeline executor.

Sharded across partitionCount partitions by hash(url) so that producers and
consumers touching different URLs do not contend. Ordering within a single
partition is strict priority order (a container/heap); global ordering is
only approximate, by design, for throughput.
*/

import (
	"container/heap"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/rohmanhakim/corecrawl/internal/record"
)

const defaultPartitionCount = 16

type partition struct {
	mu       sync.Mutex
	items    priorityHeap
	seen     Set[string]
	capacity int
}

type Frontier struct {
	partitions []*partition
	maxDepth   int
}

func NewFrontier(partitionCount int, maxDepth int, maxCapacity int) *Frontier {
	if partitionCount <= 0 {
		partitionCount = defaultPartitionCount
	}
	perPartitionCapacity := maxCapacity / partitionCount
	f := &Frontier{
		partitions: make([]*partition, partitionCount),
		maxDepth:   maxDepth,
	}
	for i := range f.partitions {
		f.partitions[i] = &partition{
			items:    make(priorityHeap, 0),
			seen:     NewSet[string](),
			capacity: perPartitionCapacity,
		}
	}
	return f
}

func (f *Frontier) partitionFor(url string) *partition {
	h := fnv.New32a()
	_, _ = h.Write([]byte(url))
	return f.partitions[h.Sum32()%uint32(len(f.partitions))]
}

// Enqueue rejects a URL whose depth exceeds max_depth, that is already
// known to the frontier, or whose partition is at capacity. Otherwise it
// inserts the URL and returns true.
func (f *Frontier) Enqueue(info record.UrlInfo) bool {
	if info.Depth() > f.maxDepth {
		return false
	}
	p := f.partitionFor(info.URL())
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.seen.Contains(info.URL()) {
		return false
	}
	if p.capacity > 0 && len(p.items) >= p.capacity {
		return false
	}
	p.seen.Add(info.URL())
	heap.Push(&p.items, info)
	return true
}

// EnqueueBatch is the bulk variant; it returns the subset of urls rejected
// by Enqueue so callers can decide spill targets.
func (f *Frontier) EnqueueBatch(urls []record.UrlInfo) []record.UrlInfo {
	var rejected []record.UrlInfo
	for _, u := range urls {
		if !f.Enqueue(u) {
			rejected = append(rejected, u)
		}
	}
	return rejected
}

// dequeueCursor rotates the scan start point across calls so that, under
// sustained load, partitions are drained roughly evenly rather than always
// favoring partition 0.
var dequeueCursor atomic.Uint32

// Dequeue pops the highest-priority URL from the first non-empty partition
// found scanning from a rotating start point. Per-partition ordering is
// strict priority order; global ordering across partitions is only
// approximate, by design.
func (f *Frontier) Dequeue() (record.UrlInfo, bool) {
	n := len(f.partitions)
	start := int(dequeueCursor.Add(1)) % n

	for i := 0; i < n; i++ {
		p := f.partitions[(start+i)%n]
		p.mu.Lock()
		if len(p.items) > 0 {
			item := heap.Pop(&p.items).(record.UrlInfo)
			p.mu.Unlock()
			return item, true
		}
		p.mu.Unlock()
	}
	return record.UrlInfo{}, false
}

// Size returns the total number of URLs currently queued across all
// partitions.
func (f *Frontier) Size() int {
	total := 0
	for _, p := range f.partitions {
		p.mu.Lock()
		total += len(p.items)
		p.mu.Unlock()
	}
	return total
}

// Capacity returns the frontier's total configured capacity across all
// partitions (0 means unbounded).
func (f *Frontier) Capacity() int {
	total := 0
	for _, p := range f.partitions {
		p.mu.Lock()
		total += p.capacity
		p.mu.Unlock()
	}
	return total
}

func (f *Frontier) SetMaxDepth(maxDepth int) {
	f.maxDepth = maxDepth
}

func (f *Frontier) SetMaxCapacity(maxCapacity int) {
	perPartitionCapacity := maxCapacity / len(f.partitions)
	for _, p := range f.partitions {
		p.mu.Lock()
		p.capacity = perPartitionCapacity
		p.mu.Unlock()
	}
}
