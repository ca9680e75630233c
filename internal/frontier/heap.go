package frontier

import (
	"container/heap"

	"github.com/rohmanhakim/corecrawl/internal/record"
)

// priorityHeap is a container/heap.Interface over record.UrlInfo ordered by
// record.UrlInfo.Less (higher priority first, ties broken by lower depth).
type priorityHeap []record.UrlInfo

func (h priorityHeap) Len() int            { return len(h) }
func (h priorityHeap) Less(i, j int) bool  { return h[i].Less(h[j]) }
func (h priorityHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *priorityHeap) Push(x interface{}) { *h = append(*h, x.(record.UrlInfo)) }
func (h *priorityHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*priorityHeap)(nil)
