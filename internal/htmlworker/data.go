// Package htmlworker consumes HtmlTasks from the fetch workers: it filters
// non-English pages, builds EnrichedRecords and batches them to the storage
// sink, and in REGULAR mode extracts and re-enqueues outbound links.
package htmlworker

import "time"

const (
	batchFlushSize  = 25
	maxLinkDepth    = 5
	basePriority    = 1.0
	depthPenalty    = 0.15
	minPriority     = 0.1
)

// Mode selects FRESH (immediate single-record flush, no link extraction) or
// REGULAR (batched flush, link extraction + re-enqueue) behavior.
type Mode int

const (
	ModeRegular Mode = iota
	ModeFresh
)

// hostPriorityMultiplier scales the base per-link priority by a curated
// host reputation factor. Hosts absent from the table use 1.0.
var hostPriorityMultiplier = map[string]float64{
	"github.com":        1.2,
	"github.io":         1.1,
	"readthedocs.io":    1.2,
	"readthedocs.org":   1.2,
	"gitbook.io":        1.1,
	"developer.mozilla.org": 1.15,
}

// priorityFor computes a link's re-enqueue priority. overrides is the
// per-host priority_multiplier table loaded from domain_configs.json; a host
// present there takes precedence over the curated hostPriorityMultiplier
// default.
func priorityFor(host string, depth int, overrides map[string]float64) float64 {
	p := basePriority - depthPenalty*float64(depth)
	if mult, ok := overrides[host]; ok {
		p *= mult
	} else if mult, ok := hostPriorityMultiplier[host]; ok {
		p *= mult
	}
	if p < minPriority {
		p = minPriority
	}
	return p
}

func nowTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
