package fetchworker

import (
	"net/http"
	"time"

	"github.com/rohmanhakim/corecrawl/internal/record"
)

const (
	// maxInFlight is the single accounting point shared by every worker's
	// connection pool: it sizes both the shared transport's
	// MaxIdleConnsPerHost and the shared in-flight semaphore's weight, so
	// neither can let the process run more concurrent requests than the
	// other is tuned to pool connections for.
	maxInFlight        = 45
	connectTimeout     = 4 * time.Second
	totalTimeout       = 10 * time.Second
	topUpAttemptBudget = 64
	idlePollTimeout    = 100 * time.Millisecond
	idleSleep          = 50 * time.Millisecond
)

// FetchContext is an in-flight request's identity, the Go-goroutine
// equivalent of the multiplexed client's request handle.
type FetchContext struct {
	Kind       record.FetchKind
	URL        string
	Host       string
	Depth      int
	RetryCount int
	StartedAt  time.Time
}

// FetchOutcome is what the poll phase consumes once a request settles.
type FetchOutcome struct {
	Context    FetchContext
	StatusCode int
	Body       []byte
	Headers    http.Header
	Err        error
	SSLError   bool
	Duration   time.Duration
}
