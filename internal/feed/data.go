// Package feed polls configured RSS/Atom feeds on independent intervals and
// turns fresh entries into UrlInfo seeds for the frontier or, in FRESH
// mode, directly into a worker's local deque.
package feed

import "time"

const (
	maxPollInterval      = time.Hour
	disableAfterFailures = 5
	defaultEntryPriority = 0.8
	regularRecencyWindow = 24 * time.Hour
	freshRecencyWindow   = 48 * time.Hour
)

// Config is one feed loaded from feeds.json: a URL, its poll interval, and
// a 1-10 priority scaled down to the frontier's 0.1-1.0 range.
type Config struct {
	URL          string        `json:"url"`
	PollInterval time.Duration `json:"poll_interval"`
	Priority     int           `json:"priority"`
}

// priorityWeight maps a 1-10 feeds.json priority onto the frontier's
// priority scale; Priority 0 (unset) falls back to defaultEntryPriority.
func (c Config) priorityWeight() float64 {
	if c.Priority <= 0 {
		return defaultEntryPriority
	}
	if c.Priority > 10 {
		return 1.0
	}
	return float64(c.Priority) / 10.0
}

// feedState tracks a single feed's scheduling and failure history.
type feedState struct {
	config              Config
	nextPollAt          time.Time
	currentInterval     time.Duration
	consecutiveFailures int
	disabled            bool
}

// Entry is a single feed item surviving the recency filter.
type Entry struct {
	Link        string
	Title       string
	PublishedAt time.Time
}
