package feed

import (
	"context"
	"hash/fnv"
	"sync/atomic"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rohmanhakim/corecrawl/internal/frontier"
	"github.com/rohmanhakim/corecrawl/internal/record"
	"github.com/rohmanhakim/corecrawl/internal/telemetry"
	"github.com/rohmanhakim/corecrawl/internal/workqueue"
)

// Mode selects whether surviving entries are pushed straight to a worker's
// local deque (FRESH) or enqueued into the frontier (REGULAR).
type Mode int

const (
	ModeRegular Mode = iota
	ModeFresh
)

// Sinks bundles the destinations a poller delivers entries to, depending on
// Mode.
type Sinks struct {
	Front       *frontier.Frontier // REGULAR
	Work        *workqueue.Manager // FRESH
	WorkerCount int                // FRESH: hash(url) mod WorkerCount picks the deque
}

type Poller struct {
	mode      Mode
	sinks     Sinks
	sink      telemetry.Sink
	parser    *gofeed.Parser
	feeds     []*feedState
	recencyWindow time.Duration

	droppedEntries atomic.Int64
}

func NewPoller(mode Mode, configs []Config, sinks Sinks, sink telemetry.Sink) *Poller {
	feeds := make([]*feedState, 0, len(configs))
	now := time.Now()
	for _, c := range configs {
		feeds = append(feeds, &feedState{
			config:          c,
			nextPollAt:      now,
			currentInterval: c.PollInterval,
		})
	}
	window := regularRecencyWindow
	if mode == ModeFresh {
		window = freshRecencyWindow
	}
	return &Poller{
		mode:          mode,
		sinks:         sinks,
		sink:          sink,
		parser:        gofeed.NewParser(),
		feeds:         feeds,
		recencyWindow: window,
	}
}

// Run polls feeds until ctx is cancelled, sleeping between each feed's due
// time (or waking early on shutdown).
func (p *Poller) Run(ctx context.Context) {
	if len(p.feeds) == 0 {
		<-ctx.Done()
		return
	}
	for {
		next := p.earliestDue()
		wait := time.Until(next.nextPollAt)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-time.After(wait):
			p.pollOne(ctx, next)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) earliestDue() *feedState {
	var best *feedState
	for _, f := range p.feeds {
		if f.disabled {
			continue
		}
		if best == nil || f.nextPollAt.Before(best.nextPollAt) {
			best = f
		}
	}
	if best == nil {
		// all disabled: park on the longest interval so Run doesn't spin
		return &feedState{nextPollAt: time.Now().Add(maxPollInterval)}
	}
	return best
}

func (p *Poller) pollOne(ctx context.Context, f *feedState) {
	parsed, err := p.parser.ParseURLWithContext(f.config.URL, ctx)
	if err != nil {
		p.recordFailure(f, ErrCauseFetchFailure, err.Error())
		return
	}

	entries := filterRecent(parsed, p.recencyWindow)
	f.consecutiveFailures = 0
	f.currentInterval = f.config.PollInterval
	f.nextPollAt = time.Now().Add(f.currentInterval)

	for _, entry := range entries {
		p.deliver(entry, f.config.priorityWeight())
	}
}

func (p *Poller) recordFailure(f *feedState, cause FeedErrorCause, message string) {
	f.consecutiveFailures++
	f.currentInterval *= 2
	if f.currentInterval > maxPollInterval {
		f.currentInterval = maxPollInterval
	}
	f.nextPollAt = time.Now().Add(f.currentInterval)
	if f.consecutiveFailures >= disableAfterFailures {
		f.disabled = true
	}
	if p.sink != nil {
		p.sink.RecordError(time.Now(), "feed", "Poller.pollOne",
			mapFeedErrorToTelemetryCause(&FeedError{Cause: cause, Retryable: true, FeedURL: f.config.URL}),
			message, []telemetry.Attribute{telemetry.NewAttr(telemetry.AttrURL, f.config.URL)})
	}
}

func filterRecent(parsed *gofeed.Feed, window time.Duration) []Entry {
	cutoff := time.Now().Add(-window)
	entries := make([]Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Link == "" {
			continue
		}
		publishedAt := time.Now()
		if item.PublishedParsed != nil {
			publishedAt = *item.PublishedParsed
		} else {
			continue
		}
		if publishedAt.Before(cutoff) {
			continue
		}
		entries = append(entries, Entry{Link: item.Link, Title: item.Title, PublishedAt: publishedAt})
	}
	return entries
}

func (p *Poller) deliver(entry Entry, priority float64) {
	item := record.NewUrlInfo(entry.Link, priority, 0, "", record.SourceFeed)
	if p.mode == ModeFresh {
		workerID := int(hashURL(entry.Link) % uint32(p.sinks.WorkerCount))
		if !p.sinks.Work.PushLocal(workerID, item) {
			p.droppedEntries.Add(1)
		}
		return
	}
	if !p.sinks.Front.Enqueue(item) {
		p.droppedEntries.Add(1)
	}
}

func (p *Poller) DroppedEntries() int64 { return p.droppedEntries.Load() }

func hashURL(url string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(url))
	return h.Sum32()
}
