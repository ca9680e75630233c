package sitemap

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rohmanhakim/corecrawl/internal/frontier"
	"github.com/rohmanhakim/corecrawl/internal/record"
	"github.com/rohmanhakim/corecrawl/internal/telemetry"
)

const fetchTimeout = 10 * time.Second
const baseEntryPriority = 0.7

// Parser holds one independently-scheduled root per sitemaps.json entry
// (mirroring the Feed Poller's earliest-due model) plus a shared pending
// queue that a sitemap-index document grows with child sitemap URLs,
// drained within the same pass rather than waiting for the root's next
// scheduled parse.
type Parser struct {
	client *http.Client
	front  *frontier.Frontier
	sink   telemetry.Sink
	roots  []*rootState

	mu      sync.Mutex
	pending []string

	droppedEntries atomic.Int64
}

// NewParser builds a parser from the roots loaded out of sitemaps.json. A
// root with ParseEvery <= 0 falls back to defaultParseInterval.
func NewParser(roots []RootConfig, front *frontier.Frontier, sink telemetry.Sink) *Parser {
	now := time.Now()
	states := make([]*rootState, 0, len(roots))
	for _, r := range roots {
		if r.ParseEvery <= 0 {
			r.ParseEvery = defaultParseInterval
		}
		states = append(states, &rootState{config: r, nextPollAt: now})
	}
	return &Parser{
		client: &http.Client{Timeout: fetchTimeout},
		front:  front,
		sink:   sink,
		roots:  states,
	}
}

// Run polls each root's sitemap on its own schedule until ctx is cancelled.
func (p *Parser) Run(ctx context.Context) {
	if len(p.roots) == 0 {
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
			p.pollRoot(ctx, next)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Parser) earliestDue() *rootState {
	best := p.roots[0]
	for _, r := range p.roots[1:] {
		if r.nextPollAt.Before(best.nextPollAt) {
			best = r
		}
	}
	return best
}

// pollRoot (re-)fetches a single root and drains any children a
// sitemap-index document discovers, within this same call.
func (p *Parser) pollRoot(ctx context.Context, r *rootState) {
	r.nextPollAt = time.Now().Add(r.config.ParseEvery)

	p.enqueuePending([]string{r.config.URL})
	for {
		url, ok := p.popPending()
		if !ok {
			return
		}
		p.fetchAndProcess(ctx, url, r.config.rootWeight())
	}
}

func (p *Parser) popPending() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return "", false
	}
	url := p.pending[0]
	p.pending = p.pending[1:]
	return url, true
}

func (p *Parser) enqueuePending(urls []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, urls...)
}

func (p *Parser) fetchAndProcess(ctx context.Context, sitemapURL string, rootWeight float64) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.recordError(ErrCauseFetchFailure, sitemapURL, err.Error())
		return
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 20*1024*1024))
	if err != nil {
		p.recordError(ErrCauseFetchFailure, sitemapURL, err.Error())
		return
	}

	if index, ok := tryParseIndex(body); ok {
		children := make([]string, 0, len(index.Sitemaps))
		for _, c := range index.Sitemaps {
			if c.Loc != "" {
				children = append(children, c.Loc)
			}
		}
		p.enqueuePending(children)
		return
	}

	set, ok := tryParseURLSet(body)
	if !ok {
		p.recordError(ErrCauseParseFailure, sitemapURL, "neither sitemapindex nor urlset")
		return
	}
	for _, entry := range decodeEntries(set) {
		priority := baseEntryPriority * entry.Priority * rootWeight
		item := record.NewUrlInfo(entry.URL, priority, 0, "", record.SourceSitemap)
		if !p.front.Enqueue(item) {
			p.droppedEntries.Add(1)
		}
	}
}

func tryParseIndex(body []byte) (sitemapIndexXML, bool) {
	var idx sitemapIndexXML
	if err := xml.Unmarshal(body, &idx); err != nil || len(idx.Sitemaps) == 0 {
		return sitemapIndexXML{}, false
	}
	return idx, true
}

func tryParseURLSet(body []byte) (urlsetXML, bool) {
	var set urlsetXML
	if err := xml.Unmarshal(body, &set); err != nil || len(set.URLs) == 0 {
		return urlsetXML{}, false
	}
	return set, true
}

func decodeEntries(set urlsetXML) []Entry {
	entries := make([]Entry, 0, len(set.URLs))
	for _, u := range set.URLs {
		if u.Loc == "" {
			continue
		}
		priority := 0.5
		if parsed, err := strconv.ParseFloat(u.Priority, 64); err == nil {
			priority = parsed
		}
		entries = append(entries, Entry{
			URL:        u.Loc,
			LastMod:    u.LastMod,
			ChangeFreq: u.ChangeFreq,
			Priority:   priority,
		})
	}
	return entries
}

func (p *Parser) recordError(cause SitemapErrorCause, url, message string) {
	if p.sink == nil {
		return
	}
	p.sink.RecordError(time.Now(), "sitemap", "Parser.fetchAndProcess",
		mapSitemapErrorToTelemetryCause(&SitemapError{Cause: cause, Retryable: true, URL: url}),
		message, []telemetry.Attribute{telemetry.NewAttr(telemetry.AttrURL, url)})
}

func (p *Parser) DroppedEntries() int64 { return p.droppedEntries.Load() }
