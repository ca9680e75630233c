// Package robots is the per-host robots.txt gatekeeper. It answers
// ALLOWED/DISALLOWED/DEFERRED_FETCH_STARTED for a (host, path), parking
// callers on a waitlist while the first robots.txt fetch for a host is in
// flight, and draining that waitlist atomically once update_cache lands.
package robots

import (
	"sync"
	"time"

	"github.com/rohmanhakim/corecrawl/internal/deferred"
	"github.com/rohmanhakim/corecrawl/internal/record"
	"github.com/rohmanhakim/corecrawl/internal/robots/cache"
	"github.com/rohmanhakim/corecrawl/internal/telemetry"
	"github.com/temoto/robotstxt"
)

// Gatekeeper owns all HostState for robots.txt. It uses a single lock for
// the in-memory map plus an optimistic read-then-lock pattern when loading
// from the durable store: check memory under a short-lived lock; release;
// read from durable store without lock; re-acquire to install.
type Gatekeeper struct {
	mu        sync.Mutex
	hosts     map[string]*hostState
	pending   map[string]bool // host -> fetch already in flight
	deferrals *deferred.Store
	durable   cache.Cache
	userAgent string
	sink      telemetry.Sink
}

func NewGatekeeper(userAgent string, durable cache.Cache, sink telemetry.Sink) *Gatekeeper {
	return &Gatekeeper{
		hosts:     make(map[string]*hostState),
		pending:   make(map[string]bool),
		deferrals: deferred.NewStore(),
		durable:   durable,
		userAgent: userAgent,
		sink:      sink,
	}
}

// Check returns ALLOWED, DISALLOWED, or, if no valid cache entry exists,
// records url on host's waitlist and returns DEFERRED_FETCH_STARTED. The
// caller must issue a robots.txt fetch for host exactly once per deferral
// episode; isFirstDeferral reports whether this call is the one that
// should trigger that fetch.
func (g *Gatekeeper) Check(host, path string, url record.UrlInfo) (decision Decision, isFirstDeferral bool) {
	g.mu.Lock()
	state, ok := g.hosts[host]
	if ok && !state.expired(time.Now()) {
		g.mu.Unlock()
		return g.evaluate(state, path), false
	}
	g.mu.Unlock()

	if loaded := g.loadFromDurable(host); loaded != nil {
		g.mu.Lock()
		g.hosts[host] = loaded
		g.mu.Unlock()
		return g.evaluate(loaded, path), false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	// Re-check under the write path in case another goroutine installed a
	// fresh entry between the unlock above and here.
	if state, ok := g.hosts[host]; ok && !state.expired(time.Now()) {
		return g.evaluate(state, path), false
	}
	g.deferrals.Defer(host, url)
	first := !g.pending[host]
	g.pending[host] = true
	return DeferredFetchStarted, first
}

func (g *Gatekeeper) evaluate(state *hostState, path string) Decision {
	if !state.isValid {
		return Allowed
	}
	parsed, err := robotstxt.FromStatusAndBytes(state.httpStatus, []byte(state.rawBody))
	if err != nil || parsed == nil {
		return Allowed
	}
	group := parsed.FindGroup(state.targetAgent)
	if group == nil {
		return Allowed
	}
	if group.Test(path) {
		return Allowed
	}
	return Disallowed
}

// UpdateCache parses body under httpStatus, installs the new hostState,
// then atomically drains and returns host's waitlist so the caller can
// re-enqueue those URLs. This call must be atomic with respect to new
// concurrent Check calls for the same host: a URL arriving after the
// install either observes it directly, or had already joined the waitlist
// before the drain and is replayed here.
func (g *Gatekeeper) UpdateCache(host, body string, httpStatus int) []record.UrlInfo {
	state := &hostState{
		rawBody:     body,
		fetchedAt:   time.Now(),
		httpStatus:  httpStatus,
		isValid:     true,
		targetAgent: g.userAgent,
	}

	if parsed, err := robotstxt.FromStatusAndBytes(httpStatus, []byte(body)); err != nil || parsed == nil {
		state.isValid = false
		g.recordParseFailure(host)
	} else {
		state.sitemapURLs = parsed.Sitemaps
		if group := parsed.FindGroup(g.userAgent); group != nil {
			state.crawlDelay = group.CrawlDelay
		}
	}

	g.mu.Lock()
	g.hosts[host] = state
	delete(g.pending, host)
	g.mu.Unlock()

	g.persistToDurable(host, state)

	return g.deferrals.Drain(host)
}

func (g *Gatekeeper) recordParseFailure(host string) {
	if g.sink == nil {
		return
	}
	g.sink.RecordError(time.Now(), "robots", "parse", telemetry.CauseContentInvalid,
		"failed to parse robots.txt for "+host, nil)
}

func (g *Gatekeeper) loadFromDurable(host string) *hostState {
	if g.durable == nil {
		return nil
	}
	raw, found := g.durable.Get(host)
	if !found {
		return nil
	}
	persisted, err := deserializeHostState(raw)
	if err != nil {
		return nil
	}
	state := &hostState{
		rawBody:     persisted.RawBody,
		fetchedAt:   persisted.FetchedAt,
		httpStatus:  persisted.HTTPStatus,
		isValid:     persisted.IsValid,
		sitemapURLs: persisted.SitemapURLs,
		crawlDelay:  persisted.CrawlDelay,
		targetAgent: g.userAgent,
	}
	if state.expired(time.Now()) {
		return nil
	}
	return state
}

func (g *Gatekeeper) persistToDurable(host string, state *hostState) {
	if g.durable == nil {
		return
	}
	serialized, err := serializeHostState(state)
	if err != nil {
		return
	}
	g.durable.Put(host, serialized)
}

// CrawlDelay returns the robots-declared crawl delay for host, if a valid
// cache entry exists, or zero otherwise.
func (g *Gatekeeper) CrawlDelay(host string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	state, ok := g.hosts[host]
	if !ok || state.expired(time.Now()) || !state.isValid {
		return 0
	}
	return state.crawlDelay
}

// SitemapURLs returns sitemap URLs discovered in host's robots.txt.
func (g *Gatekeeper) SitemapURLs(host string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	state, ok := g.hosts[host]
	if !ok {
		return nil
	}
	return append([]string(nil), state.sitemapURLs...)
}
