// Package fetchworker drives the fetch stage: one Worker per goroutine,
// each with its own top-up/admission/poll loop over one process-wide
// connection pool, consuming from the shared queue tiers and feeding the HTML
// processing queue.
package fetchworker

import (
	"context"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rohmanhakim/corecrawl/internal/diskqueue"
	"github.com/rohmanhakim/corecrawl/internal/domainqueue"
	"github.com/rohmanhakim/corecrawl/internal/frontier"
	"github.com/rohmanhakim/corecrawl/internal/metadata"
	"github.com/rohmanhakim/corecrawl/internal/ratelimit"
	"github.com/rohmanhakim/corecrawl/internal/record"
	"github.com/rohmanhakim/corecrawl/internal/robots"
	"github.com/rohmanhakim/corecrawl/internal/telemetry"
	"github.com/rohmanhakim/corecrawl/internal/workqueue"
	"github.com/rohmanhakim/corecrawl/pkg/hashutil"
	"github.com/rohmanhakim/corecrawl/pkg/urlutil"
	"golang.org/x/sync/semaphore"
)

// Sources bundles the queue tiers a worker tops up from, in admission
// priority order: domain queue, smart frontier, work-stealing queue, and
// (REGULAR mode only) the disk queue.
type Sources struct {
	Domain *domainqueue.Manager
	Front  *frontier.Frontier
	Work   *workqueue.Manager
	Disk   *diskqueue.Queue // nil in FRESH mode
}

type Worker struct {
	id         int
	sources    Sources
	gatekeeper *robots.Gatekeeper
	limiter    ratelimit.RateLimiter
	metadata   metadata.Store
	blacklist  *Blacklist
	condCache  *ConditionalGetCache
	sink       telemetry.Sink
	htmlQueue  chan record.HtmlTask
	client     *http.Client
	inFlightSem *semaphore.Weighted
	userAgent  string
	stopFlag   *atomic.Bool

	droppedHtmlTasks atomic.Int64
}

func NewWorker(
	id int,
	sources Sources,
	gatekeeper *robots.Gatekeeper,
	limiter ratelimit.RateLimiter,
	metadataStore metadata.Store,
	blacklist *Blacklist,
	condCache *ConditionalGetCache,
	sink telemetry.Sink,
	htmlQueue chan record.HtmlTask,
	userAgent string,
	stopFlag *atomic.Bool,
) *Worker {
	_, sem := connectionPool()
	return &Worker{
		id:          id,
		sources:     sources,
		gatekeeper:  gatekeeper,
		limiter:     limiter,
		metadata:    metadataStore,
		blacklist:   blacklist,
		condCache:   condCache,
		sink:        sink,
		htmlQueue:   htmlQueue,
		client:      newHTTPClient(),
		inFlightSem: sem,
		userAgent:   userAgent,
		stopFlag:    stopFlag,
	}
}

// Run is the worker's main loop: top-up, admission, request construction,
// poll, idle wait — until the stop flag is set and no work remains in
// flight.
func (w *Worker) Run(ctx context.Context) {
	completions := make(chan FetchOutcome, maxInFlight)
	inFlight := 0

	for {
		if w.stopFlag.Load() && inFlight == 0 {
			return
		}

		acquiredAny := false
		for inFlight < maxInFlight && !w.stopFlag.Load() {
			fc, ok := w.topUp()
			if !ok {
				break
			}
			acquiredAny = true
			inFlight++
			go func() {
				// The shared in-flight semaphore is the process-wide
				// connection-pool budget: acquiring here, not just bounding
				// this worker's local inFlight count, is what keeps the
				// total number of concurrent requests across every worker
				// within what the shared transport's MaxIdleConnsPerHost
				// was sized for.
				if err := w.inFlightSem.Acquire(ctx, 1); err != nil {
					completions <- FetchOutcome{Context: fc, Err: err}
					return
				}
				defer w.inFlightSem.Release(1)

				validators := record.ConditionalValidators{}
				if fc.Kind == record.FetchKindPage {
					validators = w.condCache.Get(fc.URL)
				}
				completions <- performFetch(ctx, w.client, fc, w.userAgent, validators)
			}()
		}

		select {
		case outcome := <-completions:
			inFlight--
			w.poll(outcome)
			w.drainNonBlocking(completions, &inFlight)
		case <-time.After(idlePollTimeout):
			if inFlight == 0 && !acquiredAny {
				time.Sleep(idleSleep)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) drainNonBlocking(completions chan FetchOutcome, inFlight *int) {
	for {
		select {
		case outcome := <-completions:
			*inFlight--
			w.poll(outcome)
		default:
			return
		}
	}
}

// topUp tries sources in strict priority order: domain queue (rate-limit
// ready hosts first), smart frontier, work-stealing queue, disk queue.
// Each candidate URL runs through admission checks before being returned
// as an in-flight FetchContext; admission may reject several candidates
// before one is actually admitted.
func (w *Worker) topUp() (FetchContext, bool) {
	for attempt := 0; attempt < topUpAttemptBudget; attempt++ {
		item, host, ok := w.nextCandidate()
		if !ok {
			return FetchContext{}, false
		}
		if fc, admitted := w.admit(item, host); admitted {
			return fc, true
		}
	}
	return FetchContext{}, false
}

func (w *Worker) nextCandidate() (record.UrlInfo, string, bool) {
	if item, host, ok := w.sources.Domain.TryDequeueFromAvailable(w.limiter); ok {
		return item, host, true
	}
	if item, ok := w.sources.Front.Dequeue(); ok {
		return item, hostOf(item.URL()), true
	}
	if item, ok := w.sources.Work.PopLocal(w.id); ok {
		return item, hostOf(item.URL()), true
	}
	if item, ok := w.sources.Work.TryWorkerSteal(w.id); ok {
		return item, hostOf(item.URL()), true
	}
	if w.sources.Disk != nil {
		if item, host, ok := w.popFromDisk(); ok {
			return item, host, true
		}
	}
	return record.UrlInfo{}, "", false
}

func (w *Worker) popFromDisk() (record.UrlInfo, string, bool) {
	const diskBatchSize = 8
	urls, err := w.sources.Disk.Dequeue(diskBatchSize)
	if err != nil || len(urls) == 0 {
		return record.UrlInfo{}, "", false
	}
	first := record.NewUrlInfo(urls[0], 1.0, 0, "", record.SourceCrawl)
	for _, rest := range urls[1:] {
		item := record.NewUrlInfo(rest, 1.0, 0, "", record.SourceCrawl)
		if !w.sources.Front.Enqueue(item) {
			w.sources.Work.PushLocal(w.id, item)
		}
	}
	return first, hostOf(first.URL()), true
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return urlutil.Host(*parsed)
}

// admit runs the blacklist -> robots -> rate-limiter admission chain. It
// returns a ready-to-fetch FetchContext, or false if the URL was dropped,
// parked, or turned into a robots.txt fetch instead.
func (w *Worker) admit(item record.UrlInfo, host string) (FetchContext, bool) {
	if w.blacklist.IsBlacklisted(host) {
		return FetchContext{}, false
	}

	path := pathOf(item.URL())
	decision, isFirstDeferral := w.gatekeeper.Check(host, path, item)
	switch decision {
	case robots.Disallowed:
		return FetchContext{}, false
	case robots.DeferredFetchStarted:
		if isFirstDeferral {
			w.queueRobotsFetch(host)
		}
		return FetchContext{}, false
	}

	if !w.limiter.CanRequestNow(host) {
		if !w.sources.Domain.TryQueueForHost(host, item) {
			w.sources.Front.Enqueue(item)
		}
		return FetchContext{}, false
	}

	w.limiter.RecordRequest(host)
	return FetchContext{
		Kind:      record.FetchKindPage,
		URL:       item.URL(),
		Host:      host,
		Depth:     item.Depth(),
		StartedAt: time.Now(),
	}, true
}

func (w *Worker) queueRobotsFetch(host string) {
	go func() {
		outcome := performFetch(context.Background(), w.client, FetchContext{
			Kind:      record.FetchKindRobotsTxt,
			URL:       "https://" + host + "/robots.txt",
			Host:      host,
			StartedAt: time.Now(),
		}, w.userAgent, record.ConditionalValidators{})
		w.poll(outcome)
	}()
}

func pathOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Path == "" {
		return "/"
	}
	return parsed.Path
}

// poll handles a single completed request, implementing the SSL-fallback
// / 304 / 429-503 / 200 classification.
func (w *Worker) poll(outcome FetchOutcome) {
	if outcome.Context.Kind == record.FetchKindRobotsTxt {
		w.pollRobots(outcome)
		return
	}
	w.pollPage(outcome)
}

func (w *Worker) pollRobots(outcome FetchOutcome) {
	status := outcome.StatusCode
	body := string(outcome.Body)
	if outcome.Err != nil {
		status = 0
		body = ""
	}
	drained := w.gatekeeper.UpdateCache(outcome.Context.Host, body, status)
	for _, item := range drained {
		if !w.sources.Front.Enqueue(item) {
			w.sources.Work.PushLocal(w.id, item)
		}
	}
}

func (w *Worker) pollPage(outcome FetchOutcome) {
	host := outcome.Context.Host

	if outcome.Err != nil {
		if outcome.SSLError && outcome.Context.RetryCount == 0 {
			if fallbackURL, ok := sslFallbackURL(outcome.Context.URL); ok {
				fc := outcome.Context
				fc.URL = fallbackURL
				fc.RetryCount = 1
				go func() {
					retryOutcome := performFetch(context.Background(), w.client, fc, w.userAgent, record.ConditionalValidators{})
					w.poll(retryOutcome)
				}()
				return
			}
		}
		w.blacklist.RecordFailure(host)
		if w.sink != nil {
			w.sink.RecordError(time.Now(), "fetchworker", "pollPage",
				mapFetchErrorToTelemetryCause(&FetchError{Cause: ErrCauseNetworkFailure, Retryable: true}),
				outcome.Err.Error(), nil)
		}
		return
	}

	w.blacklist.RecordSuccess(host)

	switch {
	case outcome.StatusCode == 304:
		return
	case outcome.StatusCode == 429 || outcome.StatusCode == 503:
		_ = w.metadata.RecordTemporaryFailure(outcome.Context.URL)
		return
	case outcome.StatusCode == 200 && len(outcome.Body) > 0:
		w.handleSuccessfulPage(outcome)
	}

	if w.sink != nil {
		w.sink.RecordFetchEvent(telemetry.FetchEvent{
			FetchUrl:    outcome.Context.URL,
			HttpStatus:  outcome.StatusCode,
			Duration:    outcome.Duration,
			ContentType: outcome.Headers.Get("Content-Type"),
			CrawlDepth:  outcome.Context.Depth,
		})
	}
}

func (w *Worker) handleSuccessfulPage(outcome FetchOutcome) {
	validators := extractValidators(outcome.Headers)
	w.condCache.Put(outcome.Context.URL, validators)

	hash, err := hashutil.HashBytes(outcome.Body, hashutil.HashAlgoBLAKE3)
	if err != nil {
		return
	}
	_ = w.metadata.UpdateAfterCrawl(outcome.Context.URL, hash)

	if !passesQualityFilter(outcome.Body, outcome.Headers.Get("Content-Type")) {
		return
	}

	task := record.HtmlTask{
		HtmlBody:       outcome.Body,
		Url:            outcome.Context.URL,
		Host:           outcome.Context.Host,
		Depth:          outcome.Context.Depth,
		FetchStartTime: outcome.Context.StartedAt,
		HttpStatus:     outcome.StatusCode,
		ContentLength:  len(outcome.Body),
	}

	select {
	case w.htmlQueue <- task:
	default:
		w.droppedHtmlTasks.Add(1)
	}
}

// passesQualityFilter is a quick pre-extraction filter: size within
// [500B, 10MB], at least 200 non-whitespace bytes, basic HTML shape.
func passesQualityFilter(body []byte, contentType string) bool {
	if len(body) < 500 || len(body) > 10*1024*1024 {
		return false
	}
	if contentType != "" && !isHTMLContent(contentType) {
		return false
	}
	textLen := 0
	for _, b := range body {
		if b > ' ' {
			textLen++
		}
	}
	return textLen >= 200
}

func (w *Worker) DroppedHtmlTasks() int64 {
	return w.droppedHtmlTasks.Load()
}
