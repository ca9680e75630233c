package htmlworker

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"github.com/rohmanhakim/corecrawl/internal/diskqueue"
	"github.com/rohmanhakim/corecrawl/internal/frontier"
	"github.com/rohmanhakim/corecrawl/internal/linkextract"
	"github.com/rohmanhakim/corecrawl/internal/metadata"
	"github.com/rohmanhakim/corecrawl/internal/record"
	"github.com/rohmanhakim/corecrawl/internal/storage"
	"github.com/rohmanhakim/corecrawl/internal/supervisor"
	"github.com/rohmanhakim/corecrawl/internal/telemetry"
	"github.com/rohmanhakim/corecrawl/internal/workqueue"
)

// Sources bundles the queue tiers an HTML worker re-enqueues discovered
// links into, in rejection-cascade order: frontier, then the worker's own
// local deque, then the sharded disk queue.
type Sources struct {
	Front *frontier.Frontier
	Work  *workqueue.Manager
	Disk  *diskqueue.Queue // nil in FRESH mode
}

type Worker struct {
	id        int
	mode      Mode
	htmlQueue <-chan record.HtmlTask
	sources   Sources
	meta      metadata.Store
	sink      storage.Sink
	telemetry telemetry.Sink
	outputDir string
	stopFlag  *atomic.Bool
	pages     *supervisor.PageCounter

	priorityOverrides map[string]float64
	snippetOverrides  map[string]string
	allowedHosts      map[string]struct{} // empty means unrestricted

	batch []record.EnrichedRecord

	filteredCount atomic.Int64
	droppedLinks  atomic.Int64
}

// DomainOverrides holds the per-host priority_multiplier and
// snippet_selector overrides parsed from domain_configs.json.
type DomainOverrides struct {
	PriorityMultiplier map[string]float64
	SnippetSelector    map[string]string
}

func NewWorker(
	id int,
	mode Mode,
	htmlQueue <-chan record.HtmlTask,
	sources Sources,
	metaStore metadata.Store,
	sink storage.Sink,
	telemetrySink telemetry.Sink,
	outputDir string,
	stopFlag *atomic.Bool,
	pages *supervisor.PageCounter,
	overrides DomainOverrides,
	allowedHosts map[string]struct{},
) *Worker {
	return &Worker{
		id:                id,
		mode:              mode,
		htmlQueue:         htmlQueue,
		sources:           sources,
		meta:              metaStore,
		sink:              sink,
		telemetry:         telemetrySink,
		outputDir:         outputDir,
		stopFlag:          stopFlag,
		pages:             pages,
		priorityOverrides: overrides.PriorityMultiplier,
		snippetOverrides:  overrides.SnippetSelector,
		allowedHosts:      allowedHosts,
		batch:             make([]record.EnrichedRecord, 0, batchFlushSize),
	}
}

// Run consumes HtmlTasks until the channel closes or ctx is cancelled,
// flushing any partial batch before returning.
func (w *Worker) Run(ctx context.Context) {
	defer w.flush()
	for {
		select {
		case task, ok := <-w.htmlQueue:
			if !ok {
				return
			}
			w.process(task)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) process(task record.HtmlTask) {
	if !isEnglish(task.HtmlBody, task.Url) {
		w.filteredCount.Add(1)
		return
	}

	entry := w.meta.GetOrCreate(task.Url)
	enriched := record.EnrichedRecord{
		Url:                task.Url,
		Host:               task.Host,
		Timestamp:          nowTimestamp(),
		Depth:              task.Depth,
		HttpStatusCode:     task.HttpStatus,
		ContentLength:      task.ContentLength,
		ContentHash:        entry.ContentHash,
		LastCrawlTime:      entry.LastCrawlTime.UTC().Format(timeFormat),
		PreviousChangeTime: entry.PreviousChangeTime.UTC().Format(timeFormat),
		ExpectedNextCrawl:  entry.ExpectedNextCrawl.UTC().Format(timeFormat),
		BackoffMultiplier:  entry.BackoffMultiplier,
		CrawlCount:         entry.CrawlCount,
		ChangeFrequency:    entry.ChangeFrequency,
		Content:            string(task.HtmlBody),
	}

	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(task.HtmlBody)); err == nil {
		enriched.Snippet = extractSnippet(doc, w.snippetOverrides[task.Host])
	}

	w.batch = append(w.batch, enriched)
	if w.pages != nil {
		w.pages.Increment()
	}
	if len(w.batch) >= batchFlushSize || w.mode == ModeFresh {
		w.flush()
	}

	if w.mode == ModeRegular && task.Depth < maxLinkDepth && looksLikeHTML(task.HtmlBody) {
		w.extractAndEnqueueLinks(task)
	}
}

func (w *Worker) flush() {
	if len(w.batch) == 0 {
		return
	}
	_, _ = w.sink.WriteBatch(w.outputDir, w.batch)
	w.batch = w.batch[:0]
}

func looksLikeHTML(body []byte) bool {
	sample := body
	if len(sample) > 512 {
		sample = sample[:512]
	}
	return bytes.Contains(bytes.ToLower(sample), []byte("<html")) ||
		bytes.Contains(bytes.ToLower(sample), []byte("<!doctype html")) ||
		bytes.Contains(bytes.ToLower(sample), []byte("<body"))
}

func (w *Worker) extractAndEnqueueLinks(task record.HtmlTask) {
	base, err := url.Parse(task.Url)
	if err != nil {
		return
	}
	links := linkextract.Extract(task.HtmlBody, base)
	if len(links) == 0 {
		return
	}

	urls := make([]record.UrlInfo, 0, len(links))
	for _, link := range links {
		host := hostOfLink(link)
		if len(w.allowedHosts) > 0 {
			if _, ok := w.allowedHosts[host]; !ok {
				continue
			}
		}
		priority := priorityFor(host, task.Depth+1, w.priorityOverrides)
		urls = append(urls, record.NewUrlInfo(link, priority, task.Depth+1, task.Host, record.SourceCrawl))
	}

	rejected := w.sources.Front.EnqueueBatch(urls)
	var spilled []string
	for _, item := range rejected {
		if !w.sources.Work.PushLocal(w.id, item) {
			spilled = append(spilled, item.URL())
		}
	}
	if len(spilled) > 0 && w.sources.Disk != nil {
		if err := w.sources.Disk.Enqueue(spilled); err != nil {
			w.droppedLinks.Add(int64(len(spilled)))
		}
	} else if len(spilled) > 0 {
		w.droppedLinks.Add(int64(len(spilled)))
	}
}

func hostOfLink(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Host)
}

func (w *Worker) FilteredCount() int64 { return w.filteredCount.Load() }
func (w *Worker) DroppedLinks() int64  { return w.droppedLinks.Load() }

const timeFormat = "2006-01-02T15:04:05Z07:00"
