// Package engine wires the fixed initialization order (metadata store ->
// robots cache -> rate limiter -> queues -> connection pool -> workers ->
// supervisor) into one runnable crawl process for either mode.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rohmanhakim/corecrawl/internal/config"
	"github.com/rohmanhakim/corecrawl/internal/diskqueue"
	"github.com/rohmanhakim/corecrawl/internal/domainqueue"
	"github.com/rohmanhakim/corecrawl/internal/feed"
	"github.com/rohmanhakim/corecrawl/internal/fetchworker"
	"github.com/rohmanhakim/corecrawl/internal/frontier"
	"github.com/rohmanhakim/corecrawl/internal/htmlworker"
	"github.com/rohmanhakim/corecrawl/internal/metadata"
	"github.com/rohmanhakim/corecrawl/internal/ratelimit"
	"github.com/rohmanhakim/corecrawl/internal/record"
	"github.com/rohmanhakim/corecrawl/internal/robots"
	"github.com/rohmanhakim/corecrawl/internal/robots/cache"
	"github.com/rohmanhakim/corecrawl/internal/sitemap"
	"github.com/rohmanhakim/corecrawl/internal/storage"
	"github.com/rohmanhakim/corecrawl/internal/supervisor"
	"github.com/rohmanhakim/corecrawl/internal/telemetry"
	"github.com/rohmanhakim/corecrawl/internal/workqueue"
	"github.com/rs/zerolog"
)

const (
	frontierPartitions   = 16
	htmlQueueMultiplier  = 10
	freshHTMLWorkerCount = 2
	dequeCapacity        = 5000
)

// Mode is the process-wide REGULAR/FRESH selector surfaced to the CLI.
type Mode int

const (
	ModeRegular Mode = iota
	ModeFresh
)

// FeedSource and SitemapSource are the config-file-derived inputs an
// engine needs beyond config.Config; the CLI loads these from feeds.json /
// sitemaps.json / emergency_seeds.json / domain_configs.json.
type FeedSource struct {
	URL          string
	PollInterval time.Duration
	Priority     int
}

type SitemapSource struct {
	URL        string
	Priority   int
	ParseEvery time.Duration
}

// Options bundles everything an Engine needs to start a crawl.
type Options struct {
	Mode           Mode
	Cfg            config.Config
	Feeds          []FeedSource
	Sitemaps       []SitemapSource
	EmergencySeeds []string
	DomainOverrides htmlworker.DomainOverrides
	// QueueCapacity overrides the frontier's total capacity (split evenly
	// across its partitions); 0 falls
	// back to Cfg.MaxPages(), and finally to a generous default.
	QueueCapacity int
	// MaxRuntime overrides the supervisor's safety timeout; 0 means "use the
	// mode default" (30 minutes REGULAR, unbounded FRESH).
	MaxRuntime time.Duration
	DataDir        string // holds metadata.db, robots_cache.db, conditional_get.db, diskqueue/
	Logger         zerolog.Logger
}

// Engine owns every long-lived component for one crawl process.
type Engine struct {
	opts Options

	metaStore    *metadata.BoltStore
	robotsCache  *cache.BoltCache
	condCache    *fetchworker.ConditionalGetCache
	diskQ        *diskqueue.Queue
	telemetry    *telemetry.Recorder

	front      *frontier.Frontier
	domainMgr  *domainqueue.Manager
	workMgr    *workqueue.Manager
	htmlQueue  chan record.HtmlTask
	pages      *supervisor.PageCounter
	stopFlag   *atomic.Bool

	fetchWorkers []*fetchworker.Worker
	htmlWorkers  []*htmlworker.Worker
	feedPoller   *feed.Poller
	sitemapParser *sitemap.Parser
	monitor      *supervisor.Monitor

	startedAt time.Time
}

// New performs the fixed initialization order. A returned error is a
// startup failure: the caller should exit(1) without running anything.
func New(opts Options) (*Engine, error) {
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}

	metaStore, err := metadata.Open(filepath.Join(opts.DataDir, "metadata.db"))
	if err != nil {
		return nil, fmt.Errorf("opening metadata store: %w", err)
	}

	var robotsCache *cache.BoltCache
	var durableCache cache.Cache
	if opts.Mode == ModeRegular {
		robotsCache, err = cache.OpenBoltCache(filepath.Join(opts.DataDir, "robots_cache.db"))
		if err != nil {
			_ = metaStore.Close()
			return nil, fmt.Errorf("opening robots cache: %w", err)
		}
		durableCache = robotsCache
	} else {
		durableCache = cache.NewMemoryCache()
	}

	rec := telemetry.NewRecorder(opts.Logger)

	limiter := ratelimit.NewShardedRateLimiter()
	gatekeeper := robots.NewGatekeeper(opts.Cfg.UserAgent(), durableCache, rec)

	condCache, err := fetchworker.OpenConditionalGetCache(filepath.Join(opts.DataDir, "conditional_get.db"))
	if err != nil {
		_ = metaStore.Close()
		if robotsCache != nil {
			_ = robotsCache.Close()
		}
		return nil, fmt.Errorf("opening conditional-get cache: %w", err)
	}

	maxQueueCapacity := opts.QueueCapacity
	if maxQueueCapacity <= 0 {
		maxQueueCapacity = opts.Cfg.MaxPages()
	}
	if maxQueueCapacity <= 0 {
		maxQueueCapacity = 100000
	}
	front := frontier.NewFrontier(frontierPartitions, opts.Cfg.MaxDepth(), maxQueueCapacity)
	domainMgr := domainqueue.NewManager()

	workerCount := opts.Cfg.Concurrency()
	if workerCount <= 0 {
		workerCount = 1
	}
	workMgr := workqueue.NewManager(workerCount, dequeCapacity)

	var diskQ *diskqueue.Queue
	if opts.Mode == ModeRegular {
		diskQ, err = diskqueue.Open(filepath.Join(opts.DataDir, "diskqueue"))
		if err != nil {
			_ = metaStore.Close()
			if robotsCache != nil {
				_ = robotsCache.Close()
			}
			_ = condCache.Close()
			return nil, fmt.Errorf("opening disk queue: %w", err)
		}
	}

	for _, seed := range opts.Cfg.SeedURLs() {
		front.Enqueue(record.NewUrlInfo(seed.String(), 1.0, 0, "", record.SourceSeed))
	}

	htmlWorkerCount := maxInt(1, workerCount/3)
	if opts.Mode == ModeFresh {
		htmlWorkerCount = freshHTMLWorkerCount
	}
	htmlQueue := make(chan record.HtmlTask, workerCount*htmlQueueMultiplier)

	blacklist := fetchworker.NewBlacklist(opts.Cfg.BlacklistThreshold())
	pages := &supervisor.PageCounter{}
	stopFlag := &atomic.Bool{}

	fetchSources := fetchworker.Sources{Domain: domainMgr, Front: front, Work: workMgr, Disk: diskQ}
	fetchWorkers := make([]*fetchworker.Worker, 0, workerCount)
	for i := 0; i < workerCount; i++ {
		fetchWorkers = append(fetchWorkers, fetchworker.NewWorker(
			i, fetchSources, gatekeeper, limiter, metaStore, blacklist, condCache, rec,
			htmlQueue, opts.Cfg.UserAgent(), stopFlag,
		))
	}

	htmlSources := htmlworker.Sources{Front: front, Work: workMgr, Disk: diskQ}
	htmlMode := htmlworker.ModeRegular
	if opts.Mode == ModeFresh {
		htmlMode = htmlworker.ModeFresh
	}
	allowedHosts := opts.Cfg.AllowedHosts()
	htmlWorkers := make([]*htmlworker.Worker, 0, htmlWorkerCount)
	for i := 0; i < htmlWorkerCount; i++ {
		htmlWorkers = append(htmlWorkers, htmlworker.NewWorker(
			i, htmlMode, htmlQueue, htmlSources, metaStore,
			storage.NewLocalSink(rec), rec, opts.Cfg.OutputDir(), stopFlag,
			pages, opts.DomainOverrides, allowedHosts,
		))
	}

	var feedPoller *feed.Poller
	if len(opts.Feeds) > 0 {
		feedMode := feed.ModeRegular
		if opts.Mode == ModeFresh {
			feedMode = feed.ModeFresh
		}
		feedConfigs := make([]feed.Config, 0, len(opts.Feeds))
		for _, f := range opts.Feeds {
			feedConfigs = append(feedConfigs, feed.Config{URL: f.URL, PollInterval: f.PollInterval, Priority: f.Priority})
		}
		feedPoller = feed.NewPoller(feedMode, feedConfigs, feed.Sinks{Front: front, Work: workMgr, WorkerCount: workerCount}, rec)
	}

	var sitemapParser *sitemap.Parser
	if opts.Mode == ModeRegular && len(opts.Sitemaps) > 0 {
		roots := make([]sitemap.RootConfig, 0, len(opts.Sitemaps))
		for _, s := range opts.Sitemaps {
			roots = append(roots, sitemap.RootConfig{URL: s.URL, Priority: s.Priority, ParseEvery: s.ParseEvery})
		}
		sitemapParser = sitemap.NewParser(roots, front, rec)
	}

	monMode := supervisor.ModeRegular
	if opts.Mode == ModeFresh {
		monMode = supervisor.ModeFresh
	}
	sources := supervisor.Sources{
		Front: front, Domain: domainMgr, Work: workMgr, WorkerCount: workerCount, Disk: diskQ,
		EmergencySeeds: opts.EmergencySeeds, PageCounter: pages, StopFlag: stopFlag,
		MaxPages: opts.Cfg.MaxPages(),
	}
	startedAt := time.Now()
	monitor := supervisor.NewMonitor(monMode, sources, opts.MaxRuntime, startedAt)

	return &Engine{
		opts:          opts,
		metaStore:     metaStore,
		robotsCache:   robotsCache,
		condCache:     condCache,
		diskQ:         diskQ,
		telemetry:     rec,
		front:         front,
		domainMgr:     domainMgr,
		workMgr:       workMgr,
		htmlQueue:     htmlQueue,
		pages:         pages,
		stopFlag:      stopFlag,
		fetchWorkers:  fetchWorkers,
		htmlWorkers:   htmlWorkers,
		feedPoller:    feedPoller,
		sitemapParser: sitemapParser,
		monitor:       monitor,
		startedAt:     startedAt,
	}, nil
}

// Run starts every component and blocks until ctx is cancelled (external
// shutdown request) or the internal stop flag is observed set. Either way it
// then cancels every component's context and returns once all their Run
// loops have returned; fetches still in flight at that point are abandoned.
func (e *Engine) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var group errgroup.Group

	for _, fw := range e.fetchWorkers {
		w := fw
		group.Go(func() error {
			w.Run(runCtx)
			return nil
		})
	}
	for _, hw := range e.htmlWorkers {
		w := hw
		group.Go(func() error {
			w.Run(runCtx)
			return nil
		})
	}
	if e.feedPoller != nil {
		group.Go(func() error {
			e.feedPoller.Run(runCtx)
			return nil
		})
	}
	if e.sitemapParser != nil {
		group.Go(func() error {
			e.sitemapParser.Run(runCtx)
			return nil
		})
	}

	group.Go(func() error {
		e.monitor.Run(runCtx)
		return nil
	})

	e.watchStopFlag(runCtx, cancel)

	_ = group.Wait()
	close(e.htmlQueue)

	e.telemetry.Finalize(telemetry.CrawlStats{
		TotalPages:   int(e.pages.Load()),
		TotalDropped: int(e.totalDropped()),
		DurationMs:   time.Since(e.startedAt).Milliseconds(),
	})
}

// watchStopFlag blocks until either ctx is cancelled or the process-wide
// stop flag transitions true, then cancels runCtx so every Run loop exits.
func (e *Engine) watchStopFlag(ctx context.Context, cancel context.CancelFunc) {
	const pollInterval = 200 * time.Millisecond
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.stopFlag.Load() {
				cancel()
				return
			}
		}
	}
}

func (e *Engine) totalDropped() int64 {
	var total int64
	for _, fw := range e.fetchWorkers {
		total += fw.DroppedHtmlTasks()
	}
	for _, hw := range e.htmlWorkers {
		total += hw.DroppedLinks()
	}
	if e.feedPoller != nil {
		total += e.feedPoller.DroppedEntries()
	}
	if e.sitemapParser != nil {
		total += e.sitemapParser.DroppedEntries()
	}
	return total
}

// RequestStop sets the process-wide stop flag, the cooperative signal every
// worker loop polls.
func (e *Engine) RequestStop() {
	e.stopFlag.Store(true)
}

// Close releases every durable store this engine opened. Safe to call once
// after Run returns.
func (e *Engine) Close() {
	_ = e.metaStore.Close()
	if e.robotsCache != nil {
		_ = e.robotsCache.Close()
	}
	_ = e.condCache.Close()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
