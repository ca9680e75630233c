// Package cmd is the crawler's command-line front end: flag/argument
// parsing, config-file loading, and signal-driven shutdown escalation
// around a single internal/engine.Engine run.
package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rohmanhakim/corecrawl/internal/config"
	"github.com/rohmanhakim/corecrawl/internal/engine"
	"github.com/rohmanhakim/corecrawl/internal/htmlworker"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	mode              string
	cfgFile           string
	configDir         string
	dataDir           string
	seedURLs          []string
	outputDir         string
	dryRun            bool
	maxPages          int
	userAgent         string
	timeout           time.Duration
	baseDelay         time.Duration
	jitter            time.Duration
	randomSeed        int64
	allowedHosts      []string
	allowedPathPrefix []string
	maxRuntimeMinutes int
)

var rootCmd = &cobra.Command{
	Use:   "corecrawl [max_threads] [max_depth] [max_queue_size]",
	Short: "A polite, high-throughput English-language HTML crawler.",
	Long: `corecrawl harvests English-language HTML at a sustained rate while
honoring per-host politeness rules, in one of two modes: REGULAR (deep,
breadth-first traversal seeded from a URL list and sitemaps) or FRESH
(continuous, shallow polling of RSS/Atom feeds for newly published items).

Positional arguments [max_threads] [max_depth] [max_queue_size] are only
honored in REGULAR mode.`,
	Args: cobra.MaximumNArgs(3),
	RunE: runRoot,
}

// Execute runs the root command and terminates the process with the exit
// code spec'd for the crawler: 0 clean shutdown, 1 startup failure, 1/2
// reserved for second/third signal-triggered aborts (those call os.Exit
// directly from the signal handler and never return here).
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&mode, "mode", "regular", "crawl mode: regular|fresh")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "crawler.json path (politeness/fetch/output tunables)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory holding seeds.json, feeds.json, sitemaps.json, emergency_seeds.json, domain_configs.json")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "data", "directory for durable stores (metadata, robots cache, conditional-get cache, disk queue)")
	rootCmd.PersistentFlags().StringArrayVar(&seedURLs, "seed-url", []string{}, "one or more starting URLs (can be repeated); overrides seeds.json")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "output", "root output directory for crawled content")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "crawl without writing output")
	rootCmd.PersistentFlags().IntVar(&maxPages, "max-pages", 0, "maximum number of pages to fetch (0 for unlimited)")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "", "user agent string for HTTP requests")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "timeout for HTTP requests")
	rootCmd.PersistentFlags().DurationVar(&baseDelay, "base-delay", 0, "base delay between HTTP requests to the same host")
	rootCmd.PersistentFlags().DurationVar(&jitter, "jitter", 0, "random jitter added to base delay")
	rootCmd.PersistentFlags().Int64Var(&randomSeed, "random-seed", 0, "seed for random number generation (0 for current time)")
	rootCmd.PersistentFlags().StringArrayVar(&allowedHosts, "allowed-host", []string{}, "explicit hostname allowlist (defaults to seed host)")
	rootCmd.PersistentFlags().StringArrayVar(&allowedPathPrefix, "allowed-path-prefix", []string{}, "restrict crawl to paths like `/docs`, `/guide`")
	rootCmd.PersistentFlags().IntVar(&maxRuntimeMinutes, "max-runtime", 0, "minutes before the safety timeout fires (0 selects the mode default: 30 in REGULAR, unbounded in FRESH)")
}

func runRoot(cmd *cobra.Command, args []string) error {
	crawlMode, err := parseMode(mode)
	if err != nil {
		return err
	}

	overrides, err := parsePositionalArgs(args, crawlMode)
	if err != nil {
		return err
	}

	cfg, err := buildConfig(overrides)
	if err != nil {
		return err
	}

	feeds, sitemaps, emergencySeeds, domainOverrides, err := loadAuxConfigFiles()
	if err != nil {
		return err
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	opts := engine.Options{
		Mode:            engineMode(crawlMode),
		Cfg:             cfg,
		Feeds:           feeds,
		Sitemaps:        sitemaps,
		EmergencySeeds:  emergencySeeds,
		DomainOverrides: domainOverrides,
		QueueCapacity:   overrides.maxQueueSize,
		MaxRuntime:      time.Duration(maxRuntimeMinutes) * time.Minute,
		DataDir:         dataDir,
		Logger:          logger,
	}

	eng, err := engine.New(opts)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	defer eng.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchSignals(eng)

	eng.Run(ctx)
	return nil
}

// watchSignals implements the fixed escalation policy: first SIGINT/SIGTERM
// requests a graceful stop, a second forces immediate termination, a third
// aborts the process outright.
func watchSignals(eng *engine.Engine) {
	sigCh := make(chan os.Signal, 3)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		received := 0
		for range sigCh {
			received++
			switch received {
			case 1:
				eng.RequestStop()
			case 2:
				os.Exit(1)
			default:
				os.Exit(2)
			}
		}
	}()
}

type runMode int

const (
	crawlModeRegular runMode = iota
	crawlModeFresh
)

func parseMode(raw string) (runMode, error) {
	switch raw {
	case "regular", "":
		return crawlModeRegular, nil
	case "fresh":
		return crawlModeFresh, nil
	default:
		return 0, fmt.Errorf("invalid --mode %q: must be regular or fresh", raw)
	}
}

func engineMode(m runMode) engine.Mode {
	if m == crawlModeFresh {
		return engine.ModeFresh
	}
	return engine.ModeRegular
}

// positionalOverrides holds the REGULAR-only [max_threads] [max_depth]
// [max_queue_size] positional arguments.
type positionalOverrides struct {
	maxThreads   int
	maxDepth     int
	maxQueueSize int
}

func parsePositionalArgs(args []string, m runMode) (positionalOverrides, error) {
	var out positionalOverrides
	if len(args) == 0 {
		return out, nil
	}
	if m != crawlModeRegular {
		return out, fmt.Errorf("positional arguments are only honored in REGULAR mode")
	}
	fields := []*int{&out.maxThreads, &out.maxDepth, &out.maxQueueSize}
	for i, arg := range args {
		v, err := strconv.Atoi(arg)
		if err != nil {
			return out, fmt.Errorf("positional argument %d (%q) must be an integer: %w", i+1, arg, err)
		}
		*fields[i] = v
	}
	return out, nil
}

// buildConfig: crawler.json takes precedence when given, otherwise flags
// build a config.Config from defaults. Positional thread/depth overrides
// apply last, on top of either source.
func buildConfig(overrides positionalOverrides) (config.Config, error) {
	resolvedSeeds, err := resolveSeedURLs()
	if err != nil {
		return config.Config{}, err
	}

	var cfg config.Config
	if cfgFile != "" {
		cfg, err = config.WithConfigFile(cfgFile, resolvedSeeds)
		if err != nil {
			return config.Config{}, fmt.Errorf("loading config file: %w", err)
		}
	} else {
		if len(resolvedSeeds) == 0 {
			return config.Config{}, fmt.Errorf("%w: at least one seed URL is required (--seed-url or seeds.json)", config.ErrInvalidConfig)
		}
		builder := config.WithDefault(resolvedSeeds)
		if outputDir != "" && outputDir != "output" {
			builder = builder.WithOutputDir(outputDir)
		}
		if dryRun {
			builder = builder.WithDryRun(dryRun)
		}
		if maxPages > 0 {
			builder = builder.WithMaxPages(maxPages)
		}
		if userAgent != "" {
			builder = builder.WithUserAgent(userAgent)
		}
		if timeout > 0 {
			builder = builder.WithTimeout(timeout)
		}
		if baseDelay > 0 {
			builder = builder.WithBaseDelay(baseDelay)
		}
		if jitter > 0 {
			builder = builder.WithJitter(jitter)
		}
		if randomSeed != 0 {
			builder = builder.WithRandomSeed(randomSeed)
		}
		if len(allowedHosts) > 0 {
			builder = builder.WithAllowedHosts(toSet(allowedHosts))
		}
		if len(allowedPathPrefix) > 0 {
			builder = builder.WithAllowedPathPrefix(allowedPathPrefix)
		}
		cfg, err = builder.Build()
		if err != nil {
			return config.Config{}, err
		}
	}

	if overrides.maxThreads > 0 {
		built := &cfg
		built = built.WithConcurrency(overrides.maxThreads)
		cfg, err = built.Build()
		if err != nil {
			return config.Config{}, err
		}
	}
	if overrides.maxDepth > 0 {
		built := &cfg
		built = built.WithMaxDepth(overrides.maxDepth)
		cfg, err = built.Build()
		if err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

func resolveSeedURLs() ([]url.URL, error) {
	if len(seedURLs) > 0 {
		urls := make([]url.URL, 0, len(seedURLs))
		for _, s := range seedURLs {
			u, err := url.Parse(s)
			if err != nil {
				return nil, fmt.Errorf("invalid --seed-url %q: %w", s, err)
			}
			urls = append(urls, *u)
		}
		return urls, nil
	}
	if configDir == "" {
		return nil, nil
	}
	seedsPath := filepath.Join(configDir, "seeds.json")
	if _, err := os.Stat(seedsPath); os.IsNotExist(err) {
		return nil, nil
	}
	return config.LoadSeeds(seedsPath)
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, v := range values {
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

// loadAuxConfigFiles loads feeds.json, sitemaps.json, emergency_seeds.json
// and domain_configs.json out of --config-dir. Every one of these is
// optional; an unset --config-dir runs with none of them.
func loadAuxConfigFiles() ([]engine.FeedSource, []engine.SitemapSource, []string, htmlworker.DomainOverrides, error) {
	if configDir == "" {
		return nil, nil, nil, htmlworker.DomainOverrides{}, nil
	}

	feeds, err := loadFeeds(filepath.Join(configDir, "feeds.json"))
	if err != nil {
		return nil, nil, nil, htmlworker.DomainOverrides{}, err
	}
	sitemaps, err := loadSitemaps(filepath.Join(configDir, "sitemaps.json"))
	if err != nil {
		return nil, nil, nil, htmlworker.DomainOverrides{}, err
	}
	emergencySeeds, err := config.LoadEmergencySeeds(filepath.Join(configDir, "emergency_seeds.json"))
	if err != nil {
		return nil, nil, nil, htmlworker.DomainOverrides{}, err
	}
	domainConfigs, err := config.LoadDomainConfigs(filepath.Join(configDir, "domain_configs.json"))
	if err != nil {
		return nil, nil, nil, htmlworker.DomainOverrides{}, err
	}

	overrides := htmlworker.DomainOverrides{
		PriorityMultiplier: make(map[string]float64, len(domainConfigs)),
		SnippetSelector:    make(map[string]string, len(domainConfigs)),
	}
	for host, dc := range domainConfigs {
		if dc.PriorityMultiplier != 0 {
			overrides.PriorityMultiplier[host] = dc.PriorityMultiplier
		}
		if dc.SnippetSelector != "" {
			overrides.SnippetSelector[host] = dc.SnippetSelector
		}
	}
	return feeds, sitemaps, emergencySeeds, overrides, nil
}

func loadFeeds(path string) ([]engine.FeedSource, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	entries, err := config.LoadFeeds(path)
	if err != nil {
		return nil, err
	}
	feeds := make([]engine.FeedSource, 0, len(entries))
	for _, e := range entries {
		feeds = append(feeds, engine.FeedSource{
			URL:          e.URL,
			Priority:     e.Priority,
			PollInterval: time.Duration(e.PollIntervalMinutes) * time.Minute,
		})
	}
	return feeds, nil
}

func loadSitemaps(path string) ([]engine.SitemapSource, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	entries, err := config.LoadSitemaps(path)
	if err != nil {
		return nil, err
	}
	roots := make([]engine.SitemapSource, 0, len(entries))
	for _, e := range entries {
		roots = append(roots, engine.SitemapSource{
			URL:        e.URL,
			Priority:   e.Priority,
			ParseEvery: time.Duration(e.ParseIntervalHours) * time.Hour,
		})
	}
	return roots, nil
}

// ResetFlags restores every persistent flag to its registered default (mode
// "regular", data-dir "data", output-dir "output", all others empty or zero); used between
// test cases that call runRoot indirectly through rootCmd.
func ResetFlags() {
	mode = "regular"
	cfgFile = ""
	configDir = ""
	dataDir = "data"
	seedURLs = []string{}
	outputDir = "output"
	dryRun = false
	maxPages = 0
	userAgent = ""
	timeout = 0
	baseDelay = 0
	jitter = 0
	randomSeed = 0
	allowedHosts = []string{}
	allowedPathPrefix = []string{}
	maxRuntimeMinutes = 0
}
