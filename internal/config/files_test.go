package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rohmanhakim/corecrawl/internal/config"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadSeeds_StripsCommentsAndParsesURLs(t *testing.T) {
	path := writeTempFile(t, "seeds.json", `[
  // primary entrypoint
  "https://example.org/docs",
  # secondary entrypoint
  "https://example.org/guide"
]`)

	seeds, err := config.LoadSeeds(path)
	if err != nil {
		t.Fatalf("LoadSeeds() error = %v", err)
	}
	if len(seeds) != 2 {
		t.Fatalf("expected 2 seeds, got %d", len(seeds))
	}
	if seeds[0].Host != "example.org" || seeds[0].Path != "/docs" {
		t.Errorf("unexpected first seed: %v", seeds[0])
	}
}

func TestLoadFeeds_ParsesEntries(t *testing.T) {
	path := writeTempFile(t, "feeds.json", `[
  {"url": "https://blog.example.org/feed.xml", "priority": 5, "poll_interval_minutes": 30}
]`)

	feeds, err := config.LoadFeeds(path)
	if err != nil {
		t.Fatalf("LoadFeeds() error = %v", err)
	}
	if len(feeds) != 1 {
		t.Fatalf("expected 1 feed, got %d", len(feeds))
	}
	if feeds[0].PollIntervalMinutes != 30 {
		t.Errorf("expected PollIntervalMinutes 30, got %d", feeds[0].PollIntervalMinutes)
	}
}

func TestLoadSitemaps_ParsesEntries(t *testing.T) {
	path := writeTempFile(t, "sitemaps.json", `[
  {"url": "https://example.org/sitemap.xml", "priority": 3, "parse_interval_hours": 6}
]`)

	sitemaps, err := config.LoadSitemaps(path)
	if err != nil {
		t.Fatalf("LoadSitemaps() error = %v", err)
	}
	if len(sitemaps) != 1 || sitemaps[0].ParseIntervalHours != 6 {
		t.Errorf("unexpected sitemaps: %v", sitemaps)
	}
}

func TestLoadEmergencySeeds_MissingFileReturnsEmpty(t *testing.T) {
	seeds, err := config.LoadEmergencySeeds(filepath.Join(t.TempDir(), "emergency_seeds.json"))
	if err != nil {
		t.Fatalf("LoadEmergencySeeds() error = %v", err)
	}
	if len(seeds) != 0 {
		t.Errorf("expected no emergency seeds, got %v", seeds)
	}
}

func TestLoadEmergencySeeds_ParsesObject(t *testing.T) {
	path := writeTempFile(t, "emergency_seeds.json", `{
  "emergency_seeds": ["https://example.org/", "https://example.org/start"]
}`)

	seeds, err := config.LoadEmergencySeeds(path)
	if err != nil {
		t.Fatalf("LoadEmergencySeeds() error = %v", err)
	}
	if len(seeds) != 2 {
		t.Fatalf("expected 2 emergency seeds, got %d", len(seeds))
	}
}

func TestLoadDomainConfigs_ParsesOverrides(t *testing.T) {
	path := writeTempFile(t, "domain_configs.json", `{
  "github.com": {"priority_multiplier": 1.2},
  "docs.example.org": {"snippet_selector": ".markdown-body"}
}`)

	overrides, err := config.LoadDomainConfigs(path)
	if err != nil {
		t.Fatalf("LoadDomainConfigs() error = %v", err)
	}
	if overrides["github.com"].PriorityMultiplier != 1.2 {
		t.Errorf("unexpected override for github.com: %v", overrides["github.com"])
	}
	if overrides["docs.example.org"].SnippetSelector != ".markdown-body" {
		t.Errorf("unexpected override for docs.example.org: %v", overrides["docs.example.org"])
	}
}

func TestLoadDomainConfigs_MissingFileReturnsEmptyMap(t *testing.T) {
	overrides, err := config.LoadDomainConfigs(filepath.Join(t.TempDir(), "domain_configs.json"))
	if err != nil {
		t.Fatalf("LoadDomainConfigs() error = %v", err)
	}
	if len(overrides) != 0 {
		t.Errorf("expected empty map, got %v", overrides)
	}
}
