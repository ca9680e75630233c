package cache

import (
	"path/filepath"
	"testing"
)

func openTestBoltCache(t *testing.T) *BoltCache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "robots_cache.db")
	c, err := OpenBoltCache(path)
	if err != nil {
		t.Fatalf("OpenBoltCache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOpenBoltCache_CreatesBucket(t *testing.T) {
	c := openTestBoltCache(t)
	if c == nil {
		t.Fatal("OpenBoltCache returned nil")
	}
}

func TestBoltCache_PutAndGet(t *testing.T) {
	c := openTestBoltCache(t)

	c.Put("example.com", "User-agent: *\nDisallow: /private")

	value, found := c.Get("example.com")
	if !found {
		t.Error("expected to find example.com")
	}
	if value != "User-agent: *\nDisallow: /private" {
		t.Errorf("unexpected value: %s", value)
	}
}

func TestBoltCache_Get_NotFound(t *testing.T) {
	c := openTestBoltCache(t)

	value, found := c.Get("nonexistent.com")
	if found {
		t.Error("expected not to find nonexistent.com")
	}
	if value != "" {
		t.Errorf("expected empty string, got %s", value)
	}
}

func TestBoltCache_Put_Overwrite(t *testing.T) {
	c := openTestBoltCache(t)

	c.Put("example.com", "first")
	c.Put("example.com", "second")

	value, found := c.Get("example.com")
	if !found {
		t.Error("expected to find example.com")
	}
	if value != "second" {
		t.Errorf("expected second after overwrite, got %s", value)
	}
}

func TestBoltCache_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "robots_cache.db")

	c, err := OpenBoltCache(path)
	if err != nil {
		t.Fatalf("OpenBoltCache: %v", err)
	}
	c.Put("example.com", "cached-robots-body")
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenBoltCache(path)
	if err != nil {
		t.Fatalf("re-OpenBoltCache: %v", err)
	}
	defer reopened.Close()

	value, found := reopened.Get("example.com")
	if !found {
		t.Error("expected cached entry to survive reopen")
	}
	if value != "cached-robots-body" {
		t.Errorf("unexpected value after reopen: %s", value)
	}
}
