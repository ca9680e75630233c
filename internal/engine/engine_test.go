package engine_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rohmanhakim/corecrawl/internal/config"
	"github.com/rohmanhakim/corecrawl/internal/engine"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, seedURL string) config.Config {
	t.Helper()
	u, err := url.Parse(seedURL)
	require.NoError(t, err)
	cfg, err := config.WithDefault([]url.URL{*u}).
		WithMaxDepth(2).
		WithMaxPages(5).
		WithConcurrency(2).
		Build()
	require.NoError(t, err)
	return cfg
}

func TestNew_StartupFailure_UnopenableMetadataStore(t *testing.T) {
	dataDir := t.TempDir()
	// Pre-create metadata.db as a directory so bolt.Open fails on it.
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "metadata.db"), 0o755))

	_, err := engine.New(engine.Options{
		Mode:    engine.ModeRegular,
		Cfg:     testConfig(t, "https://example.com"),
		DataDir: dataDir,
		Logger:  zerolog.Nop(),
	})
	require.Error(t, err)
}

func TestNew_StartupFailure_UnopenableRobotsCache(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "robots_cache.db"), 0o755))

	_, err := engine.New(engine.Options{
		Mode:    engine.ModeRegular,
		Cfg:     testConfig(t, "https://example.com"),
		DataDir: dataDir,
		Logger:  zerolog.Nop(),
	})
	require.Error(t, err)

	// The metadata store opened fine before the robots cache failed, so its
	// file exists even though New returned an error.
	_, statErr := os.Stat(filepath.Join(dataDir, "metadata.db"))
	require.NoError(t, statErr)
}

func TestNew_FreshModeSkipsRobotsCacheAndDiskQueue(t *testing.T) {
	dataDir := t.TempDir()
	e, err := engine.New(engine.Options{
		Mode:    engine.ModeFresh,
		Cfg:     testConfig(t, "https://example.com"),
		DataDir: dataDir,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	defer e.Close()

	_, statErr := os.Stat(filepath.Join(dataDir, "robots_cache.db"))
	require.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(dataDir, "diskqueue"))
	require.True(t, os.IsNotExist(statErr))
}

func TestNew_RegularModeOpensAllStores(t *testing.T) {
	dataDir := t.TempDir()
	e, err := engine.New(engine.Options{
		Mode:    engine.ModeRegular,
		Cfg:     testConfig(t, "https://example.com"),
		DataDir: dataDir,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	defer e.Close()

	for _, name := range []string{"metadata.db", "robots_cache.db", "conditional_get.db", "diskqueue"} {
		_, statErr := os.Stat(filepath.Join(dataDir, name))
		require.NoErrorf(t, statErr, "expected %s to exist", name)
	}
}

// TestRun_GracefulShutdownOnContextCancel exercises a full fixed-order
// wiring against a real HTTP server and confirms Run returns once its
// context is cancelled, instead of hanging on any worker loop.
func TestRun_GracefulShutdownOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body><p>hello world, this page has enough text to pass the extraction thresholds used by the crawler under test.</p></body></html>`))
		}
	}))
	defer srv.Close()

	dataDir := t.TempDir()
	outputDir := t.TempDir()

	cfg, err := config.WithDefault([]url.URL{mustParseURL(t, srv.URL)}).
		WithMaxDepth(1).
		WithMaxPages(10).
		WithConcurrency(2).
		WithOutputDir(outputDir).
		WithTimeout(5 * time.Second).
		Build()
	require.NoError(t, err)

	e, err := engine.New(engine.Options{
		Mode:    engine.ModeRegular,
		Cfg:     cfg,
		DataDir: dataDir,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestRun_RequestStopEndsRunPromptly(t *testing.T) {
	dataDir := t.TempDir()
	e, err := engine.New(engine.Options{
		Mode:    engine.ModeFresh,
		Cfg:     testConfig(t, "https://example.invalid"),
		DataDir: dataDir,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	defer e.Close()

	done := make(chan struct{})
	go func() {
		e.Run(context.Background())
		close(done)
	}()

	e.RequestStop()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after RequestStop")
	}
}

func mustParseURL(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return *u
}
