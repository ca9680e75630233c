package htmlworker_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rohmanhakim/corecrawl/internal/frontier"
	"github.com/rohmanhakim/corecrawl/internal/htmlworker"
	"github.com/rohmanhakim/corecrawl/internal/metadata"
	"github.com/rohmanhakim/corecrawl/internal/record"
	"github.com/rohmanhakim/corecrawl/internal/storage"
	"github.com/rohmanhakim/corecrawl/internal/telemetry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func openMeta(t *testing.T) *metadata.BoltStore {
	t.Helper()
	store, err := metadata.Open(filepath.Join(t.TempDir(), "meta.db"))
	require.Nil(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestWorker_FiltersNonEnglishPage(t *testing.T) {
	htmlQueue := make(chan record.HtmlTask, 2)
	outputDir := t.TempDir()
	front := frontier.NewFrontier(2, 10, 1000)
	worker := htmlworker.NewWorker(0, htmlworker.ModeRegular, htmlQueue, htmlworker.Sources{
		Front: front,
		Work:  nil,
		Disk:  nil,
	}, openMeta(t), storage.NewLocalSink(telemetry.NewRecorder(zerolog.Nop())), nil, outputDir, &atomic.Bool{}, nil, htmlworker.DomainOverrides{}, nil)

	htmlQueue <- record.HtmlTask{
		Url:        "http://example.jp/page",
		Host:       "example.jp",
		HtmlBody:   []byte(`<html lang="ja"><body>` + japaneseFiller() + `</body></html>`),
		HttpStatus: 200,
	}
	close(htmlQueue)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	worker.Run(ctx)

	require.EqualValues(t, 1, worker.FilteredCount())
	entries, _ := os.ReadDir(outputDir)
	require.Empty(t, entries)
}

func japaneseFiller() string {
	out := ""
	for i := 0; i < 40; i++ {
		out += "こんにちは"
	}
	return out
}

func TestWorker_EnglishPageFlushedOnClose(t *testing.T) {
	htmlQueue := make(chan record.HtmlTask, 2)
	outputDir := t.TempDir()
	worker := htmlworker.NewWorker(0, htmlworker.ModeRegular, htmlQueue, htmlworker.Sources{
		Front: frontier.NewFrontier(2, 10, 1000),
		Work:  nil,
		Disk:  nil,
	}, openMeta(t), storage.NewLocalSink(telemetry.NewRecorder(zerolog.Nop())), nil, outputDir, &atomic.Bool{}, nil, htmlworker.DomainOverrides{}, nil)

	htmlQueue <- record.HtmlTask{
		Url:        "http://example.com/page",
		Host:       "example.com",
		HtmlBody:   []byte(`<html lang="en"><body><main>The quick brown fox and the lazy dog have a great day.</main></body></html>`),
		HttpStatus: 200,
	}
	close(htmlQueue)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	worker.Run(ctx)

	entries, err := os.ReadDir(outputDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestWorker_DeepPageDoesNotExtractLinks(t *testing.T) {
	htmlQueue := make(chan record.HtmlTask, 2)
	front := frontier.NewFrontier(2, 10, 1000)
	worker := htmlworker.NewWorker(0, htmlworker.ModeRegular, htmlQueue, htmlworker.Sources{
		Front: front,
		Work:  nil,
		Disk:  nil,
	}, openMeta(t), storage.NewLocalSink(telemetry.NewRecorder(zerolog.Nop())), nil, t.TempDir(), &atomic.Bool{}, nil, htmlworker.DomainOverrides{}, nil)

	htmlQueue <- record.HtmlTask{
		Url:        "http://example.com/deep",
		Host:       "example.com",
		Depth:      5,
		HtmlBody:   []byte(`<html lang="en"><body><main>The quick brown fox and the lazy dog have a great day.</main><a href="/more">more</a></body></html>`),
		HttpStatus: 200,
	}
	close(htmlQueue)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	worker.Run(ctx)

	require.Equal(t, 0, front.Size())
}

func TestWorker_FreshModeFlushesImmediatelyPerTask(t *testing.T) {
	htmlQueue := make(chan record.HtmlTask, 2)
	outputDir := t.TempDir()
	worker := htmlworker.NewWorker(0, htmlworker.ModeFresh, htmlQueue, htmlworker.Sources{
		Front: frontier.NewFrontier(2, 10, 1000),
		Work:  nil,
		Disk:  nil,
	}, openMeta(t), storage.NewLocalSink(telemetry.NewRecorder(zerolog.Nop())), nil, outputDir, &atomic.Bool{}, nil, htmlworker.DomainOverrides{}, nil)

	htmlQueue <- record.HtmlTask{
		Url:        "http://example.com/a",
		Host:       "example.com",
		HtmlBody:   []byte(`<html lang="en"><body><main>The quick brown fox and the lazy dog have a great day.</main></body></html>`),
		HttpStatus: 200,
	}
	htmlQueue <- record.HtmlTask{
		Url:        "http://example.com/b",
		Host:       "example.com",
		HtmlBody:   []byte(`<html lang="en"><body><main>The quick brown fox and the lazy dog have a great day too.</main></body></html>`),
		HttpStatus: 200,
	}
	close(htmlQueue)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	worker.Run(ctx)

	entries, err := os.ReadDir(outputDir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
