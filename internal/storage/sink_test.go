package storage_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rohmanhakim/corecrawl/internal/record"
	"github.com/rohmanhakim/corecrawl/internal/storage"
	"github.com/rohmanhakim/corecrawl/internal/telemetry"
	"github.com/stretchr/testify/require"
)

type discardSink struct{}

func (discardSink) RecordFetchEvent(telemetry.FetchEvent)                                      {}
func (discardSink) RecordError(time.Time, string, string, telemetry.ErrorCause, string, []telemetry.Attribute) {}
func (discardSink) RecordArtifact(telemetry.ArtifactKind, string, []telemetry.Attribute)        {}
func (discardSink) Finalize(telemetry.CrawlStats)                                              {}

func TestLocalSink_WriteBatch_Success(t *testing.T) {
	tempDir := t.TempDir()
	sink := storage.NewLocalSink(discardSink{})

	records := []record.EnrichedRecord{
		{Url: "https://example.com/a", Host: "example.com", Depth: 0, HttpStatusCode: 200, ContentHash: "abc"},
		{Url: "https://example.com/b", Host: "example.com", Depth: 1, HttpStatusCode: 200, ContentHash: "def"},
	}

	result, err := sink.WriteBatch(tempDir, records)
	require.Nil(t, err)
	require.Equal(t, 2, result.RecordCount())

	raw, readErr := os.ReadFile(result.Path())
	require.NoError(t, readErr)

	var roundTrip []record.EnrichedRecord
	require.NoError(t, json.Unmarshal(raw, &roundTrip))
	require.Len(t, roundTrip, 2)
	require.Equal(t, "https://example.com/a", roundTrip[0].Url)
}

func TestLocalSink_WriteBatch_DistinctFileNames(t *testing.T) {
	tempDir := t.TempDir()
	sink := storage.NewLocalSink(discardSink{})

	r1, err1 := sink.WriteBatch(tempDir, []record.EnrichedRecord{{Url: "https://example.com/a"}})
	r2, err2 := sink.WriteBatch(tempDir, []record.EnrichedRecord{{Url: "https://example.com/b"}})
	require.Nil(t, err1)
	require.Nil(t, err2)
	require.NotEqual(t, r1.Path(), r2.Path())

	entries, _ := os.ReadDir(tempDir)
	require.Len(t, entries, 2)
	require.True(t, filepath.IsAbs(r1.Path()) || filepath.Dir(r1.Path()) == tempDir)
}
