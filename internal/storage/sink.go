package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rohmanhakim/corecrawl/internal/record"
	"github.com/rohmanhakim/corecrawl/internal/telemetry"
	"github.com/rohmanhakim/corecrawl/pkg/failure"
	"github.com/rohmanhakim/corecrawl/pkg/fileutil"
	"github.com/rohmanhakim/corecrawl/pkg/retry"
	"github.com/rohmanhakim/corecrawl/pkg/timeutil"
)

/*
Responsibilities
- Persist flushed EnrichedRecord batches as JSON array files
- Deterministic, collision-free file names
- Retry a failed flush once before dropping the batch
*/

type Sink interface {
	WriteBatch(outputDir string, records []record.EnrichedRecord) (BatchWriteResult, failure.ClassifiedError)
}

type LocalSink struct {
	telemetrySink telemetry.Sink
	batchSeq      atomic.Int64
	runID         string
}

// NewLocalSink stamps every batch file this sink ever writes with a random
// run ID, so output from two crawl runs started within the same millisecond
// never collides in a shared outputDir.
func NewLocalSink(telemetrySink telemetry.Sink) *LocalSink {
	return &LocalSink{telemetrySink: telemetrySink, runID: uuid.NewString()[:8]}
}

var _ Sink = (*LocalSink)(nil)

func (s *LocalSink) WriteBatch(outputDir string, records []record.EnrichedRecord) (BatchWriteResult, failure.ClassifiedError) {
	retryParam := retry.NewRetryParam(
		0,
		0,
		1,
		2,
		timeutil.NewBackoffParam(0, 1.0, 0),
	)
	result := retry.Retry(retryParam, func() (BatchWriteResult, failure.ClassifiedError) {
		return s.writeOnce(outputDir, records)
	})
	if result.IsFailure() {
		s.telemetrySink.RecordError(
			time.Now(),
			"storage",
			"LocalSink.WriteBatch",
			telemetry.CauseStorageFailure,
			result.Err().Error(),
			[]telemetry.Attribute{telemetry.NewAttr(telemetry.AttrWritePath, outputDir)},
		)
		return BatchWriteResult{}, result.Err()
	}
	writeResult := result.Value()
	s.telemetrySink.RecordArtifact(
		telemetry.ArtifactEnrichedBatch,
		writeResult.Path(),
		[]telemetry.Attribute{telemetry.NewAttr(telemetry.AttrField, fmt.Sprintf("%d", writeResult.RecordCount()))},
	)
	return writeResult, nil
}

func (s *LocalSink) writeOnce(outputDir string, records []record.EnrichedRecord) (BatchWriteResult, failure.ClassifiedError) {
	if err := fileutil.EnsureDir(outputDir); err != nil {
		var fileErr *fileutil.FileError
		errors.As(err, &fileErr)
		return BatchWriteResult{}, &StorageError{
			Message:   err.Error(),
			Retryable: true,
			Cause:     ErrCausePathError,
			Path:      outputDir,
		}
	}

	batchID := s.batchSeq.Add(1)
	filename := fmt.Sprintf("%s-%s-%06d.json", time.Now().UTC().Format("20060102T150405.000Z"), s.runID, batchID)
	fullPath := filepath.Join(outputDir, filename)

	content, jsonErr := json.Marshal(records)
	if jsonErr != nil {
		return BatchWriteResult{}, &StorageError{
			Message:   jsonErr.Error(),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
			Path:      fullPath,
		}
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		cause := ErrCauseWriteFailure
		retryable := false
		if errors.Is(err, syscall.ENOSPC) {
			cause = ErrCauseDiskFull
			retryable = true
		}
		return BatchWriteResult{}, &StorageError{
			Message:   err.Error(),
			Retryable: retryable,
			Cause:     cause,
			Path:      fullPath,
		}
	}

	return NewBatchWriteResult(fullPath, len(records)), nil
}
