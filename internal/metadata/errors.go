package metadata

import (
	"fmt"

	"github.com/rohmanhakim/corecrawl/pkg/failure"
)

type MetadataErrorCause string

const (
	ErrCauseStoreUnavailable MetadataErrorCause = "durable store unavailable"
	ErrCauseEncodingFailure  MetadataErrorCause = "encoding failure"
)

// MetadataError reports a durable-store failure. Per the failure semantics
// summary, a store that cannot be opened at startup is fatal; per-key
// encode/decode failures during a running crawl are recoverable (the
// caller treats the URL as having no prior metadata).
type MetadataError struct {
	Message   string
	Retryable bool
	Cause     MetadataErrorCause
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("metadata store error: %s: %s", e.Cause, e.Message)
}

func (e *MetadataError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}
