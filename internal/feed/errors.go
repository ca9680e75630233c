package feed

import (
	"fmt"

	"github.com/rohmanhakim/corecrawl/internal/telemetry"
	"github.com/rohmanhakim/corecrawl/pkg/failure"
)

type FeedErrorCause string

const (
	ErrCauseFetchFailure FeedErrorCause = "fetch failed"
	ErrCauseParseFailure FeedErrorCause = "parse failed"
)

type FeedError struct {
	Message   string
	Retryable bool
	Cause     FeedErrorCause
	FeedURL   string
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("feed error for %s: %s", e.FeedURL, e.Cause)
}

func (e *FeedError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func mapFeedErrorToTelemetryCause(err *FeedError) telemetry.ErrorCause {
	switch err.Cause {
	case ErrCauseFetchFailure:
		return telemetry.CauseNetworkFailure
	case ErrCauseParseFailure:
		return telemetry.CauseContentInvalid
	default:
		return telemetry.CauseUnknown
	}
}
