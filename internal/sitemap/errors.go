package sitemap

import (
	"fmt"

	"github.com/rohmanhakim/corecrawl/internal/telemetry"
	"github.com/rohmanhakim/corecrawl/pkg/failure"
)

type SitemapErrorCause string

const (
	ErrCauseFetchFailure SitemapErrorCause = "fetch failed"
	ErrCauseParseFailure SitemapErrorCause = "parse failed"
)

type SitemapError struct {
	Message   string
	Retryable bool
	Cause     SitemapErrorCause
	URL       string
}

func (e *SitemapError) Error() string {
	return fmt.Sprintf("sitemap error for %s: %s", e.URL, e.Cause)
}

func (e *SitemapError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func mapSitemapErrorToTelemetryCause(err *SitemapError) telemetry.ErrorCause {
	switch err.Cause {
	case ErrCauseFetchFailure:
		return telemetry.CauseNetworkFailure
	case ErrCauseParseFailure:
		return telemetry.CauseContentInvalid
	default:
		return telemetry.CauseUnknown
	}
}
