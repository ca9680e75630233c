package robots

import (
	"fmt"

	"github.com/rohmanhakim/corecrawl/internal/telemetry"
	"github.com/rohmanhakim/corecrawl/pkg/failure"
)

type RobotsErrorCause string

const (
	ErrCauseInvalidRobotsUrl RobotsErrorCause = "invalid robots.txt URL"
	ErrCauseParseError       RobotsErrorCause = "failed to parse robots.txt"
	ErrCauseCacheFailure     RobotsErrorCause = "durable cache failure"
)

type RobotsError struct {
	Message   string
	Retryable bool
	Cause     RobotsErrorCause
}

func (e *RobotsError) Error() string {
	return fmt.Sprintf("robots error: %s: %s", e.Cause, e.Message)
}

func (e *RobotsError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

var _ failure.ClassifiedError = (*RobotsError)(nil)

// mapRobotsErrorToTelemetryCause is observational only and must never be
// used to derive control-flow decisions.
func mapRobotsErrorToTelemetryCause(err *RobotsError) telemetry.ErrorCause {
	switch err.Cause {
	case ErrCauseInvalidRobotsUrl:
		return telemetry.CauseInvariantViolation
	case ErrCauseParseError:
		return telemetry.CauseContentInvalid
	case ErrCauseCacheFailure:
		return telemetry.CauseStorageFailure
	default:
		return telemetry.CauseUnknown
	}
}
