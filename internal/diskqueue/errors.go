package diskqueue

import (
	"fmt"

	"github.com/rohmanhakim/corecrawl/pkg/failure"
)

type DiskQueueErrorCause string

const (
	ErrCauseWriteFailure DiskQueueErrorCause = "write failed"
	ErrCauseReadFailure  DiskQueueErrorCause = "read failed"
)

type DiskQueueError struct {
	Message   string
	Retryable bool
	Cause     DiskQueueErrorCause
}

func (e *DiskQueueError) Error() string {
	return fmt.Sprintf("diskqueue error: %s: %s", e.Cause, e.Message)
}

func (e *DiskQueueError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}
