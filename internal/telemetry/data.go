// Package telemetry is the crawler's observability sink: fetch events,
// error records and terminal crawl stats. Nothing here may influence
// control flow — components react to aggregate queue/rate signals in
// internal/supervisor, never to an individual ErrorRecord.
package telemetry

import "time"

type FetchEvent struct {
	FetchUrl    string
	HttpStatus  int
	Duration    time.Duration
	ContentType string
	RetryCount  int
	CrawlDepth  int
}

// CrawlStats is a terminal, derived summary of a completed crawl run.
// Computed once by engine.Engine.Run after every component has stopped; never read back to
// influence scheduling, retries, or termination.
type CrawlStats struct {
	TotalPages   int
	TotalErrors  int
	TotalDropped int
	DurationMs   int64
}

type ArtifactKind string

const (
	ArtifactEnrichedBatch ArtifactKind = "enriched_batch"
)

type ArtifactRecord struct {
	Kind  ArtifactKind
	Paths string
}

/*
ErrorCause is a closed, canonical classification used exclusively for
observability (logging, metrics, reporting).

Rules:
  - ErrorCause is for observability only.
  - It must never be used to derive retry, continuation, or abort decisions.
  - ErrorCause values MUST have stable, package-agnostic semantics.
  - Pipeline packages MAY map their local errors to ErrorCause, but MUST NOT
    invent new meanings.

If a failure does not clearly match a defined cause, CauseUnknown MUST be used.
*/
type ErrorCause int

const (
	CauseUnknown ErrorCause = iota
	CauseNetworkFailure
	CausePolicyDisallow
	CauseContentInvalid
	CauseStorageFailure
	CauseInvariantViolation
)

type ErrorRecord struct {
	PackageName string
	Action      string
	Cause       ErrorCause
	ErrorString string
	ObservedAt  time.Time
	Attrs       []Attribute
}

type Attribute struct {
	Key   AttributeKey
	Value string
}

func NewAttr(key AttributeKey, val string) Attribute {
	return Attribute{Key: key, Value: val}
}

type AttributeKey string

const (
	AttrTime       AttributeKey = "time"
	AttrURL        AttributeKey = "url"
	AttrHost       AttributeKey = "host"
	AttrPath       AttributeKey = "path"
	AttrDepth      AttributeKey = "depth"
	AttrField      AttributeKey = "field"
	AttrHTTPStatus AttributeKey = "http_status"
	AttrWritePath  AttributeKey = "write_path"
)
