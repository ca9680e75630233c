package telemetry

import (
	"time"

	"github.com/rs/zerolog"
)

/*
Metadata collected: fetch timestamps, HTTP status codes, content hashes,
crawl depth. Logging goals: debuggable crawl behavior, post-run
auditability, failure diagnostics. Structured logging is preferred over
free-text.
*/

// Sink is implemented by every pipeline package's observability call site.
// A Sink never returns an error and never gates control flow.
type Sink interface {
	RecordFetchEvent(event FetchEvent)
	RecordError(observedAt time.Time, packageName, action string, cause ErrorCause, errorString string, attrs []Attribute)
	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)
	Finalize(stats CrawlStats)
}

// Recorder is the zerolog-backed Sink implementation used throughout the
// crawler. Nil-safe: a zero-value Recorder discards everything so tests
// that don't care about telemetry can skip wiring a logger.
type Recorder struct {
	log zerolog.Logger
}

func NewRecorder(log zerolog.Logger) *Recorder {
	return &Recorder{log: log.With().Str("component", "telemetry").Logger()}
}

var _ Sink = (*Recorder)(nil)

func (r *Recorder) RecordFetchEvent(event FetchEvent) {
	r.log.Debug().
		Str("url", event.FetchUrl).
		Int("status", event.HttpStatus).
		Dur("duration", event.Duration).
		Str("content_type", event.ContentType).
		Int("retry_count", event.RetryCount).
		Int("depth", event.CrawlDepth).
		Msg("fetch")
}

func (r *Recorder) RecordError(observedAt time.Time, packageName, action string, cause ErrorCause, errorString string, attrs []Attribute) {
	evt := r.log.Warn().
		Str("package", packageName).
		Str("action", action).
		Int("cause", int(cause)).
		Time("observed_at", observedAt)
	for _, a := range attrs {
		evt = evt.Str(string(a.Key), a.Value)
	}
	evt.Msg(errorString)
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	evt := r.log.Info().Str("kind", string(kind)).Str("path", path)
	for _, a := range attrs {
		evt = evt.Str(string(a.Key), a.Value)
	}
	evt.Msg("artifact written")
}

func (r *Recorder) Finalize(stats CrawlStats) {
	r.log.Info().
		Int("total_pages", stats.TotalPages).
		Int("total_errors", stats.TotalErrors).
		Int("total_dropped", stats.TotalDropped).
		Int64("duration_ms", stats.DurationMs).
		Msg("crawl finished")
}
