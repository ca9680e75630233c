package fetchworker

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rohmanhakim/corecrawl/internal/record"
)

var (
	sharedPoolOnce sync.Once
	sharedTransport *http.Transport
	sharedInFlight  *semaphore.Weighted
)

// connectionPool returns the process-wide transport and in-flight
// semaphore every Worker shares, built once on first use: the transport's
// MaxIdleConnsPerHost and the semaphore's weight are both derived from
// maxInFlight, so pooled connections and admitted in-flight requests are
// sized against the same budget rather than two disconnected constants.
func connectionPool() (*http.Transport, *semaphore.Weighted) {
	sharedPoolOnce.Do(func() {
		dialer := &net.Dialer{Timeout: connectTimeout}
		sharedTransport = &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: connectTimeout,
			MaxIdleConnsPerHost: maxInFlight,
		}
		sharedInFlight = semaphore.NewWeighted(int64(maxInFlight))
	})
	return sharedTransport, sharedInFlight
}

// newHTTPClient returns a client backed by the shared connection pool's
// transport; its dialer enforces a connect timeout and its overall
// request deadline is enforced by the caller's context.
func newHTTPClient() *http.Client {
	transport, _ := connectionPool()
	return &http.Client{
		Timeout:   totalTimeout,
		Transport: transport,
	}
}

func requestHeaders(userAgent string, validators record.ConditionalValidators) map[string]string {
	headers := map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
		"Accept-Encoding": "gzip, deflate, br",
		"Connection":      "keep-alive",
	}
	if validators.IfNoneMatch != "" {
		headers["If-None-Match"] = validators.IfNoneMatch
	}
	if validators.IfModifiedSince != "" {
		headers["If-Modified-Since"] = validators.IfModifiedSince
	}
	return headers
}

// performFetch issues a single GET and classifies the result into a
// FetchOutcome. It never returns an error for HTTP-level problems (4xx,
// 5xx, 304) — those are status codes the poll phase interprets; Err is
// reserved for transport-level failures.
func performFetch(ctx context.Context, client *http.Client, fc FetchContext, userAgent string, validators record.ConditionalValidators) FetchOutcome {
	start := time.Now()
	reqCtx, cancel := context.WithTimeout(ctx, totalTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fc.URL, nil)
	if err != nil {
		return FetchOutcome{Context: fc, Err: err, Duration: time.Since(start)}
	}
	for k, v := range requestHeaders(userAgent, validators) {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return FetchOutcome{Context: fc, Err: err, SSLError: isSSLError(err), Duration: time.Since(start)}
	}
	defer resp.Body.Close()

	const maxBodySize = 10 * 1024 * 1024
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if readErr != nil {
		return FetchOutcome{Context: fc, StatusCode: resp.StatusCode, Err: readErr, Duration: time.Since(start)}
	}
	if len(body) > maxBodySize {
		body = body[:maxBodySize]
	}

	return FetchOutcome{
		Context:    fc,
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header,
		Duration:   time.Since(start),
	}
}

func isSSLError(err error) bool {
	if err == nil {
		return false
	}
	var tlsErr tls.RecordHeaderError
	if errors.As(err, &tlsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "tls") || strings.Contains(msg, "certificate") || strings.Contains(msg, "x509")
}

func sslFallbackURL(rawURL string) (string, bool) {
	if strings.HasPrefix(rawURL, "https://") {
		return "http://" + strings.TrimPrefix(rawURL, "https://"), true
	}
	return "", false
}

func isHTMLContent(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return strings.Contains(contentType, "text/html") || strings.Contains(contentType, "application/xhtml")
}

func extractValidators(headers http.Header) record.ConditionalValidators {
	return record.ConditionalValidators{
		IfNoneMatch:     headers.Get("ETag"),
		IfModifiedSince: headers.Get("Last-Modified"),
	}
}
