package domainqueue_test

import (
	"testing"

	"github.com/rohmanhakim/corecrawl/internal/domainqueue"
	"github.com/rohmanhakim/corecrawl/internal/ratelimit"
	"github.com/rohmanhakim/corecrawl/internal/record"
	"github.com/stretchr/testify/require"
)

func TestManager_TryQueueForHost_CapacityEnforced(t *testing.T) {
	m := domainqueue.NewManager()
	for i := 0; i < 100; i++ {
		require.True(t, m.TryQueueForHost("a.com", record.NewUrlInfo("https://a.com/x", 1, 0, "", record.SourceCrawl)))
	}
	require.False(t, m.TryQueueForHost("a.com", record.NewUrlInfo("https://a.com/overflow", 1, 0, "", record.SourceCrawl)))
}

func TestManager_TryDequeueFromAvailable_RespectsRateLimiter(t *testing.T) {
	m := domainqueue.NewManager()
	limiter := ratelimit.NewShardedRateLimiter()
	limiter.RecordRequest("a.com") // a.com now not ready

	require.True(t, m.TryQueueForHost("a.com", record.NewUrlInfo("https://a.com/x", 1, 0, "", record.SourceCrawl)))
	require.True(t, m.TryQueueForHost("b.com", record.NewUrlInfo("https://b.com/y", 1, 0, "", record.SourceCrawl)))

	item, host, ok := m.TryDequeueFromAvailable(limiter)
	require.True(t, ok)
	require.Equal(t, "b.com", host)
	require.Equal(t, "https://b.com/y", item.URL())
}

func TestManager_TotalQueued(t *testing.T) {
	m := domainqueue.NewManager()
	m.TryQueueForHost("a.com", record.NewUrlInfo("https://a.com/x", 1, 0, "", record.SourceCrawl))
	m.TryQueueForHost("b.com", record.NewUrlInfo("https://b.com/y", 1, 0, "", record.SourceCrawl))
	require.Equal(t, 2, m.TotalQueued())
}
