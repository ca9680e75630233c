// Package diskqueue is the durable overflow queue for URLs when the memory
// queues saturate, used only in REGULAR mode. It spreads a FIFO of URL
// strings across a fixed number of shards to eliminate single-writer
// contention: each shard is an append-only file plus an in-memory counter
// of its current length.
package diskqueue

import (
	"bufio"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rohmanhakim/corecrawl/pkg/failure"
	"github.com/rohmanhakim/corecrawl/pkg/fileutil"
)

const ShardCount = 16

type diskShard struct {
	mu    sync.Mutex
	path  string
	count int
}

type Queue struct {
	dir    string
	shards [ShardCount]*diskShard
	cursor atomic.Uint32 // advances once per Dequeue to rotate the starting shard
}

// Open prepares the shard directory and recovers each shard's line count
// by scanning its existing file, if any.
func Open(dir string) (*Queue, failure.ClassifiedError) {
	if err := fileutil.EnsureDir(dir); err != nil {
		return nil, err
	}
	q := &Queue{dir: dir}
	for i := 0; i < ShardCount; i++ {
		path := filepath.Join(dir, shardFileName(i))
		q.shards[i] = &diskShard{path: path, count: countLines(path)}
	}
	return q, nil
}

func shardFileName(i int) string {
	return "shard-" + strconv.Itoa(i) + ".txt"
}

func countLines(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		if scanner.Text() != "" {
			count++
		}
	}
	return count
}

func shardIndex(url string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(url))
	return int(h.Sum32() % ShardCount)
}

// Enqueue partitions urls by stable hash(url) mod ShardCount and appends
// each subset to its shard under a per-shard lock.
func (q *Queue) Enqueue(urls []string) failure.ClassifiedError {
	buckets := make(map[int][]string)
	for _, u := range urls {
		idx := shardIndex(u)
		buckets[idx] = append(buckets[idx], u)
	}
	for idx, batch := range buckets {
		if err := q.appendShard(idx, batch); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) appendShard(idx int, urls []string) failure.ClassifiedError {
	s := q.shards[idx]
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return &DiskQueueError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, u := range urls {
		if _, err := w.WriteString(u + "\n"); err != nil {
			return &DiskQueueError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
		}
	}
	if err := w.Flush(); err != nil {
		return &DiskQueueError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
	}
	s.count += len(urls)
	return nil
}

// Dequeue scans shards round-robin, reading up to maxCount total URLs and
// rewriting each consumed shard's file with its remainder.
func (q *Queue) Dequeue(maxCount int) ([]string, failure.ClassifiedError) {
	var result []string
	start := int(q.cursor.Add(1) % ShardCount)
	for i := 0; i < ShardCount && len(result) < maxCount; i++ {
		remaining := maxCount - len(result)
		taken, err := q.drainShard((start+i)%ShardCount, remaining)
		if err != nil {
			return result, err
		}
		result = append(result, taken...)
	}
	return result, nil
}

func (q *Queue) drainShard(idx int, max int) ([]string, failure.ClassifiedError) {
	s := q.shards[idx]
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == 0 {
		return nil, nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &DiskQueueError{Message: err.Error(), Retryable: true, Cause: ErrCauseReadFailure}
	}

	var all []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			all = append(all, line)
		}
	}
	f.Close()

	if max >= len(all) {
		max = len(all)
	}
	taken := all[:max]
	remainder := all[max:]

	if err := os.WriteFile(s.path, []byte(joinLines(remainder)), 0644); err != nil {
		return nil, &DiskQueueError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
	}
	s.count = len(remainder)
	return taken, nil
}

func joinLines(lines []string) string {
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}

// TotalSize is the sum of shard counters.
func (q *Queue) TotalSize() int {
	total := 0
	for _, s := range q.shards {
		s.mu.Lock()
		total += s.count
		s.mu.Unlock()
	}
	return total
}
