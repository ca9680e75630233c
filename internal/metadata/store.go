package metadata

import (
	"encoding/json"
	"time"

	"github.com/rohmanhakim/corecrawl/pkg/failure"
	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("url_metadata")

/*
Store persists URL -> UrlMetadata on an embedded key-value store so that
restarts resume with correct scheduling. Operations are individually
atomic; no cross-URL transactions are required.
*/
type Store interface {
	GetOrCreate(url string) UrlMetadata
	UpdateAfterCrawl(url string, newContentHash string) failure.ClassifiedError
	RecordTemporaryFailure(url string) failure.ClassifiedError
	Close() error
}

type BoltStore struct {
	db *bolt.DB
}

// Open opens (creating if absent) the durable metadata store at path. A
// failure here is fatal: the process cannot start without it.
func Open(path string) (*BoltStore, failure.ClassifiedError) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, &MetadataError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseStoreUnavailable,
		}
	}
	createErr := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if createErr != nil {
		_ = db.Close()
		return nil, &MetadataError{
			Message:   createErr.Error(),
			Retryable: false,
			Cause:     ErrCauseStoreUnavailable,
		}
	}
	return &BoltStore{db: db}, nil
}

var _ Store = (*BoltStore)(nil)

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// GetOrCreate never fails: an absent or undecodable entry is treated as a
// fresh UrlMetadata with BackoffMultiplier 1.
func (s *BoltStore) GetOrCreate(url string) UrlMetadata {
	var meta UrlMetadata
	found := false
	_ = s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketName).Get([]byte(url))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &meta); err == nil {
			found = true
		}
		return nil
	})
	if !found {
		return newUrlMetadata()
	}
	return meta
}

// UpdateAfterCrawl implements the backoff/change-tracking invariant: an
// unchanged hash doubles the backoff multiplier (capped at 64); a changed
// hash resets it to 1 and records the previous change time.
func (s *BoltStore) UpdateAfterCrawl(url string, newContentHash string) failure.ClassifiedError {
	now := time.Now()
	return s.mutate(url, func(meta UrlMetadata) UrlMetadata {
		if meta.ContentHash == "" {
			meta.ChangeFrequency = 0
		} else if newContentHash == meta.ContentHash {
			meta.BackoffMultiplier *= 2
			if meta.BackoffMultiplier > maxBackoffMultiplier {
				meta.BackoffMultiplier = maxBackoffMultiplier
			}
		} else {
			if !meta.LastCrawlTime.IsZero() {
				interval := now.Sub(meta.LastCrawlTime)
				// A zero ChangeFrequency means no interval has been observed yet.
				observed := meta.CrawlCount
				if meta.ChangeFrequency == 0 {
					observed = 0
				}
				meta.ChangeFrequency = ema(meta.ChangeFrequency, interval.Seconds(), observed)
			}
			meta.PreviousChangeTime = meta.LastCrawlTime
			meta.BackoffMultiplier = 1
		}
		meta.ContentHash = newContentHash
		meta.LastCrawlTime = now
		meta.CrawlCount++
		meta.ExpectedNextCrawl = now.Add(baseInterval * time.Duration(meta.BackoffMultiplier))
		return meta
	})
}

// RecordTemporaryFailure treats the crawl as "content unchanged" for
// backoff purposes, without touching ContentHash.
func (s *BoltStore) RecordTemporaryFailure(url string) failure.ClassifiedError {
	now := time.Now()
	return s.mutate(url, func(meta UrlMetadata) UrlMetadata {
		meta.BackoffMultiplier *= 2
		if meta.BackoffMultiplier > maxBackoffMultiplier {
			meta.BackoffMultiplier = maxBackoffMultiplier
		}
		meta.LastCrawlTime = now
		meta.ExpectedNextCrawl = now.Add(baseInterval * time.Duration(meta.BackoffMultiplier))
		return meta
	})
}

func (s *BoltStore) mutate(url string, fn func(UrlMetadata) UrlMetadata) failure.ClassifiedError {
	current := s.GetOrCreate(url)
	if current.BackoffMultiplier == 0 {
		current.BackoffMultiplier = 1
	}
	updated := fn(current)

	encoded, err := json.Marshal(updated)
	if err != nil {
		return &MetadataError{Message: err.Error(), Retryable: true, Cause: ErrCauseEncodingFailure}
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(url), encoded)
	})
	if err != nil {
		return &MetadataError{Message: err.Error(), Retryable: true, Cause: ErrCauseStoreUnavailable}
	}
	return nil
}

// ema updates an exponential moving average of observed intervals (in
// seconds). The first observation seeds the average directly.
func ema(current float64, sample float64, observationCount int) float64 {
	if observationCount == 0 {
		return sample
	}
	const alpha = 0.3
	return alpha*sample + (1-alpha)*current
}
