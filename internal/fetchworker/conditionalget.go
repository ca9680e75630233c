package fetchworker

import (
	"encoding/json"
	"time"

	"github.com/rohmanhakim/corecrawl/internal/record"
	bolt "go.etcd.io/bbolt"
)

var conditionalGetBucket = []byte("conditional_get")

// ConditionalGetCache persists ETag/Last-Modified validators per URL so a
// later fetch can issue If-None-Match/If-Modified-Since and potentially
// receive a cheap 304 in place of a full body transfer.
type ConditionalGetCache struct {
	db *bolt.DB
}

func OpenConditionalGetCache(path string) (*ConditionalGetCache, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(conditionalGetBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &ConditionalGetCache{db: db}, nil
}

func (c *ConditionalGetCache) Close() error {
	return c.db.Close()
}

// Get returns the stored validators for url, if any.
func (c *ConditionalGetCache) Get(url string) record.ConditionalValidators {
	var v record.ConditionalValidators
	_ = c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(conditionalGetBucket).Get([]byte(url))
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &v)
	})
	return v
}

// Put stores etag/lastModified extracted from a 200 response's headers.
func (c *ConditionalGetCache) Put(url string, v record.ConditionalValidators) {
	if v.IfNoneMatch == "" && v.IfModifiedSince == "" {
		return
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(conditionalGetBucket).Put([]byte(url), encoded)
	})
}
