package cache

import (
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("robots_cache")

// BoltCache is the durable adapter for the Cache port, backed by an
// embedded key-value store so the robots.txt cache survives restarts.
type BoltCache struct {
	db *bolt.DB
}

// OpenBoltCache opens (creating if absent) the durable robots cache at path.
func OpenBoltCache(path string) (*BoltCache, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltCache{db: db}, nil
}

var _ Cache = (*BoltCache)(nil)

func (c *BoltCache) Get(key string) (string, bool) {
	var value string
	found := false
	_ = c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketName).Get([]byte(key))
		if raw != nil {
			value = string(raw)
			found = true
		}
		return nil
	})
	return value, found
}

func (c *BoltCache) Put(key string, value string) {
	_ = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), []byte(value))
	})
}

func (c *BoltCache) Close() error {
	return c.db.Close()
}
