package embedder

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var cacheBucket = []byte("embeddings")

// Cached wraps a Provider with a persistent, content-addressed embedding
// cache stored in a bbolt database. Keys cover the model identity, so one
// cache file can serve several providers.
type Cached struct {
	Provider
	db *bolt.DB
}

// NewCached opens (or creates) the cache database at path.
func NewCached(p Provider, path string) (*Cached, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open embedding cache %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(cacheBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}

	return &Cached{Provider: p, db: db}, nil
}

// Embed returns the cached vector for text or asks the wrapped provider.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	var hit []float32
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(cacheBucket).Get(key)
		if data == nil {
			return nil
		}
		v, err := decodeVector(data)
		if err != nil {
			return err
		}
		hit = v
		return nil
	})
	if err == nil && hit != nil {
		return hit, nil
	}

	v, err := c.Provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	// A failed write only costs a future cache miss.
	_ = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(cacheBucket).Put(key, encodeVector(v))
	})

	return v, nil
}

// Len returns the number of cached embeddings.
func (c *Cached) Len() int {
	n := 0
	_ = c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(cacheBucket).Stats().KeyN
		return nil
	})
	return n
}

// Close closes the cache database.
func (c *Cached) Close() error {
	return c.db.Close()
}

func (c *Cached) key(text string) []byte {
	h := sha256.New()
	h.Write([]byte(c.Provider.ModelInfo()))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return h.Sum(nil)
}
