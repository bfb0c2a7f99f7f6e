package hasher

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mtakagi/vdup/internal/types"
)

const cacheBucket = "hashes"

// Cache provides persistent caching of full-content hashes using
// BoltDB. Self-cleaning: each run writes a fresh database and only
// entries used this run survive the atomic swap on Close. A nil *Cache
// is valid and disables caching.
type Cache struct {
	readDB  *bolt.DB // previous run's cache (read-only)
	writeDB *bolt.DB // this run's cache; BoltDB locks this file
	path    string   // final path for the atomic swap
}

// OpenCache opens an existing cache for reading and creates a new one
// for writing. Returns (nil, nil) when path is empty. BoltDB's file
// lock on the .new file rejects concurrent instances.
func OpenCache(path string) (*Cache, error) {
	if path == "" {
		return nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	c := &Cache{path: path}
	var err error

	if _, statErr := os.Stat(path); statErr == nil {
		c.readDB, err = bolt.Open(path, 0o600, &bolt.Options{
			ReadOnly: true,
			Timeout:  1 * time.Second,
		})
		if err != nil {
			// Unreadable previous cache: run without it.
			c.readDB = nil
		}
	}

	c.writeDB, err = bolt.Open(path+".new", 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create new cache (locked by another instance?): %w", err)
	}

	if err := c.writeDB.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(cacheBucket))
		return err
	}); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

// Close closes both databases and atomically replaces the old cache
// with the new one. The swap happens only when the write database
// closed cleanly.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.readDB != nil {
		if err := c.readDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.writeDB != nil {
		if err := c.writeDB.Close(); err != nil {
			errs = append(errs, err)
		} else if err := os.Rename(c.path+".new", c.path); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

const cacheKeyVersion byte = 1 // increment when the key format changes

// cacheKey builds the deterministic lookup key:
// ver(1) + algo + NUL + path + NUL + size(8) + mtime(8).
// Any change to the file's size or mtime is a cache miss.
func cacheKey(algo Algorithm, c types.Candidate) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(cacheKeyVersion)
	buf.WriteString(algo.Name())
	buf.WriteByte(0)
	buf.WriteString(c.Path)
	buf.WriteByte(0)
	_ = binary.Write(buf, binary.BigEndian, c.Size)
	_ = binary.Write(buf, binary.BigEndian, c.ModTime.UnixNano())
	return buf.Bytes()
}

// Lookup retrieves a cached digest, or nil when absent. On a hit the
// entry is copied to the write database so it survives the swap.
func (c *Cache) Lookup(algo Algorithm, cand types.Candidate) []byte {
	if c == nil || c.readDB == nil {
		return nil
	}

	key := cacheKey(algo, cand)
	var sum []byte

	_ = c.readDB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(cacheBucket))
		if b == nil {
			return nil
		}
		data := b.Get(key)
		if len(data) == algo.Size() {
			sum = make([]byte, len(data))
			copy(sum, data)
		}
		return nil
	})

	if sum == nil {
		return nil
	}
	c.Store(algo, cand, sum)
	return sum
}

// Store saves a digest to the new database.
func (c *Cache) Store(algo Algorithm, cand types.Candidate, sum []byte) {
	if c == nil || c.writeDB == nil || len(sum) != algo.Size() {
		return
	}
	_ = c.writeDB.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(cacheBucket)).Put(cacheKey(algo, cand), sum)
	})
}
