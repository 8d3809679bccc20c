// Package blockcache keeps verified raw blocks on local disk, keyed by CID.
package blockcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gammazero/keymutex"
	gocid "github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/multiformats/go-multibase"
	"github.com/systemshift/memex-object/internal/metrics"
	"go.opencensus.io/stats"
)

var log = logging.Logger("blockcache")

// ErrNotFound is returned by Get for blocks that are not cached.
var ErrNotFound = errors.New("blockcache: not found")

// Cache manages CID-addressed immutable blocks on disk.
type Cache struct {
	dir string
	mlk *keymutex.KeyMutex
}

// New creates a Cache at the given directory.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{dir: dir, mlk: keymutex.New(0)}, nil
}

// Filename returns the base32lower encoding of a CID for use as a filename.
// CIDv0 strings are case-sensitive, so the raw CID bytes are re-encoded.
func Filename(c gocid.Cid) string {
	encoded, _ := multibase.Encode(multibase.Base32, c.Bytes())
	return encoded
}

// Put stores data under c after checking that data hashes to c.
// If the block already exists, this is a no-op.
func (s *Cache) Put(c gocid.Cid, data []byte) error {
	got, err := c.Prefix().Sum(data)
	if err != nil {
		return fmt.Errorf("hash block: %w", err)
	}
	if !got.Equals(c) {
		return fmt.Errorf("block hashes to %s, not %s", got, c)
	}

	k := c.Bytes()
	s.mlk.LockBytes(k)
	defer s.mlk.UnlockBytes(k)

	path := filepath.Join(s.dir, Filename(c))
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := SafeWrite(path, data, 0644); err != nil {
		return fmt.Errorf("write block: %w", err)
	}
	stats.Record(context.Background(), metrics.CacheWrites.M(1))
	log.Debugw("cached block", "cid", c, "size", len(data))
	return nil
}

// Get reads a block by CID.
func (s *Cache) Get(c gocid.Cid) ([]byte, error) {
	path := filepath.Join(s.dir, Filename(c))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		stats.Record(context.Background(), metrics.CacheMisses.M(1))
		return nil, fmt.Errorf("%w: %s", ErrNotFound, c)
	}
	if err != nil {
		return nil, fmt.Errorf("read block %s: %w", c, err)
	}
	stats.Record(context.Background(), metrics.CacheHits.M(1))
	return data, nil
}

// Has checks if a block exists.
func (s *Cache) Has(c gocid.Cid) bool {
	path := filepath.Join(s.dir, Filename(c))
	_, err := os.Stat(path)
	return err == nil
}

// Remove deletes a cached block. Removing an absent block is not an error.
func (s *Cache) Remove(c gocid.Cid) error {
	err := os.Remove(filepath.Join(s.dir, Filename(c)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove block %s: %w", c, err)
	}
	return nil
}
