// Package fscache answers repeated "does this path exist" questions without hitting the disk
// every time. A bloom filter records every added path and a bounded exact set remembers paths
// already confirmed on disk.
package fscache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ipfs/bbloom"
)

// Defaults sized for a single project's sources and headers
const (
	DefaultExpectedEntries   = 4096
	DefaultFalsePositiveRate = 0.01
	DefaultExactCapacity     = 2048
)

// Stats counts how existence questions were answered
type Stats struct {
	Added     uint64
	ExactHits uint64
	Rejected  uint64
	DiskHits  uint64
	DiskMiss  uint64
}

// Cache is safe for concurrent use
type Cache struct {
	filter *bbloom.Bloom
	exact  *lru.Cache[string, struct{}]
	stat   func(string) (os.FileInfo, error)

	exactHits atomic.Uint64
	rejected  atomic.Uint64
	diskHits  atomic.Uint64
	diskMiss  atomic.Uint64
}

// New creates a cache sized for expectedEntries paths
func New(expectedEntries int, falsePositiveRate float64, exactCapacity int) (*Cache, error) {
	filter, err := bbloom.New(float64(expectedEntries), falsePositiveRate)
	if err != nil {
		return nil, fmt.Errorf("failed to create existence filter: %w", err)
	}

	exact, err := lru.New[string, struct{}](exactCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create exact set: %w", err)
	}

	return &Cache{
		filter: filter,
		exact:  exact,
		stat:   os.Stat,
	}, nil
}

// NewDefault creates a cache with default sizing
func NewDefault() *Cache {
	c, err := New(DefaultExpectedEntries, DefaultFalsePositiveRate, DefaultExactCapacity)
	if err != nil {
		// parameters are constants in range
		panic(err)
	}

	return c
}

func key(path string) []byte {
	return []byte(filepath.Clean(path))
}

// Add records path as one the caller will later ask about
func (c *Cache) Add(path string) {
	c.filter.AddTS(key(path))
}

// MightExist reports whether path may have been added. False is definitive.
func (c *Cache) MightExist(path string) bool {
	if c.exact.Contains(filepath.Clean(path)) {
		return true
	}

	return c.filter.HasTS(key(path))
}

// Exists reports whether path was added and is present on disk. Paths that were never added
// are reported absent without touching the disk. A confirmed hit is remembered, and entries
// are never invalidated: callers that need the content must still handle read errors.
func (c *Cache) Exists(path string) bool {
	clean := filepath.Clean(path)

	if _, ok := c.exact.Get(clean); ok {
		c.exactHits.Add(1)
		return true
	}

	if !c.filter.HasTS([]byte(clean)) {
		c.rejected.Add(1)
		return false
	}

	if _, err := c.stat(clean); err != nil {
		c.diskMiss.Add(1)
		return false
	}

	c.diskHits.Add(1)
	c.exact.Add(clean, struct{}{})

	return true
}

// Stats returns a snapshot of the counters
func (c *Cache) Stats() Stats {
	c.filter.Mtx.RLock()
	added := c.filter.ElementsAdded()
	c.filter.Mtx.RUnlock()

	return Stats{
		Added:     added,
		ExactHits: c.exactHits.Load(),
		Rejected:  c.rejected.Load(),
		DiskHits:  c.diskHits.Load(),
		DiskMiss:  c.diskMiss.Load(),
	}
}
