// Package buildcache decides whether a project needs rebuilding.
//
// The cache stores a content digest for every source and header seen by the last successful
// build, together with the caller supplied source -> header dependency edges. A project needs
// rebuilding when its artifact is gone or when any source, or any header reachable from a
// source, no longer matches its recorded digest.
//
// The cache is persisted as JSON under the project's build directory. A missing or unreadable
// cache file is never fatal; it simply means everything is rebuilt.
package buildcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Norgate-AV/cpplab/internal/fscache"
	"github.com/Norgate-AV/cpplab/internal/project"
)

// FileName is the cache file name inside a project's build directory
const FileName = ".cpplab-cache.json"

// Path returns the cache file location for a project
func Path(spec *project.BuildSpec) string {
	return filepath.Join(spec.BuildDir(), FileName)
}

// Cache holds digests and dependency edges for one project
type Cache struct {
	mu        sync.Mutex
	path      string
	hashes    map[string]string
	graph     *depGraph
	existence *fscache.Cache
	log       zerolog.Logger
}

// Load reads the cache at path. Any read or decode failure is logged and yields an empty cache.
// A nil existence cache makes every header check go straight to disk.
func Load(path string, existence *fscache.Cache, logger zerolog.Logger) *Cache {
	c := &Cache{
		path:      path,
		hashes:    make(map[string]string),
		graph:     newDepGraph(),
		existence: existence,
		log:       logger,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.log.Warn().Err(err).Str("path", path).Msg("Ignoring unreadable build cache")
		}

		return c
	}

	entry := newEntry()
	if err := json.Unmarshal(data, &entry); err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("Ignoring corrupt build cache")
		return c
	}

	for p, h := range entry.Hashes {
		c.hashes[p] = h
	}

	for src, headers := range entry.Deps {
		for _, h := range headers {
			if err := c.addEdge(src, h); err != nil {
				c.log.Warn().Err(err).Str("source", src).Str("header", h).Msg("Dropping cached dependency")
			}
		}
	}

	c.log.Debug().Str("path", path).Int("hashes", len(c.hashes)).Msg("Loaded build cache")

	return c
}

// Save writes the cache to disk
func (c *Cache) Save() error {
	c.mu.Lock()
	entry := Entry{
		Hashes: make(map[string]string, len(c.hashes)),
		Deps:   c.graph.snapshot(),
	}
	for p, h := range c.hashes {
		entry.Hashes[p] = h
	}
	c.mu.Unlock()

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode build cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write build cache: %w", err)
	}

	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace build cache: %w", err)
	}

	return nil
}

// AddDependency records that source includes header
func (c *Cache) AddDependency(source, header string) error {
	return c.addEdge(filepath.Clean(source), filepath.Clean(header))
}

func (c *Cache) addEdge(source, header string) error {
	if err := c.graph.add(source, header); err != nil {
		return fmt.Errorf("failed to add dependency %s -> %s: %w", source, header, err)
	}

	if c.existence != nil {
		c.existence.Add(header)
	}

	return nil
}

// SetSpecDependencies replaces every edge in the cache with the ones the project declares.
// Edges loaded from disk that the project no longer declares are forgotten.
func (c *Cache) SetSpecDependencies(spec *project.BuildSpec) error {
	c.mu.Lock()
	c.graph = newDepGraph()
	c.mu.Unlock()

	var errs []error
	for src, headers := range spec.Deps {
		for _, h := range headers {
			if err := c.AddDependency(spec.Resolve(src), spec.Resolve(h)); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

// Dependencies returns the direct headers of source
func (c *Cache) Dependencies(source string) []string {
	return c.graph.direct(filepath.Clean(source))
}

// Invalidate forgets every recorded digest so the next check rebuilds
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hashes = make(map[string]string)
}

// NeedsRebuild reports whether artifact is missing or out of date with respect to the
// project's sources and every header reachable from them
func (c *Cache) NeedsRebuild(spec *project.BuildSpec, artifact string) bool {
	if _, err := os.Stat(artifact); err != nil {
		c.log.Debug().Str("artifact", artifact).Msg("Artifact missing")
		return true
	}

	sources := spec.SourcePaths()
	for _, src := range sources {
		if c.changed(src) {
			c.log.Debug().Str("file", src).Msg("Source changed")
			return true
		}
	}

	for _, header := range c.graph.reachable(sources) {
		if !c.exists(header) {
			c.log.Debug().Str("file", header).Msg("Header missing")
			return true
		}

		if c.changed(header) {
			c.log.Debug().Str("file", header).Msg("Header changed")
			return true
		}
	}

	return false
}

// Record replaces the stored digests with those of every source and reachable header after a
// successful build. A source that cannot be read loses its digest so the next check rebuilds.
// A header that cannot be read is dropped from the graph along with its edges.
func (c *Cache) Record(spec *project.BuildSpec) error {
	sources := spec.SourcePaths()
	headers := c.graph.reachable(sources)

	var errs []error
	hashes := make(map[string]string, len(sources)+len(headers))

	for _, f := range sources {
		d, err := HashFile(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		hashes[f] = d.String()
	}

	for _, f := range headers {
		d, err := HashFile(f)
		if err != nil {
			c.log.Debug().Str("file", f).Msg("Dropping unreadable header")
			c.graph.drop(f)
			errs = append(errs, err)
			continue
		}

		hashes[f] = d.String()
	}

	c.mu.Lock()
	c.hashes = hashes
	c.mu.Unlock()

	return errors.Join(errs...)
}

// Digest returns the recorded digest for path, if any
func (c *Cache) Digest(path string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.hashes[filepath.Clean(path)]
	return h, ok
}

func (c *Cache) exists(path string) bool {
	if c.existence != nil {
		return c.existence.Exists(path)
	}

	_, err := os.Stat(path)
	return err == nil
}

func (c *Cache) changed(path string) bool {
	c.mu.Lock()
	stored, ok := c.hashes[path]
	c.mu.Unlock()

	if !ok {
		return true
	}

	d, err := HashFile(path)
	if err != nil {
		return true
	}

	return d.String() != stored
}
