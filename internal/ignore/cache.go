package ignore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Cache memoizes parsed ignore files by path. A packager owns one Cache and
// reuses it across runs; callers that need to observe edits to an ignore file
// must call Rebuild or Forget.
type Cache struct {
	mu       sync.Mutex
	matchers map[string]*Matcher
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{matchers: make(map[string]*Matcher)}
}

// Load returns the Matcher for the ignore file at path, parsing it on first
// use. A missing file yields an empty Matcher, which excludes nothing.
func (c *Cache) Load(path string) (*Matcher, error) {
	key := cacheKey(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.matchers[key]; ok {
		return m, nil
	}

	m, err := build(key)
	if err != nil {
		return nil, err
	}
	c.matchers[key] = m
	return m, nil
}

// Rebuild discards any cached Matcher for path and parses the file again.
func (c *Cache) Rebuild(path string) (*Matcher, error) {
	c.Forget(path)
	return c.Load(path)
}

// Forget drops the cached Matcher for path, if any.
func (c *Cache) Forget(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.matchers, cacheKey(path))
}

// Reset drops every cached Matcher.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.matchers = make(map[string]*Matcher)
}

// Len returns the number of cached ignore files.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.matchers)
}

func cacheKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func build(path string) (*Matcher, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewMatcher(nil), nil
		}
		return nil, fmt.Errorf("ignore: open %q: %w", path, err)
	}
	defer f.Close()

	patterns, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("ignore: parse %q: %w", path, err)
	}
	return &Matcher{patterns: patterns}, nil
}
