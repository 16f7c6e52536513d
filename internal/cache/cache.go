// Package cache holds compiled block trees keyed by canonical file
// path, so that repeated loads of an unchanged template skip the parse.
// Entries are validated against the file's modification time on every
// hit, and an optional fsnotify watcher evicts entries as soon as the
// underlying file changes, which keeps long-running worker processes
// from serving stale templates.
package cache

import (
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tobyward/quill/internal/block"
)

// Entry is one cached compiled template.
type Entry struct {
	// Block is the compiled tree, shared read-only between sources.
	Block *block.Block
	// ModTime is the file modification time at parse.
	ModTime time.Time
}

// Cache is a mtime-validated compiled-block cache. It is safe for
// concurrent use; the cached blocks themselves are immutable.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	watcher  *fsnotify.Watcher
	done     chan struct{}
	disabled bool
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]Entry),
	}
}

// Get returns the cached block for path if the file has not been
// modified since it was parsed. A stale entry is evicted and reported
// as a miss.
func (c *Cache) Get(path string) (*block.Block, bool) {
	c.mu.RLock()
	entry, ok := c.entries[path]
	disabled := c.disabled
	c.mu.RUnlock()
	if disabled || !ok {
		return nil, false
	}

	info, err := os.Stat(path)
	if err != nil || !info.ModTime().Equal(entry.ModTime) {
		c.mu.Lock()
		delete(c.entries, path)
		c.mu.Unlock()
		return nil, false
	}

	return entry.Block, true
}

// Put stores a compiled block for path. When a watcher is running the
// path is added to it so the entry is evicted on change.
func (c *Cache) Put(path string, blk *block.Block, modTime time.Time) {
	c.mu.Lock()
	if c.disabled {
		c.mu.Unlock()
		return
	}
	c.entries[path] = Entry{Block: blk, ModTime: modTime}
	watcher := c.watcher
	c.mu.Unlock()

	if watcher != nil {
		// Best effort: a vanished file will fail the mtime check on
		// the next Get anyway.
		_ = watcher.Add(path)
	}
}

// SetEnabled turns caching on or off. Disabling clears existing
// entries.
func (c *Cache) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled = !enabled
	if c.disabled {
		c.entries = make(map[string]Entry)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Invalidate removes the entry for path.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
}

// Watch starts eager invalidation driven by file system events. It is a
// no-op when already watching.
func (c *Cache) Watch() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	c.watcher = watcher
	c.done = make(chan struct{})

	for path := range c.entries {
		_ = watcher.Add(path)
	}

	go c.watchLoop(watcher, c.done)

	return nil
}

func (c *Cache) watchLoop(watcher *fsnotify.Watcher, done chan struct{}) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				c.Invalidate(event.Name)
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		case <-done:
			return
		}
	}
}

// Close stops the watcher, if any, and drops all entries.
func (c *Cache) Close() error {
	c.mu.Lock()
	watcher := c.watcher
	done := c.done
	c.watcher = nil
	c.done = nil
	c.entries = make(map[string]Entry)
	c.mu.Unlock()

	if watcher == nil {
		return nil
	}
	close(done)
	return watcher.Close()
}
