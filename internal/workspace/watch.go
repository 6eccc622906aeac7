package workspace

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"lowvibe/internal/logging"
)

const defaultMaxWatches = 1000

// Cache holds the last scanned tree and rescans only after something
// changed: a filesystem event seen by Watch or an explicit Invalidate from
// a tool that wrote a file.
type Cache struct {
	scanner *Scanner

	mu    sync.Mutex
	tree  Tree
	dirty bool
}

// NewCache returns a cache that scans on first use.
func NewCache(s *Scanner) *Cache {
	return &Cache{scanner: s, dirty: true}
}

// Tree returns the current tree, rescanning if it is stale.
func (c *Cache) Tree() (Tree, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return c.tree, nil
	}
	tree, err := c.scanner.Scan()
	if err != nil {
		return c.tree, err
	}
	c.tree = tree
	c.dirty = false
	return tree, nil
}

// Render returns the rendered tree, or an empty string when scanning fails.
func (c *Cache) Render() string {
	tree, err := c.Tree()
	if err != nil {
		logging.Warn("tree scan failed", "error", err)
	}
	return tree.Render()
}

// Invalidate marks the tree stale.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
}

// Watch invalidates the cache on filesystem changes until ctx is done.
// New directories are added to the watch list as they appear.
func (c *Cache) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := c.scanner.Root
	count := 0
	addDirs := func(start string) {
		filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			if rel, err := filepath.Rel(root, path); err == nil && rel != "." && c.ignored(rel, true) {
				return filepath.SkipDir
			}
			if count >= defaultMaxWatches {
				return filepath.SkipAll
			}
			if err := w.Add(path); err == nil {
				count++
			}
			return nil
		})
	}
	addDirs(root)
	logging.Debug("workspace watcher started", "root", root, "dirs", count)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			rel, err := filepath.Rel(root, ev.Name)
			if err != nil || c.ignored(rel, false) {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				addDirs(ev.Name)
			}
			c.Invalidate()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logging.Warn("workspace watcher error", "error", err)
		}
	}
}

func (c *Cache) ignored(rel string, isDir bool) bool {
	return c.scanner.Ignore != nil && c.scanner.Ignore.Match(rel, isDir)
}
