package skills

import (
	"log"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ShayCichocki/warden/pkg/models"
)

// Cache wraps a Loader and memoizes resolved indexes per residence.
// Skill resolution stays recompute-per-invocation semantically: the
// cache only avoids re-reading unchanged declaration files. Any write
// under a watched directory invalidates the whole cache.
type Cache struct {
	loader  *Loader
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	indexes map[string]*models.SkillsIndex
	watched map[string]bool
	closed  bool
}

// NewCache creates a cache over the loader. If the fsnotify watcher
// cannot be created the cache still works, it just never memoizes.
func NewCache(loader *Loader) *Cache {
	c := &Cache{
		loader:  loader,
		indexes: make(map[string]*models.SkillsIndex),
		watched: make(map[string]bool),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[skills] watcher unavailable, caching disabled: %v", err)
		return c
	}
	c.watcher = watcher
	go c.consumeEvents()
	return c
}

// LoadInherited returns the resolved index for the residence, reusing a
// cached result when no watched declaration file has changed.
func (c *Cache) LoadInherited(residence models.Residence) (*models.SkillsIndex, error) {
	key := residence.String()

	c.mu.Lock()
	if idx, ok := c.indexes[key]; ok {
		c.mu.Unlock()
		return idx, nil
	}
	c.mu.Unlock()

	index, err := c.loader.LoadInherited(residence)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watcher == nil || c.closed {
		return index, nil
	}
	c.indexes[key] = index
	for _, dir := range c.loader.LevelDirs(residence) {
		c.watchLevel(dir)
	}
	return index, nil
}

// watchLevel registers a directory with the watcher. Caller holds c.mu.
func (c *Cache) watchLevel(dir string) {
	if c.watched[dir] {
		return
	}
	if err := c.watcher.Add(dir); err != nil {
		log.Printf("[skills] watch %s: %v", dir, err)
		return
	}
	c.watched[dir] = true
}

// consumeEvents drops the cache whenever a watched file changes.
func (c *Cache) consumeEvents() {
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				c.Invalidate()
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[skills] watcher error: %v", err)
		}
	}
}

// Invalidate drops all memoized indexes.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indexes = make(map[string]*models.SkillsIndex)
}

// Close stops the watcher. The cache remains usable as a pass-through.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.indexes = make(map[string]*models.SkillsIndex)
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}
