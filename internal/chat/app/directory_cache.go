package app

import (
	"context"
	"sync"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"
)

// DirectoryCache memoized directory entries by user id. Safe for concurrent use.
type DirectoryCache struct {
	mu      sync.RWMutex
	entries map[string]domain.DirectoryEntry
}

// NewDirectoryCache create empty cache
func NewDirectoryCache() *DirectoryCache {
	return &DirectoryCache{entries: make(map[string]domain.DirectoryEntry)}
}

// Get cached entry, false on miss
func (c *DirectoryCache) Get(userID string) (domain.DirectoryEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[userID]
	return e, ok
}

// Put store entry
func (c *DirectoryCache) Put(userID string, entry domain.DirectoryEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = entry
}

// InvalidateAll drop every entry, used on logout / account switch
func (c *DirectoryCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]domain.DirectoryEntry)
}

// Len number of cached entries
func (c *DirectoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Directory read-through access to user entries for rendering
type Directory struct {
	repo  repository.DirectoryRepository
	cache *DirectoryCache
}

// NewDirectory create Directory
func NewDirectory(repo repository.DirectoryRepository, cache *DirectoryCache) *Directory {
	return &Directory{repo: repo, cache: cache}
}

// Get cached entry or fetch it and fill the cache
func (d *Directory) Get(ctx context.Context, userID string) (domain.DirectoryEntry, error) {
	if e, ok := d.cache.Get(userID); ok {
		return e, nil
	}
	e, err := d.repo.FindByID(ctx, userID)
	if err != nil {
		return domain.DirectoryEntry{}, err
	}
	d.cache.Put(userID, *e)
	return *e, nil
}

// List full directory scan, every entry is cached
func (d *Directory) List(ctx context.Context) ([]domain.DirectoryEntry, error) {
	entries, err := d.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		d.cache.Put(e.ID, e)
	}
	return entries, nil
}
