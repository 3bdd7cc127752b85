package db

import (
	"database/sql"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const folderCacheSize = 4096

// folderRef is what readers need to know about a stored folder.
type folderRef struct {
	id     int64
	listed bool
}

// folderCache maps folder paths to folderRef. Snapshots are not modified
// after they are finalized, so entries never go stale.
type folderCache struct {
	*lru.Cache[string, folderRef]
}

func newFolderCache(capacity int) *folderCache {
	c, err := lru.New[string, folderRef](capacity)
	if err != nil {
		// Only a non-positive size fails.
		panic(err)
	}
	return &folderCache{c}
}

func (c *folderCache) get(path string) (folderRef, bool) {
	return c.Get(path)
}

func (c *folderCache) put(path string, ref folderRef) {
	c.Add(path, ref)
}

func (c *folderCache) len() int {
	return c.Len()
}

var folderCaches sync.Map // *sql.DB -> *folderCache

func folderCacheFor(db *sql.DB) *folderCache {
	if cache, ok := folderCaches.Load(db); ok {
		return cache.(*folderCache)
	}
	cache, _ := folderCaches.LoadOrStore(db, newFolderCache(folderCacheSize))
	return cache.(*folderCache)
}

// ForgetCache drops the folder lookups cached for db. Call it when closing a
// database that stays referenced elsewhere.
func ForgetCache(db *sql.DB) {
	folderCaches.Delete(db)
}
