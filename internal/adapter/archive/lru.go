package archive

import (
	"container/list"
	"context"
	"sync"

	"github.com/couchcryptid/spc-outlook-etl/internal/domain"
)

// LRUStore is an in-process tier in front of another store. With a nil
// inner store it is a bounded memory-only store.
type LRUStore struct {
	inner Store
	cache *lruCache
}

// NewLRUStore creates a memory tier holding up to maxEntries archives.
func NewLRUStore(inner Store, maxEntries int) *LRUStore {
	return &LRUStore{inner: inner, cache: newLRUCache(maxEntries)}
}

func (s *LRUStore) Get(ctx context.Context, key domain.ArchiveKey) (domain.Archive, error) {
	if a, ok := s.cache.get(key); ok {
		return a, nil
	}
	if s.inner == nil {
		return domain.Archive{}, ErrNotFound
	}
	a, err := s.inner.Get(ctx, key)
	if err != nil {
		return a, err
	}
	s.cache.put(key, a)
	return a, nil
}

func (s *LRUStore) Put(ctx context.Context, a domain.Archive) error {
	if s.inner != nil {
		if err := s.inner.Put(ctx, a); err != nil {
			return err
		}
	}
	s.cache.put(a.Key, a)
	return nil
}

// Len reports the number of archives held in memory.
func (s *LRUStore) Len() int {
	return s.cache.len()
}

// lruCache holds the most recently used archives, up to maxEntries.
// A non-positive capacity disables caching.
type lruCache struct {
	maxEntries int

	mu    sync.Mutex
	order *list.List // of *cached, most recently used first
	index map[domain.ArchiveKey]*list.Element
}

type cached struct {
	key     domain.ArchiveKey
	archive domain.Archive
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		order:      list.New(),
		index:      make(map[domain.ArchiveKey]*list.Element),
	}
}

func (c *lruCache) get(key domain.ArchiveKey) (domain.Archive, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return domain.Archive{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cached).archive, true
}

func (c *lruCache) put(key domain.ArchiveKey, a domain.Archive) {
	if c.maxEntries <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		el.Value.(*cached).archive = a
		c.order.MoveToFront(el)
		return
	}
	c.index[key] = c.order.PushFront(&cached{key: key, archive: a})

	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(*cached).key)
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
