// Package thumbcache keeps recently fetched thumbnails in memory so queue
// redraws do not refetch them. Entries expire after a TTL; when the cache
// outgrows its byte budget the least recently used entries go first, down to
// three quarters of the budget so evictions happen in batches rather than on
// every insert.
package thumbcache

import (
	"container/list"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/omniget/omniget/internal/errs"
	"github.com/omniget/omniget/internal/types"
)

const (
	// DefaultTTL is how long a cached thumbnail stays fresh.
	DefaultTTL = 120 * time.Second

	// DefaultMaxBytes is the cache-wide byte budget.
	DefaultMaxBytes = 50 * types.MB

	// evictFraction is the fill level eviction drains down to.
	evictFraction = 0.75

	maxThumbnailBytes = 8 * types.MB
)

type entry struct {
	key       string
	data      []byte
	fetchedAt time.Time
}

// Cache is a TTL plus LRU thumbnail cache. Safe for concurrent use.
type Cache struct {
	client   *http.Client
	ttl      time.Duration
	maxBytes int64

	mu      sync.Mutex
	size    int64
	entries map[string]*list.Element
	order   *list.List // front = most recently used

	now func() time.Time
}

// New creates a cache. Zero ttl or maxBytes use the defaults.
func New(client *http.Client, ttl time.Duration, maxBytes int64) *Cache {
	if client == nil {
		client = http.DefaultClient
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Cache{
		client:   client,
		ttl:      ttl,
		maxBytes: maxBytes,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get returns the thumbnail at url, from cache when fresh, fetching
// otherwise.
func (c *Cache) Get(ctx context.Context, url string) ([]byte, error) {
	if data, ok := c.lookup(url); ok {
		return data, nil
	}

	data, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	c.insert(url, data)
	return data, nil
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Size returns the cached bytes.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *Cache) lookup(url string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[url]
	if !ok {
		return nil, false
	}
	ent := elem.Value.(*entry)
	if c.now().Sub(ent.fetchedAt) > c.ttl {
		c.removeLocked(elem)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return ent.data, true
}

func (c *Cache) insert(url string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[url]; ok {
		c.removeLocked(elem)
	}

	ent := &entry{key: url, data: data, fetchedAt: c.now()}
	c.entries[url] = c.order.PushFront(ent)
	c.size += int64(len(data))

	if c.size > c.maxBytes {
		target := int64(float64(c.maxBytes) * evictFraction)
		for c.size > target {
			back := c.order.Back()
			if back == nil {
				break
			}
			c.removeLocked(back)
		}
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	ent := elem.Value.(*entry)
	c.order.Remove(elem)
	delete(c.entries, ent.key)
	c.size -= int64(len(ent.data))
}

func (c *Cache) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", types.DefaultUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.FromStatus(resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxThumbnailBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxThumbnailBytes {
		return nil, fmt.Errorf("thumbnail exceeds %d bytes", maxThumbnailBytes)
	}
	return data, nil
}
