package vocab

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	gocache "github.com/patrickmn/go-cache"
)

// DefaultCleanupInterval is how often expired vocabularies are swept.
const DefaultCleanupInterval = 5 * time.Minute

// KeepForEpoch is a Store ttl that never expires the entry; only a new epoch
// drops it.
const KeepForEpoch time.Duration = -1

// Cache stores fetched vocabularies keyed by field name and epoch.
//
// A stored key means the field has been requested in the current epoch, even
// when its vocabulary is empty, and no further fetch is needed. Advance starts
// a new epoch (e.g. the time range changed); results computed for an older
// epoch are rejected by Store.
type Cache struct {
	mu     sync.RWMutex
	store  *gocache.Cache
	epoch  uint64
	hits   int
	misses int
}

// NewCache creates a Cache. ttl bounds how long a vocabulary stays valid;
// zero or less keeps vocabularies until the epoch changes.
func NewCache(ttl time.Duration) *Cache {
	defaultExpiration := gocache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		defaultExpiration = ttl
		cleanup = DefaultCleanupInterval
	}
	return &Cache{
		store: gocache.New(defaultExpiration, cleanup),
	}
}

func cacheKey(epoch uint64, field string) string {
	return strconv.FormatUint(epoch, 10) + "/" + field
}

// Epoch returns the current epoch.
func (c *Cache) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Lookup returns the vocabulary stored for field in the current epoch.
func (c *Cache) Lookup(field string) (*Vocabulary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.store.Get(cacheKey(c.epoch, field))
	if !found {
		c.misses++
		return nil, false
	}
	v, ok := item.(*Vocabulary)
	if !ok {
		log.Errorf("Wrong type in vocabulary cache for field %s: %T", field, item)
		c.misses++
		return nil, false
	}
	c.hits++
	return v, true
}

// Store saves v for field if epoch is still the current one and reports
// whether it did. A positive ttl overrides the cache default for this entry,
// KeepForEpoch disables expiry and anything else uses the default.
func (c *Cache) Store(epoch uint64, field string, v *Vocabulary, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		log.Debugf("Dropping stale vocabulary for %s (epoch %d, current %d)", field, epoch, c.epoch)
		return false
	}
	if v == nil {
		v = New(nil)
	}
	switch {
	case ttl == KeepForEpoch:
		ttl = gocache.NoExpiration
	case ttl <= 0:
		ttl = gocache.DefaultExpiration
	}
	c.store.Set(cacheKey(epoch, field), v, ttl)
	return true
}

// Advance starts a new epoch and drops every vocabulary of older ones.
func (c *Cache) Advance() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	current := cacheKey(c.epoch, "")
	for key := range c.store.Items() {
		if !strings.HasPrefix(key, current) {
			c.store.Delete(key)
		}
	}
	log.Debugf("Vocabulary cache advanced to epoch %d", c.epoch)
	return c.epoch
}

// Flush drops everything and starts a new epoch so in-flight results for the
// old contents are rejected.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.store.Flush()
}

// Stats reports cache counters.
func (c *Cache) Stats() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]int{
		"cachedFields": c.store.ItemCount(),
		"cacheEpoch":   int(c.epoch),
		"cacheHits":    c.hits,
		"cacheMisses":  c.misses,
	}
}
