package results

import (
	"time"

	"github.com/patrickmn/go-cache"

	"mes-result-backend/internal/production"
)

const independentContextKey = "independent"

// ContextCache keeps the last loaded result list per work context, so that
// re-selecting a context skips the fetch. Entries are dropped explicitly on
// every successful commit or delete in that context.
type ContextCache struct {
	entries *cache.Cache
}

// NewContextCache creates a cache whose entries expire after ttl.
func NewContextCache(ttl time.Duration) *ContextCache {
	return &ContextCache{entries: cache.New(ttl, 2*ttl)}
}

func cacheKey(workOrderID string) string {
	if workOrderID == "" {
		return independentContextKey
	}
	return "work-order:" + workOrderID
}

// Get returns a copy of the cached list for a work order.
func (c *ContextCache) Get(workOrderID string) ([]production.ProductionResult, bool) {
	v, found := c.entries.Get(cacheKey(workOrderID))
	if !found {
		return nil, false
	}
	return clone(v.([]production.ProductionResult)), true
}

// Set stores a copy of list for a work order.
func (c *ContextCache) Set(workOrderID string, list []production.ProductionResult) {
	c.entries.Set(cacheKey(workOrderID), clone(list), cache.DefaultExpiration)
}

// Invalidate drops the entry of a work order.
func (c *ContextCache) Invalidate(workOrderID string) {
	c.entries.Delete(cacheKey(workOrderID))
}

func clone(list []production.ProductionResult) []production.ProductionResult {
	out := make([]production.ProductionResult, len(list))
	copy(out, list)
	return out
}
