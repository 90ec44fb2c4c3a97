package sweetspot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/forgepoint/gentuner/internal/model"
)

type cacheKey struct {
	scope     model.Scope
	threshold float64
}

func (k cacheKey) flightKey() string {
	return fmt.Sprintf("%s@%g", k.scope, k.threshold)
}

type cacheEntry struct {
	spot      *model.SweetSpot
	count     int
	fetchedAt time.Time
}

// spotCache holds mined sweet spots keyed by scope and threshold. Reads take
// the read lock; recomputes collapse through singleflight so a herd of
// lookups on one stale key does a single store pass.
type spotCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]*cacheEntry
	group   singleflight.Group
}

func newSpotCache() *spotCache {
	return &spotCache{entries: make(map[cacheKey]*cacheEntry)}
}

func (c *spotCache) get(key cacheKey) (*cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return entry, ok
}

// compute runs fn through singleflight and swaps the result in under the
// write lock. Errors are never cached.
func (c *spotCache) compute(key cacheKey, fn func() (*model.SweetSpot, int, error)) (*model.SweetSpot, error) {
	v, err, _ := c.group.Do(key.flightKey(), func() (any, error) {
		spot, count, err := fn()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = &cacheEntry{spot: spot, count: count, fetchedAt: time.Now()}
		c.mu.Unlock()
		return spot, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.SweetSpot), nil
}

func (c *spotCache) invalidate(scope model.Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.scope == scope {
			delete(c.entries, key)
		}
	}
}

// warmConcurrency bounds parallel mining passes during warm-up.
const warmConcurrency = 4

// WarmAll primes the cache for a set of scopes at the default threshold.
// Scopes without enough data are skipped rather than failing the warm-up.
func (a *Analyzer) WarmAll(ctx context.Context, scopes []model.Scope) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)
	for _, scope := range scopes {
		g.Go(func() error {
			if _, err := a.Analyze(ctx, scope, 0); err != nil && !eris.Is(err, ErrNotEnoughData) {
				return err
			}
			return nil
		})
	}
	return eris.Wrap(g.Wait(), "sweetspot: warm cache")
}
