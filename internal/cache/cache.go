// Package cache keeps the time-bounded record of known product URLs.
package cache

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/product-sitemapper/internal/config"
	"github.com/user/product-sitemapper/internal/domain"
	"github.com/user/product-sitemapper/internal/monitoring"
)

// Store is where the cache lives between runs.
type Store interface {
	Load(ctx context.Context) (map[string]domain.ProductRecord, error)
	Save(ctx context.Context, records map[string]domain.ProductRecord) error
}

// Checker confirms that a product URL still exists. It returns the response's
// Last-Modified time, or the zero time when there is none.
type Checker interface {
	Check(ctx context.Context, url string) (time.Time, error)
}

// ProductCache maps canonical product URLs to their records. Records are only
// ever removed by Prune.
type ProductCache struct {
	retainDays         int
	refreshAfterDays   int
	refreshConcurrency int
	checker            Checker
	metrics            *monitoring.Metrics
	logger             *zap.Logger

	mu      sync.RWMutex
	records map[string]domain.ProductRecord
}

func New(cfg *config.Config, checker Checker, m *monitoring.Metrics, l *zap.Logger) *ProductCache {
	return &ProductCache{
		retainDays:         cfg.RetainDays,
		refreshAfterDays:   cfg.RefreshAfterDays,
		refreshConcurrency: cfg.RefreshConcurrency,
		checker:            checker,
		metrics:            m,
		logger:             l.With(zap.String("component", "cache")),
		records:            make(map[string]domain.ProductRecord),
	}
}

// Load replaces the in-memory records with the store's. A missing or
// unreadable cache leaves the cache empty. Records without a usable last_seen
// are dropped; a missing lastmod falls back to last_seen; dates in the future
// are clamped to today.
func (c *ProductCache) Load(ctx context.Context, store Store, today domain.Date) int {
	loaded, err := store.Load(ctx)
	if err != nil {
		c.logger.Warn("starting with an empty product cache", zap.Error(err))
		loaded = nil
	}

	records := make(map[string]domain.ProductRecord, len(loaded))
	dropped := 0
	for u, r := range loaded {
		if u == "" || r.LastSeen.IsZero() {
			dropped++
			continue
		}
		r.URL = u
		if r.LastSeen.After(today) {
			r.LastSeen = today
		}
		if r.Lastmod.IsZero() {
			r.Lastmod = r.LastSeen
		}
		if r.Lastmod.After(today) {
			r.Lastmod = today
		}
		records[u] = r
	}

	c.mu.Lock()
	c.records = records
	c.mu.Unlock()

	if dropped > 0 {
		c.logger.Warn("dropped unreadable cache records", zap.Int("dropped", dropped))
	}
	c.metrics.CacheRecords.Set(float64(len(records)))
	return len(records)
}

// Save hands a snapshot of the records to store.
func (c *ProductCache) Save(ctx context.Context, store Store) error {
	return store.Save(ctx, c.Snapshot())
}

// Merge records the URLs observed by a crawl: every one gets last_seen =
// today, and new ones also get lastmod = today. It returns how many were new.
func (c *ProductCache) Merge(urls []string, today domain.Date) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := 0
	for _, u := range urls {
		if u == "" {
			continue
		}
		r, ok := c.records[u]
		if !ok {
			r = domain.ProductRecord{URL: u, Lastmod: today}
			added++
		}
		r.LastSeen = today
		c.records[u] = r
	}
	c.metrics.CacheRecords.Set(float64(len(c.records)))
	c.logger.Info("merged crawl results", zap.Int("observed", len(urls)), zap.Int("new", added), zap.Int("total", len(c.records)))
	return added
}

// RefreshStale checks every record whose age lies in
// [refreshAfterDays, retainDays) and renews the ones still alive. Failed checks
// leave the record untouched. It returns the number of renewed records.
func (c *ProductCache) RefreshStale(ctx context.Context, today domain.Date) int {
	var stale []string
	c.mu.RLock()
	for u, r := range c.records {
		if age := r.Age(today); age >= c.refreshAfterDays && age < c.retainDays {
			stale = append(stale, u)
		}
	}
	c.mu.RUnlock()
	if len(stale) == 0 {
		return 0
	}
	sort.Strings(stale)
	c.logger.Info("refreshing stale records", zap.Int("candidates", len(stale)), zap.Int("workers", c.refreshConcurrency))

	var (
		g       errgroup.Group
		renewed atomic.Int64
	)
	g.SetLimit(c.refreshConcurrency)
	for _, u := range stale {
		if ctx.Err() != nil {
			break
		}
		u := u
		g.Go(func() error {
			lastModified, err := c.checker.Check(ctx, u)
			if err != nil {
				c.metrics.IncRefresh("failed")
				c.logger.Debug("refresh check failed", zap.String("url", u), zap.Error(err))
				return nil
			}
			c.metrics.IncRefresh("alive")
			c.renew(u, lastModified, today)
			renewed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	n := int(renewed.Load())
	c.logger.Info("refresh finished", zap.Int("renewed", n), zap.Int("failed", len(stale)-n))
	return n
}

func (c *ProductCache) renew(u string, lastModified time.Time, today domain.Date) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[u]
	if !ok {
		return
	}
	r.LastSeen = today
	if !lastModified.IsZero() {
		lm := domain.DateOf(lastModified)
		if lm.After(today) {
			lm = today
		}
		r.Lastmod = lm
	}
	c.records[u] = r
}

// Prune drops every record older than retainDays and returns how many went.
func (c *ProductCache) Prune(today domain.Date) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	pruned := 0
	for u, r := range c.records {
		if r.Age(today) > c.retainDays {
			delete(c.records, u)
			pruned++
		}
	}
	c.metrics.PrunedTotal.Add(float64(pruned))
	c.metrics.CacheRecords.Set(float64(len(c.records)))
	c.logger.Info("pruned expired records", zap.Int("pruned", pruned), zap.Int("remaining", len(c.records)))
	return pruned
}

// Records returns the records sorted by URL.
func (c *ProductCache) Records() []domain.ProductRecord {
	c.mu.RLock()
	out := make([]domain.ProductRecord, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, r)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Snapshot returns a copy of the records keyed by URL.
func (c *ProductCache) Snapshot() map[string]domain.ProductRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]domain.ProductRecord, len(c.records))
	for u, r := range c.records {
		out[u] = r
	}
	return out
}

func (c *ProductCache) Get(url string) (domain.ProductRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.records[url]
	return r, ok
}

func (c *ProductCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

