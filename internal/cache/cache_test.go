package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/product-sitemapper/internal/config"
	"github.com/user/product-sitemapper/internal/domain"
	"github.com/user/product-sitemapper/internal/monitoring"
)

const shop = "https://www.kellereiladen.de/"

func date(t *testing.T, s string) domain.Date {
	t.Helper()
	d, err := domain.ParseDate(s)
	require.NoError(t, err)
	return d
}

type checkResult struct {
	lastModified time.Time
	err          error
}

type fakeChecker struct {
	mu      sync.Mutex
	results map[string]checkResult
	checked []string
}

func (f *fakeChecker) Check(ctx context.Context, url string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checked = append(f.checked, url)
	r, ok := f.results[url]
	if !ok {
		return time.Time{}, ErrCheckFailed
	}
	return r.lastModified, r.err
}

type memStore struct {
	records map[string]domain.ProductRecord
	err     error
	saved   map[string]domain.ProductRecord
}

func (m *memStore) Load(context.Context) (map[string]domain.ProductRecord, error) {
	return m.records, m.err
}

func (m *memStore) Save(_ context.Context, r map[string]domain.ProductRecord) error {
	m.saved = r
	return nil
}

func newTestCache(checker Checker) *ProductCache {
	cfg := &config.Config{RetainDays: 14, RefreshAfterDays: 10, RefreshConcurrency: 4}
	return New(cfg, checker, monitoring.NewMetrics(prometheus.NewRegistry()), zap.NewNop())
}

func seed(t *testing.T, c *ProductCache, records map[string][2]string) {
	t.Helper()
	in := make(map[string]domain.ProductRecord, len(records))
	for u, d := range records {
		in[u] = domain.ProductRecord{LastSeen: date(t, d[0]), Lastmod: date(t, d[1])}
	}
	c.Load(context.Background(), &memStore{records: in}, date(t, "2026-10-19"))
}

func TestMergeSetsLastSeenAndKeepsLastmod(t *testing.T) {
	c := newTestCache(&fakeChecker{})
	seed(t, c, map[string][2]string{
		shop + "old-9783498007706": {"2026-10-01", "2026-09-15"},
	})

	today := date(t, "2026-10-19")
	added := c.Merge([]string{shop + "old-9783498007706", shop + "new-9783492064804", ""}, today)
	assert.Equal(t, 1, added)

	old, ok := c.Get(shop + "old-9783498007706")
	require.True(t, ok)
	assert.Equal(t, today, old.LastSeen)
	assert.Equal(t, "2026-09-15", old.Lastmod.String())

	fresh, ok := c.Get(shop + "new-9783492064804")
	require.True(t, ok)
	assert.Equal(t, today, fresh.LastSeen)
	assert.Equal(t, today, fresh.Lastmod)
	assert.Equal(t, shop+"new-9783492064804", fresh.URL)
}

func TestPruneDropsOnlyExpired(t *testing.T) {
	c := newTestCache(&fakeChecker{})
	seed(t, c, map[string][2]string{
		shop + "a-9783498007700": {"2026-10-19", "2026-10-19"}, // age 0
		shop + "a-9783498007701": {"2026-10-05", "2026-10-01"}, // age 14
		shop + "a-9783498007702": {"2026-10-04", "2026-10-01"}, // age 15
		shop + "a-9783498007703": {"2025-01-01", "2025-01-01"},
	})

	today := date(t, "2026-10-19")
	assert.Equal(t, 2, c.Prune(today))
	assert.Equal(t, 2, c.Len())
	for _, r := range c.Records() {
		assert.LessOrEqual(t, r.Age(today), 14, r.URL)
	}
	_, ok := c.Get(shop + "a-9783498007702")
	assert.False(t, ok)
}

func TestRefreshStaleWindow(t *testing.T) {
	lm := time.Date(2026, 10, 12, 8, 30, 0, 0, time.UTC)
	checker := &fakeChecker{results: map[string]checkResult{
		shop + "b-9783498007710": {lastModified: lm},
		shop + "b-9783498007711": {},
		shop + "b-9783498007712": {err: errors.New("404")},
		shop + "b-9783498007713": {lastModified: time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)},
		shop + "b-9783498007714": {},
		shop + "b-9783498007715": {},
	}}
	c := newTestCache(checker)
	seed(t, c, map[string][2]string{
		shop + "b-9783498007710": {"2026-10-09", "2026-09-01"}, // age 10: refreshed, lastmod from header
		shop + "b-9783498007711": {"2026-10-06", "2026-09-01"}, // age 13: refreshed, no header
		shop + "b-9783498007712": {"2026-10-07", "2026-09-01"}, // age 12: check fails
		shop + "b-9783498007713": {"2026-10-08", "2026-09-01"}, // age 11: future header clamped
		shop + "b-9783498007714": {"2026-10-10", "2026-09-01"}, // age 9: too young
		shop + "b-9783498007715": {"2026-10-05", "2026-09-01"}, // age 14: already expiring
	})

	today := date(t, "2026-10-19")
	assert.Equal(t, 3, c.RefreshStale(context.Background(), today))

	assert.ElementsMatch(t, []string{
		shop + "b-9783498007710",
		shop + "b-9783498007711",
		shop + "b-9783498007712",
		shop + "b-9783498007713",
	}, checker.checked)

	r, _ := c.Get(shop + "b-9783498007710")
	assert.Equal(t, today, r.LastSeen)
	assert.Equal(t, "2026-10-12", r.Lastmod.String())

	r, _ = c.Get(shop + "b-9783498007711")
	assert.Equal(t, today, r.LastSeen)
	assert.Equal(t, "2026-09-01", r.Lastmod.String())

	r, _ = c.Get(shop + "b-9783498007712")
	assert.Equal(t, "2026-10-07", r.LastSeen.String())

	r, _ = c.Get(shop + "b-9783498007713")
	assert.Equal(t, today, r.Lastmod)

	r, _ = c.Get(shop + "b-9783498007714")
	assert.Equal(t, "2026-10-10", r.LastSeen.String())
}

func TestLoadNormalizesRecords(t *testing.T) {
	c := newTestCache(&fakeChecker{})
	today := date(t, "2026-10-19")
	n := c.Load(context.Background(), &memStore{records: map[string]domain.ProductRecord{
		shop + "c-9783498007720": {LastSeen: date(t, "2026-10-10")},
		shop + "c-9783498007721": {Lastmod: date(t, "2026-10-10")},
		shop + "c-9783498007722": {LastSeen: date(t, "2027-01-01"), Lastmod: date(t, "2027-01-02")},
	}}, today)
	assert.Equal(t, 2, n)

	r, ok := c.Get(shop + "c-9783498007720")
	require.True(t, ok)
	assert.Equal(t, r.LastSeen, r.Lastmod)

	_, ok = c.Get(shop + "c-9783498007721")
	assert.False(t, ok)

	r, _ = c.Get(shop + "c-9783498007722")
	assert.Equal(t, today, r.LastSeen)
	assert.Equal(t, today, r.Lastmod)
}

func TestLoadFailureStartsEmpty(t *testing.T) {
	c := newTestCache(&fakeChecker{})
	c.Merge([]string{shop + "d-9783498007730"}, date(t, "2026-10-19"))

	n := c.Load(context.Background(), &memStore{err: errors.New("corrupt")}, date(t, "2026-10-19"))
	assert.Zero(t, n)
	assert.Zero(t, c.Len())
}

func TestRecordsSortedAndSaved(t *testing.T) {
	c := newTestCache(&fakeChecker{})
	today := date(t, "2026-10-19")
	c.Merge([]string{shop + "z-9783498007740", shop + "a-9783498007741", shop + "m-9783498007742"}, today)

	var urls []string
	for _, r := range c.Records() {
		urls = append(urls, r.URL)
	}
	assert.Equal(t, []string{shop + "a-9783498007741", shop + "m-9783498007742", shop + "z-9783498007740"}, urls)

	store := &memStore{}
	require.NoError(t, c.Save(context.Background(), store))
	assert.Len(t, store.saved, 3)
}
