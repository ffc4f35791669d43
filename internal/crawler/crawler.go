package crawler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/user/product-sitemapper/internal/classifier"
	"github.com/user/product-sitemapper/internal/config"
	"github.com/user/product-sitemapper/internal/domain"
	"github.com/user/product-sitemapper/internal/frontier"
	"github.com/user/product-sitemapper/internal/monitoring"
	"github.com/user/product-sitemapper/internal/politeness"
)

var (
	consentSelectors = []string{
		"#onetrust-accept-btn-handler",
		"#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll",
		"[data-testid='uc-accept-all-button']",
		"button.cookie-accept",
		".cc-allow",
	}
	consentTexts = []string{"alle akzeptieren", "akzeptieren", "zustimmen", "einverstanden", "accept all"}
	revealTexts  = []string{"mehr anzeigen", "mehr laden", "weitere artikel", "load more", "show more"}
	searchInputs = []string{"input[type='search']", "input[name='q']", "input[name='search']", "input[name='query']"}
)

// Crawler runs the page worker pool over one frontier.
type Crawler struct {
	config     *config.Config
	renderer   Renderer
	gate       *politeness.Gate
	classifier *classifier.Classifier
	frontier   *frontier.Frontier
	products   *ProductSet
	metrics    *monitoring.Metrics
	logger     *zap.Logger

	processed atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
	stopped   atomic.Bool
	wg        sync.WaitGroup
}

func NewCrawler(cfg *config.Config, r Renderer, g *politeness.Gate, cls *classifier.Classifier, m *monitoring.Metrics, l *zap.Logger) *Crawler {
	return &Crawler{
		config:     cfg,
		renderer:   r,
		gate:       g,
		classifier: cls,
		frontier:   frontier.New(cfg.MaxDepth),
		products:   NewProductSet(),
		metrics:    m,
		logger:     l.With(zap.String("component", "crawler")),
	}
}

// Run seeds the frontier and blocks until it is exhausted, the page budget is
// spent, or ctx is cancelled. It returns the product URLs discovered.
func (c *Crawler) Run(ctx context.Context, seeds []string) *ProductSet {
	c.frontier.Seed(seeds)
	c.metrics.FrontierLength.Set(float64(c.frontier.Len()))
	c.logger.Info("crawl started", zap.Int("seeds", len(seeds)), zap.Int("workers", c.config.Concurrency))

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i)
	}
	c.wg.Wait()

	c.logger.Info("crawl finished",
		zap.Int64("pages", c.processed.Load()),
		zap.Int64("failed", c.failed.Load()),
		zap.Int64("skipped", c.skipped.Load()),
		zap.Int("products", c.products.Len()),
		zap.Int("unvisited", c.frontier.Len()),
	)
	return c.products
}

// Stop asks workers to exit after their current page.
func (c *Crawler) Stop() {
	if c.stopped.CompareAndSwap(false, true) {
		c.frontier.Close()
	}
}

// Progress fills the crawl counters of stats.
func (c *Crawler) Progress(stats *domain.CrawlStats) {
	stats.PagesProcessed = c.processed.Load()
	stats.PagesFailed = c.failed.Load()
	stats.PagesSkipped = c.skipped.Load()
	stats.ProductsDiscovered = c.products.Len()
}

func (c *Crawler) worker(ctx context.Context, id int) {
	defer c.wg.Done()
	log := c.logger.With(zap.Int("worker", id))

	for {
		if c.stopped.Load() {
			return
		}
		entry, ok := c.frontier.Next(ctx)
		if !ok {
			return
		}

		attempted := c.process(ctx, log, entry)
		c.frontier.Done()
		c.metrics.FrontierLength.Set(float64(c.frontier.Len()))
		if !attempted {
			continue
		}

		if n := c.processed.Add(1); n >= int64(c.config.MaxPages) && !c.stopped.Load() {
			log.Info("page budget reached, stopping", zap.Int64("pages", n))
			c.Stop()
		}
		c.pause(ctx)
	}
}

// process renders and harvests one entry. It reports false when the entry was
// skipped without touching the network.
func (c *Crawler) process(ctx context.Context, log *zap.Logger, entry domain.FrontierEntry) bool {
	if !c.gate.IsAllowed(entry.URL, c.config.UserAgent) {
		log.Debug("disallowed by robots.txt", zap.String("url", entry.URL))
		c.skipped.Add(1)
		c.metrics.IncPages("skipped")
		return false
	}
	if entry.Depth > c.config.MaxDepth {
		c.skipped.Add(1)
		c.metrics.IncPages("skipped")
		return false
	}

	start := time.Now()
	err := c.renderAndHarvest(ctx, log, entry)
	c.metrics.PageDurationSecs.Observe(time.Since(start).Seconds())

	if err != nil {
		c.failed.Add(1)
		if errors.Is(err, ErrNavigationTimeout) {
			c.metrics.IncPages("timeout")
		} else {
			c.metrics.IncPages("failed")
		}
		log.Warn("page abandoned", zap.String("url", entry.URL), zap.Int("depth", entry.Depth), zap.Error(err))
		return true
	}
	c.metrics.IncPages("ok")
	log.Debug("page harvested", zap.String("url", entry.URL), zap.Int("depth", entry.Depth), zap.Int("products", c.products.Len()))
	return true
}

func (c *Crawler) renderAndHarvest(ctx context.Context, log *zap.Logger, entry domain.FrontierEntry) error {
	page, err := c.renderer.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	var (
		mu        sync.Mutex
		responses []Response
	)
	page.Intercept(func(r Response) {
		mu.Lock()
		responses = append(responses, r)
		mu.Unlock()
	})

	if err := page.Navigate(ctx, entry.URL, c.config.NavigationTimeout()); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	page.AttemptDismiss(ctx, consentSelectors, consentTexts)

	if err := page.RevealMore(ctx, RevealOptions{
		ButtonTexts:  revealTexts,
		Rounds:       c.config.RevealRounds,
		ScrollRounds: c.config.ScrollRounds,
		Settle:       c.config.SettleDelay(),
	}); err != nil {
		return fmt.Errorf("reveal content: %w", err)
	}

	hrefs, err := page.Links(ctx)
	if err != nil {
		return fmt.Errorf("collect links: %w", err)
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return fmt.Errorf("read html: %w", err)
	}
	c.harvest(entry, entry.URL, hrefs, html)

	if c.shouldSearch(entry.Depth) {
		c.searchFallback(ctx, log, page, entry)
	}

	// Close waits for in-flight response deliveries.
	if err := page.Close(); err != nil {
		log.Debug("close page", zap.String("url", entry.URL), zap.Error(err))
	}
	mu.Lock()
	captured := responses
	mu.Unlock()
	for _, r := range captured {
		c.addProducts(c.classifier.HarvestProductURLs(string(r.Body)))
	}
	return nil
}

// harvest feeds products into the accumulator and category pages back into
// the frontier. Relative links in html resolve against pageURL.
func (c *Crawler) harvest(entry domain.FrontierEntry, pageURL string, hrefs []string, html string) {
	next := entry.Depth + 1

	for _, href := range hrefs {
		canonical := classifier.Canonicalize(href)
		if !c.classifier.IsInternal(canonical) {
			continue
		}
		if c.classifier.LooksLikeProduct(canonical) {
			c.addProduct(canonical)
			continue
		}
		if c.inCategory(canonical) {
			c.frontier.Enqueue(canonical, next)
		}
	}

	c.addProducts(c.classifier.HarvestProductURLs(html))

	links, err := ExtractPageLinks(pageURL, html)
	if err != nil {
		return
	}
	for _, n := range links.Next {
		if c.classifier.IsInternal(n) {
			c.frontier.Enqueue(stripFragment(n), next)
		}
	}
	if links.Canonical != "" {
		c.addProducts([]string{links.Canonical})
	}
}

func (c *Crawler) addProducts(candidates []string) {
	for _, u := range candidates {
		canonical := classifier.Canonicalize(u)
		if c.classifier.LooksLikeProduct(canonical) {
			c.addProduct(canonical)
		}
	}
}

func (c *Crawler) addProduct(canonical string) {
	if c.products.Add(canonical) {
		c.metrics.ProductsFound.Inc()
	}
}

// shouldSearch reads the accumulator size without coordinating with other
// workers; the threshold is a soft heuristic.
func (c *Crawler) shouldSearch(depth int) bool {
	return c.config.SearchFallback &&
		depth <= 1 &&
		len(c.config.SearchQueries) > 0 &&
		c.products.Len() < c.config.SearchMinProducts
}

func (c *Crawler) searchFallback(ctx context.Context, log *zap.Logger, page Page, entry domain.FrontierEntry) {
	before := c.products.Len()
	for _, q := range c.config.SearchQueries {
		ok, err := page.Search(ctx, searchInputs, q)
		if err != nil {
			log.Debug("search fallback failed", zap.String("query", q), zap.Error(err))
			return
		}
		if !ok {
			log.Debug("no search box on page", zap.String("url", entry.URL))
			return
		}
		hrefs, err := page.Links(ctx)
		if err != nil {
			return
		}
		html, err := page.HTML(ctx)
		if err != nil {
			return
		}
		loc, err := page.Location(ctx)
		if err != nil || loc == "" {
			loc = entry.URL
		}
		c.harvest(entry, loc, hrefs, html)
	}
	log.Info("search fallback finished",
		zap.String("url", entry.URL),
		zap.Int("new_products", c.products.Len()-before),
	)
}

func (c *Crawler) inCategory(canonical string) bool {
	if c.config.CategoryPrefix == "" {
		return true
	}
	u, err := url.Parse(canonical)
	if err != nil {
		return false
	}
	return strings.HasPrefix(strings.ToLower(u.Path), strings.ToLower(c.config.CategoryPrefix))
}

func (c *Crawler) pause(ctx context.Context) {
	d := c.config.CrawlDelay()
	if j := c.config.CrawlJitter(); j > 0 {
		d += time.Duration(rand.Int63n(int64(j)))
	}
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func stripFragment(u string) string {
	if i := strings.IndexByte(u, '#'); i >= 0 {
		return u[:i]
	}
	return u
}
