package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/user/product-sitemapper/internal/api"
	"github.com/user/product-sitemapper/internal/browser"
	"github.com/user/product-sitemapper/internal/cache"
	"github.com/user/product-sitemapper/internal/classifier"
	"github.com/user/product-sitemapper/internal/config"
	"github.com/user/product-sitemapper/internal/crawler"
	"github.com/user/product-sitemapper/internal/domain"
	"github.com/user/product-sitemapper/internal/monitoring"
	"github.com/user/product-sitemapper/internal/politeness"
	"github.com/user/product-sitemapper/internal/proxy"
	"github.com/user/product-sitemapper/internal/sitemap"
	"github.com/user/product-sitemapper/internal/storage"
	"github.com/user/product-sitemapper/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "sitemapper:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	today := domain.Today()
	state := &runState{stats: domain.CrawlStats{StartedAt: time.Now(), Phase: "starting"}}

	// Initialize Monitoring, Proxies
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)
	proxies := proxy.NewManager(cfg.Proxies, cfg.UserAgent)

	// Initialize Storage Layer
	store, pingers, closeStores := openStores(ctx, cfg, log)
	defer closeStores()

	checker := cache.NewHTTPChecker(proxies.HTTPClient(cfg.RefreshCheckTimeout()), cfg.RefreshRate, cfg.RefreshConcurrency, cfg.RefreshCheckTimeout())
	products := cache.New(cfg, checker, metrics, log)
	products.Load(ctx, store, today)

	if cfg.APIAddr != "" {
		server := api.NewServer(cfg, state.snapshot, products, pingers, reg, metrics, log)
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("could not start api server", zap.Error(err))
			}
		}()
		log.Info("api server started", zap.String("addr", cfg.APIAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error("api server forced to shutdown", zap.Error(err))
			}
		}()
	}

	gate := politeness.Load(ctx, proxies.HTTPClient(15*time.Second), cfg.StartURL, cfg.UserAgent, cfg.RespectRobots, log)

	seeds, err := sitemap.Seeds(cfg.CategorySitemap, cfg.TargetHost, cfg.CategoryPrefix, cfg.SeedURLs)
	if err != nil {
		log.Warn("category sitemap unusable, using built-in seeds", zap.String("file", cfg.CategorySitemap), zap.Error(err))
	}

	renderer, err := browser.NewRenderer(ctx, cfg, proxies, log)
	if err != nil {
		log.Error("browser launch failed", zap.Error(err))
		return err
	}

	// Initialize Core Crawler
	c := crawler.NewCrawler(cfg, renderer, gate, classifier.New(cfg.TargetHost), metrics, log)
	state.setPhase("crawling", c)
	found := c.Run(ctx, seeds)
	renderer.Close()

	interrupted := ctx.Err() != nil
	if interrupted {
		log.Warn("crawl interrupted, writing what was discovered")
	}
	// Outputs are written even after an interrupt.
	out := context.WithoutCancel(ctx)

	products.Merge(found.Sorted(), today)

	state.setPhase("refreshing", nil)
	refreshed := 0
	if !interrupted {
		refreshed = products.RefreshStale(ctx, today)
	}
	pruned := products.Prune(today)

	if err := products.Save(out, store); err != nil {
		return fmt.Errorf("save product cache: %w", err)
	}

	state.setPhase("emitting", nil)
	files, err := sitemap.NewEmitter(cfg, log).Emit(products.Records(), today)
	if err != nil {
		return fmt.Errorf("write sitemaps: %w", err)
	}
	metrics.SitemapFiles.Set(float64(len(files)))

	stats := state.finish(refreshed, pruned, products.Len(), files)
	log.Info("run finished",
		zap.Int64("pages", stats.PagesProcessed),
		zap.Int64("pages_failed", stats.PagesFailed),
		zap.Int64("pages_skipped", stats.PagesSkipped),
		zap.Int("products_discovered", stats.ProductsDiscovered),
		zap.Int("records_refreshed", stats.RecordsRefreshed),
		zap.Int("records_pruned", stats.RecordsPruned),
		zap.Int("records_total", stats.RecordsTotal),
		zap.Strings("files", stats.SitemapFiles),
		zap.Duration("elapsed", stats.FinishedAt.Sub(stats.StartedAt)),
		zap.Bool("interrupted", interrupted),
	)
	return nil
}

// openStores builds the cache store chain: the JSON file plus whichever
// mirrors are configured and reachable.
func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Store, map[string]api.Pinger, func()) {
	var (
		mirrors []storage.Store
		closers []func()
	)
	pingers := make(map[string]api.Pinger)

	if cfg.RedisAddr != "" {
		rs := storage.NewRedisStore(cfg.RedisAddr)
		if err := rs.Ping(ctx); err != nil {
			log.Warn("redis unavailable, mirror disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			rs.Close()
		} else {
			mirrors = append(mirrors, rs)
			pingers["redis"] = rs
			closers = append(closers, func() { rs.Close() })
		}
	}

	if cfg.PostgresURL != "" {
		ps, err := storage.NewPostgresStore(ctx, cfg.PostgresURL)
		if err == nil {
			if err = ps.EnsureSchema(ctx); err != nil {
				ps.Close()
			}
		}
		if err != nil {
			log.Warn("postgres unavailable, mirror disabled", zap.Error(err))
		} else {
			mirrors = append(mirrors, ps)
			pingers["postgres"] = ps
			closers = append(closers, ps.Close)
		}
	}

	chain := storage.NewChain(storage.NewFileStore(cfg.ProductsCache), mirrors, log)
	return chain, pingers, func() {
		for _, c := range closers {
			c()
		}
	}
}

// runState is the progress served by the status API.
type runState struct {
	mu      sync.Mutex
	stats   domain.CrawlStats
	crawler *crawler.Crawler
}

func (s *runState) setPhase(phase string, c *crawler.Crawler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Phase = phase
	if c != nil {
		s.crawler = c
	}
}

func (s *runState) snapshot() domain.CrawlStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.crawler != nil {
		s.crawler.Progress(&s.stats)
	}
	stats := s.stats
	stats.SitemapFiles = append([]string(nil), s.stats.SitemapFiles...)
	return stats
}

func (s *runState) finish(refreshed, pruned, total int, files []string) domain.CrawlStats {
	s.mu.Lock()
	s.stats.Phase = "done"
	s.stats.FinishedAt = time.Now()
	s.stats.RecordsRefreshed = refreshed
	s.stats.RecordsPruned = pruned
	s.stats.RecordsTotal = total
	s.stats.SitemapFiles = files
	s.mu.Unlock()
	return s.snapshot()
}
