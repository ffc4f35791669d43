package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the crawl configuration. It is resolved once at startup and never
// mutated afterwards.
type Config struct {
	TargetHost      string   `mapstructure:"TARGET_HOST"`
	StartURL        string   `mapstructure:"START_URL"`
	UserAgent       string   `mapstructure:"USER_AGENT"`
	CategoryPrefix  string   `mapstructure:"CATEGORY_PREFIX"`
	CategorySitemap string   `mapstructure:"CATEGORY_SITEMAP"`
	SeedURLs        []string `mapstructure:"SEED_URLS"`

	MaxDepth      int  `mapstructure:"MAX_DEPTH"`
	Concurrency   int  `mapstructure:"CONCURRENCY"`
	SettleDelayMs int  `mapstructure:"SETTLE_DELAY_MS"`
	CrawlDelayMs  int  `mapstructure:"CRAWL_DELAY_MS"`
	CrawlJitterMs int  `mapstructure:"CRAWL_JITTER_MS"`
	MaxPages      int  `mapstructure:"MAX_PAGES"`
	NavTimeout    int  `mapstructure:"NAV_TIMEOUT_SECONDS"`
	Headless      bool `mapstructure:"HEADLESS"`
	RevealRounds  int  `mapstructure:"REVEAL_ROUNDS"`
	ScrollRounds  int  `mapstructure:"SCROLL_ROUNDS"`

	SearchFallback    bool     `mapstructure:"SEARCH_FALLBACK"`
	SearchMinProducts int      `mapstructure:"SEARCH_MIN_PRODUCTS"`
	SearchQueries     []string `mapstructure:"SEARCH_QUERIES"`

	ChunkSize          int     `mapstructure:"CHUNK_SIZE"`
	RetainDays         int     `mapstructure:"RETAIN_DAYS"`
	RefreshAfterDays   int     `mapstructure:"REFRESH_AFTER_DAYS"`
	RefreshConcurrency int     `mapstructure:"REFRESH_CONCURRENCY"`
	RefreshTimeout     int     `mapstructure:"REFRESH_TIMEOUT_SECONDS"`
	RefreshRate        float64 `mapstructure:"REFRESH_RATE_PER_SECOND"`
	RespectRobots      bool    `mapstructure:"RESPECT_ROBOTS"`

	OutputDir        string   `mapstructure:"OUTPUT_DIR"`
	ProductsCache    string   `mapstructure:"PRODUCTS_CACHE"`
	SitemapBaseName  string   `mapstructure:"SITEMAP_BASE_NAME"`
	IndexFile        string   `mapstructure:"INDEX_FILE"`
	SitemapPublicURL string   `mapstructure:"SITEMAP_PUBLIC_URL"`
	BaseSitemaps     []string `mapstructure:"BASE_SITEMAPS"`

	RedisAddr   string   `mapstructure:"REDIS_ADDR"`
	PostgresURL string   `mapstructure:"POSTGRES_URL"`
	Proxies     []string `mapstructure:"PROXIES"`
	APIAddr     string   `mapstructure:"API_ADDR"`
	LogLevel    string   `mapstructure:"LOG_LEVEL"`
}

// Load reads configuration from an optional .env file and the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// A missing .env is fine; production runs are configured purely through the environment.
	_ = v.ReadInConfig()

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.SeedURLs = compact(cfg.SeedURLs)
	cfg.SearchQueries = compact(cfg.SearchQueries)
	cfg.BaseSitemaps = compact(cfg.BaseSitemaps)
	cfg.Proxies = compact(cfg.Proxies)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("TARGET_HOST", "www.kellereiladen.de")
	v.SetDefault("START_URL", "https://www.kellereiladen.de")
	v.SetDefault("USER_AGENT", "KellereiladenSitemapBot/1.0 (+https://sitemap.kellereiladen.de)")
	v.SetDefault("CATEGORY_PREFIX", "/buecher")
	v.SetDefault("CATEGORY_SITEMAP", "sitemap_categories.xml")
	v.SetDefault("SEED_URLS", []string{
		"https://www.kellereiladen.de/buecher-romane",
		"https://www.kellereiladen.de/buecher-krimi-und-thriller",
		"https://www.kellereiladen.de/buecher-historische-romane",
		"https://www.kellereiladen.de/buecher-fantasy",
	})

	v.SetDefault("MAX_DEPTH", 4)
	v.SetDefault("CONCURRENCY", 2)
	v.SetDefault("SETTLE_DELAY_MS", 800)
	v.SetDefault("CRAWL_DELAY_MS", 250)
	v.SetDefault("CRAWL_JITTER_MS", 150)
	v.SetDefault("MAX_PAGES", 20000)
	v.SetDefault("NAV_TIMEOUT_SECONDS", 60)
	v.SetDefault("HEADLESS", true)
	v.SetDefault("REVEAL_ROUNDS", 4)
	v.SetDefault("SCROLL_ROUNDS", 12)

	v.SetDefault("SEARCH_FALLBACK", true)
	v.SetDefault("SEARCH_MIN_PRODUCTS", 25)
	v.SetDefault("SEARCH_QUERIES", []string{"a", "e", "i", "roman", "krimi"})

	v.SetDefault("CHUNK_SIZE", 45000)
	v.SetDefault("RETAIN_DAYS", 14)
	v.SetDefault("REFRESH_AFTER_DAYS", 10)
	v.SetDefault("REFRESH_CONCURRENCY", 8)
	v.SetDefault("REFRESH_TIMEOUT_SECONDS", 10)
	v.SetDefault("REFRESH_RATE_PER_SECOND", 5.0)
	v.SetDefault("RESPECT_ROBOTS", true)

	v.SetDefault("OUTPUT_DIR", ".")
	v.SetDefault("PRODUCTS_CACHE", "products_seen.json")
	v.SetDefault("SITEMAP_BASE_NAME", "sitemap_products")
	v.SetDefault("INDEX_FILE", "sitemap_index.xml")
	v.SetDefault("SITEMAP_PUBLIC_URL", "https://sitemap.kellereiladen.de/")
	v.SetDefault("BASE_SITEMAPS", []string{
		"https://sitemap.kellereiladen.de/sitemap.xml",
		"https://sitemap.kellereiladen.de/sitemap_categories.xml",
		"https://sitemap.kellereiladen.de/sitemap_auto.xml",
	})

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("POSTGRES_URL", "")
	v.SetDefault("PROXIES", []string{})
	v.SetDefault("API_ADDR", "")
	v.SetDefault("LOG_LEVEL", "info")
}

// Validate rejects settings the crawl cannot honour.
func (c *Config) Validate() error {
	switch {
	case c.TargetHost == "":
		return fmt.Errorf("%w: TARGET_HOST is empty", ErrInvalidConfig)
	case c.Concurrency < 1:
		return fmt.Errorf("%w: CONCURRENCY must be at least 1", ErrInvalidConfig)
	case c.MaxDepth < 0:
		return fmt.Errorf("%w: MAX_DEPTH must not be negative", ErrInvalidConfig)
	case c.MaxPages < 1:
		return fmt.Errorf("%w: MAX_PAGES must be at least 1", ErrInvalidConfig)
	case c.ChunkSize < 1 || c.ChunkSize > 50000:
		return fmt.Errorf("%w: CHUNK_SIZE must be within 1..50000", ErrInvalidConfig)
	case c.RetainDays < 0:
		return fmt.Errorf("%w: RETAIN_DAYS must not be negative", ErrInvalidConfig)
	case c.RefreshAfterDays < 0 || c.RefreshAfterDays >= c.RetainDays:
		return fmt.Errorf("%w: REFRESH_AFTER_DAYS must be within 0..RETAIN_DAYS-1", ErrInvalidConfig)
	case c.RefreshConcurrency < 1:
		return fmt.Errorf("%w: REFRESH_CONCURRENCY must be at least 1", ErrInvalidConfig)
	case c.RefreshRate <= 0:
		return fmt.Errorf("%w: REFRESH_RATE_PER_SECOND must be positive", ErrInvalidConfig)
	case c.SitemapBaseName == "" || c.IndexFile == "" || c.ProductsCache == "":
		return fmt.Errorf("%w: output file names must not be empty", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

func (c *Config) CrawlDelay() time.Duration {
	return time.Duration(c.CrawlDelayMs) * time.Millisecond
}

func (c *Config) CrawlJitter() time.Duration {
	return time.Duration(c.CrawlJitterMs) * time.Millisecond
}

func (c *Config) NavigationTimeout() time.Duration {
	return time.Duration(c.NavTimeout) * time.Second
}

func (c *Config) RefreshCheckTimeout() time.Duration {
	return time.Duration(c.RefreshTimeout) * time.Second
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
