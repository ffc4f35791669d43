package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "www.kellereiladen.de", cfg.TargetHost)
	assert.Equal(t, 4, cfg.MaxDepth)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, 45000, cfg.ChunkSize)
	assert.Equal(t, 14, cfg.RetainDays)
	assert.Equal(t, 10, cfg.RefreshAfterDays)
	assert.True(t, cfg.RespectRobots)
	assert.Len(t, cfg.SeedURLs, 4)
	assert.Len(t, cfg.BaseSitemaps, 3)
	assert.Empty(t, cfg.Proxies)
	assert.Equal(t, 60*time.Second, cfg.NavigationTimeout())
	assert.Equal(t, 250*time.Millisecond, cfg.CrawlDelay())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("RETAIN_DAYS", "30")
	t.Setenv("REFRESH_AFTER_DAYS", "20")
	t.Setenv("REFRESH_CONCURRENCY", "3")
	t.Setenv("REFRESH_TIMEOUT_SECONDS", "4")
	t.Setenv("RESPECT_ROBOTS", "false")
	t.Setenv("SEARCH_QUERIES", "x, y ,,z")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.RetainDays)
	assert.Equal(t, 20, cfg.RefreshAfterDays)
	assert.Equal(t, 3, cfg.RefreshConcurrency)
	assert.Equal(t, 4*time.Second, cfg.RefreshCheckTimeout())
	assert.False(t, cfg.RespectRobots)
	assert.Equal(t, []string{"x", "y", "z"}, cfg.SearchQueries)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("REFRESH_AFTER_DAYS", "14")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			TargetHost:         "shop.example",
			Concurrency:        1,
			MaxPages:           10,
			ChunkSize:          100,
			RetainDays:         14,
			RefreshAfterDays:   10,
			RefreshConcurrency: 1,
			RefreshRate:        1,
			SitemapBaseName:    "sitemap_products",
			IndexFile:          "sitemap_index.xml",
			ProductsCache:      "products_seen.json",
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty host", func(c *Config) { c.TargetHost = "" }},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }},
		{"negative depth", func(c *Config) { c.MaxDepth = -1 }},
		{"oversized chunk", func(c *Config) { c.ChunkSize = 50001 }},
		{"refresh after retain", func(c *Config) { c.RefreshAfterDays = 20 }},
		{"no refresh workers", func(c *Config) { c.RefreshConcurrency = 0 }},
		{"missing index name", func(c *Config) { c.IndexFile = "" }},
	}

	base := valid()
	require.NoError(t, base.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
