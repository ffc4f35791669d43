package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	PagesTotal       *prometheus.CounterVec
	ProductsFound    prometheus.Gauge
	FrontierLength   prometheus.Gauge
	RefreshTotal     *prometheus.CounterVec
	CacheRecords     prometheus.Gauge
	PrunedTotal      prometheus.Counter
	SitemapFiles     prometheus.Gauge
	PageDurationSecs prometheus.Histogram

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg. Tests pass a fresh registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sitemapper_pages_total",
			Help: "Pages taken from the frontier, by result",
		}, []string{"result"}), // "ok", "failed", "timeout", "skipped"
		ProductsFound: f.NewGauge(prometheus.GaugeOpts{
			Name: "sitemapper_products_discovered",
			Help: "Distinct product URLs discovered in the current run",
		}),
		FrontierLength: f.NewGauge(prometheus.GaugeOpts{
			Name: "sitemapper_frontier_length",
			Help: "Entries waiting in the frontier",
		}),
		RefreshTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sitemapper_refresh_checks_total",
			Help: "Staleness checks, by result",
		}, []string{"result"}), // "alive", "failed"
		CacheRecords: f.NewGauge(prometheus.GaugeOpts{
			Name: "sitemapper_cache_records",
			Help: "Product records held in the cache",
		}),
		PrunedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "sitemapper_pruned_records_total",
			Help: "Product records dropped after the retention window",
		}),
		SitemapFiles: f.NewGauge(prometheus.GaugeOpts{
			Name: "sitemapper_sitemap_files",
			Help: "Product sitemap files written by the last emission",
		}),
		PageDurationSecs: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitemapper_page_duration_seconds",
			Help:    "Time spent rendering and harvesting one page",
			Buckets: []float64{1, 5, 10, 15, 30, 60, 120},
		}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sitemapper_http_requests_total",
			Help: "Status API requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitemapper_http_request_duration_seconds",
			Help:    "Status API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) IncPages(result string) {
	m.PagesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncRefresh(result string) {
	m.RefreshTotal.WithLabelValues(result).Inc()
}
