package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/user/product-sitemapper/internal/config"
	"github.com/user/product-sitemapper/internal/domain"
	"github.com/user/product-sitemapper/internal/monitoring"
)

// ProductLookup finds a record in the product cache.
type ProductLookup interface {
	Get(url string) (domain.ProductRecord, bool)
}

// Pinger is a backing store whose health is reported.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes metrics and the progress of the running crawl.
type Server struct {
	config     *config.Config
	router     http.Handler
	httpServer *http.Server
	progress   func() domain.CrawlStats
	products   ProductLookup
	stores     map[string]Pinger
	gatherer   prometheus.Gatherer
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

func NewServer(cfg *config.Config, progress func() domain.CrawlStats, products ProductLookup, stores map[string]Pinger, g prometheus.Gatherer, m *monitoring.Metrics, l *zap.Logger) *Server {
	s := &Server{
		config:   cfg,
		progress: progress,
		products: products,
		stores:   stores,
		gatherer: g,
		metrics:  m,
		logger:   l.With(zap.String("component", "api")),
	}
	s.router = s.setupRouter()
	s.httpServer = &http.Server{
		Addr:         cfg.APIAddr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start blocks serving requests. After Shutdown it returns http.ErrServerClosed,
// also when Shutdown ran first.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
