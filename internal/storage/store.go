// Package storage persists the product cache between runs.
package storage

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/user/product-sitemapper/internal/domain"
)

// ErrCacheNotFound is returned by Load when a store holds no cache yet.
var ErrCacheNotFound = errors.New("product cache not found")

// Store loads and saves the whole product cache, keyed by canonical URL.
type Store interface {
	Name() string
	Load(ctx context.Context) (map[string]domain.ProductRecord, error)
	Save(ctx context.Context, records map[string]domain.ProductRecord) error
}

// Chain reads from the first store that can deliver a cache and writes to all
// of them. The primary store must accept writes; mirrors are best-effort.
type Chain struct {
	primary Store
	mirrors []Store
	logger  *zap.Logger
}

func NewChain(primary Store, mirrors []Store, logger *zap.Logger) *Chain {
	return &Chain{
		primary: primary,
		mirrors: mirrors,
		logger:  logger.With(zap.String("component", "storage")),
	}
}

func (c *Chain) Name() string {
	return "chain(" + c.primary.Name() + ")"
}

// Load returns the first cache any store can produce, trying the primary
// first. When none can, it returns ErrCacheNotFound.
func (c *Chain) Load(ctx context.Context) (map[string]domain.ProductRecord, error) {
	for _, s := range append([]Store{c.primary}, c.mirrors...) {
		records, err := s.Load(ctx)
		if err == nil {
			c.logger.Info("product cache loaded", zap.String("store", s.Name()), zap.Int("records", len(records)))
			return records, nil
		}
		if errors.Is(err, ErrCacheNotFound) {
			c.logger.Info("no product cache in store", zap.String("store", s.Name()))
			continue
		}
		c.logger.Warn("product cache unreadable", zap.String("store", s.Name()), zap.Error(err))
	}
	return nil, ErrCacheNotFound
}

// Save writes the primary store and then every mirror. Only a primary failure
// is returned.
func (c *Chain) Save(ctx context.Context, records map[string]domain.ProductRecord) error {
	if err := c.primary.Save(ctx, records); err != nil {
		return err
	}
	for _, m := range c.mirrors {
		if err := m.Save(ctx, records); err != nil {
			c.logger.Warn("mirror save failed", zap.String("store", m.Name()), zap.Error(err))
		}
	}
	return nil
}
