package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/product-sitemapper/internal/domain"
)

const productCacheSchema = `
CREATE TABLE IF NOT EXISTS product_cache (
	url        TEXT PRIMARY KEY,
	last_seen  DATE NOT NULL,
	lastmod    DATE NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore mirrors the cache into the product_cache table.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Name() string {
	return "postgres:product_cache"
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, productCacheSchema)
	return err
}

func (s *PostgresStore) Load(ctx context.Context) (map[string]domain.ProductRecord, error) {
	rows, err := s.db.Query(ctx, `SELECT url, last_seen, lastmod FROM product_cache`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make(map[string]domain.ProductRecord)
	for rows.Next() {
		var (
			u                 string
			lastSeen, lastmod time.Time
		)
		if err := rows.Scan(&u, &lastSeen, &lastmod); err != nil {
			return nil, err
		}
		records[u] = domain.ProductRecord{URL: u, LastSeen: domain.DateOf(lastSeen), Lastmod: domain.DateOf(lastmod)}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrCacheNotFound
	}
	return records, nil
}

// Save makes the table equal to records within a single transaction.
func (s *PostgresStore) Save(ctx context.Context, records map[string]domain.ProductRecord) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	urls := make([]string, 0, len(records))
	for u := range records {
		urls = append(urls, u)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM product_cache WHERE NOT (url = ANY($1))`, urls); err != nil {
		return fmt.Errorf("delete pruned records: %w", err)
	}

	if len(records) > 0 {
		batch := &pgx.Batch{}
		for u, r := range records {
			batch.Queue(`INSERT INTO product_cache (url, last_seen, lastmod) VALUES ($1, $2, $3)
			             ON CONFLICT (url) DO UPDATE SET
			               last_seen = EXCLUDED.last_seen, lastmod = EXCLUDED.lastmod, updated_at = NOW()`,
				u, r.LastSeen.Time, r.Lastmod.Time)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert records: %w", err)
		}
	}

	return tx.Commit(ctx)
}
