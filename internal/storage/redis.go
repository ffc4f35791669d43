package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/user/product-sitemapper/internal/domain"
)

const redisCacheKey = "sitemapper:products"

// RedisStore mirrors the cache into a single Redis hash: field = URL, value =
// the JSON record.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(addr string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisStore{client: rdb, key: redisCacheKey}
}

func (s *RedisStore) Name() string {
	return "redis:" + s.key
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Load(ctx context.Context) (map[string]domain.ProductRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrCacheNotFound
	}

	records := make(map[string]domain.ProductRecord, len(fields))
	for u, raw := range fields {
		var r domain.ProductRecord
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			continue
		}
		r.URL = u
		records[u] = r
	}
	return records, nil
}

// Save replaces the hash in one MULTI/EXEC so readers never see a partial cache.
func (s *RedisStore) Save(ctx context.Context, records map[string]domain.ProductRecord) error {
	values := make(map[string]interface{}, len(records))
	for u, r := range records {
		raw, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode %s: %w", u, err)
		}
		values[u] = string(raw)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			pipe.HSet(ctx, s.key, values)
		}
		return nil
	})
	return err
}
