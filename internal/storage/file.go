package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/user/product-sitemapper/internal/domain"
	"github.com/user/product-sitemapper/pkg/utils"
)

// FileStore keeps the cache as a pretty-printed JSON object keyed by URL.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Name() string {
	return "file:" + s.path
}

func (s *FileStore) Load(ctx context.Context) (map[string]domain.ProductRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrCacheNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	var records map[string]domain.ProductRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	for u, r := range records {
		r.URL = u
		records[u] = r
	}
	return records, nil
}

// Save replaces the file atomically: a crash mid-write leaves the previous
// cache intact.
func (s *FileStore) Save(ctx context.Context, records map[string]domain.ProductRecord) error {
	if records == nil {
		records = map[string]domain.ProductRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}

	return utils.WriteFileAtomic(s.path, append(data, '\n'))
}
