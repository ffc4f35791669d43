// Package sitemap writes the product sitemap files and the sitemap index.
package sitemap

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/user/product-sitemapper/internal/config"
	"github.com/user/product-sitemapper/internal/domain"
	"github.com/user/product-sitemapper/pkg/utils"
)

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	Xmlns   string     `xml:"xmlns,attr"`
	URLs    []urlEntry `xml:"url"`
}

type urlEntry struct {
	Loc     string `xml:"loc"`
	Lastmod string `xml:"lastmod,omitempty"`
}

type sitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Xmlns    string       `xml:"xmlns,attr"`
	Sitemaps []indexEntry `xml:"sitemap"`
}

type indexEntry struct {
	Loc     string `xml:"loc"`
	Lastmod string `xml:"lastmod"`
}

// Emitter turns the final cache into chunked sitemap files plus an index.
// Output depends only on the records and the date.
type Emitter struct {
	dir          string
	baseName     string
	indexFile    string
	publicURL    string
	baseSitemaps []string
	chunkSize    int
	logger       *zap.Logger
}

func NewEmitter(cfg *config.Config, logger *zap.Logger) *Emitter {
	return &Emitter{
		dir:          cfg.OutputDir,
		baseName:     cfg.SitemapBaseName,
		indexFile:    cfg.IndexFile,
		publicURL:    cfg.SitemapPublicURL,
		baseSitemaps: cfg.BaseSitemaps,
		chunkSize:    cfg.ChunkSize,
		logger:       logger.With(zap.String("component", "sitemap")),
	}
}

// ChunkName returns the file name of the i-th product sitemap.
func ChunkName(baseName string, i int) string {
	if i == 0 {
		return baseName + ".xml"
	}
	return fmt.Sprintf("%s_%d.xml", baseName, i)
}

// Emit writes the product sitemaps and the index and returns the product file
// names in order. At least one product file is always written.
func (e *Emitter) Emit(records []domain.ProductRecord, today domain.Date) ([]string, error) {
	sorted := make([]domain.ProductRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].URL < sorted[j].URL })

	var files []string
	for i, start := 0, 0; start < len(sorted) || i == 0; i, start = i+1, start+e.chunkSize {
		end := min(start+e.chunkSize, len(sorted))
		name := ChunkName(e.baseName, i)
		if err := e.writeURLSet(name, sorted[start:end], today); err != nil {
			return files, err
		}
		files = append(files, name)
		e.logger.Debug("sitemap chunk written", zap.String("file", name), zap.Int("urls", end-start))
	}

	if err := e.WriteIndex(files, today); err != nil {
		return files, err
	}
	e.removeStaleChunks(len(files))

	e.logger.Info("sitemaps written", zap.Int("urls", len(sorted)), zap.Strings("files", files))
	return files, nil
}

func (e *Emitter) writeURLSet(name string, records []domain.ProductRecord, today domain.Date) error {
	set := urlSet{Xmlns: sitemapNS, URLs: make([]urlEntry, 0, len(records))}
	for _, r := range records {
		lastmod := r.Lastmod
		if lastmod.IsZero() {
			lastmod = r.LastSeen
		}
		if lastmod.IsZero() {
			lastmod = today
		}
		set.URLs = append(set.URLs, urlEntry{Loc: r.URL, Lastmod: lastmod.String()})
	}
	return e.writeXML(name, set)
}

// WriteIndex (re)writes the index: the base sitemaps first, then the product
// files, each stamped with today. Duplicates are listed once.
func (e *Emitter) WriteIndex(files []string, today domain.Date) error {
	idx := sitemapIndex{Xmlns: sitemapNS}
	seen := make(map[string]struct{})
	add := func(loc string) {
		if _, ok := seen[loc]; ok || loc == "" {
			return
		}
		seen[loc] = struct{}{}
		idx.Sitemaps = append(idx.Sitemaps, indexEntry{Loc: loc, Lastmod: today.String()})
	}
	for _, base := range e.baseSitemaps {
		add(base)
	}
	for _, f := range files {
		add(utils.JoinURL(e.publicURL, f))
	}
	return e.writeXML(e.indexFile, idx)
}

func (e *Emitter) writeXML(name string, v any) error {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	buf.WriteByte('\n')

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return utils.WriteFileAtomic(filepath.Join(e.dir, name), buf.Bytes())
}

// removeStaleChunks deletes product files left over from a run that wrote
// more chunks than this one.
func (e *Emitter) removeStaleChunks(written int) {
	matches, err := filepath.Glob(filepath.Join(e.dir, e.baseName+"_*.xml"))
	if err != nil {
		return
	}
	prefix := e.baseName + "_"
	for _, path := range matches {
		suffix := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), prefix), ".xml")
		i, err := strconv.Atoi(suffix)
		if err != nil || i < written {
			continue
		}
		if err := os.Remove(path); err != nil {
			e.logger.Warn("remove stale sitemap", zap.String("file", path), zap.Error(err))
			continue
		}
		e.logger.Info("removed stale sitemap", zap.String("file", filepath.Base(path)))
	}
}
