package sitemap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const categorySitemap = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://www.kellereiladen.de/buecher-romane</loc></url>
  <url><loc> https://www.kellereiladen.de/Buecher-Fantasy </loc></url>
  <url><loc>https://www.kellereiladen.de/buecher-romane</loc></url>
  <url><loc>https://www.kellereiladen.de/spielwaren</loc></url>
  <url><loc>https://other.example/buecher-krimi</loc></url>
</urlset>`

var fallback = []string{"https://www.kellereiladen.de/buecher-krimi-und-thriller"}

func TestParseSeeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sitemap_categories.xml")
	require.NoError(t, os.WriteFile(path, []byte(categorySitemap), 0o644))

	seeds, err := Seeds(path, "www.kellereiladen.de", "/buecher", fallback)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.kellereiladen.de/buecher-romane",
		"https://www.kellereiladen.de/Buecher-Fantasy",
	}, seeds)
}

func TestSeedsFallback(t *testing.T) {
	dir := t.TempDir()

	seeds, err := Seeds(filepath.Join(dir, "missing.xml"), "www.kellereiladen.de", "/buecher", fallback)
	assert.Error(t, err)
	assert.Equal(t, fallback, seeds)

	malformed := filepath.Join(dir, "broken.xml")
	require.NoError(t, os.WriteFile(malformed, []byte(`<urlset><url><loc>https://www.kellereiladen.de/spielwaren</lo></urlset>`), 0o644))
	seeds, _ = Seeds(malformed, "www.kellereiladen.de", "/buecher", fallback)
	assert.Equal(t, fallback, seeds)

	empty := filepath.Join(dir, "empty.xml")
	require.NoError(t, os.WriteFile(empty, []byte(`<urlset></urlset>`), 0o644))
	seeds, err = Seeds(empty, "www.kellereiladen.de", "/buecher", fallback)
	assert.NoError(t, err)
	assert.Equal(t, fallback, seeds)
}
