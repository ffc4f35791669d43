package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/product-sitemapper/internal/config"
	"github.com/user/product-sitemapper/internal/crawler"
	"github.com/user/product-sitemapper/internal/proxy"
)

func TestIsTextual(t *testing.T) {
	for mime, want := range map[string]bool{
		"application/json":         true,
		"application/ld+json":      true,
		"text/html; charset=utf-8": true,
		"text/plain":               true,
		"application/xml":          true,
		"image/png":                false,
		"font/woff2":               false,
		"application/octet-stream": false,
	} {
		assert.Equal(t, want, isTextual(mime), mime)
	}
}

func TestJSLiterals(t *testing.T) {
	assert.Equal(t, `[]`, jsArray(nil))
	assert.Equal(t, `["a","b\"c"]`, jsArray([]string{"a", `b"c`}))
	assert.Equal(t, `"krimi <neu>"`, jsString("krimi <neu>"))
}

func findChrome(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("browser test skipped in short mode")
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("no Chrome binary on PATH")
}

const shopPage = `<!doctype html>
<html><body>
<button id="consent">Alle akzeptieren</button>
<a href="/buecher/die-assistentin-9783498007706">Die Assistentin</a>
<img src="/cover.jpg">
<script>
fetch('/api/list').then(r => r.json()).then(d => {
	const a = document.createElement('a');
	a.href = d.next;
	document.body.appendChild(a);
});
</script>
</body></html>`

func TestRendererHarvestsRenderedPage(t *testing.T) {
	findChrome(t)

	var mu sync.Mutex
	var imageHits int
	mux := http.NewServeMux()
	mux.HandleFunc("/buecher", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(shopPage))
	})
	mux.HandleFunc("/api/list", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"next":"/buecher/seite-2","isbn":"9783492064804"}`))
	})
	mux.HandleFunc("/cover.jpg", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		imageHits++
		mu.Unlock()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := &config.Config{Headless: true, SettleDelayMs: 200}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	r, err := NewRenderer(ctx, cfg, proxy.NewManager(nil, "TestBot/1.0"), zap.NewNop())
	require.NoError(t, err)
	defer r.Close()

	page, err := r.NewPage(ctx)
	require.NoError(t, err)

	var bodies []string
	var bmu sync.Mutex
	page.Intercept(func(resp crawler.Response) {
		bmu.Lock()
		bodies = append(bodies, string(resp.Body))
		bmu.Unlock()
	})

	require.NoError(t, page.Navigate(ctx, srv.URL+"/buecher", 20*time.Second))
	loc, err := page.Location(ctx)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/buecher", loc)
	assert.True(t, page.AttemptDismiss(ctx, []string{"#consent"}, nil))
	require.NoError(t, page.RevealMore(ctx, crawler.RevealOptions{Rounds: 1, ScrollRounds: 1, Settle: 300 * time.Millisecond}))

	links, err := page.Links(ctx)
	require.NoError(t, err)
	assert.Contains(t, links, srv.URL+"/buecher/die-assistentin-9783498007706")
	assert.Contains(t, links, srv.URL+"/buecher/seite-2")

	ok, err := page.Search(ctx, []string{"input[type='search']"}, "krimi")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, page.Close())
	require.NoError(t, page.Close())

	bmu.Lock()
	assert.Contains(t, bodies, `{"next":"/buecher/seite-2","isbn":"9783492064804"}`)
	bmu.Unlock()
	mu.Lock()
	assert.Zero(t, imageHits)
	mu.Unlock()
}
