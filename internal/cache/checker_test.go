package cache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPChecker(t *testing.T) {
	var mu sync.Mutex
	var methods []string
	mux := http.NewServeMux()
	mux.HandleFunc("/alive-9783498007706", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", "Mon, 12 Oct 2026 08:30:00 GMT")
	})
	mux.HandleFunc("/nohead-9783498007707", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method)
		mu.Unlock()
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_, _ = w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("/badheader-9783498007708", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", "gestern")
	})
	mux.HandleFunc("/slow-9783498007709", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	checker := NewHTTPChecker(srv.Client(), 1000, 10, 200*time.Millisecond)
	ctx := context.Background()

	lm, err := checker.Check(ctx, srv.URL+"/alive-9783498007706")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 12, 8, 30, 0, 0, time.UTC), lm.UTC())

	lm, err = checker.Check(ctx, srv.URL+"/nohead-9783498007707")
	require.NoError(t, err)
	assert.True(t, lm.IsZero())
	assert.Equal(t, []string{http.MethodHead, http.MethodGet}, methods)

	lm, err = checker.Check(ctx, srv.URL+"/badheader-9783498007708")
	require.NoError(t, err)
	assert.True(t, lm.IsZero())

	_, err = checker.Check(ctx, srv.URL+"/gone-9783498007700")
	assert.ErrorIs(t, err, ErrCheckFailed)

	_, err = checker.Check(ctx, srv.URL+"/slow-9783498007709")
	assert.ErrorIs(t, err, ErrCheckFailed)
}
