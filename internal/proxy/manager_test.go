package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProxyRotates(t *testing.T) {
	m := NewManager([]string{"http://p1:8000", "http://p2:8000"}, "TestBot/1.0")

	assert.Equal(t, "http://p1:8000", m.GetProxy())
	assert.Equal(t, "http://p2:8000", m.GetProxy())
	assert.Equal(t, "http://p1:8000", m.GetProxy())
}

func TestGetProxyEmpty(t *testing.T) {
	m := NewManager(nil, "TestBot/1.0")
	assert.Empty(t, m.GetProxy())

	u, err := m.proxyFunc(nil)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestHTTPClientSetsUserAgent(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.UserAgent())
	}))
	defer srv.Close()

	client := NewManager(nil, "TestBot/1.0").HTTPClient(5 * time.Second)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "Other/2.0")
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{"TestBot/1.0", "Other/2.0"}, got)
	assert.Equal(t, "TestBot/1.0", NewManager(nil, "TestBot/1.0").GetUserAgent())
}
