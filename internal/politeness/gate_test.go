package politeness

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

const ua = "KellereiladenSitemapBot/1.0 (+https://sitemap.kellereiladen.de)"

func robotsServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, ua, r.Header.Get("User-Agent"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGateRespectsRobots(t *testing.T) {
	srv := robotsServer(t, http.StatusOK, `
User-agent: *
Disallow: /checkout
Disallow: /suche

User-agent: KellereiladenSitemapBot
Disallow: /account
`)

	g := Load(context.Background(), srv.Client(), srv.URL, ua, true, zap.NewNop())

	assert.True(t, g.IsAllowed(srv.URL+"/buecher-romane", ua))
	assert.False(t, g.IsAllowed(srv.URL+"/account/orders", ua))
	// The specific group replaces the wildcard group.
	assert.True(t, g.IsAllowed(srv.URL+"/checkout", ua))
	assert.False(t, g.IsAllowed(srv.URL+"/checkout", "OtherBot/2.0"))
}

func TestGateDisabledNeverConsultsPolicy(t *testing.T) {
	g := NewGate(false, denyAll{})
	assert.True(t, g.IsAllowed("https://www.kellereiladen.de/anything", ua))
}

func TestGateDegradesToAllowAll(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := robotsServer(t, http.StatusInternalServerError, "boom")
		g := Load(context.Background(), srv.Client(), srv.URL, ua, true, zap.NewNop())
		assert.True(t, g.IsAllowed(srv.URL+"/buecher", ua))
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := robotsServer(t, http.StatusOK, "")
		base := srv.URL
		srv.Close()
		g := Load(context.Background(), http.DefaultClient, base, ua, true, zap.NewNop())
		assert.True(t, g.IsAllowed(base+"/buecher", ua))
	})

	t.Run("bad base url", func(t *testing.T) {
		g := Load(context.Background(), http.DefaultClient, "://nope", ua, true, zap.NewNop())
		assert.True(t, g.IsAllowed("https://www.kellereiladen.de/buecher", ua))
	})
}

type denyAll struct{}

func (denyAll) TestAgent(string, string) bool { return false }

func TestAgentToken(t *testing.T) {
	assert.Equal(t, "KellereiladenSitemapBot", agentToken(ua))
	assert.Equal(t, "plain", agentToken("plain"))
}
