package proxy

import (
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Manager rotates the configured outbound proxies and carries the crawler's
// User-Agent for every client it hands out.
type Manager struct {
	proxies    []string
	userAgent  string
	mu         sync.Mutex
	proxyIndex int
}

func NewManager(proxies []string, userAgent string) *Manager {
	return &Manager{
		proxies:   append([]string(nil), proxies...),
		userAgent: userAgent,
	}
}

// GetProxy returns a proxy URL from the list, rotating sequentially.
func (m *Manager) GetProxy() string {
	if len(m.proxies) == 0 {
		return "" // No proxy
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	proxy := m.proxies[m.proxyIndex]
	m.proxyIndex = (m.proxyIndex + 1) % len(m.proxies)
	return proxy
}

func (m *Manager) GetUserAgent() string {
	return m.userAgent
}

// HTTPClient returns a client whose requests rotate through the proxies and
// carry the crawler's User-Agent unless the request sets its own.
func (m *Manager) HTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = m.proxyFunc
	return &http.Client{
		Timeout:   timeout,
		Transport: &uaTransport{base: transport, userAgent: m.userAgent},
	}
}

func (m *Manager) proxyFunc(*http.Request) (*url.URL, error) {
	p := m.GetProxy()
	if p == "" {
		return nil, nil
	}
	return url.Parse(p)
}

type uaTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *uaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent == "" || req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(r)
}
