package politeness

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// maxRobotsBytes bounds how much of a robots.txt we read.
const maxRobotsBytes = 512 << 10

// Policy is the robots capability the gate consults.
type Policy interface {
	TestAgent(path, agent string) bool
}

type allowAll struct{}

func (allowAll) TestAgent(string, string) bool { return true }

// Gate decides whether a URL may be crawled.
type Gate struct {
	respect bool
	policy  Policy
}

// NewGate wraps an already loaded policy. A nil policy allows everything.
func NewGate(respect bool, policy Policy) *Gate {
	if policy == nil {
		policy = allowAll{}
	}
	return &Gate{respect: respect, policy: policy}
}

// Load fetches robots.txt below baseURL. When respect is false nothing is
// fetched. Any failure to obtain or parse the file yields an allow-all gate.
func Load(ctx context.Context, client *http.Client, baseURL, userAgent string, respect bool, logger *zap.Logger) *Gate {
	if !respect {
		return NewGate(false, nil)
	}
	policy, err := fetchPolicy(ctx, client, baseURL, userAgent)
	if err != nil {
		logger.Warn("robots.txt unavailable, allowing all URLs", zap.String("base_url", baseURL), zap.Error(err))
		return NewGate(true, nil)
	}
	return NewGate(true, policy)
}

func fetchPolicy(ctx context.Context, client *http.Client, baseURL, userAgent string) (Policy, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	u.Path = "/robots.txt"
	u.RawQuery = ""
	u.Fragment = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	// robotstxt maps 5xx to disallow-all; here every non-2xx is a load failure.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch robots.txt: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}

// IsAllowed reports whether userAgent may fetch rawURL.
func (g *Gate) IsAllowed(rawURL, userAgent string) bool {
	if !g.respect {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return g.policy.TestAgent(path, agentToken(userAgent))
}

// agentToken reduces "Bot/1.0 (+url)" to "Bot" for group matching.
func agentToken(userAgent string) string {
	token := userAgent
	if i := strings.IndexAny(token, "/ "); i > 0 {
		token = token[:i]
	}
	return token
}
