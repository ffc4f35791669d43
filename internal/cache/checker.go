package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

var ErrCheckFailed = errors.New("existence check failed")

// maxDrain bounds how much of a GET body is read before the connection is reused.
const maxDrain = 64 << 10

// HTTPChecker confirms product URLs with a HEAD request, falling back to GET
// when the server rejects HEAD. Requests are rate limited across all workers.
type HTTPChecker struct {
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
}

func NewHTTPChecker(client *http.Client, perSecond float64, burst int, timeout time.Duration) *HTTPChecker {
	if burst < 1 {
		burst = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPChecker{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		timeout: timeout,
	}
}

func (h *HTTPChecker) Check(ctx context.Context, url string) (time.Time, error) {
	resp, err := h.do(ctx, http.MethodHead, url)
	if err != nil || headRejected(resp.StatusCode) {
		if resp != nil {
			resp.Body.Close()
		}
		resp, err = h.do(ctx, http.MethodGet, url)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrCheckFailed, url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return time.Time{}, fmt.Errorf("%w: %s: status %d", ErrCheckFailed, url, resp.StatusCode)
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			return t, nil
		}
	}
	return time.Time{}, nil
}

func (h *HTTPChecker) do(ctx context.Context, method, url string) (*http.Response, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	// The caller reads the body, so the deadline ends with its Close.
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func headRejected(status int) bool {
	return status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
