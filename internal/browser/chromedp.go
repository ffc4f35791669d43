// Package browser renders shop pages in headless Chrome through chromedp.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/product-sitemapper/internal/config"
	"github.com/user/product-sitemapper/internal/crawler"
	"github.com/user/product-sitemapper/internal/proxy"
)

// bodyFetchTimeout bounds a single Network.getResponseBody call.
const bodyFetchTimeout = 10 * time.Second

var blockedResourceTypes = []network.ResourceType{
	network.ResourceTypeImage,
	network.ResourceTypeMedia,
	network.ResourceTypeFont,
}

// Renderer owns one browser process. Every page is a tab of that browser.
type Renderer struct {
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	settle        time.Duration
	logger        *zap.Logger
}

// NewRenderer launches the browser. A launch failure is returned instead of
// surfacing later on the first page.
func NewRenderer(ctx context.Context, cfg *config.Config, pm *proxy.Manager, logger *zap.Logger) (*Renderer, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(pm.GetUserAgent()),
	)
	if p := pm.GetProxy(); p != "" {
		opts = append(opts, chromedp.ProxyServer(p))
	}

	r := &Renderer{
		settle: cfg.SettleDelay(),
		logger: logger.With(zap.String("component", "browser")),
	}
	r.allocCtx, r.allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	r.browserCtx, r.browserCancel = chromedp.NewContext(r.allocCtx)

	// The first Run on the browser context starts the process.
	if err := chromedp.Run(r.browserCtx); err != nil {
		r.Close()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	r.logger.Info("browser launched", zap.Bool("headless", cfg.Headless))
	return r, nil
}

// Close shuts the browser down.
func (r *Renderer) Close() {
	if r.browserCancel != nil {
		r.browserCancel()
	}
	if r.allocCancel != nil {
		r.allocCancel()
	}
}

// NewPage opens a fresh tab. The tab is closed when ctx is cancelled.
func (r *Renderer) NewPage(ctx context.Context) (crawler.Page, error) {
	tabCtx, cancel := chromedp.NewContext(r.browserCtx)
	p := &page{
		ctx:    tabCtx,
		cancel: cancel,
		settle: r.settle,
		logger: r.logger,
	}
	p.stopAfter = context.AfterFunc(ctx, p.cancel)

	chromedp.ListenTarget(tabCtx, p.onEvent)

	patterns := make([]*fetch.RequestPattern, 0, len(blockedResourceTypes))
	for _, t := range blockedResourceTypes {
		patterns = append(patterns, &fetch.RequestPattern{URLPattern: "*", ResourceType: t})
	}
	if err := chromedp.Run(tabCtx,
		network.Enable(),
		fetch.Enable().WithPatterns(patterns),
	); err != nil {
		p.Close()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return p, nil
}

type page struct {
	ctx       context.Context
	cancel    context.CancelFunc
	stopAfter func() bool
	settle    time.Duration
	logger    *zap.Logger

	mu        sync.Mutex
	handle    func(crawler.Response)
	responses map[network.RequestID]*network.Response
	closing   bool
	pending   sync.WaitGroup
	closeOnce sync.Once
}

func (p *page) Intercept(handle func(crawler.Response)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handle = handle
	p.responses = make(map[network.RequestID]*network.Response)
}

func (p *page) onEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *fetch.EventRequestPaused:
		p.spawn(func(ctx context.Context) {
			_ = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(ctx)
		})
	case *network.EventResponseReceived:
		if ev.Response == nil || !isTextual(ev.Response.MimeType) {
			return
		}
		p.mu.Lock()
		if p.responses != nil {
			p.responses[ev.RequestID] = ev.Response
		}
		p.mu.Unlock()
	case *network.EventLoadingFinished:
		p.mu.Lock()
		resp, ok := p.responses[ev.RequestID]
		delete(p.responses, ev.RequestID)
		handle := p.handle
		p.mu.Unlock()
		if !ok || handle == nil {
			return
		}
		p.spawn(func(ctx context.Context) {
			ctx, cancel := context.WithTimeout(ctx, bodyFetchTimeout)
			defer cancel()
			body, err := network.GetResponseBody(ev.RequestID).Do(ctx)
			if err != nil {
				return
			}
			handle(crawler.Response{URL: resp.URL, ContentType: resp.MimeType, Body: body})
		})
	}
}

// spawn runs fn off the event loop against this tab. Listeners must not block,
// and nothing new starts once the page is closing.
func (p *page) spawn(fn func(ctx context.Context)) {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return
	}
	p.pending.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.pending.Done()
		c := chromedp.FromContext(p.ctx)
		if c == nil || c.Target == nil {
			return
		}
		fn(cdp.WithExecutor(p.ctx, c.Target))
	}()
}

func (p *page) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(tctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s: %s", crawler.ErrNavigationTimeout, timeout, url)
		}
		return err
	}
	return nil
}

func (p *page) AttemptDismiss(ctx context.Context, selectors, texts []string) bool {
	var clicked bool
	script := fmt.Sprintf(dismissScript, jsArray(selectors), jsArray(texts))
	if err := p.Evaluate(ctx, script, &clicked); err != nil {
		return false
	}
	if clicked {
		p.sleep(ctx, p.settle)
	}
	return clicked
}

// RevealMore clicks "load more" controls and scrolls the page, each for a
// bounded number of rounds, stopping early once nothing changes.
func (p *page) RevealMore(ctx context.Context, opts crawler.RevealOptions) error {
	for i := 0; i < opts.Rounds; i++ {
		var clicked bool
		if err := p.Evaluate(ctx, fmt.Sprintf(revealScript, jsArray(opts.ButtonTexts)), &clicked); err != nil {
			return fmt.Errorf("click load more: %w", err)
		}
		if !clicked {
			break
		}
		p.sleep(ctx, opts.Settle)
	}

	var lastHeight float64
	for i := 0; i < opts.ScrollRounds; i++ {
		var height float64
		if err := p.Evaluate(ctx, scrollScript, &height); err != nil {
			return fmt.Errorf("scroll: %w", err)
		}
		p.sleep(ctx, opts.Settle)
		if height == lastHeight {
			break
		}
		lastHeight = height
	}
	return ctx.Err()
}

func (p *page) Links(ctx context.Context) ([]string, error) {
	var hrefs []string
	if err := p.Evaluate(ctx, linksScript, &hrefs); err != nil {
		return nil, err
	}
	return hrefs, nil
}

func (p *page) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *page) Location(ctx context.Context) (string, error) {
	var loc string
	err := p.run(ctx, chromedp.Location(&loc))
	return loc, err
}

func (p *page) Search(ctx context.Context, inputSelectors []string, query string) (bool, error) {
	var submitted bool
	script := fmt.Sprintf(searchScript, jsArray(inputSelectors), jsString(query))
	if err := p.Evaluate(ctx, script, &submitted); err != nil {
		return false, err
	}
	if !submitted {
		return false, nil
	}
	p.sleep(ctx, p.settle)
	if err := p.run(ctx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return true, err
	}
	return true, nil
}

func (p *page) Evaluate(ctx context.Context, script string, res any) error {
	return p.run(ctx, chromedp.Evaluate(script, res))
}

// Close stops new response deliveries, waits for the pending ones and then
// closes the tab.
func (p *page) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closing = true
		p.mu.Unlock()
		p.pending.Wait()
		p.stopAfter()
		p.cancel()
	})
	return nil
}

// run executes actions on the tab, aborting when either the tab or ctx ends.
func (p *page) run(ctx context.Context, actions ...chromedp.Action) error {
	tctx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(tctx, actions...)
}

func (p *page) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-p.ctx.Done():
	case <-t.C:
	}
}

func isTextual(mime string) bool {
	mime = strings.ToLower(mime)
	return strings.HasPrefix(mime, "text/") ||
		strings.Contains(mime, "json") ||
		strings.Contains(mime, "xml") ||
		strings.Contains(mime, "html")
}
