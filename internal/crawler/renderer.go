package crawler

import (
	"context"
	"errors"
	"time"
)

// ErrNavigationTimeout is wrapped by Page.Navigate when the page did not load
// within its timeout.
var ErrNavigationTimeout = errors.New("navigation timed out")

// Renderer opens browser pages. A single Renderer is shared by all workers.
type Renderer interface {
	NewPage(ctx context.Context) (Page, error)
}

// Response is a network response observed while a page was loading.
type Response struct {
	URL         string
	ContentType string
	Body        []byte
}

// RevealOptions bounds the "load more" and scrolling steps.
type RevealOptions struct {
	ButtonTexts  []string
	Rounds       int
	ScrollRounds int
	Settle       time.Duration
}

// Page is one rendered tab. Close must be called on every path and is safe to
// call more than once.
type Page interface {
	// Intercept registers handle for every textual, JSON or HTML response the
	// page receives after the call. Must be called before Navigate.
	Intercept(handle func(Response))
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// AttemptDismiss clicks the first matching consent control. Finding none is
	// not an error.
	AttemptDismiss(ctx context.Context, selectors, texts []string) bool
	RevealMore(ctx context.Context, opts RevealOptions) error
	// Links returns the absolute href of every anchor in the rendered DOM.
	Links(ctx context.Context) ([]string, error)
	HTML(ctx context.Context) (string, error)
	// Location is the URL the tab currently shows.
	Location(ctx context.Context) (string, error)
	// Search types query into the site's search box and submits it. It
	// reports false when the page has no search box.
	Search(ctx context.Context, inputSelectors []string, query string) (bool, error)
	Evaluate(ctx context.Context, script string, res any) error
	// Close releases the tab after all pending response deliveries finished.
	Close() error
}
