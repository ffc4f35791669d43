// Package classifier decides, from URL text and response bodies alone, which
// links point at product detail pages of the target shop.
package classifier

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	// a path segment ending in slug-9783498007706
	reSlugNumber = regexp.MustCompile(`-\d{10,13}(?:/|$)`)
	// /9783498007706
	reNumberOnly = regexp.MustCompile(`^/\d{10,13}(?:/|$)`)
	// /shop/item/123456789/...
	reItemPath = regexp.MustCompile(`(?i)^/shop/item/\d{9,13}(?:/|$)`)

	reDigits      = regexp.MustCompile(`\d+`)
	reAbsoluteURL = regexp.MustCompile(`(?i)https?://[^\s"'<>\\)\]}]+`)
)

// Classifier holds the target host every decision is relative to.
type Classifier struct {
	host string
}

func New(host string) *Classifier {
	return &Classifier{host: strings.ToLower(host)}
}

// IsInternal reports whether rawURL is an http(s) URL on the target host. A URL
// carrying an explicit port is a different host.
func (c *Classifier) IsInternal(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, c.host)
}

// Canonicalize strips the fragment and query string. The path is left as is.
func Canonicalize(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	return s
}

// LooksLikeProduct reports whether the canonical form of rawURL is a product
// detail URL on the target host.
func (c *Classifier) LooksLikeProduct(rawURL string) bool {
	canonical := Canonicalize(rawURL)
	if !c.IsInternal(canonical) {
		return false
	}
	u, err := url.Parse(canonical)
	if err != nil {
		return false
	}
	path := u.EscapedPath()
	return reSlugNumber.MatchString(path) ||
		reNumberOnly.MatchString(path) ||
		reItemPath.MatchString(path)
}

// ExtractISBNs returns the distinct ISBN-13 tokens in text, in first-seen order.
// A token is a maximal run of exactly 13 digits starting with 978 or 979.
func ExtractISBNs(text string) []string {
	var isbns []string
	for _, run := range reDigits.FindAllString(text, -1) {
		if len(run) == 13 && (strings.HasPrefix(run, "978") || strings.HasPrefix(run, "979")) {
			isbns = append(isbns, run)
		}
	}
	return distinct(isbns)
}

func hasThirteenDigitToken(s string) bool {
	for _, run := range reDigits.FindAllString(s, -1) {
		if len(run) == 13 {
			return true
		}
	}
	return false
}

// ISBNToProductURL builds the root-level product route for an ISBN.
func (c *Classifier) ISBNToProductURL(isbn string) string {
	return "https://" + c.host + "/" + isbn
}

// HarvestProductURLs collects product URL candidates from an arbitrary body:
// absolute URLs on the target host whose path carries a 13 digit token, plus
// the product route of every ISBN mentioned anywhere in the text.
func (c *Classifier) HarvestProductURLs(body string) []string {
	if body == "" {
		return nil
	}
	// JSON payloads often escape slashes.
	text := strings.ReplaceAll(body, `\/`, "/")

	var out []string
	for _, raw := range reAbsoluteURL.FindAllString(text, -1) {
		canonical := Canonicalize(raw)
		if !c.IsInternal(canonical) {
			continue
		}
		u, err := url.Parse(canonical)
		if err != nil || !hasThirteenDigitToken(u.Path) {
			continue
		}
		out = append(out, canonical)
	}
	for _, isbn := range ExtractISBNs(text) {
		out = append(out, c.ISBNToProductURL(isbn))
	}
	return distinct(out)
}

func distinct(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
