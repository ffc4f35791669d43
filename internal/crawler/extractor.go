package crawler

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/product-sitemapper/pkg/utils"
)

// PageLinks are the structural links of a rendered page.
type PageLinks struct {
	Next      []string
	Canonical string
}

// ExtractPageLinks parses rendered HTML for rel=next pagination and the
// rel=canonical link, resolved against pageURL.
func ExtractPageLinks(pageURL, htmlContent string) (*PageLinks, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	links := &PageLinks{}
	doc.Find(`a[rel~="next"], link[rel~="next"]`).Each(func(i int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		if abs, err := utils.ToAbsoluteURL(base, strings.TrimSpace(href)); err == nil {
			links.Next = append(links.Next, abs)
		}
	})

	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
		if abs, err := utils.ToAbsoluteURL(base, strings.TrimSpace(href)); err == nil {
			links.Canonical = abs
		}
	}
	return links, nil
}
