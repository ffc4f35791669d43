package sitemap

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/antchfx/xmlquery"
)

// ParseSeeds reads the <loc> entries of a category sitemap and keeps the
// distinct ones on host whose path starts with prefix (case-insensitive).
func ParseSeeds(path, host, prefix string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := xmlquery.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var seeds []string
	seen := make(map[string]struct{})
	for _, n := range xmlquery.Find(doc, "//*[local-name()='loc']") {
		loc := strings.TrimSpace(n.InnerText())
		u, err := url.Parse(loc)
		if err != nil || !strings.EqualFold(u.Hostname(), host) {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(u.Path), strings.ToLower(prefix)) {
			continue
		}
		if _, ok := seen[loc]; ok {
			continue
		}
		seen[loc] = struct{}{}
		seeds = append(seeds, loc)
	}
	return seeds, nil
}

// Seeds returns the seeds found in the category sitemap, or fallback when the
// file is missing, malformed or yields nothing.
func Seeds(path, host, prefix string, fallback []string) ([]string, error) {
	seeds, err := ParseSeeds(path, host, prefix)
	if err != nil || len(seeds) == 0 {
		return fallback, err
	}
	return seeds, nil
}
