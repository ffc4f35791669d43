package utils

import (
	"net/url"
)

// ToAbsoluteURL converts a relative URL to an absolute URL given a base URL.
func ToAbsoluteURL(base *url.URL, relative string) (string, error) {
	relURL, err := url.Parse(relative)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(relURL).String(), nil
}

// JoinURL appends name to a base URL, inserting a slash when needed.
func JoinURL(base, name string) string {
	if base == "" {
		return name
	}
	if base[len(base)-1] != '/' {
		base += "/"
	}
	return base + name
}
