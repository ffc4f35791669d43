package crawler

import (
	"sort"
	"sync"
)

// ProductSet accumulates canonical product URLs found during a run.
type ProductSet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

func NewProductSet() *ProductSet {
	return &ProductSet{urls: make(map[string]struct{})}
}

// Add inserts url and reports whether it was new.
func (s *ProductSet) Add(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.urls[url]; ok {
		return false
	}
	s.urls[url] = struct{}{}
	return true
}

func (s *ProductSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.urls)
}

// Sorted returns a sorted snapshot.
func (s *ProductSet) Sorted() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.urls))
	for u := range s.urls {
		out = append(out, u)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}
