// Package frontier implements the deduplicating breadth-first work queue of
// the crawl.
package frontier

import (
	"context"
	"sync"

	"github.com/user/product-sitemapper/internal/classifier"
	"github.com/user/product-sitemapper/internal/domain"
)

// Frontier is a FIFO queue of (URL, depth) pairs guarded by a single mutex.
//
// A URL is marked seen when it is taken, not when it is enqueued: duplicates may
// sit in the queue, and the check at dequeue time is the one that counts.
type Frontier struct {
	maxDepth int

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []domain.FrontierEntry
	seen     map[string]struct{}
	inFlight int
	closed   bool
}

func New(maxDepth int) *Frontier {
	f := &Frontier{
		maxDepth: maxDepth,
		seen:     make(map[string]struct{}),
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Seed enqueues every URL at depth 0.
func (f *Frontier) Seed(urls []string) {
	for _, u := range urls {
		f.Enqueue(u, 0)
	}
}

// Enqueue appends url unless depth exceeds the bound or the URL was already
// taken. It reports whether the entry was queued.
func (f *Frontier) Enqueue(url string, depth int) bool {
	if depth > f.maxDepth || url == "" {
		return false
	}
	key := classifier.Canonicalize(url)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	if _, ok := f.seen[key]; ok {
		return false
	}
	f.queue = append(f.queue, domain.FrontierEntry{URL: url, Depth: depth})
	f.cond.Signal()
	return true
}

// Take pops the first entry whose URL has not been seen yet. It never blocks.
func (f *Frontier) Take() (domain.FrontierEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.popLocked()
}

func (f *Frontier) popLocked() (domain.FrontierEntry, bool) {
	for len(f.queue) > 0 {
		e := f.queue[0]
		f.queue[0] = domain.FrontierEntry{}
		f.queue = f.queue[1:]

		key := classifier.Canonicalize(e.URL)
		if _, ok := f.seen[key]; ok {
			continue
		}
		f.seen[key] = struct{}{}
		return e, true
	}
	return domain.FrontierEntry{}, false
}

// Next blocks until an entry is available, and counts it as in flight until the
// caller reports Done. It returns false once the queue is empty with nothing in
// flight, after Close, or when ctx is cancelled.
func (f *Frontier) Next(ctx context.Context) (domain.FrontierEntry, bool) {
	stop := context.AfterFunc(ctx, f.wake)
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if f.closed || ctx.Err() != nil {
			return domain.FrontierEntry{}, false
		}
		if e, ok := f.popLocked(); ok {
			f.inFlight++
			return e, true
		}
		if f.inFlight == 0 {
			// Exhausted: wake the other waiters so they can observe it too.
			f.cond.Broadcast()
			return domain.FrontierEntry{}, false
		}
		f.cond.Wait()
	}
}

// Done marks an entry returned by Next as finished.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight > 0 {
		f.inFlight--
	}
	f.cond.Broadcast()
}

// Close stops the frontier. Pending entries are dropped.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.queue = nil
	f.cond.Broadcast()
}

func (f *Frontier) wake() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cond.Broadcast()
}

// Len returns the number of queued entries, duplicates included.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// SeenCount returns how many distinct URLs have been taken.
func (f *Frontier) SeenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}
