// Package deferred holds per-host waitlists for URLs blocked on an
// in-flight robots.txt fetch, drained atomically by the robots-completion
// path once the fetch lands.
package deferred

import (
	"sync"

	"github.com/rohmanhakim/corecrawl/internal/record"
)

type Store struct {
	mu        sync.Mutex
	waitlists map[string][]record.UrlInfo
}

func NewStore() *Store {
	return &Store{waitlists: make(map[string][]record.UrlInfo)}
}

// Defer appends url to host's waitlist.
func (s *Store) Defer(host string, url record.UrlInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waitlists[host] = append(s.waitlists[host], url)
}

// Drain atomically removes and returns host's entire waitlist.
func (s *Store) Drain(host string) []record.UrlInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.waitlists[host]
	delete(s.waitlists, host)
	return items
}

func (s *Store) Len(host string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waitlists[host])
}
