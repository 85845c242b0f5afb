// Package syncfabric implements the one-to-many mirror mapping: a source
// session's downstream traffic is fanned out, fire-and-forget, to a set
// of follower sessions. Grounded on the same broadcast-without-backpressure
// shape as internal/pipeline, specialized to a bounded source->followers
// mapping instead of a flat subscriber set.
package syncfabric

import (
	"strings"
	"sync"
)

// Follower is the subset of proxy.Session the fabric needs to dispatch a
// mirrored frame; kept as a narrow interface to avoid a dependency cycle
// with package proxy.
type Follower interface {
	ForwardFromSync(payload []byte, binary bool)
}

// Registry resolves a session id to its Follower, so the fabric never
// holds a dangling strong reference to a session.
type Registry interface {
	Get(id string) (Follower, bool)
}

// Service holds the current source->followers mapping and dispatches
// mirrored frames through a Registry lookup.
type Service struct {
	mu       sync.RWMutex
	mapping  map[string]map[string]struct{}
	registry Registry
}

func New(registry Registry) *Service {
	return &Service{
		mapping:  make(map[string]map[string]struct{}),
		registry: registry,
	}
}

// SetMapping replaces the follower set for target, normalizing input:
// trims, dedupes, drops empties, and excludes target from its own set.
func (s *Service) SetMapping(target string, devices []string) {
	set := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		d = strings.TrimSpace(d)
		if d == "" || d == target {
			continue
		}
		set[d] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(set) == 0 {
		delete(s.mapping, target)
		return
	}
	s.mapping[target] = set
}

func (s *Service) Clear(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mapping, target)
}

// Followers returns the current follower ids for source.
func (s *Service) Followers(source string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.mapping[source]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Dump returns the full mapping for the HTTP action surface's GET /api/sync.
func (s *Service) Dump() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]string, len(s.mapping))
	for target, set := range s.mapping {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		out[target] = ids
	}
	return out
}

// Dispatch implements proxy.Mirror: it is called on every downstream
// frame the source session processes and fans it out to all current
// followers. A follower not currently connected (registry miss) is
// silently skipped; there is no buffering for absent followers.
func (s *Service) Dispatch(source string, payload []byte, binary bool) {
	for _, id := range s.Followers(source) {
		follower, ok := s.registry.Get(id)
		if !ok {
			continue
		}
		go follower.ForwardFromSync(payload, binary)
	}
}
