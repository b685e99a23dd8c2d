package jobs

import "sync"

// inflightSet tracks paths being processed. A path submitted again while in
// flight is marked for one more pass instead of being processed concurrently.
type inflightSet struct {
	mu    sync.Mutex
	paths map[string]bool
}

func newInflightSet() *inflightSet {
	return &inflightSet{paths: make(map[string]bool)}
}

// begin claims path. It returns false when path is already in flight, in
// which case a rerun is recorded.
func (s *inflightSet) begin(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.paths[path]; ok {
		s.paths[path] = true
		return false
	}
	s.paths[path] = false
	return true
}

// finish releases path unless a rerun was recorded, in which case the path
// stays claimed and finish returns true.
func (s *inflightSet) finish(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paths[path] {
		s.paths[path] = false
		return true
	}
	delete(s.paths, path)
	return false
}

func (s *inflightSet) contains(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.paths[path]
	return ok
}

func (s *inflightSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}
