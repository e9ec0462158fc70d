package jobs

import (
	"slices"
	"sync"
)

// RunningSet holds the names of jobs whose handler is in flight.
type RunningSet struct {
	mu    sync.Mutex
	names map[string]struct{}
}

// NewRunningSet returns an empty set.
func NewRunningSet() *RunningSet {
	return &RunningSet{names: make(map[string]struct{})}
}

// TryAdd inserts name and reports true, or reports false if it was present.
// The check and the insert happen under one lock.
func (s *RunningSet) TryAdd(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.names[name]; ok {
		return false
	}
	s.names[name] = struct{}{}
	return true
}

// Remove deletes name. Removing an absent name is a no-op.
func (s *RunningSet) Remove(name string) {
	s.mu.Lock()
	delete(s.names, name)
	s.mu.Unlock()
}

// Contains reports whether name is in the set.
func (s *RunningSet) Contains(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.names[name]
	return ok
}

// Names returns a sorted snapshot.
func (s *RunningSet) Names() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	s.mu.Unlock()
	slices.Sort(out)
	return out
}

// Len returns the number of names in the set.
func (s *RunningSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.names)
}
