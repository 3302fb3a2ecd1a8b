package bootstrap

import (
	"strings"
	"sync"
)

// taskSet is the in-progress download set, keyed by repository name. Begin
// is idempotent: inserting a present entry is a refusal, not an error, so
// the same source is never fetched twice concurrently even when refresh
// passes overlap.
type taskSet struct {
	mu    sync.Mutex
	tasks map[string]struct{}
}

func newTaskSet() *taskSet {
	return &taskSet{tasks: make(map[string]struct{})}
}

// Begin claims a repository name. Returns false when already claimed.
func (s *taskSet) Begin(name string) bool {
	name = strings.TrimSpace(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[name]; ok {
		return false
	}
	s.tasks[name] = struct{}{}
	return true
}

// End releases a claim. Releasing an absent entry is a no-op.
func (s *taskSet) End(name string) {
	name = strings.TrimSpace(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, name)
}

// Len reports the number of in-flight claims.
func (s *taskSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
