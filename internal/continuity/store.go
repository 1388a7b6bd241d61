// Package continuity maps client thread ids to upstream conversation
// handles across independent HTTP requests, trims replayed message history,
// and wraps streaming calls with the AG-UI normalizer so each chat turn
// resumes the provider-side conversation correctly.
package continuity

import "sync"

// Store maps a client thread id to the upstream conversation handle.
//
// Entries have process lifetime and no eviction; acceptable at demo scale
// only. Concurrent turns for the same thread id race with last-write-wins
// semantics: the stored handle is the most recently written one, not
// necessarily the one of the most recently completed turn.
type Store struct {
	mu      sync.RWMutex
	handles map[string]string
}

// NewStore creates an empty thread store.
func NewStore() *Store {
	return &Store{handles: make(map[string]string)}
}

// Get returns the stored handle for the thread id, if any.
func (s *Store) Get(threadID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[threadID]
	return h, ok
}

// Put stores the handle for the thread id, replacing any previous value.
func (s *Store) Put(threadID, handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[threadID] = handle
}

// Delete removes the entry for the thread id. It reports whether an entry
// existed; deleting an absent key is a no-op.
func (s *Store) Delete(threadID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handles[threadID]
	delete(s.handles, threadID)
	return ok
}

// Len returns the number of tracked threads.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}
