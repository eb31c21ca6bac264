package conversation

import "sync"

// Store keeps at most one Context per user
type Store interface {
	// Get returns the user's context, or an idle one
	Get(userID int64) Context
	// Put replaces the user's context; an idle context is removed
	Put(c Context)
}

// MemoryStore is a Store backed by a map
type MemoryStore struct {
	mu       sync.Mutex
	contexts map[int64]Context
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{contexts: make(map[int64]Context)}
}

func (s *MemoryStore) Get(userID int64) Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.contexts[userID]; ok {
		return c
	}
	return NewContext(userID)
}

func (s *MemoryStore) Put(c Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.State == Idle {
		delete(s.contexts, c.UserID)
		return
	}
	s.contexts[c.UserID] = c
}

// Len returns the number of pending conversations
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contexts)
}
