// Package session keeps short-lived field-selection state for the chat
// surface. Entries are keyed by external user id and expire after a TTL, so
// abandoned selection flows cannot accumulate.
package session

import (
	"context"
	"sync"
	"time"
)

// Store holds in-progress field selections.
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*entry
	now     func() time.Time
}

type entry struct {
	fieldIDs []int64
	expires  time.Time
}

// NewStore builds a store whose entries expire after ttl.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:     ttl,
		entries: map[string]*entry{},
		now:     time.Now,
	}
}

// Begin starts a fresh selection for the user, replacing any previous one
// and seeding it with the given field ids.
func (s *Store) Begin(userID string, fieldIDs []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[userID] = &entry{
		fieldIDs: append([]int64(nil), fieldIDs...),
		expires:  s.now().Add(s.ttl),
	}
}

// Toggle flips one field in the user's selection and returns the updated set.
// The second return is false when no live session exists.
func (s *Store) Toggle(userID string, fieldID int64) ([]int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(userID)
	if !ok {
		return nil, false
	}

	for i, id := range e.fieldIDs {
		if id == fieldID {
			e.fieldIDs = append(e.fieldIDs[:i], e.fieldIDs[i+1:]...)
			e.expires = s.now().Add(s.ttl)
			return append([]int64(nil), e.fieldIDs...), true
		}
	}

	e.fieldIDs = append(e.fieldIDs, fieldID)
	e.expires = s.now().Add(s.ttl)
	return append([]int64(nil), e.fieldIDs...), true
}

// Get returns the user's current selection if a live session exists.
func (s *Store) Get(userID string) ([]int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(userID)
	if !ok {
		return nil, false
	}
	return append([]int64(nil), e.fieldIDs...), true
}

// End removes the user's session, live or not.
func (s *Store) End(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
}

// StartCleanup purges expired entries every interval until ctx is done.
func (s *Store) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.purge()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// live returns the entry for userID unless it has expired; expired entries
// are removed on access. Callers must hold the lock.
func (s *Store) live(userID string) (*entry, bool) {
	e, ok := s.entries[userID]
	if !ok {
		return nil, false
	}
	if s.now().After(e.expires) {
		delete(s.entries, userID)
		return nil, false
	}
	return e, true
}

func (s *Store) purge() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, id)
		}
	}
}
