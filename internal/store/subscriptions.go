package store

import (
	"sort"
	"sync"
)

// Subscriptions is the set of conversations with the scheduled digest
// enabled. Its lifecycle is independent of the message buffers: a
// conversation can be subscribed with nothing buffered.
type Subscriptions struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
}

// NewSubscriptions creates an empty subscription set.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{ids: make(map[int64]struct{})}
}

// Add subscribes a conversation. Returns false if it was already subscribed.
func (s *Subscriptions) Add(conversationID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[conversationID]; ok {
		return false
	}
	s.ids[conversationID] = struct{}{}
	return true
}

// Remove unsubscribes a conversation. Returns false if it was not subscribed.
func (s *Subscriptions) Remove(conversationID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[conversationID]; !ok {
		return false
	}
	delete(s.ids, conversationID)
	return true
}

// Contains reports whether a conversation is subscribed.
func (s *Subscriptions) Contains(conversationID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[conversationID]
	return ok
}

// IDs returns the subscribed conversations in ascending order, so scheduler
// batches iterate deterministically.
func (s *Subscriptions) IDs() []int64 {
	s.mu.RLock()
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
