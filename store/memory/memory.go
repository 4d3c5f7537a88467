// Package memory provides a mutex-guarded, map-backed implementation of
// the store interfaces for tests and single-process deployments.
package memory

import (
	"sync"

	"github.com/google/uuid"

	"github.com/findingsimple/simple-search/store"
)

// Static and compile-time check to ensure InMemoryStore implements the
// aggregate store.Store interface.
var _ store.Store = (*InMemoryStore)(nil)

// InMemoryStore keeps scores, tallies and key-value state in maps.
type InMemoryStore struct {
	mu sync.RWMutex

	// scores is keyed by query key, then by document ID.
	scores  map[string]map[uuid.UUID]float64
	tallies map[string]int
	kv      map[string]string
}

// NewInMemoryStore instantiates and returns an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		scores:  make(map[string]map[uuid.UUID]float64),
		tallies: make(map[string]int),
		kv:      make(map[string]string),
	}
}

// Score returns the cached score for a (document, query key) pair.
func (s *InMemoryStore) Score(docID uuid.UUID, queryKey string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	score, exists := s.scores[queryKey][docID]

	return score, exists, nil
}

// PutScore creates or replaces the score entry for a (document, query
// key) pair.
func (s *InMemoryStore) PutScore(docID uuid.UUID, queryKey string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byDoc, exists := s.scores[queryKey]
	if !exists {
		byDoc = make(map[uuid.UUID]float64)
		s.scores[queryKey] = byDoc
	}

	byDoc[docID] = score

	return nil
}

// HasAny reports whether at least one score entry exists for the query
// key.
func (s *InMemoryStore) HasAny(queryKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.scores[queryKey]) > 0, nil
}

// DeleteByQuery removes every score entry stored under the query key.
func (s *InMemoryStore) DeleteByQuery(queryKey string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := len(s.scores[queryKey])
	delete(s.scores, queryKey)

	return deleted, nil
}

// DeleteAll removes every score entry.
func (s *InMemoryStore) DeleteAll() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int
	for _, byDoc := range s.scores {
		deleted += len(byDoc)
	}

	s.scores = make(map[string]map[uuid.UUID]float64)

	return deleted, nil
}

// Increment adds one to the tally for the query key.
func (s *InMemoryStore) Increment(queryKey string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tallies[queryKey]++

	return s.tallies[queryKey], nil
}

// Tallies returns a copy of the current tally counts.
func (s *InMemoryStore) Tallies() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tallies := make(map[string]int, len(s.tallies))
	for key, count := range s.tallies {
		tallies[key] = count
	}

	return tallies, nil
}

// DeleteTally removes the tally for the query key.
func (s *InMemoryStore) DeleteTally(queryKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tallies, queryKey)

	return nil
}

// Get returns the value stored under key and whether it exists.
func (s *InMemoryStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.kv[key]

	return value, exists, nil
}

// Put creates or replaces the value stored under key.
func (s *InMemoryStore) Put(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.kv[key] = value

	return nil
}

// Delete removes the value stored under key.
func (s *InMemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.kv, key)

	return nil
}
