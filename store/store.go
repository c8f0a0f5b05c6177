// server/store/store.go
package store

import (
	"sync"

	"github.com/vinizap/mindmap/server/domain"
)

// Store holds the single mind map shared by every request.
type Store interface {
	Initialize()
	Get() domain.Document
	Replace(doc domain.Document) domain.Document
}

// MemoryStore keeps the document in process memory. Nothing survives a
// restart.
type MemoryStore struct {
	mu   sync.RWMutex
	doc  domain.Document
	seed domain.Document
}

// New returns a store seeded with the built-in default document.
func New() *MemoryStore {
	return NewWithSeed(domain.DefaultDocument())
}

// NewWithSeed returns an initialized store whose Initialize resets to seed.
func NewWithSeed(seed domain.Document) *MemoryStore {
	s := &MemoryStore{seed: seed.Clone()}
	s.Initialize()
	return s
}

func (s *MemoryStore) Initialize() {
	fresh := s.seed.Clone()

	s.mu.Lock()
	s.doc = fresh
	s.mu.Unlock()
}

// Get returns a snapshot; mutating it does not affect the store.
func (s *MemoryStore) Get() domain.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone()
}

// Replace overwrites the whole document without validating it and returns
// what is now held.
func (s *MemoryStore) Replace(doc domain.Document) domain.Document {
	stored := doc.Clone()

	s.mu.Lock()
	s.doc = stored
	s.mu.Unlock()

	return stored.Clone()
}
