package profile

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore implements Store using in-memory storage.
// All data is lost when the process stops.
type InMemoryStore struct {
	mu          sync.RWMutex
	docs        map[string]Document // id -> document
	docsByEmail map[string]string   // email -> id
}

// NewInMemoryStore creates a new in-memory profile store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		docs:        make(map[string]Document),
		docsByEmail: make(map[string]string),
	}
}

// Get implements Store.Get
func (s *InMemoryStore) Get(ctx context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDocument(doc), nil
}

// Put implements Store.Put
func (s *InMemoryStore) Put(ctx context.Context, id string, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	doc.ID = id
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}

	if prev, ok := s.docs[id]; ok && prev.Email != doc.Email {
		delete(s.docsByEmail, prev.Email)
	}
	s.docs[id] = cloneDocument(doc)
	s.docsByEmail[doc.Email] = id
	return nil
}

// Patch implements Store.Patch
func (s *InMemoryStore) Patch(ctx context.Context, id string, patch Patch) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}

	updated := patch.apply(cloneDocument(doc), time.Now().UTC())
	if doc.Email != updated.Email {
		delete(s.docsByEmail, doc.Email)
		s.docsByEmail[updated.Email] = id
	}
	s.docs[id] = cloneDocument(updated)
	return updated, nil
}

// Delete implements Store.Delete
func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.docsByEmail, doc.Email)
	delete(s.docs, id)
	return nil
}

// FindByEmail implements Store.FindByEmail
func (s *InMemoryStore) FindByEmail(ctx context.Context, email string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.docsByEmail[email]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDocument(s.docs[id]), nil
}

// List implements Store.List
func (s *InMemoryStore) List(ctx context.Context) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, cloneDocument(doc))
	}
	return docs, nil
}

// cloneDocument copies a document so callers never share the Profile map
func cloneDocument(doc Document) Document {
	if doc.Profile != nil {
		attrs := make(map[string]string, len(doc.Profile))
		for k, v := range doc.Profile {
			attrs[k] = v
		}
		doc.Profile = attrs
	}
	return doc
}
