package store

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/conduit-lang/docrud/internal/orm/document"
)

// MemoryStore keeps collections in process. Documents are deep-copied on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[bson.ObjectID]document.Document
	order       map[string][]bson.ObjectID
	closed      bool
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[bson.ObjectID]document.Document),
		order:       make(map[string][]bson.ObjectID),
	}
}

// Ping implements Store
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrNotConnected
	}
	return ctx.Err()
}

// FindOne implements Store
func (m *MemoryStore) FindOne(ctx context.Context, collection string, id bson.ObjectID) (document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrNotConnected
	}
	doc, ok := m.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrNoDocument, id.Hex(), collection)
	}
	return document.Clone(doc), nil
}

// Find implements Store. Documents are scanned in insertion order.
func (m *MemoryStore) Find(ctx context.Context, collection string, q Query) ([]document.Document, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrNotConnected
	}
	docs := make([]document.Document, 0, len(m.order[collection]))
	for _, id := range m.order[collection] {
		docs = append(docs, m.collections[collection][id])
	}
	m.mu.RUnlock()

	// Apply clones every returned document
	return Apply(docs, q)
}

// Insert implements Store
func (m *MemoryStore) Insert(ctx context.Context, collection string, doc document.Document) error {
	id, err := documentID(doc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrNotConnected
	}
	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[bson.ObjectID]document.Document)
		m.collections[collection] = coll
	}
	if _, exists := coll[id]; exists {
		return fmt.Errorf("%w: %s in %s", ErrDuplicateID, id.Hex(), collection)
	}
	coll[id] = document.Clone(doc)
	m.order[collection] = append(m.order[collection], id)
	return nil
}

// Save implements Store
func (m *MemoryStore) Save(ctx context.Context, collection string, doc document.Document) error {
	id, err := documentID(doc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrNotConnected
	}
	if _, exists := m.collections[collection][id]; !exists {
		return fmt.Errorf("%w: %s in %s", ErrNoDocument, id.Hex(), collection)
	}
	m.collections[collection][id] = document.Clone(doc)
	return nil
}

// Remove implements Store
func (m *MemoryStore) Remove(ctx context.Context, collection string, id bson.ObjectID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrNotConnected
	}
	if _, exists := m.collections[collection][id]; !exists {
		return false, nil
	}
	delete(m.collections[collection], id)

	order := m.order[collection]
	for i, existing := range order {
		if existing == id {
			m.order[collection] = append(order[:i:i], order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Count returns the number of documents in a collection
func (m *MemoryStore) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.collections[collection])
}

// Close implements Store. A closed store fails every call with ErrNotConnected.
func (m *MemoryStore) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}
