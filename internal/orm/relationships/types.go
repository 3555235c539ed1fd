// Package relationships populates reference fields and virtual
// relationships of loaded records with the records they point at.
package relationships

import (
	"context"
	"sync"

	"github.com/conduit-lang/docrud/internal/orm/document"
	"github.com/conduit-lang/docrud/internal/orm/schema"
	"github.com/conduit-lang/docrud/internal/orm/store"
)

// DefaultMaxDepth bounds nested population paths such as "relatedModels.sample"
const DefaultMaxDepth = 10

// Finder is the part of the store the loader needs
type Finder interface {
	Find(ctx context.Context, collection string, q store.Query) ([]document.Document, error)
}

// Loader batches relationship lookups: one query per populated name and level
type Loader struct {
	store    Finder
	registry *schema.Registry
	maxDepth int
}

// NewLoader creates a new relationship loader
func NewLoader(s Finder, registry *schema.Registry) *Loader {
	return &Loader{
		store:    s,
		registry: registry,
		maxDepth: DefaultMaxDepth,
	}
}

// LoadContext tracks nesting depth while populating nested paths
type LoadContext struct {
	depth    int
	maxDepth int
	mu       sync.Mutex
}

// NewLoadContext creates a new load context with the given max depth
func NewLoadContext(maxDepth int) *LoadContext {
	return &LoadContext{maxDepth: maxDepth}
}

// IncrementDepth increments the depth counter
func (lc *LoadContext) IncrementDepth() error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.depth++
	if lc.depth > lc.maxDepth {
		return ErrMaxDepthExceeded
	}
	return nil
}

// DecrementDepth decrements the depth counter
func (lc *LoadContext) DecrementDepth() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.depth--
}
