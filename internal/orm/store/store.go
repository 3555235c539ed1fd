// Package store provides the document store used by the CRUD engine and its
// backends. Every backend speaks the same small contract: single-document
// reads and writes by identifier plus a filtered, sorted, paginated find.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/conduit-lang/docrud/internal/orm/document"
)

var (
	// ErrNoDocument is returned when no document has the requested identifier
	ErrNoDocument = errors.New("no document")

	// ErrDuplicateID is returned when inserting a document whose identifier is taken
	ErrDuplicateID = errors.New("duplicate document id")

	// ErrNotConnected is returned when the backend cannot be reached
	ErrNotConnected = errors.New("store is not connected")

	// ErrMissingID is returned when a document without an identifier is written
	ErrMissingID = errors.New("document has no _id")

	// ErrUnsupportedOperator is returned for filter operators the engine does not implement
	ErrUnsupportedOperator = errors.New("unsupported filter operator")
)

// Store is a document store holding named collections
type Store interface {
	// Ping reports whether the backend is reachable
	Ping(ctx context.Context) error

	// FindOne loads a document by identifier, ErrNoDocument when absent
	FindOne(ctx context.Context, collection string, id bson.ObjectID) (document.Document, error)

	// Find runs a query against a collection
	Find(ctx context.Context, collection string, q Query) ([]document.Document, error)

	// Insert stores a new document, ErrDuplicateID when the identifier is taken
	Insert(ctx context.Context, collection string, doc document.Document) error

	// Save replaces an existing document, ErrNoDocument when absent
	Save(ctx context.Context, collection string, doc document.Document) error

	// Remove deletes a document and reports whether one was removed
	Remove(ctx context.Context, collection string, id bson.ObjectID) (bool, error)

	// Close releases the backend's resources
	Close(ctx context.Context) error
}

// SortField is one key of a multi-key sort
type SortField struct {
	Field     string
	Direction int
}

// Query is a backend independent find request. Filter uses the MongoDB query
// language; Projection lists the fields to keep (the identifier is always kept).
type Query struct {
	Filter     bson.M
	Sort       []SortField
	Projection []string
	Skip       int64
	Limit      int64
}

// IsNoDocument checks if an error is ErrNoDocument
func IsNoDocument(err error) bool {
	return errors.Is(err, ErrNoDocument)
}

// IsDuplicateID checks if an error is ErrDuplicateID
func IsDuplicateID(err error) bool {
	return errors.Is(err, ErrDuplicateID)
}

// IsNotConnected checks if an error is ErrNotConnected
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}

func documentID(doc document.Document) (bson.ObjectID, error) {
	id, ok := doc.ID()
	if !ok {
		return bson.ObjectID{}, ErrMissingID
	}
	return id, nil
}
