// Package crud serves one record type: the core operations (insert, update,
// delete, get, list) plus the relationship-mutation operations synthesized
// from the record schema for every embedded and reference collection.
package crud

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/conduit-lang/docrud/internal/orm/document"
	"github.com/conduit-lang/docrud/internal/orm/query"
	"github.com/conduit-lang/docrud/internal/orm/relationships"
	"github.com/conduit-lang/docrud/internal/orm/schema"
	"github.com/conduit-lang/docrud/internal/orm/serializer"
	"github.com/conduit-lang/docrud/internal/orm/store"
	"github.com/conduit-lang/docrud/internal/orm/validation"
)

// UpdateRequest copies data[name] onto the record for every name in Fields
type UpdateRequest struct {
	ID     string                 `json:"id"`
	Fields []string               `json:"fields"`
	Data   map[string]interface{} `json:"data"`
}

// GetRequest loads one record, optionally populating relationships
type GetRequest struct {
	ID       string   `json:"id"`
	Populate []string `json:"populate,omitempty"`
}

// DeleteRequest removes one record
type DeleteRequest struct {
	ID string `json:"id"`
}

// Service provides the operations of one record type. Services share no
// state: each holds its own operation table.
type Service struct {
	name       string
	record     *schema.RecordSchema
	store      store.Store
	caster     *validation.Caster
	loader     *relationships.Loader
	serializer *serializer.Serializer
	operations map[string]*Operation
	logger     *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger used for diagnostics and lifecycle messages
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates the service of the named record type. It fails with
// ErrNotConnected when the store cannot be reached and with
// ErrOperationCollision when two synthesized operations share a name.
func NewService(ctx context.Context, s store.Store, registry *schema.Registry, name string, opts ...Option) (*Service, error) {
	record, err := registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	if record.Embedded {
		return nil, fmt.Errorf("%w: %s", ErrEmbeddedRecordType, name)
	}
	if err := s.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	ops, err := synthesize(record)
	if err != nil {
		return nil, err
	}

	svc := &Service{
		name:       record.Name,
		record:     record,
		store:      s,
		caster:     validation.NewCaster(),
		loader:     relationships.NewLoader(s, registry),
		serializer: serializer.New(registry),
		operations: ops,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	for _, op := range ops {
		op.service = svc
	}

	svc.logger.Info("service ready",
		zap.String("service", svc.name),
		zap.String("collection", record.Collection),
		zap.Int("operations", len(ops)),
	)
	return svc, nil
}

// Name returns the record type name
func (s *Service) Name() string {
	return s.name
}

// Schema returns the record schema
func (s *Service) Schema() *schema.RecordSchema {
	return s.record
}

// Operation returns the synthesized operation with the given name
func (s *Service) Operation(name string) (*Operation, bool) {
	op, ok := s.operations[name]
	return op, ok
}

// Operations returns every synthesized operation ordered by name
func (s *Service) Operations() []*Operation {
	return sortedOperations(s.operations)
}

// Insert stores a new record built from the payload and returns it serialized
func (s *Service) Insert(ctx context.Context, payload map[string]interface{}) (serializer.Object, error) {
	doc, err := s.caster.Record(s.record, payload)
	if err != nil {
		return nil, err
	}
	doc[document.VersionKey] = int64(0)

	if err := s.store.Insert(ctx, s.record.Collection, doc); err != nil {
		return nil, err
	}

	id, _ := doc.ID()
	s.logger.Debug("record inserted", zap.String("service", s.name), zap.String("id", id.Hex()))
	return s.serializer.Record(doc, s.record, nil), nil
}

// Update copies the named fields from req.Data onto the record. Names the
// schema does not declare are skipped and reported as diagnostics.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (serializer.Object, Diagnostics, error) {
	id, err := parseRecordID(req.ID)
	if err != nil {
		return nil, nil, err
	}
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	var diagnostics Diagnostics
	errs := validation.NewValidationErrors()
	for _, name := range req.Fields {
		field, ok := s.record.Field(name)
		if !ok {
			diagnostics = append(diagnostics, unknownField(name))
			continue
		}
		value, err := s.caster.Field(field, req.Data[name])
		if err != nil {
			var fieldErrs *validation.ValidationErrors
			if !errors.As(err, &fieldErrs) {
				return nil, nil, err
			}
			errs.Merge(fieldErrs)
			continue
		}
		doc[name] = value
	}
	if errs.HasErrors() {
		return nil, nil, errs
	}

	doc.BumpVersion()
	if err := s.save(ctx, doc); err != nil {
		return nil, nil, err
	}

	for _, d := range diagnostics {
		s.logger.Warn(d.Message, zap.String("service", s.name), zap.String("id", req.ID))
	}
	return s.serializer.Record(doc, s.record, nil), diagnostics, nil
}

// Delete removes the record. ErrNotFound is returned when nothing was removed.
func (s *Service) Delete(ctx context.Context, req DeleteRequest) error {
	id, err := parseRecordID(req.ID)
	if err != nil {
		return err
	}
	removed, err := s.store.Remove(ctx, s.record.Collection, id)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}
	s.logger.Debug("record deleted", zap.String("service", s.name), zap.String("id", req.ID))
	return nil
}

// Get loads one record and populates the requested relationships
func (s *Service) Get(ctx context.Context, req GetRequest) (serializer.Object, error) {
	id, err := parseRecordID(req.ID)
	if err != nil {
		return nil, err
	}
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	docs := []document.Document{doc}
	populate, err := s.populate(ctx, docs, req.Populate)
	if err != nil {
		return nil, err
	}
	return s.serializer.Record(doc, s.record, populate), nil
}

// List runs a list query: filter, sort, skip, limit and projection in the
// store, then population and serialization.
func (s *Service) List(ctx context.Context, req query.ListRequest) ([]serializer.Object, error) {
	q, err := query.Translate(req, s.record)
	if err != nil {
		return nil, err
	}
	docs, err := s.store.Find(ctx, s.record.Collection, q)
	if err != nil {
		return nil, err
	}

	populate, err := s.populate(ctx, docs, req.Populate)
	if err != nil {
		return nil, err
	}
	return s.serializer.Records(docs, s.record, populate), nil
}

// load returns the stored record or ErrNotFound
func (s *Service) load(ctx context.Context, id bson.ObjectID) (document.Document, error) {
	doc, err := s.store.FindOne(ctx, s.record.Collection, id)
	if err != nil {
		if store.IsNoDocument(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (s *Service) save(ctx context.Context, doc document.Document) error {
	if err := s.store.Save(ctx, s.record.Collection, doc); err != nil {
		if store.IsNoDocument(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// populate loads the requested relationships and returns the requested names
// whose top-level relationship was populated
func (s *Service) populate(ctx context.Context, docs []document.Document, names []string) ([]string, error) {
	if len(names) == 0 || len(docs) == 0 {
		return nil, nil
	}
	populated, err := s.loader.Populate(ctx, docs, s.record, names)
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool, len(populated))
	for _, name := range populated {
		done[name] = true
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		top, _, _ := strings.Cut(strings.TrimSpace(name), ".")
		if done[top] {
			out = append(out, strings.TrimSpace(name))
		}
	}
	return out, nil
}
