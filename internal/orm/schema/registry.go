package schema

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownRecordType is returned when a record type is not registered
var ErrUnknownRecordType = errors.New("unknown record type")

// Registry manages all record schemas served by the application
type Registry struct {
	schemas   map[string]*RecordSchema
	validator *SchemaValidator
	mu        sync.RWMutex
}

// NewRegistry creates a new schema registry
func NewRegistry() *Registry {
	return &Registry{
		schemas:   make(map[string]*RecordSchema),
		validator: NewSchemaValidator(),
	}
}

// Register registers a new record schema after structural validation.
// Reference targets are checked later by ValidateAll to allow forward references.
func (r *Registry) Register(schema *RecordSchema) error {
	if schema == nil {
		return fmt.Errorf("cannot register nil schema")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[schema.Name]; exists {
		return fmt.Errorf("record type %s is already registered", schema.Name)
	}

	if err := r.validator.ValidateStructural(schema); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", schema.Name, err)
	}

	r.schemas[schema.Name] = schema
	return nil
}

// MustRegister is like Register but panics on error
func (r *Registry) MustRegister(schemas ...*RecordSchema) {
	for _, s := range schemas {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
}

// Get retrieves a record schema by name
func (r *Registry) Get(name string) (*RecordSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schema, exists := r.schemas[name]
	return schema, exists
}

// Lookup is like Get but returns ErrUnknownRecordType for missing types
func (r *Registry) Lookup(name string) (*RecordSchema, error) {
	schema, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRecordType, name)
	}
	return schema, nil
}

// All returns a copy of all registered schemas
func (r *Registry) All() map[string]*RecordSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*RecordSchema, len(r.schemas))
	for k, v := range r.schemas {
		result[k] = v
	}
	return result
}

// List returns the sorted names of all registered record types
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stored returns the sorted names of the record types that own a collection
func (r *Registry) Stored() []string {
	names := r.List()
	stored := names[:0]
	for _, name := range names {
		if s, ok := r.Get(name); ok && !s.Embedded {
			stored = append(stored, name)
		}
	}
	return stored
}

// ValidateAll checks every reference target and virtual ref across all schemas
func (r *Registry) ValidateAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	validator := NewSchemaValidator()
	for _, name := range names {
		if err := validator.ValidateReferences(r.schemas[name], r.schemas); err != nil {
			return fmt.Errorf("reference validation failed for %s: %w", name, err)
		}
	}
	return nil
}

// Count returns the number of registered schemas
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.schemas)
}

// Exists checks if a record schema exists
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.schemas[name]
	return exists
}
