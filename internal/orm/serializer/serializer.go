// Package serializer turns stored records into transfer objects: the storage
// identifier becomes a string "id", the version marker is dropped, identifiers
// are stringified and reference collections are rendered as {id} stubs unless
// they were populated.
package serializer

import (
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/conduit-lang/docrud/internal/orm/document"
	"github.com/conduit-lang/docrud/internal/orm/schema"
)

// Object is a transfer object
type Object = map[string]interface{}

// Serializer converts records of registered types into transfer objects
type Serializer struct {
	registry *schema.Registry
}

// New creates a serializer resolving populated targets through the registry
func New(registry *schema.Registry) *Serializer {
	return &Serializer{registry: registry}
}

// Record serializes one record. populate lists the relationship names that
// were populated on the record, dotted names included ("relatedModels.sample").
func (s *Serializer) Record(doc document.Document, record *schema.RecordSchema, populate []string) Object {
	if doc == nil {
		return nil
	}
	return s.object(doc, record, populate)
}

// Records serializes a list of records of the same type
func (s *Serializer) Records(docs []document.Document, record *schema.RecordSchema, populate []string) []Object {
	out := make([]Object, 0, len(docs))
	for _, doc := range docs {
		out = append(out, s.object(doc, record, populate))
	}
	return out
}

func (s *Serializer) object(m map[string]interface{}, record *schema.RecordSchema, populate []string) Object {
	order, nested := splitPopulate(populate)
	populated := make(map[string]bool, len(order))
	for _, name := range order {
		populated[name] = true
	}

	out := make(Object, len(m))
	for key, value := range m {
		switch key {
		case document.IDKey, document.VersionKey:
			continue
		}

		var field *schema.Field
		if record != nil {
			field, _ = record.Field(key)
		}

		switch {
		case populated[key]:
			out[key] = s.populatedValue(value, s.targetOf(record, key), nested[key])
		case field != nil:
			out[key] = s.fieldValue(value, field)
		default:
			out[key] = Value(value)
		}
	}

	// virtuals are never stored; one that was populated but is missing from
	// the record renders as an empty list
	if record != nil {
		for _, name := range order {
			if v, ok := record.Virtual(name); ok {
				if _, present := out[name]; present {
					continue
				}
				if v.JustOne {
					out[name] = nil
				} else {
					out[name] = []interface{}{}
				}
			}
		}
	}

	if id, ok := m[document.IDKey]; ok {
		out[document.TransferIDKey] = Value(id)
	}
	return out
}

func (s *Serializer) fieldValue(value interface{}, field *schema.Field) interface{} {
	switch field.Kind {
	case schema.KindEmbedded:
		if m, ok := value.(map[string]interface{}); ok {
			return s.object(m, field.Nested, nil)
		}
	case schema.KindEmbeddedArray:
		if items, ok := value.([]interface{}); ok {
			out := make([]interface{}, len(items))
			for i, item := range items {
				if m, ok := item.(map[string]interface{}); ok {
					out[i] = s.object(m, field.Nested, nil)
				} else {
					out[i] = Value(item)
				}
			}
			return out
		}
	case schema.KindReferenceArray:
		if items, ok := value.([]interface{}); ok {
			out := make([]interface{}, 0, len(items))
			for _, item := range items {
				if id, ok := document.IDString(item); ok {
					out = append(out, Object{document.TransferIDKey: id})
				}
			}
			return out
		}
	case schema.KindReference:
		if id, ok := document.IDString(value); ok {
			return id
		}
	}
	return Value(value)
}

func (s *Serializer) populatedValue(value interface{}, target *schema.RecordSchema, nested []string) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		return s.object(v, target, nested)
	case document.Document:
		return s.object(v, target, nested)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = s.populatedValue(item, target, nested)
		}
		return out
	}
	return Value(value)
}

// targetOf returns the record type a populated name resolves to
func (s *Serializer) targetOf(record *schema.RecordSchema, name string) *schema.RecordSchema {
	if record == nil || s.registry == nil {
		return nil
	}
	var target string
	if f, ok := record.Field(name); ok && f.IsReference() {
		target = f.Target
	} else if v, ok := record.Virtual(name); ok {
		target = v.Ref
	}
	if target == "" {
		return nil
	}
	t, _ := s.registry.Get(target)
	return t
}

// Value serializes a value without schema information. Identifiers become
// strings and nested records carrying "_id" are serialized as records.
func Value(v interface{}) interface{} {
	switch val := v.(type) {
	case bson.ObjectID:
		return val.Hex()
	case document.Document:
		return Value(map[string]interface{}(val))
	case map[string]interface{}:
		if _, ok := val[document.IDKey]; ok {
			out := make(Object, len(val))
			for k, e := range val {
				switch k {
				case document.IDKey:
					out[document.TransferIDKey] = Value(e)
				case document.VersionKey:
				default:
					out[k] = Value(e)
				}
			}
			return out
		}
		out := make(Object, len(val))
		for k, e := range val {
			out[k] = Value(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = Value(e)
		}
		return out
	}
	switch n := document.Normalize(v).(type) {
	case map[string]interface{}, []interface{}:
		return Value(n)
	default:
		return n
	}
}

func splitPopulate(names []string) ([]string, map[string][]string) {
	order := make([]string, 0, len(names))
	nested := make(map[string][]string)
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		top, rest, hasRest := strings.Cut(name, ".")
		if _, ok := nested[top]; !ok {
			order = append(order, top)
			nested[top] = nil
		}
		if hasRest && rest != "" {
			nested[top] = append(nested[top], rest)
		}
	}
	return order, nested
}
