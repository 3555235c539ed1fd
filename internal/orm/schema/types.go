// Package schema provides the record type descriptors that drive the CRUD
// engine. A descriptor lists every field of a record type together with an
// explicit kind tag (scalar, embedded, reference and their array forms) so the
// rest of the engine never has to inspect live data to decide how a field
// behaves.
package schema

import (
	"fmt"
	"strings"
)

// PrimitiveType represents the base type of a scalar field
type PrimitiveType int

const (
	// TypeMixed accepts any value
	TypeMixed PrimitiveType = iota
	TypeString
	TypeNumber
	TypeInt
	TypeBool
	TypeDate
	TypeObjectID
)

// String returns the string representation of the primitive type
func (p PrimitiveType) String() string {
	switch p {
	case TypeMixed:
		return "mixed"
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeInt:
		return "int"
	case TypeBool:
		return "bool"
	case TypeDate:
		return "date"
	case TypeObjectID:
		return "objectid"
	default:
		return "unknown"
	}
}

// ParsePrimitiveType converts a string to a PrimitiveType
func ParsePrimitiveType(s string) (PrimitiveType, error) {
	switch strings.ToLower(s) {
	case "mixed", "any":
		return TypeMixed, nil
	case "string":
		return TypeString, nil
	case "number", "float":
		return TypeNumber, nil
	case "int":
		return TypeInt, nil
	case "bool", "boolean":
		return TypeBool, nil
	case "date":
		return TypeDate, nil
	case "objectid":
		return TypeObjectID, nil
	default:
		return 0, fmt.Errorf("unknown primitive type: %s", s)
	}
}

// FieldKind is the shape of a field, fixed at registration time
type FieldKind int

const (
	KindScalar FieldKind = iota
	KindEmbedded
	KindReference
	KindEmbeddedArray
	KindReferenceArray
)

// String returns the string representation of the field kind
func (k FieldKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindEmbedded:
		return "embedded"
	case KindReference:
		return "reference"
	case KindEmbeddedArray:
		return "embedded_array"
	case KindReferenceArray:
		return "reference_array"
	default:
		return "unknown"
	}
}

// Field describes one field of a record type
type Field struct {
	Name string
	Kind FieldKind

	// Type is the element type of scalar fields and scalar arrays
	Type  PrimitiveType
	Array bool

	// Nested is the record type of embedded fields
	Nested *RecordSchema

	// Target names the referenced record type of reference fields
	Target string

	// Singular overrides the name used for the single-element operations
	Singular string
}

// IsEmbedded reports whether the field holds inline sub-records
func (f *Field) IsEmbedded() bool {
	return f.Kind == KindEmbedded || f.Kind == KindEmbeddedArray
}

// IsReference reports whether the field holds identifiers of other records
func (f *Field) IsReference() bool {
	return f.Kind == KindReference || f.Kind == KindReferenceArray
}

// IsArray reports whether the field holds a list of values
func (f *Field) IsArray() bool {
	return f.Array || f.Kind == KindEmbeddedArray || f.Kind == KindReferenceArray
}

// String returns the declaration form of the field type
func (f *Field) String() string {
	var s string
	switch f.Kind {
	case KindEmbedded, KindEmbeddedArray:
		if f.Nested != nil {
			s = f.Nested.Name
		} else {
			s = "<nil>"
		}
	case KindReference, KindReferenceArray:
		s = "ref " + f.Target
	default:
		s = f.Type.String()
	}
	if f.IsArray() {
		s = "[" + s + "]"
	}
	return s
}

// Virtual is a computed relationship that is never stored and can only be
// populated: records of Ref whose ForeignField equals this record's LocalField.
type Virtual struct {
	Name         string
	Ref          string
	LocalField   string
	ForeignField string
	JustOne      bool
}

// RecordSchema is the complete descriptor of one record type
type RecordSchema struct {
	Name       string
	Collection string

	// Embedded schemas describe sub-records and are never stored on their own
	Embedded bool

	Fields   map[string]*Field
	Order    []string
	Virtuals map[string]*Virtual
}

// NewRecordSchema creates an empty record schema stored in the default collection
func NewRecordSchema(name string) *RecordSchema {
	return &RecordSchema{
		Name:       name,
		Collection: DefaultCollection(name),
		Fields:     make(map[string]*Field),
		Order:      make([]string, 0),
		Virtuals:   make(map[string]*Virtual),
	}
}

// AddField appends a field, keeping declaration order
func (r *RecordSchema) AddField(f *Field) {
	if _, exists := r.Fields[f.Name]; !exists {
		r.Order = append(r.Order, f.Name)
	}
	r.Fields[f.Name] = f
}

// AddVirtual declares a virtual relationship
func (r *RecordSchema) AddVirtual(v *Virtual) {
	r.Virtuals[v.Name] = v
}

// Field returns the field with the given name
func (r *RecordSchema) Field(name string) (*Field, bool) {
	f, ok := r.Fields[name]
	return f, ok
}

// HasField returns true if the record type declares the given field
func (r *RecordSchema) HasField(name string) bool {
	_, exists := r.Fields[name]
	return exists
}

// Virtual returns the virtual relationship with the given name
func (r *RecordSchema) Virtual(name string) (*Virtual, bool) {
	v, ok := r.Virtuals[name]
	return v, ok
}

// OrderedFields returns the fields in declaration order
func (r *RecordSchema) OrderedFields() []*Field {
	fields := make([]*Field, 0, len(r.Order))
	for _, name := range r.Order {
		if f, ok := r.Fields[name]; ok {
			fields = append(fields, f)
		}
	}
	return fields
}

// DefaultCollection returns the snake_case plural of a record type name
func DefaultCollection(name string) string {
	return Plural(toSnakeCase(name))
}

// toSnakeCase converts a string to snake_case
func toSnakeCase(s string) string {
	var result []rune
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			// camelCase boundary, or the last capital of an acronym ("HTTPServer" -> "http_server")
			if prev >= 'a' && prev <= 'z' {
				result = append(result, '_')
			} else if i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z' {
				result = append(result, '_')
			}
		}
		if r >= 'A' && r <= 'Z' {
			result = append(result, r+('a'-'A'))
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}
