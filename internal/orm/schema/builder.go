package schema

import (
	"fmt"
	"strings"
)

// Builder assembles a RecordSchema field by field. Errors are collected and
// reported together by Build.
type Builder struct {
	schema *RecordSchema
	errors []error
}

// New starts building a record type with the given name
func New(name string) *Builder {
	b := &Builder{schema: NewRecordSchema(name)}
	if strings.TrimSpace(name) == "" {
		b.errors = append(b.errors, fmt.Errorf("record type name is required"))
	}
	return b
}

// NewEmbedded starts building a sub-record type used by embedded fields
func NewEmbedded(name string) *Builder {
	b := New(name)
	b.schema.Embedded = true
	b.schema.Collection = ""
	return b
}

// Collection overrides the storage collection name
func (b *Builder) Collection(name string) *Builder {
	b.schema.Collection = name
	return b
}

// Scalar adds a scalar field of the given type
func (b *Builder) Scalar(name string, t PrimitiveType) *Builder {
	return b.add(&Field{Name: name, Kind: KindScalar, Type: t})
}

// String adds a string field
func (b *Builder) String(name string) *Builder { return b.Scalar(name, TypeString) }

// Number adds a floating point field
func (b *Builder) Number(name string) *Builder { return b.Scalar(name, TypeNumber) }

// Int adds an integer field
func (b *Builder) Int(name string) *Builder { return b.Scalar(name, TypeInt) }

// Bool adds a boolean field
func (b *Builder) Bool(name string) *Builder { return b.Scalar(name, TypeBool) }

// Date adds a timestamp field
func (b *Builder) Date(name string) *Builder { return b.Scalar(name, TypeDate) }

// Mixed adds a field that accepts any value
func (b *Builder) Mixed(name string) *Builder { return b.Scalar(name, TypeMixed) }

// ScalarArray adds an array of scalar values
func (b *Builder) ScalarArray(name string, t PrimitiveType) *Builder {
	return b.add(&Field{Name: name, Kind: KindScalar, Type: t, Array: true})
}

// Embedded adds a single inline sub-record
func (b *Builder) Embedded(name string, nested *RecordSchema) *Builder {
	return b.add(&Field{Name: name, Kind: KindEmbedded, Nested: nested})
}

// EmbeddedArray adds an array of inline sub-records
func (b *Builder) EmbeddedArray(name string, nested *RecordSchema) *Builder {
	return b.add(&Field{Name: name, Kind: KindEmbeddedArray, Nested: nested})
}

// Reference adds a single identifier of a record of the target type
func (b *Builder) Reference(name, target string) *Builder {
	return b.add(&Field{Name: name, Kind: KindReference, Type: TypeObjectID, Target: target})
}

// ReferenceArray adds an array of identifiers of records of the target type
func (b *Builder) ReferenceArray(name, target string) *Builder {
	return b.add(&Field{Name: name, Kind: KindReferenceArray, Type: TypeObjectID, Target: target})
}

// Singular overrides the single-element operation name of a declared field
func (b *Builder) Singular(field, singular string) *Builder {
	f, ok := b.schema.Fields[field]
	if !ok {
		b.errors = append(b.errors, fmt.Errorf("field %s: singular override on undeclared field", field))
		return b
	}
	f.Singular = singular
	return b
}

// Virtual declares a populate-only relationship: records of ref whose
// foreignField equals this record's localField.
func (b *Builder) Virtual(name, ref, localField, foreignField string) *Builder {
	if _, exists := b.schema.Fields[name]; exists {
		b.errors = append(b.errors, fmt.Errorf("virtual %s: name is already used by a field", name))
		return b
	}
	b.schema.AddVirtual(&Virtual{
		Name:         name,
		Ref:          ref,
		LocalField:   localField,
		ForeignField: foreignField,
	})
	return b
}

// Build returns the record schema or every error collected while building it
func (b *Builder) Build() (*RecordSchema, error) {
	if len(b.errors) > 0 {
		var errMsgs []string
		for _, err := range b.errors {
			errMsgs = append(errMsgs, err.Error())
		}
		return nil, fmt.Errorf("schema building failed with %d errors:\n%s",
			len(b.errors), strings.Join(errMsgs, "\n"))
	}
	return b.schema, nil
}

// MustBuild is like Build but panics on error
func (b *Builder) MustBuild() *RecordSchema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

func (b *Builder) add(f *Field) *Builder {
	if strings.TrimSpace(f.Name) == "" {
		b.errors = append(b.errors, fmt.Errorf("field name is required"))
		return b
	}
	if _, exists := b.schema.Fields[f.Name]; exists {
		b.errors = append(b.errors, fmt.Errorf("field %s: declared more than once", f.Name))
		return b
	}
	if f.IsEmbedded() && f.Nested == nil {
		b.errors = append(b.errors, fmt.Errorf("field %s: embedded field requires a nested schema", f.Name))
		return b
	}
	if f.IsReference() && f.Target == "" {
		b.errors = append(b.errors, fmt.Errorf("field %s: reference field requires a target type", f.Name))
		return b
	}
	b.schema.AddField(f)
	return b
}
