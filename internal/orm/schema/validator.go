package schema

import (
	"fmt"
	"strings"
)

// reservedFields are managed by the engine and cannot be declared
var reservedFields = map[string]bool{
	"_id": true,
	"id":  true,
	"__v": true,
}

// ValidationError represents a schema validation error with context
type ValidationError struct {
	Record  string
	Field   string
	Message string
	Hint    string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	var b strings.Builder

	if e.Record != "" {
		b.WriteString(e.Record)
		if e.Field != "" {
			b.WriteString(".")
			b.WriteString(e.Field)
		}
		b.WriteString(": ")
	}

	b.WriteString(e.Message)

	if e.Hint != "" {
		b.WriteString("\n  hint: ")
		b.WriteString(e.Hint)
	}

	return b.String()
}

// SchemaValidator validates record schemas
type SchemaValidator struct {
	errors []*ValidationError
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{}
}

// ValidateStructural validates a single record schema without cross-type
// checks, so that references may point at types registered later.
func (v *SchemaValidator) ValidateStructural(schema *RecordSchema) error {
	v.errors = make([]*ValidationError, 0)
	v.validateRecord(schema, make(map[*RecordSchema]bool))
	return v.result()
}

// ValidateReferences checks that every reference target and virtual ref of
// schema names a registered, stored record type.
func (v *SchemaValidator) ValidateReferences(schema *RecordSchema, registry map[string]*RecordSchema) error {
	v.errors = make([]*ValidationError, 0)
	v.validateTargets(schema, registry, make(map[*RecordSchema]bool))
	return v.result()
}

func (v *SchemaValidator) validateRecord(schema *RecordSchema, seen map[*RecordSchema]bool) {
	if seen[schema] {
		return
	}
	seen[schema] = true

	if schema.Name == "" {
		v.addError("", "", "record type name is required", "")
	}
	if !schema.Embedded && schema.Collection == "" {
		v.addError(schema.Name, "", "stored record type requires a collection", "")
	}

	for _, name := range schema.Order {
		if _, ok := schema.Fields[name]; !ok {
			v.addError(schema.Name, name, "field listed in declaration order is not declared", "")
		}
	}

	for name, field := range schema.Fields {
		if name != field.Name {
			v.addError(schema.Name, name, fmt.Sprintf("field registered under %q but named %q", name, field.Name), "")
		}
		if reservedFields[name] {
			v.addError(schema.Name, name, "field name is reserved",
				"identifiers and version markers are managed by the store")
		}
		switch field.Kind {
		case KindEmbedded, KindEmbeddedArray:
			if field.Nested == nil {
				v.addError(schema.Name, name, "embedded field requires a nested schema", "")
				continue
			}
			v.validateRecord(field.Nested, seen)
		case KindReference, KindReferenceArray:
			if field.Target == "" {
				v.addError(schema.Name, name, "reference field requires a target type", "")
			}
		}
	}

	for name, virtual := range schema.Virtuals {
		if schema.HasField(name) {
			v.addError(schema.Name, name, "virtual shadows a declared field", "")
		}
		if virtual.Ref == "" || virtual.LocalField == "" || virtual.ForeignField == "" {
			v.addError(schema.Name, name, "virtual requires ref, localField and foreignField", "")
		}
	}
}

func (v *SchemaValidator) validateTargets(schema *RecordSchema, registry map[string]*RecordSchema, seen map[*RecordSchema]bool) {
	if seen[schema] {
		return
	}
	seen[schema] = true

	for name, field := range schema.Fields {
		if field.IsEmbedded() && field.Nested != nil {
			v.validateTargets(field.Nested, registry, seen)
			continue
		}
		if !field.IsReference() {
			continue
		}
		v.checkTarget(schema.Name, name, field.Target, registry)
	}
	for name, virtual := range schema.Virtuals {
		v.checkTarget(schema.Name, name, virtual.Ref, registry)
	}
}

func (v *SchemaValidator) checkTarget(record, field, target string, registry map[string]*RecordSchema) {
	ts, ok := registry[target]
	if !ok {
		v.addError(record, field, fmt.Sprintf("references unknown record type %s", target),
			fmt.Sprintf("register %s before validating", target))
		return
	}
	if ts.Embedded {
		v.addError(record, field, fmt.Sprintf("references embedded record type %s", target),
			"only stored record types can be referenced")
	}
}

func (v *SchemaValidator) addError(record, field, message, hint string) {
	v.errors = append(v.errors, &ValidationError{
		Record:  record,
		Field:   field,
		Message: message,
		Hint:    hint,
	})
}

func (v *SchemaValidator) result() error {
	if len(v.errors) == 0 {
		return nil
	}
	var errMsgs []string
	for _, err := range v.errors {
		errMsgs = append(errMsgs, err.Error())
	}
	return fmt.Errorf("schema validation failed with %d errors:\n%s",
		len(v.errors), strings.Join(errMsgs, "\n"))
}
