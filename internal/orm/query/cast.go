package query

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/docrud/internal/orm/schema"
	"github.com/conduit-lang/docrud/internal/orm/validation"
)

// operators whose operand is a single field value
var valueOperators = map[string]bool{
	"$eq": true, "$ne": true, "$gt": true, "$gte": true, "$lt": true, "$lte": true,
}

// operators whose operand is a list of field values
var listOperators = map[string]bool{
	"$in": true, "$nin": true, "$all": true,
}

// resolveField finds the declared field of a possibly dotted path, walking
// into embedded records ("children.name"). Array indexes are skipped.
func resolveField(record *schema.RecordSchema, path string) (*schema.Field, bool) {
	if record == nil {
		return nil, false
	}
	parts := strings.Split(path, ".")
	current := record
	var field *schema.Field
	for i := 0; i < len(parts); i++ {
		if field != nil && isIndex(parts[i]) {
			continue
		}
		if current == nil {
			return nil, false
		}
		f, ok := current.Field(parts[i])
		if !ok {
			return nil, false
		}
		field = f
		current = f.Nested
	}
	return field, field != nil
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// castFilter casts a literal or an operator document to the type of field.
// Operator documents keep operators it does not know as they are.
func castFilter(field *schema.Field, value interface{}) (interface{}, error) {
	m, ok := value.(map[string]interface{})
	if !ok || !isOperatorDocument(m) {
		return castOperand(field, value)
	}

	out := make(map[string]interface{}, len(m))
	for op, operand := range m {
		switch {
		case valueOperators[op]:
			v, err := castOperand(field, operand)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			out[op] = v
		case listOperators[op]:
			items, ok := operand.([]interface{})
			if !ok {
				out[op] = operand
				continue
			}
			cast := make([]interface{}, len(items))
			for i, item := range items {
				v, err := castOperand(field, item)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", op, err)
				}
				cast[i] = v
			}
			out[op] = cast
		case op == "$not":
			v, err := castFilter(field, operand)
			if err != nil {
				return nil, err
			}
			out[op] = v
		default:
			out[op] = operand
		}
	}
	return out, nil
}

// castOperand casts one comparison value. Lists are cast element by element
// for array fields; embedded and mixed fields compare raw values.
func castOperand(field *schema.Field, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	switch field.Kind {
	case schema.KindEmbedded, schema.KindEmbeddedArray:
		return value, nil
	case schema.KindReference, schema.KindReferenceArray:
		if items, ok := value.([]interface{}); ok && field.Kind == schema.KindReferenceArray {
			return castList(items, func(v interface{}) (interface{}, error) { return validation.Reference(v) })
		}
		return validation.Reference(value)
	}

	if items, ok := value.([]interface{}); ok && field.Array {
		return castList(items, func(v interface{}) (interface{}, error) {
			return validation.CastScalar(field.Type, v)
		})
	}
	return validation.CastScalar(field.Type, value)
}

func castList(items []interface{}, cast func(interface{}) (interface{}, error)) ([]interface{}, error) {
	out := make([]interface{}, len(items))
	for i, item := range items {
		v, err := cast(item)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func isOperatorDocument(m map[string]interface{}) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}
