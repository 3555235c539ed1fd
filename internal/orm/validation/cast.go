// Package validation casts incoming payload values to the types declared by
// a record schema and reports every value that cannot be cast.
package validation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/conduit-lang/docrud/internal/orm/document"
	"github.com/conduit-lang/docrud/internal/orm/schema"
)

// dateLayouts are tried in order when casting strings to dates
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Caster converts payloads into stored records
type Caster struct {
	newID func() bson.ObjectID
}

// NewCaster creates a caster generating identifiers with document.NewID
func NewCaster() *Caster {
	return &Caster{newID: document.NewID}
}

// Record builds a stored record from a payload. Keys the schema does not
// declare are dropped, embedded records receive fresh identifiers and
// references are parsed into identifiers.
func (c *Caster) Record(record *schema.RecordSchema, payload map[string]interface{}) (document.Document, error) {
	errs := NewValidationErrors()
	doc := c.record(record, payload, "", errs)
	if errs.HasErrors() {
		return nil, errs
	}
	return document.Document(doc), nil
}

// Field casts the value of one field
func (c *Caster) Field(field *schema.Field, value interface{}) (interface{}, error) {
	errs := NewValidationErrors()
	v := c.field(field, value, field.Name, errs)
	if errs.HasErrors() {
		return nil, errs
	}
	return v, nil
}

// Embedded casts one embedded record and assigns it the given identifier
func (c *Caster) Embedded(nested *schema.RecordSchema, payload map[string]interface{}, id bson.ObjectID) (map[string]interface{}, error) {
	errs := NewValidationErrors()
	rec := c.record(nested, payload, "", errs)
	if errs.HasErrors() {
		return nil, errs
	}
	rec[document.IDKey] = id
	return rec, nil
}

// Reference parses a reference from an identifier, a hex string or a record
// carrying "id" or "_id"
func Reference(value interface{}) (bson.ObjectID, error) {
	switch v := value.(type) {
	case bson.ObjectID:
		return v, nil
	case string:
		return document.ParseID(v)
	case map[string]interface{}, document.Document:
		s, ok := document.IDString(v)
		if !ok {
			return bson.ObjectID{}, fmt.Errorf("%w: record without id", document.ErrInvalidID)
		}
		return Reference(s)
	}
	return bson.ObjectID{}, fmt.Errorf("%w: %v", document.ErrInvalidID, value)
}

func (c *Caster) record(record *schema.RecordSchema, payload map[string]interface{}, prefix string, errs *ValidationErrors) map[string]interface{} {
	out := make(map[string]interface{}, len(payload)+1)
	for _, field := range record.OrderedFields() {
		value, ok := payload[field.Name]
		if !ok {
			continue
		}
		out[field.Name] = c.field(field, value, prefix+field.Name, errs)
	}
	if !record.Embedded {
		out[document.IDKey] = c.newID()
	}
	return out
}

func (c *Caster) field(field *schema.Field, value interface{}, path string, errs *ValidationErrors) interface{} {
	if value == nil {
		return nil
	}

	switch field.Kind {
	case schema.KindEmbedded:
		m, ok := asRecord(value)
		if !ok {
			errs.Add(path, fmt.Sprintf("expected a %s record", field.Nested.Name))
			return nil
		}
		rec := c.record(field.Nested, m, path+".", errs)
		rec[document.IDKey] = c.newID()
		return rec

	case schema.KindEmbeddedArray:
		items := asList(value)
		out := make([]interface{}, 0, len(items))
		for i, item := range items {
			m, ok := asRecord(item)
			if !ok {
				errs.Add(fmt.Sprintf("%s.%d", path, i), fmt.Sprintf("expected a %s record", field.Nested.Name))
				continue
			}
			rec := c.record(field.Nested, m, fmt.Sprintf("%s.%d.", path, i), errs)
			rec[document.IDKey] = c.newID()
			out = append(out, rec)
		}
		return out

	case schema.KindReference:
		id, err := Reference(value)
		if err != nil {
			errs.Add(path, err.Error())
			return nil
		}
		return id

	case schema.KindReferenceArray:
		items := asList(value)
		out := make([]interface{}, 0, len(items))
		for i, item := range items {
			id, err := Reference(item)
			if err != nil {
				errs.Add(fmt.Sprintf("%s.%d", path, i), err.Error())
				continue
			}
			out = append(out, id)
		}
		return out
	}

	if field.Array {
		items := asList(value)
		out := make([]interface{}, 0, len(items))
		for i, item := range items {
			v, err := CastScalar(field.Type, item)
			if err != nil {
				errs.Add(fmt.Sprintf("%s.%d", path, i), err.Error())
				continue
			}
			out = append(out, v)
		}
		return out
	}

	v, err := CastScalar(field.Type, value)
	if err != nil {
		errs.Add(path, err.Error())
		return nil
	}
	return v
}

// CastScalar converts a value to the given primitive type. nil is kept.
func CastScalar(t schema.PrimitiveType, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	switch t {
	case schema.TypeString:
		switch v := value.(type) {
		case string:
			return v, nil
		case bool:
			return strconv.FormatBool(v), nil
		case bson.ObjectID:
			return v.Hex(), nil
		}
		if f, ok := toFloat64(value); ok {
			return strconv.FormatFloat(f, 'f', -1, 64), nil
		}

	case schema.TypeNumber:
		if s, ok := value.(string); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return f, nil
			}
			break
		}
		if _, ok := toFloat64(value); ok {
			return value, nil
		}

	case schema.TypeInt:
		if i, ok := toInt64(value); ok {
			return i, nil
		}
		if s, ok := value.(string); ok {
			if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
				return i, nil
			}
		}

	case schema.TypeBool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "1", "yes":
				return true, nil
			case "false", "0", "no":
				return false, nil
			}
		default:
			if i, ok := toInt64(value); ok && (i == 0 || i == 1) {
				return i == 1, nil
			}
		}

	case schema.TypeDate:
		switch v := value.(type) {
		case time.Time:
			return v.UTC(), nil
		case bson.DateTime:
			return v.Time().UTC(), nil
		case string:
			for _, layout := range dateLayouts {
				if ts, err := time.Parse(layout, v); err == nil {
					return ts.UTC(), nil
				}
			}
		default:
			if ms, ok := toInt64(value); ok {
				return time.UnixMilli(ms).UTC(), nil
			}
		}

	case schema.TypeObjectID:
		if id, err := Reference(value); err == nil {
			return id, nil
		}

	case schema.TypeMixed:
		return document.Normalize(value), nil
	}

	return nil, fmt.Errorf("cannot cast %v to %s", value, t)
}

func asRecord(v interface{}) (map[string]interface{}, bool) {
	m, ok := document.Normalize(v).(map[string]interface{})
	return m, ok
}

// asList treats a single value as a one-element list
func asList(v interface{}) []interface{} {
	if list, ok := document.Normalize(v).([]interface{}); ok {
		return list
	}
	return []interface{}{v}
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// toInt64 accepts integers and integral floats, as produced by JSON decoding
func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int64(n), true
		}
	case float32:
		f := float64(n)
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			return int64(f), true
		}
	}
	return 0, false
}
