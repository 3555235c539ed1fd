// Package document defines the in-memory shape of stored records and the
// identifier helpers shared by the store backends and the CRUD layer.
//
// A Document is a plain map keyed by field name. Nested records are
// map[string]interface{} values and arrays are []interface{} values, so every
// backend (BSON, SQL blobs, Redis hashes, in-process maps) hands the CRUD layer
// the same canonical shape after Normalize.
package document

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	// IDKey is the storage identifier key of every record and embedded record
	IDKey = "_id"

	// VersionKey is the store-internal version marker
	VersionKey = "__v"

	// TransferIDKey is the identifier key exposed on transfer objects and envelopes
	TransferIDKey = "id"
)

// ErrInvalidID is returned when a string cannot be parsed as an identifier
var ErrInvalidID = errors.New("invalid object id")

// Document is one stored record
type Document map[string]interface{}

// NewID generates a fresh storage identifier
func NewID() bson.ObjectID {
	return bson.NewObjectID()
}

// ParseID parses an identifier from either raw hex "67b8f1..." or the wrapped
// format ObjectID("67b8f1...") produced by fmt.Sprintf("%v").
func ParseID(s string) (bson.ObjectID, error) {
	if oid, err := bson.ObjectIDFromHex(s); err == nil {
		return oid, nil
	}
	if strings.HasPrefix(s, "ObjectID(\"") && strings.HasSuffix(s, "\")") {
		hex := s[len("ObjectID(\"") : len(s)-len("\")")]
		if oid, err := bson.ObjectIDFromHex(hex); err == nil {
			return oid, nil
		}
	}
	return bson.ObjectID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
}

// ID returns the storage identifier of the document
func (d Document) ID() (bson.ObjectID, bool) {
	oid, ok := d[IDKey].(bson.ObjectID)
	return oid, ok
}

// Version returns the version marker, zero when absent
func (d Document) Version() int64 {
	switch v := d[VersionKey].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

// BumpVersion increments the version marker
func (d Document) BumpVersion() {
	d[VersionKey] = d.Version() + 1
}

// IDString returns the string form of an identifier-like value: an ObjectID,
// a string, or a record carrying "_id" or "id".
func IDString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case bson.ObjectID:
		return val.Hex(), true
	case string:
		return val, true
	case map[string]interface{}:
		if id, ok := val[IDKey]; ok {
			return IDString(id)
		}
		if id, ok := val[TransferIDKey]; ok {
			return IDString(id)
		}
	case Document:
		return IDString(map[string]interface{}(val))
	}
	return "", false
}

// Normalize converts driver specific containers into the canonical shape:
// bson.D, bson.M and Document become map[string]interface{}, bson.A and typed
// slices become []interface{}, bson.DateTime becomes time.Time.
func Normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case bson.D:
		m := make(map[string]interface{}, len(val))
		for _, e := range val {
			m[e.Key] = Normalize(e.Value)
		}
		return m
	case bson.M:
		return normalizeMap(val)
	case Document:
		return normalizeMap(val)
	case map[string]interface{}:
		return normalizeMap(val)
	case bson.A:
		return normalizeSlice(val)
	case []interface{}:
		return normalizeSlice(val)
	case []map[string]interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = normalizeMap(e)
		}
		return out
	case []Document:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = normalizeMap(e)
		}
		return out
	case []bson.ObjectID:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = e
		}
		return out
	case []string:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = e
		}
		return out
	case bson.DateTime:
		return val.Time().UTC()
	default:
		return v
	}
}

// FromMap normalizes a decoded map into a Document
func FromMap(m map[string]interface{}) Document {
	if m == nil {
		return nil
	}
	return Document(normalizeMap(m))
}

// Clone returns a deep copy of the document
func Clone(d Document) Document {
	if d == nil {
		return nil
	}
	return Document(normalizeMap(d))
}

// Marshal encodes the document as BSON
func Marshal(d Document) ([]byte, error) {
	data, err := bson.Marshal(map[string]interface{}(d))
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a BSON document into canonical form
func Unmarshal(data []byte) (Document, error) {
	var raw bson.D
	if err := bson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	m, _ := Normalize(raw).(map[string]interface{})
	return Document(m), nil
}

// Lookup resolves a dotted path ("child.name") against a record
func Lookup(m map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var cur interface{} = m
	for _, part := range parts {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			if d, isDoc := cur.(Document); isDoc {
				obj = d
			} else {
				return nil, false
			}
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func normalizeMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = Normalize(v)
	}
	return out
}

func normalizeSlice(s []interface{}) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = Normalize(v)
	}
	return out
}
