package crud

import (
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/conduit-lang/docrud/internal/orm/document"
)

// Request is a parsed mutation envelope. Field names the envelope key the
// payload arrived under; an empty Field means the caller bound the payload
// to the operation directly.
type Request struct {
	ID      string
	Field   string
	Payload interface{}
}

// ParseEnvelope extracts a request from {id, <key>: payload}. The envelope
// must carry "id" and exactly one other key, equal to key.
func ParseEnvelope(envelope map[string]interface{}, key string) (Request, error) {
	rawID, ok := envelope[document.TransferIDKey]
	if !ok {
		return Request{}, fmt.Errorf("%w: missing %q", ErrInvalidEnvelope, document.TransferIDKey)
	}
	id, ok := rawID.(string)
	if !ok || id == "" {
		return Request{}, fmt.Errorf("%w: %q must be a non-empty string", ErrInvalidEnvelope, document.TransferIDKey)
	}

	extra := make([]string, 0, len(envelope))
	for k := range envelope {
		if k != document.TransferIDKey && k != key {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return Request{}, fmt.Errorf("%w: expected only %q besides %q, got %s",
			ErrInvalidEnvelope, key, document.TransferIDKey, strings.Join(extra, ", "))
	}

	payload, ok := envelope[key]
	if !ok || payload == nil {
		return Request{}, fmt.Errorf("%w: missing %q", ErrInvalidEnvelope, key)
	}

	return Request{ID: id, Field: key, Payload: payload}, nil
}

// parseRecordID parses the identifier of the record a call targets
func parseRecordID(id string) (bson.ObjectID, error) {
	oid, err := document.ParseID(id)
	if err != nil {
		return bson.ObjectID{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return oid, nil
}
