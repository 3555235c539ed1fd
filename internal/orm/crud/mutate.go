package crud

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/conduit-lang/docrud/internal/orm/document"
	"github.com/conduit-lang/docrud/internal/orm/schema"
	"github.com/conduit-lang/docrud/internal/orm/validation"
)

// Invoke parses a {id, <EnvelopeKey>: payload} envelope and executes the operation
func (o *Operation) Invoke(ctx context.Context, envelope map[string]interface{}) (Diagnostics, error) {
	req, err := ParseEnvelope(envelope, o.EnvelopeKey)
	if err != nil {
		return nil, err
	}
	return o.Execute(ctx, req)
}

// Execute loads the record, applies the operation's action to the bound
// collection and saves the record. Elements that name a missing member are
// skipped and reported as diagnostics; the call still succeeds.
func (o *Operation) Execute(ctx context.Context, req Request) (Diagnostics, error) {
	if req.Field != "" && req.Field != o.EnvelopeKey {
		return nil, fmt.Errorf("%w: %s expects %q, got %q", ErrInvalidEnvelope, o.Name, o.EnvelopeKey, req.Field)
	}
	elements, err := o.elements(req.Payload)
	if err != nil {
		return nil, err
	}

	id, err := parseRecordID(req.ID)
	if err != nil {
		return nil, err
	}
	doc, err := o.service.load(ctx, id)
	if err != nil {
		return nil, err
	}

	target := o.targetField()
	m := &mutation{
		op:     o,
		field:  target,
		caster: o.service.caster,
		items:  collection(doc[target.Name]),
	}
	if err := m.apply(elements); err != nil {
		return nil, err
	}

	doc[target.Name] = m.items
	doc.BumpVersion()
	if err := o.service.save(ctx, doc); err != nil {
		return nil, err
	}

	for _, d := range m.diagnostics {
		o.service.logger.Warn(d.Message,
			zap.String("service", o.service.name),
			zap.String("operation", o.Name),
			zap.String("id", req.ID),
		)
	}
	o.service.logger.Debug("operation executed",
		zap.String("service", o.service.name),
		zap.String("operation", o.Name),
		zap.String("id", req.ID),
		zap.Int("elements", len(elements)),
		zap.Int("diagnostics", len(m.diagnostics)),
	)

	return m.diagnostics, nil
}

// elements turns the payload into the list of elements to apply. Plural
// operations accept a single element as a one-element batch; single-element
// operations reject lists.
func (o *Operation) elements(payload interface{}) ([]interface{}, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: missing %q", ErrInvalidEnvelope, o.EnvelopeKey)
	}
	payload = document.Normalize(payload)
	list, isList := payload.([]interface{})
	if o.Action.Single() {
		if isList {
			return nil, fmt.Errorf("%w: %s takes a single element", ErrInvalidEnvelope, o.Name)
		}
		return []interface{}{payload}, nil
	}
	if !isList {
		return []interface{}{payload}, nil
	}
	return list, nil
}

// targetField resolves the stored collection a single-element operation
// mutates: the plural of its envelope key without a trailing "Id", then the
// singular form, then the field the operation was synthesized for.
func (o *Operation) targetField() *schema.Field {
	if !o.Action.Single() {
		return o.field
	}
	record := o.service.record
	for _, name := range schema.StorageCandidates(o.EnvelopeKey) {
		if f, ok := record.Field(name); ok && schema.Classify(f) == o.Classification {
			return f
		}
	}
	return o.field
}

type mutation struct {
	op          *Operation
	field       *schema.Field
	caster      *validation.Caster
	items       []interface{}
	diagnostics Diagnostics
}

func (m *mutation) apply(elements []interface{}) error {
	if m.op.Action == ActionReplace {
		m.items = make([]interface{}, 0, len(elements))
	}

	for _, element := range elements {
		var err error
		if m.op.Classification == schema.ClassEmbeddedCollection {
			err = m.applyEmbedded(element)
		} else {
			err = m.applyReference(element)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *mutation) applyEmbedded(element interface{}) error {
	switch m.op.Action {
	case ActionPush, ActionReplace, ActionAdd:
		payload, err := m.record(element)
		if err != nil {
			return err
		}
		child, err := m.embedded(payload, document.NewID())
		if err != nil {
			return err
		}
		m.items = append(m.items, child)

	case ActionAddToSet:
		payload, err := m.record(element)
		if err != nil {
			return err
		}
		id := document.NewID()
		if clientID := idOf(payload); clientID != "" {
			if id, err = document.ParseID(clientID); err != nil {
				return fmt.Errorf("%w: %q", ErrInvalidID, clientID)
			}
		}
		if indexOf(m.items, id.Hex()) >= 0 {
			return nil
		}
		child, err := m.embedded(payload, id)
		if err != nil {
			return err
		}
		m.items = append(m.items, child)

	case ActionUpdate:
		payload, err := m.record(element)
		if err != nil {
			return err
		}
		id := idOf(payload)
		i := indexOf(m.items, id)
		if i < 0 {
			m.missing("child", id)
			return nil
		}
		return m.merge(i, payload)

	case ActionRemove, ActionRemoveSingle:
		id := idOf(element)
		i := indexOf(m.items, id)
		if i < 0 {
			m.missing("child", id)
			return nil
		}
		m.items = append(m.items[:i], m.items[i+1:]...)
	}
	return nil
}

func (m *mutation) applyReference(element interface{}) error {
	switch m.op.Action {
	case ActionPush, ActionReplace, ActionAdd:
		id, err := validation.Reference(element)
		if err != nil {
			return err
		}
		m.items = append(m.items, id)

	case ActionAddToSet:
		id, err := validation.Reference(element)
		if err != nil {
			return err
		}
		if indexOf(m.items, id.Hex()) < 0 {
			m.items = append(m.items, id)
		}

	case ActionRemove, ActionRemoveSingle:
		id := idOf(element)
		if indexOf(m.items, id) < 0 {
			m.missing("related model", id)
			return nil
		}
		kept := m.items[:0]
		for _, item := range m.items {
			if s, _ := document.IDString(item); s != id {
				kept = append(kept, item)
			}
		}
		m.items = kept

	case ActionUpdate:
		return fmt.Errorf("%w: %s cannot update reference elements", ErrInvalidEnvelope, m.op.Name)
	}
	return nil
}

func (m *mutation) record(element interface{}) (map[string]interface{}, error) {
	payload, ok := element.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s elements must be objects", ErrInvalidEnvelope, m.op.EnvelopeKey)
	}
	return payload, nil
}

// embedded casts a client element into a stored sub-record with the given id
func (m *mutation) embedded(payload map[string]interface{}, id bson.ObjectID) (map[string]interface{}, error) {
	return m.caster.Embedded(m.field.Nested, withoutIDs(payload), id)
}

// merge copies the declared fields of payload onto the element at index i
func (m *mutation) merge(i int, payload map[string]interface{}) error {
	current, ok := m.items[i].(map[string]interface{})
	if !ok {
		return fmt.Errorf("stored element %d of %s is not a record", i, m.field.Name)
	}
	merged := make(map[string]interface{}, len(current)+len(payload))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range withoutIDs(payload) {
		f, ok := m.field.Nested.Field(k)
		if !ok {
			continue
		}
		cast, err := m.caster.Field(f, v)
		if err != nil {
			return err
		}
		merged[k] = cast
	}
	m.items[i] = merged
	return nil
}

func (m *mutation) missing(class, id string) {
	m.diagnostics = append(m.diagnostics, missingSubElement(class, id, m.op.EnvelopeKey))
}

// collection returns the stored members of a collection field
func collection(v interface{}) []interface{} {
	switch val := document.Normalize(v).(type) {
	case nil:
		return make([]interface{}, 0)
	case []interface{}:
		return val
	default:
		return []interface{}{val}
	}
}

// idOf returns the identifier named by an element: a bare id or the "id"
// of a record. Parsable identifiers are returned in canonical hex form.
func idOf(element interface{}) string {
	var s string
	if m, ok := element.(map[string]interface{}); ok {
		if id, ok := m[document.TransferIDKey]; ok {
			s, _ = document.IDString(id)
		} else {
			s, _ = document.IDString(m)
		}
	} else {
		s, _ = document.IDString(element)
	}
	if oid, err := document.ParseID(s); err == nil {
		return oid.Hex()
	}
	return s
}

// indexOf returns the position of the member whose identifier equals id:
// its own "_id" for sub-records, the value itself for references
func indexOf(items []interface{}, id string) int {
	if id == "" {
		return -1
	}
	for i, item := range items {
		if s, ok := document.IDString(item); ok && s == id {
			return i
		}
	}
	return -1
}

func withoutIDs(payload map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		if k == document.TransferIDKey || k == document.IDKey {
			continue
		}
		out[k] = v
	}
	return out
}
