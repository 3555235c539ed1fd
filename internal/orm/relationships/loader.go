package relationships

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/conduit-lang/docrud/internal/orm/document"
	"github.com/conduit-lang/docrud/internal/orm/schema"
	"github.com/conduit-lang/docrud/internal/orm/store"
)

// Populate replaces the named reference fields of every record with the
// records they point at and attaches the named virtual relationships. Dotted
// names ("relatedModels.sample") populate the loaded records in turn. Names
// that are neither reference fields nor virtuals are ignored. The top-level
// names that were populated are returned.
func (l *Loader) Populate(
	ctx context.Context,
	records []document.Document,
	record *schema.RecordSchema,
	names []string,
) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	return l.populate(ctx, records, record, names, NewLoadContext(l.maxDepth))
}

func (l *Loader) populate(
	ctx context.Context,
	records []document.Document,
	record *schema.RecordSchema,
	names []string,
	loadCtx *LoadContext,
) ([]string, error) {
	if err := loadCtx.IncrementDepth(); err != nil {
		return nil, err
	}
	defer loadCtx.DecrementDepth()

	order, nested := groupIncludes(names)
	populated := make([]string, 0, len(order))

	for _, name := range order {
		var (
			target *schema.RecordSchema
			loaded []document.Document
			err    error
		)

		if field, ok := record.Field(name); ok && field.IsReference() {
			if target, err = l.target(field.Target); err != nil {
				return nil, err
			}
			loaded, err = l.loadReferences(ctx, records, field, target)
		} else if virtual, ok := record.Virtual(name); ok {
			if target, err = l.target(virtual.Ref); err != nil {
				return nil, err
			}
			loaded, err = l.loadVirtual(ctx, records, virtual, target)
		} else {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to populate %s: %w", name, err)
		}
		populated = append(populated, name)

		if len(nested[name]) > 0 && len(loaded) > 0 {
			if _, err := l.populate(ctx, loaded, target, nested[name], loadCtx); err != nil {
				return nil, err
			}
		}
	}

	return populated, nil
}

func (l *Loader) target(name string) (*schema.RecordSchema, error) {
	target, ok := l.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, name)
	}
	return target, nil
}

// loadReferences resolves single and array reference fields with one query.
// Array order is kept and identifiers without a stored record are dropped.
func (l *Loader) loadReferences(
	ctx context.Context,
	records []document.Document,
	field *schema.Field,
	target *schema.RecordSchema,
) ([]document.Document, error) {
	ids := make([]interface{}, 0)
	seen := make(map[bson.ObjectID]bool)
	for _, rec := range records {
		for _, v := range referenceValues(rec[field.Name]) {
			if id, ok := objectID(v); ok && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	byID := make(map[bson.ObjectID]document.Document)
	var loaded []document.Document
	if len(ids) > 0 {
		docs, err := l.store.Find(ctx, target.Collection, store.Query{
			Filter: bson.M{document.IDKey: bson.M{"$in": ids}},
		})
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			if id, ok := doc.ID(); ok {
				byID[id] = doc
			}
		}
		loaded = docs
	}

	for _, rec := range records {
		if field.Kind == schema.KindReference {
			id, ok := objectID(rec[field.Name])
			if doc, found := byID[id]; ok && found {
				rec[field.Name] = map[string]interface{}(doc)
			} else {
				rec[field.Name] = nil
			}
			continue
		}

		resolved := make([]interface{}, 0)
		for _, v := range referenceValues(rec[field.Name]) {
			if id, ok := objectID(v); ok {
				if doc, found := byID[id]; found {
					resolved = append(resolved, map[string]interface{}(doc))
				}
			}
		}
		rec[field.Name] = resolved
	}

	return loaded, nil
}

// loadVirtual attaches the records of the virtual's target type whose
// foreign field equals the local field of each record.
func (l *Loader) loadVirtual(
	ctx context.Context,
	records []document.Document,
	virtual *schema.Virtual,
	target *schema.RecordSchema,
) ([]document.Document, error) {
	locals := make([]interface{}, 0)
	seen := make(map[string]bool)
	for _, rec := range records {
		for _, v := range referenceValues(rec[virtual.LocalField]) {
			if k := matchKey(v); !seen[k] {
				seen[k] = true
				locals = append(locals, v)
			}
		}
	}

	var loaded []document.Document
	if len(locals) > 0 {
		docs, err := l.store.Find(ctx, target.Collection, store.Query{
			Filter: bson.M{virtual.ForeignField: bson.M{"$in": locals}},
		})
		if err != nil {
			return nil, err
		}
		loaded = docs
	}

	for _, rec := range records {
		keys := make(map[string]bool)
		for _, v := range referenceValues(rec[virtual.LocalField]) {
			keys[matchKey(v)] = true
		}

		matches := make([]interface{}, 0)
		for _, doc := range loaded {
			for _, v := range referenceValues(doc[virtual.ForeignField]) {
				if keys[matchKey(v)] {
					matches = append(matches, map[string]interface{}(doc))
					break
				}
			}
		}

		if virtual.JustOne {
			if len(matches) > 0 {
				rec[virtual.Name] = matches[0]
			} else {
				rec[virtual.Name] = nil
			}
			continue
		}
		rec[virtual.Name] = matches
	}

	return loaded, nil
}

// groupIncludes splits dotted names into top-level names, in first-seen
// order, and the nested paths requested below each of them.
func groupIncludes(names []string) ([]string, map[string][]string) {
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

func referenceValues(v interface{}) []interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return val
	default:
		return []interface{}{val}
	}
}

// objectID accepts stored identifiers, hex strings and records carrying an id
func objectID(v interface{}) (bson.ObjectID, bool) {
	switch val := v.(type) {
	case bson.ObjectID:
		return val, true
	case string:
		id, err := document.ParseID(val)
		return id, err == nil
	case map[string]interface{}:
		if id, ok := val[document.IDKey]; ok {
			return objectID(id)
		}
	}
	return bson.ObjectID{}, false
}

func matchKey(v interface{}) string {
	if id, ok := v.(bson.ObjectID); ok {
		return "oid:" + id.Hex()
	}
	return fmt.Sprintf("%T:%v", v, v)
}
