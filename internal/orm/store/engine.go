package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/conduit-lang/docrud/internal/orm/document"
)

// Apply evaluates a query in process against a set of documents, in the
// order filter, sort, skip, limit, projection. Backends without a native
// query language share it. The input slice is not modified.
func Apply(docs []document.Document, q Query) ([]document.Document, error) {
	if err := validateSort(q.Sort); err != nil {
		return nil, err
	}

	matched := make([]document.Document, 0, len(docs))
	for _, doc := range docs {
		ok, err := Matches(doc, q.Filter)
		if err != nil {
			return nil, fmt.Errorf("invalid filter: %w", err)
		}
		if ok {
			matched = append(matched, doc)
		}
	}

	if len(q.Sort) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			return lessBySort(matched[i], matched[j], q.Sort)
		})
	}

	matched = paginate(matched, q.Skip, q.Limit)

	result := make([]document.Document, len(matched))
	for i, doc := range matched {
		result[i] = Project(doc, q.Projection)
	}
	return result, nil
}

// Project keeps the identifier and the listed fields of a document. An empty
// projection returns a copy of the whole document.
func Project(doc document.Document, fields []string) document.Document {
	if len(fields) == 0 {
		return document.Clone(doc)
	}
	out := document.Document{}
	if id, ok := doc[document.IDKey]; ok {
		out[document.IDKey] = id
	}
	for _, path := range fields {
		projectPath(out, doc, strings.Split(path, "."))
	}
	return document.Clone(out)
}

func projectPath(dst, src map[string]interface{}, parts []string) {
	v, ok := src[parts[0]]
	if !ok {
		return
	}
	if len(parts) == 1 {
		dst[parts[0]] = v
		return
	}
	nested, isMap := v.(map[string]interface{})
	if !isMap {
		return
	}
	child, exists := dst[parts[0]].(map[string]interface{})
	if !exists {
		child = make(map[string]interface{})
		dst[parts[0]] = child
	}
	projectPath(child, nested, parts[1:])
}

func validateSort(fields []SortField) error {
	for _, s := range fields {
		if s.Field == "" {
			return fmt.Errorf("sort field name is required")
		}
		if s.Direction != 1 && s.Direction != -1 {
			return fmt.Errorf("sort direction for %s must be 1 or -1, got %d", s.Field, s.Direction)
		}
	}
	return nil
}

func lessBySort(a, b document.Document, keys []SortField) bool {
	for _, key := range keys {
		c := compareValues(sortKey(a, key), sortKey(b, key))
		if c == 0 {
			continue
		}
		if key.Direction < 0 {
			return c > 0
		}
		return c < 0
	}
	return false
}

// sortKey picks the value a document sorts by: the smallest array element for
// ascending sorts and the largest for descending ones.
func sortKey(doc document.Document, key SortField) interface{} {
	values, found := resolvePath(doc, key.Field)
	if !found || len(values) == 0 {
		return nil
	}
	flat := candidates(values)
	if len(flat) == 0 {
		return nil
	}
	best := flat[0]
	for _, v := range flat[1:] {
		c := compareValues(v, best)
		if (key.Direction >= 0 && c < 0) || (key.Direction < 0 && c > 0) {
			best = v
		}
	}
	return best
}

func paginate(docs []document.Document, skip, limit int64) []document.Document {
	if skip > 0 {
		if skip >= int64(len(docs)) {
			return docs[:0]
		}
		docs = docs[skip:]
	}
	if limit > 0 && limit < int64(len(docs)) {
		docs = docs[:limit]
	}
	return docs
}
