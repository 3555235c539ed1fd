// Package query translates structured list requests into store queries
package query

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/conduit-lang/docrud/internal/orm/document"
	"github.com/conduit-lang/docrud/internal/orm/schema"
	"github.com/conduit-lang/docrud/internal/orm/store"
)

var (
	// ErrMalformedFilterValue is returned when a where clause value cannot be parsed
	ErrMalformedFilterValue = errors.New("malformed filter value")

	// ErrMalformedSort is returned for sort entries without a field or with a direction other than 1 or -1
	ErrMalformedSort = errors.New("malformed sort")

	// ErrMalformedPagination is returned for negative skip or limit values
	ErrMalformedPagination = errors.New("malformed pagination")
)

// Matcher is the comparison mode of a where clause
type Matcher string

const (
	// MatcherString compares the value literally. It is the default.
	MatcherString Matcher = "STRING"
	// MatcherObject parses the value as a JSON filter expression
	MatcherObject Matcher = "OBJECT"
	// MatcherRegex parses the value as /pattern/flags or a bare pattern
	MatcherRegex Matcher = "REGEX"
)

// SortSpec orders results by one field: Value 1 ascending, -1 descending
type SortSpec struct {
	Field string `json:"field"`
	Value int    `json:"value"`
}

// WhereClause filters results by one field
type WhereClause struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value"`
	Matcher Matcher     `json:"matcher,omitempty"`
}

// ListRequest is the structured list query accepted by the list operation
type ListRequest struct {
	Limit    int64         `json:"limit,omitempty"`
	Skip     int64         `json:"skip,omitempty"`
	Sort     []SortSpec    `json:"sort,omitempty"`
	Fields   []string      `json:"fields,omitempty"`
	Where    []WhereClause `json:"where,omitempty"`
	Populate []string      `json:"populate,omitempty"`
}

// delimitedRegex splits "/pattern/flags". Values whose suffix is not made of
// flag letters are bare patterns.
var delimitedRegex = regexp.MustCompile(`^/(.*)/([gimsuyx]*)$`)

// Translate converts a list request into a store query. Where values on
// fields declared by record are cast to the field type; record may be nil.
// Population is left to the caller since it runs after the query.
func Translate(req ListRequest, record *schema.RecordSchema) (store.Query, error) {
	if req.Skip < 0 || req.Limit < 0 {
		return store.Query{}, fmt.Errorf("%w: skip and limit must not be negative", ErrMalformedPagination)
	}

	filter, err := TranslateWhere(req.Where, record)
	if err != nil {
		return store.Query{}, err
	}

	sort, err := TranslateSort(req.Sort)
	if err != nil {
		return store.Query{}, err
	}

	return store.Query{
		Filter:     filter,
		Sort:       sort,
		Projection: translateFields(req.Fields),
		Skip:       req.Skip,
		Limit:      req.Limit,
	}, nil
}

// TranslateSort validates sort entries and keeps their order
func TranslateSort(specs []SortSpec) ([]store.SortField, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	fields := make([]store.SortField, 0, len(specs))
	for _, s := range specs {
		if s.Field == "" {
			return nil, fmt.Errorf("%w: field is required", ErrMalformedSort)
		}
		if s.Value != 1 && s.Value != -1 {
			return nil, fmt.Errorf("%w: %s direction must be 1 or -1, got %d", ErrMalformedSort, s.Field, s.Value)
		}
		fields = append(fields, store.SortField{Field: storageName(s.Field), Direction: s.Value})
	}
	return fields, nil
}

// TranslateWhere builds a filter from where clauses. Clauses on distinct
// fields are merged into one document; a repeated field combines every clause
// under $and. STRING and OBJECT values on declared fields are cast as stored,
// so "33" matches an int field and a hex string matches a reference.
func TranslateWhere(clauses []WhereClause, record *schema.RecordSchema) (bson.M, error) {
	if len(clauses) == 0 {
		return nil, nil
	}

	parts := make([]bson.M, 0, len(clauses))
	seen := make(map[string]bool)
	repeated := false
	for _, c := range clauses {
		if strings.TrimSpace(c.Field) == "" {
			return nil, fmt.Errorf("%w: field is required", ErrMalformedFilterValue)
		}
		field := storageName(c.Field)
		value, err := whereValue(c)
		if err != nil {
			return nil, err
		}
		if field == document.IDKey {
			value = convertIDs(value)
		} else if declared, ok := resolveField(record, field); ok && !isRegexClause(c) {
			if value, err = castFilter(declared, value); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFilterValue, c.Field, err)
			}
		}
		if seen[field] {
			repeated = true
		}
		seen[field] = true
		parts = append(parts, bson.M{field: value})
	}

	if repeated {
		and := make(bson.A, len(parts))
		for i, p := range parts {
			and[i] = p
		}
		return bson.M{"$and": and}, nil
	}

	filter := bson.M{}
	for _, p := range parts {
		for k, v := range p {
			filter[k] = v
		}
	}
	return filter, nil
}

func isRegexClause(c WhereClause) bool {
	return Matcher(strings.ToUpper(string(c.Matcher))) == MatcherRegex
}

func whereValue(c WhereClause) (interface{}, error) {
	switch Matcher(strings.ToUpper(string(c.Matcher))) {
	case "", MatcherString:
		return c.Value, nil
	case MatcherObject:
		v, err := ParseObject(c.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFilterValue, c.Field, err)
		}
		return v, nil
	case MatcherRegex:
		s, ok := c.Value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s: regex value must be a string", ErrMalformedFilterValue, c.Field)
		}
		re, err := ParseRegex(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFilterValue, c.Field, err)
		}
		return re, nil
	default:
		return nil, fmt.Errorf("%w: %s: unknown matcher %q", ErrMalformedFilterValue, c.Field, c.Matcher)
	}
}

// ParseObject parses a serialized filter expression such as
// {"$gt": 30, "$lt": 40}. Extended JSON ({"$oid": ...}, {"$date": ...}) is
// accepted. Values that are already structured are used as they are.
func ParseObject(value interface{}) (interface{}, error) {
	s, ok := value.(string)
	if !ok {
		if value == nil {
			return nil, fmt.Errorf("value is required")
		}
		return document.Normalize(value), nil
	}
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("value is required")
	}

	// extended JSON only decodes documents, so wrap the value in one
	var wrapper bson.M
	if err := bson.UnmarshalExtJSON([]byte(`{"v":`+s+`}`), false, &wrapper); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return document.Normalize(wrapper["v"]), nil
}

// ParseRegex parses "/pattern/flags" or a bare pattern such as "/usr/local".
// Flags i, m, s and x are kept; g, y and u have no meaning for a filter and
// are dropped. The
// pattern must compile as a Go regular expression.
func ParseRegex(value string) (bson.Regex, error) {
	pattern, flags := value, ""
	if m := delimitedRegex.FindStringSubmatch(value); m != nil {
		pattern, flags = m[1], m[2]
	}

	var options strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's', 'x':
			if !strings.ContainsRune(options.String(), f) {
				options.WriteRune(f)
			}
		}
	}

	check := pattern
	if goFlags := strings.ReplaceAll(options.String(), "x", ""); goFlags != "" {
		check = "(?" + goFlags + ")" + pattern
	}
	if !strings.ContainsRune(options.String(), 'x') {
		if _, err := regexp.Compile(check); err != nil {
			return bson.Regex{}, fmt.Errorf("invalid regex: %w", err)
		}
	}

	return bson.Regex{Pattern: pattern, Options: options.String()}, nil
}

func translateFields(fields []string) []string {
	if len(fields) == 0 {
		return nil
	}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || storageName(f) == document.IDKey {
			continue
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return []string{document.IDKey}
	}
	return out
}

// storageName maps the transfer identifier to the stored one
func storageName(field string) string {
	if field == document.TransferIDKey {
		return document.IDKey
	}
	return field
}

// convertIDs turns hex strings into identifiers, descending into operator
// documents and arrays ({"$in": ["..."]}).
func convertIDs(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		if id, err := document.ParseID(val); err == nil {
			return id
		}
		return val
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = convertIDs(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, e := range val {
			out[k] = convertIDs(e)
		}
		return out
	}
	return v
}
