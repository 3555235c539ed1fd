package store

import (
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/conduit-lang/docrud/internal/orm/document"
)

// Matches reports whether a document satisfies a MongoDB style filter
func Matches(doc map[string]interface{}, filter bson.M) (bool, error) {
	if len(filter) == 0 {
		return true, nil
	}
	normalized, _ := document.Normalize(filter).(map[string]interface{})
	return matchFilter(doc, normalized)
}

func matchFilter(doc map[string]interface{}, filter map[string]interface{}) (bool, error) {
	for key, cond := range filter {
		ok, err := matchKey(doc, key, cond)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchKey(doc map[string]interface{}, key string, cond interface{}) (bool, error) {
	switch key {
	case "$and", "$or", "$nor":
		clauses, ok := cond.([]interface{})
		if !ok || len(clauses) == 0 {
			return false, fmt.Errorf("%s requires a non-empty array", key)
		}
		for _, c := range clauses {
			sub, ok := c.(map[string]interface{})
			if !ok {
				return false, fmt.Errorf("%s entries must be documents", key)
			}
			matched, err := matchFilter(doc, sub)
			if err != nil {
				return false, err
			}
			switch {
			case key == "$and" && !matched:
				return false, nil
			case key == "$or" && matched:
				return true, nil
			case key == "$nor" && matched:
				return false, nil
			}
		}
		return key != "$or", nil
	}
	if strings.HasPrefix(key, "$") {
		return false, fmt.Errorf("%w: %s", ErrUnsupportedOperator, key)
	}

	values, found := resolvePath(doc, key)
	if ops, isOps := operatorMap(cond); isOps {
		return matchOperators(values, found, ops)
	}
	return matchEquality(values, found, cond), nil
}

// resolvePath collects every value reachable through a dotted path, fanning
// out across arrays of sub-documents.
func resolvePath(doc map[string]interface{}, path string) ([]interface{}, bool) {
	current := []interface{}{doc}
	found := false
	for i, part := range strings.Split(path, ".") {
		next := make([]interface{}, 0, len(current))
		found = false
		for _, v := range current {
			switch val := v.(type) {
			case map[string]interface{}:
				if child, ok := val[part]; ok {
					next = append(next, child)
					found = true
				}
			case []interface{}:
				if i == 0 {
					continue
				}
				for _, elem := range val {
					if m, ok := elem.(map[string]interface{}); ok {
						if child, ok := m[part]; ok {
							next = append(next, child)
							found = true
						}
					}
				}
			}
		}
		current = next
	}
	return current, found
}

func operatorMap(cond interface{}) (map[string]interface{}, bool) {
	m, ok := cond.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func matchEquality(values []interface{}, found bool, cond interface{}) bool {
	if cond == nil && !found {
		return true
	}
	if re, ok := cond.(bson.Regex); ok {
		matcher, err := compileRegex(re.Pattern, re.Options)
		if err != nil {
			return false
		}
		return anyValue(values, func(v interface{}) bool {
			s, isString := v.(string)
			return isString && matcher.MatchString(s)
		})
	}
	for _, v := range values {
		if equalValues(v, cond) {
			return true
		}
		if arr, ok := v.([]interface{}); ok {
			for _, elem := range arr {
				if equalValues(elem, cond) {
					return true
				}
			}
		}
	}
	return false
}

func matchOperators(values []interface{}, found bool, ops map[string]interface{}) (bool, error) {
	options, _ := ops["$options"].(string)
	for op, arg := range ops {
		var (
			ok  bool
			err error
		)
		switch op {
		case "$eq":
			ok = matchEquality(values, found, arg)
		case "$ne":
			ok = !matchEquality(values, found, arg)
		case "$gt", "$gte", "$lt", "$lte":
			ok = matchRange(values, op, arg)
		case "$in":
			ok, err = matchIn(values, found, arg)
		case "$nin":
			ok, err = matchIn(values, found, arg)
			ok = !ok
		case "$exists":
			want, isBool := arg.(bool)
			if !isBool {
				f, isNum := toFloat(arg)
				want = isNum && f != 0
			}
			ok = found == want
		case "$regex":
			ok, err = matchRegexOperator(values, arg, options)
		case "$options":
			if _, hasRegex := ops["$regex"]; !hasRegex {
				err = fmt.Errorf("$options requires $regex")
			}
			ok = true
		case "$all":
			ok, err = matchAll(values, arg)
		case "$size":
			ok, err = matchSize(values, arg)
		case "$not":
			ok, err = matchNot(values, found, arg)
		case "$elemMatch":
			ok, err = matchElem(values, arg)
		default:
			err = fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// candidates flattens one level of arrays so operators apply to elements
func candidates(values []interface{}) []interface{} {
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		if arr, ok := v.([]interface{}); ok {
			out = append(out, arr...)
			continue
		}
		out = append(out, v)
	}
	return out
}

func anyValue(values []interface{}, pred func(interface{}) bool) bool {
	for _, v := range candidates(values) {
		if pred(v) {
			return true
		}
	}
	return false
}

func matchRange(values []interface{}, op string, arg interface{}) bool {
	return anyValue(values, func(v interface{}) bool {
		if typeOrder(v) != typeOrder(arg) {
			return false
		}
		c := compareValues(v, arg)
		switch op {
		case "$gt":
			return c > 0
		case "$gte":
			return c >= 0
		case "$lt":
			return c < 0
		default:
			return c <= 0
		}
	})
}

func matchIn(values []interface{}, found bool, arg interface{}) (bool, error) {
	list, ok := arg.([]interface{})
	if !ok {
		return false, fmt.Errorf("$in/$nin requires an array")
	}
	for _, want := range list {
		if matchEquality(values, found, want) {
			return true, nil
		}
	}
	return false, nil
}

func matchRegexOperator(values []interface{}, arg interface{}, options string) (bool, error) {
	var pattern string
	switch re := arg.(type) {
	case string:
		pattern = re
	case bson.Regex:
		pattern = re.Pattern
		if options == "" {
			options = re.Options
		}
	default:
		return false, fmt.Errorf("$regex requires a string or regular expression")
	}
	matcher, err := compileRegex(pattern, options)
	if err != nil {
		return false, err
	}
	return anyValue(values, func(v interface{}) bool {
		s, isString := v.(string)
		return isString && matcher.MatchString(s)
	}), nil
}

func matchAll(values []interface{}, arg interface{}) (bool, error) {
	list, ok := arg.([]interface{})
	if !ok {
		return false, fmt.Errorf("$all requires an array")
	}
	if len(list) == 0 {
		return false, nil
	}
	for _, want := range list {
		if !matchEquality(values, true, want) {
			return false, nil
		}
	}
	return true, nil
}

func matchSize(values []interface{}, arg interface{}) (bool, error) {
	want, ok := toFloat(arg)
	if !ok {
		return false, fmt.Errorf("$size requires a number")
	}
	for _, v := range values {
		if arr, isArr := v.([]interface{}); isArr && float64(len(arr)) == want {
			return true, nil
		}
	}
	return false, nil
}

func matchNot(values []interface{}, found bool, arg interface{}) (bool, error) {
	if re, ok := arg.(bson.Regex); ok {
		return !matchEquality(values, found, re), nil
	}
	ops, ok := operatorMap(arg)
	if !ok {
		return false, fmt.Errorf("$not requires an operator expression or regular expression")
	}
	matched, err := matchOperators(values, found, ops)
	return !matched, err
}

func matchElem(values []interface{}, arg interface{}) (bool, error) {
	cond, ok := arg.(map[string]interface{})
	if !ok {
		return false, fmt.Errorf("$elemMatch requires a document")
	}
	ops, isOps := operatorMap(cond)
	for _, v := range values {
		arr, isArr := v.([]interface{})
		if !isArr {
			continue
		}
		for _, elem := range arr {
			var (
				matched bool
				err     error
			)
			if isOps {
				matched, err = matchOperators([]interface{}{elem}, true, ops)
			} else if m, isMap := elem.(map[string]interface{}); isMap {
				matched, err = matchFilter(m, cond)
			}
			if err != nil {
				return false, err
			}
			if matched {
				return true, nil
			}
		}
	}
	return false, nil
}

// compileRegex translates MongoDB regex options into Go flags. Options other
// than i, m, s and x are rejected.
func compileRegex(pattern, options string) (*regexp.Regexp, error) {
	var flags strings.Builder
	for _, o := range options {
		switch o {
		case 'i', 'm', 's':
			flags.WriteRune(o)
		case 'x':
			pattern = stripExtended(pattern)
		default:
			return nil, fmt.Errorf("unsupported regex option %q", o)
		}
	}
	if flags.Len() > 0 {
		pattern = "(?" + flags.String() + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	return re, nil
}

// stripExtended removes unescaped whitespace and # comments outside
// character classes, as the x option does.
func stripExtended(pattern string) string {
	var (
		b       strings.Builder
		inClass bool
		comment bool
	)
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case comment:
			if c == '\n' {
				comment = false
			}
		case c == '\\' && i+1 < len(pattern):
			b.WriteByte(c)
			b.WriteByte(pattern[i+1])
			i++
		case inClass:
			if c == ']' {
				inClass = false
			}
			b.WriteByte(c)
		case c == '[':
			inClass = true
			b.WriteByte(c)
		case c == '#':
			comment = true
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
