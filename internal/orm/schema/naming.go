package schema

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/gertd/go-pluralize"
)

var (
	inflector     *pluralize.Client
	inflectorOnce sync.Once
)

func client() *pluralize.Client {
	inflectorOnce.Do(func() {
		inflector = pluralize.NewClient()
	})
	return inflector
}

// Capitalize upper-cases the first letter of s
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// Plural returns the plural form of a word
func Plural(word string) string {
	if word == "" {
		return word
	}
	return client().Plural(word)
}

// Singular returns the singular form of a word
func Singular(word string) string {
	if word == "" {
		return word
	}
	return client().Singular(word)
}

// StorageCandidates lists the stored fields an envelope key may resolve to,
// most specific first: the plural of the key with a trailing "Id" removed
// ("roleId" -> "roles"), then the singular form.
func StorageCandidates(key string) []string {
	base := strings.TrimSuffix(key, "Id")
	plural := Plural(base)
	singular := Singular(base)
	if plural == singular {
		return []string{plural}
	}
	return []string{plural, singular}
}

// SingularName returns the name used by the single-element operations of a field
func SingularName(f *Field) string {
	if f.Singular != "" {
		return f.Singular
	}
	return Singular(f.Name)
}

// OperationName joins an action verb and a field name: ("push", "children") -> "pushChildren"
func OperationName(verb, name string) string {
	return verb + Capitalize(name)
}
