package crud

import "fmt"

// DiagnosticKind classifies conditions that were recovered from locally
type DiagnosticKind int

const (
	// DiagnosticUnknownField reports an update field the schema does not declare
	DiagnosticUnknownField DiagnosticKind = iota
	// DiagnosticMissingSubElement reports a mutation naming an element the
	// collection does not hold
	DiagnosticMissingSubElement
)

// String returns the string representation of the diagnostic kind
func (k DiagnosticKind) String() string {
	switch k {
	case DiagnosticUnknownField:
		return "unknown_field"
	case DiagnosticMissingSubElement:
		return "missing_sub_element"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name
func (k DiagnosticKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Diagnostic is one skipped field or element of a call that still succeeded
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Field   string         `json:"field"`
	ID      string         `json:"id,omitempty"`
	Message string         `json:"message"`
}

// Diagnostics are returned alongside the result of a call
type Diagnostics []Diagnostic

// Count returns the number of diagnostics of the given kind
func (d Diagnostics) Count(kind DiagnosticKind) int {
	n := 0
	for _, diag := range d {
		if diag.Kind == kind {
			n++
		}
	}
	return n
}

func unknownField(field string) Diagnostic {
	return Diagnostic{
		Kind:    DiagnosticUnknownField,
		Field:   field,
		Message: fmt.Sprintf("field %s is not exist in the schema", field),
	}
}

func missingSubElement(class, id, field string) Diagnostic {
	return Diagnostic{
		Kind:    DiagnosticMissingSubElement,
		Field:   field,
		ID:      id,
		Message: fmt.Sprintf("%s id '%s' does not exist in '%s'", class, id, field),
	}
}
