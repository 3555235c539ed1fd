package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrValidationFailed is matched by every *ValidationErrors through errors.Is
var ErrValidationFailed = errors.New("validation failed")

// ValidationErrors collects the cast failures of a payload keyed by field path
type ValidationErrors struct {
	Fields map[string][]string `json:"fields"`
}

// NewValidationErrors creates a new ValidationErrors instance
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Fields: make(map[string][]string),
	}
}

// Add records a message for a field path such as "children.0.name"
func (ve *ValidationErrors) Add(field, message string) {
	if ve.Fields == nil {
		ve.Fields = make(map[string][]string)
	}
	ve.Fields[field] = append(ve.Fields[field], message)
}

// Merge copies every message of other into ve
func (ve *ValidationErrors) Merge(other *ValidationErrors) {
	if other == nil {
		return
	}
	for field, messages := range other.Fields {
		for _, msg := range messages {
			ve.Add(field, msg)
		}
	}
}

// HasErrors returns true if there are any validation errors
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Fields) > 0
}

// Count returns the total number of validation errors across all fields
func (ve *ValidationErrors) Count() int {
	count := 0
	for _, messages := range ve.Fields {
		count += len(messages)
	}
	return count
}

// Error implements the error interface. Fields are listed in name order.
func (ve *ValidationErrors) Error() string {
	if !ve.HasErrors() {
		return "validation failed"
	}

	fields := make([]string, 0, len(ve.Fields))
	for field := range ve.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var messages []string
	for _, field := range fields {
		for _, msg := range ve.Fields[field] {
			messages = append(messages, fmt.Sprintf("  - %s: %s", field, msg))
		}
	}

	if len(messages) == 1 {
		return fmt.Sprintf("validation failed: %s", strings.TrimPrefix(messages[0], "  - "))
	}

	return fmt.Sprintf("validation failed:\n%s", strings.Join(messages, "\n"))
}

// Is makes errors.Is(err, ErrValidationFailed) hold for validation errors
func (ve *ValidationErrors) Is(target error) bool {
	return target == ErrValidationFailed
}

// MarshalJSON implements json.Marshaler for custom JSON serialization
func (ve *ValidationErrors) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error  string              `json:"error"`
		Fields map[string][]string `json:"fields"`
	}{
		Error:  "validation_failed",
		Fields: ve.Fields,
	})
}
