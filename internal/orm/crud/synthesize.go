package crud

import (
	"fmt"
	"sort"

	"github.com/conduit-lang/docrud/internal/orm/schema"
)

// Action is the mutation applied by a synthesized operation
type Action int

const (
	ActionPush Action = iota
	ActionAddToSet
	ActionRemove
	ActionReplace
	ActionUpdate
	ActionAdd
	ActionRemoveSingle
)

// String returns the string representation of the action
func (a Action) String() string {
	switch a {
	case ActionPush:
		return "PUSH"
	case ActionAddToSet:
		return "ADD_TO_SET"
	case ActionRemove:
		return "REMOVE"
	case ActionReplace:
		return "REPLACE"
	case ActionUpdate:
		return "UPDATE"
	case ActionAdd:
		return "ADD"
	case ActionRemoveSingle:
		return "REMOVE_SINGLE"
	default:
		return "UNKNOWN"
	}
}

// Single reports whether the action takes exactly one element
func (a Action) Single() bool {
	return a == ActionAdd || a == ActionRemoveSingle
}

// CoreOperations are the operations every service provides
var CoreOperations = []string{"insert", "update", "delete", "get", "list"}

type verb struct {
	name   string
	action Action
}

var (
	collectionVerbs = []verb{
		{"push", ActionPush},
		{"addToSet", ActionAddToSet},
		{"remove", ActionRemove},
		{"replace", ActionReplace},
	}
	embeddedVerbs = []verb{
		{"update", ActionUpdate},
	}
	singleVerbs = []verb{
		{"add", ActionAdd},
		{"remove", ActionRemoveSingle},
	}
)

// Operation is a relationship mutation synthesized for one collection field
type Operation struct {
	Name string

	// Field is the schema field the operation was synthesized for
	Field    string
	Plural   string
	Singular string

	// EnvelopeKey is the request key carrying the payload
	EnvelopeKey string

	Classification schema.Classification
	Action         Action

	service *Service
	field   *schema.Field
}

// synthesize builds the operation table of a record type. Operation names
// must be unique, including against the core operations.
func synthesize(record *schema.RecordSchema) (map[string]*Operation, error) {
	ops := make(map[string]*Operation)
	owners := make(map[string]string)
	for _, name := range CoreOperations {
		owners[name] = "core operations"
	}

	add := func(op *Operation) error {
		if owner, exists := owners[op.Name]; exists {
			return fmt.Errorf("%w: %s.%s is synthesized for field %q and already provided by %s",
				ErrOperationCollision, record.Name, op.Name, op.Field, owner)
		}
		owners[op.Name] = fmt.Sprintf("field %q", op.Field)
		ops[op.Name] = op
		return nil
	}

	for _, field := range record.OrderedFields() {
		class := schema.Classify(field)
		if !class.IsCollection() {
			continue
		}

		singular := schema.SingularName(field)
		verbs := collectionVerbs
		if class == schema.ClassEmbeddedCollection {
			verbs = append(append([]verb{}, collectionVerbs...), embeddedVerbs...)
		}

		for _, v := range verbs {
			if err := add(&Operation{
				Name:           schema.OperationName(v.name, field.Name),
				Field:          field.Name,
				Plural:         field.Name,
				Singular:       singular,
				EnvelopeKey:    field.Name,
				Classification: class,
				Action:         v.action,
				field:          field,
			}); err != nil {
				return nil, err
			}
		}

		key := singular
		if class == schema.ClassReferenceCollection {
			key = singular + "Id"
		}
		for _, v := range singleVerbs {
			if err := add(&Operation{
				Name:           schema.OperationName(v.name, singular),
				Field:          field.Name,
				Plural:         field.Name,
				Singular:       singular,
				EnvelopeKey:    key,
				Classification: class,
				Action:         v.action,
				field:          field,
			}); err != nil {
				return nil, err
			}
		}
	}

	return ops, nil
}

func sortedOperations(ops map[string]*Operation) []*Operation {
	out := make([]*Operation, 0, len(ops))
	for _, op := range ops {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}
