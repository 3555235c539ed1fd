package schema

// Classification is the role a field plays in operation synthesis
type Classification int

const (
	ClassScalar Classification = iota
	ClassEmbeddedCollection
	ClassSingleReference
	ClassReferenceCollection
)

// String returns the string representation of the classification
func (c Classification) String() string {
	switch c {
	case ClassScalar:
		return "scalar"
	case ClassEmbeddedCollection:
		return "embedded-collection"
	case ClassSingleReference:
		return "single-reference"
	case ClassReferenceCollection:
		return "reference-collection"
	default:
		return "unknown"
	}
}

// IsCollection reports whether relationship-mutation operations are
// synthesized for fields of this classification
func (c Classification) IsCollection() bool {
	return c == ClassEmbeddedCollection || c == ClassReferenceCollection
}

// Classify derives the classification of a field from its declared kind.
// Shapes that cannot be mutated as a collection fall back to ClassScalar.
func Classify(f *Field) Classification {
	if f == nil {
		return ClassScalar
	}
	switch f.Kind {
	case KindEmbeddedArray:
		if f.Nested != nil {
			return ClassEmbeddedCollection
		}
	case KindReferenceArray:
		if f.Target != "" {
			return ClassReferenceCollection
		}
	case KindReference:
		if f.Target != "" {
			return ClassSingleReference
		}
	}
	return ClassScalar
}
