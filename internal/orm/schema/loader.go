package schema

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Schema files declare record types under a top-level "types" mapping:
//
//	types:
//	  Child:
//	    embedded: true
//	    fields:
//	      name: string
//	  Sample:
//	    fields:
//	      name: string
//	      children: [Child]
//	      relatedModels: [ref RelatedModel]
//	      child: {type: [Child], singular: kid}
//	    virtuals:
//	      virtualRelatedModels: {ref: RelatedModel, localField: _id, foreignField: sample}
//
// A field type is a primitive (string, number, int, bool, date, objectid,
// mixed), the name of an embedded type, "ref Name" for a reference, or any of
// these wrapped in a one-element list for arrays. Field order is preserved.

type typeDecl struct {
	Embedded   bool      `yaml:"embedded"`
	Collection string    `yaml:"collection"`
	Fields     yaml.Node `yaml:"fields"`
	Virtuals   yaml.Node `yaml:"virtuals"`
}

type fieldDecl struct {
	Type     yaml.Node `yaml:"type"`
	Singular string    `yaml:"singular"`
}

type virtualDecl struct {
	Ref          string `yaml:"ref"`
	LocalField   string `yaml:"localField"`
	ForeignField string `yaml:"foreignField"`
	JustOne      bool   `yaml:"justOne"`
}

type typeRef struct {
	kind   FieldKind
	prim   PrimitiveType
	array  bool
	name   string
	target string
}

type loader struct {
	decls    map[string]*typeDecl
	order    []string
	built    map[string]*RecordSchema
	building map[string]bool
}

// Load parses a schema file and returns its record types in declaration order
func Load(r io.Reader) ([]*RecordSchema, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(r).Decode(&root); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}

	types := mappingValue(&root, "types")
	if types == nil {
		return nil, fmt.Errorf("schema file has no types mapping")
	}
	if types.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: types must be a mapping", types.Line)
	}

	l := &loader{
		decls:    make(map[string]*typeDecl),
		built:    make(map[string]*RecordSchema),
		building: make(map[string]bool),
	}
	for i := 0; i+1 < len(types.Content); i += 2 {
		name := types.Content[i].Value
		var decl typeDecl
		if err := types.Content[i+1].Decode(&decl); err != nil {
			return nil, fmt.Errorf("type %s: %w", name, err)
		}
		if _, dup := l.decls[name]; dup {
			return nil, fmt.Errorf("line %d: type %s declared more than once", types.Content[i].Line, name)
		}
		l.decls[name] = &decl
		l.order = append(l.order, name)
	}

	schemas := make([]*RecordSchema, 0, len(l.order))
	for _, name := range l.order {
		s, err := l.resolve(name)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, s)
	}
	return schemas, nil
}

// LoadInto parses a schema file, registers every type and validates references
func LoadInto(registry *Registry, r io.Reader) ([]*RecordSchema, error) {
	schemas, err := Load(r)
	if err != nil {
		return nil, err
	}
	for _, s := range schemas {
		if err := registry.Register(s); err != nil {
			return nil, err
		}
	}
	if err := registry.ValidateAll(); err != nil {
		return nil, err
	}
	return schemas, nil
}

// LoadFile is LoadInto for a file on disk
func LoadFile(registry *Registry, path string) ([]*RecordSchema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schema file: %w", err)
	}
	defer f.Close()

	schemas, err := LoadInto(registry, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return schemas, nil
}

func (l *loader) resolve(name string) (*RecordSchema, error) {
	if s, ok := l.built[name]; ok {
		return s, nil
	}
	decl, ok := l.decls[name]
	if !ok {
		return nil, fmt.Errorf("unknown type %s", name)
	}
	if l.building[name] {
		return nil, fmt.Errorf("type %s embeds itself", name)
	}
	l.building[name] = true
	defer delete(l.building, name)

	var b *Builder
	if decl.Embedded {
		b = NewEmbedded(name)
	} else {
		b = New(name)
		if decl.Collection != "" {
			b.Collection(decl.Collection)
		}
	}

	fields := &decl.Fields
	if fields.Kind != 0 && fields.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("type %s: line %d: fields must be a mapping", name, fields.Line)
	}
	for i := 0; i+1 < len(fields.Content); i += 2 {
		fieldName := fields.Content[i].Value
		ref, singular, err := parseFieldNode(fields.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("type %s: field %s: %w", name, fieldName, err)
		}
		if err := l.addField(b, fieldName, ref); err != nil {
			return nil, fmt.Errorf("type %s: field %s: %w", name, fieldName, err)
		}
		if singular != "" {
			b.Singular(fieldName, singular)
		}
	}

	virtuals := &decl.Virtuals
	for i := 0; i+1 < len(virtuals.Content); i += 2 {
		var v virtualDecl
		if err := virtuals.Content[i+1].Decode(&v); err != nil {
			return nil, fmt.Errorf("type %s: virtual %s: %w", name, virtuals.Content[i].Value, err)
		}
		b.Virtual(virtuals.Content[i].Value, v.Ref, v.LocalField, v.ForeignField)
		if virtual, ok := b.schema.Virtuals[virtuals.Content[i].Value]; ok {
			virtual.JustOne = v.JustOne
		}
	}

	s, err := b.Build()
	if err != nil {
		return nil, err
	}
	l.built[name] = s
	return s, nil
}

func (l *loader) addField(b *Builder, name string, ref typeRef) error {
	switch ref.kind {
	case KindReference:
		if ref.array {
			b.ReferenceArray(name, ref.target)
		} else {
			b.Reference(name, ref.target)
		}
	case KindEmbedded:
		nested, err := l.resolve(ref.name)
		if err != nil {
			return err
		}
		if ref.array {
			b.EmbeddedArray(name, nested)
		} else {
			b.Embedded(name, nested)
		}
	default:
		if ref.array {
			b.ScalarArray(name, ref.prim)
		} else {
			b.Scalar(name, ref.prim)
		}
	}
	return nil
}

func parseFieldNode(node *yaml.Node) (typeRef, string, error) {
	if node.Kind == yaml.MappingNode {
		var decl fieldDecl
		if err := node.Decode(&decl); err != nil {
			return typeRef{}, "", err
		}
		if decl.Type.Kind == 0 {
			return typeRef{}, "", fmt.Errorf("line %d: type is required", node.Line)
		}
		ref, err := parseTypeNode(&decl.Type)
		return ref, decl.Singular, err
	}
	ref, err := parseTypeNode(node)
	return ref, "", err
}

func parseTypeNode(node *yaml.Node) (typeRef, error) {
	switch node.Kind {
	case yaml.SequenceNode:
		if len(node.Content) != 1 {
			return typeRef{}, fmt.Errorf("line %d: array type takes exactly one element type", node.Line)
		}
		elem, err := parseTypeNode(node.Content[0])
		if err != nil {
			return typeRef{}, err
		}
		if elem.array {
			return typeRef{}, fmt.Errorf("line %d: nested arrays are not supported", node.Line)
		}
		elem.array = true
		return elem, nil
	case yaml.ScalarNode:
		return parseTypeString(node.Value, node.Line)
	default:
		return typeRef{}, fmt.Errorf("line %d: unsupported type declaration", node.Line)
	}
}

func parseTypeString(s string, line int) (typeRef, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		elem, err := parseTypeString(s[1:len(s)-1], line)
		if err != nil {
			return typeRef{}, err
		}
		if elem.array {
			return typeRef{}, fmt.Errorf("line %d: nested arrays are not supported", line)
		}
		elem.array = true
		return elem, nil
	}
	if s == "ref" {
		return typeRef{}, fmt.Errorf("line %d: reference requires a target type", line)
	}
	if target, ok := strings.CutPrefix(s, "ref "); ok {
		target = strings.TrimSpace(target)
		if target == "" {
			return typeRef{}, fmt.Errorf("line %d: reference requires a target type", line)
		}
		return typeRef{kind: KindReference, prim: TypeObjectID, target: target}, nil
	}
	if s == "" {
		return typeRef{}, fmt.Errorf("line %d: empty type", line)
	}
	if prim, err := ParsePrimitiveType(s); err == nil {
		return typeRef{kind: KindScalar, prim: prim}, nil
	}
	return typeRef{kind: KindEmbedded, name: s}, nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}
