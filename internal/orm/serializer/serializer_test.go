package serializer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/conduit-lang/docrud/internal/orm/document"
	"github.com/conduit-lang/docrud/internal/orm/schema"
)

func setupRegistry(t *testing.T) (*schema.Registry, *schema.RecordSchema) {
	child := schema.NewEmbedded("Child").String("name").MustBuild()
	sample := schema.New("Sample").
		String("name").
		Int("age").
		Bool("married").
		EmbeddedArray("children", child).
		Embedded("child", child).
		ReferenceArray("relatedModels", "RelatedModel").
		Reference("favorite", "RelatedModel").
		Virtual("virtualRelatedModels", "RelatedModel", "_id", "sample").
		MustBuild()
	related := schema.New("RelatedModel").
		String("name").
		Reference("sample", "Sample").
		MustBuild()

	registry := schema.NewRegistry()
	registry.MustRegister(child, sample, related)
	require.NoError(t, registry.ValidateAll())
	return registry, sample
}

func TestRecordFlattensIdentifiers(t *testing.T) {
	registry, sample := setupRegistry(t)
	s := New(registry)

	id := document.NewID()
	childID := document.NewID()
	relatedID := document.NewID()
	favID := document.NewID()

	doc := document.Document{
		"_id":           id,
		"__v":           int64(3),
		"name":          "Juan Pablo",
		"age":           int32(33),
		"married":       false,
		"children":      []interface{}{map[string]interface{}{"_id": childID, "name": "Juan"}},
		"child":         map[string]interface{}{"_id": childID, "name": "Juan"},
		"relatedModels": []interface{}{relatedID},
		"favorite":      favID,
	}

	got := s.Record(doc, sample, nil)

	assert.Equal(t, Object{
		"id":            id.Hex(),
		"name":          "Juan Pablo",
		"age":           int32(33),
		"married":       false,
		"children":      []interface{}{Object{"id": childID.Hex(), "name": "Juan"}},
		"child":         Object{"id": childID.Hex(), "name": "Juan"},
		"relatedModels": []interface{}{Object{"id": relatedID.Hex()}},
		"favorite":      favID.Hex(),
	}, got)
	assert.NotContains(t, got, "_id")
	assert.NotContains(t, got, "__v")
}

func TestRecordPopulated(t *testing.T) {
	registry, sample := setupRegistry(t)
	s := New(registry)

	ownerID := document.NewID()
	relatedID := document.NewID()
	doc := document.Document{
		"_id": document.NewID(),
		"relatedModels": []interface{}{
			map[string]interface{}{
				"_id":    relatedID,
				"__v":    int64(0),
				"name":   "related",
				"sample": map[string]interface{}{"_id": ownerID, "name": "owner"},
			},
		},
		"virtualRelatedModels": []interface{}{
			map[string]interface{}{"_id": relatedID, "name": "related", "sample": ownerID},
		},
	}

	got := s.Record(doc, sample, []string{"relatedModels.sample", "virtualRelatedModels"})

	refs := got["relatedModels"].([]interface{})
	require.Len(t, refs, 1)
	ref := refs[0].(Object)
	assert.Equal(t, relatedID.Hex(), ref["id"])
	assert.NotContains(t, ref, "__v")
	assert.Equal(t, Object{"id": ownerID.Hex(), "name": "owner"}, ref["sample"])

	virtuals := got["virtualRelatedModels"].([]interface{})
	require.Len(t, virtuals, 1)
	assert.Equal(t, Object{"id": relatedID.Hex(), "name": "related", "sample": ownerID.Hex()}, virtuals[0])
}

func TestRecordPopulatedVirtualWithoutMatches(t *testing.T) {
	registry, sample := setupRegistry(t)
	s := New(registry)

	got := s.Record(document.Document{"_id": document.NewID()}, sample, []string{"virtualRelatedModels", "invalidRelatedField"})
	assert.Equal(t, []interface{}{}, got["virtualRelatedModels"])
	assert.NotContains(t, got, "invalidRelatedField")
}

func TestRecordsAndNil(t *testing.T) {
	registry, sample := setupRegistry(t)
	s := New(registry)

	assert.Nil(t, s.Record(nil, sample, nil))
	assert.Empty(t, s.Records(nil, sample, nil))

	docs := []document.Document{
		{"_id": document.NewID(), "name": "a"},
		{"_id": document.NewID(), "name": "b"},
	}
	out := s.Records(docs, sample, nil)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[1]["name"])
}

func TestValue(t *testing.T) {
	id := document.NewID()
	when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value interface{}
		want  interface{}
	}{
		{"object id", id, id.Hex()},
		{"string", "x", "x"},
		{"nil", nil, nil},
		{"date", bson.NewDateTimeFromTime(when), when},
		{"id array", []bson.ObjectID{id}, []interface{}{id.Hex()}},
		{"plain map", bson.M{"ref": id}, Object{"ref": id.Hex()}},
		{"record map", bson.D{{Key: "_id", Value: id}, {Key: "__v", Value: 1}, {Key: "n", Value: 1}}, Object{"id": id.Hex(), "n": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Value(tt.value))
		})
	}
}

func TestSerializationIsDeterministic(t *testing.T) {
	registry, sample := setupRegistry(t)
	s := New(registry)

	doc := document.Document{
		"_id":           document.NewID(),
		"name":          "x",
		"relatedModels": []interface{}{document.NewID(), document.NewID()},
	}
	before := document.Clone(doc)

	assert.Equal(t, s.Record(doc, sample, nil), s.Record(doc, sample, nil))
	assert.Equal(t, before, doc)
}
