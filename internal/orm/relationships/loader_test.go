package relationships

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/conduit-lang/docrud/internal/orm/document"
	"github.com/conduit-lang/docrud/internal/orm/schema"
	"github.com/conduit-lang/docrud/internal/orm/store"
)

type fixture struct {
	registry *schema.Registry
	store    *store.MemoryStore
	sample   *schema.RecordSchema
	related  *schema.RecordSchema
}

func setupFixture(t *testing.T) *fixture {
	child := schema.NewEmbedded("Child").String("name").MustBuild()
	sample := schema.New("Sample").
		String("name").
		EmbeddedArray("children", child).
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

	return &fixture{
		registry: registry,
		store:    store.NewMemoryStore(),
		sample:   sample,
		related:  related,
	}
}

func (f *fixture) insert(t *testing.T, collection string, doc document.Document) bson.ObjectID {
	id := document.NewID()
	doc[document.IDKey] = id
	require.NoError(t, f.store.Insert(context.Background(), collection, doc))
	return id
}

func TestPopulateReferenceArrayKeepsOrderAndDropsDangling(t *testing.T) {
	f := setupFixture(t)
	first := f.insert(t, f.related.Collection, document.Document{"name": "first"})
	second := f.insert(t, f.related.Collection, document.Document{"name": "second"})
	dangling := document.NewID()

	rec := document.Document{
		"_id":           document.NewID(),
		"relatedModels": []interface{}{second, dangling, first},
	}

	loader := NewLoader(f.store, f.registry)
	populated, err := loader.Populate(context.Background(), []document.Document{rec}, f.sample, []string{"relatedModels"})
	require.NoError(t, err)
	assert.Equal(t, []string{"relatedModels"}, populated)

	refs := rec["relatedModels"].([]interface{})
	require.Len(t, refs, 2)
	assert.Equal(t, "second", refs[0].(map[string]interface{})["name"])
	assert.Equal(t, "first", refs[1].(map[string]interface{})["name"])
}

func TestPopulateSingleReference(t *testing.T) {
	f := setupFixture(t)
	fav := f.insert(t, f.related.Collection, document.Document{"name": "fav"})

	withRef := document.Document{"_id": document.NewID(), "favorite": fav}
	dangling := document.Document{"_id": document.NewID(), "favorite": document.NewID()}

	loader := NewLoader(f.store, f.registry)
	_, err := loader.Populate(context.Background(), []document.Document{withRef, dangling}, f.sample, []string{"favorite"})
	require.NoError(t, err)

	assert.Equal(t, "fav", withRef["favorite"].(map[string]interface{})["name"])
	assert.Nil(t, dangling["favorite"])
}

func TestPopulateVirtualIgnoresUnknownNames(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	withRelated := document.Document{"name": "parent"}
	parentID := f.insert(t, f.sample.Collection, withRelated)
	lonely := document.Document{"name": "lonely"}
	f.insert(t, f.sample.Collection, lonely)

	f.insert(t, f.related.Collection, document.Document{"name": "a", "sample": parentID})
	f.insert(t, f.related.Collection, document.Document{"name": "b", "sample": parentID})
	f.insert(t, f.related.Collection, document.Document{"name": "c", "sample": document.NewID()})

	loader := NewLoader(f.store, f.registry)
	populated, err := loader.Populate(ctx, []document.Document{withRelated, lonely}, f.sample,
		[]string{"virtualRelatedModels", "invalidRelatedField"})
	require.NoError(t, err)
	assert.Equal(t, []string{"virtualRelatedModels"}, populated)

	matches := withRelated["virtualRelatedModels"].([]interface{})
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].(map[string]interface{})["name"])
	assert.Equal(t, []interface{}{}, lonely["virtualRelatedModels"])
	assert.NotContains(t, withRelated, "invalidRelatedField")
}

func TestPopulateNestedPaths(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	owner := document.Document{"name": "owner"}
	ownerID := f.insert(t, f.sample.Collection, owner)
	relatedID := f.insert(t, f.related.Collection, document.Document{"name": "rel", "sample": ownerID})

	rec := document.Document{"_id": document.NewID(), "relatedModels": []interface{}{relatedID}}

	loader := NewLoader(f.store, f.registry)
	populated, err := loader.Populate(ctx, []document.Document{rec}, f.sample, []string{"relatedModels.sample"})
	require.NoError(t, err)
	assert.Equal(t, []string{"relatedModels"}, populated)

	rel := rec["relatedModels"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "owner", rel["sample"].(map[string]interface{})["name"])
}

func TestPopulateMaxDepth(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	ownerID := f.insert(t, f.sample.Collection, document.Document{"name": "owner"})
	relatedID := f.insert(t, f.related.Collection, document.Document{"name": "rel", "sample": ownerID})
	rec := document.Document{"_id": document.NewID(), "relatedModels": []interface{}{relatedID}}

	loader := NewLoader(f.store, f.registry)
	loader.maxDepth = 1
	_, err := loader.Populate(ctx, []document.Document{rec}, f.sample, []string{"relatedModels.sample"})
	assert.True(t, errors.Is(err, ErrMaxDepthExceeded))
}

type failingFinder struct{}

func (failingFinder) Find(context.Context, string, store.Query) ([]document.Document, error) {
	return nil, errors.New("connection refused")
}

func TestPopulatePropagatesStoreErrors(t *testing.T) {
	f := setupFixture(t)
	rec := document.Document{"_id": document.NewID(), "relatedModels": []interface{}{document.NewID()}}

	loader := NewLoader(failingFinder{}, f.registry)
	_, err := loader.Populate(context.Background(), []document.Document{rec}, f.sample, []string{"relatedModels"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestGroupIncludes(t *testing.T) {
	order, nested := groupIncludes([]string{"a.b", "c", "a.d.e", " ", "a"})
	assert.Equal(t, []string{"a", "c"}, order)
	assert.Equal(t, []string{"b", "d.e"}, nested["a"])
	assert.Empty(t, nested["c"])
}
