package crud

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/docrud/internal/orm/schema"
)

func TestSynthesizeSample(t *testing.T) {
	registry := createTestRegistry(t)
	sample, err := registry.Lookup("Sample")
	require.NoError(t, err)

	ops, err := synthesize(sample)
	require.NoError(t, err)

	tests := []struct {
		name   string
		field  string
		key    string
		class  schema.Classification
		action Action
	}{
		{"pushChildren", "children", "children", schema.ClassEmbeddedCollection, ActionPush},
		{"addToSetChildren", "children", "children", schema.ClassEmbeddedCollection, ActionAddToSet},
		{"removeChildren", "children", "children", schema.ClassEmbeddedCollection, ActionRemove},
		{"replaceChildren", "children", "children", schema.ClassEmbeddedCollection, ActionReplace},
		{"updateChildren", "children", "children", schema.ClassEmbeddedCollection, ActionUpdate},
		{"addChild", "children", "child", schema.ClassEmbeddedCollection, ActionAdd},
		{"removeChild", "children", "child", schema.ClassEmbeddedCollection, ActionRemoveSingle},
		{"pushRelatedModels", "relatedModels", "relatedModels", schema.ClassReferenceCollection, ActionPush},
		{"addToSetRelatedModels", "relatedModels", "relatedModels", schema.ClassReferenceCollection, ActionAddToSet},
		{"removeRelatedModels", "relatedModels", "relatedModels", schema.ClassReferenceCollection, ActionRemove},
		{"replaceRelatedModels", "relatedModels", "relatedModels", schema.ClassReferenceCollection, ActionReplace},
		{"addRelatedModel", "relatedModels", "relatedModelId", schema.ClassReferenceCollection, ActionAdd},
		{"removeRelatedModel", "relatedModels", "relatedModelId", schema.ClassReferenceCollection, ActionRemoveSingle},
	}
	require.Len(t, ops, len(tests))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, ok := ops[tt.name]
			require.True(t, ok)
			assert.Equal(t, tt.field, op.Field)
			assert.Equal(t, tt.key, op.EnvelopeKey)
			assert.Equal(t, tt.class, op.Classification)
			assert.Equal(t, tt.action, op.Action)
		})
	}

	_, ok := ops["updateRelatedModels"]
	assert.False(t, ok, "reference collections have no update operation")
}

func TestSynthesizeSkipsNonCollections(t *testing.T) {
	child := schema.NewEmbedded("Part").String("name").MustBuild()
	record := schema.New("Plain").
		String("name").
		Embedded("part", child).
		Reference("owner", "Plain").
		ScalarArray("tags", schema.TypeString).
		MustBuild()

	ops, err := synthesize(record)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestSynthesizeCollision(t *testing.T) {
	child := schema.NewEmbedded("Child").String("name").MustBuild()

	t.Run("singular equals plural", func(t *testing.T) {
		record := schema.New("Family").EmbeddedArray("child", child).MustBuild()

		_, err := synthesize(record)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrOperationCollision))
		assert.Contains(t, err.Error(), "Family.removeChild")
	})

	t.Run("override resolves collision", func(t *testing.T) {
		record := schema.New("Family").
			EmbeddedArray("child", child).
			Singular("child", "kid").
			MustBuild()

		ops, err := synthesize(record)
		require.NoError(t, err)
		assert.Contains(t, ops, "removeChild")
		assert.Contains(t, ops, "removeKid")
		assert.Equal(t, "kid", ops["addKid"].EnvelopeKey)
	})
}

func TestNewServiceCollision(t *testing.T) {
	child := schema.NewEmbedded("Child").String("name").MustBuild()
	registry := schema.NewRegistry()
	registry.MustRegister(child, schema.New("Family").EmbeddedArray("child", child).MustBuild())

	env := setupTestEnv(t)
	_, err := NewService(env.ctx, env.store, registry, "Family")
	assert.ErrorIs(t, err, ErrOperationCollision)
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "PUSH", ActionPush.String())
	assert.Equal(t, "ADD_TO_SET", ActionAddToSet.String())
	assert.Equal(t, "REMOVE", ActionRemove.String())
	assert.Equal(t, "REPLACE", ActionReplace.String())
	assert.Equal(t, "UPDATE", ActionUpdate.String())
	assert.Equal(t, "ADD", ActionAdd.String())
	assert.Equal(t, "REMOVE_SINGLE", ActionRemoveSingle.String())
	assert.Equal(t, "UNKNOWN", Action(99).String())
	assert.True(t, ActionAdd.Single())
	assert.False(t, ActionPush.Single())
}
