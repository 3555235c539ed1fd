package crud

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc/codes"

	"github.com/conduit-lang/docrud/internal/orm/document"
	"github.com/conduit-lang/docrud/internal/orm/store"
)

func seedSample(t *testing.T, env *testEnv) (string, []string) {
	t.Helper()
	obj := env.insert(t, env.sample, map[string]interface{}{
		"name": "Juan Pablo",
		"children": []interface{}{
			map[string]interface{}{"name": "Juan"},
			map[string]interface{}{"name": "Pablo"},
		},
	})
	return obj["id"].(string), ids(obj["children"])
}

func TestPushChildren(t *testing.T) {
	env := setupTestEnv(t)
	id, original := seedSample(t, env)

	diags := env.invoke(t, "pushChildren", map[string]interface{}{
		"id":       id,
		"children": map[string]interface{}{"name": "Juan"},
	})
	assert.Empty(t, diags)

	children := objects(env.get(t, env.sample, id)["children"])
	require.Len(t, children, 3)
	assert.Equal(t, original, []string{children[0]["id"].(string), children[1]["id"].(string)})
	assert.Equal(t, "Juan", children[2]["name"])
	assert.NotContains(t, original, children[2]["id"])
	_, err := document.ParseID(children[2]["id"].(string))
	assert.NoError(t, err)
}

func TestPushIgnoresClientIDs(t *testing.T) {
	env := setupTestEnv(t)
	id, original := seedSample(t, env)

	env.invoke(t, "pushChildren", map[string]interface{}{
		"id":       id,
		"children": []interface{}{map[string]interface{}{"id": original[0], "name": "copy"}},
	})

	children := objects(env.get(t, env.sample, id)["children"])
	require.Len(t, children, 3)
	assert.NotEqual(t, original[0], children[2]["id"])
}

func TestReplaceIsIdempotent(t *testing.T) {
	env := setupTestEnv(t)
	id, _ := seedSample(t, env)

	envelope := map[string]interface{}{
		"id":       id,
		"children": []interface{}{map[string]interface{}{"name": "A"}, map[string]interface{}{"name": "B"}},
	}
	names := func() []string {
		var out []string
		for _, c := range objects(env.get(t, env.sample, id)["children"]) {
			out = append(out, c["name"].(string))
		}
		return out
	}

	env.invoke(t, "replaceChildren", envelope)
	once := names()
	env.invoke(t, "replaceChildren", envelope)
	assert.Equal(t, []string{"A", "B"}, once)
	assert.Equal(t, once, names())
}

func TestAddToSetChildren(t *testing.T) {
	env := setupTestEnv(t)
	id, original := seedSample(t, env)
	clientID := document.NewID().Hex()

	env.invoke(t, "addToSetChildren", map[string]interface{}{
		"id": id,
		"children": []interface{}{
			map[string]interface{}{"id": clientID, "name": "new"},
			map[string]interface{}{"id": clientID, "name": "again"},
			map[string]interface{}{"id": original[0], "name": "existing"},
			map[string]interface{}{"id": "", "name": "fresh"},
		},
	})

	children := objects(env.get(t, env.sample, id)["children"])
	require.Len(t, children, 4)
	assert.Equal(t, "Juan", children[0]["name"])
	assert.Equal(t, clientID, children[2]["id"])
	assert.Equal(t, "new", children[2]["name"])
	assert.Equal(t, "fresh", children[3]["name"])
}

func TestUpdateChildren(t *testing.T) {
	env := setupTestEnv(t)
	id, original := seedSample(t, env)
	missing := document.NewID().Hex()

	diags := env.invoke(t, "updateChildren", map[string]interface{}{
		"id": id,
		"children": []interface{}{
			map[string]interface{}{"id": original[1], "name": "Pedro", "unknown": 1},
			map[string]interface{}{"id": missing, "name": "ghost"},
		},
	})

	require.Len(t, diags, 1)
	assert.Equal(t, DiagnosticMissingSubElement, diags[0].Kind)
	assert.Equal(t, "child id '"+missing+"' does not exist in 'children'", diags[0].Message)

	children := objects(env.get(t, env.sample, id)["children"])
	require.Len(t, children, 2)
	assert.Equal(t, map[string]interface{}{"id": original[1], "name": "Pedro"}, children[1])
}

func TestRemoveChildren(t *testing.T) {
	env := setupTestEnv(t)
	id, original := seedSample(t, env)
	before := env.get(t, env.sample, id)["children"]

	diags := env.invoke(t, "removeChildren", map[string]interface{}{
		"id":       id,
		"children": []interface{}{map[string]interface{}{"id": document.NewID().Hex()}},
	})
	assert.Equal(t, 1, diags.Count(DiagnosticMissingSubElement))
	assert.Equal(t, before, env.get(t, env.sample, id)["children"])
	assert.Equal(t, 1, env.logs.FilterLevelExact(zapcore.WarnLevel).Len())

	diags = env.invoke(t, "removeChildren", map[string]interface{}{
		"id":       id,
		"children": []interface{}{map[string]interface{}{"id": original[0]}},
	})
	assert.Empty(t, diags)
	assert.Equal(t, []string{original[1]}, ids(env.get(t, env.sample, id)["children"]))
}

func TestSingleChildOperations(t *testing.T) {
	env := setupTestEnv(t)
	id, original := seedSample(t, env)

	env.invoke(t, "addChild", map[string]interface{}{
		"id":    id,
		"child": map[string]interface{}{"name": "single"},
	})
	children := objects(env.get(t, env.sample, id)["children"])
	require.Len(t, children, 3)
	assert.Equal(t, "single", children[2]["name"])

	diags := env.invoke(t, "removeChild", map[string]interface{}{
		"id":    id,
		"child": map[string]interface{}{"id": original[0]},
	})
	assert.Empty(t, diags)
	assert.Len(t, objects(env.get(t, env.sample, id)["children"]), 2)

	diags = env.invoke(t, "removeChild", map[string]interface{}{
		"id":    id,
		"child": map[string]interface{}{"id": original[0]},
	})
	require.Len(t, diags, 1)
	assert.Equal(t, "child id '"+original[0]+"' does not exist in 'child'", diags[0].Message)

	op, _ := env.sample.Operation("addChild")
	_, err := op.Invoke(env.ctx, map[string]interface{}{
		"id":    id,
		"child": []interface{}{map[string]interface{}{"name": "a"}},
	})
	assert.True(t, IsInvalidEnvelope(err))
}

func TestRelatedModelOperations(t *testing.T) {
	env := setupTestEnv(t)
	id, _ := seedSample(t, env)
	rel1 := env.insert(t, env.related, map[string]interface{}{"name": "one"})["id"].(string)
	rel2 := env.insert(t, env.related, map[string]interface{}{"name": "two"})["id"].(string)
	rel3 := env.insert(t, env.related, map[string]interface{}{"name": "three"})["id"].(string)

	related := func() []string {
		return ids(env.get(t, env.sample, id)["relatedModels"])
	}

	env.invoke(t, "pushRelatedModels", map[string]interface{}{
		"id":            id,
		"relatedModels": []interface{}{map[string]interface{}{"id": rel1}, map[string]interface{}{"id": rel2}},
	})
	assert.Equal(t, []string{rel1, rel2}, related())

	env.invoke(t, "addToSetRelatedModels", map[string]interface{}{
		"id":            id,
		"relatedModels": []interface{}{map[string]interface{}{"id": rel1}, map[string]interface{}{"id": rel3}},
	})
	assert.Equal(t, []string{rel1, rel2, rel3}, related())

	diags := env.invoke(t, "removeRelatedModels", map[string]interface{}{
		"id":            id,
		"relatedModels": []interface{}{map[string]interface{}{"id": rel2}, map[string]interface{}{"id": document.NewID().Hex()}},
	})
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "related model id")
	assert.Contains(t, diags[0].Message, "does not exist in 'relatedModels'")
	assert.Equal(t, []string{rel1, rel3}, related())

	env.invoke(t, "addRelatedModel", map[string]interface{}{"id": id, "relatedModelId": rel2})
	assert.Equal(t, []string{rel1, rel3, rel2}, related())

	diags = env.invoke(t, "removeRelatedModel", map[string]interface{}{"id": id, "relatedModelId": rel1})
	assert.Empty(t, diags)
	assert.Equal(t, []string{rel3, rel2}, related())

	env.invoke(t, "replaceRelatedModels", map[string]interface{}{
		"id":            id,
		"relatedModels": []interface{}{map[string]interface{}{"id": rel1}},
	})
	assert.Equal(t, []string{rel1}, related())

	populated := env.get(t, env.sample, id, "relatedModels")
	assert.Equal(t, "one", objects(populated["relatedModels"])[0]["name"])
}

func TestAddToSetDeduplicatesReferences(t *testing.T) {
	env := setupTestEnv(t)
	id, _ := seedSample(t, env)
	rel := env.insert(t, env.related, map[string]interface{}{"name": "one"})["id"].(string)

	for i := 0; i < 2; i++ {
		env.invoke(t, "addToSetRelatedModels", map[string]interface{}{
			"id":            id,
			"relatedModels": map[string]interface{}{"id": rel},
		})
	}
	assert.Equal(t, []string{rel}, ids(env.get(t, env.sample, id)["relatedModels"]))
}

func TestAlternativeModelSingleOperations(t *testing.T) {
	env := setupTestEnv(t)
	alt, err := NewService(env.ctx, env.store, env.registry, "AlternativeModel")
	require.NoError(t, err)

	obj := env.insert(t, alt, map[string]interface{}{"name": "alt"})
	id := obj["id"].(string)
	rel := env.insert(t, env.related, map[string]interface{}{"name": "one"})["id"].(string)

	addKid, ok := alt.Operation("addKid")
	require.True(t, ok)
	assert.Equal(t, "kid", addKid.EnvelopeKey)
	_, err = addKid.Invoke(env.ctx, map[string]interface{}{"id": id, "kid": map[string]interface{}{"name": "Juan"}})
	require.NoError(t, err)

	addRelative, ok := alt.Operation("addRelative")
	require.True(t, ok)
	assert.Equal(t, "relativeId", addRelative.EnvelopeKey)
	_, err = addRelative.Invoke(env.ctx, map[string]interface{}{"id": id, "relativeId": rel})
	require.NoError(t, err)

	got := env.get(t, alt, id)
	kids := objects(got["child"])
	require.Len(t, kids, 1)
	assert.Equal(t, "Juan", kids[0]["name"])
	assert.Equal(t, []string{rel}, ids(got["relatedModel"]))
}

func TestExecuteErrors(t *testing.T) {
	env := setupTestEnv(t)
	id, _ := seedSample(t, env)
	push, _ := env.sample.Operation("pushChildren")

	tests := []struct {
		name     string
		envelope map[string]interface{}
		check    func(error) bool
	}{
		{"missing record", map[string]interface{}{"id": document.NewID().Hex(), "children": []interface{}{}}, IsNotFound},
		{"two payload keys", map[string]interface{}{"id": id, "children": []interface{}{}, "relatedModels": []interface{}{}}, IsInvalidEnvelope},
		{"wrong payload key", map[string]interface{}{"id": id, "kids": []interface{}{}}, IsInvalidEnvelope},
		{"missing id", map[string]interface{}{"children": []interface{}{}}, IsInvalidEnvelope},
		{"malformed id", map[string]interface{}{"id": "nope", "children": []interface{}{}}, func(err error) bool { return errors.Is(err, ErrInvalidID) }},
		{"element not an object", map[string]interface{}{"id": id, "children": []interface{}{"x"}}, IsInvalidEnvelope},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := push.Invoke(env.ctx, tt.envelope)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error %v", err)
		})
	}

	_, err := push.Execute(env.ctx, Request{ID: id, Field: "relatedModels", Payload: []interface{}{}})
	assert.True(t, IsInvalidEnvelope(err))
	assert.Equal(t, codes.InvalidArgument, CodeOf(err))
}

func TestExecutePropagatesStoreErrors(t *testing.T) {
	env := setupTestEnv(t)
	id, _ := seedSample(t, env)
	push, _ := env.sample.Operation("pushChildren")

	require.NoError(t, env.store.Close(context.Background()))
	_, err := push.Invoke(env.ctx, map[string]interface{}{"id": id, "children": []interface{}{}})
	assert.True(t, store.IsNotConnected(err))
	assert.Equal(t, codes.Unavailable, CodeOf(err))
}
