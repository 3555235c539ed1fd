package crud

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/docrud/internal/orm/schema"
	"github.com/conduit-lang/docrud/internal/orm/serializer"
	"github.com/conduit-lang/docrud/internal/orm/store"
)

// createTestRegistry registers the record types used across the package tests
func createTestRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	child := schema.NewEmbedded("Child").String("name").MustBuild()
	sample := schema.New("Sample").
		String("name").
		Int("age").
		Bool("married").
		EmbeddedArray("children", child).
		Embedded("child", child).
		ReferenceArray("relatedModels", "RelatedModel").
		Virtual("virtualRelatedModels", "RelatedModel", "_id", "sample").
		MustBuild()
	related := schema.New("RelatedModel").
		String("name").
		Reference("sample", "Sample").
		MustBuild()
	alternative := schema.New("AlternativeModel").
		String("name").
		EmbeddedArray("child", child).
		ReferenceArray("relatedModel", "RelatedModel").
		Singular("child", "kid").
		Singular("relatedModel", "relative").
		MustBuild()

	registry := schema.NewRegistry()
	registry.MustRegister(child, sample, related, alternative)
	require.NoError(t, registry.ValidateAll())
	return registry
}

type testEnv struct {
	ctx      context.Context
	store    *store.MemoryStore
	registry *schema.Registry
	sample   *Service
	related  *Service
	logs     *observer.ObservedLogs
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ctx := context.Background()
	registry := createTestRegistry(t)
	s := store.NewMemoryStore()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	sample, err := NewService(ctx, s, registry, "Sample", WithLogger(logger))
	require.NoError(t, err)
	related, err := NewService(ctx, s, registry, "RelatedModel", WithLogger(logger))
	require.NoError(t, err)

	return &testEnv{
		ctx:      ctx,
		store:    s,
		registry: registry,
		sample:   sample,
		related:  related,
		logs:     logs,
	}
}

func (e *testEnv) insert(t *testing.T, svc *Service, payload map[string]interface{}) serializer.Object {
	t.Helper()
	obj, err := svc.Insert(e.ctx, payload)
	require.NoError(t, err)
	return obj
}

func (e *testEnv) get(t *testing.T, svc *Service, id string, populate ...string) serializer.Object {
	t.Helper()
	obj, err := svc.Get(e.ctx, GetRequest{ID: id, Populate: populate})
	require.NoError(t, err)
	return obj
}

func (e *testEnv) invoke(t *testing.T, name string, envelope map[string]interface{}) Diagnostics {
	t.Helper()
	op, ok := e.sample.Operation(name)
	require.True(t, ok, "operation %s", name)
	diags, err := op.Invoke(e.ctx, envelope)
	require.NoError(t, err)
	return diags
}

func objects(v interface{}) []serializer.Object {
	items, _ := v.([]interface{})
	out := make([]serializer.Object, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(serializer.Object); ok {
			out = append(out, obj)
		}
	}
	return out
}

func ids(v interface{}) []string {
	var out []string
	for _, obj := range objects(v) {
		out = append(out, obj["id"].(string))
	}
	return out
}
