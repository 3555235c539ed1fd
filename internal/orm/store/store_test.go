package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/conduit-lang/docrud/internal/orm/document"
)

// runStoreContract exercises the behavior every backend must share
func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))

	first := document.Document{"_id": document.NewID(), "__v": int64(0), "name": "Juan Pablo", "age": int64(33)}
	second := document.Document{"_id": document.NewID(), "__v": int64(0), "name": "Juan Diego", "age": int64(33)}
	third := document.Document{"_id": document.NewID(), "__v": int64(0), "name": "Jorge Eduardo", "age": int64(29)}

	t.Run("insert and find one", func(t *testing.T) {
		for _, doc := range []document.Document{first, second, third} {
			require.NoError(t, s.Insert(ctx, "samples", doc))
		}

		got, err := s.FindOne(ctx, "samples", first["_id"].(bson.ObjectID))
		require.NoError(t, err)
		assert.Equal(t, "Juan Pablo", got["name"])
		assert.Equal(t, first["_id"], got["_id"])
	})

	t.Run("duplicate id", func(t *testing.T) {
		err := s.Insert(ctx, "samples", first)
		assert.True(t, IsDuplicateID(err), "got %v", err)
	})

	t.Run("missing id", func(t *testing.T) {
		err := s.Insert(ctx, "samples", document.Document{"name": "nobody"})
		assert.ErrorIs(t, err, ErrMissingID)
	})

	t.Run("find one missing", func(t *testing.T) {
		_, err := s.FindOne(ctx, "samples", document.NewID())
		assert.True(t, IsNoDocument(err), "got %v", err)
	})

	t.Run("collections are isolated", func(t *testing.T) {
		_, err := s.FindOne(ctx, "others", first["_id"].(bson.ObjectID))
		assert.True(t, IsNoDocument(err))
	})

	t.Run("find with query", func(t *testing.T) {
		docs, err := s.Find(ctx, "samples", Query{
			Filter: bson.M{"age": 33},
			Sort:   []SortField{{Field: "name", Direction: 1}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"Juan Diego", "Juan Pablo"}, names(docs))

		docs, err = s.Find(ctx, "samples", Query{
			Sort:       []SortField{{Field: "age", Direction: -1}, {Field: "name", Direction: 1}},
			Limit:      2,
			Projection: []string{"name"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"Juan Diego", "Juan Pablo"}, names(docs))
		assert.NotContains(t, docs[0], "age")
	})

	t.Run("save", func(t *testing.T) {
		updated := document.Clone(first)
		updated["name"] = "Juan Pablo II"
		updated.BumpVersion()
		require.NoError(t, s.Save(ctx, "samples", updated))

		got, err := s.FindOne(ctx, "samples", first["_id"].(bson.ObjectID))
		require.NoError(t, err)
		assert.Equal(t, "Juan Pablo II", got["name"])
		assert.Equal(t, int64(1), got.Version())

		err = s.Save(ctx, "samples", document.Document{"_id": document.NewID()})
		assert.True(t, IsNoDocument(err), "got %v", err)
	})

	t.Run("remove", func(t *testing.T) {
		removed, err := s.Remove(ctx, "samples", third["_id"].(bson.ObjectID))
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = s.Remove(ctx, "samples", third["_id"].(bson.ObjectID))
		require.NoError(t, err)
		assert.False(t, removed)

		docs, err := s.Find(ctx, "samples", Query{})
		require.NoError(t, err)
		assert.Len(t, docs, 2)
	})
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	runStoreContract(t, s)

	assert.Equal(t, 2, s.Count("samples"))

	require.NoError(t, s.Close(context.Background()))
	assert.True(t, IsNotConnected(s.Ping(context.Background())))
	_, err := s.Find(context.Background(), "samples", Query{})
	assert.True(t, IsNotConnected(err))
}

func TestMemoryStoreKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, s.Insert(ctx, "letters", document.Document{"_id": document.NewID(), "name": name}))
	}

	docs, err := s.Find(ctx, "letters", Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, names(docs))
}

func TestMemoryStoreCopiesDocuments(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	doc := document.Document{"_id": document.NewID(), "tags": []interface{}{"a"}}
	require.NoError(t, s.Insert(ctx, "things", doc))

	doc["tags"] = append(doc["tags"].([]interface{}), "b")

	got, err := s.FindOne(ctx, "things", doc["_id"].(bson.ObjectID))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a"}, got["tags"])
}

func TestSQLiteStore(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	// a second pooled connection would see a different in-memory database
	db.SetMaxOpenConns(1)

	s := NewSQLStore(db, DialectSQLite, "")
	require.NoError(t, s.Initialize(context.Background()))
	runStoreContract(t, s)
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, "docrud:")
	runStoreContract(t, s)

	assert.True(t, mr.Exists("docrud:samples"))
	require.NoError(t, s.Close(context.Background()))
}

func TestDialRedisConnectionError(t *testing.T) {
	_, err := DialRedis(context.Background(), RedisConfig{Addr: "localhost:99999"})
	assert.True(t, IsNotConnected(err))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, Config{Driver: "sqlite", URI: "file::memory:?cache=shared"})
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, s)
	require.NoError(t, s.Close(ctx))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	s, err = Open(ctx, Config{Driver: "redis", URI: "redis://" + mr.Addr() + "/0", Prefix: "p:"})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)

	_, err = Open(ctx, Config{Driver: "cassandra"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store driver")
}
