package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/conduit-lang/docrud/internal/orm/document"
)

// RedisStore keeps each collection in one hash: field = hex identifier,
// value = BSON document.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	// Addr is the Redis server address (host:port)
	Addr string
	// Password is the Redis password (optional)
	Password string
	// DB is the Redis database number
	DB int
	// Prefix is prepended to every collection key
	Prefix string
}

// saveScript replaces a hash field only when it already exists
var saveScript = redis.NewScript(`
	if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
		redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
		return 1
	end
	return 0
`)

// DialRedis connects to Redis and verifies the connection
func DialRedis(ctx context.Context, config RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return NewRedisStore(client, config.Prefix), nil
}

// NewRedisStore creates a store with an existing client
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(collection string) string {
	return r.prefix + collection
}

// Ping implements Store
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// FindOne implements Store
func (r *RedisStore) FindOne(ctx context.Context, collection string, id bson.ObjectID) (document.Document, error) {
	data, err := r.client.HGet(ctx, r.key(collection), id.Hex()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s in %s", ErrNoDocument, id.Hex(), collection)
		}
		return nil, fmt.Errorf("hget: %w", err)
	}
	return document.Unmarshal(data)
}

// Find implements Store. Documents are scanned in identifier order, which
// follows creation order for generated identifiers.
func (r *RedisStore) Find(ctx context.Context, collection string, q Query) ([]document.Document, error) {
	values, err := r.client.HVals(ctx, r.key(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("hvals: %w", err)
	}

	docs := make([]document.Document, 0, len(values))
	for _, v := range values {
		doc, err := document.Unmarshal([]byte(v))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	sort.SliceStable(docs, func(i, j int) bool {
		a, _ := docs[i].ID()
		b, _ := docs[j].ID()
		return bytes.Compare(a[:], b[:]) < 0
	})

	return Apply(docs, q)
}

// Insert implements Store
func (r *RedisStore) Insert(ctx context.Context, collection string, doc document.Document) error {
	id, err := documentID(doc)
	if err != nil {
		return err
	}
	data, err := document.Marshal(doc)
	if err != nil {
		return err
	}

	created, err := r.client.HSetNX(ctx, r.key(collection), id.Hex(), data).Result()
	if err != nil {
		return fmt.Errorf("hsetnx: %w", err)
	}
	if !created {
		return fmt.Errorf("%w: %s in %s", ErrDuplicateID, id.Hex(), collection)
	}
	return nil
}

// Save implements Store
func (r *RedisStore) Save(ctx context.Context, collection string, doc document.Document) error {
	id, err := documentID(doc)
	if err != nil {
		return err
	}
	data, err := document.Marshal(doc)
	if err != nil {
		return err
	}

	replaced, err := saveScript.Run(ctx, r.client, []string{r.key(collection)}, id.Hex(), data).Int()
	if err != nil {
		return fmt.Errorf("save script: %w", err)
	}
	if replaced == 0 {
		return fmt.Errorf("%w: %s in %s", ErrNoDocument, id.Hex(), collection)
	}
	return nil
}

// Remove implements Store
func (r *RedisStore) Remove(ctx context.Context, collection string, id bson.ObjectID) (bool, error) {
	removed, err := r.client.HDel(ctx, r.key(collection), id.Hex()).Result()
	if err != nil {
		return false, fmt.Errorf("hdel: %w", err)
	}
	return removed > 0, nil
}

// Close implements Store
func (r *RedisStore) Close(ctx context.Context) error {
	return r.client.Close()
}
