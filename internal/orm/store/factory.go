package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Supported drivers
const (
	DriverMemory   = "memory"
	DriverMongo    = "mongo"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Drivers lists every supported driver name
var Drivers = []string{DriverMemory, DriverMongo, DriverSQLite, DriverPostgres, DriverRedis}

// Config selects and configures a backend
type Config struct {
	Driver string
	// URI is the connection string: a MongoDB URI, a SQL DSN or a redis:// URL
	URI string
	// Database names the MongoDB database
	Database string
	// Prefix is the Redis key prefix or the SQL table name
	Prefix string
}

// Open creates the backend named by the config
func Open(ctx context.Context, config Config) (Store, error) {
	switch strings.ToLower(config.Driver) {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverMongo:
		return DialMongo(config.URI, config.Database)
	case DriverSQLite:
		return OpenSQL(ctx, DialectSQLite, config.URI, config.Prefix)
	case DriverPostgres:
		return OpenSQL(ctx, DialectPostgres, config.URI, config.Prefix)
	case DriverRedis:
		opts, err := redis.ParseURL(config.URI)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return DialRedis(ctx, RedisConfig{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
			Prefix:   config.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q (supported: %s)", config.Driver, strings.Join(Drivers, ", "))
	}
}
