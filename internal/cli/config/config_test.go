package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/docrud/internal/orm/store"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, store.DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "docrud", cfg.Store.Database)
	assert.Equal(t, "schema.yaml", cfg.Schema.File)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, ":9090", cfg.Server.RPCAddr)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Log.Development)
}

func TestLoadWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	content := `
store:
  driver: Mongo
  uri: mongodb://localhost:27017
  database: crud
schema:
  file: types.yaml
server:
  http_addr: 127.0.0.1:3000
  rpc_addr: ""
  shutdown_timeout: 5s
log:
  level: debug
  development: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docrud.yaml"), []byte(content), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, store.DriverMongo, cfg.Store.Driver)
	assert.Equal(t, store.Config{
		Driver:   "mongo",
		URI:      "mongodb://localhost:27017",
		Database: "crud",
		Prefix:   "docrud",
	}, cfg.StoreOptions())
	assert.Equal(t, "types.yaml", cfg.Schema.File)
	assert.Equal(t, "127.0.0.1:3000", cfg.Server.HTTPAddr)
	assert.Empty(t, cfg.Server.RPCAddr)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.True(t, cfg.Log.Development)
}

func TestLoadExplicitPath(t *testing.T) {
	chdir(t, t.TempDir())

	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DOCRUD_STORE_DRIVER", "redis")
	t.Setenv("DOCRUD_STORE_URI", "redis://localhost:6379/0")
	t.Setenv("DOCRUD_SERVER_HTTP_ADDR", ":9999")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, store.DriverRedis, cfg.Store.Driver)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Store.URI)
	assert.Equal(t, ":9999", cfg.Server.HTTPAddr)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"DOCRUD_STORE_DRIVER": "cassandra"}},
		{"missing uri", map[string]string{"DOCRUD_STORE_DRIVER": "postgres"}},
		{"bad log level", map[string]string{"DOCRUD_LOG_LEVEL": "loud"}},
		{"bad shutdown timeout", map[string]string{"DOCRUD_SERVER_SHUTDOWN_TIMEOUT": "-1s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
