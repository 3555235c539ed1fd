// Package config loads docrud settings from docrud.yaml and DOCRUD_
// environment variables
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/conduit-lang/docrud/internal/orm/store"
)

// EnvPrefix prefixes every environment override: DOCRUD_STORE_DRIVER, ...
const EnvPrefix = "DOCRUD"

// Config represents the docrud configuration
type Config struct {
	Store  StoreConfig  `mapstructure:"store"`
	Schema SchemaConfig `mapstructure:"schema"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
}

// StoreConfig selects the document store backend
type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
	Prefix   string `mapstructure:"prefix"`
}

// SchemaConfig points at the record type declarations
type SchemaConfig struct {
	File string `mapstructure:"file"`
}

// ServerConfig represents server configuration. An empty address disables
// that transport.
type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	RPCAddr         string        `mapstructure:"rpc_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// StoreOptions returns the backend selection understood by store.Open
func (c *Config) StoreOptions() store.Config {
	return store.Config{
		Driver:   c.Store.Driver,
		URI:      c.Store.URI,
		Database: c.Store.Database,
		Prefix:   c.Store.Prefix,
	}
}

// Load reads docrud.yaml (or .yml) from the working directory, or the file
// at path when it is not empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("store.driver", store.DriverMemory)
	v.SetDefault("store.uri", "")
	v.SetDefault("store.database", "docrud")
	v.SetDefault("store.prefix", "docrud")
	v.SetDefault("schema.file", "schema.yaml")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.rpc_addr", ":9090")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("docrud")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	driver := strings.ToLower(cfg.Store.Driver)
	known := false
	for _, d := range store.Drivers {
		if d == driver {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("store.driver must be one of %s, got: %s", strings.Join(store.Drivers, ", "), cfg.Store.Driver)
	}
	cfg.Store.Driver = driver

	if driver != store.DriverMemory && cfg.Store.URI == "" {
		return fmt.Errorf("store.uri is required for the %s driver", driver)
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	if cfg.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive, got: %s", cfg.Server.ShutdownTimeout)
	}
	return nil
}
