package commands

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/conduit-lang/docrud/internal/cli/config"
	"github.com/conduit-lang/docrud/internal/cli/ui"
	"github.com/conduit-lang/docrud/internal/orm/crud"
	"github.com/conduit-lang/docrud/internal/orm/schema"
	"github.com/conduit-lang/docrud/internal/orm/store"
)

// loadConfig reads the configuration and applies command line overrides
func loadConfig(flags *globalFlags, stderr io.Writer) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		fmt.Fprint(stderr, ui.ConfigError(err.Error(), flags.noColor))
		return nil, err
	}
	if flags.schemaPath != "" {
		cfg.Schema.File = flags.schemaPath
	}
	return cfg, nil
}

// loadRegistry reads and validates the schema file
func loadRegistry(path string, noColor bool, stderr io.Writer) (*schema.Registry, error) {
	registry := schema.NewRegistry()
	if _, err := schema.LoadFile(registry, path); err != nil {
		fmt.Fprint(stderr, ui.SchemaError(err.Error(), path, noColor))
		return nil, err
	}
	return registry, nil
}

// buildServices creates one service per stored record type
func buildServices(ctx context.Context, s store.Store, registry *schema.Registry, logger *zap.Logger) ([]*crud.Service, error) {
	names := registry.Stored()
	services := make([]*crud.Service, 0, len(names))
	for _, name := range names {
		svc, err := crud.NewService(ctx, s, registry, name, crud.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", name, err)
		}
		services = append(services, svc)
	}
	return services, nil
}
