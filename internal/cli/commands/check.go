package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/docrud/internal/cli/ui"
	"github.com/conduit-lang/docrud/internal/orm/store"
)

// NewCheckCommand creates the check command
func NewCheckCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the schema file",
		Long:  "Load the schema file, resolve every reference and synthesize the operations of every record type",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			registry, err := loadRegistry(cfg.Schema.File, flags.noColor, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			services, err := buildServices(cmd.Context(), store.NewMemoryStore(), registry, zap.NewNop())
			if err != nil {
				fmt.Fprint(cmd.ErrOrStderr(), ui.SchemaError(err.Error(), cfg.Schema.File, flags.noColor))
				return err
			}

			operations := 0
			for _, svc := range services {
				operations += len(svc.Operations())
			}
			ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("%s: %d record types, %d services, %d synthesized operations",
				cfg.Schema.File, registry.Count(), len(services), operations), flags.noColor)
			return nil
		},
	}
}
