package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/docrud/internal/cli/ui"
	"github.com/conduit-lang/docrud/internal/orm/crud"
	"github.com/conduit-lang/docrud/internal/orm/store"
	"github.com/conduit-lang/docrud/internal/rpc"
)

// NewOperationsCommand creates the operations command
func NewOperationsCommand(flags *globalFlags) *cobra.Command {
	var service string

	cmd := &cobra.Command{
		Use:   "operations",
		Short: "List the operations of every record type",
		Long:  "Print the core and synthesized operations of each stored record type with their envelope keys",
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

			if service != "" {
				filtered := filterServices(services, service)
				if len(filtered) == 0 {
					fmt.Fprint(cmd.ErrOrStderr(), ui.ServiceNotFoundError(service, suggest(services, service), flags.noColor))
					return fmt.Errorf("unknown record type %q", service)
				}
				services = filtered
			}

			table := ui.NewTable("SERVICE", "METHOD", "ACTION", "FIELD", "ENVELOPE KEY")
			table.Group = 0
			for _, info := range rpc.NewDispatcher(nil, services...).Describe() {
				table.Append(info.Service, info.Method, info.Action, info.Field, info.EnvelopeKey)
			}
			table.Render(cmd.OutOrStdout(), flags.noColor)
			return nil
		},
	}

	cmd.Flags().StringVar(&service, "service", "", "only list the operations of this record type")
	return cmd
}

func filterServices(services []*crud.Service, name string) []*crud.Service {
	for _, svc := range services {
		if svc.Name() == name {
			return []*crud.Service{svc}
		}
	}
	return nil
}

func suggest(services []*crud.Service, name string) []string {
	names := make([]string, 0, len(services))
	for _, svc := range services {
		names = append(names, svc.Name())
	}
	return ui.FindSimilar(name, names, 3)
}
