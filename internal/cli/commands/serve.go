package commands

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/docrud/internal/logging"
	"github.com/conduit-lang/docrud/internal/orm/store"
	"github.com/conduit-lang/docrud/internal/rpc"
	"github.com/conduit-lang/docrud/internal/web/router"
	"github.com/conduit-lang/docrud/internal/web/server"
)

// ErrNoTransport is returned when both the HTTP and the JSON-RPC address are empty
var ErrNoTransport = errors.New("no transport enabled: set server.http_addr or server.rpc_addr")

// NewServeCommand creates the serve command
func NewServeCommand(flags *globalFlags) *cobra.Command {
	var httpAddr, rpcAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve every record type over HTTP and JSON-RPC",
		Long: `Open the configured document store, synthesize the operations of every
record type in the schema file and serve them until interrupted.

HTTP:     POST /{Service}/{method}, GET /operations, GET /healthz
JSON-RPC: method "Service.method" over TCP`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http-addr") {
				cfg.Server.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("rpc-addr") {
				cfg.Server.RPCAddr = rpcAddr
			}
			if cfg.Server.HTTPAddr == "" && cfg.Server.RPCAddr == "" {
				return ErrNoTransport
			}

			logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
			if err != nil {
				return err
			}
			defer logger.Sync()

			registry, err := loadRegistry(cfg.Schema.File, flags.noColor, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := store.Open(ctx, cfg.StoreOptions())
			if err != nil {
				return err
			}
			logger.Info("store opened", zap.String("driver", cfg.Store.Driver))

			services, err := buildServices(ctx, st, registry, logger)
			if err != nil {
				st.Close(context.Background())
				return err
			}
			dispatcher := rpc.NewDispatcher(logger, services...)

			var httpServer *server.Server
			if cfg.Server.HTTPAddr != "" {
				httpConfig := server.DefaultConfig(router.New(dispatcher, st, logger))
				httpConfig.Address = cfg.Server.HTTPAddr
				if httpServer, err = server.New(httpConfig); err == nil {
					err = httpServer.Listen()
				}
				if err != nil {
					st.Close(context.Background())
					return err
				}
			}

			rpcDone := make(chan error, 1)
			if cfg.Server.RPCAddr != "" {
				rpcServer := rpc.NewServer(dispatcher, logger)
				go func() { rpcDone <- rpcServer.ListenAndServe(ctx, cfg.Server.RPCAddr) }()
			} else {
				rpcDone <- nil
			}

			if httpServer == nil {
				var rpcErr error
				select {
				case <-ctx.Done():
					rpcErr = <-rpcDone
				case rpcErr = <-rpcDone:
					stop()
				}
				if err := st.Close(context.Background()); err != nil {
					logger.Error("store close failed", zap.Error(err))
				}
				return rpcErr
			}

			gs := server.NewGracefulShutdown(httpServer, &server.ShutdownConfig{
				Timeout: cfg.Server.ShutdownTimeout,
				Logger:  logger,
			})
			gs.RegisterHook(func(hookCtx context.Context) error {
				stop()
				select {
				case err := <-rpcDone:
					return err
				case <-hookCtx.Done():
					return hookCtx.Err()
				}
			})
			gs.RegisterHook(st.Close)

			return gs.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides server.http_addr, empty disables)")
	cmd.Flags().StringVar(&rpcAddr, "rpc-addr", "", "JSON-RPC listen address (overrides server.rpc_addr, empty disables)")
	return cmd
}
