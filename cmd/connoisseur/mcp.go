package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/code-connoisseur/internal/mcp"
	"github.com/dshills/code-connoisseur/internal/storage"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve index_codebase, search_code and get_status over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := opts.logger(false)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			logger.Info("MCP server starting",
				zap.String("version", version),
				zap.String("build_mode", storage.BuildMode),
				zap.String("sqlite_driver", storage.DriverName),
				zap.Bool("vector_extension", storage.VectorExtensionAvailable))

			server, err := mcp.NewServer(version,
				mcp.WithLogger(logger),
				mcp.WithConfigPath(opts.configPath),
			)
			if err != nil {
				return err
			}

			err = server.Serve(cmd.Context())
			logger.Info("MCP server stopped")
			return err
		},
	}
}
