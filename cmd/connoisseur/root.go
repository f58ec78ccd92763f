package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/code-connoisseur/internal/config"
	"github.com/dshills/code-connoisseur/internal/logging"
	"github.com/dshills/code-connoisseur/internal/workspace"
)

type rootOptions struct {
	configPath string
	project    string
	index      string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "connoisseur",
		Short:         "Semantic code chunking, embedding and similarity search",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default <project>/.code-connoisseur/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.project, "project", ".", "project root")
	cmd.PersistentFlags().StringVar(&opts.index, "index", "", "index name (default from config)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		newIndexCmd(opts),
		newSearchCmd(opts),
		newStatsCmd(opts),
		newMCPCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// logger returns the zap logger for a command. Interactive commands only
// surface warnings unless --debug or CONNOISSEUR_DEBUG is set.
func (o *rootOptions) logger(interactive bool) (*zap.Logger, error) {
	debug := o.debug || envDebug()
	if interactive && !debug {
		return logging.NewQuiet()
	}
	return logging.New(debug)
}

// open builds the workspace for the --project root
func (o *rootOptions) open(logger *zap.Logger) (*workspace.Workspace, error) {
	w, err := workspace.Open(o.project, o.configPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open project %s: %w", o.project, err)
	}
	return w, nil
}

func envDebug() bool {
	debug, err := strconv.ParseBool(os.Getenv(config.EnvDebug))
	return err == nil && debug
}
