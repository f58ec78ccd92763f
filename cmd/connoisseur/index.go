package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "index [path]",
		Short: "Index a codebase for search, replacing any previous index",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.project = args[0]
			}

			logger, err := opts.logger(true)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			w, err := opts.open(logger)
			if err != nil {
				return err
			}
			defer w.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Indexing %s into %q...\n", w.Root, w.IndexName(opts.index))

			stats, err := w.Index(cmd.Context(), opts.index)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "\nDone in %s\n", stats.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "  Files:   %d indexed, %d whole-file\n", stats.FilesIndexed, stats.FilesFallback)
			fmt.Fprintf(out, "  Chunks:  %d in %d batches\n", stats.ChunksCreated, stats.BatchesWritten)
			for _, name := range stats.StrategyNames() {
				fmt.Fprintf(out, "  %-24s %d files\n", name+":", stats.Strategies[name])
			}
			if len(stats.Reasons) > 0 {
				reasons := make([]string, 0, len(stats.Reasons))
				for r := range stats.Reasons {
					reasons = append(reasons, r)
				}
				sort.Strings(reasons)
				for _, r := range reasons {
					fmt.Fprintf(out, "  fallback (%s): %d\n", r, stats.Reasons[r])
				}
			}
			if stats.Metadata != nil {
				fmt.Fprintf(out, "  Stored:  %s\n", filepath.Join(stats.Metadata.StorageRoot, stats.Index))
			}
			return nil
		},
	}
}
