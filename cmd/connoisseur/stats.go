package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show what is stored for the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			st, err := w.Status(cmd.Context(), opts.index)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !st.Indexed {
				fmt.Fprintf(out, "Index %q not found for %s. Run `connoisseur index` first.\n", st.Index, w.Root)
				return nil
			}

			md := st.Location.Metadata
			fmt.Fprintf(out, "Index:      %s\n", st.Index)
			fmt.Fprintf(out, "Location:   %s (%s)\n", st.Location.Dir, st.Location.Source)
			fmt.Fprintf(out, "Chunks:     %d\n", md.ChunkCount)
			fmt.Fprintf(out, "Batches:    %d of up to %d\n", md.BatchCount, md.BatchSize)
			fmt.Fprintf(out, "Vectors:    %d dims, %s\n", md.Dimension, md.Metric)
			fmt.Fprintf(out, "Embeddings: %s/%s\n", md.Provider, md.Model)
			fmt.Fprintf(out, "Format:     %s\n", md.FormatVersion)
			fmt.Fprintf(out, "Updated:    %s\n", md.UpdatedAt.Format(time.RFC3339))
			return nil
		},
	}
}
