package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		limit    int
		showCode bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find the code most similar to a query",
		Args:  cobra.MinimumNArgs(1),
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

			query := strings.Join(args, " ")
			resp, err := w.Search(cmd.Context(), query, opts.index, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(resp.Results) == 0 {
				fmt.Fprintf(out, "No results in %q\n", resp.Index)
				return nil
			}
			for i, r := range resp.Results {
				fmt.Fprintf(out, "%d. %s  %s %s  (%.3f)\n", i+1, r.Metadata.Path, r.Metadata.Kind, r.Metadata.Name, r.Score)
				if showCode {
					fmt.Fprintln(out, indent(r.Metadata.Code, "    "))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum results (default from config)")
	cmd.Flags().BoolVar(&showCode, "code", false, "print the matching code")
	return cmd
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
