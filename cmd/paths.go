package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"pleno/audit/internal/graph"
)

var (
	pathsSource   graphSource
	pathsMaxDepth int
	pathsLimit    int
	pathsJSON     bool
)

var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Rank attack paths leaving high-risk nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, _, err := pathsSource.load(cmd.Context(), nil)
		if err != nil {
			return err
		}

		opts := cfg.Analysis.AnalyzerConfig().Paths
		if cmd.Flags().Changed("max-depth") {
			opts.MaxDepth = pathsMaxDepth
		}
		if cmd.Flags().Changed("limit") {
			opts.Limit = pathsLimit
		}
		if opts.MaxDepth < 1 || opts.MaxDepth > graph.MaxPathDepthLimit {
			return fmt.Errorf("--max-depth must be between 1 and %d", graph.MaxPathDepthLimit)
		}
		if opts.Limit < 1 {
			return fmt.Errorf("--limit must be at least 1")
		}

		paths := graph.FindCriticalPathsWith(g, opts)

		if pathsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(paths)
		}

		if len(paths) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No attack paths: no node is rated high or critical")
			return nil
		}
		printPaths(cmd.OutOrStdout(), paths, g)
		return nil
	},
}

func init() {
	pathsSource.register(pathsCmd)
	pathsCmd.Flags().IntVar(&pathsMaxDepth, "max-depth", graph.DefaultMaxPathDepth, fmt.Sprintf("Maximum edges per path (at most %d)", graph.MaxPathDepthLimit))
	pathsCmd.Flags().IntVar(&pathsLimit, "limit", graph.DefaultPathLimit, "Maximum paths to return")
	pathsCmd.Flags().BoolVar(&pathsJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(pathsCmd)
}
