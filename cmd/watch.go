package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pleno/audit/internal/cycle"
)

var (
	watchInputs   []string
	watchHARs     []string
	watchInterval time.Duration
	watchName     string
	watchJSON     bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [flags]",
	Short: "Rebuild the graph from telemetry files on an interval and snapshot each cycle",
	Long: `Re-reads the telemetry files every interval, builds a fresh graph and saves
it as a snapshot. A cycle that fails (unreadable file, store outage) is
logged and the next one runs on schedule. Stops on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(watchInputs) == 0 && len(watchHARs) == 0 {
			return fmt.Errorf("specify --input <file> or --har <file>")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := OpenStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		interval := cfg.Watch.GetInterval()
		if cmd.Flags().Changed("interval") {
			interval = watchInterval
		}
		name := cfg.Watch.SnapshotName
		if watchName != "" {
			name = watchName
		}

		runner, err := cycle.NewRunner(s,
			cycle.WithLogger(logger),
			cycle.WithSnapshotName(name))
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "[watch] every %s into %q\n", interval, name)
		enc := json.NewEncoder(cmd.OutOrStdout())
		return runner.Watch(ctx, cycle.FileSource{Batches: watchInputs, HARs: watchHARs}, interval,
			func(res *cycle.Result) {
				if watchJSON {
					_ = enc.Encode(res)
					return
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[watch] %s  %d nodes  %d edges  %d paths  (%s)\n",
					truncID(res.SnapshotID), res.Stats.TotalNodes, res.Stats.TotalEdges,
					len(res.Stats.CriticalPaths), res.Duration.Round(time.Millisecond))
			})
	},
}

func init() {
	watchCmd.Flags().StringSliceVarP(&watchInputs, "input", "i", nil, "Telemetry batch JSON file (repeatable)")
	watchCmd.Flags().StringSliceVar(&watchHARs, "har", nil, "HAR capture to ingest (repeatable)")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Minute, "Time between cycles")
	watchCmd.Flags().StringVar(&watchName, "name", "", "Snapshot name (default from config)")
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "One JSON result per line")
	rootCmd.AddCommand(watchCmd)
}
