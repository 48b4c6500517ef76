package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pleno/audit/internal/cycle"
	"pleno/audit/internal/graph"
	"pleno/audit/internal/store"
)

// graphSource selects where a command's graph comes from: telemetry files
// built fresh, or a stored snapshot
type graphSource struct {
	inputs   []string
	hars     []string
	snapshot string
}

func (s *graphSource) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&s.inputs, "input", "i", nil, "Telemetry batch JSON file (repeatable)")
	cmd.Flags().StringSliceVar(&s.hars, "har", nil, "HAR capture to ingest as network requests (repeatable)")
	cmd.Flags().StringVar(&s.snapshot, "snapshot", "", "Load a stored snapshot by id or id prefix instead of building")
}

func (s *graphSource) fromFiles() bool {
	return len(s.inputs) > 0 || len(s.hars) > 0
}

func (s *graphSource) validate() error {
	switch {
	case s.snapshot != "" && s.fromFiles():
		return fmt.Errorf("--snapshot cannot be combined with --input or --har")
	case s.snapshot == "" && !s.fromFiles():
		return fmt.Errorf("specify --input <file>, --har <file> or --snapshot <id>")
	}
	return nil
}

// load returns the graph, plus the cycle result when it was built from files.
// A non-nil st saves the built graph as a snapshot.
func (s *graphSource) load(ctx context.Context, st store.Store) (*graph.Graph, *cycle.Result, error) {
	if err := s.validate(); err != nil {
		return nil, nil, err
	}

	if s.snapshot != "" {
		if st == nil {
			opened, err := OpenStore(ctx)
			if err != nil {
				return nil, nil, err
			}
			defer opened.Close()
			st = opened
		}
		snap, g, err := cycle.Restore(ctx, st, s.snapshot)
		if err != nil {
			return nil, nil, err
		}
		fmt.Fprintf(os.Stderr, "[snapshot] %s %s (%d nodes, %d edges)\n",
			truncID(snap.ID), snap.Name, snap.NodeCount, snap.EdgeCount)
		return g, nil, nil
	}

	batch, err := cycle.FileSource{Batches: s.inputs, HARs: s.hars}.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	runner, err := cycle.NewRunner(st,
		cycle.WithLogger(logger),
		cycle.WithSnapshotName(cfg.Watch.SnapshotName))
	if err != nil {
		return nil, nil, err
	}
	res, err := runner.Run(ctx, batch)
	if err != nil {
		return nil, nil, err
	}
	fmt.Fprintf(os.Stderr, "[ingest] %d services, %d events, %d skipped, %d ignored\n",
		res.Summary.Services, res.Summary.Events, res.Summary.Skipped, res.Summary.Ignored)
	return res.Graph, res, nil
}
