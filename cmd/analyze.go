package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"pleno/audit/internal/graph"
	"pleno/audit/internal/store"
)

var (
	analyzeSource       graphSource
	analyzeJSON         bool
	analyzeSave         bool
	analyzeTopN         int
	analyzeStaleDays    int64
	analyzeHubThreshold int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze exposure: risk distribution, attack paths, hubs, chokepoints, dormancy",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var st store.Store
		if analyzeSave || analyzeSource.snapshot != "" {
			s, err := OpenStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			st = s
		}

		g, res, err := analyzeSource.load(ctx, st)
		if err != nil {
			return err
		}
		if res != nil && res.SnapshotID != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "[analyze] saved snapshot %s\n", res.SnapshotID)
		}

		config := cfg.Analysis.AnalyzerConfig()
		if cmd.Flags().Changed("top-n") {
			config.TopN = analyzeTopN
		}
		if cmd.Flags().Changed("stale-days") {
			config.StaleDays = analyzeStaleDays
		}
		if cmd.Flags().Changed("hub-threshold") {
			config.HubThreshold = analyzeHubThreshold
		}

		report := graph.Analyze(g, config)

		if analyzeJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}

		printReport(cmd.OutOrStdout(), report, g)
		return nil
	},
}

func init() {
	analyzeSource.register(analyzeCmd)
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Output as JSON")
	analyzeCmd.Flags().BoolVar(&analyzeSave, "save", false, "Save the built graph as a snapshot")
	analyzeCmd.Flags().IntVar(&analyzeTopN, "top-n", 20, "Number of top items to show per section")
	analyzeCmd.Flags().Int64Var(&analyzeStaleDays, "stale-days", 30, "Days unseen before a node counts as dormant")
	analyzeCmd.Flags().IntVar(&analyzeHubThreshold, "hub-threshold", 5, "Minimum degree to consider a node a hub")
	rootCmd.AddCommand(analyzeCmd)
}

func printReport(w io.Writer, report *graph.Report, g *graph.Graph) {
	// Exposure bar
	barLen := int(report.ExposureScore * 20)
	if barLen > 20 {
		barLen = 20
	}
	bar := strings.Repeat("█", barLen) + strings.Repeat("░", 20-barLen)
	fmt.Fprintf(w, "\n  Exposure: %.0f%%  [%s]\n", report.ExposureScore*100, bar)
	fmt.Fprintf(w, "  breakdown: risky=%.2f exfiltration=%.2f chokepoints=%.2f dormancy=%.2f\n\n",
		report.ExposureBreakdown.RiskyNodes,
		report.ExposureBreakdown.Exfiltration,
		report.ExposureBreakdown.Chokepoints,
		report.ExposureBreakdown.Dormancy)

	printStats(w, report.Stats)

	if len(report.Paths) > 0 {
		fmt.Fprintln(w, "\n  ATTACK PATHS")
		fmt.Fprintln(w, "  ────────────────────────────────────────")
		printPaths(w, report.Paths, g)
	}

	if len(report.Hubs) > 0 {
		fmt.Fprintln(w, "\n  Top hubs (degree >= threshold):")
		for _, hub := range report.Hubs {
			fmt.Fprintf(w, "    %-8s degree=%d (in=%d, out=%d)  %s\n",
				hub.RiskLevel, hub.Degree, hub.InDegree, hub.OutDegree, truncLabel(hub.Label, 40))
		}
	}

	cp := report.Chokepoints
	if cp.ChokepointCount > 0 || cp.BridgeCount > 0 {
		fmt.Fprintln(w, "\n  CHOKEPOINTS")
		fmt.Fprintln(w, "  ────────────────────────────────────────")
		if cp.ChokepointCount > 0 {
			fmt.Fprintf(w, "  %d nodes whose removal splits the graph:\n", cp.ChokepointCount)
			for _, c := range cp.Chokepoints[:min(10, len(cp.Chokepoints))] {
				fmt.Fprintf(w, "    %-8s risk=%3d degree=%d  %s\n",
					c.RiskLevel, c.RiskScore, c.Degree, truncLabel(c.Label, 40))
			}
		}
		if cp.BridgeCount > 0 {
			fmt.Fprintf(w, "  %d bridge links:\n", cp.BridgeCount)
			for _, b := range cp.Bridges[:min(10, len(cp.Bridges))] {
				fmt.Fprintf(w, "    %s <-> %s\n", truncLabel(b.SourceLabel, 30), truncLabel(b.TargetLabel, 30))
			}
		}
	}

	if d := report.Dormant; d.Count > 0 {
		fmt.Fprintln(w, "\n  DORMANCY")
		fmt.Fprintln(w, "  ────────────────────────────────────────")
		fmt.Fprintf(w, "  %d dormant nodes (unseen but still contacted):\n", d.Count)
		for _, n := range d.Nodes[:min(10, len(d.Nodes))] {
			fmt.Fprintf(w, "    %s %dd unseen, %d active sources  %s\n",
				n.Kind, n.DaysSinceSeen, n.ActiveSources, truncLabel(n.Label, 40))
		}
	}

	fmt.Fprintln(w)
}

func printStats(w io.Writer, s graph.Stats) {
	fmt.Fprintln(w, "  GRAPH")
	fmt.Fprintln(w, "  ────────────────────────────────────────")
	fmt.Fprintf(w, "  Nodes: %d  Edges: %d  Components: %d  Isolated: %d\n",
		s.TotalNodes, s.TotalEdges, s.Components, s.IsolatedNodes)

	kinds := make([]string, 0, len(s.NodesByType))
	for _, k := range graph.AllNodeKinds() {
		kinds = append(kinds, fmt.Sprintf("%s=%d", k, s.NodesByType[k]))
	}
	fmt.Fprintf(w, "  By kind: %s\n", strings.Join(kinds, " "))

	edges := make([]string, 0, len(s.EdgesByType))
	for _, k := range graph.AllEdgeKinds() {
		edges = append(edges, fmt.Sprintf("%s=%d", k, s.EdgesByType[k]))
	}
	fmt.Fprintf(w, "  Edges:   %s\n", strings.Join(edges, " "))

	fmt.Fprintln(w, "\n  Risk distribution:")
	for _, level := range graph.AllRiskLevels() {
		count := s.RiskDistribution[level]
		fmt.Fprintf(w, "    %8s: %4d  %s\n", level, count, strings.Repeat("=", min(count, 40)))
	}
}

func printPaths(w io.Writer, paths []graph.AttackPath, g *graph.Graph) {
	for i, p := range paths {
		labels := make([]string, len(p.NodeIDs))
		for j, id := range p.NodeIDs {
			labels[j] = id
			if n, ok := g.Node(id); ok {
				labels[j] = truncLabel(n.Label, 30)
			}
		}
		marker := ""
		if p.SensitiveExfil {
			marker = "  [sensitive exfil]"
		}
		fmt.Fprintf(w, "  %2d. score=%.1f%s\n      %s\n", i+1, p.Score, marker, strings.Join(labels, " → "))
	}
}

func truncID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncLabel(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Find a safe UTF-8 boundary
	truncated := s[:max]
	for len(truncated) > 0 && !utf8.ValidString(truncated) {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated + "..."
}
