package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"pleno/audit/internal/graph"
)

var (
	reachSource        graphSource
	reachBudget        int
	reachMaxHops       int
	reachMaxCost       float64
	reachBidirectional bool
	reachJSON          bool
	reachEdgeKinds     string
)

var reachCmd = &cobra.Command{
	Use:   "reach <node-id>",
	Short: "Cheapest-path expansion from a node: what it can reach and how",
	Long: `Expands outward from a node along observed edges, cheapest first. Edges
seen more often and edges that move data directly (ai_prompt, then
extension_activity, then requests) are cheaper to cross.

The node may be given as a full id ("domain:example.com") or a bare
hostname.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, _, err := reachSource.load(cmd.Context(), nil)
		if err != nil {
			return err
		}

		source, err := resolveNodeID(g, args[0])
		if err != nil {
			return err
		}

		config := &graph.ReachConfig{
			Budget:        reachBudget,
			MaxHops:       reachMaxHops,
			MaxCost:       reachMaxCost,
			Bidirectional: reachBidirectional,
		}
		if reachEdgeKinds != "" {
			for _, k := range strings.Split(reachEdgeKinds, ",") {
				kind := graph.EdgeKind(strings.TrimSpace(k))
				if !kind.IsValid() {
					return fmt.Errorf("unknown edge kind %q", kind)
				}
				config.EdgeKinds = append(config.EdgeKinds, kind)
			}
		}

		results, err := graph.Reach(g, source.ID, config)
		if err != nil {
			return fmt.Errorf("reach expansion: %w", err)
		}

		if reachJSON {
			output := struct {
				Source  string              `json:"source"`
				Budget  int                 `json:"budget"`
				Results []graph.ReachedNode `json:"results"`
				Count   int                 `json:"count"`
			}{
				Source:  source.ID,
				Budget:  reachBudget,
				Results: results,
				Count:   len(results),
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(output)
		}

		printReach(cmd.OutOrStdout(), source, results)
		return nil
	},
}

func init() {
	d := graph.DefaultReachConfig()
	reachSource.register(reachCmd)
	reachCmd.Flags().IntVar(&reachBudget, "budget", d.Budget, "Max nodes to return")
	reachCmd.Flags().IntVar(&reachMaxHops, "max-hops", d.MaxHops, "Max graph depth")
	reachCmd.Flags().Float64Var(&reachMaxCost, "max-cost", d.MaxCost, "Cost ceiling")
	reachCmd.Flags().BoolVar(&reachBidirectional, "bidirectional", false, "Also follow edges backwards")
	reachCmd.Flags().BoolVar(&reachJSON, "json", false, "JSON output")
	reachCmd.Flags().StringVar(&reachEdgeKinds, "edge-kinds", "", "Comma-separated edge kind allowlist")
	rootCmd.AddCommand(reachCmd)
}

// resolveNodeID accepts a full node id or a bare hostname
func resolveNodeID(g *graph.Graph, reference string) (graph.Node, error) {
	if n, ok := g.Node(reference); ok {
		return n, nil
	}
	if n, ok := g.Node(graph.DomainNodeID(reference)); ok {
		return n, nil
	}
	return graph.Node{}, fmt.Errorf("node not found: %s", reference)
}

func printReach(w io.Writer, source graph.Node, results []graph.ReachedNode) {
	if len(results) == 0 {
		fmt.Fprintf(w, "Nothing reachable from: %s\n", source.Label)
		return
	}

	fmt.Fprintf(w, "Reach from: %s (%s)  budget=%d\n\n", source.Label, source.Kind, reachBudget)

	for _, r := range results {
		fmt.Fprintf(w, "  %2d. [%s] %s (%s) dist=%.3f rel=%.0f%% hops=%d\n",
			r.Rank, r.RiskLevel, r.Label, r.Kind, r.Distance, r.Relevance*100, r.Hops)

		if len(r.Path) > 0 {
			hops := make([]string, len(r.Path))
			for i, hop := range r.Path {
				hops[i] = fmt.Sprintf("→[%s]→ %s", hop.Kind, truncLabel(hop.Label, 40))
			}
			fmt.Fprintf(w, "      %s\n", strings.Join(hops, " "))
		}
	}

	fmt.Fprintf(w, "\n%d node(s) within budget\n", len(results))
}
