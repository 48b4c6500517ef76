package graph

import "sort"

const dayMs = int64(86_400_000)

// DormantNode is a node that hasn't been seen for a while although something
// that links to it is still active
type DormantNode struct {
	ID            string    `json:"id"`
	Label         string    `json:"label"`
	Kind          NodeKind  `json:"kind"`
	RiskLevel     RiskLevel `json:"riskLevel"`
	DaysSinceSeen int64     `json:"daysSinceSeen"`
	ActiveSources int       `json:"activeSources"`
}

// DormantReport lists dormant nodes, most referenced first
type DormantReport struct {
	Nodes []DormantNode `json:"nodes"`
	Count int           `json:"count"`
}

// FindDormant reports nodes whose LastSeen is older than staleDays while at
// least one source linking to them was seen within recentDays. now is Unix
// millis.
func FindDormant(g *Graph, staleDays, recentDays int64, now int64) *DormantReport {
	report := &DormantReport{Nodes: []DormantNode{}}
	staleMs := staleDays * dayMs
	recentMs := recentDays * dayMs
	adj := newAdjacency(g)

	for _, id := range g.NodeIDs() {
		node := g.nodes[id]
		if node.LastSeen == 0 || now-node.LastSeen <= staleMs {
			continue
		}
		active := 0
		prev := ""
		for _, e := range adj.in[id] {
			if e.SourceID == prev {
				continue
			}
			prev = e.SourceID
			if src := g.nodes[e.SourceID]; now-src.LastSeen < recentMs {
				active++
			}
		}
		if active == 0 {
			continue
		}
		report.Nodes = append(report.Nodes, DormantNode{
			ID:            id,
			Label:         node.Label,
			Kind:          node.Kind,
			RiskLevel:     node.RiskLevel,
			DaysSinceSeen: (now - node.LastSeen) / dayMs,
			ActiveSources: active,
		})
	}
	sort.SliceStable(report.Nodes, func(i, j int) bool {
		return report.Nodes[i].ActiveSources > report.Nodes[j].ActiveSources
	})
	report.Count = len(report.Nodes)
	return report
}
