package graph

import "sort"

// Chokepoint is a node whose removal splits its connected component. Traffic
// between the two sides has to pass through it.
type Chokepoint struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Kind      NodeKind  `json:"kind"`
	RiskScore int       `json:"riskScore"`
	RiskLevel RiskLevel `json:"riskLevel"`
	Degree    int       `json:"degree"`
}

// BridgeLink is a link whose removal splits its connected component
type BridgeLink struct {
	SourceID    string `json:"sourceId"`
	TargetID    string `json:"targetId"`
	SourceLabel string `json:"sourceLabel"`
	TargetLabel string `json:"targetLabel"`
}

// ChokepointReport holds the articulation points and bridges of the
// undirected view of the graph
type ChokepointReport struct {
	Chokepoints     []Chokepoint `json:"chokepoints"`
	Bridges         []BridgeLink `json:"bridges"`
	ChokepointCount int          `json:"chokepointCount"`
	BridgeCount     int          `json:"bridgeCount"`
}

// FindChokepoints runs an iterative Tarjan pass over every component
func FindChokepoints(g *Graph) *ChokepointReport {
	report := &ChokepointReport{Chokepoints: []Chokepoint{}, Bridges: []BridgeLink{}}
	if len(g.nodes) == 0 {
		return report
	}
	adj := newAdjacency(g)

	ids := g.NodeIDs()
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}
	n := len(ids)
	neighbors := make([][]int, n)
	for i, id := range ids {
		for _, nb := range adj.undirected[id] {
			neighbors[i] = append(neighbors[i], index[nb])
		}
	}

	disc := make([]int, n)
	low := make([]int, n)
	visited := make([]bool, n)
	isCut := make([]bool, n)
	var bridges [][2]int
	counter := 1

	const noParent = -1
	type frame struct{ node, parent, next int }

	for root := 0; root < n; root++ {
		if visited[root] {
			continue
		}
		visited[root] = true
		disc[root], low[root] = counter, counter
		counter++

		stack := []frame{{root, noParent, 0}}
		rootChildren := 0
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			u := top.node
			if top.next < len(neighbors[u]) {
				v := neighbors[u][top.next]
				top.next++
				if v == top.parent {
					continue
				}
				if visited[v] {
					low[u] = min(low[u], disc[v])
					continue
				}
				visited[v] = true
				disc[v], low[v] = counter, counter
				counter++
				if u == root {
					rootChildren++
				}
				stack = append(stack, frame{v, u, 0})
				continue
			}

			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				continue
			}
			p := stack[len(stack)-1].node
			low[p] = min(low[p], low[u])
			if low[u] > disc[p] {
				bridges = append(bridges, [2]int{p, u})
			}
			if p != root && low[u] >= disc[p] {
				isCut[p] = true
			}
		}
		if rootChildren >= 2 {
			isCut[root] = true
		}
	}

	for i, id := range ids {
		if !isCut[i] {
			continue
		}
		node := g.nodes[id]
		report.Chokepoints = append(report.Chokepoints, Chokepoint{
			ID:        id,
			Label:     node.Label,
			Kind:      node.Kind,
			RiskScore: node.RiskScore,
			RiskLevel: node.RiskLevel,
			Degree:    len(neighbors[i]),
		})
	}
	sort.SliceStable(report.Chokepoints, func(i, j int) bool {
		a, b := report.Chokepoints[i], report.Chokepoints[j]
		if a.RiskScore != b.RiskScore {
			return a.RiskScore > b.RiskScore
		}
		return a.Degree > b.Degree
	})

	for _, pair := range bridges {
		a, b := ids[pair[0]], ids[pair[1]]
		if a > b {
			a, b = b, a
		}
		report.Bridges = append(report.Bridges, BridgeLink{
			SourceID:    a,
			TargetID:    b,
			SourceLabel: g.nodes[a].Label,
			TargetLabel: g.nodes[b].Label,
		})
	}
	sort.Slice(report.Bridges, func(i, j int) bool {
		if report.Bridges[i].SourceID != report.Bridges[j].SourceID {
			return report.Bridges[i].SourceID < report.Bridges[j].SourceID
		}
		return report.Bridges[i].TargetID < report.Bridges[j].TargetID
	})

	report.ChokepointCount = len(report.Chokepoints)
	report.BridgeCount = len(report.Bridges)
	return report
}
