package graph

// Stats is derived from the node and edge sets on every recompute. It is
// never persisted.
type Stats struct {
	TotalNodes       int               `json:"totalNodes"`
	TotalEdges       int               `json:"totalEdges"`
	NodesByType      map[NodeKind]int  `json:"nodesByType"`
	EdgesByType      map[EdgeKind]int  `json:"edgesByType"`
	RiskDistribution map[RiskLevel]int `json:"riskDistribution"`
	CriticalPaths    []AttackPath      `json:"criticalPaths"`
	Components       int               `json:"components"`
	IsolatedNodes    int               `json:"isolatedNodes"`
}

func emptyStats() Stats {
	s := Stats{
		NodesByType:      make(map[NodeKind]int, 3),
		EdgesByType:      make(map[EdgeKind]int, 3),
		RiskDistribution: make(map[RiskLevel]int, 5),
		CriticalPaths:    []AttackPath{},
	}
	for _, k := range AllNodeKinds() {
		s.NodesByType[k] = 0
	}
	for _, k := range AllEdgeKinds() {
		s.EdgesByType[k] = 0
	}
	for _, l := range AllRiskLevels() {
		s.RiskDistribution[l] = 0
	}
	return s
}

// RecomputeStats rebuilds g's stats from scratch, stores them on g and
// returns them. Output depends only on the node and edge sets.
func RecomputeStats(g *Graph) Stats {
	s := emptyStats()
	s.TotalNodes = len(g.nodes)
	s.TotalEdges = len(g.edges)

	ids := g.NodeIDs()
	for _, id := range ids {
		n := g.nodes[id]
		s.NodesByType[n.Kind]++
		s.RiskDistribution[n.RiskLevel]++
	}

	ds := newDisjointSet(ids)
	linked := make(map[string]bool, len(ids))
	for _, e := range g.edges {
		s.EdgesByType[e.Kind]++
		ds.union(e.SourceID, e.TargetID)
		linked[e.SourceID] = true
		linked[e.TargetID] = true
	}
	s.Components = ds.count()
	for _, id := range ids {
		if !linked[id] {
			s.IsolatedNodes++
		}
	}

	s.CriticalPaths = FindCriticalPaths(g)

	g.stats = s
	g.dirty = false
	return s
}

// Clone returns a deep copy of s
func (s Stats) Clone() Stats {
	c := s
	c.NodesByType = make(map[NodeKind]int, len(s.NodesByType))
	for k, v := range s.NodesByType {
		c.NodesByType[k] = v
	}
	c.EdgesByType = make(map[EdgeKind]int, len(s.EdgesByType))
	for k, v := range s.EdgesByType {
		c.EdgesByType[k] = v
	}
	c.RiskDistribution = make(map[RiskLevel]int, len(s.RiskDistribution))
	for k, v := range s.RiskDistribution {
		c.RiskDistribution[k] = v
	}
	c.CriticalPaths = make([]AttackPath, len(s.CriticalPaths))
	for i, p := range s.CriticalPaths {
		c.CriticalPaths[i] = p
		c.CriticalPaths[i].NodeIDs = append([]string(nil), p.NodeIDs...)
	}
	return c
}
