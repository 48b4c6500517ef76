package graph

import "sort"

// adjacency is a read-only view of the graph's edges, built once per analysis
// pass. Neighbor lists are sorted so every traversal is deterministic.
type adjacency struct {
	out        map[string][]*Edge  // source -> outgoing edges, by target id
	in         map[string][]*Edge  // target -> incoming edges, by source id
	undirected map[string][]string // distinct neighbors either way
}

func newAdjacency(g *Graph) *adjacency {
	a := &adjacency{
		out:        make(map[string][]*Edge, len(g.nodes)),
		in:         make(map[string][]*Edge, len(g.nodes)),
		undirected: make(map[string][]string, len(g.nodes)),
	}
	seen := make(map[[2]string]bool, len(g.edges))
	for _, e := range g.edges {
		if _, ok := g.nodes[e.SourceID]; !ok {
			continue
		}
		if _, ok := g.nodes[e.TargetID]; !ok {
			continue
		}
		a.out[e.SourceID] = append(a.out[e.SourceID], e)
		a.in[e.TargetID] = append(a.in[e.TargetID], e)

		key := [2]string{e.SourceID, e.TargetID}
		if key[0] > key[1] {
			key[0], key[1] = key[1], key[0]
		}
		if !seen[key] {
			seen[key] = true
			a.undirected[e.SourceID] = append(a.undirected[e.SourceID], e.TargetID)
			a.undirected[e.TargetID] = append(a.undirected[e.TargetID], e.SourceID)
		}
	}
	for _, es := range a.out {
		sort.Slice(es, func(i, j int) bool {
			if es[i].TargetID != es[j].TargetID {
				return es[i].TargetID < es[j].TargetID
			}
			return es[i].Kind < es[j].Kind
		})
	}
	for _, es := range a.in {
		sort.Slice(es, func(i, j int) bool {
			if es[i].SourceID != es[j].SourceID {
				return es[i].SourceID < es[j].SourceID
			}
			return es[i].Kind < es[j].Kind
		})
	}
	for _, ns := range a.undirected {
		sort.Strings(ns)
	}
	return a
}

// degree is the number of distinct neighbors of id
func (a *adjacency) degree(id string) int { return len(a.undirected[id]) }
