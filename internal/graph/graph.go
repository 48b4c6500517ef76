// Package graph builds and analyzes the security knowledge graph: domains,
// browser extensions and AI providers connected by observed traffic, each
// carrying a risk score.
//
// The graph is a computation-only aggregate. It does no I/O and holds no
// locks; callers serialize access or, more commonly, build a fresh graph per
// analysis cycle.
package graph

import (
	"fmt"
	"sort"
	"time"
)

// Graph owns every node and edge keyed by id. Stats is a cache derived from
// the node and edge sets and is never a source of truth.
type Graph struct {
	nodes       map[string]*Node
	edges       map[string]*Edge
	stats       Stats
	dirty       bool
	lastUpdated int64
	now         func() int64
}

// New returns an empty graph
func New() *Graph {
	g := &Graph{
		nodes: make(map[string]*Node),
		edges: make(map[string]*Edge),
		now:   func() int64 { return time.Now().UnixMilli() },
	}
	RecomputeStats(g)
	return g
}

// Node returns a copy of the node with the given id
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.clone(), true
}

// Edge returns a copy of the edge with the given id
func (g *Graph) Edge(id string) (Edge, bool) {
	e, ok := g.edges[id]
	if !ok {
		return Edge{}, false
	}
	return *e, true
}

// Nodes returns copies of all nodes sorted by id
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.nodes))
	for _, id := range g.NodeIDs() {
		out = append(out, g.nodes[id].clone())
	}
	return out
}

// Edges returns copies of all edges sorted by id
func (g *Graph) Edges() []Edge {
	ids := make([]string, 0, len(g.edges))
	for id := range g.edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Edge, 0, len(ids))
	for _, id := range ids {
		out = append(out, *g.edges[id])
	}
	return out
}

// NodeIDs returns a sorted list of all node IDs (for deterministic output)
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NodeCount returns the number of nodes
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges
func (g *Graph) EdgeCount() int { return len(g.edges) }

// LastUpdated returns the wall-clock Unix millis of the last mutation
func (g *Graph) LastUpdated() int64 { return g.lastUpdated }

// Stats returns a copy of the derived statistics, recomputing them first if
// a direct upsert has happened since the last recompute.
func (g *Graph) Stats() Stats {
	if g.dirty {
		RecomputeStats(g)
	}
	return g.stats.Clone()
}

// CriticalPaths returns the ranked attack paths from the current stats
func (g *Graph) CriticalPaths() []AttackPath {
	return g.Stats().CriticalPaths
}

// UpsertNode inserts n or merges it into the existing node with the same id.
// Zero values in n count as absent: booleans only ever turn on, non-zero
// scalars overwrite, observation counters add up and sets are unioned.
// A kind mismatch leaves the graph untouched and returns ErrKindConflict.
func (g *Graph) UpsertNode(n Node) error {
	if n.ID == "" || !n.Kind.IsValid() {
		return fmt.Errorf("%w: id=%q kind=%q", ErrInvalidNode, n.ID, n.Kind)
	}
	if n.Metadata == nil || n.Metadata.Kind() != n.Kind {
		return fmt.Errorf("%w: %s has metadata for another kind", ErrInvalidNode, n.ID)
	}

	existing, ok := g.nodes[n.ID]
	if !ok {
		c := n.clone()
		if c.FirstSeen == 0 || (c.LastSeen != 0 && c.LastSeen < c.FirstSeen) {
			c.FirstSeen = c.LastSeen
		}
		c.rescore()
		g.nodes[c.ID] = &c
		g.markChanged()
		return nil
	}

	if existing.Kind != n.Kind {
		return fmt.Errorf("%w: %s is %s, update is %s", ErrKindConflict, n.ID, existing.Kind, n.Kind)
	}
	if n.Label != "" {
		existing.Label = n.Label
	}
	if n.RiskScore != 0 {
		existing.RiskScore = n.RiskScore
	}
	existing.Metadata = existing.Metadata.merge(n.Metadata)
	existing.observe(n.FirstSeen)
	existing.observe(n.LastSeen)
	existing.rescore()
	g.markChanged()
	return nil
}

// UpsertEdge records one observation of source --kind--> target. The first
// observation creates the edge with weight 1, later ones increment it. Both
// endpoints' LastSeen move forward to seenAt (or now when seenAt is zero).
func (g *Graph) UpsertEdge(sourceID, targetID string, kind EdgeKind, seenAt int64) error {
	if !kind.IsValid() {
		return fmt.Errorf("%w: kind %q", ErrInvalidEdge, kind)
	}
	if sourceID == targetID {
		return fmt.Errorf("%w: %s", ErrSelfLoop, sourceID)
	}
	src, ok := g.nodes[sourceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, sourceID)
	}
	tgt, ok := g.nodes[targetID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, targetID)
	}

	id := EdgeID(sourceID, kind, targetID)
	if e, ok := g.edges[id]; ok {
		e.Weight++
	} else {
		g.edges[id] = &Edge{ID: id, SourceID: sourceID, TargetID: targetID, Kind: kind, Weight: 1}
	}

	if seenAt <= 0 {
		seenAt = g.now()
	}
	src.observe(seenAt)
	tgt.observe(seenAt)
	g.markChanged()
	return nil
}

func (n *Node) observe(at int64) {
	if at <= 0 {
		return
	}
	if n.FirstSeen == 0 || at < n.FirstSeen {
		n.FirstSeen = at
	}
	if at > n.LastSeen {
		n.LastSeen = at
	}
}

func (g *Graph) markChanged() {
	g.dirty = true
	g.lastUpdated = g.now()
}
