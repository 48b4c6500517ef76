package graph

import (
	"container/heap"
	"fmt"
	"math"
)

// ReachedNode is a node reached from a source, cheapest first
type ReachedNode struct {
	Rank      int       `json:"rank"`
	NodeID    string    `json:"nodeId"`
	Label     string    `json:"label"`
	Kind      NodeKind  `json:"kind"`
	RiskLevel RiskLevel `json:"riskLevel"`
	Distance  float64   `json:"distance"`
	Relevance float64   `json:"relevance"`
	Hops      int       `json:"hops"`
	Path      []Hop     `json:"path"`
}

// Hop is one step on the way to a reached node
type Hop struct {
	EdgeID string   `json:"edgeId"`
	Kind   EdgeKind `json:"edgeKind"`
	NodeID string   `json:"nodeId"`
	Label  string   `json:"label"`
}

// ReachConfig bounds a reach query
type ReachConfig struct {
	Budget        int
	MaxHops       int
	MaxCost       float64
	EdgeKinds     []EdgeKind // allowlist; nil means all
	Bidirectional bool       // also walk edges backwards
}

// DefaultReachConfig returns the CLI defaults
func DefaultReachConfig() *ReachConfig {
	return &ReachConfig{
		Budget:  20,
		MaxHops: 4,
		MaxCost: 3.0,
	}
}

// EdgeKindPriority ranks edge kinds by how directly they move data off the
// machine. Higher is cheaper to traverse.
func EdgeKindPriority(kind EdgeKind) float64 {
	switch kind {
	case EdgeAIPrompt:
		return 1.0
	case EdgeExtensionActivity:
		return 0.7
	case EdgeRequests:
		return 0.5
	default:
		return 0
	}
}

// edgeCost falls as an edge is observed more often and with kind priority
func edgeCost(e *Edge) float64 {
	return math.Max((1.0/(1.0+float64(e.Weight)))*(1.0-0.5*EdgeKindPriority(e.Kind)), 0.001)
}

type reachPrev struct {
	from string
	edge *Edge
}

type reachEntry struct {
	distance float64
	nodeID   string
	hops     int
}

// reachHeap is a min-heap by distance, ties broken by node id
type reachHeap []reachEntry

func (h reachHeap) Len() int { return len(h) }
func (h reachHeap) Less(i, j int) bool {
	if h[i].distance != h[j].distance {
		return h[i].distance < h[j].distance
	}
	return h[i].nodeID < h[j].nodeID
}
func (h reachHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *reachHeap) Push(x any)   { *h = append(*h, x.(reachEntry)) }
func (h *reachHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Reach runs Dijkstra from sourceID along outgoing edges and returns up to
// Budget nodes in cost order. The source itself is not included.
func Reach(g *Graph, sourceID string, config *ReachConfig) ([]ReachedNode, error) {
	if _, ok := g.nodes[sourceID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, sourceID)
	}
	if config == nil {
		config = DefaultReachConfig()
	}
	budget := config.Budget
	if budget <= 0 {
		budget = 20
	}
	maxHops := config.MaxHops
	if maxHops <= 0 {
		maxHops = 4
	}
	maxCost := config.MaxCost
	if maxCost <= 0 {
		maxCost = 3.0
	}
	var allow map[EdgeKind]bool
	if config.EdgeKinds != nil {
		allow = make(map[EdgeKind]bool, len(config.EdgeKinds))
		for _, k := range config.EdgeKinds {
			allow[k] = true
		}
	}

	adj := newAdjacency(g)
	dist := map[string]float64{sourceID: 0}
	prev := map[string]reachPrev{}
	visited := map[string]bool{}
	h := &reachHeap{{distance: 0, nodeID: sourceID}}
	heap.Init(h)

	results := []ReachedNode{}
	for h.Len() > 0 {
		entry := heap.Pop(h).(reachEntry)
		current := entry.nodeID
		if visited[current] {
			continue
		}
		visited[current] = true

		if current != sourceID {
			n := g.nodes[current]
			results = append(results, ReachedNode{
				NodeID:    current,
				Label:     n.Label,
				Kind:      n.Kind,
				RiskLevel: n.RiskLevel,
				Distance:  entry.distance,
				Relevance: 1.0 / (1.0 + entry.distance),
				Hops:      entry.hops,
				Path:      reachPath(g, prev, sourceID, current),
			})
			if len(results) >= budget {
				break
			}
		}
		if entry.hops >= maxHops {
			continue
		}

		edges := adj.out[current]
		if config.Bidirectional {
			edges = append(append([]*Edge(nil), edges...), adj.in[current]...)
		}
		for _, e := range edges {
			if allow != nil && !allow[e.Kind] {
				continue
			}
			neighbor := e.TargetID
			if neighbor == current {
				neighbor = e.SourceID
			}
			if visited[neighbor] {
				continue
			}
			d := entry.distance + edgeCost(e)
			if d > maxCost {
				continue
			}
			if old, ok := dist[neighbor]; !ok || d < old {
				dist[neighbor] = d
				prev[neighbor] = reachPrev{from: current, edge: e}
				heap.Push(h, reachEntry{distance: d, nodeID: neighbor, hops: entry.hops + 1})
			}
		}
	}

	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}

func reachPath(g *Graph, prev map[string]reachPrev, source, target string) []Hop {
	var path []Hop
	for current := target; current != source; {
		p, ok := prev[current]
		if !ok {
			break
		}
		path = append(path, Hop{
			EdgeID: p.edge.ID,
			Kind:   p.edge.Kind,
			NodeID: current,
			Label:  g.nodes[current].Label,
		})
		current = p.from
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
