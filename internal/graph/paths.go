package graph

import (
	"container/heap"
	"math"
	"sort"
)

// Traversal bounds and weighting for attack-path discovery
const (
	DefaultMaxPathDepth      = 3
	MaxPathDepthLimit        = 6
	DefaultPathLimit         = 10
	SensitiveExfilMultiplier = 1.5
)

// AttackPath is a chain of node ids starting at a high-risk seed
type AttackPath struct {
	NodeIDs        []string `json:"nodeIds"`
	Score          float64  `json:"score"`
	SensitiveExfil bool     `json:"sensitiveExfil,omitempty"`
}

// PathOptions bounds the search. MaxDepth counts edges and is capped at
// MaxPathDepthLimit.
type PathOptions struct {
	MaxDepth            int
	Limit               int
	SensitiveMultiplier float64
}

// DefaultPathOptions returns the bounds used for Stats.CriticalPaths
func DefaultPathOptions() PathOptions {
	return PathOptions{
		MaxDepth:            DefaultMaxPathDepth,
		Limit:               DefaultPathLimit,
		SensitiveMultiplier: SensitiveExfilMultiplier,
	}
}

// FindCriticalPaths returns at most DefaultPathLimit ranked attack paths
func FindCriticalPaths(g *Graph) []AttackPath {
	return FindCriticalPathsWith(g, DefaultPathOptions())
}

// FindCriticalPathsWith seeds a bounded depth-first search at every critical
// or high node and follows outgoing edges without revisiting a node. A path is
// complete when it can't be extended or has reached MaxDepth edges. Paths are
// ranked by score descending, then length ascending, then node ids.
//
// Only the best Limit paths are kept. A partial path is abandoned as soon as
// no completion of it could displace the current worst kept path.
func FindCriticalPathsWith(g *Graph, opts PathOptions) []AttackPath {
	opts = opts.normalized()

	s := &pathSearch{
		g:      g,
		adj:    newAdjacency(g),
		opts:   opts,
		boost:  math.Max(opts.SensitiveMultiplier, 1),
		onPath: make(map[string]bool, opts.MaxDepth+1),
		top:    make(pathHeap, 0, opts.Limit),
	}
	for _, n := range g.nodes {
		s.maxScore = max(s.maxScore, n.RiskScore)
	}

	for _, id := range g.NodeIDs() {
		seed := g.nodes[id]
		if seed.RiskLevel != LevelCritical && seed.RiskLevel != LevelHigh {
			continue
		}
		s.onPath[id] = true
		s.extend([]string{id}, seed.RiskScore)
		delete(s.onPath, id)
	}

	paths := make([]AttackPath, len(s.top))
	copy(paths, s.top)
	sort.Slice(paths, func(i, j int) bool { return betterPath(paths[i], paths[j]) })
	return paths
}

func (o PathOptions) normalized() PathOptions {
	o.MaxDepth = max(0, min(o.MaxDepth, MaxPathDepthLimit))
	if o.Limit <= 0 {
		o.Limit = DefaultPathLimit
	}
	if o.SensitiveMultiplier <= 0 {
		o.SensitiveMultiplier = 1
	}
	return o
}

type pathSearch struct {
	g        *Graph
	adj      *adjacency
	opts     PathOptions
	maxScore int
	boost    float64
	onPath   map[string]bool
	top      pathHeap
}

// extend walks every simple path starting with path. sum is the risk total of path.
func (s *pathSearch) extend(path []string, sum int) {
	if !s.canImprove(path, sum) {
		return
	}

	extended := false
	if len(path)-1 < s.opts.MaxDepth {
		prev := ""
		for _, e := range s.adj.out[path[len(path)-1]] {
			next := e.TargetID
			if next == prev || s.onPath[next] {
				continue
			}
			prev = next
			extended = true
			s.onPath[next] = true
			s.extend(append(path, next), sum+s.g.nodes[next].RiskScore)
			delete(s.onPath, next)
		}
	}
	if !extended {
		s.offer(scorePath(s.g, append([]string(nil), path...), s.opts.SensitiveMultiplier))
	}
}

// canImprove reports whether some completion of path could still enter the
// kept set. A completion with m nodes scores at most
// (sum + maxScore*(m-len(path))) * boost.
func (s *pathSearch) canImprove(path []string, sum int) bool {
	if len(s.top) < s.opts.Limit {
		return true
	}
	worst := s.top[0]
	bound := float64(sum+s.maxScore*(s.opts.MaxDepth+1-len(path))) * s.boost
	if bound != worst.Score {
		return bound > worst.Score
	}

	// At best a tie: a completion has to be shorter, or as long and lexicographically smaller
	n := len(worst.NodeIDs)
	if len(path) > n {
		return false
	}
	if len(path) < n && float64(sum+s.maxScore*(n-1-len(path)))*s.boost >= worst.Score {
		return true
	}
	return !lessIDs(worst.NodeIDs[:len(path)], path)
}

func (s *pathSearch) offer(p AttackPath) {
	if len(s.top) < s.opts.Limit {
		heap.Push(&s.top, p)
		return
	}
	if betterPath(p, s.top[0]) {
		s.top[0] = p
		heap.Fix(&s.top, 0)
	}
}

// betterPath orders by score descending, length ascending, then node ids
func betterPath(a, b AttackPath) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if len(a.NodeIDs) != len(b.NodeIDs) {
		return len(a.NodeIDs) < len(b.NodeIDs)
	}
	return lessIDs(a.NodeIDs, b.NodeIDs)
}

// pathHeap keeps the worst kept path at the root
type pathHeap []AttackPath

func (h pathHeap) Len() int           { return len(h) }
func (h pathHeap) Less(i, j int) bool { return betterPath(h[j], h[i]) }
func (h pathHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *pathHeap) Push(x any)        { *h = append(*h, x.(AttackPath)) }
func (h *pathHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func scorePath(g *Graph, ids []string, multiplier float64) AttackPath {
	total := 0
	for _, id := range ids {
		total += g.nodes[id].RiskScore
	}
	p := AttackPath{NodeIDs: ids, Score: float64(total)}
	if endsInSensitiveExfil(g, ids) {
		p.SensitiveExfil = true
		p.Score *= multiplier
	}
	return p
}

// endsInSensitiveExfil reports a path ending domain -> ai_provider where the
// domain carries sensitive-data classifications
func endsInSensitiveExfil(g *Graph, ids []string) bool {
	if len(ids) < 2 {
		return false
	}
	last := g.nodes[ids[len(ids)-1]]
	if last.Kind != KindAIProvider {
		return false
	}
	m, ok := g.nodes[ids[len(ids)-2]].Domain()
	return ok && len(m.SensitiveDataTypes) > 0
}

func lessIDs(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
