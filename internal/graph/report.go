package graph

import (
	"math"
	"sort"
)

// ExposureBreakdown shows the sub-scores of the exposure formula, each 0-1
type ExposureBreakdown struct {
	RiskyNodes   float64 `json:"riskyNodes"`
	Exfiltration float64 `json:"exfiltration"`
	Chokepoints  float64 `json:"chokepoints"`
	Dormancy     float64 `json:"dormancy"`
}

// Hub is a node with many distinct neighbors
type Hub struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Kind      NodeKind  `json:"kind"`
	RiskLevel RiskLevel `json:"riskLevel"`
	Degree    int       `json:"degree"`
	InDegree  int       `json:"inDegree"`
	OutDegree int       `json:"outDegree"`
}

// Report is the full analysis of one graph
type Report struct {
	ExposureScore     float64           `json:"exposureScore"`
	ExposureBreakdown ExposureBreakdown `json:"exposureBreakdown"`
	Stats             Stats             `json:"stats"`
	Paths             []AttackPath      `json:"paths"`
	Hubs              []Hub             `json:"hubs"`
	Chokepoints       *ChokepointReport `json:"chokepoints"`
	Dormant           *DormantReport    `json:"dormant"`
}

// AnalyzerConfig holds analysis parameters
type AnalyzerConfig struct {
	Paths        PathOptions
	HubThreshold int
	TopN         int
	StaleDays    int64
	RecentDays   int64
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *AnalyzerConfig {
	return &AnalyzerConfig{
		Paths:        DefaultPathOptions(),
		HubThreshold: 5,
		TopN:         20,
		StaleDays:    30,
		RecentDays:   7,
	}
}

// Analyze runs every pass over g and combines them into an exposure score.
// Higher means more exposed.
func Analyze(g *Graph, config *AnalyzerConfig) *Report {
	if config == nil {
		config = DefaultConfig()
	}
	stats := g.Stats()
	paths := FindCriticalPathsWith(g, config.Paths)
	hubs := findHubs(g, config.HubThreshold, config.TopN)
	choke := FindChokepoints(g)
	dormant := FindDormant(g, config.StaleDays, config.RecentDays, g.now())

	total := float64(stats.TotalNodes)
	var b ExposureBreakdown
	if total > 0 {
		risky := float64(stats.RiskDistribution[LevelCritical] + stats.RiskDistribution[LevelHigh])
		b.RiskyNodes = clamp(math.Min(risky/total, 0.2)*5.0, 0, 1)
		b.Dormancy = clamp(math.Min(float64(dormant.Count)/total, 0.1)*10.0, 0, 1)
	}
	b.Exfiltration = sensitivePromptShare(g)
	if choke.ChokepointCount > 0 {
		risky := 0
		for _, c := range choke.Chokepoints {
			if c.RiskScore >= MediumThreshold {
				risky++
			}
		}
		b.Chokepoints = float64(risky) / float64(choke.ChokepointCount)
	}

	return &Report{
		ExposureScore:     0.35*b.RiskyNodes + 0.30*b.Exfiltration + 0.20*b.Chokepoints + 0.15*b.Dormancy,
		ExposureBreakdown: b,
		Stats:             stats,
		Paths:             paths,
		Hubs:              hubs,
		Chokepoints:       choke,
		Dormant:           dormant,
	}
}

// sensitivePromptShare is the fraction of ai_prompt observations that came
// from domains carrying sensitive-data classifications
func sensitivePromptShare(g *Graph) float64 {
	var all, sensitive int
	for _, e := range g.edges {
		if e.Kind != EdgeAIPrompt {
			continue
		}
		all += e.Weight
		if m, ok := g.nodes[e.SourceID].Domain(); ok && len(m.SensitiveDataTypes) > 0 {
			sensitive += e.Weight
		}
	}
	if all == 0 {
		return 0
	}
	return float64(sensitive) / float64(all)
}

// findHubs returns nodes whose distinct-neighbor degree reaches threshold
func findHubs(g *Graph, threshold, topN int) []Hub {
	adj := newAdjacency(g)
	hubs := []Hub{}
	for _, id := range g.NodeIDs() {
		degree := adj.degree(id)
		if degree < threshold {
			continue
		}
		n := g.nodes[id]
		hubs = append(hubs, Hub{
			ID:        id,
			Label:     n.Label,
			Kind:      n.Kind,
			RiskLevel: n.RiskLevel,
			Degree:    degree,
			InDegree:  len(adj.in[id]),
			OutDegree: len(adj.out[id]),
		})
	}
	sort.SliceStable(hubs, func(i, j int) bool { return hubs[i].Degree > hubs[j].Degree })
	if topN > 0 && len(hubs) > topN {
		hubs = hubs[:topN]
	}
	return hubs
}

func clamp(val, lo, hi float64) float64 {
	return math.Max(lo, math.Min(val, hi))
}
