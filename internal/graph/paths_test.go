package graph

import (
	"fmt"
	"reflect"
	"sort"
	"testing"
	"time"

	"pleno/audit/internal/telemetry"
)

func TestPaths_BoundedWithManySeeds(t *testing.T) {
	var services []telemetry.DetectedService
	for i := 0; i < 20; i++ {
		services = append(services, telemetry.DetectedService{
			Domain:          fmt.Sprintf("nrd-%02d.xyz", i),
			NRDResult:       &telemetry.NRDResult{IsNRD: true, Confidence: "high"},
			TyposquatResult: &telemetry.TyposquatResult{IsTyposquat: true, Confidence: "high"},
		})
	}
	g := Build(services, nil)
	paths := g.CriticalPaths()
	if len(paths) != DefaultPathLimit {
		t.Fatalf("expected %d paths, got %d", DefaultPathLimit, len(paths))
	}
	for _, p := range paths {
		if len(p.NodeIDs) != 1 {
			t.Errorf("isolated seed should yield a trivial path, got %v", p.NodeIDs)
		}
	}
	if paths[0].NodeIDs[0] != "domain:nrd-00.xyz" {
		t.Errorf("ties should break by node id, got %s first", paths[0].NodeIDs[0])
	}
}

func TestPaths_NoSeeds(t *testing.T) {
	g := testGraph(t, []Node{NewDomainNode("a.com"), NewDomainNode("b.com")},
		[][3]string{{"domain:a.com", "domain:b.com", "requests"}})
	if paths := FindCriticalPaths(g); len(paths) != 0 {
		t.Errorf("expected no paths without high-risk nodes, got %v", paths)
	}
}

func TestPaths_SensitiveExfilRanksFirst(t *testing.T) {
	app := NewDomainNode("app.com").WithMetadata(DomainMetadata{
		IsNRD: true, NRDConfidence: "high",
		IsTyposquat: true, TyposquatConfidence: "high",
		SensitiveDataTypes: []string{"credit_card"},
	})
	g := testGraph(t, []Node{app, NewDomainNode("b.com"), NewAIProviderNode("openai")}, [][3]string{
		{"domain:app.com", "domain:b.com", "requests"},
		{"domain:app.com", "ai_provider:openai", "ai_prompt"},
	})

	paths := FindCriticalPaths(g)
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
	first := paths[0]
	if !reflect.DeepEqual(first.NodeIDs, []string{"domain:app.com", "ai_provider:openai"}) {
		t.Errorf("expected exfil path first, got %v", first.NodeIDs)
	}
	if !first.SensitiveExfil || first.Score != 120 {
		t.Errorf("expected weighted score 120, got %v (exfil=%v)", first.Score, first.SensitiveExfil)
	}
	if paths[1].SensitiveExfil || paths[1].Score != 80 {
		t.Errorf("expected plain score 80, got %v", paths[1].Score)
	}
}

func TestPaths_NoExfilWithoutClassifications(t *testing.T) {
	g := testGraph(t, []Node{riskyDomain("app.com"), NewAIProviderNode("openai")},
		[][3]string{{"domain:app.com", "ai_provider:openai", "ai_prompt"}})
	paths := FindCriticalPaths(g)
	if len(paths) != 1 || paths[0].SensitiveExfil || paths[0].Score != 80 {
		t.Errorf("unexpected paths %+v", paths)
	}
}

func TestPaths_MaxDepth(t *testing.T) {
	g := testGraph(t, []Node{
		riskyDomain("a.com"), NewDomainNode("b.com"), NewDomainNode("c.com"),
		NewDomainNode("d.com"), NewDomainNode("e.com"),
	}, [][3]string{
		{"domain:a.com", "domain:b.com", "requests"},
		{"domain:b.com", "domain:c.com", "requests"},
		{"domain:c.com", "domain:d.com", "requests"},
		{"domain:d.com", "domain:e.com", "requests"},
	})
	paths := FindCriticalPaths(g)
	if len(paths) != 1 {
		t.Fatalf("expected 1 path, got %d", len(paths))
	}
	want := []string{"domain:a.com", "domain:b.com", "domain:c.com", "domain:d.com"}
	if !reflect.DeepEqual(paths[0].NodeIDs, want) {
		t.Errorf("expected %v, got %v", want, paths[0].NodeIDs)
	}

	paths = FindCriticalPathsWith(g, PathOptions{MaxDepth: 1, Limit: 5})
	if len(paths) != 1 || len(paths[0].NodeIDs) != 2 {
		t.Errorf("expected one 2-node path at depth 1, got %v", paths)
	}
}

func TestPaths_NoRevisits(t *testing.T) {
	g := testGraph(t, []Node{riskyDomain("a.com"), NewDomainNode("b.com")}, [][3]string{
		{"domain:a.com", "domain:b.com", "requests"},
		{"domain:b.com", "domain:a.com", "requests"},
	})
	paths := FindCriticalPaths(g)
	if len(paths) != 1 {
		t.Fatalf("expected 1 path, got %d", len(paths))
	}
	if !reflect.DeepEqual(paths[0].NodeIDs, []string{"domain:a.com", "domain:b.com"}) {
		t.Errorf("unexpected path %v", paths[0].NodeIDs)
	}
}

func TestPaths_Branching(t *testing.T) {
	g := testGraph(t, []Node{riskyDomain("a.com"), NewDomainNode("b.com"), NewDomainNode("c.com")}, [][3]string{
		{"domain:a.com", "domain:b.com", "requests"},
		{"domain:a.com", "domain:c.com", "requests"},
	})
	paths := FindCriticalPathsWith(g, PathOptions{Limit: 1})
	if len(paths) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(paths))
	}
	if paths[0].NodeIDs[1] != "domain:b.com" {
		t.Errorf("expected lexicographic tie-break, got %v", paths[0].NodeIDs)
	}
}

func TestPaths_DenseGraphStaysBounded(t *testing.T) {
	const n = 60
	var nodes []Node
	for i := 0; i < n; i++ {
		nodes = append(nodes, riskyDomain(fmt.Sprintf("d%02d.xyz", i)))
	}
	var edges [][3]string
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				edges = append(edges, [3]string{nodes[i].ID, nodes[j].ID, "requests"})
			}
		}
	}
	g := testGraph(t, nodes, edges)

	start := time.Now()
	paths := g.CriticalPaths()
	elapsed := time.Since(start)

	if elapsed > 2*time.Second {
		t.Errorf("expected dense graph paths within 2s, took %s", elapsed)
	}
	if len(paths) != DefaultPathLimit {
		t.Fatalf("expected %d paths, got %d", DefaultPathLimit, len(paths))
	}
	want := []string{"domain:d00.xyz", "domain:d01.xyz", "domain:d02.xyz", "domain:d03.xyz"}
	if !reflect.DeepEqual(paths[0].NodeIDs, want) || paths[0].Score != 320 {
		t.Errorf("expected %v scoring 320, got %v scoring %v", want, paths[0].NodeIDs, paths[0].Score)
	}
	last := []string{"domain:d00.xyz", "domain:d01.xyz", "domain:d02.xyz", "domain:d12.xyz"}
	if !reflect.DeepEqual(paths[9].NodeIDs, last) {
		t.Errorf("expected %v last, got %v", last, paths[9].NodeIDs)
	}
}

func TestPaths_DepthIsCapped(t *testing.T) {
	var nodes []Node
	var edges [][3]string
	nodes = append(nodes, riskyDomain("h00.com"))
	for i := 1; i <= MaxPathDepthLimit+3; i++ {
		nodes = append(nodes, NewDomainNode(fmt.Sprintf("h%02d.com", i)))
		edges = append(edges, [3]string{nodes[i-1].ID, nodes[i].ID, "requests"})
	}
	g := testGraph(t, nodes, edges)

	paths := FindCriticalPathsWith(g, PathOptions{MaxDepth: 100, Limit: 1})
	if len(paths) != 1 || len(paths[0].NodeIDs) != MaxPathDepthLimit+1 {
		t.Errorf("expected a %d-node path, got %v", MaxPathDepthLimit+1, paths)
	}
}

// allPaths ranks every complete simple path without any pruning
func allPaths(g *Graph, opts PathOptions) []AttackPath {
	adj := newAdjacency(g)
	var out []AttackPath
	var walk func(path []string)
	walk = func(path []string) {
		extended := false
		if len(path)-1 < opts.MaxDepth {
			seen := map[string]bool{}
			for _, e := range adj.out[path[len(path)-1]] {
				next := e.TargetID
				if seen[next] || contains(path, next) {
					continue
				}
				seen[next] = true
				extended = true
				walk(append(append([]string(nil), path...), next))
			}
		}
		if !extended {
			out = append(out, scorePath(g, path, opts.SensitiveMultiplier))
		}
	}
	for _, id := range g.NodeIDs() {
		if lvl := g.nodes[id].RiskLevel; lvl == LevelCritical || lvl == LevelHigh {
			walk([]string{id})
		}
	}
	sort.Slice(out, func(i, j int) bool { return betterPath(out[i], out[j]) })
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func scoredExtension(id string, score int) Node {
	return NewExtensionNode(id, "").WithMetadata(ExtensionMetadata{ExternalRisk: &score})
}

func TestPaths_MatchExhaustiveRanking(t *testing.T) {
	leak := riskyDomain("leak.com").WithMetadata(DomainMetadata{SensitiveDataTypes: []string{"pii"}})
	nodes := []Node{
		scoredExtension("ext-a", 95), scoredExtension("ext-b", 70), scoredExtension("ext-c", 62),
		riskyDomain("bad.com"), leak, NewDomainNode("cdn.net"), NewDomainNode("plain.org"),
		NewAIProviderNode("openai"), NewAIProviderNode("claude"),
	}
	edges := [][3]string{
		{"extension:ext-a", "domain:bad.com", "extension_activity"},
		{"extension:ext-a", "domain:leak.com", "extension_activity"},
		{"extension:ext-a", "domain:cdn.net", "extension_activity"},
		{"extension:ext-b", "domain:leak.com", "extension_activity"},
		{"extension:ext-b", "domain:plain.org", "extension_activity"},
		{"extension:ext-c", "domain:cdn.net", "extension_activity"},
		{"domain:bad.com", "domain:cdn.net", "requests"},
		{"domain:bad.com", "domain:leak.com", "requests"},
		{"domain:leak.com", "domain:bad.com", "requests"},
		{"domain:leak.com", "ai_provider:openai", "ai_prompt"},
		{"domain:leak.com", "ai_provider:claude", "ai_prompt"},
		{"domain:cdn.net", "domain:plain.org", "requests"},
		{"domain:plain.org", "domain:cdn.net", "requests"},
		{"domain:plain.org", "ai_provider:claude", "ai_prompt"},
	}
	g := testGraph(t, nodes, edges)

	for depth := 0; depth <= 4; depth++ {
		for limit := 1; limit <= 12; limit++ {
			opts := PathOptions{MaxDepth: depth, Limit: limit, SensitiveMultiplier: SensitiveExfilMultiplier}
			got := FindCriticalPathsWith(g, opts)
			want := allPaths(g, opts)
			if !reflect.DeepEqual(got, want) {
				t.Errorf("depth=%d limit=%d:\nexpected %v\ngot      %v", depth, limit, want, got)
			}
		}
	}
}
