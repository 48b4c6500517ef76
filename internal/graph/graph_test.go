package graph

import (
	"errors"
	"reflect"
	"testing"
)

func testGraph(t *testing.T, nodes []Node, edges [][3]string) *Graph {
	t.Helper()
	g := New()
	g.now = func() int64 { return 1_700_000_000_000 }
	for _, n := range nodes {
		if err := g.UpsertNode(n); err != nil {
			t.Fatalf("upsert %s: %v", n.ID, err)
		}
	}
	for _, e := range edges {
		if err := g.UpsertEdge(e[0], e[1], EdgeKind(e[2]), 0); err != nil {
			t.Fatalf("upsert edge %v: %v", e, err)
		}
	}
	return g
}

func riskyDomain(host string) Node {
	return NewDomainNode(host).WithMetadata(DomainMetadata{
		IsNRD: true, NRDConfidence: "high",
		IsTyposquat: true, TyposquatConfidence: "high",
	})
}

// --- Identity & upserts ---

func TestNodeID(t *testing.T) {
	if got := NewDomainNode("Example.COM:443").ID; got != "domain:example.com" {
		t.Errorf("expected domain:example.com, got %s", got)
	}
	if got := NewAIProviderNode("").ID; got != "ai_provider:unknown" {
		t.Errorf("expected ai_provider:unknown, got %s", got)
	}
	if got := NewExtensionNode("abc", "").Label; got != "abc" {
		t.Errorf("expected label to fall back to id, got %s", got)
	}
	if got := EdgeID("domain:a", EdgeRequests, "domain:b"); got != "domain:a:requests:domain:b" {
		t.Errorf("unexpected edge id %s", got)
	}
}

func TestUpsertNode_Idempotent(t *testing.T) {
	g := testGraph(t, []Node{NewDomainNode("a.com"), NewDomainNode("a.com"), NewDomainNode("A.com")}, nil)
	if g.NodeCount() != 1 {
		t.Errorf("expected 1 node, got %d", g.NodeCount())
	}
}

func TestUpsertNode_Merge(t *testing.T) {
	g := testGraph(t, []Node{
		NewDomainNode("a.com").WithSeen(200).WithMetadata(DomainMetadata{HasLogin: true, CSPViolations: 1}),
		NewDomainNode("a.com").WithSeen(100).WithMetadata(DomainMetadata{CSPViolations: 2, SensitiveDataTypes: []string{"email"}}),
		NewDomainNode("a.com").WithSeen(300).WithMetadata(DomainMetadata{SensitiveDataTypes: []string{"api_key", "email"}}),
	}, nil)

	n, ok := g.Node("domain:a.com")
	if !ok {
		t.Fatal("node missing")
	}
	m, _ := n.Domain()
	if !m.HasLogin {
		t.Error("hasLogin should survive a later update without it")
	}
	if m.CSPViolations != 3 {
		t.Errorf("expected 3 csp violations, got %d", m.CSPViolations)
	}
	if !reflect.DeepEqual(m.SensitiveDataTypes, []string{"api_key", "email"}) {
		t.Errorf("expected unioned sorted set, got %v", m.SensitiveDataTypes)
	}
	if n.FirstSeen != 100 || n.LastSeen != 300 {
		t.Errorf("expected seen range 100..300, got %d..%d", n.FirstSeen, n.LastSeen)
	}
	// login without privacy 15 + 3 csp violations 15
	if n.RiskScore != 30 || n.RiskLevel != LevelLow {
		t.Errorf("expected 30/low, got %d/%s", n.RiskScore, n.RiskLevel)
	}
}

func TestUpsertNode_KindConflict(t *testing.T) {
	g := testGraph(t, []Node{NewDomainNode("a.com")}, nil)
	err := g.UpsertNode(Node{ID: "domain:a.com", Kind: KindExtension, Metadata: ExtensionMetadata{}})
	if !errors.Is(err, ErrKindConflict) {
		t.Fatalf("expected ErrKindConflict, got %v", err)
	}
	n, _ := g.Node("domain:a.com")
	if n.Kind != KindDomain {
		t.Errorf("kind changed to %s", n.Kind)
	}
}

func TestUpsertNode_Invalid(t *testing.T) {
	g := New()
	if err := g.UpsertNode(Node{ID: "x", Kind: "bogus", Metadata: DomainMetadata{}}); !errors.Is(err, ErrInvalidNode) {
		t.Errorf("expected ErrInvalidNode for unknown kind, got %v", err)
	}
	if err := g.UpsertNode(Node{ID: "domain:x", Kind: KindDomain, Metadata: AIProviderMetadata{}}); !errors.Is(err, ErrInvalidNode) {
		t.Errorf("expected ErrInvalidNode for mismatched metadata, got %v", err)
	}
}

func TestUpsertEdge_Weight(t *testing.T) {
	g := testGraph(t, []Node{NewDomainNode("a.com"), NewDomainNode("b.com")}, [][3]string{
		{"domain:a.com", "domain:b.com", "requests"},
		{"domain:a.com", "domain:b.com", "requests"},
	})
	e, ok := g.Edge("domain:a.com:requests:domain:b.com")
	if !ok {
		t.Fatal("edge missing")
	}
	if e.Weight != 2 {
		t.Errorf("expected weight 2, got %d", e.Weight)
	}
	if g.EdgeCount() != 1 {
		t.Errorf("expected 1 edge, got %d", g.EdgeCount())
	}
}

func TestUpsertEdge_Rejects(t *testing.T) {
	g := testGraph(t, []Node{NewDomainNode("a.com")}, nil)
	if err := g.UpsertEdge("domain:a.com", "domain:a.com", EdgeRequests, 0); !errors.Is(err, ErrSelfLoop) {
		t.Errorf("expected ErrSelfLoop, got %v", err)
	}
	if err := g.UpsertEdge("domain:a.com", "domain:b.com", EdgeRequests, 0); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}
	if err := g.UpsertEdge("domain:a.com", "domain:b.com", "bogus", 0); !errors.Is(err, ErrInvalidEdge) {
		t.Errorf("expected ErrInvalidEdge, got %v", err)
	}
	if g.EdgeCount() != 0 {
		t.Errorf("expected no edges, got %d", g.EdgeCount())
	}
}

func TestUpsertEdge_TouchesEndpoints(t *testing.T) {
	g := testGraph(t, []Node{NewDomainNode("a.com").WithSeen(10), NewDomainNode("b.com").WithSeen(10)}, nil)
	if err := g.UpsertEdge("domain:a.com", "domain:b.com", EdgeRequests, 500); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"domain:a.com", "domain:b.com"} {
		n, _ := g.Node(id)
		if n.LastSeen != 500 {
			t.Errorf("%s: expected lastSeen 500, got %d", id, n.LastSeen)
		}
	}
}

func TestNode_ReturnsCopy(t *testing.T) {
	g := testGraph(t, []Node{NewDomainNode("a.com").WithMetadata(DomainMetadata{SensitiveDataTypes: []string{"email"}})}, nil)
	n, _ := g.Node("domain:a.com")
	m, _ := n.Domain()
	m.SensitiveDataTypes[0] = "changed"
	again, _ := g.Node("domain:a.com")
	if m2, _ := again.Domain(); m2.SensitiveDataTypes[0] != "email" {
		t.Errorf("graph state leaked through a returned node")
	}
}

// --- Stats ---

func TestStats_EmptyGraph(t *testing.T) {
	s := New().Stats()
	if s.TotalNodes != 0 || s.TotalEdges != 0 || len(s.CriticalPaths) != 0 {
		t.Errorf("empty graph should have all zeros, got nodes=%d edges=%d paths=%d",
			s.TotalNodes, s.TotalEdges, len(s.CriticalPaths))
	}
	for _, l := range AllRiskLevels() {
		if v, ok := s.RiskDistribution[l]; !ok || v != 0 {
			t.Errorf("risk level %s should be prefilled with 0", l)
		}
	}
	for _, k := range AllNodeKinds() {
		if _, ok := s.NodesByType[k]; !ok {
			t.Errorf("node kind %s should be prefilled", k)
		}
	}
}

func TestStats_Counts(t *testing.T) {
	g := testGraph(t, []Node{
		riskyDomain("evil.com"),
		NewDomainNode("b.com"),
		NewDomainNode("lonely.com"),
		NewAIProviderNode("openai"),
	}, [][3]string{
		{"domain:evil.com", "domain:b.com", "requests"},
		{"domain:evil.com", "ai_provider:openai", "ai_prompt"},
	})
	s := g.Stats()
	if s.TotalNodes != 4 || s.TotalEdges != 2 {
		t.Errorf("expected 4 nodes 2 edges, got %d/%d", s.TotalNodes, s.TotalEdges)
	}
	if s.NodesByType[KindDomain] != 3 || s.NodesByType[KindAIProvider] != 1 {
		t.Errorf("unexpected nodesByType %v", s.NodesByType)
	}
	if s.EdgesByType[EdgeRequests] != 1 || s.EdgesByType[EdgeAIPrompt] != 1 {
		t.Errorf("unexpected edgesByType %v", s.EdgesByType)
	}
	if s.RiskDistribution[LevelCritical] != 1 || s.RiskDistribution[LevelInfo] != 3 {
		t.Errorf("unexpected riskDistribution %v", s.RiskDistribution)
	}
	if s.Components != 2 {
		t.Errorf("expected 2 components, got %d", s.Components)
	}
	if s.IsolatedNodes != 1 {
		t.Errorf("expected 1 isolated node, got %d", s.IsolatedNodes)
	}
}

func TestStats_RefreshAfterUpsert(t *testing.T) {
	g := testGraph(t, []Node{NewDomainNode("a.com")}, nil)
	if g.Stats().TotalNodes != 1 {
		t.Fatal("expected 1 node")
	}
	if err := g.UpsertNode(NewDomainNode("b.com")); err != nil {
		t.Fatal(err)
	}
	if got := g.Stats().TotalNodes; got != 2 {
		t.Errorf("expected stats to follow the upsert, got %d", got)
	}
}

func TestStats_ReturnsCopy(t *testing.T) {
	g := testGraph(t, []Node{NewDomainNode("a.com")}, nil)
	s := g.Stats()
	s.NodesByType[KindDomain] = 99
	if g.Stats().NodesByType[KindDomain] != 1 {
		t.Error("stats map leaked")
	}
}
