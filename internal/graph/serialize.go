package graph

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SchemaVersion is written into every payload. Payloads without a version are
// read as version 1.
const SchemaVersion = 1

type nodeJSON struct {
	ID        string          `json:"id"`
	Kind      NodeKind        `json:"kind"`
	Label     string          `json:"label"`
	RiskScore int             `json:"riskScore"`
	RiskLevel RiskLevel       `json:"riskLevel"`
	Metadata  json.RawMessage `json:"metadata"`
	FirstSeen int64           `json:"firstSeen"`
	LastSeen  int64           `json:"lastSeen"`
}

// MarshalJSON writes the node with its metadata variant inline
func (n Node) MarshalJSON() ([]byte, error) {
	m := n.Metadata
	if m == nil {
		m = defaultMetadata(n.Kind)
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata of %s: %w", n.ID, err)
	}
	return json.Marshal(nodeJSON{
		ID:        n.ID,
		Kind:      n.Kind,
		Label:     n.Label,
		RiskScore: n.RiskScore,
		RiskLevel: n.RiskLevel,
		Metadata:  raw,
		FirstSeen: n.FirstSeen,
		LastSeen:  n.LastSeen,
	})
}

// UnmarshalJSON decodes the metadata variant selected by the node's kind
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Kind.IsValid() {
		return fmt.Errorf("node %q: unknown kind %q", raw.ID, raw.Kind)
	}
	meta, err := decodeMetadata(raw.Kind, raw.Metadata)
	if err != nil {
		return fmt.Errorf("node %q: %w", raw.ID, err)
	}
	*n = Node{
		ID:        raw.ID,
		Kind:      raw.Kind,
		Label:     raw.Label,
		RiskScore: raw.RiskScore,
		RiskLevel: raw.RiskLevel,
		Metadata:  meta,
		FirstSeen: raw.FirstSeen,
		LastSeen:  raw.LastSeen,
	}
	return nil
}

func defaultMetadata(kind NodeKind) Metadata {
	switch kind {
	case KindExtension:
		return ExtensionMetadata{TargetDomains: []string{}}
	case KindAIProvider:
		return AIProviderMetadata{Models: []string{}}
	default:
		return DomainMetadata{}
	}
}

func decodeMetadata(kind NodeKind, raw json.RawMessage) (Metadata, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return defaultMetadata(kind), nil
	}
	var (
		m   Metadata
		err error
	)
	switch kind {
	case KindDomain:
		var d DomainMetadata
		err = json.Unmarshal(raw, &d)
		m = d
	case KindExtension:
		var e ExtensionMetadata
		err = json.Unmarshal(raw, &e)
		m = e
	case KindAIProvider:
		var a AIProviderMetadata
		err = json.Unmarshal(raw, &a)
		m = a
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s metadata: %w", kind, err)
	}
	return m.clone(), nil
}

type payload struct {
	Version     *int    `json:"version,omitempty"`
	Nodes       *[]Node `json:"nodes"`
	Edges       *[]Edge `json:"edges"`
	LastUpdated int64   `json:"lastUpdated"`
}

// Serialize flattens g into JSON: nodes and edges sorted by id plus
// lastUpdated. Stats are derived state and are never written.
func Serialize(g *Graph) (string, error) {
	v := SchemaVersion
	nodes := g.Nodes()
	edges := g.Edges()
	data, err := json.Marshal(payload{
		Version:     &v,
		Nodes:       &nodes,
		Edges:       &edges,
		LastUpdated: g.lastUpdated,
	})
	if err != nil {
		return "", fmt.Errorf("serializing graph: %w", err)
	}
	return string(data), nil
}

// Deserialize restores a graph from Serialize output. The payload is
// validated as a whole; on any problem a *DeserializationError is returned
// and no partial graph escapes. Risk levels are re-derived from scores and
// stats are always recomputed.
func Deserialize(text string) (*Graph, error) {
	var p payload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, deserializationErr(err, "invalid payload")
	}
	if p.Version != nil && (*p.Version < 1 || *p.Version > SchemaVersion) {
		return nil, deserializationErr(nil, "unsupported version %d", *p.Version)
	}
	if p.Nodes == nil {
		return nil, deserializationErr(nil, "missing nodes array")
	}
	if p.Edges == nil {
		return nil, deserializationErr(nil, "missing edges array")
	}

	g := New()
	for i, n := range *p.Nodes {
		if err := validateNode(n); err != nil {
			return nil, deserializationErr(err, "node %d", i)
		}
		if _, dup := g.nodes[n.ID]; dup {
			return nil, deserializationErr(nil, "duplicate node %s", n.ID)
		}
		c := n.clone()
		c.RiskScore = clampScore(c.RiskScore)
		c.RiskLevel = LevelForScore(c.RiskScore)
		g.nodes[c.ID] = &c
	}
	for i, e := range *p.Edges {
		if err := validateEdge(g, e); err != nil {
			return nil, deserializationErr(err, "edge %d", i)
		}
		if _, dup := g.edges[e.ID]; dup {
			return nil, deserializationErr(nil, "duplicate edge %s", e.ID)
		}
		c := e
		g.edges[c.ID] = &c
	}

	g.lastUpdated = p.LastUpdated
	RecomputeStats(g)
	return g, nil
}

func validateNode(n Node) error {
	prefix := string(n.Kind) + ":"
	if !strings.HasPrefix(n.ID, prefix) || len(n.ID) == len(prefix) {
		return fmt.Errorf("%w: id %q does not match kind %s", ErrInvalidNode, n.ID, n.Kind)
	}
	return nil
}

func validateEdge(g *Graph, e Edge) error {
	if !e.Kind.IsValid() {
		return fmt.Errorf("%w: kind %q", ErrInvalidEdge, e.Kind)
	}
	if e.SourceID == e.TargetID {
		return fmt.Errorf("%w: %s", ErrSelfLoop, e.SourceID)
	}
	if _, ok := g.nodes[e.SourceID]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, e.SourceID)
	}
	if _, ok := g.nodes[e.TargetID]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, e.TargetID)
	}
	if want := EdgeID(e.SourceID, e.Kind, e.TargetID); e.ID != want {
		return fmt.Errorf("%w: id %q, expected %q", ErrInvalidEdge, e.ID, want)
	}
	if e.Weight < 1 {
		return fmt.Errorf("%w: weight %d", ErrInvalidEdge, e.Weight)
	}
	return nil
}
