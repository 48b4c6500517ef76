package graph

import (
	"sort"
	"strings"

	"pleno/audit/internal/telemetry"
)

// NodeKind is the type of a monitored entity
type NodeKind string

const (
	KindDomain     NodeKind = "domain"
	KindExtension  NodeKind = "extension"
	KindAIProvider NodeKind = "ai_provider"
)

// IsValid reports whether k is one of the known node kinds
func (k NodeKind) IsValid() bool {
	switch k {
	case KindDomain, KindExtension, KindAIProvider:
		return true
	default:
		return false
	}
}

// AllNodeKinds returns every node kind in a stable order
func AllNodeKinds() []NodeKind {
	return []NodeKind{KindDomain, KindExtension, KindAIProvider}
}

// EdgeKind is the type of an observed relationship
type EdgeKind string

const (
	EdgeRequests          EdgeKind = "requests"
	EdgeAIPrompt          EdgeKind = "ai_prompt"
	EdgeExtensionActivity EdgeKind = "extension_activity"
)

// IsValid reports whether k is one of the known edge kinds
func (k EdgeKind) IsValid() bool {
	switch k {
	case EdgeRequests, EdgeAIPrompt, EdgeExtensionActivity:
		return true
	default:
		return false
	}
}

// AllEdgeKinds returns every edge kind in a stable order
func AllEdgeKinds() []EdgeKind {
	return []EdgeKind{EdgeRequests, EdgeAIPrompt, EdgeExtensionActivity}
}

// Sentinel natural keys used whenever telemetry omits an identifier
const (
	UnknownProvider = "unknown"
	UnknownDomain   = "unknown"
)

// NodeID builds the stable identity "{kind}:{naturalKey}"
func NodeID(kind NodeKind, key string) string {
	return string(kind) + ":" + key
}

// EdgeID builds the identity "{sourceId}:{edgeKind}:{targetId}"
func EdgeID(sourceID string, kind EdgeKind, targetID string) string {
	return sourceID + ":" + string(kind) + ":" + targetID
}

// DomainNodeID returns the node id for a hostname
func DomainNodeID(domain string) string {
	return NodeID(KindDomain, telemetry.NormalizeHost(domain))
}

// AIProviderNodeID returns the node id for a provider name, using
// UnknownProvider when the name is empty
func AIProviderNodeID(name string) string {
	return NodeID(KindAIProvider, providerKey(name))
}

func providerKey(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return UnknownProvider
	}
	return key
}

// Metadata is the kind-specific payload of a node. The set of variants is
// closed: DomainMetadata, ExtensionMetadata and AIProviderMetadata.
type Metadata interface {
	Kind() NodeKind
	merge(update Metadata) Metadata
	clone() Metadata
}

// DomainMetadata describes a visited or contacted hostname. Detector verdicts,
// CSP violation counts and DLP classifications are kept so the node can be
// rescored from its own state.
type DomainMetadata struct {
	HasLogin            bool                 `json:"hasLogin"`
	HasPrivacyPolicy    bool                 `json:"hasPrivacyPolicy"`
	HasTermsOfService   bool                 `json:"hasTermsOfService"`
	CookieCount         int                  `json:"cookieCount"`
	SessionCookieCount  int                  `json:"sessionCookieCount"`
	IsNRD               bool                 `json:"isNRD,omitempty"`
	NRDConfidence       telemetry.Confidence `json:"nrdConfidence,omitempty"`
	IsTyposquat         bool                 `json:"isTyposquat,omitempty"`
	TyposquatConfidence telemetry.Confidence `json:"typosquatConfidence,omitempty"`
	CSPViolations       int                  `json:"cspViolations,omitempty"`
	SensitiveDataTypes  []string             `json:"sensitiveDataTypes,omitempty"`
}

// Kind implements Metadata
func (DomainMetadata) Kind() NodeKind { return KindDomain }

func (m DomainMetadata) merge(update Metadata) Metadata {
	u, ok := update.(DomainMetadata)
	if !ok {
		return m
	}
	m.HasLogin = m.HasLogin || u.HasLogin
	m.HasPrivacyPolicy = m.HasPrivacyPolicy || u.HasPrivacyPolicy
	m.HasTermsOfService = m.HasTermsOfService || u.HasTermsOfService
	if u.CookieCount > 0 {
		m.CookieCount = u.CookieCount
		m.SessionCookieCount = u.SessionCookieCount
	}
	m.IsNRD = m.IsNRD || u.IsNRD
	if isSet(u.NRDConfidence) {
		m.NRDConfidence = u.NRDConfidence
	}
	m.IsTyposquat = m.IsTyposquat || u.IsTyposquat
	if isSet(u.TyposquatConfidence) {
		m.TyposquatConfidence = u.TyposquatConfidence
	}
	m.CSPViolations += u.CSPViolations
	m.SensitiveDataTypes = union(m.SensitiveDataTypes, u.SensitiveDataTypes...)
	return m
}

func (m DomainMetadata) clone() Metadata {
	m.SensitiveDataTypes = union(nil, m.SensitiveDataTypes...)
	return m
}

// ExtensionMetadata describes a browser extension's network activity.
// ExternalRisk is set by the extension risk analyzer when it has a verdict.
type ExtensionMetadata struct {
	RequestCount  int      `json:"requestCount"`
	TargetDomains []string `json:"targetDomains"`
	ExternalRisk  *int     `json:"externalRisk,omitempty"`
}

// Kind implements Metadata
func (ExtensionMetadata) Kind() NodeKind { return KindExtension }

func (m ExtensionMetadata) merge(update Metadata) Metadata {
	u, ok := update.(ExtensionMetadata)
	if !ok {
		return m
	}
	m.RequestCount += u.RequestCount
	m.TargetDomains = union(m.TargetDomains, u.TargetDomains...)
	if u.ExternalRisk != nil {
		r := *u.ExternalRisk
		m.ExternalRisk = &r
	}
	return m
}

func (m ExtensionMetadata) clone() Metadata {
	m.TargetDomains = union(nil, m.TargetDomains...)
	if m.ExternalRisk != nil {
		r := *m.ExternalRisk
		m.ExternalRisk = &r
	}
	return m
}

// AIProviderMetadata describes prompt traffic to an AI service
type AIProviderMetadata struct {
	PromptCount   int      `json:"promptCount"`
	Models        []string `json:"models"`
	ResponseCount int      `json:"responseCount"`
}

// Kind implements Metadata
func (AIProviderMetadata) Kind() NodeKind { return KindAIProvider }

func (m AIProviderMetadata) merge(update Metadata) Metadata {
	u, ok := update.(AIProviderMetadata)
	if !ok {
		return m
	}
	m.PromptCount += u.PromptCount
	m.ResponseCount += u.ResponseCount
	m.Models = union(m.Models, u.Models...)
	return m
}

func (m AIProviderMetadata) clone() Metadata {
	m.Models = union(nil, m.Models...)
	return m
}

// Node is one monitored entity. Timestamps are Unix millis.
type Node struct {
	ID        string
	Kind      NodeKind
	Label     string
	RiskScore int
	RiskLevel RiskLevel
	Metadata  Metadata
	FirstSeen int64
	LastSeen  int64
}

// NewDomainNode creates a domain node keyed by its normalized hostname
func NewDomainNode(domain string) Node {
	host := telemetry.NormalizeHost(domain)
	return Node{
		ID:        NodeID(KindDomain, host),
		Kind:      KindDomain,
		Label:     host,
		RiskLevel: LevelInfo,
		Metadata:  DomainMetadata{},
	}
}

// NewExtensionNode creates an extension node. The label falls back to the id.
func NewExtensionNode(id, name string) Node {
	label := name
	if label == "" {
		label = id
	}
	return Node{
		ID:        NodeID(KindExtension, id),
		Kind:      KindExtension,
		Label:     label,
		RiskLevel: LevelInfo,
		Metadata:  ExtensionMetadata{TargetDomains: []string{}},
	}
}

// NewAIProviderNode creates an AI provider node; an empty name maps to UnknownProvider
func NewAIProviderNode(name string) Node {
	key := providerKey(name)
	label := strings.TrimSpace(name)
	if label == "" {
		label = UnknownProvider
	}
	return Node{
		ID:        NodeID(KindAIProvider, key),
		Kind:      KindAIProvider,
		Label:     label,
		RiskLevel: LevelInfo,
		Metadata:  AIProviderMetadata{Models: []string{}},
	}
}

// WithSeen returns a copy of n observed at the given Unix millis
func (n Node) WithSeen(at int64) Node {
	n.FirstSeen = at
	n.LastSeen = at
	return n
}

// WithMetadata returns a copy of n carrying m
func (n Node) WithMetadata(m Metadata) Node {
	n.Metadata = m
	return n
}

// Domain returns the node's domain metadata, if it is a domain
func (n Node) Domain() (DomainMetadata, bool) {
	m, ok := n.Metadata.(DomainMetadata)
	return m, ok
}

// Extension returns the node's extension metadata, if it is an extension
func (n Node) Extension() (ExtensionMetadata, bool) {
	m, ok := n.Metadata.(ExtensionMetadata)
	return m, ok
}

// AIProvider returns the node's provider metadata, if it is an AI provider
func (n Node) AIProvider() (AIProviderMetadata, bool) {
	m, ok := n.Metadata.(AIProviderMetadata)
	return m, ok
}

func (n Node) clone() Node {
	if n.Metadata != nil {
		n.Metadata = n.Metadata.clone()
	}
	return n
}

// rescore refreshes the derived risk fields. Domains are scored from their
// metadata; extensions take the external verdict when present; other kinds
// keep whatever score was set on them.
func (n *Node) rescore() {
	switch m := n.Metadata.(type) {
	case DomainMetadata:
		n.RiskScore, n.RiskLevel = ScoreFactors(factorsFromMetadata(m))
		return
	case ExtensionMetadata:
		if m.ExternalRisk != nil {
			n.RiskScore = *m.ExternalRisk
		}
	}
	n.RiskScore = clampScore(n.RiskScore)
	n.RiskLevel = LevelForScore(n.RiskScore)
}

// Edge is an observed relationship; Weight counts observations
type Edge struct {
	ID       string   `json:"id"`
	SourceID string   `json:"sourceId"`
	TargetID string   `json:"targetId"`
	Kind     EdgeKind `json:"edgeKind"`
	Weight   int      `json:"weight"`
}

func isSet(c telemetry.Confidence) bool {
	return c != "" && c != telemetry.ConfidenceNone
}

// union merges values into a sorted, de-duplicated set. Empty strings are dropped.
func union(set []string, values ...string) []string {
	seen := make(map[string]bool, len(set)+len(values))
	out := make([]string, 0, len(set)+len(values))
	for _, v := range append(append([]string(nil), set...), values...) {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
