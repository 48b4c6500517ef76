package graph

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pleno/audit/internal/telemetry"
)

var (
	errMissingDomain      = errors.New("missing domain")
	errMissingExtensionID = errors.New("missing extension id")
)

// IngestSummary counts what happened to the records of one batch
type IngestSummary struct {
	Services int `json:"services"`
	Events   int `json:"events"`
	Skipped  int `json:"skipped"`
	Ignored  int `json:"ignored"`
}

// Builder folds telemetry batches into graphs. A Builder is not safe for
// concurrent use.
type Builder struct {
	logger  *zap.Logger
	now     func() int64
	summary IngestSummary
}

// BuilderOption configures a Builder
type BuilderOption func(*Builder)

// WithLogger sets the logger used to report skipped records
func WithLogger(logger *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock overrides the wall clock used for records without a timestamp
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		if now != nil {
			b.now = func() int64 { return now().UnixMilli() }
		}
	}
}

// NewBuilder creates a Builder
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.Named("graph")
	return b
}

// Build creates a fresh graph from one batch
func Build(services []telemetry.DetectedService, events []telemetry.Event) *Graph {
	return NewBuilder().Build(services, events)
}

// Ingest folds a batch into g and returns it
func Ingest(g *Graph, services []telemetry.DetectedService, events []telemetry.Event) *Graph {
	return NewBuilder().Ingest(g, services, events)
}

// Build creates a fresh graph from one batch
func (b *Builder) Build(services []telemetry.DetectedService, events []telemetry.Event) *Graph {
	return b.Ingest(New(), services, events)
}

// LastSummary returns the counts of the most recent Ingest
func (b *Builder) LastSummary() IngestSummary { return b.summary }

// Ingest folds services and events into g, mutating and returning it. A bad
// record is logged and skipped; the rest of the batch still goes in. Stats
// are recomputed once the batch is done.
func (b *Builder) Ingest(g *Graph, services []telemetry.DetectedService, events []telemetry.Event) *Graph {
	if g == nil {
		g = New()
	}
	if b.now != nil {
		g.now = b.now
	}

	var sum IngestSummary
	for i, svc := range services {
		if err := b.ingestService(g, svc); err != nil {
			sum.Skipped++
			b.logger.Debug("skipping service",
				zap.Int("index", i), zap.String("domain", svc.Domain), zap.Error(err))
			continue
		}
		sum.Services++
	}

	for i, ev := range events {
		handled, err := b.ingestEvent(g, ev)
		switch {
		case err != nil:
			sum.Skipped++
			b.logger.Debug("skipping event",
				zap.Int("index", i), zap.String("type", string(ev.Type)),
				zap.String("domain", ev.Domain), zap.Error(err))
		case handled:
			sum.Events++
		default:
			sum.Ignored++
		}
	}

	RecomputeStats(g)
	b.summary = sum
	b.logger.Debug("ingested batch",
		zap.Int("services", sum.Services), zap.Int("events", sum.Events),
		zap.Int("skipped", sum.Skipped), zap.Int("ignored", sum.Ignored),
		zap.Int("nodes", g.NodeCount()), zap.Int("edges", g.EdgeCount()))
	return g
}

func (b *Builder) ingestService(g *Graph, svc telemetry.DetectedService) error {
	host := telemetry.NormalizeHost(svc.Domain)
	if host == "" {
		return errMissingDomain
	}
	f := FactorsFromService(svc)
	meta := DomainMetadata{
		HasLogin:            svc.HasLoginPage,
		HasPrivacyPolicy:    svc.PrivacyPolicyURL != "",
		HasTermsOfService:   svc.TermsOfServiceURL != "",
		CookieCount:         len(svc.Cookies),
		SessionCookieCount:  f.SessionCookies,
		IsNRD:               f.IsNRD,
		NRDConfidence:       f.NRDConfidence,
		IsTyposquat:         f.IsTyposquat,
		TyposquatConfidence: f.TyposquatConfidence,
	}
	n := NewDomainNode(host).WithMetadata(meta)
	// An untimed service only dates a node it creates; LastSeen of a known
	// domain is left to timestamped records.
	at := svc.DetectedAt
	if _, known := g.nodes[n.ID]; at <= 0 && !known {
		at = g.now()
	}
	return g.UpsertNode(n.WithSeen(max(at, 0)))
}

// ingestEvent reports handled=false for event types the graph doesn't consume
func (b *Builder) ingestEvent(g *Graph, ev telemetry.Event) (bool, error) {
	at := ev.Timestamp
	if at <= 0 {
		at = g.now()
	}

	switch ev.Type {
	case telemetry.EventNetworkRequest:
		return true, b.networkRequest(g, ev, at)
	case telemetry.EventLoginDetected:
		return true, b.loginDetected(g, ev, at)
	case telemetry.EventExtensionRequest:
		return true, b.extensionRequest(g, ev, at)
	case telemetry.EventCSPViolation:
		return true, b.cspViolation(g, ev, at)
	case telemetry.EventAIPromptSent:
		return true, b.aiPrompt(g, ev, at)
	case telemetry.EventAIResponseReceived:
		return true, b.aiResponse(g, ev, at)
	default:
		return false, nil
	}
}

func (b *Builder) networkRequest(g *Graph, ev telemetry.Event, at int64) error {
	d, err := telemetry.DecodeDetails[telemetry.NetworkRequestDetails](ev)
	if err != nil {
		return err
	}
	target, err := telemetry.HostOf(d.URL)
	if err != nil {
		return err
	}
	source := telemetry.NormalizeHost(ev.Domain)
	if source == "" {
		return errMissingDomain
	}

	src := NewDomainNode(source).WithSeen(at)
	if err := g.UpsertNode(src); err != nil {
		return err
	}
	if target == source {
		return nil
	}
	tgt := NewDomainNode(target).WithSeen(at)
	if err := g.UpsertNode(tgt); err != nil {
		return err
	}
	return g.UpsertEdge(src.ID, tgt.ID, EdgeRequests, at)
}

func (b *Builder) loginDetected(g *Graph, ev telemetry.Event, at int64) error {
	source := telemetry.NormalizeHost(ev.Domain)
	if source == "" {
		return errMissingDomain
	}
	return g.UpsertNode(NewDomainNode(source).WithSeen(at).WithMetadata(DomainMetadata{HasLogin: true}))
}

func (b *Builder) extensionRequest(g *Graph, ev telemetry.Event, at int64) error {
	d, err := telemetry.DecodeDetails[telemetry.ExtensionRequestDetails](ev)
	if err != nil {
		return err
	}
	if d.ExtensionID == "" {
		return errMissingExtensionID
	}
	target := telemetry.NormalizeHost(ev.Domain)
	if target == "" && d.URL != "" {
		if host, err := telemetry.HostOf(d.URL); err == nil {
			target = host
		}
	}
	if target == "" {
		return errMissingDomain
	}

	dom := NewDomainNode(target).WithSeen(at)
	if err := g.UpsertNode(dom); err != nil {
		return err
	}
	ext := NewExtensionNode(d.ExtensionID, d.ExtensionName).WithSeen(at).WithMetadata(ExtensionMetadata{
		RequestCount:  1,
		TargetDomains: []string{dom.ID},
		ExternalRisk:  d.RiskScore,
	})
	if _, known := g.nodes[ext.ID]; known && d.ExtensionName == "" {
		ext.Label = ""
	}
	if err := g.UpsertNode(ext); err != nil {
		return err
	}
	return g.UpsertEdge(ext.ID, dom.ID, EdgeExtensionActivity, at)
}

func (b *Builder) cspViolation(g *Graph, ev telemetry.Event, at int64) error {
	source := telemetry.NormalizeHost(ev.Domain)
	if source == "" {
		return errMissingDomain
	}
	return g.UpsertNode(NewDomainNode(source).WithSeen(at).WithMetadata(DomainMetadata{CSPViolations: 1}))
}

func (b *Builder) aiPrompt(g *Graph, ev telemetry.Event, at int64) error {
	d, err := telemetry.DecodeDetails[telemetry.AIPromptDetails](ev)
	if err != nil {
		return err
	}
	source := telemetry.NormalizeHost(ev.Domain)
	if source == "" {
		source = UnknownDomain
	}

	dom := NewDomainNode(source).WithSeen(at).WithMetadata(DomainMetadata{
		SensitiveDataTypes: d.Classifications,
	})
	if err := g.UpsertNode(dom); err != nil {
		return err
	}
	meta := AIProviderMetadata{PromptCount: 1}
	if d.Model != "" {
		meta.Models = []string{d.Model}
	}
	provider := NewAIProviderNode(d.Provider).WithSeen(at).WithMetadata(meta)
	if err := g.UpsertNode(provider); err != nil {
		return err
	}
	return g.UpsertEdge(dom.ID, provider.ID, EdgeAIPrompt, at)
}

func (b *Builder) aiResponse(g *Graph, ev telemetry.Event, at int64) error {
	d, err := telemetry.DecodeDetails[telemetry.AIResponseDetails](ev)
	if err != nil {
		return err
	}
	id := AIProviderNodeID(d.Provider)
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return g.UpsertNode(Node{
		ID:       id,
		Kind:     KindAIProvider,
		Metadata: AIProviderMetadata{ResponseCount: 1},
	}.WithSeen(at))
}
