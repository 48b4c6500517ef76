// Package cycle runs analysis cycles: load telemetry, build a fresh graph,
// serialize it and save a snapshot. Each cycle is traced and metered with
// OpenTelemetry.
package cycle

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"pleno/audit/internal/graph"
	"pleno/audit/internal/store"
	"pleno/audit/internal/telemetry"
)

const instrumentationName = "pleno/audit/cycle"

// Source produces the telemetry for one cycle
type Source interface {
	Load(ctx context.Context) (telemetry.Batch, error)
}

// SourceFunc adapts a function to Source
type SourceFunc func(ctx context.Context) (telemetry.Batch, error)

// Load implements Source
func (f SourceFunc) Load(ctx context.Context) (telemetry.Batch, error) { return f(ctx) }

// FileSource re-reads telemetry batch files and HAR captures every cycle
type FileSource struct {
	Batches []string
	HARs    []string
}

// Load implements Source
func (s FileSource) Load(_ context.Context) (telemetry.Batch, error) {
	return telemetry.LoadAll(s.Batches, s.HARs)
}

// Result describes one completed cycle
type Result struct {
	SnapshotID string              `json:"snapshotId,omitempty"`
	Summary    graph.IngestSummary `json:"summary"`
	Stats      graph.Stats         `json:"stats"`
	Duration   time.Duration       `json:"duration"`
	Graph      *graph.Graph        `json:"-"`
}

// Runner executes analysis cycles. A nil store skips the save step.
type Runner struct {
	store        store.Store
	snapshotName string
	logger       *zap.Logger
	tracer       trace.Tracer
	meter        metric.Meter
	clock        func() time.Time

	records metric.Int64Counter
	skipped metric.Int64Counter
	cycles  metric.Int64Counter
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTracerProvider overrides the global tracer provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Runner) {
		if tp != nil {
			r.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// WithMeterProvider overrides the global meter provider
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(r *Runner) {
		if mp != nil {
			r.meter = mp.Meter(instrumentationName)
		}
	}
}

// WithSnapshotName sets the name snapshots are saved under
func WithSnapshotName(name string) Option {
	return func(r *Runner) {
		if name != "" {
			r.snapshotName = name
		}
	}
}

// WithClock overrides the wall clock used for untimed records
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.clock = now
		}
	}
}

// NewRunner creates a Runner saving into s
func NewRunner(s store.Store, opts ...Option) (*Runner, error) {
	r := &Runner{
		store:        s,
		snapshotName: "default",
		logger:       zap.NewNop(),
		tracer:       otel.GetTracerProvider().Tracer(instrumentationName),
		meter:        otel.GetMeterProvider().Meter(instrumentationName),
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("cycle")

	var err error
	r.records, err = r.meter.Int64Counter(
		"pleno.ingest.records",
		metric.WithDescription("Telemetry records folded into the graph"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create records counter: %w", err)
	}
	r.skipped, err = r.meter.Int64Counter(
		"pleno.ingest.skipped",
		metric.WithDescription("Telemetry records rejected during ingestion"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create skipped counter: %w", err)
	}
	r.cycles, err = r.meter.Int64Counter(
		"pleno.cycles",
		metric.WithDescription("Completed analysis cycles"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cycles counter: %w", err)
	}
	return r, nil
}

// Run builds a fresh graph from batch and saves its snapshot
func (r *Runner) Run(ctx context.Context, batch telemetry.Batch) (res *Result, err error) {
	start := r.clock()
	ctx, span := r.tracer.Start(ctx, "cycle.run", trace.WithAttributes(
		attribute.Int("telemetry.services", len(batch.Services)),
		attribute.Int("telemetry.events", len(batch.Events)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	g, summary := r.build(ctx, batch)
	stats := g.Stats()
	res = &Result{Summary: summary, Stats: stats, Graph: g}

	span.SetAttributes(
		attribute.Int("graph.nodes", stats.TotalNodes),
		attribute.Int("graph.edges", stats.TotalEdges),
		attribute.Int("graph.critical_paths", len(stats.CriticalPaths)),
	)

	if r.store != nil {
		id, err := r.save(ctx, g)
		if err != nil {
			return nil, err
		}
		res.SnapshotID = id
	}

	res.Duration = r.clock().Sub(start)
	r.cycles.Add(ctx, 1)
	r.logger.Info("cycle complete",
		zap.String("snapshot", res.SnapshotID),
		zap.Int("nodes", stats.TotalNodes),
		zap.Int("edges", stats.TotalEdges),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("duration", res.Duration))
	return res, nil
}

func (r *Runner) build(ctx context.Context, batch telemetry.Batch) (*graph.Graph, graph.IngestSummary) {
	ctx, span := r.tracer.Start(ctx, "cycle.build")
	defer span.End()

	b := graph.NewBuilder(graph.WithLogger(r.logger), graph.WithClock(r.clock))
	g := b.Build(batch.Services, batch.Events)
	summary := b.LastSummary()

	r.records.Add(ctx, int64(summary.Services), metric.WithAttributes(attribute.String("record.kind", "service")))
	r.records.Add(ctx, int64(summary.Events), metric.WithAttributes(attribute.String("record.kind", "event")))
	r.skipped.Add(ctx, int64(summary.Skipped))

	span.SetAttributes(
		attribute.Int("ingest.services", summary.Services),
		attribute.Int("ingest.events", summary.Events),
		attribute.Int("ingest.skipped", summary.Skipped),
		attribute.Int("ingest.ignored", summary.Ignored),
	)
	return g, summary
}

func (r *Runner) save(ctx context.Context, g *graph.Graph) (string, error) {
	ctx, span := r.tracer.Start(ctx, "cycle.save")
	defer span.End()

	payload, err := graph.Serialize(g)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	snap, err := r.store.Save(ctx, store.Snapshot{
		Name:      r.snapshotName,
		CreatedAt: r.clock().UnixMilli(),
		NodeCount: g.NodeCount(),
		EdgeCount: g.EdgeCount(),
		Payload:   payload,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("saving snapshot: %w", err)
	}
	span.SetAttributes(
		attribute.String("snapshot.id", snap.ID),
		attribute.Int("snapshot.bytes", len(payload)),
	)
	return snap.ID, nil
}

// Watch runs a cycle immediately and then every interval until ctx is
// cancelled. A failed cycle is logged and the loop keeps going. onResult,
// when set, sees every successful cycle.
func (r *Runner) Watch(ctx context.Context, src Source, interval time.Duration, onResult func(*Result)) error {
	if interval <= 0 {
		return fmt.Errorf("watch interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := r.once(ctx, src, onResult); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Warn("cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Runner) once(ctx context.Context, src Source, onResult func(*Result)) error {
	batch, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading telemetry: %w", err)
	}
	res, err := r.Run(ctx, batch)
	if err != nil {
		return err
	}
	if onResult != nil {
		onResult(res)
	}
	return nil
}

// Restore loads a snapshot by id or unique id prefix and rebuilds its graph.
// Stats are recomputed from the payload.
func Restore(ctx context.Context, s store.Store, reference string) (store.Snapshot, *graph.Graph, error) {
	snap, err := store.Resolve(ctx, s, reference)
	if err != nil {
		return store.Snapshot{}, nil, err
	}
	g, err := graph.Deserialize(snap.Payload)
	if err != nil {
		return snap, nil, fmt.Errorf("snapshot %s: %w", snap.ID, err)
	}
	return snap, g, nil
}
