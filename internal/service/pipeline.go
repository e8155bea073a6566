package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/vantagesec/socqa/internal/domain"
	"github.com/vantagesec/socqa/internal/telemetry"
)

// IncidentSource supplies closed incidents for a half-open time window
// [earliest, latest).
type IncidentSource interface {
	FetchClosedIncidents(ctx context.Context, earliest, latest time.Time) ([]domain.Incident, error)
}

// ReportSink durably delivers a QA report to the monitoring system.
type ReportSink interface {
	Deliver(ctx context.Context, report *domain.QAReport) error
}

// ContextRetriever retrieves per-incident knowledge context.
type ContextRetriever interface {
	Retrieve(ctx context.Context, incident domain.Incident) (domain.RetrievedContext, error)
}

// ReportGenerator produces a validated QA report for one incident.
type ReportGenerator interface {
	Generate(ctx context.Context, incident domain.Incident, rc domain.RetrievedContext) (*domain.QAReport, error)
}

// WatermarkStore persists the last-processed boundary. Single writer:
// the pipeline, once per run.
type WatermarkStore interface {
	Get(ctx context.Context) (time.Time, bool, error)
	Advance(ctx context.Context, at time.Time) error
}

// RunRecorder persists run summaries.
type RunRecorder interface {
	Record(ctx context.Context, summary domain.RunSummary) error
}

// StoreChecker verifies the knowledge stores are reachable before a
// run starts processing.
type StoreChecker interface {
	Ping(ctx context.Context) error
}

// Pipeline drives one QA pass: fetch closed incidents since the
// watermark, review each in isolation, deliver reports, advance the
// watermark. It performs no internal retries; the external scheduler
// is the retry mechanism for whole-run failures.
type Pipeline struct {
	source    IncidentSource
	retriever ContextRetriever
	generator ReportGenerator
	sink      ReportSink
	watermark WatermarkStore
	runs      RunRecorder
	stores    StoreChecker
	lookback  time.Duration
	now       func() time.Time
}

// PipelineConfig holds pipeline construction parameters. Lookback is
// the window used when no watermark exists yet.
type PipelineConfig struct {
	Lookback time.Duration
}

func NewPipeline(
	source IncidentSource,
	retriever ContextRetriever,
	generator ReportGenerator,
	sink ReportSink,
	watermark WatermarkStore,
	runs RunRecorder,
	stores StoreChecker,
	cfg PipelineConfig,
) *Pipeline {
	lookback := cfg.Lookback
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &Pipeline{
		source:    source,
		retriever: retriever,
		generator: generator,
		sink:      sink,
		watermark: watermark,
		runs:      runs,
		stores:    stores,
		lookback:  lookback,
		now:       time.Now,
	}
}

// Run executes one pass over [watermark, now). On first run the
// window starts at now minus the configured lookback.
func (p *Pipeline) Run(ctx context.Context) (domain.RunSummary, error) {
	latest := p.now().UTC()

	earliest, found, err := p.watermark.Get(ctx)
	if err != nil {
		return domain.RunSummary{}, &domain.ResourceUnavailableError{Resource: "run watermark", Err: err}
	}
	if !found {
		earliest = latest.Add(-p.lookback)
	}

	return p.RunWindow(ctx, earliest, latest, true)
}

// RunWindow executes one pass over an explicit window. Manual
// re-review passes set advanceWatermark false so they cannot move the
// boundary.
func (p *Pipeline) RunWindow(ctx context.Context, earliest, latest time.Time, advanceWatermark bool) (domain.RunSummary, error) {
	summary := domain.RunSummary{
		ID:          uuid.NewString(),
		StartedAt:   p.now().UTC(),
		WindowStart: earliest,
		WindowEnd:   latest,
	}

	// LoadingResources: verify the stores are reachable before any
	// incident work. Failure here must not touch the watermark.
	if err := p.stores.Ping(ctx); err != nil {
		return summary, &domain.ResourceUnavailableError{Resource: "knowledge stores", Err: err}
	}

	incidents, err := p.source.FetchClosedIncidents(ctx, earliest, latest)
	if err != nil {
		return summary, &domain.ResourceUnavailableError{Resource: "incident source", Err: err}
	}

	log.Printf("pipeline: run %s reviewing %d closed incidents in [%s, %s)",
		summary.ID, len(incidents), earliest.Format(time.RFC3339), latest.Format(time.RFC3339))

	for _, incident := range incidents {
		summary.Processed++
		telemetry.AddBreadcrumb(ctx, "pipeline", "reviewing incident "+incident.ID)
		if err := p.processIncident(ctx, incident); err != nil {
			summary.Failed++
			p.reportIncidentFailure(ctx, incident, err)
			continue
		}
		summary.Succeeded++
	}

	// Finalizing: the watermark advances regardless of per-incident
	// failures, so a permanently failing incident is not re-reviewed
	// by the next scheduled run.
	if advanceWatermark {
		if err := p.watermark.Advance(ctx, latest); err != nil {
			return summary, fmt.Errorf("failed to advance watermark: %w", err)
		}
	}

	summary.FinishedAt = p.now().UTC()
	if err := p.runs.Record(ctx, summary); err != nil {
		log.Printf("pipeline: failed to record run summary: %v", err)
	}

	log.Printf("pipeline: run %s complete: processed=%d succeeded=%d failed=%d",
		summary.ID, summary.Processed, summary.Succeeded, summary.Failed)

	return summary, nil
}

// processIncident runs one incident through retrieve, generate, and
// deliver. Any failure is isolated to this incident.
func (p *Pipeline) processIncident(ctx context.Context, incident domain.Incident) error {
	rc, err := p.retriever.Retrieve(ctx, incident)
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}

	report, err := p.generator.Generate(ctx, incident, rc)
	if err != nil {
		return err
	}

	if err := p.sink.Deliver(ctx, report); err != nil {
		return &domain.DeliveryError{IncidentID: incident.ID, Err: err}
	}

	return nil
}

func (p *Pipeline) reportIncidentFailure(ctx context.Context, incident domain.Incident, err error) {
	stage := "retrieve"
	var genErr *domain.GenerationError
	var delErr *domain.DeliveryError
	switch {
	case errors.As(err, &genErr):
		stage = "generate"
		if genErr.Kind == domain.GenerationInvalidOutput && genErr.RawOutput != "" {
			log.Printf("pipeline: incident %s raw model output: %s", incident.ID, genErr.RawOutput)
		}
	case errors.As(err, &delErr):
		stage = "deliver"
	}

	log.Printf("pipeline: incident %s failed at %s: %v", incident.ID, stage, err)

	telemetry.CaptureError(ctx, err, telemetry.SpanAttributes{
		IncidentID: incident.ID,
		Operation:  stage,
	})
}
