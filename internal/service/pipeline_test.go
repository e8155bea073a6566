package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vantagesec/socqa/internal/domain"
)

type pipelineFixture struct {
	source    *MockIncidentSource
	sink      *MockReportSink
	stores    *MockStoreChecker
	watermark *memWatermark
	runs      *memRunRecorder
	llm       *MockLLMClient
	repo      *MockChunkRepository
	embedder  *MockEmbeddingClient
	pipeline  *Pipeline
	now       time.Time
}

// newPipelineFixture wires a pipeline with a real retriever and
// generator over mocked edges, mirroring the production assembly.
func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		source:    new(MockIncidentSource),
		sink:      new(MockReportSink),
		stores:    new(MockStoreChecker),
		watermark: &memWatermark{},
		runs:      &memRunRecorder{},
		llm:       new(MockLLMClient),
		repo:      new(MockChunkRepository),
		embedder:  new(MockEmbeddingClient),
		now:       time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	retriever := NewRetriever(f.repo, f.embedder, RetrieverConfig{TopK: 3, SimilarityFloor: 0.3})
	generator, err := NewGenerator(f.llm, GeneratorConfig{Model: "gpt-4o-mini", Temperature: 0.1, Timeout: time.Minute})
	require.NoError(t, err)

	f.pipeline = NewPipeline(f.source, retriever, generator, f.sink, f.watermark, f.runs, f.stores, PipelineConfig{Lookback: 24 * time.Hour})
	f.pipeline.now = func() time.Time { return f.now }
	return f
}

func (f *pipelineFixture) stubHealthyStores() {
	f.stores.On("Ping", mock.Anything).Return(nil)
	f.embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return([]float32{0.1, 0.2}, nil)
	f.repo.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.ScoredChunk{}, nil)
}

func incidentNamed(id string) domain.Incident {
	return domain.Incident{ID: id, Title: "Excessive Failed Logins", Analyst: "jdoe"}
}

func TestRunProcessesAllIncidents(t *testing.T) {
	f := newPipelineFixture(t)
	f.stubHealthyStores()

	incidents := []domain.Incident{incidentNamed("INC-1"), incidentNamed("INC-2")}
	f.source.On("FetchClosedIncidents", mock.Anything, mock.Anything, f.now).Return(incidents, nil)
	f.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(validModelResponse, nil)
	f.sink.On("Deliver", mock.Anything, mock.Anything).Return(nil)

	summary, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	f.sink.AssertNumberOfCalls(t, "Deliver", 2)
	assert.Equal(t, f.now, f.watermark.at)
	require.Len(t, f.runs.summaries, 1)
}

func TestRunFirstPassUsesLookbackWindow(t *testing.T) {
	f := newPipelineFixture(t)
	f.stubHealthyStores()

	expectedEarliest := f.now.Add(-24 * time.Hour)
	f.source.On("FetchClosedIncidents", mock.Anything, expectedEarliest, f.now).Return([]domain.Incident{}, nil)

	summary, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, expectedEarliest, summary.WindowStart)
	f.source.AssertExpectations(t)
}

// A single unparseable model response must not cost the rest of the
// batch its reports, and the watermark still advances.
func TestRunIsolatesSingleIncidentFailure(t *testing.T) {
	f := newPipelineFixture(t)
	f.stubHealthyStores()

	incidents := []domain.Incident{incidentNamed("INC-1"), incidentNamed("INC-2"), incidentNamed("INC-3")}
	f.source.On("FetchClosedIncidents", mock.Anything, mock.Anything, mock.Anything).Return(incidents, nil)

	// INC-2 produces garbage; the prompt embeds the incident id so the
	// mock can discriminate.
	f.llm.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return containsIncident(p, "INC-2")
	}), mock.Anything, mock.Anything).Return("not even json", nil)
	f.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(validModelResponse, nil)
	f.sink.On("Deliver", mock.Anything, mock.Anything).Return(nil)

	summary, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	f.sink.AssertNumberOfCalls(t, "Deliver", 2)
	assert.Equal(t, f.now, f.watermark.at, "watermark must advance past the failed incident")
}

func TestRunDeliveryFailureCountsAsFailed(t *testing.T) {
	f := newPipelineFixture(t)
	f.stubHealthyStores()

	f.source.On("FetchClosedIncidents", mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.Incident{incidentNamed("INC-1")}, nil)
	f.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(validModelResponse, nil)
	f.sink.On("Deliver", mock.Anything, mock.Anything).Return(errors.New("hec returned 503"))

	summary, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	// Delivery failures are not retried within the run.
	f.sink.AssertNumberOfCalls(t, "Deliver", 1)
	assert.Equal(t, f.now, f.watermark.at)
}

func TestRunAbortsWhenStoresUnavailable(t *testing.T) {
	f := newPipelineFixture(t)
	f.stores.On("Ping", mock.Anything).Return(errors.New("connection refused"))

	_, err := f.pipeline.Run(context.Background())

	var resErr *domain.ResourceUnavailableError
	require.ErrorAs(t, err, &resErr)
	assert.False(t, f.watermark.found, "watermark must not advance on a fatal run error")
	f.source.AssertNotCalled(t, "FetchClosedIncidents", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunAbortsWhenSourceUnavailable(t *testing.T) {
	f := newPipelineFixture(t)
	f.stores.On("Ping", mock.Anything).Return(nil)
	f.source.On("FetchClosedIncidents", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("export endpoint 502"))

	_, err := f.pipeline.Run(context.Background())

	var resErr *domain.ResourceUnavailableError
	require.ErrorAs(t, err, &resErr)
	assert.False(t, f.watermark.found)
}

func TestWatermarkMonotonicity(t *testing.T) {
	f := newPipelineFixture(t)
	f.stubHealthyStores()
	f.source.On("FetchClosedIncidents", mock.Anything, mock.Anything, mock.Anything).Return([]domain.Incident{}, nil)

	times := []time.Time{
		time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 5, 1, 13, 0, 0, 0, time.UTC),
		time.Date(2026, 5, 1, 14, 0, 0, 0, time.UTC),
	}

	var previous time.Time
	for _, now := range times {
		f.now = now
		summary, err := f.pipeline.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, now, f.watermark.at, "watermark equals the fetch boundary")
		assert.True(t, !f.watermark.at.Before(previous), "watermark is non-decreasing")
		assert.Equal(t, f.watermark.at, summary.WindowEnd)
		previous = f.watermark.at
	}
}

func TestRunWindowWithoutAdvanceLeavesWatermark(t *testing.T) {
	f := newPipelineFixture(t)
	f.stubHealthyStores()
	f.source.On("FetchClosedIncidents", mock.Anything, mock.Anything, mock.Anything).Return([]domain.Incident{}, nil)

	earliest := f.now.Add(-30 * 24 * time.Hour)
	_, err := f.pipeline.RunWindow(context.Background(), earliest, f.now, false)
	require.NoError(t, err)
	assert.False(t, f.watermark.found, "manual re-review must not move the watermark")
}

// End-to-end: an incident tagged T1110 against stores holding a T1110
// technique chunk and a brute-force procedure chunk must surface both
// verbatim in the assembled prompt.
func TestRunEndToEndRetrievalFlowsIntoPrompt(t *testing.T) {
	f := newPipelineFixture(t)
	f.stores.On("Ping", mock.Anything).Return(nil)
	f.embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return([]float32{0.5, 0.5}, nil)

	procedureText := "Brute force response: lock the account, review authentication logs, escalate external sources."
	techniqueText := "T1110 Brute Force: adversaries may systematically guess passwords to gain access."
	f.repo.On("Search", mock.Anything, domain.StoreProcedures, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.ScoredChunk{scoredChunk(domain.StoreProcedures, "page-bf", procedureText, 0.84)}, nil)
	f.repo.On("Search", mock.Anything, domain.StoreAttack, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.ScoredChunk{scoredChunk(domain.StoreAttack, "T1110", techniqueText, 0.92)}, nil)

	incident := domain.Incident{ID: "INC-100", Title: "Excessive Failed Logins", Analyst: "jdoe", TechniqueIDs: []string{"T1110"}}
	f.source.On("FetchClosedIncidents", mock.Anything, mock.Anything, mock.Anything).Return([]domain.Incident{incident}, nil)

	var prompt string
	f.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { prompt = args.String(1) }).
		Return(validModelResponse, nil)

	var delivered *domain.QAReport
	f.sink.On("Deliver", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { delivered = args.Get(1).(*domain.QAReport) }).
		Return(nil)

	summary, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Contains(t, prompt, procedureText)
	assert.Contains(t, prompt, techniqueText)
	require.NotNil(t, delivered)
	assert.Equal(t, "INC-100", delivered.IncidentID)
	assert.NoError(t, delivered.Validate())
}

func containsIncident(prompt, id string) bool {
	return strings.Contains(prompt, "INCIDENT_ID: "+id)
}
