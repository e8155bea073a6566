package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/vantagesec/socqa/internal/domain"
)

// MockEmbeddingClient is a mock implementation of EmbeddingClient
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockLLMClient is a mock implementation of LLMClient
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Complete(ctx context.Context, prompt string, temperature float32, timeout time.Duration) (string, error) {
	args := m.Called(ctx, prompt, temperature, timeout)
	return args.String(0), args.Error(1)
}

// MockChunkRepository mocks both the ingest and retrieve repository interfaces
type MockChunkRepository struct {
	mock.Mock
}

func (m *MockChunkRepository) DocumentHashes(ctx context.Context, store domain.StoreName, documentID string) ([]string, error) {
	args := m.Called(ctx, store, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockChunkRepository) ReplaceDocumentChunks(ctx context.Context, store domain.StoreName, documentID string, chunks []domain.KnowledgeChunk) error {
	args := m.Called(ctx, store, documentID, chunks)
	return args.Error(0)
}

func (m *MockChunkRepository) EnsureStore(ctx context.Context, store domain.StoreName, model string, dimensions int) error {
	args := m.Called(ctx, store, model, dimensions)
	return args.Error(0)
}

func (m *MockChunkRepository) TouchStore(ctx context.Context, store domain.StoreName, at time.Time) error {
	args := m.Called(ctx, store, at)
	return args.Error(0)
}

func (m *MockChunkRepository) Search(ctx context.Context, store domain.StoreName, embedding []float32, limit int, floor float64) ([]domain.ScoredChunk, error) {
	args := m.Called(ctx, store, embedding, limit, floor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ScoredChunk), args.Error(1)
}

// MockIncidentSource is a mock implementation of IncidentSource
type MockIncidentSource struct {
	mock.Mock
}

func (m *MockIncidentSource) FetchClosedIncidents(ctx context.Context, earliest, latest time.Time) ([]domain.Incident, error) {
	args := m.Called(ctx, earliest, latest)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Incident), args.Error(1)
}

// MockReportSink is a mock implementation of ReportSink
type MockReportSink struct {
	mock.Mock
}

func (m *MockReportSink) Deliver(ctx context.Context, report *domain.QAReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

// MockStoreChecker is a mock implementation of StoreChecker
type MockStoreChecker struct {
	mock.Mock
}

func (m *MockStoreChecker) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// memWatermark is an in-memory WatermarkStore for orchestration tests.
type memWatermark struct {
	at    time.Time
	found bool
}

func (w *memWatermark) Get(ctx context.Context) (time.Time, bool, error) {
	return w.at, w.found, nil
}

func (w *memWatermark) Advance(ctx context.Context, at time.Time) error {
	if at.After(w.at) {
		w.at = at
	}
	w.found = true
	return nil
}

// memRunRecorder keeps recorded summaries in memory.
type memRunRecorder struct {
	summaries []domain.RunSummary
}

func (r *memRunRecorder) Record(ctx context.Context, summary domain.RunSummary) error {
	r.summaries = append(r.summaries, summary)
	return nil
}
