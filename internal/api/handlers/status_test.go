package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vantagesec/socqa/internal/domain"
)

type MockWatermarkReader struct {
	mock.Mock
}

func (m *MockWatermarkReader) Get(ctx context.Context) (time.Time, bool, error) {
	args := m.Called(ctx)
	return args.Get(0).(time.Time), args.Bool(1), args.Error(2)
}

type MockRunReader struct {
	mock.Mock
}

func (m *MockRunReader) Latest(ctx context.Context) (*domain.RunSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RunSummary), args.Error(1)
}

type MockStoreReader struct {
	mock.Mock
}

func (m *MockStoreReader) GetStore(ctx context.Context, store domain.StoreName) (*domain.KnowledgeStore, error) {
	args := m.Called(ctx, store)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeStore), args.Error(1)
}

func (m *MockStoreReader) CountChunks(ctx context.Context, store domain.StoreName) (int, error) {
	args := m.Called(ctx, store)
	return args.Int(0), args.Error(1)
}

func TestStatusHandler_Get(t *testing.T) {
	watermark := new(MockWatermarkReader)
	runs := new(MockRunReader)
	stores := new(MockStoreReader)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	watermark.On("Get", mock.Anything).Return(at, true, nil)

	stores.On("CountChunks", mock.Anything, domain.StoreProcedures).Return(420, nil)
	stores.On("GetStore", mock.Anything, domain.StoreProcedures).Return(&domain.KnowledgeStore{
		Name:           domain.StoreProcedures,
		EmbeddingModel: "text-embedding-ada-002",
		Dimensions:     1536,
		LastUpdatedAt:  time.Date(2026, 2, 28, 6, 0, 0, 0, time.UTC),
	}, nil)
	stores.On("CountChunks", mock.Anything, domain.StoreAttack).Return(0, nil)
	stores.On("GetStore", mock.Anything, domain.StoreAttack).Return(nil, nil)

	runs.On("Latest", mock.Anything).Return(&domain.RunSummary{
		ID:          "run-1",
		StartedAt:   at.Add(-time.Minute),
		FinishedAt:  at,
		WindowStart: at.Add(-time.Hour),
		WindowEnd:   at,
		Processed:   4,
		Succeeded:   3,
		Failed:      1,
	}, nil)

	h := NewStatusHandler(watermark, runs, stores)
	w := httptest.NewRecorder()
	h.Get(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data StatusResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.Equal(t, "2026-03-01T12:00:00Z", body.Data.Watermark)

	procedures := body.Data.Stores["procedures"]
	assert.Equal(t, 420, procedures.Chunks)
	assert.Equal(t, "text-embedding-ada-002", procedures.EmbeddingModel)
	assert.Equal(t, "2026-02-28T06:00:00Z", procedures.LastUpdatedAt)

	attack := body.Data.Stores["attack"]
	assert.Equal(t, 0, attack.Chunks)
	assert.Empty(t, attack.EmbeddingModel)

	require.NotNil(t, body.Data.LastRun)
	assert.Equal(t, "run-1", body.Data.LastRun.ID)
	assert.Equal(t, 4, body.Data.LastRun.Processed)
	assert.Equal(t, 1, body.Data.LastRun.Failed)
}

func TestStatusHandler_GetBeforeFirstRun(t *testing.T) {
	watermark := new(MockWatermarkReader)
	runs := new(MockRunReader)
	stores := new(MockStoreReader)

	watermark.On("Get", mock.Anything).Return(time.Time{}, false, nil)
	stores.On("CountChunks", mock.Anything, mock.Anything).Return(0, nil)
	stores.On("GetStore", mock.Anything, mock.Anything).Return(nil, nil)
	runs.On("Latest", mock.Anything).Return(nil, nil)

	h := NewStatusHandler(watermark, runs, stores)
	w := httptest.NewRecorder()
	h.Get(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data StatusResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Data.Watermark)
	assert.Nil(t, body.Data.LastRun)
}

func TestStatusHandler_GetDatabaseError(t *testing.T) {
	watermark := new(MockWatermarkReader)
	runs := new(MockRunReader)
	stores := new(MockStoreReader)

	watermark.On("Get", mock.Anything).Return(time.Time{}, false, errors.New("connection refused"))

	h := NewStatusHandler(watermark, runs, stores)
	w := httptest.NewRecorder()
	h.Get(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
