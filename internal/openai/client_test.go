package openai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEmbeddingAPI is a mock implementation of EmbeddingAPI
type MockEmbeddingAPI struct {
	mock.Mock
}

func (m *MockEmbeddingAPI) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockCompletionAPI is a mock implementation of CompletionAPI
type MockCompletionAPI struct {
	mock.Mock
}

func (m *MockCompletionAPI) CreateCompletion(ctx context.Context, prompt string, temperature float32) (string, error) {
	args := m.Called(ctx, prompt, temperature)
	return args.String(0), args.Error(1)
}

func newTestClient(embeddings EmbeddingAPI, completions CompletionAPI, dimensions int) *Client {
	return &Client{
		embeddings:  embeddings,
		completions: completions,
		dimensions:  dimensions,
		chatModel:   DefaultCompletionModel,
	}
}

func TestGenerateEmbedding(t *testing.T) {
	t.Run("returns embedding with expected dimensions", func(t *testing.T) {
		api := new(MockEmbeddingAPI)
		vector := make([]float32, 3)
		api.On("CreateEmbeddings", mock.Anything, "hello").Return(vector, nil)

		client := newTestClient(api, nil, 3)
		got, err := client.GenerateEmbedding(context.Background(), "hello")
		require.NoError(t, err)
		assert.Len(t, got, 3)
		api.AssertExpectations(t)
	})

	t.Run("rejects empty text", func(t *testing.T) {
		client := newTestClient(new(MockEmbeddingAPI), nil, 3)
		_, err := client.GenerateEmbedding(context.Background(), "")
		assert.ErrorIs(t, err, ErrEmptyText)
	})

	t.Run("rejects wrong dimensions", func(t *testing.T) {
		api := new(MockEmbeddingAPI)
		api.On("CreateEmbeddings", mock.Anything, mock.Anything).Return(make([]float32, 5), nil)

		client := newTestClient(api, nil, 3)
		_, err := client.GenerateEmbedding(context.Background(), "hello")
		assert.ErrorIs(t, err, ErrWrongDimensions)
	})

	t.Run("propagates API errors", func(t *testing.T) {
		api := new(MockEmbeddingAPI)
		api.On("CreateEmbeddings", mock.Anything, mock.Anything).Return(nil, errors.New("rate limited"))

		client := newTestClient(api, nil, 3)
		_, err := client.GenerateEmbedding(context.Background(), "hello")
		assert.Error(t, err)
	})
}

func TestComplete(t *testing.T) {
	t.Run("returns completion text", func(t *testing.T) {
		api := new(MockCompletionAPI)
		api.On("CreateCompletion", mock.Anything, "prompt", float32(0.1)).Return(`{"ok":true}`, nil)

		client := newTestClient(nil, api, 3)
		got, err := client.Complete(context.Background(), "prompt", 0.1, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, `{"ok":true}`, got)
	})

	t.Run("rejects empty prompt", func(t *testing.T) {
		client := newTestClient(nil, new(MockCompletionAPI), 3)
		_, err := client.Complete(context.Background(), "", 0.1, time.Minute)
		assert.ErrorIs(t, err, ErrEmptyText)
	})

	t.Run("propagates transport errors", func(t *testing.T) {
		api := new(MockCompletionAPI)
		api.On("CreateCompletion", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("connection refused"))

		client := newTestClient(nil, api, 3)
		_, err := client.Complete(context.Background(), "prompt", 0.1, time.Minute)
		assert.Error(t, err)
	})
}
