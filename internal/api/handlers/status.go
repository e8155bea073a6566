package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/vantagesec/socqa/internal/api"
	"github.com/vantagesec/socqa/internal/domain"
)

type WatermarkReader interface {
	Get(ctx context.Context) (time.Time, bool, error)
}

type RunReader interface {
	Latest(ctx context.Context) (*domain.RunSummary, error)
}

type StoreReader interface {
	GetStore(ctx context.Context, store domain.StoreName) (*domain.KnowledgeStore, error)
	CountChunks(ctx context.Context, store domain.StoreName) (int, error)
}

type StatusHandler struct {
	watermark WatermarkReader
	runs      RunReader
	stores    StoreReader
}

func NewStatusHandler(watermark WatermarkReader, runs RunReader, stores StoreReader) *StatusHandler {
	return &StatusHandler{watermark: watermark, runs: runs, stores: stores}
}

type StoreStatus struct {
	Chunks         int    `json:"chunks"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
	LastUpdatedAt  string `json:"last_updated_at,omitempty"`
}

type RunStatus struct {
	ID          string `json:"id"`
	StartedAt   string `json:"started_at"`
	FinishedAt  string `json:"finished_at"`
	WindowStart string `json:"window_start"`
	WindowEnd   string `json:"window_end"`
	Processed   int    `json:"processed"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
}

type StatusResponse struct {
	Watermark string                 `json:"watermark,omitempty"`
	Stores    map[string]StoreStatus `json:"stores"`
	LastRun   *RunStatus             `json:"last_run,omitempty"`
}

// Get reports the review watermark, per-store freshness, and the last
// run summary.
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := StatusResponse{
		Stores: make(map[string]StoreStatus, 2),
	}

	watermark, found, err := h.watermark.Get(ctx)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if found {
		resp.Watermark = watermark.UTC().Format(time.RFC3339)
	}

	for _, store := range []domain.StoreName{domain.StoreProcedures, domain.StoreAttack} {
		status, err := h.storeStatus(ctx, store)
		if err != nil {
			api.HandleError(w, err)
			return
		}
		resp.Stores[string(store)] = status
	}

	last, err := h.runs.Latest(ctx)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if last != nil {
		resp.LastRun = &RunStatus{
			ID:          last.ID,
			StartedAt:   last.StartedAt.UTC().Format(time.RFC3339),
			FinishedAt:  last.FinishedAt.UTC().Format(time.RFC3339),
			WindowStart: last.WindowStart.UTC().Format(time.RFC3339),
			WindowEnd:   last.WindowEnd.UTC().Format(time.RFC3339),
			Processed:   last.Processed,
			Succeeded:   last.Succeeded,
			Failed:      last.Failed,
		}
	}

	api.Success(w, http.StatusOK, resp)
}

func (h *StatusHandler) storeStatus(ctx context.Context, store domain.StoreName) (StoreStatus, error) {
	count, err := h.stores.CountChunks(ctx, store)
	if err != nil {
		return StoreStatus{}, err
	}

	status := StoreStatus{Chunks: count}

	meta, err := h.stores.GetStore(ctx, store)
	if err != nil {
		return StoreStatus{}, err
	}
	if meta != nil {
		status.EmbeddingModel = meta.EmbeddingModel
		if !meta.LastUpdatedAt.IsZero() {
			status.LastUpdatedAt = meta.LastUpdatedAt.UTC().Format(time.RFC3339)
		}
	}

	return status, nil
}
