package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/vantagesec/socqa/internal/domain"
)

// RetrieveChunkRepository is the read-only search interface the
// retriever queries. Stores are not mutated during a QA pass, so
// Retrieve is safe to call concurrently.
type RetrieveChunkRepository interface {
	Search(ctx context.Context, store domain.StoreName, embedding []float32, limit int, floor float64) ([]domain.ScoredChunk, error)
}

// Retriever queries both knowledge stores for the context most
// relevant to one incident.
type Retriever struct {
	repo     RetrieveChunkRepository
	embedder EmbeddingClient
	topK     int
	floor    float64
}

// RetrieverConfig holds retrieval tuning parameters.
type RetrieverConfig struct {
	TopK            int
	SimilarityFloor float64
}

func NewRetriever(repo RetrieveChunkRepository, embedder EmbeddingClient, cfg RetrieverConfig) *Retriever {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 3
	}
	return &Retriever{
		repo:     repo,
		embedder: embedder,
		topK:     topK,
		floor:    cfg.SimilarityFloor,
	}
}

// Retrieve returns the top procedure and technique chunks for the
// incident. A store with nothing above the similarity floor
// contributes an empty slice, not an error.
func (r *Retriever) Retrieve(ctx context.Context, incident domain.Incident) (domain.RetrievedContext, error) {
	var rc domain.RetrievedContext

	procedures, err := r.search(ctx, domain.StoreProcedures, buildProcedureQuery(incident))
	if err != nil {
		return rc, fmt.Errorf("procedure retrieval: %w", err)
	}
	rc.ProcedureChunks = procedures

	techniques, err := r.search(ctx, domain.StoreAttack, buildTechniqueQuery(incident))
	if err != nil {
		return rc, fmt.Errorf("technique retrieval: %w", err)
	}
	rc.TechniqueChunks = techniques

	return rc, nil
}

func (r *Retriever) search(ctx context.Context, store domain.StoreName, query string) ([]domain.ScoredChunk, error) {
	embedding, err := r.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return r.repo.Search(ctx, store, embedding, r.topK, r.floor)
}

// buildProcedureQuery derives the procedure-store query from the
// incident title and any extracted technique ids.
func buildProcedureQuery(incident domain.Incident) string {
	query := "SOC playbook for " + incident.Title
	if len(incident.TechniqueIDs) > 0 {
		query += " techniques " + strings.Join(incident.TechniqueIDs, " ")
	}
	return query
}

// buildTechniqueQuery targets technique ids when present, otherwise
// falls back to the incident's free-text notable fields.
func buildTechniqueQuery(incident domain.Incident) string {
	if len(incident.TechniqueIDs) > 0 {
		return "MITRE ATT&CK technique " + strings.Join(incident.TechniqueIDs, " ")
	}
	return incident.FreeText() + " relevant MITRE ATT&CK technique mitigation tactic"
}
