package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/vantagesec/socqa/internal/domain"
)

// ChunkRepository handles persistence of embedded knowledge chunks for
// both stores. Every query carries the store predicate; the stores are
// never read or written together.
type ChunkRepository struct {
	pool *pgxpool.Pool
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{pool: pool}
}

// Ping verifies the backing database is reachable.
func (r *ChunkRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// DocumentHashes returns the content hashes of a document's committed
// chunks, ordered by chunk index.
func (r *ChunkRepository) DocumentHashes(ctx context.Context, store domain.StoreName, documentID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT content_hash
		 FROM knowledge_chunks
		 WHERE store = $1 AND document_id = $2
		 ORDER BY chunk_index`,
		string(store), documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}

	return hashes, rows.Err()
}

// ReplaceDocumentChunks commits a document's chunks in one transaction
// so readers see either the old or the new document, never a mix.
// Chunks whose hash is unchanged at the same index keep their stored
// embedding and ingestion timestamp.
func (r *ChunkRepository) ReplaceDocumentChunks(ctx context.Context, store domain.StoreName, documentID string, chunks []domain.KnowledgeChunk) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`DELETE FROM knowledge_chunks
		 WHERE store = $1 AND document_id = $2 AND chunk_index >= $3`,
		string(store), documentID, len(chunks),
	)
	if err != nil {
		return err
	}

	for _, c := range chunks {
		if c.Embedding == nil {
			// Unchanged chunk: leave the committed row alone.
			continue
		}
		if err := upsertChunk(ctx, tx, store, documentID, c); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func upsertChunk(ctx context.Context, db dbtx, store domain.StoreName, documentID string, c domain.KnowledgeChunk) error {
	ingestedAt := c.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now().UTC()
	}
	_, err := db.Exec(ctx,
		`INSERT INTO knowledge_chunks
			(store, document_id, chunk_index, content, content_hash, embedding, ingested_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (store, document_id, chunk_index) DO UPDATE SET
			content = EXCLUDED.content,
			content_hash = EXCLUDED.content_hash,
			embedding = EXCLUDED.embedding,
			ingested_at = EXCLUDED.ingested_at`,
		string(store),
		documentID,
		c.ChunkIndex,
		c.Content,
		c.ContentHash,
		pgvector.NewVector(c.Embedding),
		ingestedAt,
	)
	return err
}

// Search returns the top chunks of one store ranked by similarity,
// dropping results below the floor. Ties resolve to the most recently
// ingested chunk for determinism.
func (r *ChunkRepository) Search(ctx context.Context, store domain.StoreName, embedding []float32, limit int, floor float64) ([]domain.ScoredChunk, error) {
	if limit <= 0 {
		limit = 3
	}

	vec := pgvector.NewVector(embedding)

	rows, err := r.pool.Query(ctx,
		`SELECT id, document_id, chunk_index, content, content_hash, ingested_at,
		        1.0 / (1.0 + (embedding <=> $1)) AS score
		 FROM knowledge_chunks
		 WHERE store = $2
		   AND 1.0 / (1.0 + (embedding <=> $1)) >= $3
		 ORDER BY score DESC, ingested_at DESC, id DESC
		 LIMIT $4`,
		vec, string(store), floor, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.ScoredChunk, 0, limit)
	for rows.Next() {
		var sc domain.ScoredChunk
		sc.Chunk.Store = store
		if err := rows.Scan(
			&sc.Chunk.ID,
			&sc.Chunk.DocumentID,
			&sc.Chunk.ChunkIndex,
			&sc.Chunk.Content,
			&sc.Chunk.ContentHash,
			&sc.Chunk.IngestedAt,
			&sc.Score,
		); err != nil {
			return nil, err
		}
		results = append(results, sc)
	}

	return results, rows.Err()
}

// CountChunks returns the number of committed chunks in one store.
func (r *ChunkRepository) CountChunks(ctx context.Context, store domain.StoreName) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM knowledge_chunks WHERE store = $1`,
		string(store),
	).Scan(&count)
	return count, err
}

// GetStore returns the metadata row for one store, or nil when the
// store has never been ingested.
func (r *ChunkRepository) GetStore(ctx context.Context, store domain.StoreName) (*domain.KnowledgeStore, error) {
	var meta domain.KnowledgeStore
	var lastUpdated *time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT name, embedding_model, dimensions, last_updated_at
		 FROM knowledge_stores WHERE name = $1`,
		string(store),
	).Scan(&meta.Name, &meta.EmbeddingModel, &meta.Dimensions, &lastUpdated)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	if lastUpdated != nil {
		meta.LastUpdatedAt = *lastUpdated
	}
	return &meta, nil
}

// EnsureStore creates the store metadata row on first ingestion.
func (r *ChunkRepository) EnsureStore(ctx context.Context, store domain.StoreName, model string, dimensions int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO knowledge_stores (name, embedding_model, dimensions)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO NOTHING`,
		string(store), model, dimensions,
	)
	return err
}

// TouchStore advances the store's last-update timestamp. Called only
// after every document in a batch has committed.
func (r *ChunkRepository) TouchStore(ctx context.Context, store domain.StoreName, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE knowledge_stores SET last_updated_at = $2 WHERE name = $1`,
		string(store), at,
	)
	return err
}
