package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/vantagesec/socqa/internal/domain"
)

// IngestChunkRepository is the persistence interface the ingestor
// writes through. Commits happen at per-document granularity.
type IngestChunkRepository interface {
	DocumentHashes(ctx context.Context, store domain.StoreName, documentID string) ([]string, error)
	ReplaceDocumentChunks(ctx context.Context, store domain.StoreName, documentID string, chunks []domain.KnowledgeChunk) error
	EnsureStore(ctx context.Context, store domain.StoreName, model string, dimensions int) error
	TouchStore(ctx context.Context, store domain.StoreName, at time.Time) error
}

// Ingestor converts raw source documents into embedded chunks. Runs
// against the same store are mutually exclusive via a file lock; QA
// pipeline reads are not excluded since commits are per-document.
type Ingestor struct {
	repo           IngestChunkRepository
	embedder       EmbeddingClient
	chunkCfg       ChunkConfig
	embeddingModel string
	dimensions     int
	lockDir        string
	now            func() time.Time
}

// IngestorConfig holds construction parameters for an Ingestor.
type IngestorConfig struct {
	EmbeddingModel string
	Dimensions     int
	LockDir        string
	Chunking       ChunkConfig
}

func NewIngestor(repo IngestChunkRepository, embedder EmbeddingClient, cfg IngestorConfig) *Ingestor {
	chunkCfg := cfg.Chunking
	if chunkCfg.MaxChars <= 0 {
		chunkCfg = DefaultChunkConfig()
	}
	return &Ingestor{
		repo:           repo,
		embedder:       embedder,
		chunkCfg:       chunkCfg,
		embeddingModel: cfg.EmbeddingModel,
		dimensions:     cfg.Dimensions,
		lockDir:        cfg.LockDir,
		now:            time.Now,
	}
}

// Ingest chunks, embeds, and commits the batch into one store.
// Re-ingesting an unchanged document writes nothing. A malformed
// document is logged and skipped; an unreachable embedding provider
// aborts the batch. The store timestamp advances only when every
// document succeeded and at least one chunk was written; a fully
// unchanged batch leaves it alone. Committed documents stay committed
// either way.
func (s *Ingestor) Ingest(ctx context.Context, docs []domain.RawDocument, store domain.StoreName) (domain.IngestResult, error) {
	var result domain.IngestResult

	if !store.Valid() {
		return result, fmt.Errorf("unknown knowledge store %q", store)
	}

	unlock, err := s.acquireLock(store)
	if err != nil {
		return result, err
	}
	defer unlock()

	if err := s.repo.EnsureStore(ctx, store, s.embeddingModel, s.dimensions); err != nil {
		return result, fmt.Errorf("failed to open store %s: %w", store, err)
	}

	for _, doc := range docs {
		changed, added, skipped, err := s.ingestDocument(ctx, doc, store)
		if err != nil {
			if isFatalIngestError(err) {
				// Completed documents stay committed; the next
				// scheduled run retries the remainder.
				return result, fmt.Errorf("ingestion aborted at document %s: %w", doc.SourceID, err)
			}
			log.Printf("ingest: skipping document %s: %v", doc.SourceID, err)
			result.DocumentsFailed++
			continue
		}
		result.ChunksAdded += added
		result.ChunksSkipped += skipped
		if changed {
			result.DocumentsAdded++
		} else {
			result.DocumentsSkipped++
		}
	}

	if result.DocumentsFailed == 0 && result.ChunksAdded > 0 {
		if err := s.repo.TouchStore(ctx, store, s.now().UTC()); err != nil {
			return result, fmt.Errorf("failed to update store timestamp: %w", err)
		}
	}

	return result, nil
}

// ingestDocument commits one document. Returns whether any chunk
// changed, plus added/skipped chunk counts.
func (s *Ingestor) ingestDocument(ctx context.Context, doc domain.RawDocument, store domain.StoreName) (bool, int, int, error) {
	if doc.SourceID == "" {
		return false, 0, 0, errMalformedDocument("missing source id")
	}

	chunks := chunkText(doc.Body, s.chunkCfg)
	if len(chunks) == 0 {
		return false, 0, 0, errMalformedDocument("empty body")
	}

	existing, err := s.repo.DocumentHashes(ctx, store, doc.SourceID)
	if err != nil {
		return false, 0, 0, err
	}

	entries := make([]domain.KnowledgeChunk, 0, len(chunks))
	ingestedAt := s.now().UTC()
	added, skipped := 0, 0

	for i, content := range chunks {
		entry := domain.KnowledgeChunk{
			Store:       store,
			DocumentID:  doc.SourceID,
			ChunkIndex:  i,
			Content:     content,
			ContentHash: hashChunk(content),
			IngestedAt:  ingestedAt,
		}
		if i < len(existing) && existing[i] == entry.ContentHash {
			// Unchanged chunk: no embedding call, no write.
			skipped++
			entries = append(entries, entry)
			continue
		}
		embedding, err := s.embedder.GenerateEmbedding(ctx, content)
		if err != nil {
			return false, 0, 0, &embeddingProviderError{err: err}
		}
		entry.Embedding = embedding
		added++
		entries = append(entries, entry)
	}

	if added == 0 && len(existing) == len(chunks) {
		return false, 0, skipped, nil
	}

	if err := s.repo.ReplaceDocumentChunks(ctx, store, doc.SourceID, entries); err != nil {
		return false, 0, 0, err
	}

	return true, added, skipped, nil
}

func (s *Ingestor) acquireLock(store domain.StoreName) (func(), error) {
	dir := s.lockDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock dir: %w", err)
	}

	lock := flock.New(filepath.Join(dir, fmt.Sprintf("ingest-%s.lock", store)))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire ingest lock: %w", err)
	}
	if !locked {
		return nil, domain.ErrIngestInProgress
	}

	return func() {
		if err := lock.Unlock(); err != nil {
			log.Printf("ingest: failed to release lock for %s: %v", store, err)
		}
	}, nil
}

type malformedDocumentError struct {
	reason string
}

func (e *malformedDocumentError) Error() string {
	return "malformed document: " + e.reason
}

func errMalformedDocument(reason string) error {
	return &malformedDocumentError{reason: reason}
}

type embeddingProviderError struct {
	err error
}

func (e *embeddingProviderError) Error() string {
	return "embedding provider failure: " + e.err.Error()
}

func (e *embeddingProviderError) Unwrap() error {
	return e.err
}

// isFatalIngestError separates batch-aborting failures (embedding
// provider down, store unreachable) from single-document problems.
func isFatalIngestError(err error) bool {
	var malformed *malformedDocumentError
	return !errors.As(err, &malformed)
}
