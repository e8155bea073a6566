package domain

import "time"

// StoreName identifies one of the two knowledge stores. The stores
// share a schema but are never queried or updated together.
type StoreName string

const (
	// StoreProcedures holds chunked SOC procedure pages.
	StoreProcedures StoreName = "procedures"
	// StoreAttack holds chunked MITRE ATT&CK reference entries.
	StoreAttack StoreName = "attack"
)

// Valid reports whether the store name is one of the known stores.
func (s StoreName) Valid() bool {
	return s == StoreProcedures || s == StoreAttack
}

// RawDocument is a source document before chunking.
type RawDocument struct {
	SourceID string
	Title    string
	Body     string
	URL      string
	Source   string
}

// KnowledgeChunk is a bounded span of source text with its embedding.
// (Store, DocumentID, ChunkIndex) is unique within the database.
type KnowledgeChunk struct {
	ID          int64
	Store       StoreName
	DocumentID  string
	ChunkIndex  int
	Content     string
	ContentHash string
	Embedding   []float32
	IngestedAt  time.Time
}

// KnowledgeStore is the per-store metadata record.
type KnowledgeStore struct {
	Name           StoreName
	EmbeddingModel string
	Dimensions     int
	LastUpdatedAt  time.Time
}

// ScoredChunk is a chunk returned from similarity search.
type ScoredChunk struct {
	Chunk KnowledgeChunk
	Score float64
}

// RetrievedContext is the per-incident retrieval result. It is
// recomputed for every incident and never persisted.
type RetrievedContext struct {
	ProcedureChunks []ScoredChunk
	TechniqueChunks []ScoredChunk
}

// IsEmpty reports whether retrieval found nothing above the floor
// in either store. An empty context is a normal condition.
func (c RetrievedContext) IsEmpty() bool {
	return len(c.ProcedureChunks) == 0 && len(c.TechniqueChunks) == 0
}
