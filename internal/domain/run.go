package domain

import "time"

// RunSummary records the outcome of one QA pipeline pass.
type RunSummary struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	WindowStart time.Time
	WindowEnd   time.Time
	Processed   int
	Succeeded   int
	Failed      int
}

// IngestResult reports what a knowledge ingestion batch did.
type IngestResult struct {
	DocumentsAdded   int
	DocumentsSkipped int
	DocumentsFailed  int
	ChunksAdded      int
	ChunksSkipped    int
}
