package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/concierge/internal/retrieval"
	"github.com/kalambet/concierge/internal/storage"
)

// JobStore abstracts the job queue and chunk lookups.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetDocumentChunk(ctx context.Context, id string) (storage.DocumentChunk, error)
	UpdateChunkVectorID(ctx context.Context, chunkID, vectorID string) error
}

// ContentEmbedder generates embeddings for text.
type ContentEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorInserter inserts records into the vector store.
type VectorInserter interface {
	Insert(records []retrieval.Record) error
}

// Rebuilder republishes the retrieval engine over the grown corpus.
type Rebuilder interface {
	Rebuild(ctx context.Context) error
}

// Worker processes embed_chunk jobs from the SQLite job queue. Once the
// queue drains after at least one processed job, it triggers a retrieval
// engine rebuild so new chunks become searchable in one swap instead of
// one rebuild per chunk.
type Worker struct {
	store    JobStore
	embedder ContentEmbedder
	vectors  VectorInserter
	provider Rebuilder
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, embedder ContentEmbedder, vectors VectorInserter, provider Rebuilder, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		provider: provider,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	dirty := false
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			dirty = true
			continue
		}

		if dirty {
			// Stay dirty on failure so the next idle poll retries instead
			// of leaving embedded chunks unpublished.
			if err := w.provider.Rebuild(ctx); err != nil {
				w.logger.Error("retrieval rebuild failed", "error", err)
			} else {
				dirty = false
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single embed_chunk job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeEmbedChunk})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload embedPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	chunk, err := w.store.GetDocumentChunk(ctx, payload.ChunkID)
	if err != nil {
		return fmt.Errorf("loading chunk %s: %w", payload.ChunkID, err)
	}

	// Heading and body embed together so section titles carry weight.
	text := chunk.Content
	if chunk.Heading != "" {
		text = chunk.Heading + "\n" + chunk.Content
	}
	vec, err := w.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embedding chunk: %w", err)
	}

	rec := retrieval.Record{
		ID:         uuid.New().String(),
		ChunkID:    chunk.ID,
		DocumentID: chunk.DocumentID,
		Heading:    chunk.Heading,
		Text:       chunk.Content,
		Embedding:  vec,
		CreatedAt:  time.Now().UTC(),
	}

	if err := w.vectors.Insert([]retrieval.Record{rec}); err != nil {
		return fmt.Errorf("inserting vector: %w", err)
	}

	if err := w.store.UpdateChunkVectorID(ctx, chunk.ID, rec.ID); err != nil {
		return fmt.Errorf("updating vector_id: %w", err)
	}

	return nil
}
