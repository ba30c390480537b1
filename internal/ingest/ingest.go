// Package ingest turns source documents into embedded knowledge base
// chunks: split on markdown headings, persist, then embed asynchronously
// through the SQLite job queue.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/concierge/internal/storage"
)

// JobTypeEmbedChunk is the queue job type for embedding one chunk.
const JobTypeEmbedChunk = "embed_chunk"

// Ingestor persists documents and queues their chunks for embedding.
type Ingestor struct {
	store *storage.Store
}

// NewIngestor creates an Ingestor over the given store.
func NewIngestor(store *storage.Store) *Ingestor {
	return &Ingestor{store: store}
}

// Ingest splits content on "##" headings, saves the document with its
// chunks, and enqueues one embedding job per chunk. Returns the document
// ID and the number of chunks queued. A document that yields no chunks
// is an error: it would be silently unsearchable otherwise.
func (i *Ingestor) Ingest(ctx context.Context, title, source, content string) (string, int, error) {
	sections := SplitMarkdown(content)
	if len(sections) == 0 {
		return "", 0, fmt.Errorf("document %q produced no chunks", title)
	}

	doc := storage.Document{
		ID:        uuid.New().String(),
		Title:     title,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}

	chunks := make([]storage.DocumentChunk, 0, len(sections))
	for _, sec := range sections {
		chunks = append(chunks, storage.DocumentChunk{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			Heading:    sec.Heading,
			Content:    sec.Content,
			CreatedAt:  doc.CreatedAt,
		})
	}

	if err := i.store.SaveDocument(ctx, doc, chunks); err != nil {
		return "", 0, fmt.Errorf("saving document: %w", err)
	}

	for _, ch := range chunks {
		payload, err := json.Marshal(embedPayload{ChunkID: ch.ID})
		if err != nil {
			return "", 0, fmt.Errorf("marshaling job payload: %w", err)
		}
		if err := i.store.EnqueueJob(storage.Job{
			ID:          uuid.New().String(),
			Type:        JobTypeEmbedChunk,
			PayloadJSON: string(payload),
		}); err != nil {
			return "", 0, fmt.Errorf("enqueueing embed job for chunk %s: %w", ch.ID, err)
		}
	}

	return doc.ID, len(chunks), nil
}

type embedPayload struct {
	ChunkID string `json:"chunk_id"`
}
