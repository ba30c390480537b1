package retrieval

import "time"

// VectorStore is the interface for vector storage and similarity search.
// The default implementation uses SQLite with brute-force cosine
// similarity over the document_vectors table; an ANN-capable backend can
// replace it without touching the fusion engine.
type VectorStore interface {
	// Insert adds records to the store.
	Insert(records []Record) error

	// Search performs vector similarity search, returning the top-K most
	// similar records.
	Search(vector []float32, topK int) ([]ScoredRecord, error)

	// ExportAll returns every record, oldest first. The lexical retriever
	// builds its in-memory corpus from this.
	ExportAll() ([]Record, error)

	// Count returns the number of stored records.
	Count() (int, error)
}

// Record represents one embedded document chunk in the vector store.
type Record struct {
	ID         string
	ChunkID    string
	DocumentID string
	Heading    string
	Text       string
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
