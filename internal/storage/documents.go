package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveDocument inserts a document and its chunks in one transaction.
func (s *Store) SaveDocument(ctx context.Context, doc Document, chunks []DocumentChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning document transaction: %w", err)
	}
	defer tx.Rollback()

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, title, source, created_at) VALUES (?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Source, createdAt.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("inserting document %s: %w", doc.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO document_chunks (id, document_id, heading, content, vector_id, created_at)
		VALUES (?, ?, ?, ?, '', ?)`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, doc.ID, c.Heading, c.Content, createdAt.Format(time.RFC3339)); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// GetDocumentChunk returns a single chunk by ID.
func (s *Store) GetDocumentChunk(ctx context.Context, id string) (DocumentChunk, error) {
	var c DocumentChunk
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, heading, content, vector_id, created_at
		FROM document_chunks WHERE id = ?`, id,
	).Scan(&c.ID, &c.DocumentID, &c.Heading, &c.Content, &c.VectorID, &createdAt)
	if err == sql.ErrNoRows {
		return DocumentChunk{}, ErrNotFound
	}
	if err != nil {
		return DocumentChunk{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return DocumentChunk{}, fmt.Errorf("parsing created_at: %w", err)
	}
	c.CreatedAt = t
	return c, nil
}

// UpdateChunkVectorID records which vector record holds a chunk's embedding.
func (s *Store) UpdateChunkVectorID(ctx context.Context, chunkID, vectorID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE document_chunks SET vector_id = ? WHERE id = ?`, vectorID, chunkID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDocuments returns the most recent documents, newest first.
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, source, created_at FROM documents
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var createdAt string
		if err := rows.Scan(&d.ID, &d.Title, &d.Source, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		d.CreatedAt = t
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
