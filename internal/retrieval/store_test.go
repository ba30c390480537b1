package retrieval

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// openTestDB creates an in-memory SQLite database with the document_vectors table.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	_, err = db.Exec(`
		CREATE TABLE document_vectors (
			id TEXT PRIMARY KEY,
			chunk_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			heading TEXT NOT NULL DEFAULT '',
			text_chunk TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		t.Fatalf("creating table: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func makeTestVector(dim int, seed float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = seed + float32(i)*0.001
	}
	return v
}

func makeTestRecord(id string, vec []float32) Record {
	return Record{
		ID:         id,
		ChunkID:    "chunk-" + id,
		DocumentID: "doc-1",
		Heading:    "Billing",
		Text:       "text for " + id,
		Embedding:  vec,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestInsertAndSearch(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)

	vec := makeTestVector(64, 0.1)
	if err := s.Insert([]Record{makeTestRecord("r1", vec)}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := s.Search(vec, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.ID != "r1" || r.ChunkID != "chunk-r1" || r.Heading != "Billing" {
		t.Errorf("unexpected record: %+v", r.Record)
	}
	// Identical vectors have cosine similarity 1.
	if r.Score < 0.999 {
		t.Errorf("expected score near 1.0, got %g", r.Score)
	}
}

func TestSearchRanksBySimilarity(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)

	// Orthogonal-ish basis: r1 matches the query exactly, r2 partially, r3 not at all.
	records := []Record{
		makeTestRecord("r1", []float32{1, 0, 0, 0}),
		makeTestRecord("r2", []float32{1, 1, 0, 0}),
		makeTestRecord("r3", []float32{0, 0, 1, 0}),
	}
	if err := s.Insert(records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := s.Search([]float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "r1" || results[1].ID != "r2" {
		t.Errorf("expected order [r1 r2], got [%s %s]", results[0].ID, results[1].ID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not descending: %g <= %g", results[0].Score, results[1].Score)
	}
}

func TestSearchTopKLimit(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)

	var records []Record
	for i := 0; i < 10; i++ {
		records = append(records, makeTestRecord(fmt.Sprintf("r%d", i), makeTestVector(8, float32(i)*0.1)))
	}
	if err := s.Insert(records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := s.Search(makeTestVector(8, 0.5), 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}
}

func TestSearchZeroQueryVector(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)

	if err := s.Insert([]Record{makeTestRecord("r1", makeTestVector(8, 0.1))}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := s.Search(make([]float32, 8), 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results for zero vector, got %d", len(results))
	}
}

func TestExportAllOrderAndCount(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	records := []Record{
		{ID: "newer", ChunkID: "c2", DocumentID: "d1", Text: "b", Embedding: []float32{1}, CreatedAt: base.Add(time.Hour)},
		{ID: "older", ChunkID: "c1", DocumentID: "d1", Text: "a", Embedding: []float32{1}, CreatedAt: base},
	}
	if err := s.Insert(records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}

	all, err := s.ExportAll()
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 records, got %d", len(all))
	}
	if all[0].ID != "older" || all[1].ID != "newer" {
		t.Errorf("expected oldest first, got [%s %s]", all[0].ID, all[1].ID)
	}
}

func TestEncodeDecodeFloat32s(t *testing.T) {
	v := []float32{0.1, -2.5, 3.14159, 0}
	decoded, err := decodeFloat32s(encodeFloat32s(v))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(v) {
		t.Fatalf("length mismatch: %d != %d", len(decoded), len(v))
	}
	for i := range v {
		if decoded[i] != v[i] {
			t.Errorf("index %d: %g != %g", i, decoded[i], v[i])
		}
	}

	if _, err := decodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
