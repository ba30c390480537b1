package retrieval

import (
	"container/heap"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

var _ VectorStore = (*SQLiteStore)(nil)

// SQLiteStore keeps chunk embeddings in the document_vectors table and
// answers similarity queries with a brute-force cosine scan. A support
// knowledge base stays small enough that a full scan beats the cost of
// maintaining an index.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an existing *sql.DB. Migrations must have created
// the document_vectors table already.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const vectorColumns = "id, chunk_id, document_id, heading, text_chunk, embedding, created_at"

// Insert writes records in one transaction. A zero CreatedAt is stamped
// with the current UTC time.
func (s *SQLiteStore) Insert(records []Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin vector insert: %w", err)
	}

	stmt, err := tx.Prepare(
		"INSERT INTO document_vectors (" + vectorColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare vector insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		ts := r.CreatedAt
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		_, err := stmt.Exec(
			r.ID, r.ChunkID, r.DocumentID, r.Heading, r.Text,
			encodeFloat32s(r.Embedding), ts.Format(time.RFC3339))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert vector %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// Search returns the topK records most cosine-similar to vector. The scan
// phase reads only (id, embedding) and keeps candidates in a min-heap;
// full rows are fetched for the winners alone.
func (s *SQLiteStore) Search(vector []float32, topK int) ([]ScoredRecord, error) {
	queryNorm := l2norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	winners, err := s.scanCandidates(vector, queryNorm, topK)
	if err != nil {
		return nil, err
	}
	if len(winners) == 0 {
		return nil, nil
	}

	ids := make([]any, 0, len(winners))
	for id := range winners {
		ids = append(ids, id)
	}
	rows, err := s.db.Query(
		"SELECT "+vectorColumns+" FROM document_vectors WHERE id IN (?"+
			strings.Repeat(",?", len(ids)-1)+")", ids...)
	if err != nil {
		return nil, fmt.Errorf("fetch winning vectors: %w", err)
	}
	defer rows.Close()

	results := make([]ScoredRecord, 0, len(winners))
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, ScoredRecord{Record: r, Score: winners[r.ID]})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate winning vectors: %w", err)
	}

	// The IN clause returns rows in storage order.
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// scanCandidates streams every stored embedding, scoring each against the
// query and retaining the topK best in a min-heap keyed by score. The
// decode buffer is reused across rows.
func (s *SQLiteStore) scanCandidates(vector []float32, queryNorm float64, topK int) (map[string]float32, error) {
	rows, err := s.db.Query("SELECT id, embedding FROM document_vectors")
	if err != nil {
		return nil, fmt.Errorf("scan vectors: %w", err)
	}
	defer rows.Close()

	h := &idScoreHeap{}
	var buf []float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scan vector row: %w", err)
		}
		if buf, err = decodeFloat32sInto(buf, blob); err != nil {
			return nil, fmt.Errorf("decode embedding %s: %w", id, err)
		}

		score := cosine(vector, queryNorm, buf)
		switch {
		case h.Len() < topK:
			heap.Push(h, idScore{ID: id, Score: score})
		case score > (*h)[0].Score:
			(*h)[0] = idScore{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vectors: %w", err)
	}

	winners := make(map[string]float32, h.Len())
	for h.Len() > 0 {
		item := heap.Pop(h).(idScore)
		winners[item.ID] = item.Score
	}
	return winners, nil
}

// ExportAll returns every record oldest first. The lexical index builds
// its corpus from this snapshot when a fusion engine is constructed.
func (s *SQLiteStore) ExportAll() ([]Record, error) {
	rows, err := s.db.Query(
		"SELECT " + vectorColumns + " FROM document_vectors ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("export vectors: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count returns the number of stored vectors.
func (s *SQLiteStore) Count() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM document_vectors").Scan(&n)
	return n, err
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var r Record
	var blob []byte
	var createdAt string
	if err := rows.Scan(&r.ID, &r.ChunkID, &r.DocumentID, &r.Heading, &r.Text, &blob, &createdAt); err != nil {
		return Record{}, fmt.Errorf("scan vector record: %w", err)
	}
	var err error
	if r.Embedding, err = decodeFloat32s(blob); err != nil {
		return Record{}, fmt.Errorf("decode embedding %s: %w", r.ID, err)
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Record{}, fmt.Errorf("parse created_at of %s: %w", r.ID, err)
	}
	return r, nil
}

// encodeFloat32s packs a vector as little-endian bytes, 4 per component.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32s(b []byte) ([]float32, error) {
	return decodeFloat32sInto(nil, b)
}

// decodeFloat32sInto decodes into buf when it has capacity, allocating
// otherwise. A length not divisible by 4 means the blob is corrupt.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	}
	buf = buf[:n]
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

func l2norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosine scores v against the query whose L2 norm is precomputed.
// Mismatched dimensions and zero vectors score 0.
func cosine(query []float32, queryNorm float64, v []float32) float32 {
	if len(query) != len(v) {
		return 0
	}
	var dot, vNormSq float64
	for i := range query {
		dot += float64(query[i]) * float64(v[i])
		vNormSq += float64(v[i]) * float64(v[i])
	}
	vNorm := math.Sqrt(vNormSq)
	if vNorm == 0 {
		return 0
	}
	return float32(dot / (queryNorm * vNorm))
}

// idScore pairs a record ID with its similarity score during top-K
// selection. idScoreHeap is a min-heap by score, shared with the lexical
// index.
type idScore struct {
	ID    string
	Score float32
}

type idScoreHeap []idScore

func (h idScoreHeap) Len() int           { return len(h) }
func (h idScoreHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h idScoreHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x any)        { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() any {
	old := *h
	item := old[len(old)-1]
	*h = old[:len(old)-1]
	return item
}
