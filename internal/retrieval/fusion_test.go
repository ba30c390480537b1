package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/kalambet/concierge/internal/llm"
)

// --- fakes ---

type fakeVectorStore struct {
	records   []Record
	results   []ScoredRecord
	countErr  error
	exportErr error
}

func (f *fakeVectorStore) Insert(records []Record) error {
	f.records = append(f.records, records...)
	return nil
}

func (f *fakeVectorStore) Search(vector []float32, topK int) ([]ScoredRecord, error) {
	if len(f.results) > topK {
		return f.results[:topK], nil
	}
	return f.results, nil
}

func (f *fakeVectorStore) ExportAll() ([]Record, error) {
	if f.exportErr != nil {
		return nil, f.exportErr
	}
	return f.records, nil
}

func (f *fakeVectorStore) Count() (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.records), nil
}

type fakeEmbedEngine struct{}

func (fakeEmbedEngine) Chat(ctx context.Context, model string, msgs []llm.Message, tools []llm.ToolSpec) (llm.Message, error) {
	return llm.Message{}, fmt.Errorf("not implemented")
}

func (fakeEmbedEngine) ChatJSON(ctx context.Context, model string, msgs []llm.Message, schema *llm.Schema) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (fakeEmbedEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

// passthroughReranker records its input and returns it unchanged.
type passthroughReranker struct {
	calls int
	seen  []Chunk
}

func (r *passthroughReranker) Rerank(_ context.Context, _ string, chunks []Chunk) ([]Chunk, error) {
	r.calls++
	r.seen = chunks
	return chunks, nil
}

func testEngineConfig(vectors VectorStore, reranker Reranker) EngineConfig {
	return EngineConfig{
		Embedder:       NewEmbedder(fakeEmbedEngine{}, "text-embedding-3-small"),
		Vectors:        vectors,
		Reranker:       reranker,
		TopK:           5,
		LexicalWeight:  0.3,
		SemanticWeight: 0.7,
	}
}

// --- tests ---

func TestNewEngineRequiresDependencies(t *testing.T) {
	base := testEngineConfig(&fakeVectorStore{}, &passthroughReranker{})

	missingEmbedder := base
	missingEmbedder.Embedder = nil
	if _, err := NewEngine(missingEmbedder); err == nil {
		t.Error("expected error for nil embedder")
	}

	missingVectors := base
	missingVectors.Vectors = nil
	if _, err := NewEngine(missingVectors); err == nil {
		t.Error("expected error for nil vector store")
	}

	missingReranker := base
	missingReranker.Reranker = nil
	if _, err := NewEngine(missingReranker); err == nil {
		t.Error("expected error for nil reranker")
	}
}

func TestNewEngineFailFastOnBrokenStore(t *testing.T) {
	cfg := testEngineConfig(&fakeVectorStore{countErr: fmt.Errorf("disk gone")}, &passthroughReranker{})
	if _, err := NewEngine(cfg); err == nil {
		t.Error("expected error when the vector store probe fails")
	}

	cfg = testEngineConfig(&fakeVectorStore{exportErr: fmt.Errorf("corrupt page")}, &passthroughReranker{})
	if _, err := NewEngine(cfg); err == nil {
		t.Error("expected error when the corpus export fails")
	}
}

func TestQuerySemanticOnlyOnEmptyCorpus(t *testing.T) {
	vectors := &fakeVectorStore{
		results: []ScoredRecord{
			{Record: Record{ID: "s1", Text: "semantic one"}, Score: 0.9},
			{Record: Record{ID: "s2", Text: "semantic two"}, Score: 0.6},
		},
	}
	reranker := &passthroughReranker{}
	e, err := NewEngine(testEngineConfig(vectors, reranker))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if e.lexical != nil {
		t.Fatal("expected no lexical stage for an empty corpus")
	}

	chunks, err := e.Query(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	// Semantic carries full weight: the top candidate keeps a normalized score of 1.
	if chunks[0].ID != "s1" || chunks[0].Score != 1 {
		t.Errorf("expected s1 with score 1, got %s with %g", chunks[0].ID, chunks[0].Score)
	}
	if chunks[0].Retriever != RetrieverSemantic {
		t.Errorf("expected retriever %q, got %q", RetrieverSemantic, chunks[0].Retriever)
	}
	if reranker.calls != 1 {
		t.Errorf("expected 1 reranker call, got %d", reranker.calls)
	}
}

func TestFuseWeightsAndOverlap(t *testing.T) {
	e, err := NewEngine(testEngineConfig(&fakeVectorStore{}, &passthroughReranker{}))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	lexical := []ScoredRecord{
		{Record: Record{ID: "both"}, Score: 4},
		{Record: Record{ID: "lex-only"}, Score: 2},
	}
	semantic := []ScoredRecord{
		{Record: Record{ID: "both"}, Score: 0.8},
		{Record: Record{ID: "sem-only"}, Score: 0.4},
	}

	chunks := e.fuse(lexical, semantic)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 fused chunks, got %d", len(chunks))
	}

	byID := make(map[string]Chunk, len(chunks))
	for _, ch := range chunks {
		byID[ch.ID] = ch
	}

	// both: 0.3*(4/4) + 0.7*(0.8/0.8) = 1.0
	if got := byID["both"].Score; got < 0.999 || got > 1.001 {
		t.Errorf("both: expected fused score 1.0, got %g", got)
	}
	if byID["both"].Retriever != "lexical+semantic" {
		t.Errorf("both: expected combined retriever tag, got %q", byID["both"].Retriever)
	}
	// lex-only: 0.3*(2/4) = 0.15
	if got := byID["lex-only"].Score; got < 0.149 || got > 0.151 {
		t.Errorf("lex-only: expected 0.15, got %g", got)
	}
	// sem-only: 0.7*(0.4/0.8) = 0.35
	if got := byID["sem-only"].Score; got < 0.349 || got > 0.351 {
		t.Errorf("sem-only: expected 0.35, got %g", got)
	}

	if chunks[0].ID != "both" || chunks[1].ID != "sem-only" || chunks[2].ID != "lex-only" {
		t.Errorf("unexpected order: [%s %s %s]", chunks[0].ID, chunks[1].ID, chunks[2].ID)
	}
}

func TestQueryTrimsToTopK(t *testing.T) {
	var results []ScoredRecord
	for i := 0; i < 5; i++ {
		results = append(results, ScoredRecord{
			Record: Record{ID: fmt.Sprintf("s%d", i), Text: fmt.Sprintf("semantic %d", i)},
			Score:  1 - float32(i)*0.1,
		})
	}
	cfg := testEngineConfig(&fakeVectorStore{results: results}, &passthroughReranker{})
	cfg.TopK = 3
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	chunks, err := e.Query(context.Background(), "query")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(chunks) != 3 {
		t.Errorf("expected 3 chunks after trim, got %d", len(chunks))
	}
}

func TestProviderRebuildPublishesNewEngine(t *testing.T) {
	vectors := &fakeVectorStore{}
	p, err := NewProvider(testEngineConfig(vectors, &passthroughReranker{}))
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	first := p.Engine()
	if first == nil || first.lexical != nil {
		t.Fatal("expected initial engine without lexical stage")
	}

	// A corpus appears; the rebuilt engine picks it up.
	vectors.records = []Record{{ID: "r1", Text: "warranty coverage details"}}
	if err := p.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	second := p.Engine()
	if second == first {
		t.Fatal("expected a new engine version after rebuild")
	}
	if second.lexical.Size() != 1 {
		t.Errorf("expected lexical corpus of 1, got %d", second.lexical.Size())
	}
}

func TestProviderRebuildFailureKeepsOldEngine(t *testing.T) {
	vectors := &fakeVectorStore{}
	p, err := NewProvider(testEngineConfig(vectors, &passthroughReranker{}))
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	current := p.Engine()

	vectors.exportErr = fmt.Errorf("corrupt page")
	if err := p.Rebuild(context.Background()); err == nil {
		t.Fatal("expected rebuild error")
	}
	if p.Engine() != current {
		t.Error("failed rebuild must keep the previous engine published")
	}
}
