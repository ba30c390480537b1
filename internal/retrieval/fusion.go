package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
)

// Retriever tags recorded on retrieved chunks.
const (
	RetrieverLexical  = "lexical"
	RetrieverSemantic = "semantic"
)

// Chunk is a retrieved document fragment with its fusion provenance.
// Created transiently per query; never persisted.
type Chunk struct {
	ID         string
	DocumentID string
	Heading    string
	Text       string
	Retriever  string  // lexical, semantic, or "lexical+semantic"
	Score      float32 // fused score before reranking
}

// Reranker re-scores retrieved chunks by joint (query, chunk) relevance.
// Implemented by the reranking package; defined here so the fusion engine
// does not depend on a concrete scorer.
type Reranker interface {
	Rerank(ctx context.Context, query string, chunks []Chunk) ([]Chunk, error)
}

// EngineConfig holds the dependencies and tuning for a fusion engine.
type EngineConfig struct {
	Embedder       *Embedder
	Vectors        VectorStore
	Reranker       Reranker
	TopK           int
	LexicalWeight  float64
	SemanticWeight float64
}

// Engine fuses a lexical (BM25) retriever and a semantic (vector
// similarity) retriever into one ranked list, then reranks. An Engine is
// immutable once built: corpus refreshes go through Provider.Rebuild,
// which constructs a replacement while this one keeps serving.
type Engine struct {
	embedder       *Embedder
	vectors        VectorStore
	reranker       Reranker
	lexical        *Lexical
	topK           int
	lexicalWeight  float64
	semanticWeight float64
}

// NewEngine constructs a fusion engine. Construction is fail-fast: any
// stage that cannot initialize aborts the whole engine rather than
// degrading silently, since serving wrong-but-non-empty results would
// corrupt answer quality. The one sanctioned degradation is an empty
// corpus, where the lexical stage is absent and semantic search carries
// full weight.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("fusion engine: embedder is required")
	}
	if cfg.Vectors == nil {
		return nil, fmt.Errorf("fusion engine: vector store is required")
	}
	if cfg.Reranker == nil {
		return nil, fmt.Errorf("fusion engine: reranker is required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}

	// Probe the vector store early so a broken backend fails construction,
	// not the first query.
	if _, err := cfg.Vectors.Count(); err != nil {
		return nil, fmt.Errorf("fusion engine: probing vector store: %w", err)
	}

	records, err := cfg.Vectors.ExportAll()
	if err != nil {
		return nil, fmt.Errorf("fusion engine: loading corpus for lexical index: %w", err)
	}

	e := &Engine{
		embedder:       cfg.Embedder,
		vectors:        cfg.Vectors,
		reranker:       cfg.Reranker,
		lexical:        NewLexical(records),
		topK:           cfg.TopK,
		lexicalWeight:  cfg.LexicalWeight,
		semanticWeight: cfg.SemanticWeight,
	}

	if e.lexical == nil {
		slog.Info("fusion engine built without lexical stage (empty corpus)")
	} else {
		slog.Info("fusion engine built", "corpus_size", e.lexical.Size())
	}
	return e, nil
}

// Query returns the top-K most relevant chunks for a free-text query:
// lexical and semantic retrieval, weighted fusion, then reranking.
func (e *Engine) Query(ctx context.Context, query string) ([]Chunk, error) {
	var lexResults []ScoredRecord
	if e.lexical != nil {
		lexResults = e.lexical.Search(query, e.topK)
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	semResults, err := e.vectors.Search(vec, e.topK)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}

	fused := e.fuse(lexResults, semResults)
	if len(fused) == 0 {
		return nil, nil
	}

	reranked, err := e.reranker.Rerank(ctx, query, fused)
	if err != nil {
		return nil, fmt.Errorf("reranking: %w", err)
	}
	if len(reranked) > e.topK {
		reranked = reranked[:e.topK]
	}
	return reranked, nil
}

// fuse merges the two candidate lists with fixed weights. Scores from
// each retriever are normalized to [0,1] by that list's maximum before
// weighting, since BM25 and cosine similarity live on different scales.
// With no lexical candidates the semantic list carries full weight.
func (e *Engine) fuse(lexical, semantic []ScoredRecord) []Chunk {
	lexWeight, semWeight := e.lexicalWeight, e.semanticWeight
	if len(lexical) == 0 {
		lexWeight, semWeight = 0, 1
	}

	type fusedEntry struct {
		record    Record
		score     float64
		retriever string
	}
	entries := make(map[string]*fusedEntry, len(lexical)+len(semantic))

	merge := func(results []ScoredRecord, weight float64, retriever string) {
		if len(results) == 0 || weight == 0 {
			return
		}
		max := results[0].Score
		for _, r := range results[1:] {
			if r.Score > max {
				max = r.Score
			}
		}
		if max <= 0 {
			return
		}
		for _, r := range results {
			contribution := weight * float64(r.Score) / float64(max)
			if entry, ok := entries[r.ID]; ok {
				entry.score += contribution
				entry.retriever = RetrieverLexical + "+" + RetrieverSemantic
			} else {
				entries[r.ID] = &fusedEntry{record: r.Record, score: contribution, retriever: retriever}
			}
		}
	}
	merge(lexical, lexWeight, RetrieverLexical)
	merge(semantic, semWeight, RetrieverSemantic)

	chunks := make([]Chunk, 0, len(entries))
	for _, entry := range entries {
		chunks = append(chunks, Chunk{
			ID:         entry.record.ID,
			DocumentID: entry.record.DocumentID,
			Heading:    entry.record.Heading,
			Text:       entry.record.Text,
			Retriever:  entry.retriever,
			Score:      float32(entry.score),
		})
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Score > chunks[j].Score })
	return chunks
}

// Provider owns the currently published fusion engine. Readers grab the
// current version with Engine(); Rebuild constructs a new engine off to
// the side and publishes it atomically, so in-flight queries never block
// on a rebuild and never see a half-built engine.
type Provider struct {
	cfg     EngineConfig
	current atomic.Pointer[Engine]
}

// NewProvider builds the initial engine. A construction failure here is a
// configuration failure: the caller must abort startup.
func NewProvider(cfg EngineConfig) (*Provider, error) {
	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	p := &Provider{cfg: cfg}
	p.current.Store(engine)
	return p, nil
}

// Engine returns the currently published engine version.
func (p *Provider) Engine() *Engine {
	return p.current.Load()
}

// Rebuild constructs a fresh engine over the current corpus and swaps it
// in. On failure the previous engine stays published and keeps serving.
func (p *Provider) Rebuild(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	engine, err := NewEngine(p.cfg)
	if err != nil {
		return fmt.Errorf("rebuilding fusion engine: %w", err)
	}
	p.current.Store(engine)
	slog.Info("fusion engine rebuilt")
	return nil
}
