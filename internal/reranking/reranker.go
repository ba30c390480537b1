// Package reranking re-scores fused retrieval results by query relevance
// before they reach the agents.
package reranking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/concierge/internal/llm"
	"github.com/kalambet/concierge/internal/retrieval"
)

const scoreConcurrency = 3

// NewReranker returns an LLMReranker if enabled, NoOpReranker otherwise.
func NewReranker(eng llm.Engine, model string, enabled bool, timeout time.Duration) retrieval.Reranker {
	if !enabled {
		return &NoOpReranker{}
	}
	return &LLMReranker{engine: eng, model: model, timeout: timeout}
}

// LLMReranker scores (query, chunk) pairs with a small chat model, standing
// in for a cross-encoder. At most scoreConcurrency chunks are scored in
// parallel. Reranking is advisory: a chunk whose scoring fails keeps its
// fused score, and if the deadline passes before every chunk is scored the
// fused order is returned untouched.
type LLMReranker struct {
	engine  llm.Engine
	model   string
	timeout time.Duration
}

// Rerank returns the chunks sorted by model-judged relevance descending.
func (r *LLMReranker) Rerank(ctx context.Context, query string, chunks []retrieval.Chunk) ([]retrieval.Chunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}

	scoreCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Each goroutine owns exactly one index of scored; the slice is read
	// only after wg.Wait or abandoned entirely on timeout.
	scored := make([]retrieval.Chunk, len(chunks))
	copy(scored, chunks)

	sem := make(chan struct{}, scoreConcurrency)
	var wg sync.WaitGroup
	for i := range scored {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-scoreCtx.Done():
				return
			}

			score, err := r.scoreChunk(scoreCtx, query, scored[i])
			if err != nil {
				if scoreCtx.Err() == nil {
					slog.Debug("rerank score failed, keeping fused score",
						"chunk", scored[i].ID, "error", err)
				}
				return
			}
			scored[i].Score = float32(score)
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-scoreCtx.Done():
		return chunks, nil
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored, nil
}

func (r *LLMReranker) scoreChunk(ctx context.Context, query string, chunk retrieval.Chunk) (float64, error) {
	prompt := fmt.Sprintf(
		"Rate how relevant the following text is to the query, from 0.0 (unrelated) to 1.0 (directly answers it).\nQuery: %s\nText: %s\nRespond with only a JSON object: {\"score\": <float>}",
		query, chunk.Text)

	resp, err := r.engine.ChatJSON(ctx, r.model, []llm.Message{{Role: "user", Content: prompt}}, &llm.Schema{
		Name: "relevance_score",
		Type: "object",
		Properties: map[string]llm.SchemaProperty{
			"score": {Type: "number", Description: "Relevance score 0.0-1.0"},
		},
		Required: []string{"score"},
	})
	if err != nil {
		return float64(chunk.Score), err
	}

	score, err := parseScore(resp, chunk.Score)
	if err != nil {
		slog.Debug("rerank response unparseable, keeping fused score", "resp", resp, "error", err)
		return float64(chunk.Score), nil
	}
	return score, nil
}

// parseScore extracts the relevance score from a model response. Strict
// schema output should arrive as plain JSON, but code fences and
// conversational filler around the object are tolerated.
func parseScore(resp string, originalScore float32) (float64, error) {
	s := strings.TrimSpace(resp)
	if idx := strings.Index(s, "```"); idx != -1 {
		s = strings.TrimPrefix(s[idx+3:], "json")
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return float64(originalScore), fmt.Errorf("no JSON object in response")
	}

	var obj struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return float64(originalScore), fmt.Errorf("unmarshal score: %w", err)
	}
	return obj.Score, nil
}

// NoOpReranker passes chunks through unchanged. Used when reranking is disabled.
type NoOpReranker struct{}

func (n *NoOpReranker) Rerank(_ context.Context, _ string, chunks []retrieval.Chunk) ([]retrieval.Chunk, error) {
	return chunks, nil
}
