package reranking

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/concierge/internal/llm"
	"github.com/kalambet/concierge/internal/retrieval"
)

// --- mock engine ---

type mockEngine struct {
	chatJSONFn func(ctx context.Context, model string, msgs []llm.Message, schema *llm.Schema) (string, error)
}

func (m *mockEngine) Chat(ctx context.Context, model string, msgs []llm.Message, tools []llm.ToolSpec) (llm.Message, error) {
	return llm.Message{}, fmt.Errorf("not implemented")
}

func (m *mockEngine) ChatJSON(ctx context.Context, model string, msgs []llm.Message, schema *llm.Schema) (string, error) {
	if m.chatJSONFn != nil {
		return m.chatJSONFn(ctx, model, msgs, schema)
	}
	return `{"score": 0.5}`, nil
}

func (m *mockEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return nil, fmt.Errorf("not implemented")
}

// --- helpers ---

func makeChunks(n int, score float32) []retrieval.Chunk {
	chunks := make([]retrieval.Chunk, n)
	for i := range chunks {
		chunks[i] = retrieval.Chunk{
			ID:    fmt.Sprintf("chunk-%d", i),
			Text:  fmt.Sprintf("text %d", i),
			Score: score,
		}
	}
	return chunks
}

func newLLMReranker(eng llm.Engine, timeout time.Duration) *LLMReranker {
	return &LLMReranker{engine: eng, model: "gpt-4.1-nano", timeout: timeout}
}

// --- tests ---

func TestLLMRerankerReordersChunks(t *testing.T) {
	// Scores keyed off the chunk text so concurrent scoring order does not matter.
	scores := map[string]float64{"text 0": 0.3, "text 1": 0.9, "text 2": 0.7}
	eng := &mockEngine{
		chatJSONFn: func(ctx context.Context, model string, msgs []llm.Message, schema *llm.Schema) (string, error) {
			for text, score := range scores {
				if strings.Contains(msgs[0].Content, text) {
					return fmt.Sprintf(`{"score": %g}`, score), nil
				}
			}
			return "", fmt.Errorf("unexpected prompt: %s", msgs[0].Content)
		},
	}

	r := newLLMReranker(eng, 5*time.Second)
	result, err := r.Rerank(context.Background(), "query", makeChunks(3, 0.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(result))
	}
	wantOrder := []string{"chunk-1", "chunk-2", "chunk-0"}
	for i, want := range wantOrder {
		if result[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, result[i].ID)
		}
	}
}

func TestLLMRerankerEmptyInput(t *testing.T) {
	r := newLLMReranker(&mockEngine{}, time.Second)
	result, err := r.Rerank(context.Background(), "query", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected empty result, got %d chunks", len(result))
	}
}

func TestLLMRerankerTimeoutDegrades(t *testing.T) {
	eng := &mockEngine{
		chatJSONFn: func(ctx context.Context, model string, msgs []llm.Message, schema *llm.Schema) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}

	chunks := makeChunks(4, 0.5)
	r := newLLMReranker(eng, 50*time.Millisecond)
	result, err := r.Rerank(context.Background(), "query", chunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Original fused order comes back unchanged on timeout.
	if len(result) != len(chunks) {
		t.Fatalf("expected %d chunks, got %d", len(chunks), len(result))
	}
	for i := range chunks {
		if result[i].ID != chunks[i].ID {
			t.Errorf("position %d: expected %s, got %s", i, chunks[i].ID, result[i].ID)
		}
	}
}

func TestLLMRerankerScoreErrorRetainsFusedScore(t *testing.T) {
	eng := &mockEngine{
		chatJSONFn: func(ctx context.Context, model string, msgs []llm.Message, schema *llm.Schema) (string, error) {
			return "", fmt.Errorf("model unavailable")
		},
	}

	r := newLLMReranker(eng, 5*time.Second)
	result, err := r.Rerank(context.Background(), "query", makeChunks(2, 0.42))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(result))
	}
	for _, ch := range result {
		if ch.Score != 0.42 {
			t.Errorf("chunk %s: expected fused score 0.42, got %g", ch.ID, ch.Score)
		}
	}
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		name    string
		resp    string
		want    float64
		wantErr bool
	}{
		{"plain JSON", `{"score": 0.85}`, 0.85, false},
		{"code fence", "```json\n{\"score\": 0.6}\n```", 0.6, false},
		{"filler around object", `Sure! {"score": 0.4} Hope that helps.`, 0.4, false},
		{"no object", "no json here", 0, true},
		{"malformed object", `{"score": }`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseScore(tt.resp, 0)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got score %g", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %g, got %g", tt.want, got)
			}
		})
	}
}

func TestNewRerankerDisabled(t *testing.T) {
	r := NewReranker(&mockEngine{}, "gpt-4.1-nano", false, time.Second)
	if _, ok := r.(*NoOpReranker); !ok {
		t.Fatalf("expected NoOpReranker, got %T", r)
	}

	chunks := makeChunks(2, 0.1)
	result, err := r.Rerank(context.Background(), "query", chunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 2 || result[0].ID != chunks[0].ID {
		t.Errorf("NoOpReranker must pass chunks through unchanged")
	}
}
