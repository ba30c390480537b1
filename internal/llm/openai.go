package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	maxRetries     = 3
	retryBaseDelay = time.Second
)

// OpenAIEngine implements Engine on top of the OpenAI API.
type OpenAIEngine struct {
	client *openai.Client
}

// NewOpenAIEngine creates an engine for the given API key.
func NewOpenAIEngine(apiKey string) (*OpenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	return &OpenAIEngine{client: openai.NewClient(apiKey)}, nil
}

// NewOpenAIEngineWithClient wraps an existing client. Used by tests with
// a client pointed at a local fake server.
func NewOpenAIEngineWithClient(client *openai.Client) *OpenAIEngine {
	return &OpenAIEngine{client: client}
}

// Chat sends a transcript and optional tool catalog, returning either a
// final assistant message or a message carrying tool-invocation requests.
func (e *OpenAIEngine) Chat(ctx context.Context, model string, messages []Message, tools []ToolSpec) (Message, error) {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(messages),
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	resp, err := e.createWithRetry(ctx, req)
	if err != nil {
		return Message{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Message{}, fmt.Errorf("chat completion: empty choices")
	}
	return fromOpenAIMessage(resp.Choices[0].Message), nil
}

// ChatJSON requests strict structured output and returns the raw JSON.
func (e *OpenAIEngine) ChatJSON(ctx context.Context, model string, messages []Message, schema *Schema) (string, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("marshaling schema: %w", err)
	}

	name := schema.Name
	if name == "" {
		name = "response"
	}
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(messages),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: json.RawMessage(schemaJSON),
				Strict: true,
			},
		},
	}

	resp, err := e.createWithRetry(ctx, req)
	if err != nil {
		return "", fmt.Errorf("structured completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("structured completion: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector for the given text.
func (e *OpenAIEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	var resp openai.EmbeddingResponse
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if werr := waitBackoff(ctx, attempt); werr != nil {
				return nil, werr
			}
		}
		resp, err = e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(model),
		})
		if err == nil {
			break
		}
		if !isRetryable(err) {
			return nil, fmt.Errorf("creating embedding: %w", err)
		}
		slog.Debug("embedding attempt failed, retrying", "attempt", attempt, "error", err)
	}
	if err != nil {
		return nil, fmt.Errorf("creating embedding after %d retries: %w", maxRetries, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("creating embedding: empty response")
	}
	return resp.Data[0].Embedding, nil
}

func (e *OpenAIEngine) createWithRetry(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if werr := waitBackoff(ctx, attempt); werr != nil {
				return resp, werr
			}
		}
		resp, err = e.client.CreateChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !isRetryable(err) {
			return resp, err
		}
		slog.Debug("completion attempt failed, retrying", "attempt", attempt, "error", err)
	}
	return resp, err
}

// isRetryable reports whether the error is a transient API failure:
// rate limits, server errors, or transport-level failures.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	// Context expiry is terminal; anything else transport-level is worth a retry.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func waitBackoff(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(calculateBackoff(retryBaseDelay, attempt)):
		return nil
	}
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		cm := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out[i] = cm
	}
	return out
}

func fromOpenAIMessage(m openai.ChatCompletionMessage) Message {
	msg := Message{
		Role:    m.Role,
		Content: m.Content,
	}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return msg
}
