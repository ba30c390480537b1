package llm

import (
	"context"
	"encoding/json"
)

// Engine abstracts the completion/embedding backend. Consumers (agents,
// supervisor, retrieval) depend on this interface instead of a concrete
// client: the contract is a transcript plus an optional tool catalog in,
// a final text message or tool-invocation request out.
type Engine interface {
	// Chat sends a transcript to the given model. When tools is non-empty
	// the model may answer with tool-invocation requests instead of text.
	Chat(ctx context.Context, model string, messages []Message, tools []ToolSpec) (Message, error)

	// ChatJSON requests a structured response conforming to schema and
	// returns the raw JSON string.
	ChatJSON(ctx context.Context, model string, messages []Message, schema *Schema) (string, error)

	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, model string, text string) ([]float32, error)
}

// Message is one turn of a transcript.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`         // emitting actor or tool name
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // assistant tool-invocation requests
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on role "tool" observations
}

// ToolCall is a single tool-invocation request emitted by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolSpec describes one callable capability offered to the model.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON schema object
}

// Schema describes the expected JSON output structure for ChatJSON. Name
// labels the schema in the structured-output request; it is not part of
// the schema body itself.
type Schema struct {
	Name       string                    `json:"-"`
	Type       string                    `json:"type"`
	Properties map[string]SchemaProperty `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// SchemaProperty describes a single field within a Schema.
type SchemaProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// MarshalJSON emits the schema with additionalProperties pinned to false,
// which strict structured-output mode requires.
func (s Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"type":                 s.Type,
		"properties":           s.Properties,
		"required":             s.Required,
		"additionalProperties": false,
	})
}
