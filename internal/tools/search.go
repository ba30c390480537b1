package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalambet/concierge/internal/retrieval"
	"github.com/kalambet/concierge/internal/websearch"
)

// Searcher runs external web searches. Satisfied by *websearch.Client.
type Searcher interface {
	Search(ctx context.Context, query string) ([]websearch.Result, error)
}

type searchArgs struct {
	Query string `json:"query"`
}

var searchParams = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "Search query"}
	},
	"required": ["query"]
}`)

// NewKnowledgeSearch returns the knowledge base search tool backed by the
// currently published fusion engine.
func NewKnowledgeSearch(provider *retrieval.Provider) Tool {
	return Tool{
		Name:        "knowledge_search",
		Description: "Searches the internal knowledge base for company policies, services, and support information. Prefer this over web search for anything about the company itself.",
		Parameters:  searchParams,
		Run: func(ctx context.Context, cc CallContext, args json.RawMessage) (string, error) {
			var in searchArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("parsing arguments: %w", err)
			}

			chunks, err := provider.Engine().Query(ctx, in.Query)
			if err != nil {
				return "", fmt.Errorf("searching knowledge base: %w", err)
			}
			if len(chunks) == 0 {
				return "No relevant information found in the knowledge base.", nil
			}
			return renderChunks(chunks), nil
		},
	}
}

func renderChunks(chunks []retrieval.Chunk) string {
	var b strings.Builder
	for i, ch := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if ch.Heading != "" {
			b.WriteString("## ")
			b.WriteString(ch.Heading)
			b.WriteString("\n")
		}
		b.WriteString(ch.Text)
	}
	return b.String()
}

// NewWebSearch returns the external web search tool.
func NewWebSearch(searcher Searcher) Tool {
	return Tool{
		Name:        "web_search",
		Description: "Searches the public web. Use only when the knowledge base has no answer.",
		Parameters:  searchParams,
		Run: func(ctx context.Context, cc CallContext, args json.RawMessage) (string, error) {
			var in searchArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("parsing arguments: %w", err)
			}

			results, err := searcher.Search(ctx, in.Query)
			if err != nil {
				return "", fmt.Errorf("searching the web: %w", err)
			}
			if len(results) == 0 {
				return "No web results found.", nil
			}

			var b strings.Builder
			for i, r := range results {
				if i > 0 {
					b.WriteString("\n\n")
				}
				fmt.Fprintf(&b, "%s (%s)\n%s", r.Title, r.URL, r.Content)
			}
			return b.String(), nil
		},
	}
}
