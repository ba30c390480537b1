package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/concierge/internal/retrieval"
	"github.com/kalambet/concierge/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Provider *retrieval.Provider
}

// NewMCPServer creates an MCP server exposing the knowledge base and the
// appointment calendar to MCP clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"concierge",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("concierge: customer support knowledge base and appointment calendar."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_knowledge_base",
			mcp.WithDescription("Search the support knowledge base and return the most relevant passages."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
		),
		mcpSearchKnowledgeBase(deps),
	)

	s.AddTool(
		mcp.NewTool("list_available_slots",
			mcp.WithDescription("List available appointment time slots for a given date."),
			mcp.WithString("date", mcp.Description("Date in YYYY-MM-DD format"), mcp.Required()),
		),
		mcpListAvailableSlots(deps),
	)

	return s
}

func mcpSearchKnowledgeBase(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		chunks, err := deps.Provider.Engine().Query(ctx, query)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(chunks) == 0 {
			return mcpText("No relevant information found."), nil
		}

		var b strings.Builder
		for i, ch := range chunks {
			if i > 0 {
				b.WriteString("\n\n")
			}
			if ch.Heading != "" {
				fmt.Fprintf(&b, "## %s\n", ch.Heading)
			}
			b.WriteString(ch.Text)
		}
		return mcpText(b.String()), nil
	}
}

func mcpListAvailableSlots(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		date, err := req.RequireString("date")
		if err != nil {
			return mcpError("date is required"), nil
		}
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return mcpError(fmt.Sprintf("invalid date %q: expected YYYY-MM-DD", date)), nil
		}

		slots, err := deps.Store.ListAvailableSlots(ctx, date)
		if err != nil {
			return mcpError(fmt.Sprintf("listing slots failed: %v", err)), nil
		}
		if len(slots) == 0 {
			return mcpText(fmt.Sprintf("No slots found for %s.", date)), nil
		}
		return mcpText(fmt.Sprintf("Available slots on %s: %s", date, strings.Join(slots, ", "))), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
