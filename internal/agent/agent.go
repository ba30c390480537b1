// Package agent implements the specialized reasoning agents: bounded
// tool-calling loops over a chat model, each with its own tool set and
// operating policy.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/concierge/internal/llm"
	"github.com/kalambet/concierge/internal/tools"
)

// maxIterations bounds one agent turn. Each iteration is one model call
// plus the tool calls it requests; hitting the bound means the model is
// looping rather than converging on an answer.
const maxIterations = 8

// Agent is a bounded reasoning loop: the model repeatedly either calls a
// tool or produces a final answer, and tool observations are fed back
// into its local context until it answers or the iteration bound trips.
type Agent struct {
	name         string
	model        string
	systemPrompt string
	engine       llm.Engine
	registry     *tools.Registry
	toolNames    []string
}

// New creates an agent over the named tools. The tools must already be
// registered; unknown names surface as a panic on the first Run.
func New(name, model, systemPrompt string, engine llm.Engine, registry *tools.Registry, toolNames []string) *Agent {
	return &Agent{
		name:         name,
		model:        model,
		systemPrompt: systemPrompt,
		engine:       engine,
		registry:     registry,
		toolNames:    toolNames,
	}
}

// Name returns the agent's actor name.
func (a *Agent) Name() string {
	return a.name
}

// Run executes one agent turn over the conversation history and returns
// the final assistant message, attributed to this agent via Name.
func (a *Agent) Run(ctx context.Context, cc tools.CallContext, history []llm.Message) (llm.Message, error) {
	specs := a.registry.Specs(a.toolNames...)

	msgs := make([]llm.Message, 0, len(history)+1)
	msgs = append(msgs, llm.Message{Role: "system", Content: a.systemPrompt})
	msgs = append(msgs, history...)

	for i := 0; i < maxIterations; i++ {
		resp, err := a.engine.Chat(ctx, a.model, msgs, specs)
		if err != nil {
			return llm.Message{}, fmt.Errorf("agent %s: %w", a.name, err)
		}

		if len(resp.ToolCalls) == 0 {
			resp.Name = a.name
			return resp, nil
		}

		msgs = append(msgs, resp)
		// Tool calls run sequentially: booking depends on what listing
		// returned within the same iteration.
		for _, tc := range resp.ToolCalls {
			observation, err := a.registry.Execute(ctx, cc, tc.Name, tc.Arguments)
			if err != nil {
				if ctx.Err() != nil {
					return llm.Message{}, ctx.Err()
				}
				slog.Warn("tool call failed", "agent", a.name, "tool", tc.Name, "error", err)
				observation = fmt.Sprintf("The %s tool failed: %v. Do not retry it with the same arguments.", tc.Name, err)
			}
			msgs = append(msgs, llm.Message{
				Role:       "tool",
				Name:       tc.Name,
				ToolCallID: tc.ID,
				Content:    observation,
			})
		}
	}

	return llm.Message{}, fmt.Errorf("agent %s: no final answer after %d iterations", a.name, maxIterations)
}
