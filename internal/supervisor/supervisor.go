// Package supervisor implements the conversation state machine: an
// explicit dispatcher that routes each customer turn to exactly one
// specialist agent at a time and persists the completed turn.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/concierge/internal/agent"
	"github.com/kalambet/concierge/internal/llm"
	"github.com/kalambet/concierge/internal/storage"
	"github.com/kalambet/concierge/internal/tools"
)

// maxHandoffs bounds dispatches within one customer turn. More than a
// few means the router and agents are bouncing the turn back and forth.
const maxHandoffs = 4

const degradedReply = "I'm sorry, I'm having trouble processing your request right now. Please try again in a moment."

// Supervisor owns one end-to-end turn: load history, dispatch through
// the router until an answer is ready, persist, reply.
type Supervisor struct {
	store  *storage.Store
	router *Router
	agents map[Actor]*agent.Agent
}

// New creates a Supervisor over the two specialist agents.
func New(store *storage.Store, router *Router, research, appointment *agent.Agent) *Supervisor {
	return &Supervisor{
		store:  store,
		router: router,
		agents: map[Actor]*agent.Agent{
			ActorResearch:    research,
			ActorAppointment: appointment,
		},
	}
}

// HandleQuery processes one customer message on a thread and returns the
// reply. Unknown thread IDs start a fresh conversation. Storage failures
// are returned as errors since durable persistence is a hard requirement;
// model and agent failures degrade to an apologetic reply instead, so a
// flaky upstream never strands the customer without a response.
func (s *Supervisor) HandleQuery(ctx context.Context, customerID, threadID, userQuery string) (string, error) {
	stored, err := s.store.LoadThread(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("loading thread %s: %w", threadID, err)
	}

	history := toLLMMessages(stored)
	history = append(history, llm.Message{Role: "user", Content: userQuery})

	cc := tools.CallContext{CustomerID: customerID, ThreadID: threadID}
	newMessages := []storage.Message{{Role: "user", Actor: "customer", Content: userQuery}}

	reply, agentTurns, err := s.dispatch(ctx, cc, history)
	if err != nil {
		slog.Error("turn failed, degrading", "thread_id", threadID, "error", err)
		reply = degradedReply
		agentTurns = nil
	}

	for _, m := range agentTurns {
		newMessages = append(newMessages, storage.Message{Role: "assistant", Actor: m.Name, Content: m.Content})
	}
	newMessages = append(newMessages, storage.Message{Role: "assistant", Actor: "supervisor", Content: reply})

	if err := s.store.AppendMessages(ctx, threadID, newMessages); err != nil {
		return "", fmt.Errorf("persisting thread %s: %w", threadID, err)
	}
	return reply, nil
}

// dispatch runs the routing loop: the router picks one agent per step,
// the agent's final message is appended to the working history, and the
// loop ends when the router finishes with a customer-facing reply. Agent
// turns are returned for persistence so restarts resume mid-booking.
func (s *Supervisor) dispatch(ctx context.Context, cc tools.CallContext, history []llm.Message) (string, []llm.Message, error) {
	var agentTurns []llm.Message

	for i := 0; i < maxHandoffs; i++ {
		decision, err := s.router.Decide(ctx, history)
		if err != nil {
			return "", nil, err
		}

		if decision.Next == ActorFinish {
			reply := decision.Response
			if reply == "" && len(agentTurns) > 0 {
				reply = agentTurns[len(agentTurns)-1].Content
			}
			if reply == "" {
				return "", nil, fmt.Errorf("router finished with no response")
			}
			return sanitize(reply), agentTurns, nil
		}

		a := s.agents[decision.Next]
		out, err := a.Run(ctx, cc, history)
		if err != nil {
			return "", nil, err
		}
		slog.Debug("agent turn complete", "agent", a.Name(), "thread_id", cc.ThreadID)

		history = append(history, llm.Message{Role: "assistant", Name: out.Name, Content: out.Content})
		agentTurns = append(agentTurns, out)
	}

	// Out of handoffs: relay the last specialist answer rather than drop it.
	if len(agentTurns) > 0 {
		return sanitize(agentTurns[len(agentTurns)-1].Content), agentTurns, nil
	}
	return "", nil, fmt.Errorf("no answer after %d handoffs", maxHandoffs)
}

// toLLMMessages converts persisted turns into model messages. Tool-level
// payloads are not replayed; the durable history is the customer-visible
// conversation plus agent attributions.
func toLLMMessages(stored []storage.Message) []llm.Message {
	msgs := make([]llm.Message, 0, len(stored))
	for _, m := range stored {
		msg := llm.Message{Role: m.Role, Content: m.Content}
		if m.Actor != "customer" && m.Actor != "supervisor" {
			msg.Name = m.Actor
		}
		msgs = append(msgs, msg)
	}
	return msgs
}
